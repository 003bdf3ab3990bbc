package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	"gorm.io/gorm"
)

const (
	liveTable   = "conversations"
	shadowTable = "conversations_new"
)

// shadowTableDDL is the current conversations schema, created under the shadow name.
const shadowTableDDL = `CREATE TABLE ` + shadowTable + ` (
	id VARCHAR(255) NOT NULL PRIMARY KEY,
	platform VARCHAR(50) NOT NULL,
	title VARCHAR(500) NOT NULL,
	url VARCHAR(1000) NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	messages JSON NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT 0,
	processed_at DATETIME,
	tags JSON,
	summary TEXT,
	metadata JSON,
	db_created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	db_updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// IndexDDL recreates the secondary indexes after the shadow table is renamed.
var IndexDDL = []string{
	`CREATE INDEX IF NOT EXISTS idx_platform_processed ON conversations (platform, processed)`,
	`CREATE INDEX IF NOT EXISTS idx_created_at ON conversations (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_updated_at ON conversations (updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_platform ON conversations (platform)`,
	`CREATE INDEX IF NOT EXISTS idx_processed ON conversations (processed)`,
	`CREATE INDEX IF NOT EXISTS idx_db_updated_at ON conversations (db_updated_at)`,
}

// shadowColumns lists the shadow table columns in declaration order, with the
// expression used to fill each from a live table that has the column. NOT NULL
// columns fall back to a default when older rows hold NULL.
var shadowColumns = []struct {
	name string
	expr string
}{
	{"id", "id"},
	{"platform", "platform"},
	{"title", "COALESCE(title, '')"},
	{"url", "COALESCE(url, '')"},
	{"created_at", "created_at"},
	{"updated_at", "updated_at"},
	{"messages", "COALESCE(messages, '[]')"},
	{"processed", "COALESCE(processed, 0)"},
	{"processed_at", "NULLIF(processed_at, '')"},
	{"tags", "tags"},
	{"summary", "summary"},
	{"metadata", "metadata"},
	{"db_created_at", "COALESCE(db_created_at, CURRENT_TIMESTAMP)"},
	{"db_updated_at", "COALESCE(db_updated_at, CURRENT_TIMESTAMP)"},
}

// Rebuilder runs the offline table maintenance modes against a SQLite database.
type Rebuilder struct {
	db *gorm.DB
}

var _ registrymigrate.Rebuilder = (*Rebuilder)(nil)

// NewRebuilder wraps an open database.
func NewRebuilder(db *gorm.DB) *Rebuilder {
	return &Rebuilder{db: db}
}

func (r *Rebuilder) checkDialect() error {
	if name := r.db.Dialector.Name(); name != "sqlite" {
		return &registrymigrate.PreconditionError{Backend: name}
	}
	return nil
}

// Rebuild copies every row into a freshly created shadow table, drops the live
// table, renames the shadow table into its place and recreates the indexes.
// The steps share one transaction, so SQLite rolls all of them back on failure.
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	if err := r.checkDialect(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		log.Info("Rebuild: creating shadow table", "table", shadowTable)
		if err := tx.Exec(`DROP TABLE IF EXISTS ` + shadowTable).Error; err != nil {
			return fmt.Errorf("drop stale shadow table: %w", err)
		}
		if err := tx.Exec(shadowTableDDL).Error; err != nil {
			return fmt.Errorf("create shadow table: %w", err)
		}

		if tx.Migrator().HasTable(liveTable) {
			live, err := liveColumns(tx)
			if err != nil {
				return err
			}
			var names, exprs []string
			for _, col := range shadowColumns {
				if live[col.name] {
					names = append(names, col.name)
					exprs = append(exprs, col.expr)
				}
			}
			copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
				shadowTable, strings.Join(names, ", "), strings.Join(exprs, ", "), liveTable)
			res := tx.Exec(copySQL)
			if res.Error != nil {
				return fmt.Errorf("copy rows: %w", res.Error)
			}
			log.Info("Rebuild: copied rows", "rows", res.RowsAffected, "columns", len(names))

			log.Info("Rebuild: dropping live table", "table", liveTable)
			if err := tx.Exec(`DROP TABLE ` + liveTable).Error; err != nil {
				return fmt.Errorf("drop live table: %w", err)
			}
		} else {
			log.Warn("Rebuild: live table missing, nothing to copy", "table", liveTable)
		}

		log.Info("Rebuild: renaming shadow table", "from", shadowTable, "to", liveTable)
		if err := tx.Exec(`ALTER TABLE ` + shadowTable + ` RENAME TO ` + liveTable).Error; err != nil {
			return fmt.Errorf("rename shadow table: %w", err)
		}

		for _, ddl := range IndexDDL {
			if err := tx.Exec(ddl).Error; err != nil {
				return fmt.Errorf("recreate index: %w", err)
			}
		}
		log.Info("Rebuild: indexes recreated", "count", len(IndexDDL))
		return nil
	})
}

func liveColumns(tx *gorm.DB) (map[string]bool, error) {
	types, err := tx.Migrator().ColumnTypes(liveTable)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", liveTable, err)
	}
	cols := make(map[string]bool, len(types))
	for _, ct := range types {
		cols[strings.ToLower(ct.Name())] = true
	}
	return cols, nil
}

// RecreateAll drops every user table and recreates the schema. All data is lost.
func (r *Rebuilder) RecreateAll(ctx context.Context) error {
	if err := r.checkDialect(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tables []string
		if err := tx.Raw(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&tables).Error; err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		for _, name := range tables {
			log.Warn("Recreate: dropping table", "table", name)
			if err := tx.Exec(`DROP TABLE IF EXISTS "` + strings.ReplaceAll(name, `"`, `""`) + `"`).Error; err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
		}
		if err := gormstore.AutoMigrate(ctx, tx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		log.Info("Recreate: schema created", "dropped", len(tables))
		return nil
	})
}

// Close releases the database handle.
func (r *Rebuilder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
