// Package sqlite is the default conversation store, backed by a single SQLite file.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/logging"
	"github.com/chirino/chatmem-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: config.DBKindSQLite,
		Loader: func(ctx context.Context) (registrystore.ConversationStore, error) {
			cfg := config.FromContext(ctx)
			db, err := Open(cfg)
			if err != nil {
				return nil, err
			}
			if _, err := gormstore.ConfigurePool(ctx, db, cfg); err != nil {
				return nil, err
			}
			return gormstore.New(db, gormstore.WithUniqueViolation(IsUniqueViolation)), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
	registrymigrate.RegisterRebuilder(config.DBKindSQLite, func(ctx context.Context) (registrymigrate.Rebuilder, error) {
		db, err := Open(config.FromContext(ctx))
		if err != nil {
			return nil, err
		}
		return NewRebuilder(db), nil
	})
}

// DSN turns the configured path into a go-sqlite3 DSN. Transactions start with
// BEGIN IMMEDIATE so concurrent upserts are serialized by the database lock.
func DSN(cfg *config.Config) string {
	path := strings.TrimSpace(cfg.DBURL)
	if path == "" || path == ":memory:" {
		path = "file::memory:?cache=shared"
	}
	params := []string{
		fmt.Sprintf("_busy_timeout=%d", cfg.DBBusyTimeout.Milliseconds()),
		"_txlock=immediate",
		"_foreign_keys=on",
	}
	if !strings.Contains(path, ":memory:") {
		params = append(params, "_journal_mode=WAL")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// Open connects to the configured SQLite file, creating its directory if needed.
func Open(cfg *config.Config) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("sqlite: missing config")
	}
	if path := strings.TrimSpace(cfg.DBURL); path != "" && !strings.Contains(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(DSN(cfg)), &gorm.Config{
		Logger:         logging.Gorm(cfg.Debug),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a primary key or unique constraint failure.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.ResolvedDBKind() != config.DBKindSQLite {
		return nil // skip if not using sqlite
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := gormstore.AutoMigrate(ctx, db); err != nil {
		return fmt.Errorf("migration: failed to create schema: %w", err)
	}
	log.Info("SQLite schema migration complete")
	return nil
}
