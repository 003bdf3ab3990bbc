package postgres

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/logging"
	"github.com/chirino/chatmem-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: config.DBKindPostgres,
		Loader: func(ctx context.Context) (registrystore.ConversationStore, error) {
			cfg := config.FromContext(ctx)
			db, err := open(cfg)
			if err != nil {
				return nil, err
			}
			if _, err := gormstore.ConfigurePool(ctx, db, cfg); err != nil {
				return nil, err
			}
			return gormstore.New(db,
				gormstore.WithRowLocking(),
				gormstore.WithUniqueViolation(IsUniqueViolation),
			), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

func open(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{
		Logger:         logging.Gorm(cfg.Debug),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.ResolvedDBKind() != config.DBKindPostgres {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := open(cfg)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Read and execute embedded schema
	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}
