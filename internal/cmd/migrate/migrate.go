package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/cmd/serve"
	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/logging"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Store plugins register their migrators and rebuilders alongside their primary interface.
	_ "github.com/chirino/chatmem-service/internal/plugin/store/postgres"
	_ "github.com/chirino/chatmem-service/internal/plugin/store/sqlite"
)

// Mode selects what the migrate command does.
type Mode int

const (
	// ModeSchema creates missing tables and indexes and leaves data alone.
	ModeSchema Mode = iota
	// ModeRebuild copies the conversations table into the current schema.
	ModeRebuild
	// ModeRecreate drops every table and recreates the schema.
	ModeRecreate
)

func (m Mode) String() string {
	switch m {
	case ModeRebuild:
		return "rebuild"
	case ModeRecreate:
		return "recreate"
	default:
		return "schema"
	}
}

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var rebuild, recreate bool
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "rebuild",
			Category:    "Mode:",
			Destination: &rebuild,
			Usage:       "Rebuild the conversations table in place, keeping every row (sqlite only)",
		},
		&cli.BoolFlag{
			Name:        "recreate",
			Category:    "Mode:",
			Destination: &recreate,
			Usage:       "Drop all tables and recreate the schema; ALL DATA IS LOST (sqlite only)",
		},
	}
	flags = append(flags, serve.DatabaseFlags(&cfg)...)
	flags = append(flags, serve.LoggingFlags(&cfg)...)

	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the database schema or rebuild the conversations table",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if rebuild && recreate {
				return errors.New("--rebuild and --recreate are mutually exclusive")
			}
			if err := cfg.ApplyCompatFromEnv(); err != nil {
				return err
			}
			if err := logging.Configure(cfg.LogLevel, cfg.LogFormat, cfg.Debug); err != nil {
				return err
			}
			mode := ModeSchema
			switch {
			case rebuild:
				mode = ModeRebuild
			case recreate:
				mode = ModeRecreate
			}
			return Run(config.WithContext(ctx, &cfg), mode)
		},
	}
}

// Run executes mode against the database configured in ctx. The rebuild modes
// return *registrymigrate.PreconditionError, before touching the database,
// when the configured backend is not sqlite.
func Run(ctx context.Context, mode Mode) error {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return errors.New("migrate: missing config")
	}

	if mode == ModeSchema {
		cfg.DatastoreMigrateAtStart = true
		log.Info("Running migrations...", "db", cfg.ResolvedDBKind())
		if err := registrymigrate.RunAll(ctx); err != nil {
			return err
		}
		log.Info("All migrations completed successfully")
		return nil
	}

	loader, err := registrymigrate.SelectRebuilder(cfg.ResolvedDBKind())
	if err != nil {
		return err
	}
	rebuilder, err := loader(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() {
		if err := rebuilder.Close(); err != nil {
			log.Warn("Failed to close database", "err", err)
		}
	}()

	log.Info("Starting table maintenance", "mode", mode, "db", cfg.DBURL)
	switch mode {
	case ModeRebuild:
		err = rebuilder.Rebuild(ctx)
	case ModeRecreate:
		err = rebuilder.RecreateAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", mode, err)
	}
	log.Info("Table maintenance completed successfully", "mode", mode)
	return nil
}
