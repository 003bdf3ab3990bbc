package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/plugin/store/gormstore"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/testutil/storetest"
	"github.com/chirino/chatmem-service/internal/testutil/testpg"
	"github.com/stretchr/testify/require"
)

func startDB(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBURL = testpg.StartPostgres(t)
	return &cfg
}

func TestStoreSuite(t *testing.T) {
	// One container for every case; each case starts from an empty table.
	cfg := startDB(t)
	require.NoError(t, registrymigrate.RunAll(config.WithContext(context.Background(), cfg)))

	storetest.Run(t, func(t *testing.T, now func() time.Time) registrystore.ConversationStore {
		db, err := open(cfg)
		require.NoError(t, err)
		require.NoError(t, db.Exec(`TRUNCATE conversations`).Error)

		store := gormstore.New(db,
			gormstore.WithClock(now),
			gormstore.WithRowLocking(),
			gormstore.WithUniqueViolation(IsUniqueViolation),
		)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestSchemaMigrationIsIdempotent(t *testing.T) {
	cfg := startDB(t)
	ctx := config.WithContext(context.Background(), cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))
	require.NoError(t, registrymigrate.RunAll(ctx))

	db, err := open(cfg)
	require.NoError(t, err)
	for _, idx := range []string{"idx_platform_processed", "idx_created_at", "idx_updated_at", "idx_db_updated_at"} {
		require.True(t, db.Migrator().HasIndex("conversations", idx), idx)
	}
}

func TestRebuildIsRefused(t *testing.T) {
	_, err := registrymigrate.SelectRebuilder(config.DBKindPostgres)
	var precondition *registrymigrate.PreconditionError
	require.ErrorAs(t, err, &precondition)
	require.Equal(t, config.DBKindPostgres, precondition.Backend)
}
