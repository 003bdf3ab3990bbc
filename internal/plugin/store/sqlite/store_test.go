package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/plugin/store/gormstore"
	"github.com/chirino/chatmem-service/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/chatmem-service/internal/registry/migrate"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/testutil/storetest"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBURL = filepath.Join(t.TempDir(), "chatmem.db")
	return &cfg
}

func TestStoreSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) registrystore.ConversationStore {
		cfg := testConfig(t)
		db, err := sqlite.Open(cfg)
		require.NoError(t, err)
		require.NoError(t, gormstore.AutoMigrate(context.Background(), db))

		store := gormstore.New(db,
			gormstore.WithClock(now),
			gormstore.WithUniqueViolation(sqlite.IsUniqueViolation),
		)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestRegisteredLoader(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBURL = filepath.Join(t.TempDir(), "nested", "dir", "chatmem.db")
	ctx := config.WithContext(context.Background(), cfg)

	_ = sqlite.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select(config.DBKindSQLite)
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))
	res, err := store.Upsert(ctx, storetest.Conversation("c1", "chatgpt", false))
	require.NoError(t, err)
	require.Equal(t, registrystore.StatusCreated, res.Status)
}

func TestDSN(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBBusyTimeout = 5 * time.Second

	cfg.DBURL = "./chatmem.db"
	require.Equal(t, "./chatmem.db?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on&_journal_mode=WAL", sqlite.DSN(&cfg))

	cfg.DBURL = ":memory:"
	require.Equal(t, "file::memory:?cache=shared&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", sqlite.DSN(&cfg))

	cfg.DBURL = "file:test.db?mode=rwc"
	require.Equal(t, "file:test.db?mode=rwc&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on&_journal_mode=WAL", sqlite.DSN(&cfg))
}
