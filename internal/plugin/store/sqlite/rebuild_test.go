package sqlite_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/plugin/store/gormstore"
	"github.com/chirino/chatmem-service/internal/plugin/store/sqlite"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/testutil/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func indexNames(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var names []string
	require.NoError(t, db.Raw(
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'conversations' AND name NOT LIKE 'sqlite_%'`,
	).Scan(&names).Error)
	sort.Strings(names)
	return names
}

func TestRebuildPreservesRows(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	db, err := sqlite.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, gormstore.AutoMigrate(ctx, db))

	clock := storetest.NewClock()
	store := gormstore.New(db, gormstore.WithClock(clock.Now))
	const rows = 25
	for i := 0; i < rows; i++ {
		_, err := store.Upsert(ctx, storetest.Conversation(fmt.Sprintf("c%02d", i), "chatgpt", i%2 == 0))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	before, err := store.List(ctx, registrystore.ListFilter{Limit: 1000})
	require.NoError(t, err)

	rebuilder := sqlite.NewRebuilder(db)
	require.NoError(t, rebuilder.Rebuild(ctx))

	after, err := store.List(ctx, registrystore.ListFilter{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, after, rows)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Messages, after[i].Messages)
		assert.True(t, before[i].DBCreatedAt.Equal(after[i].DBCreatedAt))
		assert.True(t, before[i].DBUpdatedAt.Equal(after[i].DBUpdatedAt))
	}

	for _, want := range []string{"idx_created_at", "idx_platform_processed", "idx_updated_at"} {
		assert.Contains(t, indexNames(t, db), want)
	}
	assert.False(t, db.Migrator().HasTable("conversations_new"))

	// A second rebuild over the rebuilt table is a no-op for the data.
	require.NoError(t, rebuilder.Rebuild(ctx))
	again, err := store.List(ctx, registrystore.ListFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, again, rows)
}

func TestRebuildUpgradesLegacyTable(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(testConfig(t))
	require.NoError(t, err)

	// Shape of tables written before summary, metadata and the bookkeeping columns existed.
	require.NoError(t, db.Exec(`CREATE TABLE conversations (
		id VARCHAR(255) PRIMARY KEY,
		platform VARCHAR(50),
		title VARCHAR(500),
		url VARCHAR(1000),
		created_at DATETIME,
		updated_at DATETIME,
		messages JSON,
		processed BOOLEAN,
		processed_at DATETIME,
		tags JSON
	)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO conversations (id, platform, title, url, created_at, updated_at, messages, processed, processed_at, tags)
		VALUES ('old-1', 'claude', NULL, 'https://claude.ai/chat/1', '2024-01-01 09:00:00+00:00', '2024-01-01 09:10:00+00:00',
		'[{"id":"m1","role":"user","content":"hi","contentType":"text","timestamp":"2024-01-01T09:00:00Z"}]', NULL, '', '["x"]')`).Error)

	require.NoError(t, sqlite.NewRebuilder(db).Rebuild(ctx))

	store := gormstore.New(db)
	got, err := store.Get(ctx, "old-1")
	require.NoError(t, err)
	assert.Equal(t, "claude", got.Platform)
	assert.Equal(t, "", got.Title)
	assert.False(t, got.Processed)
	assert.Nil(t, got.ProcessedAt)
	assert.Equal(t, []string{"x"}, got.Tags)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.False(t, got.DBCreatedAt.IsZero())

	assert.True(t, db.Migrator().HasColumn("conversations", "summary"))
	assert.True(t, db.Migrator().HasColumn("conversations", "db_updated_at"))
}

func TestRebuildWithoutLiveTable(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, sqlite.NewRebuilder(db).Rebuild(ctx))
	assert.True(t, db.Migrator().HasTable("conversations"))
	assert.Contains(t, indexNames(t, db), "idx_db_updated_at")
}

func TestRecreateAllDropsEverything(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, gormstore.AutoMigrate(ctx, db))
	require.NoError(t, db.Exec(`CREATE TABLE scratch (id INTEGER)`).Error)

	store := gormstore.New(db)
	_, err = store.Upsert(ctx, storetest.Conversation("c1", "chatgpt", false))
	require.NoError(t, err)

	require.NoError(t, sqlite.NewRebuilder(db).RecreateAll(ctx))

	assert.False(t, db.Migrator().HasTable("scratch"))
	assert.True(t, db.Migrator().HasTable("conversations"))
	list, err := store.List(ctx, registrystore.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Contains(t, indexNames(t, db), "idx_platform_processed")
}
