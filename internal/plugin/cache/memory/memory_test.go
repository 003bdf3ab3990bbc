package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/model"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conversation(id string) *model.Conversation {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return &model.Conversation{
		ID:        id,
		Platform:  "chatgpt",
		Title:     "Cached",
		CreatedAt: ts,
		UpdatedAt: ts,
		Messages: []model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "hello", ContentType: model.ContentTypeText, Timestamp: "2024-05-01T08:00:00Z",
				Metadata: model.Metadata{"seq": "1"}},
		},
		Tags:        []string{"a"},
		Metadata:    model.Metadata{"source": "dom", "nested": map[string]interface{}{"k": "v"}},
		DBCreatedAt: ts,
		DBUpdatedAt: ts,
	}
}

func TestGetSetRemove(t *testing.T) {
	c, err := New(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	got, err := c.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, conversation("c1")))
	got, err = c.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Cached", got.Title)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.True(t, got.DBCreatedAt.IsZero(), "bookkeeping timestamps are not cached")

	// Mutating a returned copy leaves the cache alone.
	got.Messages[0].Content = "changed"
	got.Tags[0] = "b"
	got.Metadata["source"] = "changed"
	got.Metadata["nested"].(map[string]interface{})["k"] = "changed"
	got.Messages[0].Metadata["seq"] = "2"
	again, err := c.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Content)
	assert.Equal(t, []string{"a"}, again.Tags)
	assert.Equal(t, model.Metadata{"source": "dom", "nested": map[string]interface{}{"k": "v"}}, again.Metadata)
	assert.Equal(t, model.Metadata{"seq": "1"}, again.Messages[0].Metadata)

	// So does mutating the value that was stored.
	stored := conversation("c2")
	require.NoError(t, c.Set(ctx, stored))
	stored.Metadata["source"] = "changed"
	stored.Messages[0].Metadata["seq"] = "2"
	fromCache, err := c.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "dom", fromCache.Metadata["source"])
	assert.Equal(t, "1", fromCache.Messages[0].Metadata["seq"])

	require.NoError(t, c.Remove(ctx, "c1"))
	got, err = c.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntriesExpire(t *testing.T) {
	c, err := New(100, 20*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, conversation("c1")))
	assert.Eventually(t, func() bool {
		got, err := c.Get(ctx, "c1")
		return err == nil && got == nil
	}, time.Second, 10*time.Millisecond)
}

func TestRegisteredLoader(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CacheMaxEntries = 10
	loader, err := registrycache.Select(config.CacheKindMemory)
	require.NoError(t, err)

	c, err := loader(config.WithContext(context.Background(), &cfg))
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.Available())
}
