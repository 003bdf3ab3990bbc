package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/model"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	"github.com/chirino/chatmem-service/internal/testutil/testredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	url := testredis.StartRedis(t)
	ctx := context.Background()

	c, err := LoadFromURL(ctx, url, time.Minute)
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Available())

	processed := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	summary := "trip planning"
	conv := &model.Conversation{
		ID:        "conv-1",
		Platform:  "claude",
		Title:     "Trip",
		URL:       "https://claude.ai/chat/conv-1",
		CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 5, 1, 8, 5, 0, 0, time.UTC),
		Messages: []model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "hi", ContentType: model.ContentTypeText, Timestamp: "2024-05-01T08:00:00Z"},
		},
		Processed:   true,
		ProcessedAt: &processed,
		Tags:        []string{"travel"},
		Summary:     &summary,
		Metadata:    map[string]interface{}{"source": "extension"},
	}

	got, err := c.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, conv))
	got, err = c.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, conv.Title, got.Title)
	assert.True(t, conv.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, processed.Equal(*got.ProcessedAt))
	assert.Equal(t, conv.Messages, got.Messages)
	assert.Equal(t, conv.Tags, got.Tags)
	assert.Equal(t, "extension", got.Metadata["source"])

	require.NoError(t, c.Remove(ctx, conv.ID))
	got, err = c.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadRequiresURL(t *testing.T) {
	cfg := config.DefaultConfig()
	loader, err := registrycache.Select(config.CacheKindRedis)
	require.NoError(t, err)
	_, err = loader(config.WithContext(context.Background(), &cfg))
	require.ErrorContains(t, err, "CHATMEM_REDIS_URL")
}

func TestLoadRejectsBadURL(t *testing.T) {
	_, err := LoadFromURL(context.Background(), "http://not-redis", time.Minute)
	require.ErrorContains(t, err, "invalid URL")
}
