package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/model"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   config.CacheKindRedis,
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ConversationCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: CHATMEM_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURL connects to a Redis-compatible server and checks it answers.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.ConversationCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisCache{client: client, ttl: ttl}, nil
}

type redisCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func conversationKey(id string) string {
	return "chatmem:conversation:" + id
}

func (c *redisCache) Available() bool {
	return true
}

func (c *redisCache) Get(ctx context.Context, id string) (*model.Conversation, error) {
	data, err := c.client.Get(ctx, conversationKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	conv.Normalize()
	return &conv, nil
}

func (c *redisCache) Set(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, conversationKey(conv.ID), data, c.ttl).Err()
}

func (c *redisCache) Remove(ctx context.Context, id string) error {
	return c.client.Del(ctx, conversationKey(id)).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

var _ registrycache.ConversationCache = (*redisCache)(nil)
