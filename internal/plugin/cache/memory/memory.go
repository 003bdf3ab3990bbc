// Package memory is an in-process conversation cache for single instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/model"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: config.CacheKindMemory,
		Loader: func(ctx context.Context) (registrycache.ConversationCache, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("memory cache: missing config")
			}
			return New(cfg.CacheMaxEntries, cfg.CacheTTL)
		},
	})
}

// Cache stores copies of conversations, each costing one unit of maxEntries.
type Cache struct {
	cache *ristretto.Cache[string, model.Conversation]
	ttl   time.Duration
}

var _ registrycache.ConversationCache = (*Cache)(nil)

// New creates a cache holding up to maxEntries conversations for ttl each.
func New(maxEntries int64, ttl time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, model.Conversation]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(_ context.Context, id string) (*model.Conversation, error) {
	conv, ok := c.cache.Get(id)
	if !ok {
		return nil, nil
	}
	out := clone(&conv)
	return &out, nil
}

// Set stores a copy of conv. Writes are buffered; Set waits until the value
// is visible so a following Get sees it.
func (c *Cache) Set(_ context.Context, conv *model.Conversation) error {
	c.cache.SetWithTTL(conv.ID, clone(conv), 1, c.ttl)
	c.cache.Wait()
	return nil
}

func (c *Cache) Remove(_ context.Context, id string) error {
	c.cache.Del(id)
	return nil
}

func (c *Cache) Close() error {
	c.cache.Close()
	return nil
}

// clone deep copies conv so callers cannot mutate the cached value.
func clone(conv *model.Conversation) model.Conversation {
	out := *conv
	out.Messages = make([]model.Message, len(conv.Messages))
	for i, m := range conv.Messages {
		m.Metadata = m.Metadata.Clone()
		out.Messages[i] = m
	}
	if conv.Tags != nil {
		out.Tags = append([]string(nil), conv.Tags...)
	}
	out.Metadata = conv.Metadata.Clone()
	if conv.Summary != nil {
		summary := *conv.Summary
		out.Summary = &summary
	}
	if conv.ProcessedAt != nil {
		processedAt := *conv.ProcessedAt
		out.ProcessedAt = &processedAt
	}
	out.DBCreatedAt = time.Time{}
	out.DBUpdatedAt = time.Time{}
	return out
}
