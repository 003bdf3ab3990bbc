package noop

import (
	"context"

	"github.com/chirino/chatmem-service/internal/config"
	"github.com/chirino/chatmem-service/internal/model"
	"github.com/chirino/chatmem-service/internal/registry/cache"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	cache.Register(cache.Plugin{
		Name: config.CacheKindNone,
		Loader: func(ctx context.Context) (cache.ConversationCache, error) {
			return &noopCache{}, nil
		},
	})
}

type noopCache struct{}

func (n *noopCache) Available() bool { return false }
func (n *noopCache) Get(_ context.Context, _ string) (*model.Conversation, error) {
	return nil, nil
}
func (n *noopCache) Set(_ context.Context, _ *model.Conversation) error { return nil }
func (n *noopCache) Remove(_ context.Context, _ string) error           { return nil }
func (n *noopCache) Close() error                                       { return nil }

var _ cache.ConversationCache = (*noopCache)(nil)
