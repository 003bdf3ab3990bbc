package cache

import (
	"context"
	"fmt"

	"github.com/chirino/chatmem-service/internal/model"
)

// ConversationCache holds recently read conversations keyed by ID.
// Cached copies omit the bookkeeping timestamps.
type ConversationCache interface {
	// Available is false for the no-op cache so callers can skip wrapping.
	Available() bool
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Set(ctx context.Context, conv *model.Conversation) error
	Remove(ctx context.Context, id string) error
	Close() error
}

// Loader creates a cache from the config carried in ctx.
type Loader func(ctx context.Context) (ConversationCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
