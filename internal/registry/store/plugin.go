package store

import (
	"context"
	"fmt"

	"github.com/chirino/chatmem-service/internal/model"
)

// UpsertStatus reports which branch an upsert took.
type UpsertStatus string

const (
	StatusCreated UpsertStatus = "created"
	StatusUpdated UpsertStatus = "updated"
)

// UpsertResult is returned by ConversationStore.Upsert.
type UpsertResult struct {
	ID     string       `json:"id"`
	Status UpsertStatus `json:"status"`
}

// ListFilter selects and pages conversations. Nil filters match everything.
type ListFilter struct {
	Platform  *string
	Processed *bool
	Skip      int
	Limit     int
}

// ConversationStore persists conversations.
type ConversationStore interface {
	// Upsert creates the conversation when its ID is unseen and otherwise
	// replaces every mutable field of the stored row.
	Upsert(ctx context.Context, conv *model.Conversation) (*UpsertResult, error)
	// Get returns a *NotFoundError when no conversation has the given ID.
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// List returns conversations most recently written first.
	List(ctx context.Context, filter ListFilter) ([]model.Conversation, error)
	Ping(ctx context.Context) error
	Close() error
}

// Loader creates a ConversationStore from the config carried in ctx.
type Loader func(ctx context.Context) (ConversationStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
