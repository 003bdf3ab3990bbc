// Package cached puts a read-through ConversationCache in front of a store.
package cached

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/chirino/chatmem-service/internal/model"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	"github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/security"
)

// Wrap serves Get from c when possible and drops the cached copy after every
// upsert of the same ID. Cache failures are logged and fall through to inner.
func Wrap(inner store.ConversationStore, c registrycache.ConversationCache) store.ConversationStore {
	return &cachedStore{inner: inner, cache: c}
}

type cachedStore struct {
	inner store.ConversationStore
	cache registrycache.ConversationCache
}

func (s *cachedStore) Upsert(ctx context.Context, conv *model.Conversation) (*store.UpsertResult, error) {
	res, err := s.inner.Upsert(ctx, conv)
	// Invalidate even on failure; the write may have committed.
	if rerr := s.cache.Remove(ctx, conv.ID); rerr != nil {
		log.Warn("Failed to invalidate cached conversation", "id", conv.ID, "err", rerr)
	}
	return res, err
}

func (s *cachedStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		security.RecordCacheLookup("error")
		log.Warn("Conversation cache lookup failed", "id", id, "err", err)
	case conv != nil:
		security.RecordCacheLookup("hit")
		return conv, nil
	default:
		security.RecordCacheLookup("miss")
	}

	conv, err = s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, conv); err != nil {
		log.Warn("Failed to cache conversation", "id", id, "err", err)
	}
	return conv, nil
}

func (s *cachedStore) List(ctx context.Context, filter store.ListFilter) ([]model.Conversation, error) {
	return s.inner.List(ctx, filter)
}

func (s *cachedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *cachedStore) Close() error {
	return errors.Join(s.inner.Close(), s.cache.Close())
}
