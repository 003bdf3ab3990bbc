package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/model"
	"github.com/chirino/chatmem-service/internal/plugin/cache/memory"
	registrycache "github.com/chirino/chatmem-service/internal/registry/cache"
	"github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/security"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	store.ConversationStore
	convs  map[string]*model.Conversation
	gets   int
	closed bool
}

func newCountingStore() *countingStore {
	return &countingStore{convs: map[string]*model.Conversation{}}
}

func (s *countingStore) Upsert(_ context.Context, conv *model.Conversation) (*store.UpsertResult, error) {
	status := store.StatusCreated
	if _, ok := s.convs[conv.ID]; ok {
		status = store.StatusUpdated
	}
	cp := *conv
	s.convs[conv.ID] = &cp
	return &store.UpsertResult{ID: conv.ID, Status: status}, nil
}

func (s *countingStore) Get(_ context.Context, id string) (*model.Conversation, error) {
	s.gets++
	conv, ok := s.convs[id]
	if !ok {
		return nil, &store.NotFoundError{Resource: "conversation", ID: id}
	}
	cp := *conv
	return &cp, nil
}

func (s *countingStore) Close() error {
	s.closed = true
	return nil
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Available() bool { return true }
func (brokenCache) Get(context.Context, string) (*model.Conversation, error) {
	return nil, errors.New("cache down")
}
func (brokenCache) Set(context.Context, *model.Conversation) error { return errors.New("cache down") }
func (brokenCache) Remove(context.Context, string) error           { return errors.New("cache down") }
func (brokenCache) Close() error                                   { return nil }

var _ registrycache.ConversationCache = brokenCache{}

func newMemoryCache(t *testing.T) registrycache.ConversationCache {
	t.Helper()
	c, err := memory.New(100, time.Minute)
	require.NoError(t, err)
	return c
}

func TestGetIsServedFromCache(t *testing.T) {
	security.InitMetrics(nil)
	hits := testutil.ToFloat64(security.CacheLookupsTotal.WithLabelValues("hit"))

	inner := newCountingStore()
	s := Wrap(inner, newMemoryCache(t))
	defer s.Close()
	ctx := context.Background()

	_, err := s.Upsert(ctx, &model.Conversation{ID: "c1", Title: "first"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		conv, err := s.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "first", conv.Title)
	}
	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, hits+2, testutil.ToFloat64(security.CacheLookupsTotal.WithLabelValues("hit")))
}

func TestUpsertInvalidates(t *testing.T) {
	inner := newCountingStore()
	s := Wrap(inner, newMemoryCache(t))
	defer s.Close()
	ctx := context.Background()

	_, err := s.Upsert(ctx, &model.Conversation{ID: "c1", Title: "first"})
	require.NoError(t, err)
	_, err = s.Get(ctx, "c1")
	require.NoError(t, err)

	res, err := s.Upsert(ctx, &model.Conversation{ID: "c1", Title: "second"})
	require.NoError(t, err)
	assert.Equal(t, store.StatusUpdated, res.Status)

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "second", conv.Title)
	assert.Equal(t, 2, inner.gets)
}

func TestMissesAreNotCached(t *testing.T) {
	inner := newCountingStore()
	s := Wrap(inner, newMemoryCache(t))
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Get(ctx, "missing")
		var notFound *store.NotFoundError
		require.ErrorAs(t, err, &notFound)
	}
	assert.Equal(t, 2, inner.gets)
}

func TestCacheFailuresFallThrough(t *testing.T) {
	inner := newCountingStore()
	s := Wrap(inner, brokenCache{})
	ctx := context.Background()

	_, err := s.Upsert(ctx, &model.Conversation{ID: "c1", Title: "first"})
	require.NoError(t, err)
	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "first", conv.Title)

	require.NoError(t, s.Close())
	assert.True(t, inner.closed)
}
