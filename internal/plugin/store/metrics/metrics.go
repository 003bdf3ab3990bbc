package metrics

import (
	"context"
	"time"

	"github.com/chirino/chatmem-service/internal/model"
	"github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/security"
)

// Wrap returns a ConversationStore that records StoreLatency for every operation
// and counts upsert outcomes.
func Wrap(inner store.ConversationStore) store.ConversationStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ConversationStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) Upsert(ctx context.Context, conv *model.Conversation) (*store.UpsertResult, error) {
	defer observe("upsert_conversation", time.Now())
	res, err := m.inner.Upsert(ctx, conv)
	if err == nil {
		security.RecordUpsert(string(res.Status))
	}
	return res, err
}

func (m *metricsStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.Get(ctx, id)
}

func (m *metricsStore) List(ctx context.Context, filter store.ListFilter) ([]model.Conversation, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.List(ctx, filter)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
