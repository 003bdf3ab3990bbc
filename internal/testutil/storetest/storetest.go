// Package storetest is a behavioural suite every ConversationStore must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chirino/chatmem-service/internal/model"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store whose bookkeeping timestamps come from now.
type Factory func(t *testing.T, now func() time.Time) registrystore.ConversationStore

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Conversation returns a valid conversation with one message.
func Conversation(id, platform string, processed bool) *model.Conversation {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	summary := "a short summary"
	return &model.Conversation{
		ID:        id,
		Platform:  platform,
		Title:     "Conversation " + id,
		URL:       "https://chat.example.com/c/" + id,
		CreatedAt: created,
		UpdatedAt: created.Add(5 * time.Minute),
		Messages: []model.Message{{
			ID:          id + "-m1",
			Role:        model.RoleUser,
			Content:     "hello",
			ContentType: model.ContentTypeText,
			Timestamp:   "2024-05-01T10:00:00Z",
			Metadata:    model.Metadata{"source": "dom"},
		}},
		Processed: processed,
		Tags:      []string{"go", "sqlite"},
		Summary:   &summary,
		Metadata:  model.Metadata{"model": "gpt-4o"},
	}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertCreatesThenUpdates", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, clock.Now)
		ctx := context.Background()

		res, err := store.Upsert(ctx, Conversation("c1", "chatgpt", false))
		require.NoError(t, err)
		assert.Equal(t, "c1", res.ID)
		assert.Equal(t, registrystore.StatusCreated, res.Status)
		first, err := store.Get(ctx, "c1")
		require.NoError(t, err)

		clock.Advance(time.Minute)
		res, err = store.Upsert(ctx, Conversation("c1", "chatgpt", false))
		require.NoError(t, err)
		assert.Equal(t, registrystore.StatusUpdated, res.Status)
		second, err := store.Get(ctx, "c1")
		require.NoError(t, err)

		assertSameContent(t, first, second)
		assert.True(t, first.DBCreatedAt.Equal(second.DBCreatedAt))
		assert.True(t, clock.Now().Equal(second.DBUpdatedAt))

		list, err := store.List(ctx, registrystore.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("MetadataKeepsLargeIntegers", func(t *testing.T) {
		store := newStore(t, NewClock().Now)
		ctx := context.Background()

		want := Conversation("big", "chatgpt", false)
		want.Metadata = model.Metadata{
			"big":    json.Number("12345678901234567890"),
			"nested": map[string]interface{}{"id": json.Number("9007199254740993")},
			"ratio":  json.Number("0.5"),
		}
		want.Messages[0].Metadata = model.Metadata{"seq": json.Number("9007199254740993")}
		_, err := store.Upsert(ctx, want)
		require.NoError(t, err)

		got, err := store.Get(ctx, "big")
		require.NoError(t, err)
		assert.Equal(t, want.Metadata, got.Metadata)
		assert.Equal(t, want.Messages[0].Metadata, got.Messages[0].Metadata)
	})

	t.Run("GetRoundTrip", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, clock.Now)
		ctx := context.Background()

		want := Conversation("c1", "claude", true)
		processedAt := time.Date(2024, 5, 2, 8, 30, 0, 123000000, time.UTC)
		want.ProcessedAt = &processedAt
		_, err := store.Upsert(ctx, want)
		require.NoError(t, err)

		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Platform, got.Platform)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.URL, got.URL)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", want.CreatedAt, got.CreatedAt)
		assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updatedAt %v != %v", want.UpdatedAt, got.UpdatedAt)
		require.NotNil(t, got.ProcessedAt)
		assert.True(t, processedAt.Equal(*got.ProcessedAt))
		assert.Equal(t, want.Messages, got.Messages)
		assert.True(t, got.Processed)
		assert.Equal(t, want.Tags, got.Tags)
		require.NotNil(t, got.Summary)
		assert.Equal(t, *want.Summary, *got.Summary)
		assert.Equal(t, want.Metadata, got.Metadata)
		assert.True(t, clock.Now().Equal(got.DBCreatedAt))
		assert.True(t, clock.Now().Equal(got.DBUpdatedAt))
	})

	t.Run("UpdateReplacesEveryField", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, clock.Now)
		ctx := context.Background()

		_, err := store.Upsert(ctx, Conversation("c1", "chatgpt", false))
		require.NoError(t, err)
		firstWrite := clock.Now()

		clock.Advance(time.Hour)
		next := Conversation("c1", "gemini", true)
		next.Title = "renamed"
		next.Summary = nil
		next.Tags = nil
		next.Metadata = nil
		next.Messages = append(next.Messages, model.Message{
			ID: "c1-m2", Role: model.RoleAssistant, Content: "fmt.Println()", ContentType: model.ContentTypeCode,
			Timestamp: "2024-05-01T10:01:00+02:00",
		})
		_, err = store.Upsert(ctx, next)
		require.NoError(t, err)

		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "gemini", got.Platform)
		assert.Equal(t, "renamed", got.Title)
		assert.True(t, got.Processed)
		assert.Nil(t, got.Summary)
		assert.Empty(t, got.Tags)
		assert.Empty(t, got.Metadata)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "2024-05-01T10:01:00+02:00", got.Messages[1].Timestamp)
		assert.True(t, firstWrite.Equal(got.DBCreatedAt), "db_created_at must survive updates")
		assert.True(t, clock.Now().Equal(got.DBUpdatedAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t, NewClock().Now)
		_, err := store.Get(context.Background(), "nope")
		var notFound *registrystore.NotFoundError
		require.True(t, errors.As(err, &notFound), "got %v", err)
		assert.Equal(t, "nope", notFound.ID)
	})

	t.Run("ListOrdersByLastWrite", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, clock.Now)
		ctx := context.Background()

		for _, id := range []string{"a", "b", "c"} {
			_, err := store.Upsert(ctx, Conversation(id, "chatgpt", false))
			require.NoError(t, err)
			clock.Advance(time.Second)
		}
		_, err := store.Upsert(ctx, Conversation("a", "chatgpt", false))
		require.NoError(t, err)

		list, err := store.List(ctx, registrystore.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "b"}, ids(list))
	})

	t.Run("ListFiltersAndPages", func(t *testing.T) {
		clock := NewClock()
		store := newStore(t, clock.Now)
		ctx := context.Background()

		fixtures := []struct {
			id        string
			platform  string
			processed bool
		}{
			{"p1", "chatgpt", false},
			{"p2", "chatgpt", true},
			{"p3", "claude", false},
			{"p4", "claude", true},
			{"p5", "chatgpt", false},
		}
		for _, f := range fixtures {
			_, err := store.Upsert(ctx, Conversation(f.id, f.platform, f.processed))
			require.NoError(t, err)
			clock.Advance(time.Second)
		}

		chatgpt := "chatgpt"
		yes, no := true, false

		list, err := store.List(ctx, registrystore.ListFilter{Platform: &chatgpt})
		require.NoError(t, err)
		assert.Equal(t, []string{"p5", "p2", "p1"}, ids(list))

		list, err = store.List(ctx, registrystore.ListFilter{Processed: &yes})
		require.NoError(t, err)
		assert.Equal(t, []string{"p4", "p2"}, ids(list))

		list, err = store.List(ctx, registrystore.ListFilter{Platform: &chatgpt, Processed: &no})
		require.NoError(t, err)
		assert.Equal(t, []string{"p5", "p1"}, ids(list))

		list, err = store.List(ctx, registrystore.ListFilter{Skip: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"p4", "p3"}, ids(list))

		list, err = store.List(ctx, registrystore.ListFilter{Skip: 10, Limit: 2})
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("ConcurrentUpsertsOfOneID", func(t *testing.T) {
		store := newStore(t, time.Now)
		ctx := context.Background()

		const writers = 8
		var wg sync.WaitGroup
		statuses := make(chan registrystore.UpsertStatus, writers)
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := store.Upsert(ctx, Conversation("shared", "chatgpt", false))
				if err != nil {
					errs <- err
					return
				}
				statuses <- res.Status
			}()
		}
		wg.Wait()
		close(statuses)
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		created := 0
		for s := range statuses {
			if s == registrystore.StatusCreated {
				created++
			}
		}
		assert.Equal(t, 1, created)

		list, err := store.List(ctx, registrystore.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

// assertSameContent compares every caller supplied field of two conversations.
func assertSameContent(t *testing.T, want, got *model.Conversation) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Platform, got.Platform)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.URL, got.URL)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updatedAt %v != %v", want.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, want.Messages, got.Messages)
	assert.Equal(t, want.Processed, got.Processed)
	if want.ProcessedAt == nil {
		assert.Nil(t, got.ProcessedAt)
	} else if assert.NotNil(t, got.ProcessedAt) {
		assert.True(t, want.ProcessedAt.Equal(*got.ProcessedAt))
	}
	assert.Equal(t, want.Tags, got.Tags)
	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.Metadata, got.Metadata)
}

func ids(list []model.Conversation) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}
