package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHooks(t *testing.T, hs ...Hook) {
	t.Helper()
	saved := hooks
	hooks = nil
	for _, h := range hs {
		Register(h)
	}
	t.Cleanup(func() { hooks = saved })
}

func TestStartAllRunsInOrder(t *testing.T) {
	var calls []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			calls = append(calls, name)
			return nil
		}
	}
	withHooks(t,
		Hook{Name: "late", Order: 10, Start: record("start-late"), Stop: record("stop-late")},
		Hook{Name: "early", Order: 1, Start: record("start-early"), Stop: record("stop-early")},
		Hook{Name: "stop-only", Order: 5, Stop: record("stop-only")},
	)

	require.NoError(t, StartAll(context.Background()))
	require.NoError(t, StopAll(context.Background()))
	assert.Equal(t, []string{"start-early", "start-late", "stop-late", "stop-only", "stop-early"}, calls)
}

func TestStartAllStopsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	withHooks(t,
		Hook{Name: "bad", Order: 1, Start: func(context.Context) error { return boom }},
		Hook{Name: "after", Order: 2, Start: func(context.Context) error { ran = true; return nil }},
	)

	err := StartAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
	assert.False(t, ran)
}

func TestStopAllJoinsFailures(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	withHooks(t,
		Hook{Name: "a", Order: 1, Stop: func(context.Context) error { return first }},
		Hook{Name: "b", Order: 2, Stop: func(context.Context) error { return second }},
	)

	err := StopAll(context.Background())
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}
