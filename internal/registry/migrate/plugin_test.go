package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMigrator struct {
	name  string
	calls *[]string
	err   error
}

func (m recordingMigrator) Name() string { return m.name }
func (m recordingMigrator) Migrate(context.Context) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}

func TestRunAllOrdersAndStops(t *testing.T) {
	saved := plugins
	t.Cleanup(func() { plugins = saved })
	plugins = nil

	var calls []string
	boom := errors.New("boom")
	Register(Plugin{Order: 20, Migrator: recordingMigrator{name: "second", calls: &calls, err: boom}})
	Register(Plugin{Order: 10, Migrator: recordingMigrator{name: "first", calls: &calls}})
	Register(Plugin{Order: 30, Migrator: recordingMigrator{name: "third", calls: &calls}})

	err := RunAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "migration second failed")
	assert.Equal(t, []string{"first", "second"}, calls)
}

type nopRebuilder struct{}

func (nopRebuilder) Rebuild(context.Context) error     { return nil }
func (nopRebuilder) RecreateAll(context.Context) error { return nil }
func (nopRebuilder) Close() error                      { return nil }

func TestSelectRebuilder(t *testing.T) {
	saved := rebuilders
	t.Cleanup(func() { rebuilders = saved })
	rebuilders = map[string]RebuilderLoader{}

	RegisterRebuilder("sqlite", func(context.Context) (Rebuilder, error) { return nopRebuilder{}, nil })

	loader, err := SelectRebuilder("sqlite")
	require.NoError(t, err)
	r, err := loader(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Rebuild(context.Background()))

	_, err = SelectRebuilder("postgres")
	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Equal(t, "postgres", precondition.Backend)
	assert.Contains(t, err.Error(), "only supported for sqlite")
}
