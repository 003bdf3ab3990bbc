package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
)

// Migrator runs schema migrations for a single plugin.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin represents a migrator with an order for deterministic execution sequence.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// RunAll executes all registered migrators sorted by Order.
func RunAll(ctx context.Context) error {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	for _, p := range sorted {
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}

// Rebuilder implements the offline table maintenance modes. They rely on
// engine specific DDL, so only backends that support them register one.
type Rebuilder interface {
	// Rebuild copies the conversations table into a table with the current
	// schema, swaps it into place and recreates the secondary indexes.
	Rebuild(ctx context.Context) error
	// RecreateAll drops every table and creates the schema from scratch.
	RecreateAll(ctx context.Context) error
	Close() error
}

// RebuilderLoader opens a Rebuilder against the database configured in ctx.
type RebuilderLoader func(ctx context.Context) (Rebuilder, error)

var rebuilders = map[string]RebuilderLoader{}

// RegisterRebuilder makes a Rebuilder available for the named store kind.
func RegisterRebuilder(kind string, loader RebuilderLoader) {
	rebuilders[kind] = loader
}

// SelectRebuilder returns the loader for the given store kind, or a
// *PreconditionError when that backend does not support table rebuilds.
func SelectRebuilder(kind string) (RebuilderLoader, error) {
	loader, ok := rebuilders[kind]
	if !ok {
		log.Error("Table rebuild refused", "backend", kind)
		return nil, &PreconditionError{Backend: kind}
	}
	return loader, nil
}

// PreconditionError is returned before any mutation when a maintenance mode
// is requested against a backend that cannot run it.
type PreconditionError struct {
	Backend string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("table rebuild is only supported for sqlite databases, not %q", e.Backend)
}
