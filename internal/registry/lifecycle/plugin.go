package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Hook is notified when the server has started listening and when it begins
// shutting down. Either function may be nil.
type Hook struct {
	Name  string
	Order int
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

var hooks []Hook

// Register adds a lifecycle hook. Called from init() in plugin packages.
func Register(h Hook) {
	hooks = append(hooks, h)
}

func sorted() []Hook {
	out := make([]Hook, len(hooks))
	copy(out, hooks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// StartAll runs every Start hook in order and stops at the first failure.
func StartAll(ctx context.Context) error {
	for _, h := range sorted() {
		if h.Start == nil {
			continue
		}
		if err := h.Start(ctx); err != nil {
			return fmt.Errorf("startup hook %s failed: %w", h.Name, err)
		}
	}
	return nil
}

// StopAll runs every Stop hook in reverse order. All hooks run even when
// some of them fail; the failures are joined.
func StopAll(ctx context.Context) error {
	all := sorted()
	var errs []error
	for i := len(all) - 1; i >= 0; i-- {
		h := all[i]
		if h.Stop == nil {
			continue
		}
		if err := h.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown hook %s failed: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}
