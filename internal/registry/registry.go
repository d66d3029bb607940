package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/specialistvlad/dpudbg/internal/engine"
)

// Module is the interface that every notifier module implements.
type Module interface {
	Register(r *Registry)
}

// Factory builds a subscriber from its configuration.
type Factory func(ctx context.Context, n *config.Notifier) (engine.Subscriber, error)

// Registry holds the notifier factories of one application instance.
type Registry struct {
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterNotifier binds kind to f. Registering a kind twice is a programming
// error and panics.
func (r *Registry) RegisterNotifier(kind string, f Factory) {
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("notifier kind '%s' already registered", kind))
	}
	slog.Debug("Registering notifier.", "kind", kind)
	r.factories[kind] = f
}

// Kinds returns the registered kinds in lexical order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build creates one subscriber per configured notifier, in order.
func (r *Registry) Build(ctx context.Context, defs []*config.Notifier) ([]engine.Subscriber, error) {
	if err := r.Validate(defs); err != nil {
		return nil, err
	}
	subs := make([]engine.Subscriber, 0, len(defs))
	for _, d := range defs {
		s, err := r.factories[d.Kind](ctx, d)
		if err != nil {
			closeAll(subs)
			return nil, fmt.Errorf("notifier %q: %w", d.Kind, err)
		}
		subs = append(subs, s)
	}
	return subs, nil
}

// closeAll closes the subscribers that hold resources.
func closeAll(subs []engine.Subscriber) {
	for _, s := range subs {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
