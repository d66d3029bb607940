// Package print writes a summary of every published coredump to the log.
// It is the simplest notifier and handy when nothing collects coredumps yet.
package print

import (
	"context"

	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/engine"
	"github.com/specialistvlad/dpudbg/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the "print" notifier kind.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterNotifier("print", func(context.Context, *config.Notifier) (engine.Subscriber, error) {
		return engine.SubscriberFunc(onCoredump), nil
	})
}

func onCoredump(ctx context.Context, a *coredump.Artifact) error {
	size, err := a.Size()
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Coredump ready for reading.",
		"id", a.ID,
		"module", a.Module,
		"origin", a.Origin,
		"timestamp", a.Timestamp,
		"size", size,
	)
	return nil
}
