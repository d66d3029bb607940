package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/dump"
)

// Request asks for one capture.
type Request struct {
	Context dump.PowerContext
	// Origin names the caller in logs, artifacts and the halt message.
	Origin string
	// Targets are block names. Use DumpAll for every block.
	Targets []string
	// DumpAll captures every block regardless of Targets.
	DumpAll bool
	// Escalate halts the process once the capture is complete.
	Escalate bool
}

// NewRequest builds a request from plain names, turning the reserved names
// "all" and "panic" into the DumpAll and Escalate flags.
func NewRequest(pc dump.PowerContext, origin string, names ...string) Request {
	req := Request{Context: pc, Origin: origin}
	for _, n := range names {
		switch n {
		case catalog.TargetAll:
			req.DumpAll = true
		case catalog.TargetPanic:
			req.Escalate = true
		default:
			req.Targets = append(req.Targets, n)
		}
	}
	return req
}

// job is a request after name resolution.
type job struct {
	Request
	selected []string
}

// Trigger submits a capture and never reports failure to the caller. Refused
// requests are only logged.
func (e *Engine) Trigger(ctx context.Context, pc dump.PowerContext, origin string, names ...string) {
	err := e.Submit(ctx, NewRequest(pc, origin, names...))
	switch {
	case err == nil:
	case errors.Is(err, ErrCapturePending):
		ctxlog.FromContext(ctx).Debug("Coredump pending read, skipping dump.", "origin", origin)
	default:
		ctxlog.FromContext(ctx).Warn("Dump request dropped.", "origin", origin, "error", err)
	}
}

// Submit resolves req and queues it for the worker. It fails with
// ErrCapturePending while an artifact is unread and the current sinks
// would produce another one, and with ErrQueueFull when the FIFO is full.
func (e *Engine) Submit(ctx context.Context, req Request) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}
	if needsArtifact(e.Sinks()) && e.device.Pending() {
		return ErrCapturePending
	}

	j := job{Request: req, selected: e.resolve(ctx, req)}
	select {
	case e.queue <- j:
		ctxlog.FromContext(ctx).Debug("Dump request queued.", "origin", req.Origin, "selected", j.selected, "dump_all", req.DumpAll, "escalate", req.Escalate)
		return nil
	default:
		return fmt.Errorf("request from %q: %w", req.Origin, ErrQueueFull)
	}
}

// resolve keeps the known, distinct target names up to MaxSelection.
func (e *Engine) resolve(ctx context.Context, req Request) []string {
	logger := ctxlog.FromContext(ctx)

	var selected []string
	seen := make(map[string]struct{}, len(req.Targets))
	for _, name := range req.Targets {
		if name == catalog.TargetAll || name == catalog.TargetPanic {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		if _, ok := e.catalog.Lookup(name); !ok {
			logger.Warn("Dump target not found.", "name", name, "origin", req.Origin)
			continue
		}
		if len(selected) >= e.opts.MaxSelection {
			logger.Warn("Too many dump targets, dropping.", "name", name, "max", e.opts.MaxSelection)
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, name)
	}
	return selected
}
