package engine

import (
	"context"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/dump"
	"github.com/specialistvlad/dpudbg/internal/sink"
	"github.com/specialistvlad/dpudbg/internal/snapshot"
)

// Run is the capture worker. It executes queued requests one at a time until
// ctx is cancelled or Close has been called and the queue is drained.
func (e *Engine) Run(ctx context.Context) error {
	logger := e.logger
	logger.Debug("Capture worker started.")
	defer logger.Debug("Capture worker finished.")

	for {
		select {
		case <-ctx.Done():
			if n := len(e.queue); n > 0 {
				logger.Warn("Capture worker stopped with queued requests.", "dropped", n)
			}
			return nil
		case j, ok := <-e.queue:
			if !ok {
				return nil
			}
			e.capture(ctx, j)
		}
	}
}

// Close stops accepting requests. Requests already queued still run.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.queue)
}

func (e *Engine) transition(ctx context.Context, to State) {
	from := e.State()
	if !CanTransition(from, to) && from != to {
		ctxlog.FromContext(ctx).Error("Unexpected worker state change.", "from", from, "to", to)
	}
	e.capturing.Store(to == Capturing)
	ctxlog.FromContext(ctx).Debug("Worker state changed.", "from", from, "to", e.State())
}

func (e *Engine) capture(ctx context.Context, j job) {
	logger := e.logger.With("origin", j.Origin)
	ctx = ctxlog.WithLogger(ctx, logger)

	flags := e.Sinks()
	if flags.Has(sink.Coredump) && !flags.Has(sink.Memory) {
		logger.Error("Coredump sink needs the memory sink, ignoring it.", "sinks", flags.String())
		flags &^= sink.Coredump
	}
	wantArtifact := flags.Has(sink.Memory)

	if wantArtifact && e.device.Pending() {
		if !j.Escalate {
			logger.Debug("Coredump pending read, skipping dump.")
			return
		}
		// The halt still has to happen; capture to the remaining sinks only.
		logger.Warn("Coredump pending read, escalating without a new coredump.", "sinks", flags.String())
		flags &^= sink.Memory | sink.Coredump
		wantArtifact = false
	}

	e.transition(ctx, Capturing)

	var art *coredump.Artifact
	e.catalog.Do(func(v *catalog.View) {
		snap, err := snapshot.Capture(ctx, e.snapshots, e.opts.Backoff)
		if err != nil {
			logger.Warn("State snapshot unavailable, dumping without it.", "error", err)
		}
		if wantArtifact {
			art = coredump.New(e.opts.Module, j.Origin, e.now(), snap)
		} else if snap != nil {
			snap.Release()
		}

		bases := e.selection(v, j)
		logger.Info("Dumping registers.", "blocks", len(bases), "sinks", flags.String(), "context", j.Context)
		pass := dump.Pass{Flags: flags, Context: j.Context, Artifact: art}
		if err := e.reader.DumpAll(ctx, bases, pass); err != nil {
			logger.Error("Register dump incomplete.", "error", err)
		}
	})

	if art != nil {
		if err := e.device.Publish(art); err != nil {
			logger.Error("Failed to publish coredump.", "error", err)
			art.Release()
			art = nil
		}
	}
	if art != nil {
		e.transition(ctx, PendingRead)
		e.notify(ctx, art)
	} else {
		e.transition(ctx, Idle)
	}

	if j.Escalate {
		logger.Error("Dump requested a halt.")
		e.halter.Halt(j.Origin)
	}
}

// selection returns the blocks to visit; callers hold the catalog lock. A
// request that names nothing at all covers the whole catalog, while one whose
// names all failed to resolve (or that only asked for a halt) covers nothing.
func (e *Engine) selection(v *catalog.View, j job) []*catalog.Base {
	if j.DumpAll || (len(j.Targets) == 0 && !j.Escalate) {
		return v.All()
	}
	bases := make([]*catalog.Base, 0, len(j.selected))
	for _, name := range j.selected {
		if b := v.Lookup(name); b != nil {
			bases = append(bases, b)
		}
	}
	return bases
}

func (e *Engine) notify(ctx context.Context, art *coredump.Artifact) {
	for _, s := range e.subs {
		if err := s.CoredumpReady(ctx, art); err != nil {
			ctxlog.FromContext(ctx).Error("Coredump subscriber failed.", "id", art.ID, "error", err)
		}
	}
}
