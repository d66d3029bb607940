package app

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/dump"
	"github.com/specialistvlad/dpudbg/internal/engine"
)

// Run starts the capture worker and, when configured, the control server.
// Without a listen address the startup dumps run and Run returns once they
// are done.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer a.teardown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.Run(gctx) })

	if a.cfg.Listen != "" {
		g.Go(func() error { return a.control.ListenAndServe(gctx, a.cfg.Listen) })
	}

	if len(a.cfg.Dump) > 0 {
		err := a.engine.Submit(gctx, engine.NewRequest(dump.Normal, "cli", a.cfg.Dump...))
		if err != nil && !errors.Is(err, engine.ErrCapturePending) {
			a.logger.Warn("Startup dump not queued.", "error", err)
		}
	}

	if a.cfg.Listen == "" {
		a.engine.Close()
	} else {
		a.logger.Info("Diagnostics engine ready.", "listen", a.cfg.Listen, "sinks", a.engine.Sinks())
	}

	err := g.Wait()
	a.engine.Close()
	a.logger.Debug("App.Run method finished.")
	return err
}
