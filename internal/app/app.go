package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/config"
	"github.com/specialistvlad/dpudbg/internal/control"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/engine"
	"github.com/specialistvlad/dpudbg/internal/registry"
	"github.com/specialistvlad/dpudbg/internal/snapshot"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	registry *registry.Registry
	model    *config.Model

	catalog *catalog.Catalog
	device  *coredump.Device
	engine  *engine.Engine
	control *control.Server

	closers []io.Closer
}

// NewApp is the constructor for the main application. Configuration and
// wiring failures are fatal startup errors and panic.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.CatalogPaths...)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	overrideEngine(model, cfg)
	logger.Debug("Configuration loaded.", "blocks", len(model.Blocks), "notifiers", len(model.Notifiers))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "kinds", reg.Kinds())

	if err := reg.Validate(model.Notifiers); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	a := &App{outW: outW, logger: logger, cfg: cfg, registry: reg, model: model}
	if err := a.wire(ctx); err != nil {
		a.teardown()
		panic(err)
	}
	return a
}

func overrideEngine(m *config.Model, cfg *Config) {
	if len(cfg.Sinks) > 0 {
		m.Engine.Sinks = cfg.Sinks
	}
	if cfg.QueueDepth > 0 {
		m.Engine.QueueDepth = cfg.QueueDepth
	}
}

func (a *App) wire(ctx context.Context) error {
	opts, err := a.model.Options()
	if err != nil {
		return fmt.Errorf("invalid engine settings: %w", err)
	}

	a.catalog = catalog.New(a.logger)
	if err := a.model.Apply(a.catalog); err != nil {
		return fmt.Errorf("failed to build register catalog: %w", err)
	}

	bus, busCloser, err := openBus(a.cfg, a.model.Blocks)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, busCloser)

	subs, err := a.registry.Build(ctx, a.model.Notifiers)
	if err != nil {
		return fmt.Errorf("failed to build notifiers: %w", err)
	}
	for _, s := range subs {
		if c, ok := s.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}

	a.device = coredump.NewDevice(a.logger, a.model.Engine.CoredumpTimeout)
	a.engine = engine.New(engine.Config{
		Logger:      a.logger,
		Catalog:     a.catalog,
		Bus:         bus,
		Power:       openPower(a.cfg),
		Snapshots:   a.snapshots(),
		Device:      a.device,
		Subscribers: subs,
		Options:     opts,
	})
	a.control = control.New(a.logger, a.engine, a.model.Engine.Magic)
	return nil
}

func (a *App) snapshots() snapshot.Provider {
	switch {
	case a.cfg.StatePath != "":
		return snapshot.File{Path: a.cfg.StatePath}
	case a.cfg.Simulate:
		return snapshot.NewKV(map[string]string{
			"mode":   "simulate",
			"blocks": fmt.Sprint(len(a.model.Blocks)),
		})
	}
	return nil
}

func (a *App) teardown() {
	if a.device != nil {
		a.device.Close()
	}
	if a.catalog != nil {
		a.catalog.Teardown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Failed to close resource.", "error", err)
		}
	}
	a.closers = nil
}

// Engine returns the diagnostics engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine { return a.engine }

// Control returns the control server. This is primarily for testing.
func (a *App) Control() *control.Server { return a.control }
