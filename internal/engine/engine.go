package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/dump"
	"github.com/specialistvlad/dpudbg/internal/regio"
	"github.com/specialistvlad/dpudbg/internal/sink"
	"github.com/specialistvlad/dpudbg/internal/snapshot"
)

var (
	ErrCapturePending = errors.New("coredump pending read")
	ErrQueueFull      = errors.New("capture queue full")
	ErrClosed         = errors.New("engine closed")
)

const (
	DefaultQueueDepth   = 4
	DefaultMaxSelection = 10
	DefaultModule       = "dpu"
)

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	Sinks          sink.Flags
	QueueDepth     int
	MaxSelection   int
	MaxBufferWords int
	Module         string
	Backoff        snapshot.Backoff
}

func (o Options) withDefaults() Options {
	if o.Sinks == 0 {
		o.Sinks = sink.Default
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.MaxSelection <= 0 {
		o.MaxSelection = DefaultMaxSelection
	}
	if o.Module == "" {
		o.Module = DefaultModule
	}
	if o.Backoff.MaxAttempts == 0 {
		o.Backoff = snapshot.DefaultBackoff
	}
	return o
}

// Subscriber is told about every published artifact. It runs on the worker
// before any escalation.
type Subscriber interface {
	CoredumpReady(ctx context.Context, a *coredump.Artifact) error
}

// Config wires an Engine to its collaborators. Catalog, Bus and Device are
// required.
type Config struct {
	Logger      *slog.Logger
	Catalog     *catalog.Catalog
	Bus         regio.Bus
	Power       regio.PowerDomain
	Snapshots   snapshot.Provider
	Device      *coredump.Device
	Halter      Halter
	Subscribers []Subscriber
	Options     Options
}

// Engine is the diagnostics engine. Build it once with New and share it.
type Engine struct {
	logger    *slog.Logger
	catalog   *catalog.Catalog
	reader    *dump.Reader
	snapshots snapshot.Provider
	device    *coredump.Device
	halter    Halter
	subs      []Subscriber
	opts      Options
	now       func() time.Time

	sinks     atomic.Uint32
	capturing atomic.Bool

	mu     sync.RWMutex
	closed bool
	queue  chan job
}

// New creates an engine. Run must be started for queued requests to execute.
func New(cfg Config) *Engine {
	logger := ctxlog.OrDiscard(cfg.Logger)
	opts := cfg.Options.withDefaults()

	halter := cfg.Halter
	if halter == nil {
		halter = PanicHalter{}
	}
	power := cfg.Power
	if power == nil {
		power = regio.NopPower{}
	}

	e := &Engine{
		logger:    logger,
		catalog:   cfg.Catalog,
		snapshots: cfg.Snapshots,
		device:    cfg.Device,
		halter:    halter,
		subs:      cfg.Subscribers,
		opts:      opts,
		now:       time.Now,
		queue:     make(chan job, opts.QueueDepth),
		reader: &dump.Reader{
			Bus:            cfg.Bus,
			Power:          power,
			Log:            logger.With("sink", "log"),
			MaxBufferWords: opts.MaxBufferWords,
		},
	}
	e.sinks.Store(uint32(opts.Sinks))
	return e
}

// Sinks returns the sink configuration used by the next capture.
func (e *Engine) Sinks() sink.Flags { return sink.Flags(e.sinks.Load()) }

// SetSinks replaces the sink configuration. Running captures are unaffected.
func (e *Engine) SetSinks(f sink.Flags) {
	e.sinks.Store(uint32(f))
	e.logger.Info("Dump sinks changed.", "sinks", f.String())
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Device returns the device artifacts are published to.
func (e *Engine) Device() *coredump.Device { return e.device }

// State reports what the worker is doing.
func (e *Engine) State() State {
	if e.capturing.Load() {
		return Capturing
	}
	if e.device.Pending() {
		return PendingRead
	}
	return Idle
}

// Status is a point-in-time view of the engine for the control surface.
type Status struct {
	State   string `json:"state"`
	Pending bool   `json:"pending"`
	Queued  int    `json:"queued"`
	Sinks   string `json:"sinks"`
	Blocks  int    `json:"blocks"`
}

// Status returns the current status.
func (e *Engine) Status() Status {
	return Status{
		State:   e.State().String(),
		Pending: e.device.Pending(),
		Queued:  len(e.queue),
		Sinks:   e.Sinks().String(),
		Blocks:  e.catalog.Len(),
	}
}

// needsArtifact reports whether captures under f produce an artifact and
// are therefore subject to the pending gate.
func needsArtifact(f sink.Flags) bool {
	return f.Any(sink.Memory | sink.Coredump)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, a *coredump.Artifact) error

// CoredumpReady implements Subscriber.
func (f SubscriberFunc) CoredumpReady(ctx context.Context, a *coredump.Artifact) error {
	return f(ctx, a)
}
