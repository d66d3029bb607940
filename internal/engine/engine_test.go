package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/dump"
	"github.com/specialistvlad/dpudbg/internal/regio"
	"github.com/specialistvlad/dpudbg/internal/sink"
	"github.com/specialistvlad/dpudbg/internal/snapshot"
	"github.com/specialistvlad/dpudbg/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// events records the order of observable side effects across goroutines.
type events struct {
	mu   sync.Mutex
	list []string
}

func (ev *events) add(s string) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.list = append(ev.list, s)
}

func (ev *events) get() []string {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]string(nil), ev.list...)
}

type harness struct {
	e         *Engine
	bus       *regio.MemBus
	rec       *testutil.LogRecorder
	events    *events
	published chan *coredump.Artifact
	done      chan error
	cancel    context.CancelFunc
}

func newHarness(t *testing.T, opts Options, snaps snapshot.Provider) *harness {
	t.Helper()
	rec, logger := testutil.NewLogRecorder()
	h := &harness{
		bus:       regio.NewMemBus(true),
		rec:       rec,
		events:    &events{},
		published: make(chan *coredump.Artifact, 8),
	}
	dev := coredump.NewDevice(logger, 0)
	t.Cleanup(dev.Close)

	h.e = New(Config{
		Logger:    logger,
		Catalog:   catalog.New(logger),
		Bus:       h.bus,
		Snapshots: snaps,
		Device:    dev,
		Halter: HalterFunc(func(reason string) {
			h.events.add(fmt.Sprintf("halt:%s reads=%d", reason, len(h.bus.Reads())))
		}),
		Subscribers: []Subscriber{SubscriberFunc(func(_ context.Context, a *coredump.Artifact) error {
			h.events.add("publish:" + a.Origin)
			h.published <- a
			return nil
		})},
		Options: opts,
	})
	return h
}

func (h *harness) block(t *testing.T, name string, addr, length uint64) {
	t.Helper()
	require.NoError(t, h.bus.MapPattern(addr, int(length), 0))
	require.NoError(t, h.e.Catalog().RegisterBase(name, addr, length))
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.e.Run(ctx) }()
}

// drain closes the engine and waits until every queued request ran.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	h.e.Close()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not drain")
	}
	h.cancel()
}

func (h *harness) waitPublished(t *testing.T) *coredump.Artifact {
	t.Helper()
	select {
	case a := <-h.published:
		return a
	case <-time.After(5 * time.Second):
		t.Fatal("no artifact published")
		return nil
	}
}

func (h *harness) blockHeaders() []string {
	var out []string
	for _, m := range h.rec.Messages(slog.LevelInfo) {
		if strings.HasSuffix(m, "DUMP=========") {
			out = append(out, m)
		}
	}
	return out
}

func TestEngine_EndToEndMemoryCapture(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Options{Sinks: sink.Memory}, nil)
	h.block(t, "core", 0x4000, 0x100)
	h.start()

	// --- Act ---
	h.e.Trigger(context.Background(), dump.Normal, "test", "core")
	h.drain(t)

	// --- Assert ---
	dev := h.e.Device()
	require.True(t, dev.Pending())
	assert.Equal(t, PendingRead, h.e.State())
	art := dev.Current()
	require.NotNil(t, art)
	assert.Equal(t, "test", art.Origin)

	size, err := art.Size()
	require.NoError(t, err)
	out, err := io.ReadAll(io.NewSectionReader(art, 0, size))
	require.NoError(t, err)

	text := string(out)
	assert.Equal(t, 1, strings.Count(text, "=========core DUMP========="))
	assert.Contains(t, text, "core: len:0x100 reg_offset=0x0\n")
	assert.Equal(t, 16, strings.Count(text, "\n0x"), "one line per 16 byte chunk")
	assert.Contains(t, text, "0xf0 : 000000f0 000000f4 000000f8 000000fc\n")
	assert.Len(t, h.bus.Reads(), 0x100/regio.WordSize)
	assert.Zero(t, h.bus.Outside())

	assert.False(t, dev.Pending(), "reading to the end releases the artifact")
	assert.Equal(t, Idle, h.e.State())
}

func TestEngine_PendingArtifactSuppressesCaptures(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Options{Sinks: sink.Memory}, nil)
	h.block(t, "core", 0x4000, 0x40)
	h.start()
	defer h.drain(t)

	require.NoError(t, h.e.Submit(context.Background(), NewRequest(dump.Normal, "first", "core")))
	first := h.waitPublished(t)

	// --- Act ---
	err := h.e.Submit(context.Background(), NewRequest(dump.Normal, "second", "core"))
	h.e.Trigger(context.Background(), dump.Normal, "third", "all")

	// --- Assert ---
	require.ErrorIs(t, err, ErrCapturePending)
	assert.Same(t, first, h.e.Device().Current())
	assert.Len(t, h.bus.Reads(), 0x40/regio.WordSize, "no second capture read registers")

	// Log-only captures are not gated.
	h.e.SetSinks(sink.Log)
	require.NoError(t, h.e.Submit(context.Background(), NewRequest(dump.Normal, "log", "core")))

	require.Eventually(t, func() bool { return len(h.blockHeaders()) == 1 }, 5*time.Second, time.Millisecond)

	// Once released, memory captures run again.
	h.e.SetSinks(sink.Memory)
	first.Release()
	require.NoError(t, h.e.Submit(context.Background(), NewRequest(dump.Normal, "again", "core")))
	again := h.waitPublished(t)
	assert.NotSame(t, first, again)
}

func TestEngine_EscalationIsLast(t *testing.T) {
	t.Parallel()

	t.Run("panic only", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{Sinks: sink.Memory}, nil)
		h.block(t, "core", 0x4000, 0x40)
		h.start()

		h.e.Trigger(context.Background(), dump.Normal, "test", catalog.TargetPanic)
		h.drain(t)

		assert.Equal(t, []string{"publish:test", "halt:test reads=0"}, h.events.get())
	})

	t.Run("panic after selected blocks", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{Sinks: sink.Log}, nil)
		h.block(t, "core", 0x4000, 0x40)
		h.block(t, "vbif", 0x8000, 0x20)
		h.start()

		h.e.Trigger(context.Background(), dump.Normal, "underrun", "core", "vbif", catalog.TargetPanic)
		h.drain(t)

		assert.Equal(t, []string{"halt:underrun reads=24"}, h.events.get())
	})

	t.Run("panic queued behind a pending coredump", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{Sinks: sink.Memory | sink.Log}, nil)
		h.block(t, "core", 0x4000, 0x40)
		ctx := context.Background()

		// Both requests are accepted before the worker publishes anything.
		require.NoError(t, h.e.Submit(ctx, NewRequest(dump.Normal, "first", "core")))
		require.NoError(t, h.e.Submit(ctx, NewRequest(dump.Normal, "fatal", "core", catalog.TargetPanic)))
		h.start()
		h.drain(t)

		// The second capture goes to the log only, then halts.
		assert.Equal(t, []string{"publish:first", "halt:fatal reads=32"}, h.events.get())
		assert.Len(t, h.blockHeaders(), 2)
		assert.True(t, h.rec.Contains("escalating without a new coredump"))
	})
}

func TestEngine_DumpAllVisitsEveryBlockOnce(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Options{Sinks: sink.Log}, nil)
	h.block(t, "mdp", 0x1000, 0x20)
	h.block(t, "dsi0", 0x2000, 0x20)
	h.block(t, "vbif_rt", 0x3000, 0x20)
	h.start()

	// --- Act ---
	h.e.Trigger(context.Background(), dump.Normal, "test", "vbif_rt", catalog.TargetAll, "mdp")
	h.drain(t)

	// --- Assert ---
	assert.Equal(t, []string{
		"=========mdp DUMP=========",
		"=========dsi0 DUMP=========",
		"=========vbif_rt DUMP=========",
	}, h.blockHeaders())
}

func TestEngine_QueueIsBoundedFIFO(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Options{Sinks: sink.Log, QueueDepth: 2}, nil)
	h.block(t, "a", 0x1000, 0x10)
	h.block(t, "b", 0x2000, 0x10)
	ctx := context.Background()

	// --- Act ---
	require.NoError(t, h.e.Submit(ctx, NewRequest(dump.Normal, "1", "b")))
	require.NoError(t, h.e.Submit(ctx, NewRequest(dump.Normal, "2", "a")))
	err := h.e.Submit(ctx, NewRequest(dump.Normal, "3", "b"))
	h.start()
	h.drain(t)

	// --- Assert ---
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, []string{"=========b DUMP=========", "=========a DUMP========="}, h.blockHeaders())
	require.ErrorIs(t, h.e.Submit(ctx, NewRequest(dump.Normal, "late")), ErrClosed)
}

func TestEngine_ConcurrentTriggersAreSerialized(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Sinks: sink.Log, QueueDepth: 16}, nil)
	h.block(t, "core", 0x1000, 0x40)
	h.start()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.e.Submit(context.Background(), NewRequest(dump.Normal, fmt.Sprint(i), "core")))
		}(i)
	}
	wg.Wait()
	h.drain(t)

	assert.Len(t, h.blockHeaders(), 16)
	assert.Len(t, h.bus.Reads(), 16*0x40/regio.WordSize)
}

func TestEngine_ResolveSkipsUnknownAndCapsSelection(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Options{MaxSelection: 2}, nil)
	for i, n := range []string{"a", "b", "c"} {
		h.block(t, n, uint64(0x1000*(i+1)), 0x10)
	}
	rec, logger := testutil.NewLogRecorder()
	ctx := ctxlog.WithLogger(context.Background(), logger)

	// --- Act ---
	req := NewRequest(dump.PowerAlreadyOn, "test", "a", "missing", "a", "b", "c", catalog.TargetAll)
	got := h.e.resolve(ctx, req)

	// --- Assert ---
	assert.True(t, req.DumpAll)
	assert.False(t, req.Escalate)
	assert.Equal(t, []string{"a", "missing", "a", "b", "c"}, req.Targets)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []string{"Dump target not found.", "Too many dump targets, dropping."}, rec.Messages(slog.LevelWarn))
}

func TestEngine_CoredumpWithoutMemoryProducesNoArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Sinks: sink.Coredump}, nil)
	h.block(t, "core", 0x1000, 0x20)
	h.start()

	h.e.Trigger(context.Background(), dump.Normal, "test", "core")
	h.drain(t)

	assert.False(t, h.e.Device().Pending())
	assert.True(t, h.rec.Contains("Coredump sink needs the memory sink"))
	assert.Empty(t, h.bus.Reads())
}

func TestEngine_SnapshotBoundToArtifact(t *testing.T) {
	t.Parallel()

	t.Run("state follows registers", func(t *testing.T) {
		t.Parallel()
		kv := snapshot.NewKV(map[string]string{"crtc0": "active", "plane0": "fb=12"})
		h := newHarness(t, Options{}, kv)
		h.block(t, "core", 0x1000, 0x10)
		h.start()

		h.e.Trigger(context.Background(), dump.Normal, "test")
		h.drain(t)

		out, err := h.e.Device().Current().Bytes()
		require.NoError(t, err)
		text := string(out)
		regs := strings.Index(text, "0x0 : ")
		state := strings.Index(text, "crtc0=active\nplane0=fb=12\n")
		require.Positive(t, regs)
		assert.Greater(t, state, regs)
	})

	t.Run("contention degrades to no state", func(t *testing.T) {
		t.Parallel()
		kv := snapshot.NewKV(map[string]string{"crtc0": "active"})
		release := kv.Hold()
		defer release()
		h := newHarness(t, Options{Backoff: snapshot.Backoff{Initial: time.Microsecond, MaxAttempts: 2}}, kv)
		h.block(t, "core", 0x1000, 0x10)
		h.start()

		h.e.Trigger(context.Background(), dump.Normal, "test")
		h.drain(t)

		out, err := h.e.Device().Current().Bytes()
		require.NoError(t, err)
		assert.NotContains(t, string(out), "crtc0")
		assert.True(t, h.rec.Contains("State snapshot unavailable"))
	})
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		from, to State
		want     bool
	}{
		{Idle, Capturing, true},
		{Idle, PendingRead, false},
		{Capturing, Idle, true},
		{Capturing, PendingRead, true},
		{PendingRead, Idle, true},
		{PendingRead, Capturing, true},
		{Capturing, Capturing, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPanicHalter(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		herr, ok := r.(*HaltError)
		require.True(t, ok, "panic value %v", r)
		assert.Equal(t, "dpu dump: halt requested by underrun", herr.Error())
	}()
	PanicHalter{}.Halt("underrun")
}
