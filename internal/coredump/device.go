package coredump

import (
	"log/slog"
	"sync"
	"time"

	"github.com/specialistvlad/dpudbg/internal/ctxlog"
)

// DefaultTimeout is how long an unread artifact stays pending.
const DefaultTimeout = 5 * time.Minute

// Device publishes artifacts to external readers and owns the pending gate.
type Device struct {
	mu      sync.Mutex
	logger  *slog.Logger
	timeout time.Duration
	pending *Artifact
	timer   *time.Timer
	changed chan struct{}
}

// NewDevice creates a device. A non-positive timeout disables auto-abandon.
func NewDevice(logger *slog.Logger, timeout time.Duration) *Device {
	return &Device{
		logger:  ctxlog.OrDiscard(logger),
		timeout: timeout,
		changed: make(chan struct{}),
	}
}

// Pending reports whether an artifact awaits its reader.
func (d *Device) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Current returns the pending artifact, or nil.
func (d *Device) Current() *Artifact {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Changed returns a channel that is closed the next time the pending
// artifact is published or released.
func (d *Device) Changed() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changed
}

// notify wakes Changed waiters; callers hold d.mu.
func (d *Device) notify() {
	close(d.changed)
	d.changed = make(chan struct{})
}

// Publish makes a pending. It fails with ErrPending while another artifact
// is unread; the rejected artifact is left untouched.
func (d *Device) Publish(a *Artifact) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		return ErrPending
	}

	a.Seal()
	a.mu.Lock()
	a.onRelease = d.released
	a.mu.Unlock()

	d.pending = a
	if d.timeout > 0 {
		d.timer = time.AfterFunc(d.timeout, func() {
			d.logger.Warn("Coredump not read in time, abandoning.", "id", a.ID, "timeout", d.timeout)
			a.Release()
		})
	}
	d.notify()
	d.logger.Info("Coredump published.", "id", a.ID, "origin", a.Origin)
	return nil
}

// released is the artifact's release callback.
func (d *Device) released(a *Artifact) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != a {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.notify()
	d.logger.Debug("Coredump released.", "id", a.ID)
}

// Abandon releases the pending artifact without reading it. It reports
// whether there was one.
func (d *Device) Abandon() bool {
	a := d.Current()
	if a == nil {
		return false
	}
	a.Release()
	return true
}

// Close abandons any pending artifact.
func (d *Device) Close() {
	d.Abandon()
}
