// Package coredump holds the artifact produced by a memory capture and the
// device through which an external reader pulls it.
//
// At most one artifact is pending at a time. An artifact stays pending until
// its pull read is exhausted, it is abandoned explicitly, or the device's
// timeout expires.
package coredump

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/dpudbg/internal/snapshot"
)

var (
	ErrPending  = errors.New("a coredump is already pending read")
	ErrReleased = errors.New("coredump already released")
	ErrSealed   = errors.New("coredump is sealed")
)

// Artifact is one captured coredump. Register lines are appended while the
// capture runs; the snapshot is owned by the artifact until Release.
type Artifact struct {
	ID        string
	Module    string
	Origin    string
	Timestamp time.Time

	mu       sync.Mutex
	regs     bytes.Buffer
	snap     snapshot.Snapshot
	sealed   bool
	rendered []byte
	released bool

	releaseOnce sync.Once
	onRelease   func(*Artifact)
}

// New creates an artifact that takes ownership of snap (which may be nil).
func New(module, origin string, ts time.Time, snap snapshot.Snapshot) *Artifact {
	return &Artifact{
		ID:        uuid.NewString(),
		Module:    module,
		Origin:    origin,
		Timestamp: ts,
		snap:      snap,
	}
}

// Write appends register dump text. It fails once the artifact is sealed.
func (a *Artifact) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return 0, ErrSealed
	}
	return a.regs.Write(p)
}

// WriteLine appends one line of register dump text.
func (a *Artifact) WriteLine(line string) {
	_, _ = a.Write([]byte(line + "\n"))
}

// Seal ends the capture phase. Further writes fail.
func (a *Artifact) Seal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true
}

// render returns the full stream; callers hold a.mu. The stream is cached
// once the artifact is sealed.
func (a *Artifact) render() ([]byte, error) {
	if a.rendered != nil {
		return a.rendered, nil
	}
	if a.released {
		return nil, ErrReleased
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "---\n")
	fmt.Fprintf(&out, "module: %s\n", a.Module)
	fmt.Fprintf(&out, "dpu devcoredump\n")
	fmt.Fprintf(&out, "timestamp %d\n", a.Timestamp.UnixNano())
	fmt.Fprintf(&out, "origin %s\n", a.Origin)
	fmt.Fprintf(&out, "===================dpu regs================\n")
	out.Write(a.regs.Bytes())
	fmt.Fprintf(&out, "===================dpu drm state================\n")
	if a.snap != nil {
		if err := a.snap.Format(&out); err != nil {
			fmt.Fprintf(&out, "state unavailable: %v\n", err)
		}
	}
	if a.sealed {
		a.rendered = out.Bytes()
	}
	return out.Bytes(), nil
}

// Size returns the length of the formatted stream.
func (a *Artifact) Size() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, err := a.render()
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// ReadAt implements io.ReaderAt over the formatted stream. The read that
// reaches the end of the stream releases the artifact.
func (a *Artifact) ReadAt(p []byte, off int64) (int, error) {
	a.mu.Lock()
	data, err := a.render()
	if err != nil {
		a.mu.Unlock()
		return 0, err
	}
	if off < 0 {
		a.mu.Unlock()
		return 0, fmt.Errorf("negative offset %d", off)
	}
	size := int64(len(data))
	if off >= size {
		a.mu.Unlock()
		a.Release()
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	exhausted := off+int64(n) >= size
	a.mu.Unlock()

	if exhausted {
		a.Release()
		if n < len(p) {
			return n, io.EOF
		}
	}
	return n, nil
}

// Bytes returns the whole formatted stream without releasing the artifact.
func (a *Artifact) Bytes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, err := a.render()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Release drops the snapshot and notifies the device. Only the first call
// has an effect.
func (a *Artifact) Release() {
	a.releaseOnce.Do(func() {
		a.mu.Lock()
		a.released = true
		snap := a.snap
		a.snap = nil
		cb := a.onRelease
		a.mu.Unlock()

		if snap != nil {
			snap.Release()
		}
		if cb != nil {
			cb(a)
		}
	})
}

// Released reports whether Release has run.
func (a *Artifact) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}
