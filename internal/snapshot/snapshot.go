// Package snapshot captures the driver state that accompanies a register
// dump. Providers may need an exclusive lock shared with the rest of the
// display stack; Capture backs off and retries while that lock is contended.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/specialistvlad/dpudbg/internal/ctxlog"
)

// ErrContention is returned by a Provider when its lock is held elsewhere.
var ErrContention = errors.New("state lock contended")

// Snapshot is a point-in-time copy of external driver state. The holder owns
// it exclusively until Release.
type Snapshot interface {
	Format(w io.Writer) error
	Release()
}

// Provider captures snapshots.
type Provider interface {
	Capture(ctx context.Context) (Snapshot, error)
}

// Backoff controls how contention is retried.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff retries for a little over a second in total.
var DefaultBackoff = Backoff{
	Initial:     time.Millisecond,
	Max:         100 * time.Millisecond,
	MaxAttempts: 20,
}

// Capture takes a snapshot from p, retrying with exponential backoff while p
// reports ErrContention. Other errors are returned immediately. When all
// attempts are contended the last ErrContention is returned.
func Capture(ctx context.Context, p Provider, b Backoff) (Snapshot, error) {
	if p == nil {
		return nil, nil
	}
	logger := ctxlog.FromContext(ctx)

	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := b.Initial

	var err error
	for i := 0; i < attempts; i++ {
		var snap Snapshot
		snap, err = p.Capture(ctx)
		if err == nil {
			if i > 0 {
				logger.Debug("State snapshot acquired after backoff.", "attempts", i+1)
			}
			return snap, nil
		}
		if !errors.Is(err, ErrContention) {
			return nil, fmt.Errorf("failed to capture state: %w", err)
		}
		if i == attempts-1 {
			break
		}
		logger.Debug("State lock contended, backing off.", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
	return nil, err
}
