package snapshot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = Backoff{Initial: time.Microsecond, Max: 10 * time.Microsecond, MaxAttempts: 50}

type flakyProvider struct {
	contended int32
	calls     atomic.Int32
	err       error
}

func (p *flakyProvider) Capture(ctx context.Context) (Snapshot, error) {
	n := p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	if n <= p.contended {
		return nil, ErrContention
	}
	return NewKV(map[string]string{"ok": "1"}).Capture(ctx)
}

func TestCapture_RetriesOnContention(t *testing.T) {
	t.Parallel()

	p := &flakyProvider{contended: 3}
	snap, err := Capture(context.Background(), p, fastBackoff)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int32(4), p.calls.Load())
}

func TestCapture_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	p := &flakyProvider{contended: 1000}
	_, err := Capture(context.Background(), p, Backoff{Initial: time.Microsecond, MaxAttempts: 3})
	require.ErrorIs(t, err, ErrContention)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestCapture_OtherErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := &flakyProvider{err: boom}
	_, err := Capture(context.Background(), p, fastBackoff)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCapture_NilProvider(t *testing.T) {
	t.Parallel()
	snap, err := Capture(context.Background(), nil, fastBackoff)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestKV_ContentionWhileHeld(t *testing.T) {
	t.Parallel()

	kv := NewKV(map[string]string{"crtc0.active": "true", "plane0.fb": "42"})
	release := kv.Hold()

	_, err := kv.Capture(context.Background())
	require.ErrorIs(t, err, ErrContention)

	go func() {
		time.Sleep(5 * time.Millisecond)
		release()
	}()

	snap, err := Capture(context.Background(), kv, Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: 100})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.Format(&buf))
	assert.Equal(t, "crtc0.active=true\nplane0.fb=42\n", buf.String())

	snap.Release()
	require.Error(t, snap.Format(&buf))
}

func TestFile_CapturesContents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, []byte("plane[31]: plane-0\n\tcrtc=crtc-0\n"), 0o644))

	snap, err := File{Path: path}.Capture(context.Background())
	require.NoError(t, err)

	// The snapshot is a copy; later changes are not visible.
	require.NoError(t, os.WriteFile(path, []byte("changed\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, snap.Format(&buf))
	assert.Equal(t, "plane[31]: plane-0\n\tcrtc=crtc-0\n", buf.String())

	snap.Release()
	assert.Error(t, snap.Format(&buf))

	_, err = File{Path: filepath.Join(t.TempDir(), "missing")}.Capture(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrContention))
}
