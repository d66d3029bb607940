package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
)

// File captures the contents of a text file, such as the DRM debugfs atomic
// state (/sys/kernel/debug/dri/0/state). A busy file reports contention.
type File struct {
	Path string
}

// Capture implements Provider.
func (f File) Capture(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrContention
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	return &fileSnapshot{data: data}, nil
}

type fileSnapshot struct {
	mu   sync.Mutex
	data []byte
}

func (s *fileSnapshot) Format(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return fmt.Errorf("snapshot already released")
	}
	_, err := io.Copy(w, bytes.NewReader(s.data))
	return err
}

func (s *fileSnapshot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
}
