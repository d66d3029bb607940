package snapshot

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// KV is a Provider over a set of named driver-state values. Writers update
// values under the same exclusive lock a capture needs; a capture that finds
// the lock held reports ErrContention rather than waiting.
type KV struct {
	mu     sync.Mutex
	values map[string]string
}

// NewKV creates a provider seeded with values.
func NewKV(values map[string]string) *KV {
	kv := &KV{values: make(map[string]string, len(values))}
	for k, v := range values {
		kv.values[k] = v
	}
	return kv
}

// Set updates one value.
func (kv *KV) Set(key, value string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.values[key] = value
}

// Hold takes the state lock and returns its release function. While held,
// captures fail with ErrContention.
func (kv *KV) Hold() func() {
	kv.mu.Lock()
	return kv.mu.Unlock
}

// Capture implements Provider.
func (kv *KV) Capture(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kv.mu.TryLock() {
		return nil, ErrContention
	}
	defer kv.mu.Unlock()

	keys := make([]string, 0, len(kv.values))
	for k := range kv.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := &kvSnapshot{}
	for _, k := range keys {
		s.entries = append(s.entries, [2]string{k, kv.values[k]})
	}
	return s, nil
}

type kvSnapshot struct {
	mu       sync.Mutex
	entries  [][2]string
	released bool
}

func (s *kvSnapshot) Format(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("snapshot already released")
	}
	for _, e := range s.entries {
		if _, err := fmt.Fprintf(w, "%s=%s\n", e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

func (s *kvSnapshot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.entries = nil
}
