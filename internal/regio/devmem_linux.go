//go:build linux

package regio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem reads registers through mmap'ed windows of /dev/mem. Windows are
// mapped page-aligned on first use and kept until Close.
type DevMem struct {
	mu      sync.Mutex
	f       *os.File
	windows []devWindow
}

type devWindow struct {
	start uint64
	mem   []byte
}

// OpenDevMem opens path (normally /dev/mem) read-only.
func OpenDevMem(path string) (*DevMem, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DevMem{f: f}, nil
}

// MapWindow maps length bytes starting at physical address addr.
func (d *DevMem) MapWindow(addr uint64, length uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	page := uint64(unix.Getpagesize())
	aligned := addr &^ (page - 1)
	size := (addr - aligned + length + page - 1) &^ (page - 1)

	mem, err := unix.Mmap(int(d.f.Fd()), int64(aligned), int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to mmap 0x%x+0x%x: %w", aligned, size, err)
	}
	d.windows = append(d.windows, devWindow{start: aligned, mem: mem})
	return nil
}

// ReadWord implements Bus. Unmapped or unaligned addresses read as zero.
func (d *DevMem) ReadWord(addr uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr%WordSize != 0 {
		return 0
	}
	for _, w := range d.windows {
		if addr >= w.start && addr+WordSize <= w.start+uint64(len(w.mem)) {
			p := (*uint32)(unsafe.Pointer(&w.mem[addr-w.start]))
			return atomic.LoadUint32(p)
		}
	}
	return 0
}

// Close unmaps every window and closes the device file.
func (d *DevMem) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for _, w := range d.windows {
		if err := unix.Munmap(w.mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.windows = nil
	if err := d.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
