//go:build !linux

package regio

import (
	"errors"
	"runtime"
)

// DevMem is only available on Linux.
type DevMem struct{}

// OpenDevMem always fails on this platform.
func OpenDevMem(path string) (*DevMem, error) {
	return nil, errors.New("register access through " + path + " is not supported on " + runtime.GOOS)
}

// MapWindow implements the Linux API; it always fails here.
func (d *DevMem) MapWindow(uint64, uint64) error {
	return errors.New("not supported on " + runtime.GOOS)
}

// ReadWord implements Bus.
func (d *DevMem) ReadWord(uint64) uint32 { return 0 }

// Close implements io.Closer.
func (d *DevMem) Close() error { return nil }
