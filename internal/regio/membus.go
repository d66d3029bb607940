package regio

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// region is one simulated memory-mapped device window.
type region struct {
	start uint64
	data  []byte
}

func (r *region) contains(addr uint64) bool {
	return addr >= r.start && addr+WordSize <= r.start+uint64(len(r.data))
}

// MemBus is a buffer-backed Bus used by the simulator and by tests. It keeps
// a log of every address it was asked to read and counts reads that fell
// outside every mapped region; such reads return 0xdeadbeef.
type MemBus struct {
	mu       sync.Mutex
	regions  []*region
	reads    []uint64
	outside  int
	trackLog bool
}

// NewMemBus creates an empty bus. When track is set, every read address is
// recorded and can be inspected with Reads.
func NewMemBus(track bool) *MemBus {
	return &MemBus{trackLog: track}
}

// Map adds a little-endian backing buffer at addr. Overlapping windows are
// rejected.
func (b *MemBus) Map(addr uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := addr + uint64(len(data))
	for _, r := range b.regions {
		rEnd := r.start + uint64(len(r.data))
		if addr < rEnd && r.start < end {
			return fmt.Errorf("region 0x%x:0x%x overlaps 0x%x:0x%x", addr, end, r.start, rEnd)
		}
	}
	b.regions = append(b.regions, &region{start: addr, data: data})
	sort.Slice(b.regions, func(i, j int) bool {
		return b.regions[i].start < b.regions[j].start
	})
	return nil
}

// MapPattern maps length bytes at addr where each word holds its own byte
// offset xor'ed with seed. Handy for recognisable dumps.
func (b *MemBus) MapPattern(addr uint64, length int, seed uint32) error {
	data := make([]byte, length)
	for off := 0; off+WordSize <= length; off += WordSize {
		binary.LittleEndian.PutUint32(data[off:], uint32(off)^seed)
	}
	return b.Map(addr, data)
}

// ReadWord implements Bus.
func (b *MemBus) ReadWord(addr uint64) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.trackLog {
		b.reads = append(b.reads, addr)
	}
	for _, r := range b.regions {
		if r.contains(addr) {
			off := addr - r.start
			return binary.LittleEndian.Uint32(r.data[off:])
		}
	}
	b.outside++
	return 0xdeadbeef
}

// Reads returns a copy of the recorded read addresses.
func (b *MemBus) Reads() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint64, len(b.reads))
	copy(out, b.reads)
	return out
}

// Outside reports how many reads hit no mapped region.
func (b *MemBus) Outside() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outside
}

// Reset clears the read log and the outside counter.
func (b *MemBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads = nil
	b.outside = 0
}
