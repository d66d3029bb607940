// Package sink defines where captured register contents go and the value
// that is fanned out to every enabled destination.
package sink

import (
	"fmt"
	"strings"
)

// Flags is a bitset of enabled output destinations.
type Flags uint32

const (
	// Log emits one formatted line per chunk to the log.
	Log Flags = 1 << iota
	// Memory keeps the words in per-range buffers and produces an artifact
	// whose text stream carries every chunk.
	Memory
	// Coredump asks for the artifact stream explicitly. It only takes effect
	// together with Memory; on its own it is ignored with an error.
	Coredump
)

// Default matches the out-of-the-box configuration: capture into memory.
const Default = Memory

// All is every known destination.
const All = Log | Memory | Coredump

// Has reports whether every bit in f2 is set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Any reports whether at least one bit in f2 is set.
func (f Flags) Any(f2 Flags) bool { return f&f2 != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(Log) {
		parts = append(parts, "log")
	}
	if f.Has(Memory) {
		parts = append(parts, "memory")
	}
	if f.Has(Coredump) {
		parts = append(parts, "coredump")
	}
	if rest := f &^ All; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Parse converts names such as "log" or "memory" into Flags.
func Parse(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "log":
			f |= Log
		case "memory", "mem":
			f |= Memory
		case "coredump":
			f |= Coredump
		case "":
		default:
			return 0, fmt.Errorf("unknown sink %q: must be 'log', 'memory' or 'coredump'", n)
		}
	}
	return f, nil
}

// ChunkBytes is the number of bytes covered by one Chunk.
const ChunkBytes = 16

// Chunk is four consecutive register words starting at Offset, relative to
// the start of the block.
type Chunk struct {
	Offset uint64
	Words  [4]uint32
}

// Line formats the chunk the way it appears in the log and in artifacts.
func (c Chunk) Line() string {
	return fmt.Sprintf("0x%x : %08x %08x %08x %08x", c.Offset, c.Words[0], c.Words[1], c.Words[2], c.Words[3])
}

// WindowHeader is the line emitted before the chunks of one window.
func WindowHeader(name string, startOffset, length uint64) string {
	return fmt.Sprintf("%s: start_offset 0x%x len 0x%x", name, startOffset, length)
}

// BlockHeader is the line emitted before each block.
func BlockHeader(name string) string {
	return fmt.Sprintf("=========%s DUMP=========", name)
}
