package catalog

import (
	"context"
	"errors"
	"io"
	"sort"
)

// AlignUnit is the register dump alignment in bytes. Ranges must be at least
// this wide and windows are padded up to a multiple of it.
const AlignUnit = 16

const (
	maxBaseNameLen  = 80
	maxRangeNameLen = 40
)

// Reserved target names understood by the dump trigger. They can never be
// used as block names.
const (
	TargetAll   = "all"
	TargetPanic = "panic"
)

var (
	ErrAlreadyExists = errors.New("already registered")
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidRange  = errors.New("invalid range")
	ErrUnknownBase   = errors.New("unknown base")
)

// Kind selects how a block is read.
type Kind int

const (
	KindWhole Kind = iota
	KindRanged
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindWhole:
		return "whole"
	case KindRanged:
		return "ranged"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// CaptureFunc replaces the default register reads of a block. Everything it
// writes to w is forwarded to the enabled sinks line by line.
type CaptureFunc func(ctx context.Context, w io.Writer) error

// Buffer is a lazily allocated word buffer reused across captures.
type Buffer struct {
	words []uint32
}

// Ensure returns a buffer of exactly n words, allocating it on first use.
// A request above limit words (when limit > 0) fails and leaves the buffer
// untouched. A previously allocated buffer of a different size is replaced.
func (b *Buffer) Ensure(n int, limit int) ([]uint32, bool) {
	if limit > 0 && n > limit {
		return nil, false
	}
	if len(b.words) != n {
		b.words = make([]uint32, n)
	}
	return b.words, true
}

// Words returns the captured words, or nil if nothing was captured yet.
func (b *Buffer) Words() []uint32 {
	if b.words == nil {
		return nil
	}
	out := make([]uint32, len(b.words))
	copy(out, b.words)
	return out
}

func (b *Buffer) release() { b.words = nil }

// Range is a named sub-window [Start, End) of a block.
type Range struct {
	Name     string
	Start    uint64
	End      uint64
	ClientID uint32

	// Mem holds the words of the last memory capture of this range.
	Mem Buffer

	seq int
}

// Base is a named memory-mapped register block.
type Base struct {
	Name      string
	Address   uint64
	MaxOffset uint64

	// Mem holds the words of the last whole-block memory capture.
	Mem Buffer

	ranges []*Range
	custom CaptureFunc
}

// Kind reports how the block will be read.
func (b *Base) Kind() Kind {
	switch {
	case b.custom != nil:
		return KindCustom
	case len(b.ranges) > 0:
		return KindRanged
	default:
		return KindWhole
	}
}

// Custom returns the block's capture callback, if any.
func (b *Base) Custom() CaptureFunc { return b.custom }

// SortRanges orders the block's ranges by start offset. Ties keep their
// registration order. The sorted order is kept for later captures.
func (b *Base) SortRanges() []*Range {
	sort.SliceStable(b.ranges, func(i, j int) bool {
		if b.ranges[i].Start != b.ranges[j].Start {
			return b.ranges[i].Start < b.ranges[j].Start
		}
		return b.ranges[i].seq < b.ranges[j].seq
	})
	return b.ranges
}

// Window is the clipped part of a block that one range covers.
type Window struct {
	Name   string
	Start  uint64
	Length uint64
}

// End returns the exclusive end offset of the window.
func (w Window) End() uint64 { return w.Start + w.Length }

// Padded returns the window length rounded up to AlignUnit.
func (w Window) Padded() uint64 {
	return (w.Length + AlignUnit - 1) / AlignUnit * AlignUnit
}

// ClipLength returns how many bytes of [start, end) may be read from a block
// of maxOffset bytes:
//   - start == 0 && end == 0 means the entire block;
//   - a range crossing maxOffset is truncated at maxOffset;
//   - a range fully inside the block is used as is;
//   - anything starting at or past maxOffset yields zero.
func ClipLength(start, end, maxOffset uint64) uint64 {
	if start == 0 && end == 0 {
		return maxOffset
	}
	if start >= maxOffset {
		return 0
	}
	if end > maxOffset {
		return maxOffset - start
	}
	if start < end {
		return end - start
	}
	return 0
}

// Window computes the clipped window of r within b.
func (b *Base) Window(r *Range) Window {
	return Window{Name: r.Name, Start: r.Start, Length: ClipLength(r.Start, r.End, b.MaxOffset)}
}

// WholeWindow is the implicit window of a block without ranges.
func (b *Base) WholeWindow() Window {
	return Window{Name: b.Name, Start: 0, Length: b.MaxOffset}
}

// RangeInfo is an immutable copy of a registered range.
type RangeInfo struct {
	Name     string
	Start    uint64
	End      uint64
	ClientID uint32
}

// Info is an immutable copy of a registered block.
type Info struct {
	Name      string
	Address   uint64
	MaxOffset uint64
	Kind      Kind
	Ranges    []RangeInfo
}

func (b *Base) info() Info {
	inf := Info{
		Name:      b.Name,
		Address:   b.Address,
		MaxOffset: b.MaxOffset,
		Kind:      b.Kind(),
	}
	for _, r := range b.ranges {
		inf.Ranges = append(inf.Ranges, RangeInfo{Name: r.Name, Start: r.Start, End: r.End, ClientID: r.ClientID})
	}
	return inf
}
