// Package dump reads register blocks and fans every chunk out to the enabled
// sinks.
package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/coredump"
	"github.com/specialistvlad/dpudbg/internal/ctxlog"
	"github.com/specialistvlad/dpudbg/internal/regio"
	"github.com/specialistvlad/dpudbg/internal/sink"
)

// PowerContext tells the reader whether it must power the block itself.
type PowerContext int

const (
	// Normal captures enable the power domain around every window.
	Normal PowerContext = iota
	// PowerAlreadyOn captures run while the caller already holds the domain.
	PowerAlreadyOn
)

func (c PowerContext) String() string {
	if c == PowerAlreadyOn {
		return "power-on"
	}
	return "normal"
}

// Pass describes one capture over one or more blocks.
type Pass struct {
	Flags   sink.Flags
	Context PowerContext
	// Artifact, when set, receives the text of every block and chunk.
	Artifact *coredump.Artifact
}

func (p Pass) coredump() bool { return p.Artifact != nil }

// Reader is the register reader and sink multiplexer.
type Reader struct {
	Bus   regio.Bus
	Power regio.PowerDomain
	// Log is where the Log sink writes. Diagnostics about the read itself go
	// to the context logger.
	Log *slog.Logger
	// MaxBufferWords caps a single memory buffer. Zero means no cap.
	MaxBufferWords int
}

func (r *Reader) emitLog(ctx context.Context, p Pass, msg string, args ...any) {
	if p.Flags.Has(sink.Log) && r.Log != nil {
		r.Log.InfoContext(ctx, msg, args...)
	}
}

// DumpBase captures one block into every sink enabled in p. A power failure
// aborts the rest of this block and is returned.
func (r *Reader) DumpBase(ctx context.Context, b *catalog.Base, p Pass) error {
	if p.Flags&sink.All == 0 {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("block", b.Name)

	header := sink.BlockHeader(b.Name)
	r.emitLog(ctx, p, header)
	if p.coredump() {
		p.Artifact.WriteLine(header)
	}

	switch b.Kind() {
	case catalog.KindCustom:
		w := &lineWriter{ctx: ctx, r: r, p: p, block: b.Name}
		err := b.Custom()(ctx, w)
		w.flush()
		if err != nil {
			logger.Error("Custom block capture failed.", "error", err)
			return fmt.Errorf("block %s: %w", b.Name, err)
		}
		return nil

	case catalog.KindRanged:
		for _, rng := range b.SortRanges() {
			win := b.Window(rng)
			logger.Debug("Dumping range.", "range", rng.Name, "start", rng.Start, "end", rng.End, "client_id", rng.ClientID)
			if err := r.dumpWindow(ctx, b, win, &rng.Mem, p); err != nil {
				return err
			}
		}
		return nil

	default:
		r.emitLog(ctx, p, "Ranges not found, will dump full registers", "base", fmt.Sprintf("0x%x", b.Address), "len", fmt.Sprintf("0x%x", b.MaxOffset))
		return r.dumpWindow(ctx, b, b.WholeWindow(), &b.Mem, p)
	}
}

func (r *Reader) dumpWindow(ctx context.Context, b *catalog.Base, win catalog.Window, buf *catalog.Buffer, p Pass) error {
	if win.Length == 0 {
		return nil
	}
	logger := ctxlog.FromContext(ctx)

	header := sink.WindowHeader(win.Name, win.Start, win.Length)
	r.emitLog(ctx, p, header)

	padded := win.Padded()
	chunks := int(padded / sink.ChunkBytes)

	var mem []uint32
	if p.Flags.Has(sink.Memory) {
		words, ok := buf.Ensure(int(padded/regio.WordSize), r.MaxBufferWords)
		if ok {
			mem = words
		} else {
			logger.Error("Dump buffer refused, memory output disabled for window.", "window", win.Name, "len", padded)
		}
	}
	if p.coredump() {
		p.Artifact.WriteLine(fmt.Sprintf("%s: len:0x%x reg_offset=0x%x", win.Name, padded, win.Start))
	}

	read := func() {
		end := win.End()
		for i := 0; i < chunks; i++ {
			c := sink.Chunk{Offset: win.Start + uint64(i)*sink.ChunkBytes}
			for j := range c.Words {
				off := c.Offset + uint64(j)*regio.WordSize
				if off < end && off+regio.WordSize <= b.MaxOffset {
					c.Words[j] = r.Bus.ReadWord(b.Address + off)
				}
			}
			r.fanOut(ctx, c, i, mem, p)
		}
	}

	if p.Context == PowerAlreadyOn {
		read()
		return nil
	}
	if err := regio.WithPower(ctx, r.Power, read); err != nil {
		logger.Error("Failed to enable power.", "window", win.Name, "error", err)
		return fmt.Errorf("block %s window %s: %w", b.Name, win.Name, err)
	}
	return nil
}

// fanOut hands one chunk to every enabled sink.
func (r *Reader) fanOut(ctx context.Context, c sink.Chunk, idx int, mem []uint32, p Pass) {
	if p.Flags.Has(sink.Log) {
		r.emitLog(ctx, p, c.Line())
	}
	if mem != nil {
		copy(mem[idx*4:], c.Words[:])
	}
	if p.coredump() {
		p.Artifact.WriteLine(c.Line())
	}
}

// lineWriter forwards the output of a custom capture callback line by line.
type lineWriter struct {
	ctx     context.Context
	r       *Reader
	p       Pass
	block   string
	partial bytes.Buffer
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.partial.Write(b)
	for {
		line, err := w.partial.ReadString('\n')
		if err != nil {
			// Keep the incomplete tail for the next write.
			rest := []byte(line)
			w.partial.Reset()
			w.partial.Write(rest)
			break
		}
		w.emit(line[:len(line)-1])
	}
	return len(b), nil
}

func (w *lineWriter) emit(line string) {
	w.r.emitLog(w.ctx, w.p, line)
	if w.p.coredump() {
		w.p.Artifact.WriteLine(line)
	}
}

func (w *lineWriter) flush() {
	if w.partial.Len() > 0 {
		w.emit(w.partial.String())
		w.partial.Reset()
	}
}

// DumpAll captures each block in order. Failures are isolated per block and
// returned together.
func (r *Reader) DumpAll(ctx context.Context, bases []*catalog.Base, p Pass) error {
	var errs []error
	for _, b := range bases {
		if err := r.DumpBase(ctx, b, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
