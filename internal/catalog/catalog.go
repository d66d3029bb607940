package catalog

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/specialistvlad/dpudbg/internal/ctxlog"
)

// Catalog is the set of registered blocks of one diagnostics engine.
type Catalog struct {
	mu     sync.Mutex
	logger *slog.Logger
	bases  []*Base
	seq    int
}

// New creates an empty catalog.
func New(logger *slog.Logger) *Catalog {
	return &Catalog{logger: ctxlog.OrDiscard(logger)}
}

func validName(name string, max int) bool {
	if name == "" || len(name) > max {
		return false
	}
	return name != TargetAll && name != TargetPanic
}

// RegisterBase adds a block named name at address, maxOffset bytes long.
func (c *Catalog) RegisterBase(name string, address, maxOffset uint64) error {
	return c.register(name, address, maxOffset, nil)
}

// RegisterCustomBase adds a block whose capture is fully handled by fn.
func (c *Catalog) RegisterCustomBase(name string, address, maxOffset uint64, fn CaptureFunc) error {
	if fn == nil {
		return fmt.Errorf("base %q: %w: nil capture callback", name, ErrInvalidName)
	}
	return c.register(name, address, maxOffset, fn)
}

func (c *Catalog) register(name string, address, maxOffset uint64, fn CaptureFunc) error {
	if !validName(name, maxBaseNameLen) {
		c.logger.Error("No usable debug name provided.", "name", name)
		return fmt.Errorf("base %q: %w", name, ErrInvalidName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lookup(name) != nil {
		c.logger.Error("Register base already exists.", "name", name)
		return fmt.Errorf("base %q: %w", name, ErrAlreadyExists)
	}

	c.bases = append(c.bases, &Base{
		Name:      name,
		Address:   address,
		MaxOffset: maxOffset,
		custom:    fn,
	})
	c.logger.Info("Register base added.", "name", name, "base", fmt.Sprintf("0x%x", address), "max_offset", fmt.Sprintf("0x%x", maxOffset))
	return nil
}

// RegisterRange adds the sub-range [start, end) to the block baseName.
// Failures are logged; the returned error may be ignored by callers that
// treat registration as best effort. The pair (0, 0) registers a range that
// covers the entire block.
func (c *Catalog) RegisterRange(baseName, rangeName string, start, end uint64, clientID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.lookup(baseName)
	if base == nil {
		c.logger.Error("Unable to locate base for range.", "base", baseName, "range", rangeName)
		return fmt.Errorf("range %q: %w %q", rangeName, ErrUnknownBase, baseName)
	}

	if !validName(rangeName, maxRangeNameLen) {
		c.logger.Error("Bad range name.", "base", baseName, "start", fmt.Sprintf("0x%x", start), "end", fmt.Sprintf("0x%x", end))
		return fmt.Errorf("range %q: %w", rangeName, ErrInvalidName)
	}

	wholeBlock := start == 0 && end == 0
	if !wholeBlock && (start > end || end-start < AlignUnit) {
		c.logger.Error("Bad range.", "base", baseName, "range", rangeName, "start", fmt.Sprintf("0x%x", start), "end", fmt.Sprintf("0x%x", end))
		return fmt.Errorf("range %q [0x%x, 0x%x): %w", rangeName, start, end, ErrInvalidRange)
	}

	for _, r := range base.ranges {
		if r.Name == rangeName {
			c.logger.Error("Range already exists.", "base", baseName, "range", rangeName)
			return fmt.Errorf("range %q in base %q: %w", rangeName, baseName, ErrAlreadyExists)
		}
	}

	c.seq++
	base.ranges = append(base.ranges, &Range{
		Name:     rangeName,
		Start:    start,
		End:      end,
		ClientID: clientID,
		seq:      c.seq,
	})
	c.logger.Info("Dump range added.", "base", baseName, "range", rangeName, "start", fmt.Sprintf("0x%x", start), "end", fmt.Sprintf("0x%x", end), "client_id", clientID)
	return nil
}

// lookup is a linear scan; callers hold c.mu.
func (c *Catalog) lookup(name string) *Base {
	for _, b := range c.bases {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Lookup returns a copy of the block registered as name.
func (c *Catalog) Lookup(name string) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.lookup(name)
	if b == nil {
		return Info{}, false
	}
	return b.info(), true
}

// Names returns all block names in registration order.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.bases))
	for _, b := range c.bases {
		names = append(names, b.Name)
	}
	return names
}

// Len returns the number of registered blocks.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bases)
}

// View gives exclusive access to the blocks while a capture runs.
type View struct {
	c *Catalog
}

// Lookup returns the live block registered as name.
func (v *View) Lookup(name string) *Base { return v.c.lookup(name) }

// All returns every live block in registration order.
func (v *View) All() []*Base {
	out := make([]*Base, len(v.c.bases))
	copy(out, v.c.bases)
	return out
}

// Do runs fn while holding the catalog lock.
func (c *Catalog) Do(fn func(v *View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&View{c: c})
}

// Teardown releases every range and then every block. It is safe to call on
// a nil or already torn down catalog.
func (c *Catalog) Teardown() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range c.bases {
		for _, r := range b.ranges {
			r.Mem.release()
		}
		b.ranges = nil
	}
	for _, b := range c.bases {
		b.Mem.release()
		b.custom = nil
	}
	if len(c.bases) > 0 {
		c.logger.Debug("Catalog torn down.", "bases", len(c.bases))
	}
	c.bases = nil
}
