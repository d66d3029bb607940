package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/dpudbg/internal/catalog"
	"github.com/specialistvlad/dpudbg/internal/engine"
	"github.com/specialistvlad/dpudbg/internal/sink"
)

// DefaultMagic is the value that makes the debug trigger dump everything.
const DefaultMagic = 42

// Model is the whole configuration.
type Model struct {
	Engine    Engine
	Blocks    []*Block
	Notifiers []*Notifier
}

// Engine holds the engine tuning knobs. Zero values mean "use the default".
type Engine struct {
	Sinks           []string
	QueueDepth      int
	MaxSelection    int
	MaxBufferWords  int
	CoredumpTimeout time.Duration
	Magic           uint64
	Module          string
}

// Block is a register block and its ranges.
type Block struct {
	Name    string
	Address uint64
	Length  uint64
	Ranges  []*Range
}

// Range is a named sub-window of a block.
type Range struct {
	Name     string
	Start    uint64
	End      uint64
	ClientID uint32
}

// Notifier configures one coredump subscriber. Kind selects the module.
type Notifier struct {
	Kind               string
	URL                string
	Namespace          string
	Event              string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Default returns a model with every default applied and no blocks.
func Default() *Model {
	return &Model{Engine: Engine{
		Sinks:           []string{"memory"},
		QueueDepth:      engine.DefaultQueueDepth,
		MaxSelection:    engine.DefaultMaxSelection,
		CoredumpTimeout: 5 * time.Minute,
		Magic:           DefaultMagic,
		Module:          engine.DefaultModule,
	}}
}

// Merge overlays the non-zero engine settings of other and appends its
// blocks and notifiers.
func (m *Model) Merge(other *Model) {
	e := other.Engine
	if len(e.Sinks) > 0 {
		m.Engine.Sinks = e.Sinks
	}
	if e.QueueDepth > 0 {
		m.Engine.QueueDepth = e.QueueDepth
	}
	if e.MaxSelection > 0 {
		m.Engine.MaxSelection = e.MaxSelection
	}
	if e.MaxBufferWords > 0 {
		m.Engine.MaxBufferWords = e.MaxBufferWords
	}
	if e.CoredumpTimeout != 0 {
		m.Engine.CoredumpTimeout = e.CoredumpTimeout
	}
	if e.Magic != 0 {
		m.Engine.Magic = e.Magic
	}
	if e.Module != "" {
		m.Engine.Module = e.Module
	}
	m.Blocks = append(m.Blocks, other.Blocks...)
	m.Notifiers = append(m.Notifiers, other.Notifiers...)
}

// Options converts the engine section into engine.Options.
func (m *Model) Options() (engine.Options, error) {
	flags, err := sink.Parse(m.Engine.Sinks)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Sinks:          flags,
		QueueDepth:     m.Engine.QueueDepth,
		MaxSelection:   m.Engine.MaxSelection,
		MaxBufferWords: m.Engine.MaxBufferWords,
		Module:         m.Engine.Module,
	}, nil
}

// Apply registers every block and range with c. Block failures are collected
// and returned. A rejected range is only logged by the catalog; its block
// keeps the ranges that registered.
func (m *Model) Apply(c *catalog.Catalog) error {
	var errs []error
	for _, b := range m.Blocks {
		if err := c.RegisterBase(b.Name, b.Address, b.Length); err != nil {
			errs = append(errs, fmt.Errorf("block %q: %w", b.Name, err))
			continue
		}
		for _, r := range b.Ranges {
			_ = c.RegisterRange(b.Name, r.Name, r.Start, r.End, r.ClientID)
		}
	}
	return errors.Join(errs...)
}
