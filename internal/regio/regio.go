// Package regio defines the register transport capabilities consumed by the
// capture pipeline: a word-granular read primitive and a power domain that
// must be active while registers are read.
package regio

import (
	"context"
	"errors"
)

// WordSize is the width in bytes of a single register read.
const WordSize = 4

// ErrPowerEnable is returned (wrapped) when a power domain cannot be enabled.
var ErrPowerEnable = errors.New("power domain enable failed")

// Bus reads 32-bit registers by absolute address. Reads are assumed to be
// side-effect free and safe anywhere inside a registered block.
type Bus interface {
	ReadWord(addr uint64) uint32
}

// PowerDomain gates register access. Enable may sleep.
type PowerDomain interface {
	Enable(ctx context.Context) error
	Disable()
}

// BusFunc adapts a plain function to the Bus interface.
type BusFunc func(addr uint64) uint32

// ReadWord implements Bus.
func (f BusFunc) ReadWord(addr uint64) uint32 { return f(addr) }

// NopPower is a PowerDomain that is always on.
type NopPower struct{}

// Enable implements PowerDomain.
func (NopPower) Enable(context.Context) error { return nil }

// Disable implements PowerDomain.
func (NopPower) Disable() {}

// WithPower runs fn with the domain enabled and always disables it afterwards,
// including when fn panics. An enable failure is returned without calling fn.
func WithPower(ctx context.Context, pd PowerDomain, fn func()) error {
	if pd == nil {
		fn()
		return nil
	}
	if err := pd.Enable(ctx); err != nil {
		if errors.Is(err, ErrPowerEnable) {
			return err
		}
		return errors.Join(ErrPowerEnable, err)
	}
	defer pd.Disable()
	fn()
	return nil
}
