package engine

import "fmt"

// Halter stops the process after an escalated capture. Halt must not return
// in production; test halters may record the call instead.
type Halter interface {
	Halt(reason string)
}

// HaltError is the panic value used by PanicHalter.
type HaltError struct {
	Reason string
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("dpu dump: halt requested by %s", e.Reason)
}

// PanicHalter halts by panicking with a *HaltError.
type PanicHalter struct{}

// Halt implements Halter.
func (PanicHalter) Halt(reason string) {
	panic(&HaltError{Reason: reason})
}

// HalterFunc adapts a function to the Halter interface.
type HalterFunc func(reason string)

// Halt implements Halter.
func (f HalterFunc) Halt(reason string) { f(reason) }
