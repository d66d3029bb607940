// Package engine owns the diagnostics pipeline of one display controller.
//
// Callers build a Request (or use Trigger with plain target names). Submit
// resolves the names against the catalog and queues the request on a
// bounded FIFO. A single worker runs captures one at a time: it snapshots
// driver state, reads the selected blocks through the dump reader, publishes
// the resulting artifact and finally escalates if the request asked for it.
//
// While an artifact is waiting for its reader no new memory capture starts;
// such requests are refused with ErrCapturePending.
package engine
