// Package catalog holds the registered register blocks ("bases") and their
// named sub-ranges.
//
// Blocks are registered once at startup and are only torn down as a whole.
// Every capture runs inside Do, which holds the catalog lock for its whole
// duration, so registration never interleaves with a capture.
//
// A block is read in exactly one of three ways, reported by Base.Kind:
//   - KindCustom: a CaptureFunc replaces all default register reads.
//   - KindRanged: every registered range is read, sorted by start offset.
//   - KindWhole: the block is read from offset 0 up to its length.
package catalog
