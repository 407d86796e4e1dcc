// Package checkpoint persists the resume point of a digit generation run.
//
// A checkpoint is a small text record: the number of digits durably written,
// the accumulated wall-clock seconds, and the output offsets that were
// flushed when the record was taken. The first two lines match the classic
// two-line format; the offset lines are optional on load.
package checkpoint

import "errors"

// ErrCorruptCheckpoint is returned when a checkpoint record cannot be parsed.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

// Offsets records how much of each output was durably written when the
// checkpoint was taken. SegmentIndex is 1-based; zero means no decimal
// segment has been created yet.
type Offsets struct {
	BinaryBytes  uint64
	SegmentIndex uint64
	SegmentBytes uint64
}

// Checkpoint is the minimal durable state needed to resume generation.
type Checkpoint struct {
	// Digits is the count of fractional digits written to both outputs.
	Digits uint64

	// Elapsed is the accumulated generation time in seconds across runs.
	Elapsed float64

	// Offsets is meaningful only when HasOffsets is true.
	Offsets Offsets

	// HasOffsets is false for records in the two-line format, whose output
	// sizes are unknown and therefore cannot be reconciled.
	HasOffsets bool
}
