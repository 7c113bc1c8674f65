package histogram

import "errors"

// Sentinel errors surfaced by the accumulate/persist/merge operations.
// Match with errors.Is; wrapped errors carry the offending detail.
var (
	// ErrEmptyMerge is returned when Merge is called with no histograms.
	ErrEmptyMerge = errors.New("histogram: merge of zero histograms")

	// ErrIncompatibleBinning is returned when histograms with differing
	// bin-edge schemes are merged.
	ErrIncompatibleBinning = errors.New("histogram: incompatible bin edges")

	// ErrCorruptData is returned when a persisted histogram violates the
	// structural invariants on load.
	ErrCorruptData = errors.New("histogram: corrupt persisted histogram")

	// ErrSchemaMismatch is returned when persisting over an existing file
	// that holds a different bin-edge scheme without overwrite.
	ErrSchemaMismatch = errors.New("histogram: persisted bin-edge scheme differs")

	// ErrZeroSamples flags derived statistics requested on an all-empty
	// histogram. The returned slices are valid (all zero); this is a
	// warning, not a failure.
	ErrZeroSamples = errors.New("histogram: zero in-range samples")
)
