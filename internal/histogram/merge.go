package histogram

import "fmt"

// Merge combines histograms sharing one bin-edge scheme into a new
// histogram by summing counts per bin. Inputs are not mutated.
//
// The result's band spans from the earliest start to the latest end,
// while DurationSum accumulates the constituent durations so callers can
// detect overlapping inputs via Overlapping(). Excluded tallies are
// summed as well. Provenance is taken from the first input; callers
// merging across sources should check compatibility themselves.
//
// Merge is associative and commutative over the count sums, so input
// order never affects the result. Merging a single histogram returns an
// equivalent copy; merging none fails with ErrEmptyMerge.
func Merge(hs []*Histogram) (*Histogram, error) {
	if len(hs) == 0 {
		return nil, ErrEmptyMerge
	}

	if err := hs[0].Validate(); err != nil {
		return nil, err
	}
	out := hs[0].Clone()

	for i, h := range hs[1:] {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if !EdgesEqual(out.Edges, h.Edges) {
			return nil, fmt.Errorf("%w: input %d does not match input 0", ErrIncompatibleBinning, i+1)
		}
		for j, c := range h.Counts {
			out.Counts[j] += c
		}
		out.Band = out.Band.Union(h.Band)
		out.DurationSum += h.DurationSum
		out.Excluded += h.Excluded
	}

	return out, nil
}
