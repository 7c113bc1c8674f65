// Package histogram provides precipitation-rate histogram accumulation,
// merging, and persistence for the precip-hist pipeline.
//
// Each data chunk (e.g. one month of gridded mtpr samples) produces one
// immutable Histogram. Histograms are persisted to NetCDF, then merged
// across chunks by summing per-bin counts. Frequency and probability
// density are derived on demand from counts - counts are the single
// source of truth and derived statistics are never stored.
package histogram

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// =============================================================================
// Time Band
// =============================================================================

// TimeBand is the time span covered by a histogram's input samples.
type TimeBand struct {
	Start time.Time
	End   time.Time
}

// Duration returns the span length (End - Start).
func (b TimeBand) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Union returns the band spanning from the earlier start to the later end.
func (b TimeBand) Union(o TimeBand) TimeBand {
	u := b
	if o.Start.Before(u.Start) {
		u.Start = o.Start
	}
	if o.End.After(u.End) {
		u.End = o.End
	}
	return u
}

// =============================================================================
// Provenance
// =============================================================================

// Provenance identifies where a histogram's samples came from.
type Provenance struct {
	Variable string // source variable name, e.g. "mtpr"
	Source   string // model or observation identifier, e.g. "era5"
	Domain   string // spatial domain descriptor, e.g. "30S-30N"
}

// =============================================================================
// Histogram
// =============================================================================

// Histogram is a binned frequency count of precipitation-rate samples
// over a time band.
//
// Invariants (checked by Validate):
//   - Edges strictly increasing
//   - len(Counts) == len(Edges) - 1
//   - Band end not before start
//
// Bins are half-open intervals [Edges[i], Edges[i+1]). Samples below the
// first edge or at/above the last edge are dropped during accumulation
// and tallied in Excluded - never clipped into the outermost bins.
type Histogram struct {
	Edges  []float64
	Counts []uint64
	Band   TimeBand
	Meta   Provenance

	// DurationSum is the sum of the durations of all constituent bands.
	// For a freshly computed histogram it equals Band.Duration(); after a
	// merge it may exceed the union span, which indicates overlapping
	// (likely duplicate) inputs.
	DurationSum time.Duration

	// Excluded counts input samples dropped as out of range.
	Excluded uint64
}

// Edges generates bins+1 evenly spaced bin edges covering [min, max].
func Edges(min, max float64, bins int) ([]float64, error) {
	if bins < 1 {
		return nil, fmt.Errorf("histogram: bin count must be >= 1, got %d", bins)
	}
	if !(max > min) {
		return nil, fmt.Errorf("histogram: max (%g) must exceed min (%g)", max, min)
	}
	width := (max - min) / float64(bins)
	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = min + float64(i)*width
	}
	edges[bins] = max
	return edges, nil
}

// Compute bins values into a new Histogram over the given edges.
//
// Values below edges[0] or at/above edges[len-1] are excluded, not
// clipped; NaN values are treated as out of range. Compute is pure:
// it does not retain or mutate the input slices.
func Compute(values []float64, edges []float64, band TimeBand, meta Provenance) (*Histogram, error) {
	if err := validateEdges(edges); err != nil {
		return nil, err
	}
	if band.End.Before(band.Start) {
		return nil, fmt.Errorf("histogram: time band end %v before start %v", band.End, band.Start)
	}

	h := &Histogram{
		Edges:       append([]float64(nil), edges...),
		Counts:      make([]uint64, len(edges)-1),
		Band:        band,
		Meta:        meta,
		DurationSum: band.Duration(),
	}

	last := len(edges) - 1
	for _, v := range values {
		// SearchFloat64s returns the first i with edges[i] >= v, so for
		// in-range v the containing half-open bin is i-1, or i when v
		// sits exactly on a left edge. NaN compares false everywhere and
		// falls out the high end.
		i := sort.SearchFloat64s(edges, v)
		switch {
		case i < len(edges) && edges[i] == v:
			if i == last {
				h.Excluded++ // at the final edge: outside the last half-open bin
			} else {
				h.Counts[i]++
			}
		case i == 0 || i == len(edges):
			h.Excluded++
		default:
			h.Counts[i-1]++
		}
	}

	return h, nil
}

// Total returns the number of in-range samples across all bins.
func (h *Histogram) Total() uint64 {
	var n uint64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	c := *h
	c.Edges = append([]float64(nil), h.Edges...)
	c.Counts = append([]uint64(nil), h.Counts...)
	return &c
}

// Overlapping reports whether the constituent time bands overlapped,
// i.e. the summed durations exceed the union span. On a merged histogram
// this usually means duplicate chunks were fed into the merge.
func (h *Histogram) Overlapping() bool {
	return h.DurationSum > h.Band.Duration()
}

// Validate checks the structural invariants.
func (h *Histogram) Validate() error {
	if err := validateEdges(h.Edges); err != nil {
		return err
	}
	if len(h.Counts) != len(h.Edges)-1 {
		return fmt.Errorf("histogram: %d counts for %d edges (want %d)",
			len(h.Counts), len(h.Edges), len(h.Edges)-1)
	}
	if h.Band.End.Before(h.Band.Start) {
		return fmt.Errorf("histogram: time band end %v before start %v", h.Band.End, h.Band.Start)
	}
	return nil
}

func validateEdges(edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("histogram: need at least 2 bin edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return fmt.Errorf("histogram: bin edges not strictly increasing at index %d (%g -> %g)",
				i, edges[i-1], edges[i])
		}
	}
	return nil
}

// =============================================================================
// Derived Statistics
// =============================================================================

// Frequency returns per-bin count / total count.
//
// An all-empty histogram yields an all-zero slice together with
// ErrZeroSamples; callers should treat that as a warning, not a failure.
func (h *Histogram) Frequency() ([]float64, error) {
	freq := make([]float64, len(h.Counts))
	total := h.Total()
	if total == 0 {
		return freq, ErrZeroSamples
	}
	ft := float64(total)
	for i, c := range h.Counts {
		freq[i] = float64(c) / ft
	}
	return freq, nil
}

// Density returns the probability density per bin: frequency divided by
// bin width, integrating to 1 over the covered range. Zero-sample
// handling matches Frequency.
func (h *Histogram) Density() ([]float64, error) {
	freq, err := h.Frequency()
	if err != nil && err != ErrZeroSamples {
		return nil, err
	}
	for i := range freq {
		freq[i] /= h.Edges[i+1] - h.Edges[i]
	}
	return freq, err
}

// =============================================================================
// Edge Comparison
// =============================================================================

// edgeTolerance is the absolute per-element tolerance for treating two
// bin-edge schemes as identical. Edges built by repeated floating-point
// arithmetic drift far below this; distinct schemes differ by at least
// one bin width.
const edgeTolerance = 1e-9

// EdgesEqual reports whether two edge sequences define the same binning
// scheme within edgeTolerance.
func EdgesEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > edgeTolerance {
			return false
		}
	}
	return true
}
