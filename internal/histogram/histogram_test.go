package histogram

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeta = Provenance{Variable: "mtpr", Source: "era5", Domain: "30S-30N"}

func bandFor(day int, days int) TimeBand {
	start := time.Date(2020, 1, day, 0, 0, 0, 0, time.UTC)
	return TimeBand{Start: start, End: start.AddDate(0, 0, days)}
}

func TestEdges(t *testing.T) {
	t.Run("generates evenly spaced edges", func(t *testing.T) {
		edges, err := Edges(0, 3, 3)

		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1, 2, 3}, edges)
	})

	t.Run("last edge is exactly max", func(t *testing.T) {
		edges, err := Edges(0, 0.7, 7)

		require.NoError(t, err)
		assert.Len(t, edges, 8)
		assert.Equal(t, 0.7, edges[7])
	})

	t.Run("rejects non-positive bin count", func(t *testing.T) {
		_, err := Edges(0, 1, 0)
		require.Error(t, err)
	})

	t.Run("rejects max not above min", func(t *testing.T) {
		_, err := Edges(2, 2, 4)
		require.Error(t, err)
	})
}

func TestCompute(t *testing.T) {
	edges := []float64{0, 1, 2, 3}

	t.Run("drops out-of-range values and counts them", func(t *testing.T) {
		h, err := Compute([]float64{0.5, 1.5, 2.5, 100.0}, edges, bandFor(1, 31), testMeta)

		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 1, 1}, h.Counts)
		assert.Equal(t, uint64(1), h.Excluded)
	})

	t.Run("conserves samples between counts and excluded", func(t *testing.T) {
		values := []float64{-1, 0, 0.3, 0.9999, 1, 2.9999, 3, 3.1, math.NaN()}

		h, err := Compute(values, edges, bandFor(1, 31), testMeta)

		require.NoError(t, err)
		assert.Equal(t, uint64(len(values)), h.Total()+h.Excluded)
	})

	t.Run("bins are half-open on the right", func(t *testing.T) {
		h, err := Compute([]float64{0, 1, 2}, edges, bandFor(1, 31), testMeta)

		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 1, 1}, h.Counts, "left edges belong to their bin")
		assert.Equal(t, uint64(0), h.Excluded)
	})

	t.Run("value at the last edge is excluded not clipped", func(t *testing.T) {
		h, err := Compute([]float64{3}, edges, bandFor(1, 31), testMeta)

		require.NoError(t, err)
		assert.Equal(t, []uint64{0, 0, 0}, h.Counts)
		assert.Equal(t, uint64(1), h.Excluded)
	})

	t.Run("value below the first edge is excluded", func(t *testing.T) {
		h, err := Compute([]float64{-0.001}, edges, bandFor(1, 31), testMeta)

		require.NoError(t, err)
		assert.Equal(t, uint64(0), h.Total())
		assert.Equal(t, uint64(1), h.Excluded)
	})

	t.Run("NaN is treated as out of range", func(t *testing.T) {
		h, err := Compute([]float64{math.NaN()}, edges, bandFor(1, 31), testMeta)

		require.NoError(t, err)
		assert.Equal(t, uint64(1), h.Excluded)
	})

	t.Run("fresh histogram has duration sum equal to band duration", func(t *testing.T) {
		band := bandFor(1, 31)

		h, err := Compute([]float64{0.5}, edges, band, testMeta)

		require.NoError(t, err)
		assert.Equal(t, band.Duration(), h.DurationSum)
		assert.False(t, h.Overlapping())
	})

	t.Run("rejects non-increasing edges", func(t *testing.T) {
		_, err := Compute([]float64{0.5}, []float64{0, 2, 1}, bandFor(1, 31), testMeta)
		require.Error(t, err)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []float64{0.5, 1.5}
		e := []float64{0, 1, 2}

		h, err := Compute(in, e, bandFor(1, 31), testMeta)
		require.NoError(t, err)

		h.Edges[0] = -99
		assert.Equal(t, []float64{0, 1, 2}, e)
		assert.Equal(t, []float64{0.5, 1.5}, in)
	})
}

func TestMerge(t *testing.T) {
	edges := []float64{0, 1, 2, 3}

	mustCompute := func(t *testing.T, values []float64, band TimeBand) *Histogram {
		t.Helper()
		h, err := Compute(values, edges, band, testMeta)
		require.NoError(t, err)
		return h
	}

	t.Run("sums counts per bin and unions bands", func(t *testing.T) {
		h1 := mustCompute(t, []float64{0.5, 1.5, 2.5}, bandFor(1, 31))
		h2 := mustCompute(t, []float64{1.1, 1.9}, bandFor(1+31, 29))

		m, err := Merge([]*Histogram{h1, h2})

		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 3, 1}, m.Counts)
		assert.Equal(t, h1.Band.Start, m.Band.Start)
		assert.Equal(t, h2.Band.End, m.Band.End)
		assert.False(t, m.Overlapping())
	})

	t.Run("merging one histogram returns an equivalent copy", func(t *testing.T) {
		h := mustCompute(t, []float64{0.5, 2.5}, bandFor(1, 31))

		m, err := Merge([]*Histogram{h})

		require.NoError(t, err)
		assert.Equal(t, h, m)
		m.Counts[0] = 999
		assert.Equal(t, uint64(1), h.Counts[0], "copy must not alias input counts")
	})

	t.Run("merging zero histograms fails", func(t *testing.T) {
		_, err := Merge(nil)
		assert.ErrorIs(t, err, ErrEmptyMerge)
	})

	t.Run("is commutative", func(t *testing.T) {
		h1 := mustCompute(t, []float64{0.5, 1.5}, bandFor(1, 31))
		h2 := mustCompute(t, []float64{2.5}, bandFor(1+31, 29))

		a, err := Merge([]*Histogram{h1, h2})
		require.NoError(t, err)
		b, err := Merge([]*Histogram{h2, h1})
		require.NoError(t, err)

		assert.Equal(t, a.Counts, b.Counts)
		assert.Equal(t, a.Band, b.Band)
		assert.Equal(t, a.DurationSum, b.DurationSum)
	})

	t.Run("is associative", func(t *testing.T) {
		h1 := mustCompute(t, []float64{0.5}, bandFor(1, 10))
		h2 := mustCompute(t, []float64{1.5}, bandFor(11, 10))
		h3 := mustCompute(t, []float64{2.5}, bandFor(21, 10))

		inner23, err := Merge([]*Histogram{h2, h3})
		require.NoError(t, err)
		left, err := Merge([]*Histogram{h1, inner23})
		require.NoError(t, err)

		inner12, err := Merge([]*Histogram{h1, h2})
		require.NoError(t, err)
		right, err := Merge([]*Histogram{inner12, h3})
		require.NoError(t, err)

		assert.Equal(t, left.Counts, right.Counts)
		assert.Equal(t, left.Band, right.Band)
		assert.Equal(t, left.DurationSum, right.DurationSum)
	})

	t.Run("rejects mismatched bin edges", func(t *testing.T) {
		h1 := mustCompute(t, []float64{0.5}, bandFor(1, 31))
		h2, err := Compute([]float64{0.5}, []float64{0, 0.5, 1}, bandFor(1+31, 29), testMeta)
		require.NoError(t, err)

		_, err = Merge([]*Histogram{h1, h2})
		assert.ErrorIs(t, err, ErrIncompatibleBinning)
	})

	t.Run("tolerates float drift in generated edges", func(t *testing.T) {
		gen1, err := Edges(0, 0.7, 7)
		require.NoError(t, err)
		gen2 := make([]float64, len(gen1))
		for i := range gen2 {
			gen2[i] = gen1[i] + 1e-12
		}

		h1, err := Compute([]float64{0.05}, gen1, bandFor(1, 31), testMeta)
		require.NoError(t, err)
		h2, err := Compute([]float64{0.15}, gen2, bandFor(1+31, 29), testMeta)
		require.NoError(t, err)

		m, err := Merge([]*Histogram{h1, h2})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), m.Total())
	})

	t.Run("flags overlapping input bands", func(t *testing.T) {
		h1 := mustCompute(t, []float64{0.5}, bandFor(1, 31))
		dup := mustCompute(t, []float64{1.5}, bandFor(1, 31))

		m, err := Merge([]*Histogram{h1, dup})

		require.NoError(t, err)
		assert.True(t, m.Overlapping(), "duplicate bands must be flagged")
		assert.Equal(t, 2*h1.Band.Duration(), m.DurationSum)
	})

	t.Run("sums excluded tallies", func(t *testing.T) {
		h1 := mustCompute(t, []float64{100}, bandFor(1, 31))
		h2 := mustCompute(t, []float64{-5, 0.5}, bandFor(1+31, 29))

		m, err := Merge([]*Histogram{h1, h2})

		require.NoError(t, err)
		assert.Equal(t, uint64(2), m.Excluded)
	})
}

func TestDerivedStatistics(t *testing.T) {
	edges := []float64{0, 1, 2, 4}

	t.Run("frequency sums to one", func(t *testing.T) {
		h, err := Compute([]float64{0.5, 0.6, 1.5, 3.0}, edges, bandFor(1, 31), testMeta)
		require.NoError(t, err)

		freq, err := h.Frequency()

		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 0.25, 0.25}, freq)
		var sum float64
		for _, f := range freq {
			sum += f
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	})

	t.Run("density divides by bin width", func(t *testing.T) {
		h, err := Compute([]float64{0.5, 0.6, 1.5, 3.0}, edges, bandFor(1, 31), testMeta)
		require.NoError(t, err)

		dens, err := h.Density()

		require.NoError(t, err)
		assert.InDelta(t, 0.5, dens[0], 1e-12)
		assert.InDelta(t, 0.25, dens[1], 1e-12)
		assert.InDelta(t, 0.125, dens[2], 1e-12, "last bin is twice as wide")

		// Densities integrate to 1 over the covered range.
		var integral float64
		for i, d := range dens {
			integral += d * (edges[i+1] - edges[i])
		}
		assert.InDelta(t, 1.0, integral, 1e-12)
	})

	t.Run("zero samples yield zeros with a warning", func(t *testing.T) {
		h, err := Compute(nil, edges, bandFor(1, 31), testMeta)
		require.NoError(t, err)

		freq, err := h.Frequency()
		assert.ErrorIs(t, err, ErrZeroSamples)
		assert.Equal(t, []float64{0, 0, 0}, freq)

		dens, err := h.Density()
		assert.ErrorIs(t, err, ErrZeroSamples)
		assert.Equal(t, []float64{0, 0, 0}, dens)
	})
}

func TestEdgesEqual(t *testing.T) {
	t.Run("differing lengths never match", func(t *testing.T) {
		assert.False(t, EdgesEqual([]float64{0, 1}, []float64{0, 1, 2}))
	})

	t.Run("within tolerance matches", func(t *testing.T) {
		assert.True(t, EdgesEqual([]float64{0, 1, 2}, []float64{0, 1 + 1e-12, 2}))
	})

	t.Run("beyond tolerance differs", func(t *testing.T) {
		assert.False(t, EdgesEqual([]float64{0, 1, 2}, []float64{0, 1.5, 2}))
	})
}

func TestTimeBand(t *testing.T) {
	t.Run("union spans earliest start to latest end", func(t *testing.T) {
		a := bandFor(1, 31)
		b := bandFor(1+31, 29)

		u := a.Union(b)

		assert.Equal(t, a.Start, u.Start)
		assert.Equal(t, b.End, u.End)
		assert.Equal(t, a.Duration()+b.Duration(), u.Duration())
	})
}
