// Package precip provides chunked precipitation-rate input handling for
// the precip-hist pipeline.
//
// A chunk is one discrete unit of gridded mtpr data (typically one month)
// stored as CSV, gzipped CSV, or Parquet with columns
// timestamp/lat/lon/mtpr. Chunks are read independently, filtered to a
// spatial domain, and handed to the histogram accumulator as a flat
// value sequence plus the chunk's time band.
package precip

import (
	"fmt"
	"time"

	"github.com/climlab/precip-hist/internal/histogram"
)

// Variable is the precipitation-rate variable this pipeline processes.
const Variable = "mtpr"

// Sample is a single gridded precipitation-rate reading.
// Rate is in kg m-2 s-1 (mean total precipitation rate).
type Sample struct {
	Timestamp int64   `parquet:"timestamp"` // Unix seconds UTC
	Lat       float32 `parquet:"lat"`
	Lon       float32 `parquet:"lon"`
	Rate      float64 `parquet:"mtpr"`
}

// =============================================================================
// Spatial Domain
// =============================================================================

// Domain is a latitude/longitude bounding box used to restrict samples
// to the region under study.
type Domain struct {
	MinLat, MaxLat float32
	MinLon, MaxLon float32
}

// Tropics is the default analysis domain, 30S-30N over all longitudes.
var Tropics = Domain{MinLat: -30, MaxLat: 30, MinLon: -180, MaxLon: 180}

// Contains reports whether the sample location falls inside the domain.
func (d Domain) Contains(lat, lon float32) bool {
	return lat >= d.MinLat && lat <= d.MaxLat && lon >= d.MinLon && lon <= d.MaxLon
}

// String returns a compact descriptor for provenance metadata,
// e.g. "30S-30N" for the tropics band.
func (d Domain) String() string {
	if d.MinLon <= -180 && d.MaxLon >= 180 {
		return fmt.Sprintf("%s-%s", formatLat(d.MinLat), formatLat(d.MaxLat))
	}
	return fmt.Sprintf("%s-%s_%s-%s",
		formatLat(d.MinLat), formatLat(d.MaxLat), formatLon(d.MinLon), formatLon(d.MaxLon))
}

func formatLat(lat float32) string {
	if lat < 0 {
		return fmt.Sprintf("%gS", -lat)
	}
	return fmt.Sprintf("%gN", lat)
}

func formatLon(lon float32) string {
	if lon < 0 {
		return fmt.Sprintf("%gW", -lon)
	}
	return fmt.Sprintf("%gE", lon)
}

// =============================================================================
// Parse Statistics
// =============================================================================

// ParseStats holds counters for one chunk read.
type ParseStats struct {
	TotalRowsRead      int64 // rows read from the source
	SuccessfullyParsed int64 // rows parsed into samples
	FailedRows         int64 // rows that failed to parse
	SkippedEmptyRows   int64 // empty rows skipped
	OutOfDomain        int64 // samples outside the spatial domain
}

// =============================================================================
// Chunk
// =============================================================================

// Chunk is the in-domain value sequence of one input file together with
// the time band its samples cover.
type Chunk struct {
	Values []float64
	Band   histogram.TimeBand
}

// chunkBuilder accumulates samples and derives the chunk time band.
type chunkBuilder struct {
	domain Domain
	stats  *ParseStats

	values []float64

	haveTime bool
	minTs    int64
	maxTs    int64

	// step inference: smallest positive gap between successive distinct
	// timestamps, so the band end covers the final record's interval
	prevTs int64
	step   int64
}

func newChunkBuilder(domain Domain, stats *ParseStats) *chunkBuilder {
	return &chunkBuilder{domain: domain, stats: stats}
}

func (b *chunkBuilder) add(s Sample) {
	if !b.domain.Contains(s.Lat, s.Lon) {
		b.stats.OutOfDomain++
		return
	}
	b.values = append(b.values, s.Rate)

	if !b.haveTime {
		b.haveTime = true
		b.minTs, b.maxTs, b.prevTs = s.Timestamp, s.Timestamp, s.Timestamp
		return
	}
	if s.Timestamp < b.minTs {
		b.minTs = s.Timestamp
	}
	if s.Timestamp > b.maxTs {
		b.maxTs = s.Timestamp
	}
	if gap := s.Timestamp - b.prevTs; gap != 0 {
		if gap < 0 {
			gap = -gap
		}
		if b.step == 0 || gap < b.step {
			b.step = gap
		}
		b.prevTs = s.Timestamp
	}
}

// finalize returns the assembled chunk. The band end extends one sample
// step past the last timestamp so contiguous monthly chunks produce
// contiguous bands.
func (b *chunkBuilder) finalize() *Chunk {
	c := &Chunk{Values: b.values}
	if b.haveTime {
		c.Band = histogram.TimeBand{
			Start: time.Unix(b.minTs, 0).UTC(),
			End:   time.Unix(b.maxTs+b.step, 0).UTC(),
		}
	}
	return c
}
