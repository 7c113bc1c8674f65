// NetCDF persistence for histograms.
//
// Each histogram is written as a self-describing NetCDF classic file with
// two fixed dimensions (edge, bin), the bin_edges and counts variables,
// and the time band plus provenance as global attributes. Counts are
// stored as doubles because the classic format has no 64-bit integer
// type; doubles are exact far beyond any sample count this pipeline sees.

package histogram

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/cdf"
)

// stampFormat encodes band boundaries into filenames. Minute resolution
// keeps names readable while staying unique per chunk band.
const stampFormat = "20060102T1504"

const (
	attrVariable    = "variable"
	attrSource      = "source"
	attrDomain      = "domain"
	attrBandStart   = "band_start"
	attrBandEnd     = "band_end"
	attrDurationSum = "duration_sum_seconds"
	attrExcluded    = "excluded_samples"
)

// Filename returns the canonical file name for a histogram covering the
// given band. Names encode the band start and end, so concurrent writers
// processing distinct chunks can never collide.
func Filename(meta Provenance, band TimeBand) string {
	v := meta.Variable
	if v == "" {
		v = "mtpr"
	}
	src := meta.Source
	if src == "" {
		src = "unknown"
	}
	return fmt.Sprintf("%s_hist_%s_%s_%s.nc",
		v, src, band.Start.UTC().Format(stampFormat), band.End.UTC().Format(stampFormat))
}

// PersistDir writes h into dir under its canonical band-derived filename
// and returns the full path. This is the collision-safe entry point for
// chunk workers; Persist with an explicit path is available for callers
// that manage naming themselves (e.g. merged outputs).
func PersistDir(h *Histogram, dir string, overwrite bool) (string, error) {
	path := filepath.Join(dir, Filename(h.Meta, h.Band))
	return path, Persist(h, path, overwrite)
}

// Persist writes h to path as NetCDF. If a file already exists at path
// with a different bin-edge scheme and overwrite is false, Persist fails
// with ErrSchemaMismatch; a file with the same scheme is replaced.
func Persist(h *Histogram, path string, overwrite bool) error {
	if err := h.Validate(); err != nil {
		return err
	}

	if !overwrite {
		if prev, err := Load(path); err == nil {
			if !EdgesEqual(prev.Edges, h.Edges) {
				return fmt.Errorf("%w: %s", ErrSchemaMismatch, path)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("%w: existing file %s unreadable: %v", ErrSchemaMismatch, path, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("histogram: create %s: %w", path, err)
	}
	defer f.Close()

	hdr := cdf.NewHeader([]string{"edge", "bin"}, []int{len(h.Edges), len(h.Counts)})
	hdr.AddVariable("bin_edges", []string{"edge"}, []float64{0})
	hdr.AddAttribute("bin_edges", "long_name", "histogram bin edges, half-open [edge[i], edge[i+1])")
	hdr.AddVariable("counts", []string{"bin"}, []float64{0})
	hdr.AddAttribute("counts", "long_name", "sample count per bin")

	hdr.AddAttribute("", attrVariable, h.Meta.Variable)
	hdr.AddAttribute("", attrSource, h.Meta.Source)
	hdr.AddAttribute("", attrDomain, h.Meta.Domain)
	hdr.AddAttribute("", attrBandStart, h.Band.Start.UTC().Format(time.RFC3339))
	hdr.AddAttribute("", attrBandEnd, h.Band.End.UTC().Format(time.RFC3339))
	hdr.AddAttribute("", attrDurationSum, []float64{h.DurationSum.Seconds()})
	hdr.AddAttribute("", attrExcluded, []float64{float64(h.Excluded)})
	hdr.Define()

	cf, err := cdf.Create(f, hdr)
	if err != nil {
		return fmt.Errorf("histogram: write header %s: %w", path, err)
	}

	// The cdf strider returns io.EOF once a write fills the whole
	// variable, even on success; only short transfers are real errors.
	edges := append([]float64(nil), h.Edges...)
	if n, err := cf.Writer("bin_edges", nil, nil).Write(edges); err != nil && !(err == io.EOF && n == len(edges)) {
		return fmt.Errorf("histogram: write bin_edges %s: %w", path, err)
	}
	counts := make([]float64, len(h.Counts))
	for i, c := range h.Counts {
		counts[i] = float64(c)
	}
	if n, err := cf.Writer("counts", nil, nil).Write(counts); err != nil && !(err == io.EOF && n == len(counts)) {
		return fmt.Errorf("histogram: write counts %s: %w", path, err)
	}

	return nil
}

// Load reads a persisted histogram back. A missing file surfaces the OS
// not-exist error; structural violations surface as ErrCorruptData.
func Load(path string) (*Histogram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cf, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, path, err)
	}

	edges, err := readFloat64Var(cf, "bin_edges")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, path, err)
	}
	rawCounts, err := readFloat64Var(cf, "counts")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, path, err)
	}

	counts := make([]uint64, len(rawCounts))
	for i, c := range rawCounts {
		if c < 0 || c != math.Trunc(c) {
			return nil, fmt.Errorf("%w: %s: count[%d] = %g is not a non-negative integer",
				ErrCorruptData, path, i, c)
		}
		counts[i] = uint64(c)
	}

	band, err := loadBand(cf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, path, err)
	}

	h := &Histogram{
		Edges:  edges,
		Counts: counts,
		Band:   band,
		Meta: Provenance{
			Variable: stringAttr(cf, attrVariable),
			Source:   stringAttr(cf, attrSource),
			Domain:   stringAttr(cf, attrDomain),
		},
		DurationSum: time.Duration(floatAttr(cf, attrDurationSum) * float64(time.Second)),
		Excluded:    uint64(floatAttr(cf, attrExcluded)),
	}

	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptData, path, err)
	}
	return h, nil
}

func readFloat64Var(cf *cdf.File, name string) ([]float64, error) {
	dims := cf.Header.Lengths(name)
	if len(dims) != 1 {
		return nil, fmt.Errorf("variable %s missing or not one-dimensional", name)
	}
	r := cf.Reader(name, nil, nil)
	buf := r.Zero(dims[0])
	if n, err := r.Read(buf); err != nil && !(err == io.EOF && n == dims[0]) {
		return nil, fmt.Errorf("reading %s: %v", name, err)
	}
	vals, ok := buf.([]float64)
	if !ok {
		return nil, fmt.Errorf("variable %s is not double-typed", name)
	}
	return vals, nil
}

func loadBand(cf *cdf.File) (TimeBand, error) {
	start, err := time.Parse(time.RFC3339, stringAttr(cf, attrBandStart))
	if err != nil {
		return TimeBand{}, fmt.Errorf("band_start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, stringAttr(cf, attrBandEnd))
	if err != nil {
		return TimeBand{}, fmt.Errorf("band_end: %v", err)
	}
	return TimeBand{Start: start.UTC(), End: end.UTC()}, nil
}

func stringAttr(cf *cdf.File, name string) string {
	if v := cf.Header.GetAttribute("", name); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatAttr(cf *cdf.File, name string) float64 {
	if v := cf.Header.GetAttribute("", name); v != nil {
		if fs, ok := v.([]float64); ok && len(fs) > 0 {
			return fs[0]
		}
	}
	return 0
}
