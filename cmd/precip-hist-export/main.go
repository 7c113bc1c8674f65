// precip-hist-export - Export derived statistics for plotting
//
// Loads a persisted histogram, derives frequency and probability
// density per bin, and writes a Parquet bin table (plus an optional CSV)
// that the plotting side consumes to render the PDF figures.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/precip-hist-export ./cmd/precip-hist-export

package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/climlab/precip-hist/internal/common"
	"github.com/climlab/precip-hist/internal/histogram"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// BinRow matches the Parquet export schema
type BinRow struct {
	Source    string  `parquet:"source"`
	Variable  string  `parquet:"variable"`
	Domain    string  `parquet:"domain"`
	BandStart int64   `parquet:"band_start"` // Unix seconds UTC
	BandEnd   int64   `parquet:"band_end"`
	BinLo     float64 `parquet:"bin_lo"`
	BinHi     float64 `parquet:"bin_hi"`
	Count     uint64  `parquet:"count"`
	Frequency float64 `parquet:"frequency"`
	Density   float64 `parquet:"density"`
}

func binRows(h *histogram.Histogram) ([]BinRow, error) {
	freq, err := h.Frequency()
	if err != nil && !errors.Is(err, histogram.ErrZeroSamples) {
		return nil, err
	}
	if errors.Is(err, histogram.ErrZeroSamples) {
		log.Printf("Warning: histogram holds zero in-range samples; exporting zero statistics")
	}
	dens, derr := h.Density()
	if derr != nil && !errors.Is(derr, histogram.ErrZeroSamples) {
		return nil, derr
	}

	rows := make([]BinRow, len(h.Counts))
	for i, c := range h.Counts {
		rows[i] = BinRow{
			Source:    h.Meta.Source,
			Variable:  h.Meta.Variable,
			Domain:    h.Meta.Domain,
			BandStart: h.Band.Start.Unix(),
			BandEnd:   h.Band.End.Unix(),
			BinLo:     h.Edges[i],
			BinHi:     h.Edges[i+1],
			Count:     c,
			Frequency: freq[i],
			Density:   dens[i],
		}
	}
	return rows, nil
}

func writeParquet(path string, rows []BinRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[BinRow](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCsv(path string, rows []BinRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"source", "variable", "domain", "band_start", "band_end",
		"bin_lo", "bin_hi", "count", "frequency", "density"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Source, r.Variable, r.Domain,
			time.Unix(r.BandStart, 0).UTC().Format(time.RFC3339),
			time.Unix(r.BandEnd, 0).UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.BinLo, 'g', -1, 64),
			strconv.FormatFloat(r.BinHi, 'g', -1, 64),
			strconv.FormatUint(r.Count, 10),
			strconv.FormatFloat(r.Frequency, 'g', -1, 64),
			strconv.FormatFloat(r.Density, 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func main() {
	cfg := common.DefaultConfig()

	outDir := flag.String("out-dir", cfg.PlotDir(), "Export output directory")
	withCsv := flag.Bool("csv", false, "Also write a CSV next to the Parquet export")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "precip-hist-export v%s - Derived-Statistics Exporter\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] histogram.nc [histogram.nc...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Writes per-bin frequency/density tables for the plotting side.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if len(flag.Args()) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Cannot create output directory: %v", err)
	}

	log.Println("=========================================================")
	log.Printf("Precip Histogram Export v%s", Version)
	log.Println("=========================================================")

	for _, filePath := range flag.Args() {
		fileName := filepath.Base(filePath)

		h, err := histogram.Load(filePath)
		if err != nil {
			log.Fatalf("[%s] Load error: %v", fileName, err)
		}

		rows, err := binRows(h)
		if err != nil {
			log.Fatalf("[%s] Derive error: %v", fileName, err)
		}

		base := strings.TrimSuffix(fileName, ".nc")
		pqPath := filepath.Join(*outDir, base+"_bins.parquet")
		if err := writeParquet(pqPath, rows); err != nil {
			log.Fatalf("[%s] Parquet write error: %v", fileName, err)
		}
		log.Printf("[%s] %d bins -> %s", fileName, len(rows), pqPath)

		if *withCsv {
			csvPath := filepath.Join(*outDir, base+"_bins.csv")
			if err := writeCsv(csvPath, rows); err != nil {
				log.Fatalf("[%s] CSV write error: %v", fileName, err)
			}
			log.Printf("[%s] CSV -> %s", fileName, csvPath)
		}
	}
}
