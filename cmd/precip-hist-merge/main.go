// precip-hist-merge - Merge per-chunk precipitation histograms
//
// Loads the per-chunk NetCDF histograms written by precip-hist-compute,
// merges them into one combined histogram (summing counts per bin,
// spanning the union of the time bands), and persists the result.
// Overlapping input bands - usually a sign of duplicate chunks - are
// flagged with a warning, not silently accepted.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/precip-hist-merge ./cmd/precip-hist-merge

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/climlab/precip-hist/internal/common"
	"github.com/climlab/precip-hist/internal/histogram"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

const NumLoaders = 8

func main() {
	cfg := common.DefaultConfig()

	sourceDir := flag.String("source-dir", cfg.HistDir(), "Directory holding per-chunk histogram .nc files")
	outFile := flag.String("out", "", "Output path for the merged histogram (default: <source-dir>/<band-derived name>)")
	loaders := flag.Int("loaders", NumLoaders, "Number of parallel loaders")
	overwrite := flag.Bool("overwrite", false, "Overwrite an existing merged file with a different binning scheme")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "precip-hist-merge v%s - Histogram Merger\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [files...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "If no files specified, merges every .nc file in -source-dir.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	log.Println("=========================================================")
	log.Printf("Precip Histogram Merge v%s", Version)
	log.Println("=========================================================")

	var files []string
	if len(flag.Args()) > 0 {
		files = flag.Args()
	} else {
		entries, err := os.ReadDir(*sourceDir)
		if err != nil {
			log.Fatalf("Cannot read source directory: %v", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".nc") {
				files = append(files, filepath.Join(*sourceDir, e.Name()))
			}
		}
	}

	if len(files) == 0 {
		log.Fatal("No histogram files to merge")
	}

	sort.Strings(files)
	log.Printf("Found %d histogram file(s)", len(files))

	startTime := time.Now()

	// Loads are independent reads; merge order does not matter because
	// the count summation is associative and commutative.
	histograms := make([]*histogram.Histogram, len(files))
	errs := make([]error, len(files))
	sem := make(chan struct{}, *loaders)
	var wg sync.WaitGroup

	for i, filePath := range files {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, fp string) {
			defer wg.Done()
			defer func() { <-sem }()
			histograms[i], errs[i] = histogram.Load(fp)
		}(i, filePath)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			log.Fatalf("[%s] Load error: %v", filepath.Base(files[i]), err)
		}
	}

	for _, h := range histograms[1:] {
		if h.Meta != histograms[0].Meta {
			log.Printf("Warning: mixed provenance: %+v vs %+v", histograms[0].Meta, h.Meta)
			break
		}
	}

	merged, err := histogram.Merge(histograms)
	if err != nil {
		log.Fatalf("Merge failed: %v", err)
	}

	if merged.Overlapping() {
		log.Printf("Warning: constituent time bands overlap (sum %v > span %v) - duplicate chunks?",
			merged.DurationSum.Round(time.Second), merged.Band.Duration().Round(time.Second))
	}

	outPath := *outFile
	if outPath == "" {
		outPath = filepath.Join(*sourceDir, "merged_"+histogram.Filename(merged.Meta, merged.Band))
	}
	if err := histogram.Persist(merged, outPath, *overwrite); err != nil {
		log.Fatalf("Persist failed: %v", err)
	}

	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Inputs:       %d histograms", len(files))
	log.Printf("Band:         %s -> %s",
		merged.Band.Start.Format(time.RFC3339), merged.Band.End.Format(time.RFC3339))
	log.Printf("Coverage:     %v of data in a %v span",
		merged.DurationSum.Round(time.Second), merged.Band.Duration().Round(time.Second))
	log.Printf("Total Count:  %d samples (%d excluded upstream)", merged.Total(), merged.Excluded)
	log.Printf("Elapsed:      %v", elapsed.Round(time.Millisecond))
	log.Printf("Output:       %s", outPath)
	log.Println("=========================================================")
}
