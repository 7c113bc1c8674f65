// precip-hist-compute - Per-chunk precipitation histogram computation
//
// Walks chunk files (CSV, gzipped CSV, or Parquet with
// timestamp/lat/lon/mtpr columns), bins the in-domain precipitation
// rates of each chunk into a histogram, and persists one NetCDF file per
// chunk. File names encode each chunk's time band, so parallel workers
// never collide. Merge the per-chunk outputs with precip-hist-merge.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/precip-hist-compute ./cmd/precip-hist-compute

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/climlab/precip-hist/internal/common"
	"github.com/climlab/precip-hist/internal/histogram"
	"github.com/climlab/precip-hist/internal/precip"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

const NumWorkers = 8

func processChunk(ctx context.Context, filePath string, edges []float64, domain precip.Domain,
	source, outDir string, overwrite bool, stats *common.Stats, wg *sync.WaitGroup) {
	defer wg.Done()

	fileName := filepath.Base(filePath)

	select {
	case <-ctx.Done():
		return
	default:
	}

	startTime := time.Now()

	var parseStats precip.ParseStats
	chunk, bytesRead, err := precip.ReadChunkFile(filePath, domain, &parseStats)
	if err != nil {
		log.Printf("[%s] Read error: %v", fileName, err)
		return
	}
	if len(chunk.Values) == 0 {
		log.Printf("[%s] No in-domain samples (read %d rows, %d out of domain)",
			fileName, parseStats.TotalRowsRead, parseStats.OutOfDomain)
		return
	}

	meta := histogram.Provenance{
		Variable: precip.Variable,
		Source:   source,
		Domain:   domain.String(),
	}
	h, err := histogram.Compute(chunk.Values, edges, chunk.Band, meta)
	if err != nil {
		log.Printf("[%s] Compute error: %v", fileName, err)
		return
	}

	outPath, err := histogram.PersistDir(h, outDir, overwrite)
	if err != nil {
		log.Printf("[%s] Persist error: %v", fileName, err)
		return
	}

	stats.AddBinned(h.Total())
	stats.AddExcluded(h.Excluded)
	stats.AddBytes(uint64(bytesRead))
	stats.AddChunk()

	elapsed := time.Since(startTime)
	log.Printf("[%s] %d binned, %d excluded in %.1fs -> %s",
		fileName, h.Total(), h.Excluded, elapsed.Seconds(), filepath.Base(outPath))
}

func main() {
	cfg := common.DefaultConfig()

	sourceDir := flag.String("source-dir", cfg.ChunkDir(), "Chunk source directory")
	outDir := flag.String("out-dir", cfg.HistDir(), "NetCDF histogram output directory")
	binMin := flag.Float64("bin-min", 0, "Lowest bin edge (kg m-2 s-1)")
	binMax := flag.Float64("bin-max", 0.0139, "Highest bin edge (kg m-2 s-1, ~50 mm/h)")
	bins := flag.Int("bins", 100, "Number of bins")
	minLat := flag.Float64("min-lat", -30, "Domain minimum latitude")
	maxLat := flag.Float64("max-lat", 30, "Domain maximum latitude")
	source := flag.String("source", "era5", "Model/observation identifier for provenance")
	workers := flag.Int("workers", NumWorkers, "Number of parallel chunk workers")
	overwrite := flag.Bool("overwrite", false, "Overwrite histograms with a different binning scheme")
	silent := flag.Bool("silent", false, "Suppress progress output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "precip-hist-compute v%s - Per-Chunk Precipitation Histograms\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [path|files...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "If no paths specified, uses -source-dir default.\n\n")
		fmt.Fprintf(os.Stderr, "Features:\n")
		fmt.Fprintf(os.Stderr, "  - CSV / gzip (pgzip) / Parquet chunk input\n")
		fmt.Fprintf(os.Stderr, "  - One NetCDF histogram per chunk, band-unique file names\n")
		fmt.Fprintf(os.Stderr, "  - Parallel chunk processing\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	var inputPaths []string
	if len(flag.Args()) < 1 {
		inputPaths = []string{*sourceDir}
	} else {
		inputPaths = flag.Args()
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Cannot create output directory: %v", err)
	}

	edges, err := histogram.Edges(*binMin, *binMax, *bins)
	if err != nil {
		log.Fatalf("Invalid binning scheme: %v", err)
	}

	domain := precip.Tropics
	domain.MinLat = float32(*minLat)
	domain.MaxLat = float32(*maxLat)

	log.Println("=========================================================")
	log.Printf("Precip Histogram Compute v%s", Version)
	log.Println("=========================================================")
	log.Printf("Input: %d path(s)", len(inputPaths))
	log.Printf("Bins: %d over [%g, %g) | Domain: %s", *bins, *binMin, *binMax, domain)
	log.Printf("Workers: %d | CPUs: %d", *workers, runtime.NumCPU())
	log.Printf("Output: %s", *outDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	var files []string
	for _, inputPath := range inputPaths {
		info, err := os.Stat(inputPath)
		if err != nil {
			log.Printf("Warning: cannot access %s: %v", inputPath, err)
			continue
		}

		if info.IsDir() {
			filepath.Walk(inputPath, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil
				}
				if !info.IsDir() && precip.SupportedChunkFile(path) {
					files = append(files, path)
				}
				return nil
			})
		} else if precip.SupportedChunkFile(inputPath) {
			files = append(files, inputPath)
		}
	}

	if len(files) == 0 {
		log.Fatal("No chunk files found")
	}

	sort.Strings(files)
	log.Printf("Found %d chunk file(s)", len(files))

	stats := common.NewStats()
	stats.SetSilent(*silent)
	stats.StartReporter()

	startTime := time.Now()
	sem := make(chan struct{}, *workers)
	var wg sync.WaitGroup

	for _, filePath := range files {
		select {
		case <-ctx.Done():
			break
		default:
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(fp string) {
			defer func() { <-sem }()
			processChunk(ctx, fp, edges, domain, *source, *outDir, *overwrite, stats, &wg)
		}(filePath)
	}

	wg.Wait()
	stats.StopReporter()

	elapsed := time.Since(startTime)
	binned := stats.GetBinned()
	excluded := stats.GetExcluded()
	totalBytes := stats.GetBytes()

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Chunks:       %d", stats.GetChunks())
	log.Printf("Binned:       %d samples", binned)
	log.Printf("Excluded:     %d samples (out of range)", excluded)
	log.Printf("Input Size:   %.2f GB", float64(totalBytes)/1024/1024/1024)
	log.Printf("Elapsed:      %v", elapsed.Round(time.Second))
	log.Printf("Throughput:   %.2f Msps", float64(binned)/elapsed.Seconds()/1_000_000)
	log.Println("=========================================================")
}
