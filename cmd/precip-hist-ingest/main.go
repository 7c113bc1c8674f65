// precip-hist-ingest - Load persisted histograms into ClickHouse
//
// Flattens NetCDF histogram files into per-bin rows (count, frequency,
// probability density) and inserts them via the ch-go native protocol
// for dashboarding and cross-source comparison queries.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/precip-hist-ingest ./cmd/precip-hist-ingest

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/climlab/precip-hist/internal/common"
	"github.com/climlab/precip-hist/internal/histogram"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// BinBatch holds column data for native insert
type BinBatch struct {
	Source    *proto.ColStr
	Variable  *proto.ColStr
	Domain    *proto.ColStr
	BandStart *proto.ColDateTime
	BandEnd   *proto.ColDateTime
	BinLo     *proto.ColFloat64
	BinHi     *proto.ColFloat64
	Count     *proto.ColUInt64
	Frequency *proto.ColFloat64
	Density   *proto.ColFloat64
}

func NewBinBatch() *BinBatch {
	return &BinBatch{
		Source:    new(proto.ColStr),
		Variable:  new(proto.ColStr),
		Domain:    new(proto.ColStr),
		BandStart: new(proto.ColDateTime),
		BandEnd:   new(proto.ColDateTime),
		BinLo:     new(proto.ColFloat64),
		BinHi:     new(proto.ColFloat64),
		Count:     new(proto.ColUInt64),
		Frequency: new(proto.ColFloat64),
		Density:   new(proto.ColFloat64),
	}
}

func (b *BinBatch) Reset() {
	b.Source.Reset()
	b.Variable.Reset()
	b.Domain.Reset()
	b.BandStart.Reset()
	b.BandEnd.Reset()
	b.BinLo.Reset()
	b.BinHi.Reset()
	b.Count.Reset()
	b.Frequency.Reset()
	b.Density.Reset()
}

func (b *BinBatch) Len() int {
	return b.BinLo.Rows()
}

func (b *BinBatch) Input() proto.Input {
	return proto.Input{
		{Name: "source", Data: b.Source},
		{Name: "variable", Data: b.Variable},
		{Name: "domain", Data: b.Domain},
		{Name: "band_start", Data: b.BandStart},
		{Name: "band_end", Data: b.BandEnd},
		{Name: "bin_lo", Data: b.BinLo},
		{Name: "bin_hi", Data: b.BinHi},
		{Name: "count", Data: b.Count},
		{Name: "frequency", Data: b.Frequency},
		{Name: "density", Data: b.Density},
	}
}

// AddHistogram appends one row per bin.
func (b *BinBatch) AddHistogram(h *histogram.Histogram) error {
	freq, err := h.Frequency()
	if err != nil && !errors.Is(err, histogram.ErrZeroSamples) {
		return err
	}
	dens, err := h.Density()
	if err != nil && !errors.Is(err, histogram.ErrZeroSamples) {
		return err
	}

	for i, c := range h.Counts {
		b.Source.Append(h.Meta.Source)
		b.Variable.Append(h.Meta.Variable)
		b.Domain.Append(h.Meta.Domain)
		b.BandStart.Append(h.Band.Start)
		b.BandEnd.Append(h.Band.End)
		b.BinLo.Append(h.Edges[i])
		b.BinHi.Append(h.Edges[i+1])
		b.Count.Append(c)
		b.Frequency.Append(freq[i])
		b.Density.Append(dens[i])
	}
	return nil
}

func flushBatch(ctx context.Context, conn *ch.Client, tableFQN string, batch *BinBatch) error {
	if batch.Len() == 0 {
		return nil
	}

	query := fmt.Sprintf("INSERT INTO %s (source, variable, domain, band_start, band_end, bin_lo, bin_hi, count, frequency, density) VALUES", tableFQN)
	return conn.Do(ctx, ch.Query{
		Body:  query,
		Input: batch.Input(),
	})
}

func main() {
	cfg := common.DefaultConfig()

	chHost := flag.String("ch-host", "127.0.0.1:9000", "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", "hist_bins", "ClickHouse table")
	sourceDir := flag.String("source-dir", cfg.HistDir(), "Histogram .nc source directory")
	truncate := flag.Bool("truncate", false, "Truncate table before insert")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "precip-hist-ingest v%s - Histogram Bin Ingester\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [files...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ingests per-bin histogram rows into ClickHouse.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	log.Println("=========================================================")
	log.Printf("Precip Histogram Ingest v%s", Version)
	log.Println("=========================================================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	// Connect to ClickHouse
	log.Printf("Connecting to ClickHouse at %s...", *chHost)
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     *chHost,
		Database:    *chDB,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		log.Fatalf("ClickHouse connection failed: %v", err)
	}
	defer conn.Close()

	tableFQN := fmt.Sprintf("%s.%s", *chDB, *chTable)
	log.Printf("Table: %s", tableFQN)

	if *truncate {
		log.Printf("Truncating table %s...", tableFQN)
		if err := conn.Do(ctx, ch.Query{Body: fmt.Sprintf("TRUNCATE TABLE %s", tableFQN)}); err != nil {
			log.Printf("Truncate warning: %v", err)
		}
	}

	// Discover files
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
		log.Fatal("No histogram files to ingest")
	}

	log.Printf("Found %d file(s)", len(files))

	startTime := time.Now()
	totalBins := 0
	batch := NewBinBatch()

	for _, filePath := range files {
		select {
		case <-ctx.Done():
			break
		default:
		}

		h, err := histogram.Load(filePath)
		if err != nil {
			log.Printf("[%s] Load error: %v", filepath.Base(filePath), err)
			continue
		}

		if err := batch.AddHistogram(h); err != nil {
			log.Printf("[%s] Flatten error: %v", filepath.Base(filePath), err)
			continue
		}

		log.Printf("[%s] %d bins, %d samples", filepath.Base(filePath), len(h.Counts), h.Total())
		totalBins += len(h.Counts)
	}

	if batch.Len() > 0 {
		if err := flushBatch(ctx, conn, tableFQN, batch); err != nil {
			log.Fatalf("Insert error: %v", err)
		}
		log.Printf("Inserted %d rows", batch.Len())
	}

	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Total Bins: %d", totalBins)
	log.Printf("Elapsed:    %v", elapsed.Round(time.Millisecond))
	log.Println("=========================================================")
}
