// Chunk file reading: format detection, gzip decompression, Parquet.
package precip

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
	"github.com/parquet-go/parquet-go"
)

// pgzipThreshold selects parallel decompression for large archives;
// below this a single-stream reader avoids the goroutine overhead.
const pgzipThreshold = 8 << 20

// parquetReadBatch is the row batch size for Parquet reads.
const parquetReadBatch = 1000

// SupportedChunkFile reports whether path looks like a readable chunk
// file (CSV, gzipped CSV, or Parquet).
func SupportedChunkFile(path string) bool {
	switch DetectFormat(path) {
	case "csv", "csv.gz", "parquet":
		return true
	}
	return false
}

// DetectFormat determines the chunk file format from the file name.
func DetectFormat(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(base, ".csv.gz"):
		return "csv.gz"
	case strings.HasSuffix(base, ".csv"):
		return "csv"
	case strings.HasSuffix(base, ".parquet"):
		return "parquet"
	}
	return "unknown"
}

// ReadChunkFile reads one chunk file into in-domain values plus its time
// band. BytesRead (the on-disk size) is returned for throughput
// accounting.
func ReadChunkFile(path string, domain Domain, stats *ParseStats) (*Chunk, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}

	var chunk *Chunk
	switch DetectFormat(path) {
	case "csv":
		chunk, err = readCsvChunk(path, domain, stats)
	case "csv.gz":
		chunk, err = readGzipChunk(path, info.Size(), domain, stats)
	case "parquet":
		chunk, err = readParquetChunk(path, info.Size(), domain, stats)
	default:
		return nil, 0, fmt.Errorf("precip: unsupported chunk format: %s", path)
	}
	if err != nil {
		return nil, 0, err
	}
	return chunk, info.Size(), nil
}

func readCsvChunk(path string, domain Domain, stats *ParseStats) (*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCsvStream(f, domain, stats)
}

func readGzipChunk(path string, size int64, domain Domain, stats *ParseStats) (*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if size >= pgzipThreshold {
		gz, err := pgzip.NewReaderN(f, 256*1024, runtime.NumCPU())
		if err != nil {
			return nil, fmt.Errorf("precip: gzip open %s: %w", path, err)
		}
		defer gz.Close()
		return ParseCsvStream(gz, domain, stats)
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("precip: gzip open %s: %w", path, err)
	}
	defer gz.Close()
	return ParseCsvStream(gz, domain, stats)
}

func readParquetChunk(path string, size int64, domain Domain, stats *ParseStats) (*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := parquet.OpenFile(f, size)
	if err != nil {
		return nil, fmt.Errorf("precip: parquet open %s: %w", path, err)
	}

	builder := newChunkBuilder(domain, stats)
	reader := parquet.NewGenericReader[Sample](pf)
	defer reader.Close()

	samples := make([]Sample, parquetReadBatch)
	for {
		n, err := reader.Read(samples)
		for i := 0; i < n; i++ {
			stats.TotalRowsRead++
			stats.SuccessfullyParsed++
			builder.add(samples[i])
		}
		if n == 0 || err != nil {
			break
		}
	}

	return builder.finalize(), nil
}
