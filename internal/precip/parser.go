// CSV chunk parsing.
package precip

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"
)

// MaxErrorsToLog throttles per-row parse error logging.
const MaxErrorsToLog = 10

// CSV column indices (timestamp,lat,lon,mtpr).
const (
	ColTimestamp = 0
	ColLat       = 1
	ColLon       = 2
	ColRate      = 3

	// Minimum columns for a valid precip record
	MinColumns = 4
)

// ParseCsvStream reads timestamp,lat,lon,mtpr rows from an io.Reader and
// assembles the in-domain samples into a Chunk. A leading header row is
// detected and skipped. Malformed rows are counted and logged with
// throttling rather than aborting the chunk.
func ParseCsvStream(reader io.Reader, domain Domain, stats *ParseStats) (*Chunk, error) {
	csvReader := csv.NewReader(reader)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	builder := newChunkBuilder(domain, stats)
	errorCount := 0
	first := true

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.FailedRows++
			errorCount++
			if errorCount <= MaxErrorsToLog {
				log.Printf("CSV read error (row %d): %v", stats.TotalRowsRead, err)
			}
			continue
		}

		stats.TotalRowsRead++

		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			stats.SkippedEmptyRows++
			continue
		}

		if first {
			first = false
			if isHeaderRow(record) {
				stats.TotalRowsRead--
				continue
			}
		}

		sample, err := ParseCsvRecord(record)
		if err != nil {
			stats.FailedRows++
			errorCount++
			if errorCount <= MaxErrorsToLog {
				log.Printf("Parse error (row %d): %v", stats.TotalRowsRead, err)
			}
			continue
		}

		stats.SuccessfullyParsed++
		builder.add(sample)
	}

	if errorCount > MaxErrorsToLog {
		log.Printf("... and %d more parse errors (suppressed)", errorCount-MaxErrorsToLog)
	}

	return builder.finalize(), nil
}

// ParseCsvRecord parses a single CSV record into a Sample.
func ParseCsvRecord(record []string) (Sample, error) {
	if len(record) < MinColumns {
		return Sample{}, fmt.Errorf("insufficient columns: got %d, need %d", len(record), MinColumns)
	}

	var sample Sample
	var err error

	sample.Timestamp, err = parseTimestamp(record[ColTimestamp])
	if err != nil {
		return Sample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	sample.Lat, err = parseFloat32(record[ColLat])
	if err != nil {
		return Sample{}, fmt.Errorf("invalid latitude: %w", err)
	}
	if sample.Lat < -90 || sample.Lat > 90 {
		return Sample{}, fmt.Errorf("latitude out of range: %g", sample.Lat)
	}

	sample.Lon, err = parseFloat32(record[ColLon])
	if err != nil {
		return Sample{}, fmt.Errorf("invalid longitude: %w", err)
	}
	if sample.Lon < -180 || sample.Lon > 360 {
		return Sample{}, fmt.Errorf("longitude out of range: %g", sample.Lon)
	}

	sample.Rate, err = parseFloat64(record[ColRate])
	if err != nil {
		return Sample{}, fmt.Errorf("invalid rate: %w", err)
	}

	return sample, nil
}

// parseTimestamp accepts Unix epoch seconds or RFC3339.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// isHeaderRow reports whether the record looks like a column header
// (non-numeric first field).
func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	if _, err := parseTimestamp(record[0]); err == nil {
		return false
	}
	return true
}

func parseFloat64(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

func parseFloat32(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}
