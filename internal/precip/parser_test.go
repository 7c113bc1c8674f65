package precip

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunkCSV = `timestamp,lat,lon,mtpr
1577836800,10.0,120.0,0.5
1577836800,45.0,120.0,9.9
1577840400,-10.0,-60.0,1.5
1577844000,0.0,0.0,2.5
`

func TestParseCsvStream(t *testing.T) {
	t.Run("parses rows and filters to the domain", func(t *testing.T) {
		var stats ParseStats

		chunk, err := ParseCsvStream(strings.NewReader(chunkCSV), Tropics, &stats)

		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 1.5, 2.5}, chunk.Values)
		assert.Equal(t, int64(4), stats.TotalRowsRead)
		assert.Equal(t, int64(4), stats.SuccessfullyParsed)
		assert.Equal(t, int64(1), stats.OutOfDomain, "45N row is outside the tropics")
	})

	t.Run("derives the band from the time coordinate plus one step", func(t *testing.T) {
		var stats ParseStats

		chunk, err := ParseCsvStream(strings.NewReader(chunkCSV), Tropics, &stats)

		require.NoError(t, err)
		assert.Equal(t, time.Unix(1577836800, 0).UTC(), chunk.Band.Start)
		// step is 3600s, so the band end covers the last hourly record
		assert.Equal(t, time.Unix(1577844000+3600, 0).UTC(), chunk.Band.End)
	})

	t.Run("counts malformed rows without aborting", func(t *testing.T) {
		in := "1577836800,10.0,120.0,0.5\nnot-a-time,10.0,120.0,0.5\n1577836800,10.0,120.0,bad\n"
		var stats ParseStats

		chunk, err := ParseCsvStream(strings.NewReader(in), Tropics, &stats)

		require.NoError(t, err)
		assert.Len(t, chunk.Values, 1)
		assert.Equal(t, int64(2), stats.FailedRows)
	})

	t.Run("accepts RFC3339 timestamps", func(t *testing.T) {
		in := "2020-01-01T00:00:00Z,0.0,0.0,1.0\n"
		var stats ParseStats

		chunk, err := ParseCsvStream(strings.NewReader(in), Tropics, &stats)

		require.NoError(t, err)
		require.Len(t, chunk.Values, 1)
		assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), chunk.Band.Start)
	})

	t.Run("single-instant chunk has zero-length band", func(t *testing.T) {
		in := "1577836800,0.0,0.0,1.0\n1577836800,1.0,1.0,2.0\n"
		var stats ParseStats

		chunk, err := ParseCsvStream(strings.NewReader(in), Tropics, &stats)

		require.NoError(t, err)
		assert.Equal(t, chunk.Band.Start, chunk.Band.End)
	})

	t.Run("rejects out-of-range coordinates", func(t *testing.T) {
		_, err := ParseCsvRecord([]string{"1577836800", "95.0", "0.0", "1.0"})
		require.Error(t, err)

		_, err = ParseCsvRecord([]string{"1577836800", "0.0", "400.0", "1.0"})
		require.Error(t, err)
	})
}

func TestDomain(t *testing.T) {
	t.Run("tropics descriptor", func(t *testing.T) {
		assert.Equal(t, "30S-30N", Tropics.String())
	})

	t.Run("bounded box descriptor", func(t *testing.T) {
		d := Domain{MinLat: -10, MaxLat: 10, MinLon: 90, MaxLon: 150}
		assert.Equal(t, "10S-10N_90E-150E", d.String())
	})
}

func TestReadChunkFile(t *testing.T) {
	t.Run("reads plain csv", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chunk_202001.csv")
		require.NoError(t, os.WriteFile(path, []byte(chunkCSV), 0644))
		var stats ParseStats

		chunk, bytesRead, err := ReadChunkFile(path, Tropics, &stats)

		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 1.5, 2.5}, chunk.Values)
		assert.Equal(t, int64(len(chunkCSV)), bytesRead)
	})

	t.Run("reads gzipped csv", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chunk_202001.csv.gz")
		f, err := os.Create(path)
		require.NoError(t, err)
		gz := gzip.NewWriter(f)
		_, err = gz.Write([]byte(chunkCSV))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		require.NoError(t, f.Close())
		var stats ParseStats

		chunk, _, err := ReadChunkFile(path, Tropics, &stats)

		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 1.5, 2.5}, chunk.Values)
	})

	t.Run("reads parquet", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chunk_202001.parquet")
		f, err := os.Create(path)
		require.NoError(t, err)
		w := parquet.NewGenericWriter[Sample](f)
		_, err = w.Write([]Sample{
			{Timestamp: 1577836800, Lat: 10, Lon: 120, Rate: 0.5},
			{Timestamp: 1577840400, Lat: 45, Lon: 120, Rate: 9.9},
			{Timestamp: 1577840400, Lat: -10, Lon: -60, Rate: 1.5},
		})
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.NoError(t, f.Close())
		var stats ParseStats

		chunk, _, err := ReadChunkFile(path, Tropics, &stats)

		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 1.5}, chunk.Values)
		assert.Equal(t, int64(1), stats.OutOfDomain)
		assert.Equal(t, time.Unix(1577836800, 0).UTC(), chunk.Band.Start)
		assert.Equal(t, time.Unix(1577840400+3600, 0).UTC(), chunk.Band.End)
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chunk.txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		var stats ParseStats

		_, _, err := ReadChunkFile(path, Tropics, &stats)
		require.Error(t, err)
	})
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "csv", DetectFormat("/data/mtpr_202001.csv"))
	assert.Equal(t, "csv.gz", DetectFormat("/data/mtpr_202001.CSV.GZ"))
	assert.Equal(t, "parquet", DetectFormat("mtpr_202001.parquet"))
	assert.Equal(t, "unknown", DetectFormat("mtpr_202001.nc"))
}
