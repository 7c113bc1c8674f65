package common

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats holds atomic counters for pipeline telemetry
type Stats struct {
	TotalSamplesBinned   uint64 // Atomic counter for samples binned into histograms
	TotalSamplesExcluded uint64 // Atomic counter for out-of-range samples dropped
	TotalBytesRead       uint64 // Atomic counter for chunk bytes read
	ChunksComplete       uint64 // Atomic counter for chunks fully processed

	// Internal state for reporter
	running    atomic.Bool
	stopCh     chan struct{}
	silent     bool
	lastBinned uint64
	lastBytes  uint64
	lastTime   time.Time
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		stopCh: make(chan struct{}),
	}
}

// AddBinned atomically increments the binned-sample counter
func (s *Stats) AddBinned(count uint64) {
	atomic.AddUint64(&s.TotalSamplesBinned, count)
}

// AddExcluded atomically increments the excluded-sample counter
func (s *Stats) AddExcluded(count uint64) {
	atomic.AddUint64(&s.TotalSamplesExcluded, count)
}

// AddBytes atomically increments the bytes-read counter
func (s *Stats) AddBytes(count uint64) {
	atomic.AddUint64(&s.TotalBytesRead, count)
}

// AddChunk atomically increments the completed-chunk counter
func (s *Stats) AddChunk() {
	atomic.AddUint64(&s.ChunksComplete, 1)
}

// GetBinned atomically reads the binned-sample counter
func (s *Stats) GetBinned() uint64 {
	return atomic.LoadUint64(&s.TotalSamplesBinned)
}

// GetExcluded atomically reads the excluded-sample counter
func (s *Stats) GetExcluded() uint64 {
	return atomic.LoadUint64(&s.TotalSamplesExcluded)
}

// GetBytes atomically reads the bytes-read counter
func (s *Stats) GetBytes() uint64 {
	return atomic.LoadUint64(&s.TotalBytesRead)
}

// GetChunks atomically reads the completed-chunk counter
func (s *Stats) GetChunks() uint64 {
	return atomic.LoadUint64(&s.ChunksComplete)
}

// SetSilent enables or disables silent mode
func (s *Stats) SetSilent(silent bool) {
	s.silent = silent
}

// StartReporter starts a background goroutine that prints telemetry stats
// every 500ms using standard newline-based logging
func (s *Stats) StartReporter() {
	if s.running.Load() {
		return // Already running
	}

	s.running.Store(true)
	s.lastTime = time.Now()
	s.lastBinned = 0
	s.lastBytes = 0

	go s.reporterLoop()
}

// StopReporter stops the background reporter goroutine
func (s *Stats) StopReporter() {
	if !s.running.Load() {
		return
	}

	s.running.Store(false)
	close(s.stopCh)
}

// reporterLoop is the background goroutine that periodically prints stats
func (s *Stats) reporterLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.printStatus()
		}
	}
}

// printStatus prints the current telemetry status using standard logging
func (s *Stats) printStatus() {
	if s.silent {
		return
	}

	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()

	if elapsed < 0.001 {
		// Avoid division by zero on first tick
		return
	}

	currentBinned := s.GetBinned()
	currentBytes := s.GetBytes()

	deltaBinned := currentBinned - s.lastBinned
	deltaBytes := currentBytes - s.lastBytes

	mibPerSec := (float64(deltaBytes) / (1024 * 1024)) / elapsed
	msps := (float64(deltaBinned) / 1_000_000) / elapsed

	fmt.Printf("[Progress] Throughput: %.2f MiB/s | Binned: %.2f Msps | Chunks: %d | Excluded: %d\n",
		mibPerSec,
		msps,
		s.GetChunks(),
		s.GetExcluded(),
	)

	s.lastBinned = currentBinned
	s.lastBytes = currentBytes
	s.lastTime = now
}

// Reset resets all counters (useful for testing or restarting)
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.TotalSamplesBinned, 0)
	atomic.StoreUint64(&s.TotalSamplesExcluded, 0)
	atomic.StoreUint64(&s.TotalBytesRead, 0)
	atomic.StoreUint64(&s.ChunksComplete, 0)
	s.lastBinned = 0
	s.lastBytes = 0
	s.lastTime = time.Now()
}
