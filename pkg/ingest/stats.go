package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// statsFilePattern names the run summary artifact by run start epoch.
const statsFilePattern = "run_stats_%d.json"

// BatchError records one failed batch attempt.
type BatchError struct {
	IDs   []int64 `json:"ids"`
	Error string  `json:"error"`
}

// RunStats is the mutable summary of one pipeline execution, flushed
// exactly once at process exit.
type RunStats struct {
	Start           time.Time    `json:"start"`
	End             time.Time    `json:"end"`
	BatchSize       int          `json:"batch_size"`
	TotalBatches    int          `json:"total_batches"`
	StartBatch      int          `json:"start_batch"`
	Processed       int          `json:"processed"`
	AvgBatchSeconds float64      `json:"avg_batch_seconds"`
	Errors          []BatchError `json:"errors"`
}

// StatsTracker owns the RunStats record. The loop is the only writer,
// so updates need no locking; Flush is Once-guarded because both the
// run's deferred cleanup and the signal path call it.
type StatsTracker struct {
	stats     RunStats
	dir       string
	logger    zerolog.Logger
	flushOnce sync.Once
	flushErr  error
}

// NewStatsTracker creates a tracker for a run starting now.
func NewStatsTracker(dir string, batchSize, totalBatches, startBatch int, logger zerolog.Logger) *StatsTracker {
	return &StatsTracker{
		stats: RunStats{
			Start:        time.Now(),
			BatchSize:    batchSize,
			TotalBatches: totalBatches,
			StartBatch:   startBatch,
			Errors:       []BatchError{},
		},
		dir:    dir,
		logger: logger,
	}
}

// RecordFailure appends a structured error entry for a failed batch attempt.
func (t *StatsTracker) RecordFailure(ids []int64, cause error) {
	t.stats.Errors = append(t.stats.Errors, BatchError{
		IDs:   ids,
		Error: cause.Error(),
	})
}

// RecordSuccess counts a processed batch and folds its duration into
// the rolling average using the incremental mean recurrence
// avg' = (avg*(n-1) + d) / n.
func (t *StatsTracker) RecordSuccess(duration time.Duration) {
	t.stats.Processed++
	n := float64(t.stats.Processed)
	t.stats.AvgBatchSeconds = (t.stats.AvgBatchSeconds*(n-1) + duration.Seconds()) / n
}

// Remaining returns how many batches the run still has to process.
func (t *StatsTracker) Remaining() int {
	remaining := t.stats.TotalBatches - t.stats.StartBatch - t.stats.Processed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ETA estimates the remaining run time from the rolling average.
func (t *StatsTracker) ETA() time.Duration {
	return time.Duration(float64(t.Remaining()) * t.stats.AvgBatchSeconds * float64(time.Second))
}

// Snapshot returns a copy of the current stats.
func (t *StatsTracker) Snapshot() RunStats {
	snap := t.stats
	snap.Errors = append([]BatchError(nil), t.stats.Errors...)
	return snap
}

// Flush writes the run summary exactly once, stamping the end time at
// the moment of the flush. Later calls return the first result.
func (t *StatsTracker) Flush() error {
	t.flushOnce.Do(func() {
		t.stats.End = time.Now()

		path := filepath.Join(t.dir, fmt.Sprintf(statsFilePattern, t.stats.Start.Unix()))
		data, err := json.MarshalIndent(t.stats, "", "  ")
		if err != nil {
			t.flushErr = fmt.Errorf("marshal run stats: %w", err)
			return
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.flushErr = fmt.Errorf("write run stats: %w", err)
			return
		}

		t.logger.Info().
			Str("path", path).
			Int("processed", t.stats.Processed).
			Int("errors", len(t.stats.Errors)).
			Msg("Run stats written")
	})
	return t.flushErr
}
