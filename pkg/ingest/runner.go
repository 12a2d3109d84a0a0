// Package ingest drives the sequential batch pipeline: take a batch,
// fetch it, normalize it, write it, pace, repeat until the planner is
// exhausted. Fetch failures retry the same batch indefinitely after a
// fixed delay; a persistently broken remote source therefore stalls
// the run rather than skipping work.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tabletopmetrics/bgg-ingest/pkg/batch"
	"github.com/tabletopmetrics/bgg-ingest/pkg/bgg"
	"github.com/tabletopmetrics/bgg-ingest/pkg/normalize"
	"github.com/tabletopmetrics/bgg-ingest/pkg/pacer"
)

// Batch artifact naming. Debug mode writes the raw pre-normalization
// items with a distinct suffix beside the normalized output.
const (
	batchFilePattern = "game_data_batch_%d.json"
	rawFilePattern   = "game_data_batch_%d_raw.json"
)

// Prometheus metrics for the ingestion loop.
var (
	batchesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_ingest_batches_processed_total",
		Help: "Total batches fetched, normalized and written",
	})

	batchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bgg_ingest_batch_duration_seconds",
		Help:    "Wall-clock duration of successful batch attempts",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
	})

	fetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_ingest_fetch_failures_total",
		Help: "Total failed batch fetch attempts (each is retried)",
	})

	itemsNormalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_ingest_items_normalized_total",
		Help: "Total raw items normalized into output records",
	})

	sinkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_ingest_sink_errors_total",
		Help: "Total record-sink store failures (logged, not retried)",
	})
)

// Fetcher is the remote fetch capability consumed by the loop. It must
// tolerate being closed and recreated after a failure.
type Fetcher interface {
	Things(ctx context.Context, ids []int64) ([]bgg.Thing, error)
	Close() error
}

// FetcherFactory builds a fresh fetcher; the loop calls it at startup
// and again after every fetch failure.
type FetcherFactory func() (Fetcher, error)

// RecordSink receives each successful batch in addition to the file
// artifact. Sink errors never affect loop control flow.
type RecordSink interface {
	StoreBatch(ctx context.Context, batchIndex int, records []normalize.Record) error
}

// Config holds the loop configuration.
type Config struct {
	// OutDir receives batch artifacts and the run summary
	OutDir string

	// Debug enables single-batch diagnostic mode with a raw-data dump
	Debug bool

	// RetryDelay is the fixed pause before retrying a failed batch
	RetryDelay time.Duration
}

// Runner orchestrates one pipeline execution.
type Runner struct {
	planner    *batch.Planner
	newFetcher FetcherFactory
	fetcher    Fetcher
	stats      *StatsTracker
	pace       *pacer.Pacer
	sink       RecordSink
	config     Config
	logger     zerolog.Logger
}

// NewRunner wires a runner. sink may be nil.
func NewRunner(planner *batch.Planner, factory FetcherFactory, stats *StatsTracker, pace *pacer.Pacer, sink RecordSink, cfg Config, logger zerolog.Logger) (*Runner, error) {
	if planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("fetcher factory is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("stats tracker is required")
	}
	if pace == nil {
		return nil, fmt.Errorf("pacer is required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}

	return &Runner{
		planner:    planner,
		newFetcher: factory,
		stats:      stats,
		pace:       pace,
		sink:       sink,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Stats exposes the run's tracker so callers can flush it on signals.
func (r *Runner) Stats() *StatsTracker { return r.stats }

// Run executes the loop until the planner is exhausted (or, in debug
// mode, after exactly one batch). The run summary is flushed on every
// exit path; main additionally flushes on SIGINT/SIGTERM.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		if err := r.stats.Flush(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to flush run stats")
		}
	}()

	fetcher, err := r.newFetcher()
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	r.fetcher = fetcher
	defer func() { _ = r.fetcher.Close() }()

	for {
		b := r.planner.Take()
		if b.Empty() {
			r.logger.Info().
				Int("processed", r.stats.Snapshot().Processed).
				Msg("Work queue exhausted")
			return nil
		}

		if err := r.processBatch(ctx, b); err != nil {
			return err
		}

		if r.config.Debug {
			r.logger.Info().Msg("Debug mode: stopping after one batch")
			return nil
		}
	}
}

// processBatch drives one batch through Fetching, Normalizing&Writing
// and Pacing, looping through Retrying for as long as fetches fail.
func (r *Runner) processBatch(ctx context.Context, b batch.Batch) error {
	ids := b.IDs()

	for attempt := 1; ; attempt++ {
		r.pace.Mark(ctx)
		start := time.Now()

		things, err := r.fetcher.Things(ctx, ids)
		if err == nil && len(things) == 0 {
			err = bgg.ErrEmptyResult
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if retryErr := r.retryBatch(ctx, b, attempt, err); retryErr != nil {
				return retryErr
			}
			continue
		}

		records := normalize.FromThings(things)
		itemsNormalizedTotal.Add(float64(len(records)))

		if err := r.writeBatch(b.Index, records, things); err != nil {
			return err
		}

		duration := time.Since(start)
		r.stats.RecordSuccess(duration)
		batchesProcessedTotal.Inc()
		batchDurationSeconds.Observe(duration.Seconds())

		r.logger.Info().
			Int("batch", b.Index).
			Int("total", r.planner.TotalBatches()).
			Int("items", len(records)).
			Dur("duration", duration).
			Dur("eta", r.stats.ETA()).
			Msg("Batch processed")

		if r.sink != nil {
			if err := r.sink.StoreBatch(ctx, b.Index, records); err != nil {
				sinkErrorsTotal.Inc()
				r.logger.Error().Err(err).Int("batch", b.Index).Msg("Record sink store failed")
			}
		}

		if !r.config.Debug {
			if err := r.pace.Wait(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// retryBatch records a fetch failure, replaces the client handle, and
// idles for the fixed retry delay. The same batch is attempted again
// afterwards; failed batches are never skipped.
func (r *Runner) retryBatch(ctx context.Context, b batch.Batch, attempt int, cause error) error {
	ids := b.IDs()
	fetchFailuresTotal.Inc()
	r.stats.RecordFailure(ids, cause)

	r.logger.Warn().
		Err(cause).
		Int("batch", b.Index).
		Int("attempt", attempt).
		Ints64("ids", ids).
		Dur("retry_delay", r.config.RetryDelay).
		Msg("Batch fetch failed, recreating client and retrying")

	_ = r.fetcher.Close()
	fetcher, err := r.newFetcher()
	if err != nil {
		return fmt.Errorf("recreate fetcher: %w", err)
	}
	r.fetcher = fetcher

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.config.RetryDelay):
		return nil
	}
}

// writeBatch serializes the normalized records to the batch artifact,
// plus the raw item dump in debug mode.
func (r *Runner) writeBatch(index int, records []normalize.Record, things []bgg.Thing) error {
	path := filepath.Join(r.config.OutDir, fmt.Sprintf(batchFilePattern, index))
	if err := writeJSON(path, records); err != nil {
		return fmt.Errorf("write batch %d: %w", index, err)
	}

	if r.config.Debug {
		rawPath := filepath.Join(r.config.OutDir, fmt.Sprintf(rawFilePattern, index))
		if err := writeJSON(rawPath, things); err != nil {
			return fmt.Errorf("write raw batch %d: %w", index, err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
