// Package pacer enforces a floor on request cadence independent of
// remote latency. The last-request timestamp can be shared through
// Redis so multiple jobs behind one IP respect a single floor.
package pacer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyLastRequest stores the shared last-request timestamp as
// unix milliseconds.
const RedisKeyLastRequest = "bgg:pacer:last_request"

// Prometheus metrics for pacing decisions.
var (
	pacerWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_pacer_waits_total",
		Help: "Total number of times the pacer idled before the next request",
	})

	pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bgg_pacer_wait_seconds",
		Help:    "Idle duration imposed by the pacer",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Pacer gates requests to at most one per interval. With a nil Redis
// client the last-request timestamp is process-local.
type Pacer struct {
	redis    *redis.Client
	interval time.Duration
	logger   zerolog.Logger
	last     time.Time
}

// New creates a pacer with the given minimum inter-request interval.
// redisClient may be nil for local-only pacing.
func New(interval time.Duration, redisClient *redis.Client, logger zerolog.Logger) *Pacer {
	return &Pacer{
		redis:    redisClient,
		interval: interval,
		logger:   logger,
	}
}

// Interval returns the configured cadence floor.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Mark records the start of a request window. Redis failures degrade
// to local state, they never block the pipeline.
func (p *Pacer) Mark(ctx context.Context) {
	now := time.Now()
	p.last = now

	if p.redis == nil {
		return
	}
	if err := p.redis.Set(ctx, RedisKeyLastRequest, now.UnixMilli(), 0).Err(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to store pacer state in redis, using local state")
	}
}

// Wait idles until one full interval has passed since the last Mark.
// Returns immediately when the interval already elapsed; returns the
// context error when cancelled mid-wait.
func (p *Pacer) Wait(ctx context.Context) error {
	remaining := p.interval - time.Since(p.lastMark(ctx))
	if remaining <= 0 {
		return nil
	}

	pacerWaitsTotal.Inc()
	pacerWaitSeconds.Observe(remaining.Seconds())
	p.logger.Debug().
		Dur("wait", remaining).
		Dur("interval", p.interval).
		Msg("Pacing before next request")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(remaining):
		return nil
	}
}

// lastMark resolves the most recent request timestamp, preferring the
// shared Redis state when available.
func (p *Pacer) lastMark(ctx context.Context) time.Time {
	if p.redis == nil {
		return p.last
	}

	millis, err := p.redis.Get(ctx, RedisKeyLastRequest).Int64()
	if err != nil {
		if err != redis.Nil {
			p.logger.Warn().Err(err).Msg("Failed to read pacer state from redis, using local state")
		}
		return p.last
	}

	shared := time.UnixMilli(millis)
	if shared.After(p.last) {
		return shared
	}
	return p.last
}
