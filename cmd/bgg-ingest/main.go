// Command bgg-ingest walks an identifier list in fixed-size batches,
// fetches each batch from the BoardGameGeek XML API 2, and writes
// normalized JSON artifacts plus a run summary.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tabletopmetrics/bgg-ingest/pkg/batch"
	"github.com/tabletopmetrics/bgg-ingest/pkg/bgg"
	"github.com/tabletopmetrics/bgg-ingest/pkg/ingest"
	"github.com/tabletopmetrics/bgg-ingest/pkg/logging"
	"github.com/tabletopmetrics/bgg-ingest/pkg/pacer"
	"github.com/tabletopmetrics/bgg-ingest/pkg/sink"
	"github.com/tabletopmetrics/bgg-ingest/pkg/source"
)

const (
	defaultBatchSize  = 40
	defaultInterval   = 5 * time.Second
	defaultRetryDelay = 30 * time.Second
	defaultCacheTTL   = 6 * time.Hour
)

func main() {
	var (
		path        = flag.String("path", getEnv("BGG_INPUT", "boardgames_ranks.csv"), "input CSV with the identifier list")
		outDir      = flag.String("out", getEnv("BGG_OUT", "."), "directory for batch artifacts and the run summary")
		debug       = flag.Bool("debug", false, "single-batch diagnostic mode with raw-data dump")
		skip        = flag.Int("skip", 0, "number of batches to skip before starting (resume offset)")
		batchSize   = flag.Int("batchsize", getEnvInt("BGG_BATCHSIZE", defaultBatchSize), "identifiers per remote request")
		interval    = flag.Duration("interval", defaultInterval, "minimum inter-request interval")
		retryDelay  = flag.Duration("retry-delay", defaultRetryDelay, "fixed pause before retrying a failed batch")
		redisURL    = flag.String("redis", getEnv("REDIS_URL", ""), "Redis address for shared pacing and response caching (empty disables)")
		cacheTTL    = flag.Duration("cache-ttl", defaultCacheTTL, "TTL for cached thing responses (needs -redis)")
		pgDSN       = flag.String("pg-dsn", getEnv("PG_DSN", ""), "optional Postgres DSN for the record sink")
		metricsAddr = flag.String("metrics-addr", getEnv("METRICS_ADDR", ""), "address for the Prometheus /metrics endpoint (empty disables)")
		logLevel    = flag.String("log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
		pretty      = flag.Bool("pretty", false, "human-readable console logging")
	)
	flag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(*logLevel),
		Pretty: *pretty,
		Output: os.Stderr,
	}).With().Str("component", "bgg-ingest").Logger()

	// Configuration errors are fatal before any batch work begins.
	if *batchSize <= 0 {
		logger.Fatal().Int("batchsize", *batchSize).Msg("Batch size must be positive")
	}
	if *skip < 0 {
		logger.Fatal().Int("skip", *skip).Msg("Skip count must not be negative")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("out", *outDir).Msg("Failed to create output directory")
	}

	rows, err := source.ReadRows(*path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *path).Msg("Failed to read identifier list")
	}

	planner, err := batch.NewPlanner(rows, *batchSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create batch planner")
	}
	if err := planner.Skip(*skip); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply resume offset")
	}

	ctx := context.Background()

	// Redis is optional; when configured it must be reachable.
	var redisClient *redis.Client
	var responseCache *bgg.Cache
	if *redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: *redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", *redisURL).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		responseCache, err = bgg.NewCache(redisClient, *cacheTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create response cache")
		}
		logger.Info().Str("redis", *redisURL).Msg("Connected to Redis")
	}

	var recordSink ingest.RecordSink
	if *pgDSN != "" {
		pg, err := sink.Open(ctx, *pgDSN, logging.NewLogger("sink"))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open Postgres sink")
		}
		defer pg.Close()
		recordSink = pg
		logger.Info().Msg("Postgres record sink enabled")
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	userAgent := getEnv("BGG_USER_AGENT", "bgg-ingest/0.1.0 (github.com/tabletopmetrics/bgg-ingest)")
	factory := func() (ingest.Fetcher, error) {
		cfg := bgg.DefaultConfig(userAgent)
		cfg.BaseURL = getEnv("BGG_BASE_URL", bgg.DefaultBaseURL)
		cfg.Cache = responseCache
		return bgg.New(cfg)
	}

	stats := ingest.NewStatsTracker(*outDir, *batchSize, planner.TotalBatches(), planner.StartBatch(), logging.NewLogger("stats"))
	pace := pacer.New(*interval, redisClient, logging.NewLogger("pacer"))

	runner, err := ingest.NewRunner(planner, factory, stats, pace, recordSink, ingest.Config{
		OutDir:     *outDir,
		Debug:      *debug,
		RetryDelay: *retryDelay,
	}, logging.NewLogger("ingest"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create ingestion runner")
	}

	// The run summary must be written exactly once however the process
	// ends; the signal path flushes directly before exiting.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warn().Str("signal", sig.String()).Msg("Termination signal received, flushing run stats")
		if err := stats.Flush(); err != nil {
			logger.Error().Err(err).Msg("Failed to flush run stats on signal")
			os.Exit(1)
		}
		os.Exit(130)
	}()

	logger.Info().
		Int("rows", len(rows)).
		Int("batchsize", *batchSize).
		Int("total_batches", planner.TotalBatches()).
		Int("skip", *skip).
		Bool("debug", *debug).
		Msg("Starting ingestion run")

	if err := runner.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Ingestion run failed")
		os.Exit(1)
	}
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
