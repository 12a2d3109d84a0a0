// Package sink persists normalized records into Postgres beside the
// file artifacts. The sink is optional and advisory: the ingestion
// loop logs store failures and moves on.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tabletopmetrics/bgg-ingest/pkg/normalize"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS games (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	year        INT NOT NULL DEFAULT 0,
	avg_rating  DOUBLE PRECISION NOT NULL DEFAULT 0,
	doc         JSONB NOT NULL,
	batch_index INT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO games (id, name, year, avg_rating, doc, batch_index, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	year = EXCLUDED.year,
	avg_rating = EXCLUDED.avg_rating,
	doc = EXCLUDED.doc,
	batch_index = EXCLUDED.batch_index,
	updated_at = now()`

// Postgres upserts normalized records into a single games table, the
// full record as JSONB beside a few indexed columns.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to Postgres and ensures the games table exists.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure games table: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// StoreBatch upserts one batch of records in a single round trip.
func (p *Postgres) StoreBatch(ctx context.Context, batchIndex int, records []normalize.Record) error {
	pgBatch := &pgx.Batch{}
	for i := range records {
		rec := &records[i]
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", rec.ID, err)
		}
		pgBatch.Queue(upsertSQL, rec.ID, rec.Name, rec.Year, rec.Rating.Average, doc, batchIndex)
	}

	results := p.pool.SendBatch(ctx, pgBatch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert batch %d: %w", batchIndex, err)
		}
	}

	p.logger.Debug().
		Int("batch", batchIndex).
		Int("records", len(records)).
		Msg("Batch upserted to postgres")
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
