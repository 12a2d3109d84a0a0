// Package batch partitions the ordered identifier list into fixed-size
// batches and supports resuming a prior run by skipping a batch prefix.
package batch

import (
	"errors"
	"fmt"

	"github.com/tabletopmetrics/bgg-ingest/pkg/source"
)

// ErrPlannerStarted is returned by Skip after the first Take.
var ErrPlannerStarted = errors.New("planner already started")

// Batch is one fixed-size slice of the work queue. Index is 1-based.
// An empty Rows slice signals queue exhaustion.
type Batch struct {
	Index int
	Rows  []source.Row
}

// IDs returns the identifiers of the batch in order.
func (b Batch) IDs() []int64 {
	ids := make([]int64, len(b.Rows))
	for i, r := range b.Rows {
		ids[i] = r.ID
	}
	return ids
}

// Empty reports whether the batch carries no rows.
func (b Batch) Empty() bool { return len(b.Rows) == 0 }

// Planner walks the row list with an index cursor instead of mutating
// the slice, so repeated prefix removal stays O(1) per batch while the
// produced batch contents are identical to a mutable queue.
type Planner struct {
	rows      []source.Row
	batchSize int
	cursor    int
	taken     int
	start     int
	total     int
}

// NewPlanner creates a planner over rows. batchSize must be positive.
func NewPlanner(rows []source.Row, batchSize int) (*Planner, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive (got %d)", batchSize)
	}
	return &Planner{
		rows:      rows,
		batchSize: batchSize,
		total:     (len(rows) + batchSize - 1) / batchSize,
	}, nil
}

// TotalBatches returns the batch count over the full input, computed
// before any consumption and unaffected by Skip.
func (p *Planner) TotalBatches() int { return p.total }

// StartBatch returns the 0-based index of the first batch this run
// will produce (0 unless Skip was called).
func (p *Planner) StartBatch() int { return p.start }

// Skip drops n batches worth of rows from the front of the queue and
// sets the starting batch index to n. Only valid before the first Take.
func (p *Planner) Skip(n int) error {
	if p.taken > 0 {
		return ErrPlannerStarted
	}
	if n < 0 {
		return fmt.Errorf("skip count must not be negative (got %d)", n)
	}
	p.start = n
	p.cursor = n * p.batchSize
	if p.cursor > len(p.rows) {
		p.cursor = len(p.rows)
	}
	return nil
}

// Take removes and returns the next batch. The returned batch is empty
// once the queue is exhausted; that is the loop-termination signal.
func (p *Planner) Take() Batch {
	end := p.cursor + p.batchSize
	if end > len(p.rows) {
		end = len(p.rows)
	}
	rows := p.rows[p.cursor:end]
	p.cursor = end
	if len(rows) == 0 {
		return Batch{}
	}
	p.taken++
	return Batch{Index: p.start + p.taken, Rows: rows}
}
