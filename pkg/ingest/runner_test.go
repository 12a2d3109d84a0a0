package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tabletopmetrics/bgg-ingest/pkg/batch"
	"github.com/tabletopmetrics/bgg-ingest/pkg/bgg"
	"github.com/tabletopmetrics/bgg-ingest/pkg/normalize"
	"github.com/tabletopmetrics/bgg-ingest/pkg/pacer"
	"github.com/tabletopmetrics/bgg-ingest/pkg/source"
)

// scriptedFetcher fails the attempts whose (1-based) global sequence
// number appears in failOn, and otherwise echoes one item per id.
type scriptedFetcher struct {
	calls  *int
	failOn map[int]error
	closed *int
}

func (f *scriptedFetcher) Things(ctx context.Context, ids []int64) ([]bgg.Thing, error) {
	*f.calls++
	if err, ok := f.failOn[*f.calls]; ok {
		return nil, err
	}
	things := make([]bgg.Thing, len(ids))
	for i, id := range ids {
		things[i] = bgg.Thing{
			ID:    id,
			Names: []bgg.Name{{Type: "primary", Value: fmt.Sprintf("Game %d", id)}},
		}
	}
	return things, nil
}

func (f *scriptedFetcher) Close() error {
	*f.closed++
	return nil
}

type fetcherScript struct {
	calls   int
	closed  int
	created int
	failOn  map[int]error
}

func (s *fetcherScript) factory() (Fetcher, error) {
	s.created++
	return &scriptedFetcher{calls: &s.calls, failOn: s.failOn, closed: &s.closed}, nil
}

type captureSink struct {
	batches map[int]int
	err     error
}

func (s *captureSink) StoreBatch(ctx context.Context, batchIndex int, records []normalize.Record) error {
	if s.batches == nil {
		s.batches = make(map[int]int)
	}
	s.batches[batchIndex] = len(records)
	return s.err
}

func makeRows(n int) []source.Row {
	rows := make([]source.Row, n)
	for i := range rows {
		rows[i] = source.Row{ID: int64(i + 1)}
	}
	return rows
}

func newTestRunner(t *testing.T, rows, batchSize int, script *fetcherScript, sink RecordSink, cfg Config) (*Runner, *StatsTracker) {
	t.Helper()

	planner, err := batch.NewPlanner(makeRows(rows), batchSize)
	if err != nil {
		t.Fatalf("NewPlanner() error = %v", err)
	}
	stats := NewStatsTracker(cfg.OutDir, batchSize, planner.TotalBatches(), 0, testLogger())
	pace := pacer.New(0, nil, testLogger())

	runner, err := NewRunner(planner, script.factory, stats, pace, sink, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return runner, stats
}

func readBatchFile(t *testing.T, dir string, index int) []normalize.Record {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf(batchFilePattern, index)))
	if err != nil {
		t.Fatalf("read batch %d: %v", index, err)
	}
	var records []normalize.Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unmarshal batch %d: %v", index, err)
	}
	return records
}

func TestNewRunner_Validation(t *testing.T) {
	planner, _ := batch.NewPlanner(makeRows(1), 1)
	stats := NewStatsTracker(t.TempDir(), 1, 1, 0, testLogger())
	pace := pacer.New(0, nil, testLogger())
	factory := func() (Fetcher, error) { return nil, nil }

	tests := []struct {
		name string
		run  func() (*Runner, error)
	}{
		{"nil planner", func() (*Runner, error) {
			return NewRunner(nil, factory, stats, pace, nil, Config{}, testLogger())
		}},
		{"nil factory", func() (*Runner, error) {
			return NewRunner(planner, nil, stats, pace, nil, Config{}, testLogger())
		}},
		{"nil stats", func() (*Runner, error) {
			return NewRunner(planner, factory, nil, pace, nil, Config{}, testLogger())
		}},
		{"nil pacer", func() (*Runner, error) {
			return NewRunner(planner, factory, stats, nil, nil, Config{}, testLogger())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.run(); err == nil {
				t.Error("NewRunner() expected error")
			}
		})
	}
}

func TestRunner_Run(t *testing.T) {
	dir := t.TempDir()
	script := &fetcherScript{}
	runner, stats := newTestRunner(t, 5, 2, script, nil, Config{OutDir: dir, RetryDelay: time.Millisecond})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := stats.Snapshot()
	if snap.Processed != 3 {
		t.Errorf("Processed = %d, want 3", snap.Processed)
	}
	if len(snap.Errors) != 0 {
		t.Errorf("Errors = %+v, want none", snap.Errors)
	}

	expectedSizes := map[int]int{1: 2, 2: 2, 3: 1}
	for index, size := range expectedSizes {
		records := readBatchFile(t, dir, index)
		if len(records) != size {
			t.Errorf("batch %d has %d records, want %d", index, len(records), size)
		}
	}
	if records := readBatchFile(t, dir, 1); records[0].ID != 1 || records[1].ID != 2 {
		t.Errorf("batch 1 ids = %d, %d, want 1, 2", records[0].ID, records[1].ID)
	}
}

func TestRunner_RetriesFailedBatch(t *testing.T) {
	dir := t.TempDir()
	script := &fetcherScript{
		// Second fetch (batch 2, first attempt) fails once.
		failOn: map[int]error{2: fmt.Errorf("remote unavailable")},
	}
	runner, stats := newTestRunner(t, 5, 2, script, nil, Config{OutDir: dir, RetryDelay: time.Millisecond})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := stats.Snapshot()
	if snap.Processed != 3 {
		t.Errorf("Processed = %d, want 3 (failed batch retried, not skipped)", snap.Processed)
	}
	if len(snap.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(snap.Errors))
	}
	if ids := snap.Errors[0].IDs; len(ids) != 2 || ids[0] != 3 || ids[1] != 4 {
		t.Errorf("error ids = %v, want batch 2's ids [3 4]", ids)
	}

	// The failure replaces the client handle.
	if script.created != 2 {
		t.Errorf("fetchers created = %d, want 2", script.created)
	}
	if script.closed < 1 {
		t.Errorf("fetchers closed = %d, want at least 1 before recreation", script.closed)
	}

	// Batch 2 still produced its artifact after the retry.
	records := readBatchFile(t, dir, 2)
	if len(records) != 2 || records[0].ID != 3 {
		t.Errorf("batch 2 records = %+v, want retried content", records)
	}
}

func TestRunner_EmptyResultIsRetried(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	empty := &emptyOnceFetcher{calls: &calls}
	factory := func() (Fetcher, error) { return empty, nil }

	planner, _ := batch.NewPlanner(makeRows(2), 2)
	stats := NewStatsTracker(dir, 2, 1, 0, testLogger())
	runner, err := NewRunner(planner, factory, stats, pacer.New(0, nil, testLogger()), nil,
		Config{OutDir: dir, RetryDelay: time.Millisecond}, testLogger())
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := stats.Snapshot()
	if len(snap.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1 (empty response counts as failure)", len(snap.Errors))
	}
	if snap.Processed != 1 {
		t.Errorf("Processed = %d, want 1", snap.Processed)
	}
}

// emptyOnceFetcher returns a well-formed empty result on the first call.
type emptyOnceFetcher struct {
	calls *int
}

func (f *emptyOnceFetcher) Things(ctx context.Context, ids []int64) ([]bgg.Thing, error) {
	*f.calls++
	if *f.calls == 1 {
		return []bgg.Thing{}, nil
	}
	things := make([]bgg.Thing, len(ids))
	for i, id := range ids {
		things[i] = bgg.Thing{ID: id}
	}
	return things, nil
}

func (f *emptyOnceFetcher) Close() error { return nil }

func TestRunner_DebugMode(t *testing.T) {
	dir := t.TempDir()
	script := &fetcherScript{}
	runner, stats := newTestRunner(t, 5, 2, script, nil, Config{OutDir: dir, Debug: true, RetryDelay: time.Millisecond})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if snap := stats.Snapshot(); snap.Processed != 1 {
		t.Errorf("Processed = %d, want 1 (debug stops after one batch)", snap.Processed)
	}

	// Normalized artifact plus raw dump for the single batch, no batch 2.
	if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf(batchFilePattern, 1))); err != nil {
		t.Errorf("missing batch artifact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf(rawFilePattern, 1))); err != nil {
		t.Errorf("missing raw artifact: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf(batchFilePattern, 2))); !os.IsNotExist(err) {
		t.Error("debug mode must not process a second batch")
	}
}

func TestRunner_SinkReceivesBatches(t *testing.T) {
	dir := t.TempDir()
	script := &fetcherScript{}
	sink := &captureSink{}
	runner, _ := newTestRunner(t, 5, 2, script, sink, Config{OutDir: dir, RetryDelay: time.Millisecond})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.batches) != 3 {
		t.Fatalf("sink saw %d batches, want 3", len(sink.batches))
	}
	if sink.batches[3] != 1 {
		t.Errorf("sink batch 3 size = %d, want 1", sink.batches[3])
	}
}

func TestRunner_SinkErrorDoesNotStopRun(t *testing.T) {
	dir := t.TempDir()
	script := &fetcherScript{}
	sink := &captureSink{err: fmt.Errorf("database unavailable")}
	runner, stats := newTestRunner(t, 5, 2, script, sink, Config{OutDir: dir, RetryDelay: time.Millisecond})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, sink failures must stay advisory", err)
	}
	if snap := stats.Snapshot(); snap.Processed != 3 {
		t.Errorf("Processed = %d, want 3", snap.Processed)
	}
}

func TestRunner_CancelledContextStopsRetry(t *testing.T) {
	dir := t.TempDir()
	script := &fetcherScript{
		failOn: map[int]error{1: fmt.Errorf("remote unavailable")},
	}
	runner, _ := newTestRunner(t, 5, 2, script, nil, Config{OutDir: dir, RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestRunner_FlushesStatsOnExit(t *testing.T) {
	dir := t.TempDir()
	script := &fetcherScript{}
	runner, stats := newTestRunner(t, 2, 2, script, nil, Config{OutDir: dir, RetryDelay: time.Millisecond})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	path := filepath.Join(dir, fmt.Sprintf(statsFilePattern, stats.Snapshot().Start.Unix()))
	if _, err := os.Stat(path); err != nil {
		t.Errorf("run summary not written: %v", err)
	}
}
