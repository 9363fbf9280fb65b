// Package importer streams an Apple Health export.xml into the store using a
// replace-all strategy: every import rebuilds the data tables from scratch.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lox/healthdash/internal/logging"
	"github.com/lox/healthdash/internal/metrics"
	"github.com/lox/healthdash/internal/store"
)

// Result summarises one import.
type Result struct {
	Records           int
	ActivitySummaries int
	Workouts          int
	Filtered          int            // records with a type outside models.AllowedMetrics
	Skipped           map[string]int // dropped rows by reason
	WorkoutResets     int            // workouts discarded because another opened first
	Duration          time.Duration
}

// Total is the number of rows written across all three tables.
func (r Result) Total() int {
	return r.Records + r.ActivitySummaries + r.Workouts
}

func (r Result) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

type Importer struct {
	store     *store.Store
	batchSize int
	mu        sync.Mutex
	log       *slog.Logger
}

func New(st *store.Store) *Importer {
	return &Importer{
		store:     st,
		batchSize: BatchSize,
		log:       logging.Component("importer"),
	}
}

// SetBatchSize overrides the per-table flush threshold.
func (im *Importer) SetBatchSize(n int) {
	if n > 0 {
		im.batchSize = n
	}
}

// ImportFile imports the export document at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, path, f)
}

// Import replaces all stored health data with the contents of r. Only one
// import runs at a time; a concurrent call fails with ErrImportInProgress.
// On any error the previously stored data is left as it was.
func (im *Importer) Import(ctx context.Context, source string, r io.Reader) (*Result, error) {
	if !im.mu.TryLock() {
		return nil, ErrImportInProgress
	}
	defer im.mu.Unlock()

	started := time.Now()
	log := im.log.With("source", source)
	log.Info("import started")

	run, err := im.store.StartImportRun(ctx, source)
	if err != nil {
		log.Warn("could not record import run", "error", err)
	}

	result, err := im.load(ctx, r, log)
	if result != nil {
		result.Duration = time.Since(started)
	}
	im.finishRun(ctx, run, result, err, log)

	if err != nil {
		metrics.ImportsTotal.WithLabelValues("error").Inc()
		log.Error("import failed", "error", err)
		return nil, err
	}

	metrics.ImportsTotal.WithLabelValues("success").Inc()
	metrics.ImportDuration.Observe(result.Duration.Seconds())
	metrics.ImportRows.WithLabelValues("records").Add(float64(result.Records))
	metrics.ImportRows.WithLabelValues("activity_summaries").Add(float64(result.ActivitySummaries))
	metrics.ImportRows.WithLabelValues("workouts").Add(float64(result.Workouts))
	for reason, n := range result.Skipped {
		metrics.ImportSkipped.WithLabelValues(reason).Add(float64(n))
	}

	log.Info("import complete",
		"records", result.Records,
		"activity_summaries", result.ActivitySummaries,
		"workouts", result.Workouts,
		"filtered", result.Filtered,
		"skipped", result.SkippedTotal(),
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

func (im *Importer) load(ctx context.Context, r io.Reader, log *slog.Logger) (*Result, error) {
	repl, err := im.store.BeginReplace(ctx)
	if err != nil {
		return nil, &StorageError{Op: "create tables", Err: err}
	}

	pc := newParseContext(repl, im.batchSize, log)
	if err := pc.run(ctx, r); err != nil {
		if rbErr := repl.Rollback(); rbErr != nil {
			log.Warn("rollback failed", "error", rbErr)
		}
		return &pc.result, err
	}

	if err := repl.Commit(); err != nil {
		return &pc.result, &StorageError{Op: "commit", Err: err}
	}
	return &pc.result, nil
}

func (im *Importer) finishRun(ctx context.Context, run *store.ImportRun, result *Result, importErr error, log *slog.Logger) {
	if run == nil {
		return
	}
	if importErr != nil {
		run.ErrorMessage = sql.NullString{String: importErr.Error(), Valid: true}
	} else {
		run.Success = true
	}
	if result != nil && importErr == nil {
		run.Records = sql.NullInt64{Int64: int64(result.Records), Valid: true}
		run.ActivitySummaries = sql.NullInt64{Int64: int64(result.ActivitySummaries), Valid: true}
		run.Workouts = sql.NullInt64{Int64: int64(result.Workouts), Valid: true}
		run.Skipped = sql.NullInt64{Int64: int64(result.SkippedTotal()), Valid: true}
	}
	if err := im.store.CompleteImportRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("could not complete import run", "error", err)
	}
}
