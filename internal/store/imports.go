package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ImportRun is the audit row for one replace-all import.
type ImportRun struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // file path, URL or "upload"
	Records           sql.NullInt64
	ActivitySummaries sql.NullInt64
	Workouts          sql.NullInt64
	Skipped           sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// StartImportRun records the start of an import and returns its audit row.
func (s *Store) StartImportRun(ctx context.Context, source string) (*ImportRun, error) {
	run := &ImportRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Source:    source,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (id, started_at, source, success)
		VALUES (?, ?, ?, FALSE)
	`, run.ID, run.StartedAt, run.Source)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteImportRun stamps the finish time and writes the outcome.
func (s *Store) CompleteImportRun(ctx context.Context, run *ImportRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET
			finished_at = ?,
			records = ?,
			activity_summaries = ?,
			workouts = ?,
			skipped = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Records, run.ActivitySummaries, run.Workouts,
		run.Skipped, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentImportRuns returns the newest import runs first.
func (s *Store) RecentImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source, records, activity_summaries,
		       workouts, skipped, success, error_message
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Records,
			&r.ActivitySummaries, &r.Workouts, &r.Skipped, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
