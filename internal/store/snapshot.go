package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/healthdash/internal/models"
)

// Snapshot returns the header-card values for the latest data day: the most
// recent glucose reading, steps since midnight of that day and that day's
// exercise minutes. An empty store yields a zero Snapshot.
func (s *Store) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	snap := &models.Snapshot{}

	latest, ok, err := s.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest timestamp: %w", err)
	}
	if !ok {
		return snap, nil
	}
	day := time.Date(latest.Year(), latest.Month(), latest.Day(), 0, 0, 0, 0, time.UTC)
	snap.AsOf = sql.NullTime{Time: day, Valid: true}

	if snap.LatestGlucose, err = s.LatestValue(ctx, models.BloodGlucose); err != nil {
		return nil, fmt.Errorf("latest glucose: %w", err)
	}
	if snap.TotalSteps, err = s.SumSince(ctx, models.StepCount, day); err != nil {
		return nil, fmt.Errorf("steps: %w", err)
	}
	if snap.ExerciseMinutes, err = s.ExerciseMinutesOn(ctx, day); err != nil {
		return nil, fmt.Errorf("exercise minutes: %w", err)
	}
	return snap, nil
}

// LatestValue is the value of the most recent measurement of metric.
func (s *Store) LatestValue(ctx context.Context, metric models.MetricType) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM records
		WHERE type = ?
		ORDER BY start_date DESC
		LIMIT 1
	`, string(metric)).Scan(&v)
	if err == sql.ErrNoRows || isMissingTable(err) {
		return sql.NullFloat64{}, nil
	}
	return v, err
}

// SumSince totals metric from since onwards.
func (s *Store) SumSince(ctx context.Context, metric models.MetricType, since time.Time) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(value) FROM records
		WHERE type = ? AND start_date >= ?
	`, string(metric), models.FormatTimestamp(since)).Scan(&v)
	if isMissingTable(err) {
		return sql.NullFloat64{}, nil
	}
	return v, err
}

// ExerciseMinutesOn returns the exercise minutes recorded for one date.
func (s *Store) ExerciseMinutesOn(ctx context.Context, day time.Time) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT apple_exercise_time FROM activity_summaries
		WHERE date = ?
	`, models.FormatDate(day)).Scan(&v)
	if err == sql.ErrNoRows || isMissingTable(err) {
		return sql.NullFloat64{}, nil
	}
	return v, err
}
