package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lox/healthdash/internal/models"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a SQLite database at path with WAL journaling and a busy timeout
// applied to every pooled connection.
func Open(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasData reports whether an import has produced at least one measurement.
// A missing records table is the same as an empty one.
func (s *Store) HasData(ctx context.Context) (bool, error) {
	ok, err := s.tableExists(ctx, "records")
	if err != nil || !ok {
		return false, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// LatestTimestamp returns the most recent measurement start time.
func (s *Store) LatestTimestamp(ctx context.Context) (time.Time, bool, error) {
	ok, err := s.tableExists(ctx, "records")
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(start_date) FROM records").Scan(&latest); err != nil {
		return time.Time{}, false, err
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	t, err := parseTimestamp(latest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// MeasurementsInRange returns every sample of metric with start_date in
// [start, end], ordered by time.
func (s *Store) MeasurementsInRange(ctx context.Context, metric models.MetricType, start, end time.Time) ([]models.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_date, value
		FROM records
		WHERE type = ?
		  AND start_date >= ?
		  AND start_date <= ?
		ORDER BY start_date
	`, string(metric), models.FormatTimestamp(start), models.FormatTimestamp(end))
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var raw string
		var v float64
		if err := rows.Scan(&raw, &v); err != nil {
			return nil, err
		}
		at, err := parseTimestamp(raw)
		if err != nil {
			continue
		}
		samples = append(samples, models.Sample{At: at, Value: v})
	}
	return samples, rows.Err()
}

// ExerciseMinutesInRange returns per-date exercise minutes for dates between
// start and end inclusive. No activity_summaries table yields no rows.
func (s *Store) ExerciseMinutesInRange(ctx context.Context, start, end time.Time) ([]models.DailyValue, error) {
	ok, err := s.tableExists(ctx, "activity_summaries")
	if err != nil || !ok {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, apple_exercise_time
		FROM activity_summaries
		WHERE date >= ? AND date <= ?
		ORDER BY date
	`, models.FormatDate(start), models.FormatDate(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []models.DailyValue
	for rows.Next() {
		var raw string
		var v sql.NullFloat64
		if err := rows.Scan(&raw, &v); err != nil {
			return nil, err
		}
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			continue
		}
		values = append(values, models.DailyValue{Date: d, Value: v})
	}
	return values, rows.Err()
}

// AverageValue is AVG(value) for metric over [start, end].
func (s *Store) AverageValue(ctx context.Context, metric models.MetricType, start, end time.Time) (sql.NullFloat64, error) {
	return s.aggregate(ctx, "AVG", metric, start, end)
}

// SumValue is SUM(value) for metric over [start, end]; NULL when no rows match.
func (s *Store) SumValue(ctx context.Context, metric models.MetricType, start, end time.Time) (sql.NullFloat64, error) {
	return s.aggregate(ctx, "SUM", metric, start, end)
}

func (s *Store) aggregate(ctx context.Context, fn string, metric models.MetricType, start, end time.Time) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT `+fn+`(value) FROM records
		WHERE type = ?
		  AND start_date >= ? AND start_date <= ?
	`, string(metric), models.FormatTimestamp(start), models.FormatTimestamp(end)).Scan(&v)
	if err != nil && isMissingTable(err) {
		return sql.NullFloat64{}, nil
	}
	return v, err
}

// AverageExerciseMinutes averages the daily exercise minutes for dates in
// [start, end]. Missing summaries degrade to NULL.
func (s *Store) AverageExerciseMinutes(ctx context.Context, start, end time.Time) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(apple_exercise_time) FROM activity_summaries
		WHERE date >= ? AND date <= ?
	`, models.FormatDate(start), models.FormatDate(end)).Scan(&v)
	if err != nil && isMissingTable(err) {
		return sql.NullFloat64{}, nil
	}
	return v, err
}

// Counts returns the row count of each data table; absent tables count as 0.
func (s *Store) Counts(ctx context.Context) (models.TableCounts, error) {
	var c models.TableCounts
	for table, dst := range map[string]*int64{
		"records":            &c.Records,
		"activity_summaries": &c.ActivitySummaries,
		"workouts":           &c.Workouts,
	} {
		ok, err := s.tableExists(ctx, table)
		if err != nil {
			return c, err
		}
		if !ok {
			continue
		}
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dst); err != nil {
			return c, fmt.Errorf("count %s: %w", table, err)
		}
	}
	return c, nil
}

// EachMeasurement streams every stored measurement in time order.
func (s *Store) EachMeasurement(ctx context.Context, fn func(models.Measurement) error) error {
	ok, err := s.tableExists(ctx, "records")
	if err != nil || !ok {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, source_name, unit, start_date, end_date, value
		FROM records
		ORDER BY start_date, id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Measurement
		var typ, start string
		var end sql.NullString
		if err := rows.Scan(&typ, &m.SourceName, &m.Unit, &start, &end, &m.Value); err != nil {
			return err
		}
		m.Type = models.MetricType(typ)
		if m.StartDate, err = parseTimestamp(start); err != nil {
			continue
		}
		if end.Valid {
			if t, err := parseTimestamp(end.String); err == nil {
				m.EndDate = sql.NullTime{Time: t, Valid: true}
			}
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return rows.Err()
}

func parseTimestamp(s string) (time.Time, error) {
	if len(s) > len(models.TimestampLayout) {
		s = s[:len(models.TimestampLayout)]
	}
	return time.Parse(models.TimestampLayout, s)
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
