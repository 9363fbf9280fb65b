package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lox/healthdash/internal/models"
)

var dataTableDDL = []string{
	"DROP TABLE IF EXISTS records",
	"DROP TABLE IF EXISTS activity_summaries",
	"DROP TABLE IF EXISTS workouts",
	`CREATE TABLE records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		source_name TEXT,
		unit TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT,
		value REAL NOT NULL
	)`,
	`CREATE TABLE activity_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		apple_exercise_time REAL,
		active_energy_burned REAL,
		active_energy_burned_goal REAL,
		apple_stand_hours INTEGER,
		apple_stand_hours_goal INTEGER
	)`,
	`CREATE TABLE workouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		activity_type TEXT NOT NULL,
		duration REAL,
		source_name TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT,
		total_distance REAL,
		total_distance_unit TEXT,
		total_energy_burned REAL,
		total_energy_burned_unit TEXT
	)`,
}

// Indexes are built after the bulk load.
var dataIndexDDL = []string{
	"CREATE INDEX idx_records_type_date ON records (type, start_date)",
	"CREATE INDEX idx_records_date ON records (start_date)",
	"CREATE INDEX idx_activity_date ON activity_summaries (date)",
	"CREATE INDEX idx_workouts_type_date ON workouts (activity_type, start_date)",
}

// Replacement is an in-flight replace-all load of the three data tables.
// Everything from the DROP to the final index build runs in one transaction,
// so readers keep the previous tables until Commit and a Rollback leaves them
// untouched.
type Replacement struct {
	ctx        context.Context
	tx         *sql.Tx
	records    *sql.Stmt
	activities *sql.Stmt
	workouts   *sql.Stmt
	done       bool
}

// BeginReplace drops and recreates the data tables inside a new transaction.
func (s *Store) BeginReplace(ctx context.Context) (*Replacement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	r := &Replacement{ctx: ctx, tx: tx}

	for _, stmt := range dataTableDDL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	if r.records, err = tx.PrepareContext(ctx, `
		INSERT INTO records (type, source_name, unit, start_date, end_date, value)
		VALUES (?, ?, ?, ?, ?, ?)
	`); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("prepare records insert: %w", err)
	}
	// A second summary for the same date replaces the first.
	if r.activities, err = tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO activity_summaries
		(date, apple_exercise_time, active_energy_burned,
		 active_energy_burned_goal, apple_stand_hours, apple_stand_hours_goal)
		VALUES (?, ?, ?, ?, ?, ?)
	`); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("prepare activity insert: %w", err)
	}
	if r.workouts, err = tx.PrepareContext(ctx, `
		INSERT INTO workouts
		(activity_type, duration, source_name, start_date, end_date,
		 total_distance, total_distance_unit, total_energy_burned, total_energy_burned_unit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("prepare workout insert: %w", err)
	}

	return r, nil
}

func (r *Replacement) InsertMeasurements(batch []models.Measurement) error {
	for _, m := range batch {
		if _, err := r.records.ExecContext(r.ctx,
			string(m.Type), m.SourceName, m.Unit,
			models.FormatTimestamp(m.StartDate), nullTimestamp(m.EndDate), m.Value,
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return nil
}

func (r *Replacement) InsertDailySummaries(batch []models.DailySummary) error {
	for _, d := range batch {
		if _, err := r.activities.ExecContext(r.ctx,
			models.FormatDate(d.Date), d.ExerciseMinutes, d.ActiveEnergyBurned,
			d.ActiveEnergyBurnedGoal, d.StandHours, d.StandHoursGoal,
		); err != nil {
			return fmt.Errorf("insert activity summary: %w", err)
		}
	}
	return nil
}

func (r *Replacement) InsertWorkouts(batch []models.WorkoutSession) error {
	for _, w := range batch {
		if _, err := r.workouts.ExecContext(r.ctx,
			w.ActivityType, w.Duration, w.SourceName,
			models.FormatTimestamp(w.StartDate), nullTimestamp(w.EndDate),
			w.TotalDistance, w.TotalDistanceUnit, w.TotalEnergyBurned, w.TotalEnergyBurnedUnit,
		); err != nil {
			return fmt.Errorf("insert workout: %w", err)
		}
	}
	return nil
}

// Commit builds the indexes and commits the load.
func (r *Replacement) Commit() error {
	if r.done {
		return fmt.Errorf("replacement already finished")
	}
	r.closeStatements()
	for _, stmt := range dataIndexDDL {
		if _, err := r.tx.ExecContext(r.ctx, stmt); err != nil {
			r.Rollback()
			return fmt.Errorf("create indexes: %w", err)
		}
	}
	r.done = true
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback abandons the load; the previous tables stay in place. It is safe
// to call after Commit.
func (r *Replacement) Rollback() error {
	if r.done {
		return nil
	}
	r.done = true
	r.closeStatements()
	return r.tx.Rollback()
}

func (r *Replacement) closeStatements() {
	for _, st := range []*sql.Stmt{r.records, r.activities, r.workouts} {
		if st != nil {
			st.Close()
		}
	}
}

func nullTimestamp(t sql.NullTime) sql.NullString {
	if !t.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: models.FormatTimestamp(t.Time), Valid: true}
}
