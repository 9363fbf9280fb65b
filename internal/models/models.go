package models

import (
	"database/sql"
	"time"
)

// TimestampLayout is the zone-less local time format every stored timestamp uses.
// Lexical order on this layout matches chronological order, so range filters
// can compare the text columns directly.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the calendar-date format of daily summaries.
const DateLayout = "2006-01-02"

type MetricType string

const (
	BloodGlucose           MetricType = "HKQuantityTypeIdentifierBloodGlucose"
	StepCount              MetricType = "HKQuantityTypeIdentifierStepCount"
	HeartRate              MetricType = "HKQuantityTypeIdentifierHeartRate"
	DistanceWalkingRunning MetricType = "HKQuantityTypeIdentifierDistanceWalkingRunning"
	ActiveEnergyBurned     MetricType = "HKQuantityTypeIdentifierActiveEnergyBurned"
	BasalEnergyBurned      MetricType = "HKQuantityTypeIdentifierBasalEnergyBurned" // "Resting Energy"
	DistanceCycling        MetricType = "HKQuantityTypeIdentifierDistanceCycling"
)

// AllowedMetrics is the fixed set of record types kept at import. Every other
// record type is discarded while parsing.
var AllowedMetrics = map[MetricType]bool{
	BloodGlucose:           true,
	StepCount:              true,
	HeartRate:              true,
	DistanceWalkingRunning: true,
	ActiveEnergyBurned:     true,
	BasalEnergyBurned:      true,
	DistanceCycling:        true,
}

func (m MetricType) Allowed() bool {
	return AllowedMetrics[m]
}

// Measurement is one timestamped numeric reading.
type Measurement struct {
	Type       MetricType
	SourceName sql.NullString
	Unit       sql.NullString
	StartDate  time.Time
	EndDate    sql.NullTime
	Value      float64
}

// DailySummary is one activity-ring summary per calendar date.
type DailySummary struct {
	Date                   time.Time
	ExerciseMinutes        sql.NullFloat64
	ActiveEnergyBurned     sql.NullFloat64
	ActiveEnergyBurnedGoal sql.NullFloat64
	StandHours             sql.NullInt64
	StandHoursGoal         sql.NullInt64
}

type WorkoutSession struct {
	ActivityType          string
	Duration              sql.NullFloat64
	SourceName            sql.NullString
	StartDate             time.Time
	EndDate               sql.NullTime
	TotalDistance         sql.NullFloat64
	TotalDistanceUnit     sql.NullString
	TotalEnergyBurned     sql.NullFloat64
	TotalEnergyBurnedUnit sql.NullString
}

// Sample is a single (timestamp, value) pair read back for resampling.
type Sample struct {
	At    time.Time
	Value float64
}

// DailyValue is a per-date value that may be absent.
type DailyValue struct {
	Date  time.Time
	Value sql.NullFloat64
}

// Snapshot holds the header-card values for the most recent data day.
type Snapshot struct {
	LatestGlucose   sql.NullFloat64
	TotalSteps      sql.NullFloat64
	ExerciseMinutes sql.NullFloat64
	AsOf            sql.NullTime
}

// TableCounts reports how many rows each data table holds.
type TableCounts struct {
	Records           int64
	ActivitySummaries int64
	Workouts          int64
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
