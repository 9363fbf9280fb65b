package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lox/healthdash/internal/models"
)

// recordingSink keeps copies of every flushed batch.
type recordingSink struct {
	records       []models.Measurement
	summaries     []models.DailySummary
	workouts      []models.WorkoutSession
	recordBatches []int
}

func (s *recordingSink) InsertMeasurements(b []models.Measurement) error {
	s.records = append(s.records, b...)
	s.recordBatches = append(s.recordBatches, len(b))
	return nil
}

func (s *recordingSink) InsertDailySummaries(b []models.DailySummary) error {
	s.summaries = append(s.summaries, b...)
	return nil
}

func (s *recordingSink) InsertWorkouts(b []models.WorkoutSession) error {
	s.workouts = append(s.workouts, b...)
	return nil
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) InsertMeasurements(b []models.Measurement) error {
	return m.Called(b).Error(0)
}

func (m *mockSink) InsertDailySummaries(b []models.DailySummary) error {
	return m.Called(b).Error(0)
}

func (m *mockSink) InsertWorkouts(b []models.WorkoutSession) error {
	return m.Called(b).Error(0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func export(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE HealthData [
<!ELEMENT HealthData (ExportDate,Me,(Record|Workout|ActivitySummary)*)>
]>
<HealthData locale="en_US">
 <ExportDate value="2025-08-17 10:00:00 -0700"/>
 <Me HKCharacteristicTypeIdentifierDateOfBirth=""/>
` + body + `
</HealthData>`
}

func parse(t *testing.T, doc string, batchSize int) (*recordingSink, Result) {
	t.Helper()
	sink := &recordingSink{}
	pc := newParseContext(sink, batchSize, quietLogger())
	require.NoError(t, pc.run(context.Background(), strings.NewReader(doc)))
	return sink, pc.result
}

func ts(s string) time.Time {
	t, _ := time.Parse(models.TimestampLayout, s)
	return t
}

func TestRecordsOutsideAllowListAreFiltered(t *testing.T) {
	sink, result := parse(t, export(`
 <Record type="HKQuantityTypeIdentifierBodyMass" sourceName="Scale" unit="kg" startDate="2025-08-16 07:00:00 -0700" endDate="2025-08-16 07:00:00 -0700" value="70"/>
 <Record type="HKQuantityTypeIdentifierBloodGlucose" sourceName="Dexcom" unit="mg/dL" startDate="2025-08-16 00:31:43 -0700" endDate="2025-08-16 00:31:43 -0700" value="112"/>
 <Record type="HKCategoryTypeIdentifierSleepAnalysis" sourceName="Watch" startDate="2025-08-16 01:00:00 -0700" endDate="2025-08-16 06:00:00 -0700" value="HKCategoryValueSleepAnalysisAsleepCore"/>
`), 0)

	require.Len(t, sink.records, 1)
	assert.Equal(t, models.BloodGlucose, sink.records[0].Type)
	assert.Equal(t, 112.0, sink.records[0].Value)
	assert.Equal(t, "Dexcom", sink.records[0].SourceName.String)
	assert.Equal(t, "mg/dL", sink.records[0].Unit.String)
	assert.Equal(t, 2, result.Filtered)
	assert.Equal(t, 1, result.Records)
	assert.Equal(t, 0, result.SkippedTotal())
}

func TestTimestampsDropZoneOffset(t *testing.T) {
	sink, _ := parse(t, export(`
 <Record type="HKQuantityTypeIdentifierHeartRate" unit="count/min" startDate="2025-08-16 00:31:43 -0700" endDate="2025-08-16 00:32:10 +1000" value="61"/>
`), 0)

	require.Len(t, sink.records, 1)
	assert.Equal(t, ts("2025-08-16 00:31:43"), sink.records[0].StartDate)
	assert.True(t, sink.records[0].EndDate.Valid)
	assert.Equal(t, ts("2025-08-16 00:32:10"), sink.records[0].EndDate.Time)
}

func TestUnusableRecordValuesAreSkipped(t *testing.T) {
	sink, result := parse(t, export(`
 <Record type="HKQuantityTypeIdentifierStepCount" startDate="2025-08-16 08:00:00 -0700" value="abc"/>
 <Record type="HKQuantityTypeIdentifierStepCount" startDate="2025-08-16 08:00:00 -0700"/>
 <Record type="HKQuantityTypeIdentifierStepCount" startDate="2025-08-16 08:00:00 -0700" value="NaN"/>
 <Record type="HKQuantityTypeIdentifierStepCount" startDate="yesterday" value="10"/>
 <Record type="HKQuantityTypeIdentifierStepCount" startDate="2025-08-16 08:05:00 -0700" value=" 42 "/>
`), 0)

	require.Len(t, sink.records, 1)
	assert.Equal(t, 42.0, sink.records[0].Value)
	assert.Equal(t, 2, result.Skipped[SkipNonNumericValue])
	assert.Equal(t, 1, result.Skipped[SkipMissingValue])
	assert.Equal(t, 1, result.Skipped[SkipBadTimestamp])
}

func TestRecordWithChildElements(t *testing.T) {
	sink, _ := parse(t, export(`
 <Record type="HKQuantityTypeIdentifierHeartRate" unit="count/min" startDate="2025-08-16 09:00:00 -0700" value="88">
  <MetadataEntry key="HKMetadataKeyHeartRateMotionContext" value="1"/>
  <HeartRateVariabilityMetadataList>
   <InstantaneousBeatsPerMinute bpm="87" time="9:00:01.00 AM"/>
  </HeartRateVariabilityMetadataList>
 </Record>
`), 0)

	require.Len(t, sink.records, 1)
	assert.Equal(t, 88.0, sink.records[0].Value)
}

func TestActivitySummaries(t *testing.T) {
	sink, result := parse(t, export(`
 <ActivitySummary dateComponents="2025-08-15" activeEnergyBurned="512.3" activeEnergyBurnedGoal="600" activeEnergyBurnedUnit="Cal" appleExerciseTime="34" appleStandHours="11" appleStandHoursGoal="12"/>
 <ActivitySummary dateComponents="2025-08-16" appleStandHours="eleven"/>
 <ActivitySummary activeEnergyBurned="100"/>
 <ActivitySummary dateComponents="16/08/2025" appleExerciseTime="5"/>
`), 0)

	require.Len(t, sink.summaries, 2)

	full := sink.summaries[0]
	assert.Equal(t, "2025-08-15", models.FormatDate(full.Date))
	assert.Equal(t, 34.0, full.ExerciseMinutes.Float64)
	assert.Equal(t, 512.3, full.ActiveEnergyBurned.Float64)
	assert.Equal(t, 600.0, full.ActiveEnergyBurnedGoal.Float64)
	assert.EqualValues(t, 11, full.StandHours.Int64)
	assert.EqualValues(t, 12, full.StandHoursGoal.Int64)

	sparse := sink.summaries[1]
	assert.False(t, sparse.ExerciseMinutes.Valid)
	assert.False(t, sparse.ActiveEnergyBurned.Valid)
	assert.False(t, sparse.StandHours.Valid, "unparsable stand hours become NULL, not 0")

	assert.Equal(t, 1, result.Skipped[SkipMissingDate])
	assert.Equal(t, 1, result.Skipped[SkipBadDate])
}

func TestWorkoutStatisticsInEitherOrder(t *testing.T) {
	sink, _ := parse(t, export(`
 <Workout workoutActivityType="HKWorkoutActivityTypeCycling" duration="45.5" durationUnit="min" sourceName="Watch" startDate="2025-08-16 07:00:00 -0700" endDate="2025-08-16 07:45:30 -0700">
  <MetadataEntry key="HKIndoorWorkout" value="0"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceCycling" startDate="2025-08-16 07:00:00 -0700" endDate="2025-08-16 07:45:30 -0700" sum="18.2" unit="km"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierActiveEnergyBurned" startDate="2025-08-16 07:00:00 -0700" endDate="2025-08-16 07:45:30 -0700" sum="410" unit="Cal"/>
 </Workout>
 <Workout workoutActivityType="HKWorkoutActivityTypeRunning" duration="30" sourceName="Watch" startDate="2025-08-16 18:00:00 -0700" endDate="2025-08-16 18:30:00 -0700">
  <WorkoutStatistics type="HKQuantityTypeIdentifierActiveEnergyBurned" sum="300" unit="Cal"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierBasalEnergyBurned" sum="40" unit="Cal"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceWalkingRunning" sum="5.1" unit="km"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierHeartRate" average="150" unit="count/min"/>
 </Workout>
`), 0)

	require.Len(t, sink.workouts, 2)

	ride := sink.workouts[0]
	assert.Equal(t, "HKWorkoutActivityTypeCycling", ride.ActivityType)
	assert.Equal(t, 45.5, ride.Duration.Float64)
	assert.Equal(t, ts("2025-08-16 07:00:00"), ride.StartDate)
	assert.Equal(t, 18.2, ride.TotalDistance.Float64)
	assert.Equal(t, "km", ride.TotalDistanceUnit.String)
	assert.Equal(t, 410.0, ride.TotalEnergyBurned.Float64)
	assert.Equal(t, "Cal", ride.TotalEnergyBurnedUnit.String)

	run := sink.workouts[1]
	assert.Equal(t, 5.1, run.TotalDistance.Float64)
	assert.Equal(t, 300.0, run.TotalEnergyBurned.Float64, "basal energy must not overwrite active energy")
}

func TestWorkoutWithoutStatisticsStillCommits(t *testing.T) {
	sink, _ := parse(t, export(`
 <Workout workoutActivityType="HKWorkoutActivityTypeYoga" duration="20" startDate="2025-08-16 06:00:00 -0700" endDate="2025-08-16 06:20:00 -0700">
  <WorkoutStatistics type="HKQuantityTypeIdentifierHeartRate" average="90" unit="count/min"/>
 </Workout>
`), 0)

	require.Len(t, sink.workouts, 1)
	w := sink.workouts[0]
	assert.Equal(t, "HKWorkoutActivityTypeYoga", w.ActivityType)
	assert.False(t, w.TotalDistance.Valid)
	assert.False(t, w.TotalDistanceUnit.Valid)
	assert.False(t, w.TotalEnergyBurned.Valid)
	assert.False(t, w.TotalEnergyBurnedUnit.Valid)
}

func TestStatisticsOutsideWorkoutAreIgnored(t *testing.T) {
	sink, _ := parse(t, export(`
 <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceCycling" sum="3" unit="km"/>
 <Workout workoutActivityType="HKWorkoutActivityTypeWalking" startDate="2025-08-16 12:00:00 -0700"/>
`), 0)

	require.Len(t, sink.workouts, 1)
	assert.False(t, sink.workouts[0].TotalDistance.Valid)
}

func TestSecondWorkoutOpenResetsBuilder(t *testing.T) {
	sink, result := parse(t, export(`
 <Workout workoutActivityType="HKWorkoutActivityTypeCycling" startDate="2025-08-16 07:00:00 -0700">
  <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceCycling" sum="10" unit="km"/>
  <Workout workoutActivityType="HKWorkoutActivityTypeRunning" startDate="2025-08-16 08:00:00 -0700">
   <WorkoutStatistics type="HKQuantityTypeIdentifierActiveEnergyBurned" sum="200" unit="Cal"/>
  </Workout>
 </Workout>
`), 0)

	require.Len(t, sink.workouts, 1)
	assert.Equal(t, "HKWorkoutActivityTypeRunning", sink.workouts[0].ActivityType)
	assert.False(t, sink.workouts[0].TotalDistance.Valid)
	assert.Equal(t, 200.0, sink.workouts[0].TotalEnergyBurned.Float64)
	assert.Equal(t, 1, result.WorkoutResets)
}

func TestBatchesFlushAtBatchSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString(`<Record type="HKQuantityTypeIdentifierStepCount" startDate="2025-08-16 08:00:00 -0700" value="1"/>`)
	}
	sink, result := parse(t, export(b.String()), 2)

	assert.Equal(t, []int{2, 2, 1}, sink.recordBatches)
	assert.Equal(t, 5, result.Records)
	assert.Equal(t, 5, result.Total())
}

func TestMalformedDocument(t *testing.T) {
	tests := map[string]string{
		"truncated":   `<HealthData><Record type="HKQuantityTypeIdentifierStepCount" value="1"`,
		"mismatched":  `<HealthData><Record></Workout></HealthData>`,
		"not xml":     `{"records": []}` + "<",
		"empty":       "",
		"whitespace":  "  \n\t",
		"plain text":  "type,value\nsteps,100\n",
		"json":        `{"records": []}`,
		"two roots":   `<HealthData></HealthData><HealthData></HealthData>`,
		"wrong root":  `<a/><b/>`,
		"prolog only": `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE HealthData []>`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			pc := newParseContext(&recordingSink{}, 0, quietLogger())
			err := pc.run(context.Background(), strings.NewReader(doc))

			var malformed *MalformedInputError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestEmptyHealthDataIsValid(t *testing.T) {
	sink, result := parse(t, export(""), 0)
	assert.Empty(t, sink.records)
	assert.Equal(t, 0, result.Total())
}

func TestSinkFailureIsStorageError(t *testing.T) {
	sink := &mockSink{}
	sink.On("InsertMeasurements", mock.Anything).Return(errors.New("disk full"))

	pc := newParseContext(sink, 0, quietLogger())
	err := pc.run(context.Background(), strings.NewReader(export(`
 <Record type="HKQuantityTypeIdentifierStepCount" startDate="2025-08-16 08:00:00 -0700" value="1"/>
`)))

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "insert records", storageErr.Op)
	assert.Contains(t, err.Error(), "disk full")
	sink.AssertNotCalled(t, "InsertWorkouts", mock.Anything)
}

func TestCancelledContextStopsAtFlush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pc := newParseContext(&recordingSink{}, 1, quietLogger())
	err := pc.run(ctx, strings.NewReader(export(`
 <Record type="HKQuantityTypeIdentifierStepCount" startDate="2025-08-16 08:00:00 -0700" value="1"/>
`)))
	assert.ErrorIs(t, err, context.Canceled)
}
