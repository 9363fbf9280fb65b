package importer_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/healthdash/internal/importer"
	"github.com/lox/healthdash/internal/models"
	"github.com/lox/healthdash/internal/store"
)

const sampleExport = `<?xml version="1.0" encoding="UTF-8"?>
<HealthData locale="en_US">
 <Record type="HKQuantityTypeIdentifierBloodGlucose" sourceName="Dexcom" unit="mg/dL" startDate="2025-08-16 00:31:43 -0700" endDate="2025-08-16 00:31:43 -0700" value="112"/>
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="iPhone" unit="count" startDate="2025-08-16 08:00:00 -0700" endDate="2025-08-16 08:10:00 -0700" value="640"/>
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="iPhone" unit="count" startDate="2025-08-16 08:10:00 -0700" endDate="2025-08-16 08:20:00 -0700" value="oops"/>
 <Record type="HKQuantityTypeIdentifierBodyMass" sourceName="Scale" unit="kg" startDate="2025-08-16 07:00:00 -0700" value="70"/>
 <Workout workoutActivityType="HKWorkoutActivityTypeCycling" duration="45" sourceName="Watch" startDate="2025-08-16 07:00:00 -0700" endDate="2025-08-16 07:45:00 -0700">
  <WorkoutStatistics type="HKQuantityTypeIdentifierDistanceCycling" sum="18.2" unit="km"/>
 </Workout>
 <ActivitySummary dateComponents="2025-08-16" appleExerciseTime="34" appleStandHours="10"/>
 <ActivitySummary dateComponents="2025-08-16" appleExerciseTime="41" appleStandHours="11"/>
</HealthData>`

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())
	return s
}

func TestImportEndToEnd(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	res, err := importer.New(s).Import(ctx, "test", strings.NewReader(sampleExport))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, res.ActivitySummaries)
	assert.Equal(t, 1, res.Workouts)
	assert.Equal(t, 5, res.Total())
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, 1, res.Skipped[importer.SkipNonNumericValue])

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TableCounts{Records: 2, ActivitySummaries: 1, Workouts: 1}, counts)

	d := date(t, "2025-08-16")
	minutes, err := s.ExerciseMinutesInRange(ctx, d, d)
	require.NoError(t, err)
	require.Len(t, minutes, 1)
	assert.Equal(t, 41.0, minutes[0].Value.Float64)

	runs, err := s.RecentImportRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, "test", runs[0].Source)
	assert.EqualValues(t, 2, runs[0].Records.Int64)
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestMalformedImportKeepsPreviousData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	im := importer.New(s)

	_, err := im.Import(ctx, "first", strings.NewReader(sampleExport))
	require.NoError(t, err)

	broken := `<HealthData>
 <Record type="HKQuantityTypeIdentifierHeartRate" startDate="2025-09-01 00:00:00 -0700" value="60"/>
 <Record type="HKQuantityTypeIdentifierHeartRate"`
	_, err = im.Import(ctx, "broken", strings.NewReader(broken))

	var malformed *importer.MalformedInputError
	require.ErrorAs(t, err, &malformed)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts.Records)

	hr, err := s.LatestValue(ctx, models.HeartRate)
	require.NoError(t, err)
	assert.False(t, hr.Valid, "rows from the failed import must not be visible")

	runs, err := s.RecentImportRuns(ctx, 10)
	require.NoError(t, err)
	var failed int
	for _, r := range runs {
		if !r.Success {
			failed++
			assert.Contains(t, r.ErrorMessage.String, "malformed")
		}
	}
	assert.Equal(t, 1, failed)
}

func TestNonExportDocumentKeepsPreviousData(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	im := importer.New(s)

	_, err := im.Import(ctx, "first", strings.NewReader(sampleExport))
	require.NoError(t, err)

	docs := map[string]string{
		"empty":      "",
		"plain text": "type,value\nsteps,100\n",
		"two roots":  "<a/><b/>",
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := im.Import(ctx, name, strings.NewReader(doc))

			var malformed *importer.MalformedInputError
			require.ErrorAs(t, err, &malformed)

			counts, err := s.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, models.TableCounts{Records: 2, ActivitySummaries: 1, Workouts: 1}, counts)
		})
	}
}

func TestReimportIsReplaceAll(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	im := importer.New(s)

	for i := 0; i < 2; i++ {
		_, err := im.Import(ctx, "again", strings.NewReader(sampleExport))
		require.NoError(t, err)
	}

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TableCounts{Records: 2, ActivitySummaries: 1, Workouts: 1}, counts)
}

// blockingReader hands out its document only after release is closed.
type blockingReader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	r       *strings.Reader
}

func (b *blockingReader) Read(p []byte) (int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.r.Read(p)
}

func TestConcurrentImportRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	im := importer.New(s)

	br := &blockingReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		r:       strings.NewReader(sampleExport),
	}

	done := make(chan error, 1)
	go func() {
		_, err := im.Import(ctx, "slow", br)
		done <- err
	}()

	<-br.started
	_, err := im.Import(ctx, "second", strings.NewReader(sampleExport))
	assert.ErrorIs(t, err, importer.ErrImportInProgress)

	close(br.release)
	require.NoError(t, <-done)
}

func TestImportFile(t *testing.T) {
	s := setupTestStore(t)
	path := filepath.Join(t.TempDir(), "export.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o644))

	res, err := importer.New(s).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total())

	_, err = importer.New(s).ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractExport(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
		wantErr error
	}{
		{"root", map[string]string{"export.xml": sampleExport}, nil},
		{"subdirectory", map[string]string{
			"apple_health_export/export.xml":     sampleExport,
			"apple_health_export/export_cda.xml": "<ClinicalDocument/>",
		}, nil},
		{"missing", map[string]string{"other.xml": "<x/>"}, importer.ErrExportNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zipPath := writeZip(t, tt.entries)
			out, err := importer.ExtractExport(zipPath, t.TempDir())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			body, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, sampleExport, string(body))
		})
	}
}

func TestExtractExportRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := importer.ExtractExport(path, t.TempDir())
	assert.Error(t, err)
}
