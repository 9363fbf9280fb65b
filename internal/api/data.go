package api

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/healthdash/internal/config"
	"github.com/lox/healthdash/internal/models"
	"github.com/lox/healthdash/internal/series"
)

// Metric is one dashboard chart.
type Metric struct {
	Key    string
	Title  string
	Unit   string
	Metric models.MetricType
	Kind   series.Kind
}

// Metrics are the record-backed charts, in dashboard order. Exercise
// minutes come from daily summaries and are looked up separately.
var Metrics = []Metric{
	{Key: "glucose", Title: "Blood glucose", Unit: "mg/dL", Metric: models.BloodGlucose, Kind: series.Mean},
	{Key: "steps", Title: "Steps", Metric: models.StepCount, Kind: series.Sum},
	{Key: "heart_rate", Title: "Heart rate", Unit: "bpm", Metric: models.HeartRate, Kind: series.Mean},
	{Key: "active_calories", Title: "Active energy", Unit: "kcal", Metric: models.ActiveEnergyBurned, Kind: series.Sum},
	{Key: "resting_energy", Title: "Resting energy", Unit: "kcal", Metric: models.BasalEnergyBurned, Kind: series.Sum},
	{Key: "walking_running_distance", Title: "Walking + running", Unit: "km", Metric: models.DistanceWalkingRunning, Kind: series.Sum},
	{Key: "cycling_distance", Title: "Cycling", Unit: "km", Metric: models.DistanceCycling, Kind: series.Sum},
}

const exerciseMinutesKey = "exercise_minutes"

// LookupMetric finds a chart by its response key.
func LookupMetric(key string) (Metric, bool) {
	for _, m := range Metrics {
		if m.Key == key {
			return m, true
		}
	}
	if key == exerciseMinutesKey {
		return Metric{Key: exerciseMinutesKey, Title: "Exercise", Unit: "min"}, true
	}
	return Metric{}, false
}

// DataResponse is the /api/data payload. Every series is aligned to Labels.
type DataResponse struct {
	Labels                 []string       `json:"labels"`
	Glucose                []series.Value `json:"glucose"`
	Steps                  []series.Value `json:"steps"`
	HeartRate              []series.Value `json:"heart_rate"`
	ActiveCalories         []series.Value `json:"active_calories"`
	RestingEnergy          []series.Value `json:"resting_energy"`
	WalkingRunningDistance []series.Value `json:"walking_running_distance"`
	CyclingDistance        []series.Value `json:"cycling_distance"`
	ExerciseMinutes        []series.Value `json:"exercise_minutes"`
	AvgGlucose             *float64       `json:"avg_glucose"`
	AvgDailySteps          *int64         `json:"avg_daily_steps"`
	AvgExerciseMinutes     *float64       `json:"avg_exercise_minutes"`
	Range                  string         `json:"range"`
	Freq                   string         `json:"freq"`
}

// emptyData is the response before anything has been imported.
func emptyData() *DataResponse {
	return &DataResponse{
		Labels:                 []string{},
		Glucose:                []series.Value{},
		Steps:                  []series.Value{},
		HeartRate:              []series.Value{},
		ActiveCalories:         []series.Value{},
		RestingEnergy:          []series.Value{},
		WalkingRunningDistance: []series.Value{},
		CyclingDistance:        []series.Value{},
		ExerciseMinutes:        []series.Value{},
		Range:                  config.DefaultRange,
		Freq:                   series.Hourly.String(),
	}
}

func (d *DataResponse) set(key string, values []series.Value) {
	switch key {
	case "glucose":
		d.Glucose = values
	case "steps":
		d.Steps = values
	case "heart_rate":
		d.HeartRate = values
	case "active_calories":
		d.ActiveCalories = values
	case "resting_energy":
		d.RestingEnergy = values
	case "walking_running_distance":
		d.WalkingRunningDistance = values
	case "cycling_distance":
		d.CyclingDistance = values
	case exerciseMinutesKey:
		d.ExerciseMinutes = values
	}
}

// window resolves a preset against the newest stored timestamp. ok is false
// when nothing has been imported.
func (s *Server) window(ctx context.Context, p config.Preset) (start, end time.Time, ok bool, err error) {
	latest, ok, err := s.store.LatestTimestamp(ctx)
	if err != nil || !ok {
		return time.Time{}, time.Time{}, false, err
	}
	start, end = series.Window(latest, p.Lookback, p.Granularity)
	return start, end, true, nil
}

// metricSeries resamples one dashboard metric onto axis.
func (s *Server) metricSeries(ctx context.Context, m Metric, p config.Preset, start, end time.Time, axis *series.Axis) (series.Series, error) {
	if m.Key == exerciseMinutesKey {
		return s.engine.ExerciseMinutes(ctx, start, end, axis)
	}
	return s.engine.ResampleOn(ctx, series.Request{
		Metric:      m.Metric,
		Start:       start,
		End:         end,
		Granularity: p.Granularity,
		Kind:        m.Kind,
		Smoothing:   p.Smoothing,
	}, axis)
}

// Series returns one metric over a range on its own axis. An empty store
// yields an empty series.
func (s *Server) Series(ctx context.Context, key, rangeKey string) (series.Series, config.Preset, error) {
	p := s.presets.Lookup(rangeKey)
	m, ok := LookupMetric(key)
	if !ok {
		return series.Series{}, p, fmt.Errorf("unknown metric %q", key)
	}

	start, end, ok, err := s.window(ctx, p)
	if err != nil || !ok {
		return series.Series{Name: key}, p, err
	}
	sr, err := s.metricSeries(ctx, m, p, start, end, series.NewAxis(start, end, p.Granularity))
	sr.Name = key
	return sr, p, err
}

func (s *Server) buildData(ctx context.Context, rangeKey string) (*DataResponse, error) {
	p := s.presets.Lookup(rangeKey)

	start, end, ok, err := s.window(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("latest timestamp: %w", err)
	}
	if !ok {
		return emptyData(), nil
	}

	axis := series.NewAxis(start, end, p.Granularity)
	resp := &DataResponse{
		Labels: axis.Labels(),
		Range:  p.Key,
		Freq:   p.Granularity.String(),
	}

	keys := make([]string, 0, len(Metrics)+1)
	for _, m := range Metrics {
		keys = append(keys, m.Key)
	}
	keys = append(keys, exerciseMinutesKey)
	results := make([]series.Series, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		m, _ := LookupMetric(key)
		g.Go(func() error {
			sr, err := s.metricSeries(gctx, m, p, start, end, axis)
			if err != nil {
				return err
			}
			results[i] = axis.Align(sr)
			return nil
		})
	}
	g.Go(func() error {
		return s.fillAverages(gctx, resp, p, start, end)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, key := range keys {
		resp.set(key, results[i].Values)
	}
	return resp, nil
}

// fillAverages computes the three header scalars over the window.
func (s *Server) fillAverages(ctx context.Context, resp *DataResponse, p config.Preset, start, end time.Time) error {
	glucose, err := s.store.AverageValue(ctx, models.BloodGlucose, start, end)
	if err != nil {
		return fmt.Errorf("average glucose: %w", err)
	}
	resp.AvgGlucose = roundedPtr(glucose, 1)

	steps, err := s.store.SumValue(ctx, models.StepCount, start, end)
	if err != nil {
		return fmt.Errorf("total steps: %w", err)
	}
	if steps.Valid {
		v := int64(math.Round(steps.Float64 / float64(p.Days())))
		resp.AvgDailySteps = &v
	}

	exercise, err := s.store.AverageExerciseMinutes(ctx, start, end)
	if err != nil {
		return fmt.Errorf("average exercise minutes: %w", err)
	}
	resp.AvgExerciseMinutes = roundedPtr(exercise, 1)
	return nil
}

func roundedPtr(v sql.NullFloat64, places int) *float64 {
	if !v.Valid {
		return nil
	}
	f := series.Round(v.Float64, places)
	return &f
}

func (s *Server) handleAPIData(w http.ResponseWriter, r *http.Request) {
	data, err := s.buildData(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		s.log.Error("build dashboard data", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}
