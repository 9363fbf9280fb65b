// Package series resamples irregular measurement streams onto a shared,
// gap-aware time axis.
package series

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/healthdash/internal/metrics"
	"github.com/lox/healthdash/internal/models"
)

// Source is the read side of the store the engine depends on.
type Source interface {
	MeasurementsInRange(ctx context.Context, metric models.MetricType, start, end time.Time) ([]models.Sample, error)
	ExerciseMinutesInRange(ctx context.Context, start, end time.Time) ([]models.DailyValue, error)
}

type Request struct {
	Metric      models.MetricType
	Start       time.Time
	End         time.Time
	Granularity Granularity
	Kind        Kind
	Smoothing   int
}

type Engine struct {
	src Source
}

func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Resample returns one value per tick of the axis from req.Start to req.End.
// Ticks without data are gaps.
func (e *Engine) Resample(ctx context.Context, req Request) (Series, error) {
	return e.ResampleOn(ctx, req, NewAxis(req.Start, req.End, req.Granularity))
}

// ResampleOn is Resample onto an axis shared with other series.
func (e *Engine) ResampleOn(ctx context.Context, req Request, axis *Axis) (Series, error) {
	started := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("resample").Observe(time.Since(started).Seconds())
	}()

	samples, err := e.src.MeasurementsInRange(ctx, req.Metric, req.Start, req.End)
	if err != nil {
		return Series{}, fmt.Errorf("query %s: %w", req.Metric, err)
	}

	s := axis.Empty(string(req.Metric))
	if len(samples) == 0 {
		return s, nil
	}
	s.Values = Smooth(Bucket(samples, axis, req.Kind), req.Smoothing)
	return s, nil
}

// ExerciseMinutes serves the daily exercise totals on axis. They are not
// smoothed.
func (e *Engine) ExerciseMinutes(ctx context.Context, start, end time.Time, axis *Axis) (Series, error) {
	started := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("exercise_minutes").Observe(time.Since(started).Seconds())
	}()

	daily, err := e.src.ExerciseMinutesInRange(ctx, start, end)
	if err != nil {
		return Series{}, fmt.Errorf("query exercise minutes: %w", err)
	}

	s := axis.Empty("exercise_minutes")
	s.Values = Broadcast(daily, axis)
	return s, nil
}
