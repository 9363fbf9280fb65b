package series

import (
	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/lox/healthdash/internal/models"
)

// Relative accuracy of median buckets.
const sketchAccuracy = 0.01

type accumulator struct {
	count  int
	sum    float64
	sketch *ddsketch.DDSketch
}

func (acc *accumulator) add(v float64, kind Kind) {
	acc.count++
	acc.sum += v
	if kind != Median {
		return
	}
	if acc.sketch == nil {
		sk, err := ddsketch.NewDefaultDDSketch(sketchAccuracy)
		if err != nil {
			return
		}
		acc.sketch = sk
	}
	acc.sketch.Add(v)
}

func (acc *accumulator) value(kind Kind) Value {
	if acc == nil || acc.count == 0 {
		return Gap
	}
	switch kind {
	case Sum:
		return Some(acc.sum)
	case Median:
		if acc.sketch == nil {
			return Gap
		}
		q, err := acc.sketch.GetValueAtQuantile(0.5)
		if err != nil {
			return Gap
		}
		return Some(q)
	default:
		return Some(acc.sum / float64(acc.count))
	}
}

// Bucket groups samples into the axis buckets and aggregates each one by
// kind. A bucket with no samples is a gap for every kind, including Sum.
func Bucket(samples []models.Sample, axis *Axis, kind Kind) []Value {
	accs := make([]*accumulator, axis.Len())
	for _, s := range samples {
		i, ok := axis.Index(s.At)
		if !ok {
			continue
		}
		if accs[i] == nil {
			accs[i] = &accumulator{}
		}
		accs[i].add(s.Value, kind)
	}

	values := make([]Value, len(accs))
	for i, acc := range accs {
		values[i] = acc.value(kind)
	}
	return values
}

// Smooth applies a trailing moving average over window ticks. Gaps stay gaps
// and are left out of their neighbours' averages; near the start the window
// covers only the ticks seen so far. A window of 1 or less returns values
// unchanged.
func Smooth(values []Value, window int) []Value {
	if window <= 1 {
		return values
	}

	out := make([]Value, len(values))
	for i, v := range values {
		if !v.Valid {
			continue
		}
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		var sum float64
		var n int
		for _, w := range values[lo : i+1] {
			if w.Valid {
				sum += w.Float64
				n++
			}
		}
		out[i] = Some(sum / float64(n))
	}
	return out
}

// Broadcast places one value per calendar day onto the axis. On an hourly
// axis every hour of a day carries that day's full value. Days without a
// value are gaps.
func Broadcast(daily []models.DailyValue, axis *Axis) []Value {
	byDay := make(map[int64]Value, len(daily))
	for _, d := range daily {
		if !d.Value.Valid {
			continue
		}
		key := Daily.Truncate(d.Date).Unix()
		cur := byDay[key]
		byDay[key] = Some(cur.Float64 + d.Value.Float64)
	}

	values := make([]Value, axis.Len())
	for i, t := range axis.Ticks {
		values[i] = byDay[Daily.Truncate(t).Unix()]
	}
	return values
}
