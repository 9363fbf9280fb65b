package series

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the bucket width of a time axis.
type Granularity int

const (
	Hourly Granularity = iota
	Daily
)

// ParseGranularity accepts the short forms used in range presets ("h", "D")
// as well as "hourly" and "daily".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.TrimSpace(s) {
	case "h", "H", "hourly":
		return Hourly, nil
	case "D", "d", "daily":
		return Daily, nil
	}
	return Hourly, fmt.Errorf("unknown granularity %q", s)
}

func (g Granularity) String() string {
	if g == Daily {
		return "D"
	}
	return "h"
}

// Truncate returns the start of the bucket containing t.
func (g Granularity) Truncate(t time.Time) time.Time {
	if g == Daily {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
	return t.Truncate(time.Hour)
}

// Next returns the start of the bucket after the one starting at t.
func (g Granularity) Next(t time.Time) time.Time {
	if g == Daily {
		return t.AddDate(0, 0, 1)
	}
	return t.Add(time.Hour)
}

// LabelLayout is the time format used for axis labels.
func (g Granularity) LabelLayout() string {
	if g == Daily {
		return "2006-01-02"
	}
	return "2006-01-02 15:04"
}

// Kind selects how samples within one bucket combine.
type Kind int

const (
	Mean Kind = iota
	Sum
	Median
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "avg":
		return Mean, nil
	case "sum":
		return Sum, nil
	case "median", "p50":
		return Median, nil
	}
	return Mean, fmt.Errorf("unknown aggregation %q", s)
}

func (k Kind) String() string {
	switch k {
	case Sum:
		return "sum"
	case Median:
		return "median"
	default:
		return "mean"
	}
}
