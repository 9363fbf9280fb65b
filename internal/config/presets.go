// Package config holds the dashboard range presets.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lox/healthdash/internal/series"
)

// DefaultRange is served when a request names no range or an unknown one.
const DefaultRange = "7d"

// Preset maps a range key to its lookback, bucket width and smoothing window.
type Preset struct {
	Key         string
	Lookback    time.Duration
	Granularity series.Granularity
	Smoothing   int
}

// Days is the lookback in whole calendar days, never less than 1.
func (p Preset) Days() int {
	d := int(p.Lookback / (24 * time.Hour))
	if d < 1 {
		return 1
	}
	return d
}

// Presets is the range table keyed by range name.
type Presets map[string]Preset

// DefaultPresets returns the built-in range table.
func DefaultPresets() Presets {
	day := 24 * time.Hour
	return Presets{
		"24h": {Key: "24h", Lookback: day, Granularity: series.Hourly, Smoothing: 1},
		"7d":  {Key: "7d", Lookback: 7 * day, Granularity: series.Hourly, Smoothing: 3},
		"14d": {Key: "14d", Lookback: 14 * day, Granularity: series.Daily, Smoothing: 1},
		"30d": {Key: "30d", Lookback: 30 * day, Granularity: series.Daily, Smoothing: 3},
		"3mo": {Key: "3mo", Lookback: 90 * day, Granularity: series.Daily, Smoothing: 7},
		"6mo": {Key: "6mo", Lookback: 180 * day, Granularity: series.Daily, Smoothing: 14},
	}
}

// Lookup returns the preset for key, falling back to DefaultRange.
func (p Presets) Lookup(key string) Preset {
	if pr, ok := p[key]; ok {
		return pr
	}
	if pr, ok := p[DefaultRange]; ok {
		return pr
	}
	return DefaultPresets()[DefaultRange]
}

// Keys lists the range names ordered by lookback.
func (p Presets) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := p[keys[i]], p[keys[j]]
		if a.Lookback != b.Lookback {
			return a.Lookback < b.Lookback
		}
		return keys[i] < keys[j]
	})
	return keys
}

// presetFile is the YAML shape of a presets file:
//
//	ranges:
//	  7d:  {lookback: 7d, granularity: h, smoothing: 3}
//	  1y:  {lookback: 365d, granularity: D, smoothing: 30}
type presetFile struct {
	Ranges map[string]presetEntry `yaml:"ranges"`
}

type presetEntry struct {
	Lookback    string `yaml:"lookback"`
	Granularity string `yaml:"granularity"`
	Smoothing   int    `yaml:"smoothing"`
}

// LoadPresets reads a YAML presets file. Entries are merged over the
// defaults, so a file only needs the ranges it changes or adds.
func LoadPresets(path string) (Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}
	return ParsePresets(data)
}

func ParsePresets(data []byte) (Presets, error) {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets file: %w", err)
	}

	presets := DefaultPresets()
	for key, e := range f.Ranges {
		p, err := e.preset(key)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", key, err)
		}
		presets[key] = p
	}
	return presets, nil
}

func (e presetEntry) preset(key string) (Preset, error) {
	lookback, err := ParseLookback(e.Lookback)
	if err != nil {
		return Preset{}, err
	}
	g, err := series.ParseGranularity(e.Granularity)
	if err != nil {
		return Preset{}, err
	}
	smoothing := e.Smoothing
	if smoothing < 1 {
		smoothing = 1
	}
	return Preset{Key: key, Lookback: lookback, Granularity: g, Smoothing: smoothing}, nil
}

// ParseLookback accepts Go durations ("36h") and whole days ("90d").
func ParseLookback(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid lookback %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid lookback %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("lookback must be positive: %q", s)
	}
	return d, nil
}
