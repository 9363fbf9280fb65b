package series

import (
	"math"
	"strconv"
	"time"
)

// Value is one tick of a series. Valid=false is a gap: no underlying data,
// which is distinct from a measured zero.
type Value struct {
	Float64 float64
	Valid   bool
}

func Some(v float64) Value {
	return Value{Float64: v, Valid: true}
}

// Gap is the missing-data marker.
var Gap = Value{}

// MarshalJSON renders gaps as null and numbers rounded to two decimals.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, Round(v.Float64, 2), 'f', -1, 64), nil
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Series is a sequence of values on explicit ticks.
type Series struct {
	Name   string
	Ticks  []time.Time
	Values []Value
}

// Floats returns the values with gaps as nil pointers, rounded to two places.
func (s Series) Floats() []*float64 {
	out := make([]*float64, len(s.Values))
	for i, v := range s.Values {
		if v.Valid {
			f := Round(v.Float64, 2)
			out[i] = &f
		}
	}
	return out
}

// ValidCount is the number of non-gap ticks.
func (s Series) ValidCount() int {
	n := 0
	for _, v := range s.Values {
		if v.Valid {
			n++
		}
	}
	return n
}
