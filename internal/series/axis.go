package series

import "time"

// Axis is the shared tick sequence every series of a request is aligned to.
type Axis struct {
	Granularity Granularity
	Ticks       []time.Time
	index       map[int64]int
}

// NewAxis lays out ticks from the bucket containing start through end
// inclusive. An end before start gives an empty axis.
func NewAxis(start, end time.Time, g Granularity) *Axis {
	a := &Axis{Granularity: g, index: map[int64]int{}}
	for t := g.Truncate(start); !t.After(end); t = g.Next(t) {
		a.index[t.Unix()] = len(a.Ticks)
		a.Ticks = append(a.Ticks, t)
	}
	return a
}

func (a *Axis) Len() int {
	return len(a.Ticks)
}

// Index returns the position of the bucket holding t.
func (a *Axis) Index(t time.Time) (int, bool) {
	i, ok := a.index[a.Granularity.Truncate(t).Unix()]
	return i, ok
}

func (a *Axis) Labels() []string {
	layout := a.Granularity.LabelLayout()
	labels := make([]string, len(a.Ticks))
	for i, t := range a.Ticks {
		labels[i] = t.Format(layout)
	}
	return labels
}

// Empty returns a series of gaps on this axis.
func (a *Axis) Empty(name string) Series {
	return Series{Name: name, Ticks: a.Ticks, Values: make([]Value, len(a.Ticks))}
}

// Align reindexes s onto the axis by tick time. Axis ticks s has no value for
// become gaps and values at times not on the axis are dropped.
func (a *Axis) Align(s Series) Series {
	out := a.Empty(s.Name)
	for i, t := range s.Ticks {
		if i >= len(s.Values) {
			break
		}
		if j, ok := a.index[t.Unix()]; ok {
			out.Values[j] = s.Values[i]
		}
	}
	return out
}
