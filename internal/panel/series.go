package panel

import "sort"

// Series is an ordered sequence of (period, value) observations for one
// grouping cell of one source (panel or reference). Periods are strictly
// increasing; the series is immutable once built.
type Series struct {
	Periods []Period
	Values  []float64
}

// NewSeries builds a Series from a period-value map, sorted by period.
func NewSeries(values map[Period]float64) Series {
	periods := make([]Period, 0, len(values))
	for p := range values {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	out := Series{Periods: periods, Values: make([]float64, len(periods))}
	for i, p := range periods {
		out.Values[i] = values[p]
	}
	return out
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.Periods)
}

// At returns the value at the given period.
func (s Series) At(p Period) (float64, bool) {
	i := sort.Search(len(s.Periods), func(i int) bool { return !s.Periods[i].Before(p) })
	if i < len(s.Periods) && s.Periods[i] == p {
		return s.Values[i], true
	}
	return 0, false
}

// Align returns the values of s and other on their overlapping periods, in
// period order. Periods present in only one series are dropped.
func Align(a, b Series) (periods []Period, av, bv []float64) {
	for i, p := range a.Periods {
		if v, ok := b.At(p); ok {
			periods = append(periods, p)
			av = append(av, a.Values[i])
			bv = append(bv, v)
		}
	}
	return periods, av, bv
}
