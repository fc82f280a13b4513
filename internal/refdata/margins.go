package refdata

import (
	"panelrep/internal/panel"
)

// Margin is an external reference total for one dimension-value
// combination and period. Margins are read-only inputs supplied by the
// reference fetch layer; the engine never re-derives them.
type Margin struct {
	Key        panel.CellKey
	Employment float64
	Units      float64 // establishment count; 0 when the series carries none
}

// Table indexes margins by cell key for joining against panel cells.
type Table map[panel.CellKey]Margin

// Add inserts a margin, overwriting any previous value for the same key.
func (t Table) Add(m Margin) {
	t[m.Key] = m
}

// Lookup returns the margin matching a panel cell key.
func (t Table) Lookup(key panel.CellKey) (Margin, bool) {
	m, ok := t[key]
	return m, ok
}

// ValuePeriod keys a raking target: one dimension value in one period.
type ValuePeriod struct {
	Value  string
	Period panel.Period
}

// Targets extracts per-(value, period) employment targets for one
// single-dimension level, in the shape the raking engine consumes.
func (t Table) Targets(level panel.Level, dim panel.Dimension) map[ValuePeriod]float64 {
	out := make(map[ValuePeriod]float64)
	for key, m := range t {
		if key.Level != level {
			continue
		}
		value := key.DimensionValue(dim)
		if value == "" {
			continue
		}
		out[ValuePeriod{Value: value, Period: key.Period}] += m.Employment
	}
	return out
}

// EmploymentSeries collapses the margins of one level and dimension value
// into a period series. For the national level pass the empty value.
func (t Table) EmploymentSeries(level panel.Level, dim panel.Dimension, value string) panel.Series {
	byPeriod := make(map[panel.Period]float64)
	for key, m := range t {
		if key.Level != level {
			continue
		}
		if dim != "" && key.DimensionValue(dim) != value {
			continue
		}
		byPeriod[key.Period] += m.Employment
	}
	return panel.NewSeries(byPeriod)
}
