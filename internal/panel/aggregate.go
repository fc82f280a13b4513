package panel

import (
	"fmt"
	"sort"

	apperrors "panelrep/internal/errors"
)

// Aggregate collapses client-month records into one Cell per grouping spec,
// dimension-value combination, and period. The empty dimension list is the
// national total. It returns a SchemaError when a spec groups by a
// dimension no record carries.
func Aggregate(records []Record, specs []GroupingSpec) ([]Cell, error) {
	if err := checkDimensions(records, specs); err != nil {
		return nil, err
	}

	cells := make(map[CellKey]*Cell)
	for i := range records {
		r := &records[i]
		for _, spec := range specs {
			key := keyFor(r, spec, r.Period)
			cell, ok := cells[key]
			if !ok {
				cell = &Cell{Key: key}
				cells[key] = cell
			}
			accumulate(cell, r)
		}
	}

	out := make([]Cell, 0, len(cells))
	for _, cell := range cells {
		out = append(out, *cell)
	}
	sortCells(out)
	return out, nil
}

// accumulate folds one record into a cell.
func accumulate(cell *Cell, r *Record) {
	cell.Employment += r.Employment
	if r.Employment > 0 {
		cell.ActiveClients++
	}
	switch r.Formation {
	case FormationTrue:
		cell.Formations++
		cell.FormationDeterminable++
	case FormationFalse:
		cell.FormationDeterminable++
	}
	entering := r.EntryPeriod == r.Period
	exiting := r.ExitPeriod != nil && *r.ExitPeriod == r.Period
	if entering {
		cell.Entries++
	}
	if exiting {
		cell.Exits++
	}
	if !entering && !exiting {
		cell.ContinuingEmployment += r.Employment
	}
}

// checkDimensions verifies every dimension required by the specs is
// populated on at least one record.
func checkDimensions(records []Record, specs []GroupingSpec) error {
	if len(records) == 0 {
		return nil
	}
	required := make(map[Dimension]bool)
	for _, spec := range specs {
		for _, d := range spec.Dimensions {
			required[d] = true
		}
	}
	var missing []string
	for d := range required {
		populated := false
		for i := range records {
			if records[i].DimensionValue(d) != "" {
				populated = true
				break
			}
		}
		if !populated {
			missing = append(missing, string(d))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperrors.NewSchemaError("panel records", missing)
	}
	return nil
}

// DeriveEntryExit fills EntryPeriod and ExitPeriod on records that do not
// carry them, by comparing each client's active months: the entry month is
// the first active month, the exit month the last active month provided the
// panel extends beyond it (a client active through the final panel month is
// still active, not exited). Records are modified in place before the
// pipeline run begins; the panel is immutable afterwards.
func DeriveEntryExit(records []Record) {
	if len(records) == 0 {
		return
	}
	first := make(map[string]Period)
	last := make(map[string]Period)
	panelEnd := records[0].Period
	for i := range records {
		r := &records[i]
		if r.Period.After(panelEnd) {
			panelEnd = r.Period
		}
		if r.Employment <= 0 {
			continue
		}
		if f, ok := first[r.ClientID]; !ok || r.Period.Before(f) {
			first[r.ClientID] = r.Period
		}
		if l, ok := last[r.ClientID]; !ok || r.Period.After(l) {
			last[r.ClientID] = r.Period
		}
	}
	for i := range records {
		r := &records[i]
		if r.EntryPeriod.IsZero() {
			if f, ok := first[r.ClientID]; ok {
				r.EntryPeriod = f
			}
		}
		if r.ExitPeriod == nil {
			if l, ok := last[r.ClientID]; ok && l.Before(panelEnd) {
				exit := l
				r.ExitPeriod = &exit
			}
		}
	}
}

// WeightedCell is a cell total under a raked weight vector.
type WeightedCell struct {
	Key        CellKey
	Employment float64
}

// AggregateWeighted computes weighted employment per cell using one weight
// per record, aligned by index. It is the reweighted view consumed by
// downstream growth analysis after raking.
func AggregateWeighted(records []Record, specs []GroupingSpec, weights []float64) ([]WeightedCell, error) {
	if len(weights) != len(records) {
		return nil, fmt.Errorf("weight vector length %d does not match %d records", len(weights), len(records))
	}
	if err := checkDimensions(records, specs); err != nil {
		return nil, err
	}
	totals := make(map[CellKey]float64)
	for i := range records {
		r := &records[i]
		for _, spec := range specs {
			key := keyFor(r, spec, r.Period)
			totals[key] += weights[i] * float64(r.Employment)
		}
	}
	out := make([]WeightedCell, 0, len(totals))
	for key, emp := range totals {
		out = append(out, WeightedCell{Key: key, Employment: emp})
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].Key, out[j].Key) })
	return out, nil
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool { return lessKey(cells[i].Key, cells[j].Key) })
}

func lessKey(a, b CellKey) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if a.Supersector != b.Supersector {
		return a.Supersector < b.Supersector
	}
	if a.StateFIPS != b.StateFIPS {
		return a.StateFIPS < b.StateFIPS
	}
	if a.SizeClass != b.SizeClass {
		return a.SizeClass < b.SizeClass
	}
	return a.Period.Before(b.Period)
}
