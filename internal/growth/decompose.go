package growth

import (
	"sort"

	"panelrep/internal/panel"
)

// DivergenceRow is the shift-share decomposition of the panel/reference
// growth gap for one period. Cells enter the decomposition only when both
// series have a positive base in the prior period, so that cell growth is
// defined on both sides; totals are computed over the included cells.
// Invariant: CompositionEffect + WithinCellEffect equals
// PanelGrowth - ReferenceGrowth to floating-point tolerance.
type DivergenceRow struct {
	Period            panel.Period
	PanelGrowth       float64
	ReferenceGrowth   float64
	TotalDivergence   float64
	CompositionEffect float64
	WithinCellEffect  float64
	Cells             int
}

// DecomposeDivergence runs a true shift-share decomposition across the
// cells of one dimension. panelCells and refCells map each dimension value
// to its level series. For period t, each series' cell weight is its share
// of that series' total at t-1:
//
//	composition = Σ (w_p - w_o) · g_o
//	within      = Σ w_p · (g_p - g_o)
func DecomposeDivergence(panelCells, refCells map[string]panel.Series) []DivergenceRow {
	periods := commonPeriods(panelCells, refCells)

	var out []DivergenceRow
	for _, t := range periods {
		prev := t.Add(-1)

		type cellObs struct {
			pBase, pCur, oBase, oCur float64
		}
		var obs []cellObs
		for value, ps := range panelCells {
			os, ok := refCells[value]
			if !ok {
				continue
			}
			pBase, ok1 := ps.At(prev)
			pCur, ok2 := ps.At(t)
			oBase, ok3 := os.At(prev)
			oCur, ok4 := os.At(t)
			if !ok1 || !ok2 || !ok3 || !ok4 || pBase <= 0 || oBase <= 0 {
				continue
			}
			obs = append(obs, cellObs{pBase, pCur, oBase, oCur})
		}
		if len(obs) == 0 {
			continue
		}

		var pTotalBase, pTotalCur, oTotalBase, oTotalCur float64
		for _, o := range obs {
			pTotalBase += o.pBase
			pTotalCur += o.pCur
			oTotalBase += o.oBase
			oTotalCur += o.oCur
		}

		row := DivergenceRow{
			Period:          t,
			PanelGrowth:     (pTotalCur - pTotalBase) / pTotalBase,
			ReferenceGrowth: (oTotalCur - oTotalBase) / oTotalBase,
			Cells:           len(obs),
		}
		row.TotalDivergence = row.PanelGrowth - row.ReferenceGrowth

		for _, o := range obs {
			wp := o.pBase / pTotalBase
			wo := o.oBase / oTotalBase
			gp := (o.pCur - o.pBase) / o.pBase
			go_ := (o.oCur - o.oBase) / o.oBase
			row.CompositionEffect += (wp - wo) * go_
			row.WithinCellEffect += wp * (gp - go_)
		}
		out = append(out, row)
	}
	return out
}

func commonPeriods(panelCells, refCells map[string]panel.Series) []panel.Period {
	seen := make(map[panel.Period]bool)
	for _, s := range panelCells {
		for _, p := range s.Periods {
			seen[p] = true
		}
	}
	periods := make([]panel.Period, 0, len(seen))
	for p := range seen {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	return periods
}

// ChangeRow splits one period's employment change into the change at
// continuing clients, the employment of entrants, and the (negative)
// employment lost from exiters. The three parts sum exactly to the total.
type ChangeRow struct {
	Period             panel.Period
	TotalChange        int64
	ContinuingChange   int64
	EntryContribution  int64
	ExitContribution   int64
	ContinuingClients  int
	EnteringClients    int
	ExitingClients     int
}

// DecomposeEmploymentChange computes the flow decomposition across
// consecutive panel months. A client is active in a month when its
// employment is positive; entrants are active at t but not t-1, exiters
// the reverse.
func DecomposeEmploymentChange(records []panel.Record) []ChangeRow {
	byPeriod := make(map[panel.Period]map[string]int64)
	for i := range records {
		r := &records[i]
		if r.Employment <= 0 {
			continue
		}
		if byPeriod[r.Period] == nil {
			byPeriod[r.Period] = make(map[string]int64)
		}
		byPeriod[r.Period][r.ClientID] += r.Employment
	}

	periods := make([]panel.Period, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	var out []ChangeRow
	for i := 1; i < len(periods); i++ {
		t, prev := periods[i], periods[i-1]
		if prev.Add(1) != t {
			continue
		}
		cur, before := byPeriod[t], byPeriod[prev]
		row := ChangeRow{Period: t}
		for id, emp := range cur {
			if prevEmp, ok := before[id]; ok {
				row.ContinuingChange += emp - prevEmp
				row.ContinuingClients++
			} else {
				row.EntryContribution += emp
				row.EnteringClients++
			}
		}
		for id, prevEmp := range before {
			if _, ok := cur[id]; !ok {
				row.ExitContribution -= prevEmp
				row.ExitingClients++
			}
		}
		row.TotalChange = row.ContinuingChange + row.EntryContribution + row.ExitContribution
		out = append(out, row)
	}
	return out
}
