// Package flows computes gross employment flows: hires, separations, and
// continuing employment per period, with rates expressed as shares of
// employment. When worker identifiers are available the flows are derived
// from month-over-month worker presence; otherwise they fall back to
// client entry and exit employment.
package flows

import (
	"sort"

	"panelrep/internal/panel"
)

// Row is one period's gross flows and derived rates.
type Row struct {
	Period               panel.Period
	Employment           int64
	Hires                int64
	Separations          int64
	ContinuingEmployment int64
	HireRate             float64
	SeparationRate       float64
	ChurnRate            float64
	NetGrowthRate        float64
}

// Compute derives gross flows from the panel. With the worker-ID
// capability, a hire is a worker present at a client this month but not
// last month and a separation the reverse. Without it, entrant employment
// proxies hires and exiter employment proxies separations.
func Compute(records []panel.Record, caps panel.Capabilities) []Row {
	if caps.HasWorkerIDs {
		return fromWorkers(records)
	}
	return fromClients(records)
}

func fromClients(records []panel.Record) []Row {
	byPeriod := make(map[panel.Period]*Row)
	for i := range records {
		r := &records[i]
		row := byPeriod[r.Period]
		if row == nil {
			row = &Row{Period: r.Period}
			byPeriod[r.Period] = row
		}
		row.Employment += r.Employment
		entering := r.EntryPeriod == r.Period
		exiting := r.ExitPeriod != nil && *r.ExitPeriod == r.Period
		if entering {
			row.Hires += r.Employment
		}
		if exiting {
			row.Separations += r.Employment
		}
		if !entering {
			row.ContinuingEmployment += r.Employment
		}
	}
	return finish(byPeriod)
}

func fromWorkers(records []panel.Record) []Row {
	type placement struct{ worker, client string }
	byPeriod := make(map[panel.Period]map[placement]bool)
	employment := make(map[panel.Period]int64)
	for i := range records {
		r := &records[i]
		employment[r.Period] += r.Employment
		set := byPeriod[r.Period]
		if set == nil {
			set = make(map[placement]bool)
			byPeriod[r.Period] = set
		}
		for _, w := range r.WorkerIDs {
			set[placement{worker: w, client: r.ClientID}] = true
		}
	}

	periods := sortedPeriods(byPeriod)
	rows := make(map[panel.Period]*Row, len(periods))
	for i, p := range periods {
		row := &Row{Period: p, Employment: employment[p]}
		cur := byPeriod[p]
		if i > 0 && periods[i-1].Add(1) == p {
			prev := byPeriod[periods[i-1]]
			for pl := range cur {
				if prev[pl] {
					row.ContinuingEmployment++
				} else {
					row.Hires++
				}
			}
			for pl := range prev {
				if !cur[pl] {
					row.Separations++
				}
			}
		}
		rows[p] = row
	}
	return finish(rows)
}

func finish(byPeriod map[panel.Period]*Row) []Row {
	out := make([]Row, 0, len(byPeriod))
	for _, row := range byPeriod {
		if row.Employment > 0 {
			emp := float64(row.Employment)
			row.HireRate = float64(row.Hires) / emp
			row.SeparationRate = float64(row.Separations) / emp
			row.ChurnRate = float64(row.Hires+row.Separations) / emp
			row.NetGrowthRate = float64(row.Hires-row.Separations) / emp
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}

func sortedPeriods[V any](m map[panel.Period]V) []panel.Period {
	out := make([]panel.Period, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
