package leadlag

import (
	"sort"

	"panelrep/internal/panel"
)

// SurvivalPoint is one checkpoint of a cohort's survival curve.
type SurvivalPoint struct {
	Elapsed  int // periods since cohort entry
	Active   int
	Fraction float64
}

// SurvivalCurve tracks what fraction of an entry cohort is still active at
// each checkpoint. Fractions are non-increasing in elapsed periods by
// construction: a client counts as surviving checkpoint c when it has not
// exited before entry+c.
type SurvivalCurve struct {
	Cohort panel.Period // entry period
	Size   int
	Points []SurvivalPoint
}

// DefaultCheckpoints are the elapsed-period checkpoints evaluated per
// cohort.
var DefaultCheckpoints = []int{4, 8, 12, 16, 20}

// SurvivalCurves builds one curve per formation cohort. Cohort members are
// clients flagged as formations, grouped by entry period. A checkpoint is
// evaluated only when the panel extends far enough for the cohort to be
// observed there; short-history checkpoints are omitted, never counted as
// failures.
func SurvivalCurves(records []panel.Record, checkpoints []int) []SurvivalCurve {
	if len(checkpoints) == 0 {
		checkpoints = DefaultCheckpoints
	}

	type member struct {
		entry panel.Period
		exit  *panel.Period
	}
	members := make(map[string]member)
	var panelEnd panel.Period
	for i := range records {
		r := &records[i]
		if r.Period.After(panelEnd) {
			panelEnd = r.Period
		}
		if r.Formation != panel.FormationTrue || r.EntryPeriod.IsZero() {
			continue
		}
		members[r.ClientID] = member{entry: r.EntryPeriod, exit: r.ExitPeriod}
	}

	cohorts := make(map[panel.Period][]member)
	for _, m := range members {
		cohorts[m.entry] = append(cohorts[m.entry], m)
	}

	entries := make([]panel.Period, 0, len(cohorts))
	for e := range cohorts {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })

	var out []SurvivalCurve
	for _, entry := range entries {
		cohort := cohorts[entry]
		curve := SurvivalCurve{Cohort: entry, Size: len(cohort)}
		for _, c := range checkpoints {
			if entry.Add(c).After(panelEnd) {
				continue // not enough elapsed history to evaluate
			}
			active := 0
			for _, m := range cohort {
				if m.exit == nil || m.exit.Sub(entry) >= c {
					active++
				}
			}
			curve.Points = append(curve.Points, SurvivalPoint{
				Elapsed:  c,
				Active:   active,
				Fraction: float64(active) / float64(len(cohort)),
			})
		}
		out = append(out, curve)
	}
	return out
}
