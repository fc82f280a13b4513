// Package quality screens panel records for anomalies that would distort
// downstream analysis: extreme month-over-month employment swings, zero
// employment, workers attached to several clients at once, and filing
// gaps. Findings are advisory; nothing is dropped here.
package quality

import (
	"fmt"
	"sort"

	"panelrep/internal/panel"
)

// Issue identifies one anomaly on one client-period.
type Issue struct {
	ClientID string
	Period   panel.Period
	Kind     string
	Detail   string
}

// Issue kinds.
const (
	KindExtremeChange = "extreme_change"
	KindZeroEmp       = "zero_employment"
	KindSharedWorker  = "shared_worker"
	KindFilingGap     = "filing_gap"
)

// Thresholds controls what counts as anomalous.
type Thresholds struct {
	// MaxMoMChange is the absolute month-over-month employment change
	// ratio above which a record is flagged. Zero means the default.
	MaxMoMChange float64
}

// DefaultMaxMoMChange flags employment moves beyond +/-50% in one month.
const DefaultMaxMoMChange = 0.5

// PeriodSummary aggregates issue counts for one period.
type PeriodSummary struct {
	Period         panel.Period
	Records        int
	ExtremeChanges int
	ZeroEmployment int
	SharedWorkers  int
	FilingGaps     int
	IssueRate      float64
}

// Report is the outcome of a quality screen.
type Report struct {
	Issues    []Issue
	Summaries []PeriodSummary
}

// Screen runs all applicable checks. Worker-sharing checks run only when
// the panel carries worker identifiers.
func Screen(records []panel.Record, caps panel.Capabilities, th Thresholds) Report {
	if th.MaxMoMChange <= 0 {
		th.MaxMoMChange = DefaultMaxMoMChange
	}

	var issues []Issue
	issues = append(issues, extremeChanges(records, th.MaxMoMChange)...)
	issues = append(issues, zeroEmployment(records)...)
	if caps.HasWorkerIDs {
		issues = append(issues, sharedWorkers(records)...)
	}
	if caps.HasFiling {
		issues = append(issues, filingGaps(records)...)
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Period != issues[j].Period {
			return issues[i].Period.Before(issues[j].Period)
		}
		if issues[i].ClientID != issues[j].ClientID {
			return issues[i].ClientID < issues[j].ClientID
		}
		return issues[i].Kind < issues[j].Kind
	})

	return Report{Issues: issues, Summaries: summarize(records, issues)}
}

func extremeChanges(records []panel.Record, maxChange float64) []Issue {
	type obs struct {
		period panel.Period
		emp    int64
	}
	byClient := make(map[string][]obs)
	for i := range records {
		r := &records[i]
		byClient[r.ClientID] = append(byClient[r.ClientID], obs{period: r.Period, emp: r.Employment})
	}

	var out []Issue
	for id, series := range byClient {
		sort.Slice(series, func(i, j int) bool { return series[i].period.Before(series[j].period) })
		for i := 1; i < len(series); i++ {
			prev, cur := series[i-1], series[i]
			if cur.period.Sub(prev.period) != 1 || prev.emp <= 0 {
				continue
			}
			change := float64(cur.emp-prev.emp) / float64(prev.emp)
			if change > maxChange || change < -maxChange {
				out = append(out, Issue{
					ClientID: id,
					Period:   cur.period,
					Kind:     KindExtremeChange,
					Detail:   fmt.Sprintf("employment moved %+.1f%% (%d to %d)", change*100, prev.emp, cur.emp),
				})
			}
		}
	}
	return out
}

func zeroEmployment(records []panel.Record) []Issue {
	var out []Issue
	for i := range records {
		r := &records[i]
		if r.Employment <= 0 {
			out = append(out, Issue{
				ClientID: r.ClientID,
				Period:   r.Period,
				Kind:     KindZeroEmp,
				Detail:   fmt.Sprintf("reported employment %d", r.Employment),
			})
		}
	}
	return out
}

func sharedWorkers(records []panel.Record) []Issue {
	type wp struct {
		worker string
		period panel.Period
	}
	clientsOf := make(map[wp]map[string]bool)
	for i := range records {
		r := &records[i]
		for _, w := range r.WorkerIDs {
			k := wp{worker: w, period: r.Period}
			if clientsOf[k] == nil {
				clientsOf[k] = make(map[string]bool)
			}
			clientsOf[k][r.ClientID] = true
		}
	}

	var out []Issue
	for k, clients := range clientsOf {
		if len(clients) < 2 {
			continue
		}
		ids := make([]string, 0, len(clients))
		for id := range clients {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, Issue{
				ClientID: id,
				Period:   k.period,
				Kind:     KindSharedWorker,
				Detail:   fmt.Sprintf("worker %s appears at %d clients", k.worker, len(ids)),
			})
		}
	}
	return out
}

// filingGaps flags months a client skipped between its first and last
// filing. Entry and exit are legitimate; holes in the middle are not.
func filingGaps(records []panel.Record) []Issue {
	present := make(map[string]map[panel.Period]bool)
	for i := range records {
		r := &records[i]
		if present[r.ClientID] == nil {
			present[r.ClientID] = make(map[panel.Period]bool)
		}
		present[r.ClientID][r.Period] = true
	}

	var out []Issue
	for id, periods := range present {
		var first, last panel.Period
		set := false
		for p := range periods {
			if !set {
				first, last = p, p
				set = true
				continue
			}
			if p.Before(first) {
				first = p
			}
			if p.After(last) {
				last = p
			}
		}
		for p := first.Add(1); p.Before(last); p = p.Add(1) {
			if !periods[p] {
				out = append(out, Issue{
					ClientID: id,
					Period:   p,
					Kind:     KindFilingGap,
					Detail:   "no filing between first and last observed period",
				})
			}
		}
	}
	return out
}

func summarize(records []panel.Record, issues []Issue) []PeriodSummary {
	byPeriod := make(map[panel.Period]*PeriodSummary)
	for i := range records {
		p := records[i].Period
		s := byPeriod[p]
		if s == nil {
			s = &PeriodSummary{Period: p}
			byPeriod[p] = s
		}
		s.Records++
	}
	for _, is := range issues {
		s := byPeriod[is.Period]
		if s == nil {
			s = &PeriodSummary{Period: is.Period}
			byPeriod[is.Period] = s
		}
		switch is.Kind {
		case KindExtremeChange:
			s.ExtremeChanges++
		case KindZeroEmp:
			s.ZeroEmployment++
		case KindSharedWorker:
			s.SharedWorkers++
		case KindFilingGap:
			s.FilingGaps++
		}
	}

	out := make([]PeriodSummary, 0, len(byPeriod))
	for _, s := range byPeriod {
		if s.Records > 0 {
			total := s.ExtremeChanges + s.ZeroEmployment + s.SharedWorkers + s.FilingGaps
			s.IssueRate = float64(total) / float64(s.Records)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}
