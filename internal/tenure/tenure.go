// Package tenure analyzes client longevity in the panel: per-client
// tenure, monthly entry/exit churn, and vintage composition with a
// contamination flag for periods dominated by recently added clients.
package tenure

import (
	"sort"

	"panelrep/internal/panel"
)

// ClientTenure summarizes one client's observation span.
type ClientTenure struct {
	ClientID       string
	FirstObserved  panel.Period
	LastObserved   panel.Period
	TenureMonths   int
	MonthsObserved int
	InitialEmp     int64
	FinalEmp       int64
	AvgEmp         float64
	LikelyBirth    bool
}

// ComputeClientTenure computes per-client tenure metrics.
func ComputeClientTenure(records []panel.Record) []ClientTenure {
	type acc struct {
		first, last panel.Period
		months      int
		initial     int64
		final       int64
		sum         int64
		birth       bool
		set         bool
	}
	byClient := make(map[string]*acc)
	ordered := make([]panel.Record, len(records))
	copy(ordered, records)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ClientID != ordered[j].ClientID {
			return ordered[i].ClientID < ordered[j].ClientID
		}
		return ordered[i].Period.Before(ordered[j].Period)
	})

	for i := range ordered {
		r := &ordered[i]
		a := byClient[r.ClientID]
		if a == nil {
			a = &acc{}
			byClient[r.ClientID] = a
		}
		if !a.set {
			a.first = r.Period
			a.initial = r.Employment
			a.birth = r.Formation == panel.FormationTrue
			a.set = true
		}
		a.last = r.Period
		a.final = r.Employment
		a.months++
		a.sum += r.Employment
	}

	ids := make([]string, 0, len(byClient))
	for id := range byClient {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ClientTenure, 0, len(ids))
	for _, id := range ids {
		a := byClient[id]
		out = append(out, ClientTenure{
			ClientID:       id,
			FirstObserved:  a.first,
			LastObserved:   a.last,
			TenureMonths:   a.last.Sub(a.first),
			MonthsObserved: a.months,
			InitialEmp:     a.initial,
			FinalEmp:       a.final,
			AvgEmp:         float64(a.sum) / float64(a.months),
			LikelyBirth:    a.birth,
		})
	}
	return out
}

// GroupSummary aggregates client tenure within one supersector.
type GroupSummary struct {
	Supersector  string
	Clients      int
	MeanTenure   float64 // months between first and last observation
	MedianTenure float64
	StableShare  float64 // clients at or above the stable-tenure cutoff
	BirthShare   float64 // clients flagged as formations at first sight
}

// SummarizeByGroup rolls per-client tenure up to supersectors. A client
// counts toward the supersector of its latest record; minTenureMonths is
// the stable-panel cutoff used for StableShare.
func SummarizeByGroup(records []panel.Record, minTenureMonths int) []GroupSummary {
	tenures := ComputeClientTenure(records)

	sector := make(map[string]string)
	latest := make(map[string]panel.Period)
	for i := range records {
		r := &records[i]
		if p, ok := latest[r.ClientID]; !ok || p.Before(r.Period) {
			latest[r.ClientID] = r.Period
			sector[r.ClientID] = r.Supersector
		}
	}

	byGroup := make(map[string][]ClientTenure)
	for _, ct := range tenures {
		g := sector[ct.ClientID]
		byGroup[g] = append(byGroup[g], ct)
	}

	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		members := byGroup[g]
		months := make([]int, len(members))
		sum, stable, births := 0, 0, 0
		for i, m := range members {
			months[i] = m.TenureMonths
			sum += m.TenureMonths
			if m.TenureMonths >= minTenureMonths {
				stable++
			}
			if m.LikelyBirth {
				births++
			}
		}
		sort.Ints(months)
		n := float64(len(members))
		out = append(out, GroupSummary{
			Supersector:  g,
			Clients:      len(members),
			MeanTenure:   float64(sum) / n,
			MedianTenure: medianInts(months),
			StableShare:  float64(stable) / n,
			BirthShare:   float64(births) / n,
		})
	}
	return out
}

// medianInts returns the median of a sorted int slice.
func medianInts(sorted []int) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

// ChurnRow is one period's client entry/exit activity.
type ChurnRow struct {
	Period          panel.Period
	ActiveClients   int
	Entries         int
	Exits           int
	EntryRate       float64
	ExitRate        float64
	ChurnRate       float64
	NetClientChange int
}

// ComputeChurn derives monthly client entry and exit rates.
func ComputeChurn(records []panel.Record) []ChurnRow {
	byPeriod := make(map[panel.Period]*ChurnRow)
	seen := make(map[panel.Period]map[string]bool)
	for i := range records {
		r := &records[i]
		row := byPeriod[r.Period]
		if row == nil {
			row = &ChurnRow{Period: r.Period}
			byPeriod[r.Period] = row
			seen[r.Period] = make(map[string]bool)
		}
		if !seen[r.Period][r.ClientID] {
			seen[r.Period][r.ClientID] = true
			row.ActiveClients++
		}
		if r.EntryPeriod == r.Period {
			row.Entries++
		}
		if r.ExitPeriod != nil && *r.ExitPeriod == r.Period {
			row.Exits++
		}
	}

	out := make([]ChurnRow, 0, len(byPeriod))
	for _, row := range byPeriod {
		if row.ActiveClients > 0 {
			n := float64(row.ActiveClients)
			row.EntryRate = float64(row.Entries) / n
			row.ExitRate = float64(row.Exits) / n
			row.ChurnRate = float64(row.Entries+row.Exits) / n
		}
		row.NetClientChange = row.Entries - row.Exits
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}

// VintageRow is the employment share of one client vintage (year of first
// appearance) in one period. Contaminated marks periods where the most
// recent vintage holds more of the panel than the configured share,
// a sign that provider onboarding, not the economy, is moving the totals.
type VintageRow struct {
	Period          panel.Period
	VintageYear     int
	Employment      int64
	ClientCount     int
	EmploymentShare float64
	Contaminated    bool
}

// ComputeVintageShares stratifies employment by client vintage and flags
// contamination when the newest vintage's share exceeds maxRecentShare.
func ComputeVintageShares(records []panel.Record, maxRecentShare float64) []VintageRow {
	firstSeen := make(map[string]panel.Period)
	for i := range records {
		r := &records[i]
		if f, ok := firstSeen[r.ClientID]; !ok || r.Period.Before(f) {
			firstSeen[r.ClientID] = r.Period
		}
	}

	type key struct {
		period  panel.Period
		vintage int
	}
	emp := make(map[key]int64)
	clients := make(map[key]map[string]bool)
	totals := make(map[panel.Period]int64)
	for i := range records {
		r := &records[i]
		k := key{period: r.Period, vintage: firstSeen[r.ClientID].Year}
		emp[k] += r.Employment
		if clients[k] == nil {
			clients[k] = make(map[string]bool)
		}
		clients[k][r.ClientID] = true
		totals[r.Period] += r.Employment
	}

	latestVintage := make(map[panel.Period]int)
	for k := range emp {
		if k.vintage > latestVintage[k.period] {
			latestVintage[k.period] = k.vintage
		}
	}

	out := make([]VintageRow, 0, len(emp))
	for k, e := range emp {
		row := VintageRow{
			Period:      k.period,
			VintageYear: k.vintage,
			Employment:  e,
			ClientCount: len(clients[k]),
		}
		if totals[k.period] > 0 {
			row.EmploymentShare = float64(e) / float64(totals[k.period])
		}
		row.Contaminated = k.vintage == latestVintage[k.period] && row.EmploymentShare > maxRecentShare
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].VintageYear < out[j].VintageYear
	})
	return out
}
