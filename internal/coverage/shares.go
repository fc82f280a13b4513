package coverage

import (
	"sort"

	"panelrep/internal/panel"
	"panelrep/internal/refdata"
)

// ShareDeviation is one category's panel share versus reference share
// within a dimension for one period.
type ShareDeviation struct {
	Period         panel.Period
	Dimension      panel.Dimension
	Value          string
	PanelShare     float64
	ReferenceShare float64
	AbsDeviation   float64
}

// ShareComparison compares the panel's distribution across the values of
// one dimension to the reference distribution, period by period. The
// misallocation index Σ|dev|/2 lies in [0, 1] because each share vector
// sums to one; it is zero iff the distributions are identical.
type ShareComparison struct {
	Period             panel.Period
	Dimension          panel.Dimension
	Deviations         []ShareDeviation
	MisallocationIndex float64
}

// CompareShares computes per-category share deviations and the
// misallocation index for every period present in both sources. cells
// must be the single-dimension level for dim; margins are filtered to the
// same level.
func CompareShares(cells []panel.Cell, margins refdata.Table, level panel.Level, dim panel.Dimension) []ShareComparison {
	panelTotals := make(map[panel.Period]float64)
	panelByValue := make(map[panel.Period]map[string]float64)
	for _, c := range cells {
		if c.Key.Level != level {
			continue
		}
		v := c.Key.DimensionValue(dim)
		p := c.Key.Period
		panelTotals[p] += float64(c.Employment)
		if panelByValue[p] == nil {
			panelByValue[p] = make(map[string]float64)
		}
		panelByValue[p][v] += float64(c.Employment)
	}

	refTotals := make(map[panel.Period]float64)
	refByValue := make(map[panel.Period]map[string]float64)
	for key, m := range margins {
		if key.Level != level {
			continue
		}
		v := key.DimensionValue(dim)
		p := key.Period
		refTotals[p] += m.Employment
		if refByValue[p] == nil {
			refByValue[p] = make(map[string]float64)
		}
		refByValue[p][v] += m.Employment
	}

	var out []ShareComparison
	for p, panelTotal := range panelTotals {
		refTotal, ok := refTotals[p]
		if !ok || panelTotal <= 0 || refTotal <= 0 {
			continue
		}
		values := unionKeys(panelByValue[p], refByValue[p])
		cmp := ShareComparison{Period: p, Dimension: dim}
		for _, v := range values {
			dev := ShareDeviation{
				Period:         p,
				Dimension:      dim,
				Value:          v,
				PanelShare:     panelByValue[p][v] / panelTotal,
				ReferenceShare: refByValue[p][v] / refTotal,
			}
			dev.AbsDeviation = abs(dev.PanelShare - dev.ReferenceShare)
			cmp.Deviations = append(cmp.Deviations, dev)
			cmp.MisallocationIndex += dev.AbsDeviation / 2
		}
		out = append(out, cmp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}

// ShiftIndex is the Composition Shift Index for one period: half the L1
// distance between the panel's share vector at t and at t-1, measuring the
// panel's own compositional drift over time.
type ShiftIndex struct {
	Period panel.Period
	CSI    float64
}

// CompositionShift computes the shift index across consecutive periods of
// the panel itself for one dimension level. Periods without a predecessor
// are omitted.
func CompositionShift(cells []panel.Cell, level panel.Level, dim panel.Dimension) []ShiftIndex {
	totals := make(map[panel.Period]float64)
	byValue := make(map[panel.Period]map[string]float64)
	for _, c := range cells {
		if c.Key.Level != level {
			continue
		}
		p := c.Key.Period
		totals[p] += float64(c.Employment)
		if byValue[p] == nil {
			byValue[p] = make(map[string]float64)
		}
		byValue[p][c.Key.DimensionValue(dim)] += float64(c.Employment)
	}

	periods := make([]panel.Period, 0, len(totals))
	for p := range totals {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	var out []ShiftIndex
	for i := 1; i < len(periods); i++ {
		cur, prev := periods[i], periods[i-1]
		if prev.Add(1) != cur || totals[cur] <= 0 || totals[prev] <= 0 {
			continue
		}
		var csi float64
		for _, v := range unionKeys(byValue[cur], byValue[prev]) {
			csi += abs(byValue[cur][v]/totals[cur]-byValue[prev][v]/totals[prev]) / 2
		}
		out = append(out, ShiftIndex{Period: cur, CSI: csi})
	}
	return out
}

func unionKeys(a, b map[string]float64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
