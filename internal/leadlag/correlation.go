// Package leadlag relates a panel-derived event rate to a reference event
// rate: cross-correlation across lags, a family of lead regressions, and
// survival curves for entry cohorts.
package leadlag

import (
	"gonum.org/v1/gonum/stat"

	"panelrep/internal/panel"
)

// LagCorrelation is the Pearson correlation between the reference series
// and the panel series shifted back by Lag periods, over the overlapping
// aligned window for that lag.
type LagCorrelation struct {
	Lag int
	R   float64
	N   int
}

// minCorrObs is the smallest overlap for which a correlation is reported.
const minCorrObs = 3

// CrossCorrelation computes per-lag correlations for lags 0..maxLag. Lags
// whose aligned window is too short are omitted.
func CrossCorrelation(panelRate, refRate panel.Series, maxLag int) []LagCorrelation {
	var out []LagCorrelation
	for lag := 0; lag <= maxLag; lag++ {
		_, rv, pv := panel.Align(refRate, shift(panelRate, lag))
		if len(pv) < minCorrObs {
			continue
		}
		out = append(out, LagCorrelation{
			Lag: lag,
			R:   stat.Correlation(pv, rv, nil),
			N:   len(pv),
		})
	}
	return out
}

// shift moves every observation forward by lag periods, so aligning the
// result against the reference pairs ref(t) with panel(t-lag).
func shift(s panel.Series, lag int) panel.Series {
	if lag == 0 {
		return s
	}
	shifted := panel.Series{Periods: make([]panel.Period, s.Len()), Values: s.Values}
	for i, p := range s.Periods {
		shifted.Periods[i] = p.Add(lag)
	}
	return shifted
}

// FormationRate derives the panel formation-rate series from aggregated
// cells at one grouping level: formations over the determinable count.
// Periods without determinable observations are omitted, never reported
// as zero.
func FormationRate(cells []panel.Cell, level panel.Level) panel.Series {
	byPeriod := make(map[panel.Period][2]int)
	for _, c := range cells {
		if c.Key.Level != level {
			continue
		}
		agg := byPeriod[c.Key.Period]
		agg[0] += c.Formations
		agg[1] += c.FormationDeterminable
		byPeriod[c.Key.Period] = agg
	}
	rates := make(map[panel.Period]float64)
	for p, agg := range byPeriod {
		if agg[1] > 0 {
			rates[p] = float64(agg[0]) / float64(agg[1])
		}
	}
	return panel.NewSeries(rates)
}
