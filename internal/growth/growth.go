// Package growth computes growth rates for panel and reference series,
// decomposes their divergence into composition and within-cell effects,
// splits raw employment change into continuing, entering, and exiting
// contributions, and matches turning points between series.
package growth

import (
	"gonum.org/v1/gonum/stat"

	"panelrep/internal/panel"
)

// Series carries month-over-month and year-over-year growth for one
// underlying level series. A nil rate means insufficient history or a zero
// denominator; callers must never coerce nil to zero.
type Series struct {
	Periods []panel.Period
	Level   []float64
	MoM     []*float64
	YoY     []*float64
}

// Rates computes MoM and YoY growth from a level series. A rate is nil
// when the required lag is missing, non-adjacent, or zero.
func Rates(s panel.Series) Series {
	out := Series{
		Periods: s.Periods,
		Level:   s.Values,
		MoM:     make([]*float64, s.Len()),
		YoY:     make([]*float64, s.Len()),
	}
	for i, p := range s.Periods {
		out.MoM[i] = lagGrowth(s, p, s.Values[i], 1)
		out.YoY[i] = lagGrowth(s, p, s.Values[i], 12)
	}
	return out
}

func lagGrowth(s panel.Series, p panel.Period, current float64, lag int) *float64 {
	base, ok := s.At(p.Add(-lag))
	if !ok || base == 0 {
		return nil
	}
	g := (current - base) / base
	return &g
}

// ComparisonRow is one period of a merged panel/reference growth series.
type ComparisonRow struct {
	Period        panel.Period
	PanelYoY      *float64
	ReferenceYoY  *float64
	Difference    *float64
	RollingCorr12 *float64
}

// Compare merges panel and reference growth on period, computes the YoY
// difference, and a trailing 12-period correlation between the two YoY
// series. Rows exist only for periods present in both inputs.
func Compare(panelGrowth, refGrowth Series) []ComparisonRow {
	refYoY := make(map[panel.Period]*float64, len(refGrowth.Periods))
	for i, p := range refGrowth.Periods {
		refYoY[p] = refGrowth.YoY[i]
	}

	var out []ComparisonRow
	var pairsP, pairsR []float64
	for i, p := range panelGrowth.Periods {
		ry, ok := refYoY[p]
		if !ok {
			continue
		}
		row := ComparisonRow{Period: p, PanelYoY: panelGrowth.YoY[i], ReferenceYoY: ry}
		if row.PanelYoY != nil && row.ReferenceYoY != nil {
			d := *row.PanelYoY - *row.ReferenceYoY
			row.Difference = &d
			pairsP = append(pairsP, *row.PanelYoY)
			pairsR = append(pairsR, *row.ReferenceYoY)
			if len(pairsP) >= 12 {
				n := len(pairsP)
				r := stat.Correlation(pairsP[n-12:], pairsR[n-12:], nil)
				row.RollingCorr12 = &r
			}
		}
		out = append(out, row)
	}
	return out
}
