// Package earnings summarizes the pay distribution of the panel. It is
// only meaningful when the provider supplies gross pay; callers gate on
// the pay capability before running it.
package earnings

import (
	"math"
	"sort"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
)

// Summary describes one period's distribution of average pay per worker
// across clients.
type Summary struct {
	Period   panel.Period
	Clients  int
	Mean     float64
	Median   float64
	P10      float64
	P25      float64
	P75      float64
	P90      float64
	StdDev   float64
	CV       float64
	TotalPay float64
}

// GrowthRow is year-over-year growth of mean pay per worker. Rate is nil
// when no comparable period twelve months earlier exists.
type GrowthRow struct {
	Period panel.Period
	Mean   float64
	YoY    *float64
}

// Summarize computes per-period pay distributions. Records without
// positive pay or employment are excluded from the distribution. Panels
// without the pay capability get an InsufficientDataError.
func Summarize(records []panel.Record, caps panel.Capabilities) ([]Summary, error) {
	if !caps.HasPay {
		return nil, &apperrors.InsufficientDataError{Op: "earnings summary", Need: 1, Got: 0}
	}

	perWorker := make(map[panel.Period][]float64)
	totals := make(map[panel.Period]float64)
	for i := range records {
		r := &records[i]
		if r.GrossPay <= 0 || r.Employment <= 0 {
			continue
		}
		perWorker[r.Period] = append(perWorker[r.Period], r.GrossPay/float64(r.Employment))
		totals[r.Period] += r.GrossPay
	}

	periods := make([]panel.Period, 0, len(perWorker))
	for p := range perWorker {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	out := make([]Summary, 0, len(periods))
	for _, p := range periods {
		vals := perWorker[p]
		sort.Float64s(vals)
		s := Summary{
			Period:   p,
			Clients:  len(vals),
			Mean:     mean(vals),
			Median:   quantile(vals, 0.50),
			P10:      quantile(vals, 0.10),
			P25:      quantile(vals, 0.25),
			P75:      quantile(vals, 0.75),
			P90:      quantile(vals, 0.90),
			TotalPay: totals[p],
		}
		s.StdDev = stddev(vals, s.Mean)
		if s.Mean != 0 {
			s.CV = s.StdDev / s.Mean
		}
		out = append(out, s)
	}
	return out, nil
}

// Growth derives year-over-year growth of mean pay per worker from the
// per-period summaries.
func Growth(summaries []Summary) []GrowthRow {
	byPeriod := make(map[panel.Period]float64, len(summaries))
	for _, s := range summaries {
		byPeriod[s.Period] = s.Mean
	}

	out := make([]GrowthRow, 0, len(summaries))
	for _, s := range summaries {
		row := GrowthRow{Period: s.Period, Mean: s.Mean}
		if prior, ok := byPeriod[s.Period.Add(-12)]; ok && prior != 0 {
			g := s.Mean/prior - 1
			row.YoY = &g
		}
		out = append(out, row)
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	ss := 0.0
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// quantile interpolates linearly between order statistics. vals must be
// sorted ascending.
func quantile(vals []float64, q float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return vals[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return vals[lo]
	}
	frac := pos - float64(lo)
	return vals[lo]*(1-frac) + vals[hi]*frac
}
