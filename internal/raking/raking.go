// Package raking adjusts per-record panel weights by iterative
// proportional fitting so that weighted panel margins reproduce reference
// margins along one or more dimensions simultaneously.
package raking

import (
	"fmt"
	"log/slog"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
	"panelrep/internal/refdata"
)

// Options bound the fitting loop. Zero values fall back to defaults.
type Options struct {
	MaxIter   int     // full cycles across all dimensions, default 100
	Tolerance float64 // max abs relative margin deviation, default 1e-6

	// Renormalize rescales weights after each cycle so total weighted
	// employment per period stays at its unweighted baseline, instead of
	// drifting toward the last-applied margin. Off by default; the cyclic
	// correction handles drift on its own.
	Renormalize bool
}

const (
	defaultMaxIter   = 100
	defaultTolerance = 1e-6
)

// Result is a frozen weight vector with convergence diagnostics. When
// Converged is false the weights are the best vector found; callers must
// surface the condition, never present it as converged.
type Result struct {
	Weights      []float64 // one strictly positive weight per record, aligned by index
	Converged    bool
	Iterations   int
	MaxDeviation float64
}

// Targets are reference employment totals per dimension, keyed by
// (dimension value, period).
type Targets map[panel.Dimension]map[refdata.ValuePeriod]float64

// group is the set of record indexes sharing one (dimension value, period).
type group struct {
	dim     panel.Dimension
	key     refdata.ValuePeriod
	target  float64
	members []int
}

// Rake fits one weight per record so that weighted employment margins
// match the targets on every dimension. Dimensions are corrected
// cyclically within each iteration, not solved independently: each
// dimension's pass works from the weights the previous dimension left
// behind. Records with zero employment contribute nothing to any margin
// and are left unadjusted.
func Rake(records []panel.Record, dims []panel.Dimension, targets Targets, opts Options, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(dims) == 0 {
		return Result{}, fmt.Errorf("rake: no dimensions given")
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = defaultMaxIter
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultTolerance
	}

	groups := buildGroups(records, dims, targets)

	weights := make([]float64, len(records))
	for i := range weights {
		weights[i] = 1.0
	}
	if len(groups) == 0 {
		return Result{Weights: weights, Converged: true}, nil
	}

	baseline := periodTotals(records, weights)

	best := make([]float64, len(weights))
	bestDev := deviation(records, weights, groups)
	copy(best, weights)

	for iter := 1; iter <= opts.MaxIter; iter++ {
		for _, g := range groups {
			current := 0.0
			for _, i := range g.members {
				current += weights[i] * float64(records[i].Employment)
			}
			if current <= 0 {
				continue // nothing to rescale toward this margin
			}
			factor := g.target / current
			for _, i := range g.members {
				if records[i].Employment > 0 {
					weights[i] *= factor
				}
			}
		}

		if opts.Renormalize {
			renormalize(records, weights, baseline)
		}

		dev := deviation(records, weights, groups)
		if dev < bestDev {
			bestDev = dev
			copy(best, weights)
		}
		if dev < opts.Tolerance {
			logger.Debug("raking converged",
				slog.Int("iterations", iter),
				slog.Float64("max_deviation", dev),
			)
			return Result{Weights: weights, Converged: true, Iterations: iter, MaxDeviation: dev}, nil
		}
	}

	logger.Warn("raking did not converge",
		slog.Int("max_iter", opts.MaxIter),
		slog.Float64("best_deviation", bestDev),
		slog.Float64("tolerance", opts.Tolerance),
	)
	return Result{
		Weights:      best,
		Converged:    false,
		Iterations:   opts.MaxIter,
		MaxDeviation: bestDev,
	}, apperrors.ErrNotConverged
}

// buildGroups indexes records by (dimension value, period) for every raked
// dimension, keeping only groups that have a positive target margin.
// Dimension-values without a target are left unadjusted.
func buildGroups(records []panel.Record, dims []panel.Dimension, targets Targets) []group {
	var out []group
	for _, d := range dims {
		dimTargets := targets[d]
		if len(dimTargets) == 0 {
			continue
		}
		members := make(map[refdata.ValuePeriod][]int)
		for i := range records {
			v := records[i].DimensionValue(d)
			if v == "" {
				continue
			}
			key := refdata.ValuePeriod{Value: v, Period: records[i].Period}
			members[key] = append(members[key], i)
		}
		for key, target := range dimTargets {
			if target <= 0 {
				continue
			}
			if idx, ok := members[key]; ok {
				out = append(out, group{dim: d, key: key, target: target, members: idx})
			}
		}
	}
	return out
}

// deviation returns the maximum absolute relative gap between any weighted
// margin and its target.
func deviation(records []panel.Record, weights []float64, groups []group) float64 {
	max := 0.0
	for _, g := range groups {
		current := 0.0
		for _, i := range g.members {
			current += weights[i] * float64(records[i].Employment)
		}
		if current <= 0 {
			continue
		}
		d := (current - g.target) / g.target
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}

// periodTotals computes weighted employment per period.
func periodTotals(records []panel.Record, weights []float64) map[panel.Period]float64 {
	out := make(map[panel.Period]float64)
	for i := range records {
		out[records[i].Period] += weights[i] * float64(records[i].Employment)
	}
	return out
}

// renormalize rescales each period's weights so total weighted employment
// returns to the baseline total for that period.
func renormalize(records []panel.Record, weights []float64, baseline map[panel.Period]float64) {
	current := periodTotals(records, weights)
	for i := range records {
		p := records[i].Period
		if current[p] > 0 && baseline[p] > 0 {
			weights[i] *= baseline[p] / current[p]
		}
	}
}
