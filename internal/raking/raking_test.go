package raking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
	"panelrep/internal/refdata"
)

func rec(client, supersector, state string, p panel.Period, emp int64) panel.Record {
	return panel.Record{
		ClientID:    client,
		Period:      p,
		Supersector: supersector,
		StateFIPS:   state,
		SizeClass:   panel.SizeClass(emp),
		Employment:  emp,
		EntryPeriod: p,
	}
}

func vp(value string, p panel.Period) refdata.ValuePeriod {
	return refdata.ValuePeriod{Value: value, Period: p}
}

func TestRakeSingleDimension(t *testing.T) {
	// Two records with employment [30, 70] raked to targets [80, 120]:
	// expected weights approximately [2.667, 1.714].
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		rec("a", "Manufacturing", "01", jan, 30),
		rec("b", "Retail trade", "01", jan, 70),
	}
	targets := Targets{
		panel.DimSupersector: {
			vp("Manufacturing", jan): 80,
			vp("Retail trade", jan):  120,
		},
	}

	res, err := Rake(records, []panel.Dimension{panel.DimSupersector}, targets, Options{}, nil)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 80.0/30.0, res.Weights[0], 1e-9)
	assert.InDelta(t, 120.0/70.0, res.Weights[1], 1e-9)

	// Weighted margins reproduce the targets within tolerance.
	assert.InDelta(t, 80.0, res.Weights[0]*30, 1e-6)
	assert.InDelta(t, 120.0, res.Weights[1]*70, 1e-6)
}

func TestRakeTwoDimensionsConverges(t *testing.T) {
	// 2x2 design: supersector x state, consistent margins.
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		rec("a", "Manufacturing", "01", jan, 10),
		rec("b", "Manufacturing", "02", jan, 20),
		rec("c", "Retail trade", "01", jan, 30),
		rec("d", "Retail trade", "02", jan, 40),
	}
	// Row targets sum to 300, column targets sum to 300.
	targets := Targets{
		panel.DimSupersector: {
			vp("Manufacturing", jan): 100,
			vp("Retail trade", jan):  200,
		},
		panel.DimState: {
			vp("01", jan): 120,
			vp("02", jan): 180,
		},
	}

	res, err := Rake(records, []panel.Dimension{panel.DimSupersector, panel.DimState}, targets, Options{MaxIter: 200, Tolerance: 1e-9}, nil)
	require.NoError(t, err)
	require.True(t, res.Converged)

	margin := func(dim panel.Dimension, value string) float64 {
		total := 0.0
		for i, r := range records {
			if r.DimensionValue(dim) == value {
				total += res.Weights[i] * float64(r.Employment)
			}
		}
		return total
	}
	assert.InDelta(t, 100, margin(panel.DimSupersector, "Manufacturing"), 1e-6)
	assert.InDelta(t, 200, margin(panel.DimSupersector, "Retail trade"), 1e-6)
	assert.InDelta(t, 120, margin(panel.DimState, "01"), 1e-6)
	assert.InDelta(t, 180, margin(panel.DimState, "02"), 1e-6)

	for _, w := range res.Weights {
		assert.Greater(t, w, 0.0)
	}
}

func TestRakeInconsistentMarginsDoNotConverge(t *testing.T) {
	// Dimension totals disagree (300 vs 600): IPF oscillates and must
	// report non-convergence with best-effort weights, not fail.
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		rec("a", "Manufacturing", "01", jan, 50),
		rec("b", "Retail trade", "02", jan, 50),
	}
	targets := Targets{
		panel.DimSupersector: {
			vp("Manufacturing", jan): 100,
			vp("Retail trade", jan):  200,
		},
		panel.DimState: {
			vp("01", jan): 400,
			vp("02", jan): 200,
		},
	}

	res, err := Rake(records, []panel.Dimension{panel.DimSupersector, panel.DimState}, targets, Options{MaxIter: 25, Tolerance: 1e-12}, nil)
	require.ErrorIs(t, err, apperrors.ErrNotConverged)
	assert.False(t, res.Converged)
	assert.Equal(t, 25, res.Iterations)
	assert.Greater(t, res.MaxDeviation, 0.0)
	require.Len(t, res.Weights, 2)
	for _, w := range res.Weights {
		assert.Greater(t, w, 0.0)
	}
}

func TestRakeZeroEmploymentLeftUnadjusted(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		rec("a", "Manufacturing", "01", jan, 30),
		rec("z", "Manufacturing", "01", jan, 0),
	}
	targets := Targets{
		panel.DimSupersector: {vp("Manufacturing", jan): 60},
	}

	res, err := Rake(records, []panel.Dimension{panel.DimSupersector}, targets, Options{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Weights[0], 1e-9)
	assert.Equal(t, 1.0, res.Weights[1])
}

func TestRakeMissingTargetLeavesDimensionValueAlone(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		rec("a", "Manufacturing", "01", jan, 30),
		rec("b", "Utilities", "01", jan, 10), // no target for Utilities
	}
	targets := Targets{
		panel.DimSupersector: {vp("Manufacturing", jan): 90},
	}

	res, err := Rake(records, []panel.Dimension{panel.DimSupersector}, targets, Options{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, res.Weights[0], 1e-9)
	assert.Equal(t, 1.0, res.Weights[1])
}

func TestRakeMultiPeriod(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	feb := jan.Add(1)
	records := []panel.Record{
		rec("a", "Manufacturing", "01", jan, 50),
		rec("a", "Manufacturing", "01", feb, 60),
	}
	targets := Targets{
		panel.DimSupersector: {
			vp("Manufacturing", jan): 100,
			vp("Manufacturing", feb): 90,
		},
	}

	res, err := Rake(records, []panel.Dimension{panel.DimSupersector}, targets, Options{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Weights[0], 1e-9)
	assert.InDelta(t, 1.5, res.Weights[1], 1e-9)
}

func TestRakeNoDimensions(t *testing.T) {
	_, err := Rake(nil, nil, Targets{}, Options{}, nil)
	assert.Error(t, err)
}

func TestRakeRenormalizePreservesPeriodTotals(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	records := []panel.Record{
		rec("a", "Manufacturing", "01", jan, 30),
		rec("b", "Retail trade", "01", jan, 70),
	}
	// Targets double the panel: without renormalization totals drift to 200.
	targets := Targets{
		panel.DimSupersector: {
			vp("Manufacturing", jan): 60,
			vp("Retail trade", jan):  140,
		},
	}

	res, _ := Rake(records, []panel.Dimension{panel.DimSupersector}, targets, Options{Renormalize: true, MaxIter: 10}, nil)
	total := res.Weights[0]*30 + res.Weights[1]*70
	assert.InDelta(t, 100.0, total, 1e-6)
}
