package leadlag

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
)

func seriesFrom(start panel.Period, values ...float64) panel.Series {
	m := make(map[panel.Period]float64, len(values))
	for i, v := range values {
		m[start.Add(i)] = v
	}
	return panel.NewSeries(m)
}

func TestCrossCorrelationPeakAtTrueLag(t *testing.T) {
	// Reference reproduces the panel two periods later: the correlation
	// at lag 2 must be exactly 1.
	start := panel.NewPeriod(2022, time.January)
	base := make([]float64, 30)
	for i := range base {
		base[i] = math.Sin(float64(i) / 3)
	}
	panelRate := seriesFrom(start, base...)
	shifted := make([]float64, 30)
	for i := range shifted {
		if i >= 2 {
			shifted[i] = base[i-2]
		}
	}
	refRate := seriesFrom(start.Add(0), shifted...)

	out := CrossCorrelation(panelRate, refRate, 4)
	require.NotEmpty(t, out)

	byLag := make(map[int]LagCorrelation)
	for _, c := range out {
		byLag[c.Lag] = c
	}
	require.Contains(t, byLag, 2)
	// Only the overlap excluding the zero-padded head lines up exactly,
	// but lag 2 still dominates every other lag.
	best := byLag[2]
	for lag, c := range byLag {
		if lag != 2 {
			assert.Greater(t, best.R, c.R, "lag %d should not beat the true lag", lag)
		}
	}
	assert.Greater(t, best.R, 0.9)
}

func TestCrossCorrelationWindowShrinksWithLag(t *testing.T) {
	start := panel.NewPeriod(2024, time.January)
	s := seriesFrom(start, 1, 2, 3, 4, 5, 6)
	out := CrossCorrelation(s, s, 3)
	require.NotEmpty(t, out)
	assert.Equal(t, 6, out[0].N)
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i].N, out[i-1].N)
	}
}

func TestCrossCorrelationTooShortOmitted(t *testing.T) {
	start := panel.NewPeriod(2024, time.January)
	s := seriesFrom(start, 1, 2, 3, 4)
	out := CrossCorrelation(s, s, 3)
	for _, c := range out {
		assert.GreaterOrEqual(t, c.N, minCorrObs)
	}
}

func TestFitLeadModelsExactFit(t *testing.T) {
	// ref_t = 0.5 + 2·panel_t exactly: concurrent model recovers the
	// coefficients with R² = 1.
	start := panel.NewPeriod(2023, time.January)
	pv := []float64{0.10, 0.30, 0.20, 0.40, 0.15, 0.35, 0.25, 0.05, 0.45, 0.12}
	rv := make([]float64, len(pv))
	for i, v := range pv {
		rv[i] = 0.5 + 2*v
	}

	results, errs := FitLeadModels(seriesFrom(start, pv...), seriesFrom(start, rv...))
	assert.Empty(t, errs)
	require.Len(t, results, 3)

	var concurrent *RegressionResult
	for i := range results {
		if results[i].Model == ModelConcurrent {
			concurrent = &results[i]
		}
	}
	require.NotNil(t, concurrent)
	require.Len(t, concurrent.Coefficients, 2)
	assert.InDelta(t, 0.5, concurrent.Coefficients[0].Estimate, 1e-9)
	assert.InDelta(t, 2.0, concurrent.Coefficients[1].Estimate, 1e-9)
	assert.InDelta(t, 1.0, concurrent.R2, 1e-9)
	assert.Equal(t, len(pv), concurrent.N)
}

func TestFitLeadModelsStandardErrors(t *testing.T) {
	start := panel.NewPeriod(2023, time.January)
	pv := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	rv := []float64{0.21, 0.39, 0.62, 0.80, 1.01, 1.18, 1.42, 1.61, 1.79, 2.02}

	results, errs := FitLeadModels(seriesFrom(start, pv...), seriesFrom(start, rv...))
	assert.Empty(t, errs)
	for _, res := range results {
		for _, c := range res.Coefficients {
			assert.False(t, math.IsNaN(c.StdErr), "%s/%s", res.Model, c.Name)
			assert.GreaterOrEqual(t, c.StdErr, 0.0)
		}
		assert.Greater(t, res.R2, 0.9)
	}
}

func TestFitLeadModelsInsufficientData(t *testing.T) {
	start := panel.NewPeriod(2024, time.January)
	pv := []float64{0.1, 0.2, 0.3}
	rv := []float64{0.2, 0.4, 0.6}

	results, errs := FitLeadModels(seriesFrom(start, pv...), seriesFrom(start, rv...))
	// Concurrent needs 4 observations, the 3-coefficient models need 5.
	assert.Empty(t, results)
	require.Len(t, errs, 3)
	for _, err := range errs {
		var insufficient *apperrors.InsufficientDataError
		require.ErrorAs(t, err, &insufficient)
		assert.True(t, apperrors.IsRecoverable(err))
	}
}

func TestFormationRateUsesDeterminableDenominator(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	cells := []panel.Cell{
		{
			Key:                   panel.CellKey{Level: panel.LevelNational, Period: jan},
			Formations:            12,
			FormationDeterminable: 40,
			ActiveClients:         100,
		},
	}
	s := FormationRate(cells, panel.LevelNational)
	require.Equal(t, 1, s.Len())
	// 12/40, never 12/100.
	assert.InDelta(t, 0.30, s.Values[0], 1e-12)
}

func TestFormationRateOmitsZeroDeterminable(t *testing.T) {
	jan := panel.NewPeriod(2024, time.January)
	cells := []panel.Cell{
		{Key: panel.CellKey{Level: panel.LevelNational, Period: jan}, Formations: 0, FormationDeterminable: 0},
	}
	s := FormationRate(cells, panel.LevelNational)
	assert.Equal(t, 0, s.Len())
}

func TestSurvivalCurves(t *testing.T) {
	entry := panel.NewPeriod(2022, time.January)
	end := entry.Add(12)
	exitAt := func(n int) *panel.Period {
		p := entry.Add(n)
		return &p
	}

	var records []panel.Record
	addMember := func(id string, exit *panel.Period) {
		records = append(records, panel.Record{
			ClientID:    id,
			Period:      entry,
			Employment:  5,
			Formation:   panel.FormationTrue,
			EntryPeriod: entry,
			ExitPeriod:  exit,
		})
	}
	addMember("a", nil)       // survives the panel
	addMember("b", exitAt(2)) // gone before the first checkpoint
	addMember("c", exitAt(6)) // survives 4, not 8
	addMember("d", exitAt(9)) // survives 8, not 12
	// Anchor the panel end without adding a cohort member.
	records = append(records, panel.Record{ClientID: "x", Period: end, Employment: 3, EntryPeriod: end})

	curves := SurvivalCurves(records, []int{4, 8, 12, 16})
	require.Len(t, curves, 1)
	curve := curves[0]
	assert.Equal(t, entry, curve.Cohort)
	assert.Equal(t, 4, curve.Size)

	// Checkpoint 16 is beyond the panel end: omitted, not zero.
	require.Len(t, curve.Points, 3)
	assert.InDelta(t, 0.75, curve.Points[0].Fraction, 1e-12) // a, c, d
	assert.InDelta(t, 0.50, curve.Points[1].Fraction, 1e-12) // a, d
	assert.InDelta(t, 0.25, curve.Points[2].Fraction, 1e-12) // a

	// Non-increasing by construction.
	for i := 1; i < len(curve.Points); i++ {
		assert.LessOrEqual(t, curve.Points[i].Fraction, curve.Points[i-1].Fraction)
	}
}

func TestSurvivalCurvesMultipleCohorts(t *testing.T) {
	jan := panel.NewPeriod(2022, time.January)
	jul := jan.Add(6)
	end := jan.Add(10)

	records := []panel.Record{
		{ClientID: "a", Period: jan, Employment: 5, Formation: panel.FormationTrue, EntryPeriod: jan},
		{ClientID: "b", Period: jul, Employment: 5, Formation: panel.FormationTrue, EntryPeriod: jul},
		{ClientID: "x", Period: end, Employment: 3, EntryPeriod: end},
	}

	curves := SurvivalCurves(records, []int{4, 8})
	require.Len(t, curves, 2)
	// January cohort evaluable at 4 and 8; July cohort only at 4.
	assert.Len(t, curves[0].Points, 2)
	assert.Len(t, curves[1].Points, 1)
}
