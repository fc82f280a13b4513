package leadlag

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
)

// Coefficient is one estimated regression coefficient.
type Coefficient struct {
	Name     string
	Estimate float64
	StdErr   float64
}

// RegressionResult summarizes one fitted model.
type RegressionResult struct {
	Model        string
	Coefficients []Coefficient
	R2           float64
	N            int
}

// Model identifiers for the lead regression family.
const (
	ModelConcurrent  = "concurrent"
	ModelLeading     = "leading"
	ModelIncremental = "incremental"
)

// FitLeadModels fits the three nested lead models relating the reference
// rate to the panel rate:
//
//	concurrent:  ref_t = a + b·panel_t
//	leading:     ref_t = a + b0·panel_t + b1·panel_{t-1}
//	incremental: ref_t = a + c·ref_{t-1} + d·panel_{t-1}
//
// Models that cannot be estimated return an InsufficientDataError in the
// second slice; the remaining models are still fitted.
func FitLeadModels(panelRate, refRate panel.Series) ([]RegressionResult, []error) {
	var results []RegressionResult
	var errs []error

	fit := func(model string, names []string, rows func() (ys []float64, xs [][]float64)) {
		y, x := rows()
		res, err := ols(model, names, y, x)
		if err != nil {
			errs = append(errs, err)
			return
		}
		results = append(results, res)
	}

	fit(ModelConcurrent, []string{"intercept", "panel"}, func() ([]float64, [][]float64) {
		var ys []float64
		var xs [][]float64
		for i, p := range refRate.Periods {
			if v, ok := panelRate.At(p); ok {
				ys = append(ys, refRate.Values[i])
				xs = append(xs, []float64{v})
			}
		}
		return ys, xs
	})

	fit(ModelLeading, []string{"intercept", "panel", "panel_lag1"}, func() ([]float64, [][]float64) {
		var ys []float64
		var xs [][]float64
		for i, p := range refRate.Periods {
			v0, ok0 := panelRate.At(p)
			v1, ok1 := panelRate.At(p.Add(-1))
			if ok0 && ok1 {
				ys = append(ys, refRate.Values[i])
				xs = append(xs, []float64{v0, v1})
			}
		}
		return ys, xs
	})

	fit(ModelIncremental, []string{"intercept", "ref_lag1", "panel_lag1"}, func() ([]float64, [][]float64) {
		var ys []float64
		var xs [][]float64
		for i, p := range refRate.Periods {
			r1, okr := refRate.At(p.Add(-1))
			p1, okp := panelRate.At(p.Add(-1))
			if okr && okp {
				ys = append(ys, refRate.Values[i])
				xs = append(xs, []float64{r1, p1})
			}
		}
		return ys, xs
	})

	return results, errs
}

// ols fits ordinary least squares with an intercept. names labels the
// intercept plus each predictor, in order. Fewer than k+2 observations
// (k including the intercept) is an InsufficientDataError.
func ols(model string, names []string, y []float64, x [][]float64) (RegressionResult, error) {
	n := len(y)
	if n == 0 {
		return RegressionResult{}, &apperrors.InsufficientDataError{Op: "regression " + model, Need: len(names) + 2, Got: 0}
	}
	k := len(x[0]) + 1 // predictors plus intercept
	if len(names) != k {
		return RegressionResult{}, fmt.Errorf("regression %s: %d names for %d coefficients", model, len(names), k)
	}
	if n < k+2 {
		return RegressionResult{}, &apperrors.InsufficientDataError{Op: "regression " + model, Need: k + 2, Got: n}
	}

	X := mat.NewDense(n, k, nil)
	Y := mat.NewVecDense(n, y)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for j, v := range x[i] {
			X.Set(i, j+1, v)
		}
	}

	var qr mat.QR
	qr.Factorize(X)
	beta := mat.NewVecDense(k, nil)
	if err := qr.SolveVecTo(beta, false, Y); err != nil {
		return RegressionResult{}, fmt.Errorf("regression %s: solve: %w", model, err)
	}

	// Residual variance and coefficient covariance.
	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(X, beta)
	ssr := 0.0
	meanY := 0.0
	for i := 0; i < n; i++ {
		meanY += y[i]
	}
	meanY /= float64(n)
	sst := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		ssr += r * r
		d := y[i] - meanY
		sst += d * d
	}
	sigma2 := ssr / float64(n-k)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return RegressionResult{}, fmt.Errorf("regression %s: singular design matrix: %w", model, err)
	}

	res := RegressionResult{Model: model, N: n}
	for j := 0; j < k; j++ {
		res.Coefficients = append(res.Coefficients, Coefficient{
			Name:     names[j],
			Estimate: beta.AtVec(j),
			StdErr:   math.Sqrt(sigma2 * xtxInv.At(j, j)),
		})
	}
	if sst > 0 {
		res.R2 = 1 - ssr/sst
	}
	return res, nil
}
