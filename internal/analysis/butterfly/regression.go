package butterfly

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/pkg/models"
)

// maxCondition rejects designs whose regressors are (near) collinear or constant.
const maxCondition = 1e10

// HedgeRegression fits targets ≈ a + b1·slope + b2·level by ordinary least
// squares (QR) over the whole batch. It needs at least three rows and a
// full-rank design.
func HedgeRegression(features [][2]float64, targets []float64) (models.RegressionModel, error) {
	n := len(targets)
	if n == 0 {
		return models.RegressionModel{}, fmt.Errorf("%w: empty regression input", models.ErrValidation)
	}
	if len(features) != n {
		return models.RegressionModel{}, fmt.Errorf("%w: %d feature rows but %d targets", models.ErrValidation, len(features), n)
	}
	if n < 3 {
		return models.RegressionModel{}, fmt.Errorf("%w: regression needs at least 3 days, got %d", models.ErrValidation, n)
	}

	design := mat.NewDense(n, 3, nil)
	for i, f := range features {
		design.Set(i, 0, 1)
		design.Set(i, 1, f[0])
		design.Set(i, 2, f[1])
	}
	y := mat.NewVecDense(n, append([]float64(nil), targets...))

	if c := mat.Cond(design, 2); c > maxCondition {
		return models.RegressionModel{}, fmt.Errorf("%w: hedge regression design is rank deficient (condition %.3g)",
			models.ErrNumericalDegeneracy, c)
	}
	var beta mat.VecDense
	if err := beta.SolveVec(design, y); err != nil {
		return models.RegressionModel{}, fmt.Errorf("%w: hedge regression design is singular: %v", models.ErrNumericalDegeneracy, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)
	r2, err := curve.RSquared(targets, fitted.RawVector().Data)
	if err != nil {
		return models.RegressionModel{}, err
	}

	return models.RegressionModel{
		Intercept:    beta.AtVec(0),
		Coefficients: []float64{beta.AtVec(1), beta.AtVec(2)},
		RSquared:     r2,
		Observations: n,
	}, nil
}

// MeanReversionStats returns the mean and population standard deviation of
// market[i] - model[i].
func MeanReversionStats(market, model []float64) (models.ReversionStats, error) {
	if len(market) == 0 {
		return models.ReversionStats{}, fmt.Errorf("%w: empty spread series", models.ErrValidation)
	}
	if len(market) != len(model) {
		return models.ReversionStats{}, fmt.Errorf("%w: %d market spreads but %d model spreads",
			models.ErrValidation, len(market), len(model))
	}
	diff := make([]float64, len(market))
	for i := range market {
		diff[i] = market[i] - model[i]
	}
	mean, std := stat.PopMeanStdDev(diff, nil)
	return models.ReversionStats{Mean: mean, StdDev: std, N: len(diff)}, nil
}

// ZScores standardizes series by its mean and population standard deviation.
// A zero standard deviation is an error.
func ZScores(series []float64) ([]float64, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: empty series", models.ErrValidation)
	}
	if curve.IsFlat(series) {
		return nil, fmt.Errorf("%w: zero standard deviation", models.ErrNumericalDegeneracy)
	}
	mean, std := stat.PopMeanStdDev(series, nil)
	if std == 0 {
		return nil, fmt.Errorf("%w: zero standard deviation", models.ErrNumericalDegeneracy)
	}
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = stat.StdScore(v, mean, std)
	}
	return out, nil
}
