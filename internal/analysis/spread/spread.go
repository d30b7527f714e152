// Package spread computes mean-reversion statistics for the 2s5s spread
// (5Y yield minus 2Y yield).
package spread

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/pkg/models"
)

// Z-scores are only meaningful when the two legs move loosely together.
const (
	MaxReversionSlope    = 0.1
	MaxReversionRSquared = 0.1
)

// Series returns fiveY[i] - twoY[i].
func Series(twoY, fiveY []float64) ([]float64, error) {
	if len(twoY) == 0 {
		return nil, fmt.Errorf("%w: empty yield series", models.ErrValidation)
	}
	if len(twoY) != len(fiveY) {
		return nil, fmt.Errorf("%w: %d 2Y yields but %d 5Y yields", models.ErrValidation, len(twoY), len(fiveY))
	}
	out := make([]float64, len(twoY))
	floats.SubTo(out, fiveY, twoY)
	return out, nil
}

// Legs pulls the 2Y and 5Y yields out of an observation series.
func Legs(obs []models.YieldObservation) (twoY, fiveY []float64) {
	twoY = make([]float64, len(obs))
	fiveY = make([]float64, len(obs))
	for i, o := range obs {
		twoY[i] = o.Yields[models.Tenor2Y]
		fiveY[i] = o.Yields[models.Tenor5Y]
	}
	return twoY, fiveY
}

// Regress fits fiveY = intercept + slope·twoY by least squares.
func Regress(twoY, fiveY []float64) (slope, intercept, r2 float64, err error) {
	if len(twoY) != len(fiveY) || len(twoY) < 2 {
		return 0, 0, 0, fmt.Errorf("%w: regression needs two equal series of at least 2 points", models.ErrValidation)
	}
	if curve.IsFlat(twoY) {
		return 0, 0, 0, fmt.Errorf("%w: 2Y yields are constant", models.ErrNumericalDegeneracy)
	}
	intercept, slope = stat.LinearRegression(twoY, fiveY, nil, false)
	predicted := make([]float64, len(twoY))
	for i, x := range twoY {
		predicted[i] = intercept + slope*x
	}
	r2, err = curve.RSquared(fiveY, predicted)
	return slope, intercept, r2, err
}

// ZScore standardizes one spread value. A zero std is an error.
func ZScore(value, mean, std float64) (float64, error) {
	if std == 0 {
		return 0, fmt.Errorf("%w: zero standard deviation", models.ErrNumericalDegeneracy)
	}
	return stat.StdScore(value, mean, std), nil
}

// Analyze computes the full 2s5s statistics. Z-scores are filled only when
// the regression slope and R² are both under their limits.
func Analyze(twoY, fiveY []float64) (models.SpreadStats, error) {
	spreads, err := Series(twoY, fiveY)
	if err != nil {
		return models.SpreadStats{}, err
	}
	mean, std := stat.PopMeanStdDev(spreads, nil)
	if curve.IsFlat(spreads) {
		std = 0
	}
	out := models.SpreadStats{
		Mean:    mean,
		StdDev:  std,
		Min:     floats.Min(spreads),
		Max:     floats.Max(spreads),
		Spreads: spreads,
	}
	if std == 0 {
		return out, fmt.Errorf("%w: 2s5s spread has zero standard deviation", models.ErrNumericalDegeneracy)
	}

	out.Slope, out.Intercept, out.RSquared, err = Regress(twoY, fiveY)
	if err != nil {
		return out, err
	}
	if out.Slope < MaxReversionSlope && out.RSquared < MaxReversionRSquared {
		out.Reverting = true
		out.ZScores = make([]float64, len(spreads))
		for i, s := range spreads {
			out.ZScores[i] = stat.StdScore(s, mean, std)
		}
	}
	return out, nil
}

// AnalyzeObservations runs Analyze over the 2Y and 5Y legs of a series.
func AnalyzeObservations(obs []models.YieldObservation) (models.SpreadStats, error) {
	twoY, fiveY := Legs(obs)
	return Analyze(twoY, fiveY)
}
