package curve

import (
	"fmt"
	"math"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// DefaultBenchmarkWeight is the extra weight on the 10Y tenor.
const DefaultBenchmarkWeight = 2.0

// Weights returns a grid weight vector of ones with the 10Y tenor set to
// benchmark.
func Weights(benchmark float64) [models.NumTenors]float64 {
	var w [models.NumTenors]float64
	for i := range w {
		w[i] = 1
	}
	w[models.Tenor10Y] = benchmark
	return w
}

// SSR is the unweighted sum of squared residuals across the grid.
// It returns +Inf when a decay parameter is not positive.
func SSR(p []float64, observed [models.NumTenors]float64) float64 {
	if !DecaysPositive(p) {
		return math.Inf(1)
	}
	var sum float64
	for i, t := range models.MaturityGrid {
		r := observed[i] - Evaluate(p, t)
		sum += r * r
	}
	return sum
}

// WeightedSSR is the sum of w_i·r_i². It returns +Inf when a decay
// parameter is not positive.
func WeightedSSR(p []float64, observed, weights [models.NumTenors]float64) float64 {
	if !DecaysPositive(p) {
		return math.Inf(1)
	}
	var sum float64
	for i, t := range models.MaturityGrid {
		r := observed[i] - Evaluate(p, t)
		sum += weights[i] * r * r
	}
	return sum
}

// Objective builds the function handed to the optimizer for one day.
// A nil weights pointer selects the unweighted SSR.
func Objective(observed [models.NumTenors]float64, weights *[models.NumTenors]float64) func([]float64) float64 {
	if weights == nil {
		return func(p []float64) float64 { return SSR(p, observed) }
	}
	w := *weights
	return func(p []float64) float64 { return WeightedSSR(p, observed, w) }
}

// RSquared returns 1 - SSR/TSS. A constant observed series has TSS = 0 and
// yields exactly 0.
func RSquared(observed, predicted []float64) (float64, error) {
	if len(observed) != len(predicted) {
		return 0, fmt.Errorf("%w: observed has %d points, predicted %d",
			models.ErrValidation, len(observed), len(predicted))
	}
	if len(observed) == 0 {
		return 0, fmt.Errorf("%w: empty series", models.ErrValidation)
	}

	if IsFlat(observed) {
		return 0, nil
	}

	var mean float64
	for _, y := range observed {
		mean += y
	}
	mean /= float64(len(observed))

	var ssr, tss float64
	for i, y := range observed {
		r := y - predicted[i]
		ssr += r * r
		d := y - mean
		tss += d * d
	}
	if tss == 0 {
		return 0, nil
	}
	return 1 - ssr/tss, nil
}

// IsFlat reports whether every observation equals the first.
func IsFlat(observed []float64) bool {
	if len(observed) == 0 {
		return false
	}
	for _, y := range observed[1:] {
		if y != observed[0] {
			return false
		}
	}
	return true
}
