// Package curve evaluates Nelson-Siegel and Nelson-Siegel-Svensson yield
// curves and measures how well they fit observed par yields.
package curve

import (
	"math"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// smallX is where the loadings switch to their series expansion.
const smallX = 1e-8

// Loading1 is the slope loading (1 - e^-x) / x, with limit 1 at x = 0.
func Loading1(x float64) float64 {
	if math.Abs(x) < smallX {
		return 1 - x/2
	}
	return -math.Expm1(-x) / x
}

// Loading2 is the curvature loading (1 - e^-x) / x - e^-x, with limit 0 at x = 0.
func Loading2(x float64) float64 {
	if math.Abs(x) < smallX {
		return x / 2
	}
	return Loading1(x) - math.Exp(-x)
}

// NS evaluates y(t) = β0 + β1·L1(t/λ) + β2·L2(t/λ).
func NS(beta0, beta1, beta2, lambda, t float64) float64 {
	x := t / lambda
	return beta0 + beta1*Loading1(x) + beta2*Loading2(x)
}

// NSS evaluates the Svensson extension, NS plus β3·L2(t/λ1).
// With β3 = 0 it reduces exactly to NS.
func NSS(beta0, beta1, beta2, beta3, lambda0, lambda1, t float64) float64 {
	return NS(beta0, beta1, beta2, lambda0, t) + beta3*Loading2(t/lambda1)
}

// Evaluate returns the curve value at maturity t (years) for a 4-parameter
// NS or 6-parameter NSS vector. Any other length yields NaN.
func Evaluate(p []float64, t float64) float64 {
	switch len(p) {
	case 4:
		return NS(p[0], p[1], p[2], p[3], t)
	case 6:
		return NSS(p[0], p[1], p[2], p[3], p[4], p[5], t)
	default:
		return math.NaN()
	}
}

// Curve evaluates the model at every grid tenor.
func Curve(p []float64) [models.NumTenors]float64 {
	var out [models.NumTenors]float64
	for i, t := range models.MaturityGrid {
		out[i] = Evaluate(p, t)
	}
	return out
}

// EvaluateAt evaluates the model on an arbitrary set of maturities.
func EvaluateAt(p []float64, maturities []float64) []float64 {
	out := make([]float64, len(maturities))
	for i, t := range maturities {
		out[i] = Evaluate(p, t)
	}
	return out
}

// DecaysPositive reports whether every decay parameter is strictly positive.
func DecaysPositive(p []float64) bool {
	if len(p) != 4 && len(p) != 6 {
		return false
	}
	for _, d := range models.CurveParams(p).Decays() {
		if !(d > 0) {
			return false
		}
	}
	return true
}
