package curve

import (
	"fmt"

	"gonum.org/v1/gonum/interp"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// Boundary selects the end conditions of a cubic spline.
type Boundary string

const (
	BoundaryNatural  Boundary = "natural"    // zero second derivative at both ends
	BoundaryClamped  Boundary = "clamped"    // zero first derivative at both ends
	BoundaryNotAKnot Boundary = "not-a-knot" // continuous third derivative at the second and penultimate knots
)

type cubicSpline interface {
	interp.FittablePredictor
	PredictDerivative(x float64) float64
}

// Spline is a cubic spline through one day's observed yields.
type Spline struct {
	Boundary Boundary
	fit      cubicSpline
	lo, hi   float64
}

// FitSpline interpolates the observed curve over MaturityGrid.
func FitSpline(observed [models.NumTenors]float64, b Boundary) (*Spline, error) {
	var fp cubicSpline
	switch b {
	case BoundaryNatural, "":
		b = BoundaryNatural
		fp = &interp.NaturalCubic{}
	case BoundaryClamped:
		fp = &interp.ClampedCubic{}
	case BoundaryNotAKnot:
		fp = &interp.NotAKnotCubic{}
	default:
		return nil, fmt.Errorf("%w: unknown spline boundary %q", models.ErrValidation, b)
	}

	xs := make([]float64, models.NumTenors)
	copy(xs, models.MaturityGrid[:])
	ys := make([]float64, models.NumTenors)
	copy(ys, observed[:])
	if err := fp.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fitting %s spline: %w", b, err)
	}
	return &Spline{Boundary: b, fit: fp, lo: xs[0], hi: xs[len(xs)-1]}, nil
}

// At returns the interpolated yield at maturity t. Maturities outside the
// grid are held at the nearest end.
func (s *Spline) At(t float64) float64 {
	if t < s.lo {
		t = s.lo
	}
	if t > s.hi {
		t = s.hi
	}
	return s.fit.Predict(t)
}

// SlopeAt returns the first derivative of the spline at maturity t, in
// percent per year.
func (s *Spline) SlopeAt(t float64) float64 {
	if t < s.lo {
		t = s.lo
	}
	if t > s.hi {
		t = s.hi
	}
	return s.fit.PredictDerivative(t)
}

// Sample evaluates the spline on n evenly spaced maturities spanning the grid.
func (s *Spline) Sample(n int) (maturities, yields []float64) {
	maturities = DenseGrid(n)
	yields = make([]float64, len(maturities))
	for i, t := range maturities {
		yields[i] = s.At(t)
	}
	return maturities, yields
}

// DenseGrid returns n evenly spaced maturities from the 1M to the 30Y tenor.
func DenseGrid(n int) []float64 {
	lo := models.MaturityGrid[0]
	hi := models.MaturityGrid[models.NumTenors-1]
	if n < 2 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
