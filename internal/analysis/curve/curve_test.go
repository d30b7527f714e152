package curve

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// sampleNSS is a typical upward-sloping NSS parameter set.
var sampleNSS = []float64{4.5, -1.2, -2.5, 1.5, 1.2, 0.12}

func TestLoadingLimits(t *testing.T) {
	assert.Equal(t, 1.0, Loading1(0))
	assert.Equal(t, 0.0, Loading2(0))
	assert.InDelta(t, 1.0, Loading1(1e-12), 1e-12)
	assert.InDelta(t, 0.0, Loading2(1e-12), 1e-12)

	// Expm1 form agrees with the naive formula away from zero.
	for _, x := range []float64{0.01, 0.5, 1, 3, 25} {
		naive := (1 - math.Exp(-x)) / x
		assert.InDelta(t, naive, Loading1(x), 1e-12, "x=%g", x)
		assert.InDelta(t, naive-math.Exp(-x), Loading2(x), 1e-12, "x=%g", x)
	}

	// Large x decays to zero.
	assert.InDelta(t, 0.0, Loading1(math.Inf(1)), 0)
}

func TestNSSWithZeroHumpEqualsNS(t *testing.T) {
	cases := [][]float64{
		{4.5, -1.2, -2.5, 1.2},
		{3.0, 1.0, 2.0, 0.8},
		{6.0, -3.0, 5.0, 3.5},
	}
	for _, ns := range cases {
		nss := []float64{ns[0], ns[1], ns[2], 0, ns[3], 0.2}
		for i, m := range models.MaturityGrid {
			if got, want := Evaluate(nss, m), Evaluate(ns, m); got != want {
				t.Errorf("tenor %s: NSS=%v NS=%v", models.TenorLabels[i], got, want)
			}
		}
	}
}

func TestEvaluateShortEndLimit(t *testing.T) {
	// y(0) = β0 + β1
	got := Evaluate(sampleNSS, 1e-12)
	assert.False(t, math.IsNaN(got))
	assert.InDelta(t, sampleNSS[0]+sampleNSS[1], got, 1e-9)

	// Long end approaches β0.
	assert.InDelta(t, sampleNSS[0], Evaluate(sampleNSS, 1e6), 1e-4)
}

func TestEvaluateRejectsMalformedVector(t *testing.T) {
	for _, p := range [][]float64{nil, {4.5}, {4.5, -1.2, -2.5}, {4.5, -1.2, -2.5, 1.5, 1.2}, append(sampleNSS, 0.3)} {
		assert.True(t, math.IsNaN(Evaluate(p, 5)), "len=%d", len(p))
		assert.False(t, DecaysPositive(p), "len=%d", len(p))
	}
	c := Curve([]float64{4.5, -1.2, -2.5, 1.5, 1.2})
	for i := range c {
		assert.True(t, math.IsNaN(c[i]))
	}
}

func TestCurveMatchesEvaluate(t *testing.T) {
	c := Curve(sampleNSS)
	for i, m := range models.MaturityGrid {
		assert.Equal(t, Evaluate(sampleNSS, m), c[i])
	}
	dense := EvaluateAt(sampleNSS, []float64{0.25, 10})
	assert.Equal(t, c[2], dense[0])
	assert.Equal(t, c[models.Tenor10Y], dense[1])
}

func TestSSRNonPositiveDecay(t *testing.T) {
	obs := Curve(sampleNSS)
	for _, p := range [][]float64{
		{4.5, -1.2, -2.5, 1.5, 0, 0.12},
		{4.5, -1.2, -2.5, 1.5, 1.2, -0.1},
		{4.5, -1.2, -2.5, -1},
	} {
		assert.True(t, math.IsInf(SSR(p, obs), 1))
		assert.True(t, math.IsInf(WeightedSSR(p, obs, Weights(2)), 1))
	}
	assert.Equal(t, 0.0, SSR(sampleNSS, obs))
}

func TestWeights(t *testing.T) {
	w := Weights(DefaultBenchmarkWeight)
	for i, v := range w {
		if i == models.Tenor10Y {
			assert.Equal(t, 2.0, v)
			continue
		}
		assert.Equal(t, 1.0, v, "tenor %s", models.TenorLabels[i])
	}
}

func TestWeightedSSREmphasizesTenYear(t *testing.T) {
	obs := Curve(sampleNSS)
	obs[models.Tenor10Y] += 0.1

	unweighted := SSR(sampleNSS, obs)
	weighted := WeightedSSR(sampleNSS, obs, Weights(2))
	assert.InDelta(t, 0.01, unweighted, 1e-12)
	assert.InDelta(t, 2*unweighted, weighted, 1e-12)

	w := Weights(2)
	assert.Equal(t, weighted, Objective(obs, &w)(sampleNSS))
	assert.Equal(t, unweighted, Objective(obs, nil)(sampleNSS))
}

func TestRSquared(t *testing.T) {
	y := []float64{4.1, 4.2, 4.0, 3.9, 3.8}

	r2, err := RSquared(y, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r2)

	flat := []float64{4.3, 4.3, 4.3, 4.3}
	r2, err = RSquared(flat, []float64{4.2, 4.4, 4.3, 4.1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r2)

	mean := []float64{4.0, 4.0, 4.0, 4.0, 4.0}
	r2, err = RSquared(y, mean)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, r2, 1e-12)

	_, err = RSquared(y, y[:3])
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = RSquared(nil, nil)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestRegional(t *testing.T) {
	obs := Curve(sampleNSS)
	obs[0] += 0.1                  // short
	obs[models.Tenor5Y] += 0.2     // mid
	obs[models.NumTenors-1] -= 0.3 // long

	r := Regional(sampleNSS, obs)
	assert.InDelta(t, 0.01, r.Short, 1e-12)
	assert.InDelta(t, 0.04, r.Mid, 1e-12)
	assert.InDelta(t, 0.09, r.Long, 1e-12)

	assert.True(t, r.AllBelow(0.15))
	assert.False(t, r.AllBelow(0.05))
	assert.InDelta(t, SSR(sampleNSS, obs), r.Short+r.Mid+r.Long, 1e-12)
}

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate(sampleNSS))

	issues := Validate(models.CurveParams{11, -1, 0, 0, 1, 0.05})
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "beta0")
	assert.Contains(t, issues[1], "lambda1")

	issues = Validate(models.CurveParams{4, 6, 0, 1})
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "beta1")
}

func TestSplineInterpolatesKnots(t *testing.T) {
	obs := Curve(sampleNSS)
	for _, b := range []Boundary{BoundaryNatural, BoundaryClamped, BoundaryNotAKnot} {
		s, err := FitSpline(obs, b)
		require.NoError(t, err, "boundary %s", b)
		for i, m := range models.MaturityGrid {
			assert.InDelta(t, obs[i], s.At(m), 1e-9, "%s at %s", b, models.TenorLabels[i])
		}
	}
}

func TestSplineFlatCurve(t *testing.T) {
	var obs [models.NumTenors]float64
	for i := range obs {
		obs[i] = 4.3
	}
	s, err := FitSpline(obs, BoundaryNatural)
	require.NoError(t, err)
	xs, ys := s.Sample(50)
	require.Len(t, xs, 50)
	assert.InDelta(t, models.MaturityGrid[0], xs[0], 1e-12)
	assert.Equal(t, 30.0, xs[49])
	for _, y := range ys {
		assert.InDelta(t, 4.3, y, 1e-9)
	}
}

func TestSplineClampedEndSlope(t *testing.T) {
	s, err := FitSpline(Curve(sampleNSS), BoundaryClamped)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s.SlopeAt(models.MaturityGrid[0]), 1e-8)
}

func TestSplineUnknownBoundary(t *testing.T) {
	_, err := FitSpline(Curve(sampleNSS), "quadratic")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestDenseGrid(t *testing.T) {
	g := DenseGrid(3)
	require.Len(t, g, 3)
	assert.InDelta(t, (models.MaturityGrid[0]+30)/2, g[1], 1e-12)
	assert.Len(t, DenseGrid(1), 1)
}
