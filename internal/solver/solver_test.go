package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// bowl has its minimum at (1, -2).
func bowl(x []float64) float64 {
	a := x[0] - 1
	b := x[1] + 2
	return a*a + 10*b*b
}

func newOptimizer(s Strategy) *Optimizer {
	settings := DefaultSettings()
	settings.Strategy = s
	return New(settings)
}

func TestSimplexFindsMinimum(t *testing.T) {
	res, err := newOptimizer(SimplexSearch).Minimize(bowl, []float64{0, 0}, nil, 1000)
	require.NoError(t, err)
	assert.True(t, res.Converged, "status %s", res.Status)
	assert.InDelta(t, 1.0, res.X[0], 1e-3)
	assert.InDelta(t, -2.0, res.X[1], 1e-3)
	assert.Less(t, res.F, 1e-6)
	assert.Positive(t, res.Iterations)
	assert.Positive(t, res.Evaluations)
}

func TestBoundedFindsInteriorMinimum(t *testing.T) {
	bounds := []Bound{{-5, 5}, {-5, 5}}
	res, err := newOptimizer(BoundedDescent).Minimize(bowl, []float64{0, 0}, bounds, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.X[0], 1e-3)
	assert.InDelta(t, -2.0, res.X[1], 1e-3)
	assert.Less(t, res.F, 1e-6)
}

func TestBoundedRespectsBounds(t *testing.T) {
	// Unconstrained minimum at 10 lies outside [0, 3].
	f := func(x []float64) float64 {
		d := x[0] - 10
		return d * d
	}
	var outside int
	guard := func(x []float64) float64 {
		if x[0] < 0 || x[0] > 3 {
			outside++
		}
		return f(x)
	}
	res, err := newOptimizer(BoundedDescent).Minimize(guard, []float64{1}, []Bound{{0, 3}}, 200)
	require.NoError(t, err)
	assert.Zero(t, outside, "objective evaluated outside bounds")
	assert.LessOrEqual(t, res.X[0], 3.0)
	assert.Greater(t, res.X[0], 2.9)
}

func TestStartIsClampedInsideBounds(t *testing.T) {
	for _, s := range []Strategy{SimplexSearch, BoundedDescent} {
		var first []float64
		f := func(x []float64) float64 {
			if first == nil {
				first = append([]float64(nil), x...)
			}
			return bowl(x)
		}
		bounds := []Bound{{0, 4}, {-3, -1}}
		_, err := newOptimizer(s).Minimize(f, []float64{-0.5, -0.999}, bounds, 10)
		require.NoError(t, err, "strategy %s", s)
		require.Len(t, first, 2)
		for i, b := range bounds {
			assert.True(t, b.Contains(first[i]), "%s: start[%d]=%v not inside %v", s, i, first[i], b)
		}
		assert.InDelta(t, 0.01, first[0], 1e-9, "strategy %s", s)
		assert.InDelta(t, -1.01, first[1], 1e-9, "strategy %s", s)
	}
}

func TestNonConvergenceIsNotAnError(t *testing.T) {
	for _, s := range []Strategy{SimplexSearch, BoundedDescent} {
		res, err := newOptimizer(s).Minimize(bowl, []float64{4, 4}, []Bound{{-5, 5}, {-5, 5}}, 1)
		require.NoError(t, err, "strategy %s", s)
		assert.False(t, res.Converged, "strategy %s", s)
		assert.Equal(t, "IterationLimit", res.Status)
		assert.False(t, math.IsInf(res.F, 0))
		assert.LessOrEqual(t, res.Iterations, 1)
	}
}

func TestInfiniteObjectiveReturnsStart(t *testing.T) {
	inf := func([]float64) float64 { return math.Inf(1) }
	res, err := newOptimizer(BoundedDescent).Minimize(inf, []float64{1, 2}, []Bound{{0, 3}, {0, 3}}, 50)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.True(t, math.IsInf(res.F, 1))
	assert.InDeltaSlice(t, []float64{1, 2}, res.X, 1e-12)
}

func TestMinimizeValidation(t *testing.T) {
	o := newOptimizer(BoundedDescent)
	cases := map[string]func() error{
		"empty start": func() error {
			_, err := o.Minimize(bowl, nil, nil, 10)
			return err
		},
		"bound count": func() error {
			_, err := o.Minimize(bowl, []float64{0, 0}, []Bound{{0, 1}}, 10)
			return err
		},
		"inverted bound": func() error {
			_, err := o.Minimize(bowl, []float64{0, 0}, []Bound{{0, 1}, {2, 1}}, 10)
			return err
		},
		"zero iterations": func() error {
			_, err := o.Minimize(bowl, []float64{0, 0}, nil, 0)
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(fn(), models.ErrValidation))
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"simplex", SimplexSearch},
		{"Nelder-Mead", SimplexSearch},
		{"bounded", BoundedDescent},
		{"L-BFGS-B", BoundedDescent},
		{"", BoundedDescent},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseStrategy("annealing")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestClamp(t *testing.T) {
	bounds := []Bound{
		{0, 1},
		{0, 1},
		{0, 1},
		{0.08, 0.1},
		{math.Inf(-1), math.Inf(1)},
		{2, math.Inf(1)},
	}
	x := []float64{-3, 1, 0.5, 0.2, 1e9, math.NaN()}
	got := Clamp(x, bounds, 0.01)

	assert.Equal(t, 0.01, got[0])
	assert.Equal(t, 0.99, got[1])
	assert.Equal(t, 0.5, got[2])
	assert.InDelta(t, 0.095, got[3], 1e-12) // narrow bound: quarter width
	assert.Equal(t, 1e9, got[4])
	assert.Equal(t, 3.0, got[5])

	// Input is not modified.
	assert.Equal(t, -3.0, x[0])
}

func TestTransformRoundTrip(t *testing.T) {
	bounds := []Bound{
		{0.8, 3.5},
		{0.05, math.Inf(1)},
		{math.Inf(-1), 6},
		Unbounded(),
	}
	tf := newTransform(bounds)
	x := []float64{1.2, 0.12, -4, 7}
	back := tf.toBounded(tf.toFree(x))
	assert.InDeltaSlice(t, x, back, 1e-12)

	// Any free value maps inside the box.
	for _, z := range []float64{-30, -1, 0, 1, 30} {
		v := tf.toBounded([]float64{z, z, z, z})
		assert.GreaterOrEqual(t, v[0], 0.8)
		assert.LessOrEqual(t, v[0], 3.5)
		assert.Greater(t, v[1], 0.05)
		assert.Less(t, v[2], 6.0)
	}
}
