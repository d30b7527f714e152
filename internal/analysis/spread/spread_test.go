package spread

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

func TestSeries(t *testing.T) {
	s, err := Series([]float64{4.0, 4.1}, []float64{4.2, 4.05})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.2, -0.05}, s, 1e-12)

	_, err = Series([]float64{4.0}, []float64{4.2, 4.3})
	assert.True(t, errors.Is(err, models.ErrValidation))
	_, err = Series(nil, nil)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestAnalyzeSummaryStatistics(t *testing.T) {
	twoY := []float64{4.00, 4.10, 3.90, 4.05}
	fiveY := []float64{4.20, 4.15, 4.25, 4.10}

	st, err := Analyze(twoY, fiveY)
	require.NoError(t, err)
	// Spreads: 0.20, 0.05, 0.35, 0.05.
	assert.InDelta(t, 0.1625, st.Mean, 1e-12)
	assert.InDelta(t, 0.05, st.Min, 1e-12)
	assert.InDelta(t, 0.35, st.Max, 1e-12)
	assert.InDelta(t, math.Sqrt(0.01546875), st.StdDev, 1e-12)

	// The legs move against each other: the slope is negative but the
	// relation is too strong (R² ≈ 0.69) for z-scores.
	assert.InDelta(t, -0.01375/0.021875, st.Slope, 1e-9)
	assert.Greater(t, st.RSquared, MaxReversionRSquared)
	assert.False(t, st.Reverting)
	assert.Nil(t, st.ZScores)
}

func TestAnalyzeGatesZScoresOnCoMovement(t *testing.T) {
	// 5Y tracks 2Y one for one plus noise in the spread: slope near 1.
	twoY := []float64{3.8, 3.9, 4.0, 4.1, 4.2, 4.3}
	fiveY := []float64{4.0, 4.12, 4.19, 4.31, 4.40, 4.52}

	st, err := Analyze(twoY, fiveY)
	require.NoError(t, err)
	assert.Greater(t, st.Slope, MaxReversionSlope)
	assert.Greater(t, st.RSquared, 0.9)
	assert.False(t, st.Reverting)
	assert.Nil(t, st.ZScores)
}

func TestAnalyzeReversionZScores(t *testing.T) {
	// 2Y drifts while 5Y oscillates independently of it.
	twoY := []float64{4.00, 4.01, 4.02, 4.03, 4.04, 4.05, 4.06, 4.07}
	fiveY := []float64{4.20, 4.10, 4.20, 4.10, 4.20, 4.10, 4.20, 4.10}

	st, err := Analyze(twoY, fiveY)
	require.NoError(t, err)
	require.True(t, st.Reverting)
	require.Len(t, st.ZScores, len(twoY))

	var sum float64
	for i, z := range st.ZScores {
		assert.InDelta(t, (st.Spreads[i]-st.Mean)/st.StdDev, z, 1e-12)
		sum += z
	}
	assert.InDelta(t, 0.0, sum, 1e-9)
}

func TestAnalyzeConstantSpreadIsDegenerate(t *testing.T) {
	st, err := Analyze([]float64{4.0, 4.5, 5.0}, []float64{4.25, 4.75, 5.25})
	assert.True(t, errors.Is(err, models.ErrNumericalDegeneracy))
	assert.InDelta(t, 0.25, st.Mean, 1e-12)
	assert.Equal(t, 0.0, st.StdDev)
}

func TestRegressConstantTwoYear(t *testing.T) {
	_, _, _, err := Regress([]float64{4, 4, 4}, []float64{4.1, 4.2, 4.3})
	assert.True(t, errors.Is(err, models.ErrNumericalDegeneracy))
}

func TestZScore(t *testing.T) {
	z, err := ZScore(0.3, 0.1, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, z, 1e-12)

	_, err = ZScore(0.3, 0.1, 0)
	assert.True(t, errors.Is(err, models.ErrNumericalDegeneracy))
}

func TestAnalyzeObservations(t *testing.T) {
	obs := make([]models.YieldObservation, 3)
	for i := range obs {
		obs[i].Yields[models.Tenor2Y] = 4.0 + 0.1*float64(i)
		obs[i].Yields[models.Tenor5Y] = 4.2 - 0.05*float64(i*i)
	}
	twoY, fiveY := Legs(obs)
	assert.InDeltaSlice(t, []float64{4.0, 4.1, 4.2}, twoY, 1e-12)

	want, err := Analyze(twoY, fiveY)
	require.NoError(t, err)
	got, err := AnalyzeObservations(obs)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
