package fitting

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/internal/solver"
	"github.com/yazwaza/us-treasuries/pkg/models"
)

type minimizeCall struct {
	x0      []float64
	maxIter int
}

// fakeMinimizer records every call. By default it returns the start point
// unchanged; step shifts β0 of the result, and next overrides results in
// call order.
type fakeMinimizer struct {
	mu    sync.Mutex
	calls []minimizeCall
	step  float64
	next  []solver.Result
}

func (f *fakeMinimizer) Minimize(objective func([]float64) float64, x0 []float64, bounds []solver.Bound, maxIter int) (solver.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, minimizeCall{x0: append([]float64(nil), x0...), maxIter: maxIter})

	if len(f.next) > 0 {
		r := f.next[0]
		f.next = f.next[1:]
		return r, nil
	}
	x := append([]float64(nil), x0...)
	x[0] += f.step
	return solver.Result{X: x, F: objective(x), Converged: true, Iterations: 3}, nil
}

func (f *fakeMinimizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type countingObserver struct {
	mu    sync.Mutex
	tiers []models.Tier
}

func (o *countingObserver) ObserveFit(fit models.DayFit, _ time.Duration) {
	o.mu.Lock()
	o.tiers = append(o.tiers, fit.Tier)
	o.mu.Unlock()
}

func day(n int) time.Time {
	return time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// observationFrom builds an observation that the given parameters fit exactly.
func observationFrom(p []float64, n int) models.YieldObservation {
	return models.YieldObservation{Date: day(n), Yields: curve.Curve(p)}
}

func newTestDriver(t *testing.T, m Minimizer, opts ...Option) *Driver {
	t.Helper()
	d, err := NewDriver(DefaultConfig(models.ModelNSS), m, opts...)
	require.NoError(t, err)
	return d
}

func TestGoodFitUsesSingleQuickCall(t *testing.T) {
	fm := &fakeMinimizer{}
	d := newTestDriver(t, fm)

	obs := observationFrom(DefaultColdStart(models.ModelNSS), 0)
	fit, next, err := d.FitDay(State{}, obs)
	require.NoError(t, err)

	require.Equal(t, 1, fm.callCount())
	assert.Equal(t, 50, fm.calls[0].maxIter)
	assert.Equal(t, models.TierQuick, fit.Tier)
	assert.InDelta(t, 0, fit.SSR, 1e-20)
	assert.Equal(t, 1.0, fit.RSquared)
	assert.Equal(t, []float64(fit.Params), []float64(next.Seed))
}

func TestMidRegionAboveAcceptableEscalatesToIntensive(t *testing.T) {
	fm := &fakeMinimizer{}
	d := newTestDriver(t, fm)

	obs := observationFrom(DefaultColdStart(models.ModelNSS), 0)
	obs.Yields[models.Tenor5Y] += 0.5 // mid SSR 0.25

	fit, _, err := d.FitDay(State{}, obs)
	require.NoError(t, err)

	require.Equal(t, 2, fm.callCount())
	assert.Equal(t, 50, fm.calls[0].maxIter)
	assert.Equal(t, 1000, fm.calls[1].maxIter)
	assert.Equal(t, models.TierIntensive, fit.Tier)
	assert.Equal(t, 6, fit.Iterations)
	// Refinement starts from the quick pass result.
	assert.Equal(t, fm.calls[0].x0, fm.calls[1].x0)
}

func TestShortRegionBetweenThresholdsIsModerate(t *testing.T) {
	fm := &fakeMinimizer{}
	d := newTestDriver(t, fm)

	obs := observationFrom(DefaultColdStart(models.ModelNSS), 0)
	obs.Yields[0] += 0.3 // short SSR 0.09

	fit, _, err := d.FitDay(State{}, obs)
	require.NoError(t, err)
	require.Equal(t, 2, fm.callCount())
	assert.Equal(t, 200, fm.calls[1].maxIter)
	assert.Equal(t, models.TierModerate, fit.Tier)
	assert.InDelta(t, 0.09, fit.Regions.Short, 1e-9)
}

func TestRefinementKeepsBetterResult(t *testing.T) {
	cold := DefaultColdStart(models.ModelNSS)
	obs := observationFrom(cold, 0)
	obs.Yields[models.Tenor10Y] += 0.6

	quick := solver.Result{X: cold, F: 1.0, Converged: true, Iterations: 50}
	worse := solver.Result{X: []float64{5, -1, -2, 1, 1.1, 0.1}, F: 9.0, Converged: false, Iterations: 1000}
	fm := &fakeMinimizer{next: []solver.Result{quick, worse}}
	d := newTestDriver(t, fm)

	fit, _, err := d.FitDay(State{}, obs)
	require.NoError(t, err)
	assert.Equal(t, models.TierIntensive, fit.Tier)
	assert.Equal(t, cold, []float64(fit.Params))
	assert.Equal(t, 1.0, fit.Objective)
	assert.True(t, fit.Converged)
	assert.Equal(t, 1050, fit.Iterations)
}

func TestWarmStartSeedIsClampedInsideBounds(t *testing.T) {
	fm := &fakeMinimizer{}
	d := newTestDriver(t, fm)

	seed := models.CurveParams{0.5, -1.2, -2.5, 1.5, 1.2, 0.41} // β0 below 1, λ1 above 0.4
	_, _, err := d.FitDay(State{Seed: seed}, observationFrom(DefaultColdStart(models.ModelNSS), 0))
	require.NoError(t, err)

	x0 := fm.calls[0].x0
	bounds := DefaultBounds(models.ModelNSS)
	for i, b := range bounds {
		assert.True(t, b.Contains(x0[i]), "x0[%d]=%v outside %v", i, x0[i], b)
	}
	assert.InDelta(t, 1.01, x0[0], 1e-12)
	assert.InDelta(t, 0.39, x0[5], 1e-12)
	assert.Equal(t, 0.5, seed[0], "caller's seed must not be modified")
}

func TestSeriesChainsWarmStarts(t *testing.T) {
	fm := &fakeMinimizer{step: 0.001}
	obsv := &countingObserver{}
	d := newTestDriver(t, fm, WithObserver(obsv))

	cold := DefaultColdStart(models.ModelNSS)
	series := []models.YieldObservation{observationFrom(cold, 0), observationFrom(cold, 1), observationFrom(cold, 2)}
	fits, summary, err := d.FitSeries(series)
	require.NoError(t, err)
	require.Len(t, fits, 3)

	assert.Equal(t, cold, fm.calls[0].x0)
	for i := 1; i < 3; i++ {
		assert.Equal(t, []float64(fits[i-1].Params), fm.calls[i].x0, "day %d seed", i)
		assert.Equal(t, series[i].Date, fits[i].Date)
	}
	assert.Equal(t, 3, summary.Quick)
	assert.Equal(t, 3, summary.Total())
	assert.Len(t, obsv.tiers, 3)
}

func TestNonConvergenceIsRecorded(t *testing.T) {
	cold := DefaultColdStart(models.ModelNSS)
	fm := &fakeMinimizer{next: []solver.Result{{X: cold, F: 0, Converged: false, Iterations: 50}}}
	d := newTestDriver(t, fm)

	fit, _, err := d.FitDay(State{}, observationFrom(cold, 0))
	require.NoError(t, err)
	assert.False(t, fit.Converged)
	assert.Equal(t, models.TierQuick, fit.Tier)
}

func TestNonPositiveDecayIsDegenerate(t *testing.T) {
	cold := DefaultColdStart(models.ModelNSS)
	bad := []float64{4.5, -1.2, -2.5, 1.5, 1.2, -0.1}
	fm := &fakeMinimizer{next: []solver.Result{{X: bad, F: 0, Converged: true}}}
	d := newTestDriver(t, fm)

	_, state, err := d.FitDay(State{}, observationFrom(cold, 0))
	assert.True(t, errors.Is(err, models.ErrNumericalDegeneracy))
	assert.True(t, state.Cold())
}

func TestSeriesValidation(t *testing.T) {
	d := newTestDriver(t, &fakeMinimizer{})
	cold := DefaultColdStart(models.ModelNSS)

	_, _, err := d.FitSeries(nil)
	assert.True(t, errors.Is(err, models.ErrValidation), "empty")

	_, _, err = d.FitSeries([]models.YieldObservation{observationFrom(cold, 2), observationFrom(cold, 1)})
	assert.True(t, errors.Is(err, models.ErrValidation), "unordered")

	bad := observationFrom(cold, 0)
	bad.Yields[3] = math.NaN()
	_, _, err = d.FitSeries([]models.YieldObservation{bad})
	assert.True(t, errors.Is(err, models.ErrValidation), "NaN yield")
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig(models.ModelNSS)
	require.NoError(t, cfg.Validate())
	require.NoError(t, DefaultConfig(models.ModelNS).Validate())

	cfg.ColdStart = cfg.ColdStart[:4]
	assert.True(t, errors.Is(cfg.Validate(), models.ErrValidation))

	cfg = DefaultConfig(models.ModelNSS)
	cfg.Bounds[2] = solver.Bound{Lower: 1, Upper: -1}
	assert.True(t, errors.Is(cfg.Validate(), models.ErrValidation))

	cfg = DefaultConfig(models.ModelNSS)
	cfg.AcceptableThreshold = 0.01
	assert.True(t, errors.Is(cfg.Validate(), models.ErrValidation))

	_, err := NewDriver(DefaultConfig(models.ModelNSS), nil)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestFitSeriesChunkedColdStartsEachChunk(t *testing.T) {
	fm := &fakeMinimizer{step: 0.001}
	cfg := DefaultConfig(models.ModelNSS)
	cfg.ChunkSize = 3
	cfg.Workers = 2
	d, err := NewDriver(cfg, fm)
	require.NoError(t, err)

	cold := DefaultColdStart(models.ModelNSS)
	series := make([]models.YieldObservation, 7)
	for i := range series {
		series[i] = observationFrom(cold, i)
	}

	fits, summary, err := d.FitSeriesChunked(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, fits, 7)
	for i, f := range fits {
		assert.Equal(t, series[i].Date, f.Date)
	}
	assert.Equal(t, 7, summary.Total())

	var coldCalls int
	for _, c := range fm.calls {
		if c.x0[0] == cold[0] {
			coldCalls++
		}
	}
	assert.Equal(t, 3, coldCalls)

	// Within a chunk the seed chains.
	assert.InDelta(t, cold[0]+0.003, fits[2].Params[0], 1e-12)
	assert.InDelta(t, cold[0]+0.001, fits[3].Params[0], 1e-12)
}

func TestFitSeriesChunkedHonorsCancellation(t *testing.T) {
	cfg := DefaultConfig(models.ModelNSS)
	cfg.ChunkSize = 2
	d, err := NewDriver(cfg, &fakeMinimizer{})
	require.NoError(t, err)

	cold := DefaultColdStart(models.ModelNSS)
	series := []models.YieldObservation{observationFrom(cold, 0), observationFrom(cold, 1), observationFrom(cold, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = d.FitSeriesChunked(ctx, series)
	assert.ErrorIs(t, err, context.Canceled)
}

// ── Real optimizer scenarios ──

// tightDriver uses the real optimizer with thresholds low enough that every
// day runs the refinement passes.
func tightDriver(t *testing.T, model models.CurveModel) *Driver {
	t.Helper()
	cfg := DefaultConfig(model)
	cfg.GoodThreshold = 1e-8
	cfg.AcceptableThreshold = 1e-6
	d, err := NewDriver(cfg, solver.New(solver.DefaultSettings()))
	require.NoError(t, err)
	return d
}

func flatObservation(level float64) models.YieldObservation {
	var obs models.YieldObservation
	obs.Date = day(0)
	for i := range obs.Yields {
		obs.Yields[i] = level
	}
	return obs
}

func TestFlatCurveNelsonSiegel(t *testing.T) {
	d := tightDriver(t, models.ModelNS)

	fit, _, err := d.FitDay(State{}, flatObservation(4.30))
	require.NoError(t, err)

	assert.Less(t, fit.SSR, 1e-3)
	assert.InDelta(t, 4.30, fit.Params.Level(), 0.05)
	assert.InDelta(t, 0.0, fit.Params.Slope(), 0.1)
	assert.InDelta(t, 0.0, fit.Params.Curvature(), 0.25)
	assert.True(t, fit.Degenerate)
	assert.Equal(t, 0.0, fit.RSquared)
}

func TestFlatCurveSvensson(t *testing.T) {
	d := tightDriver(t, models.ModelNSS)

	fit, _, err := d.FitDay(State{}, flatObservation(4.30))
	require.NoError(t, err)

	assert.Less(t, fit.SSR, 1e-2)
	for i, y := range fit.Fitted {
		assert.InDelta(t, 4.30, y, 0.05, "tenor %s", models.TenorLabels[i])
	}

	// A flat curve is all level: no slope or curvature loading.
	require.Len(t, fit.Params, 6)
	assert.InDelta(t, 4.30, fit.Params.Level(), 1e-3)
	assert.InDelta(t, 0.0, fit.Params.Slope(), 1e-3)
	assert.InDelta(t, 0.0, fit.Params.Curvature(), 1e-3)
}

func TestRecoversKnownCurve(t *testing.T) {
	truth := []float64{4.2, -0.8, -1.5, 1.0, 1.5, 0.2}
	d := tightDriver(t, models.ModelNSS)

	fits, _, err := d.FitSeries([]models.YieldObservation{observationFrom(truth, 0), observationFrom(truth, 1)})
	require.NoError(t, err)
	for _, f := range fits {
		assert.Greater(t, f.RSquared, 0.99)
		assert.False(t, f.Degenerate)
	}
}
