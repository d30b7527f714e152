package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/internal/fitting"
	"github.com/yazwaza/us-treasuries/internal/marketdata"
	"github.com/yazwaza/us-treasuries/internal/observability"
	"github.com/yazwaza/us-treasuries/internal/solver"
	"github.com/yazwaza/us-treasuries/pkg/models"
)

// memSource serves a fixed series.
type memSource struct {
	obs   []models.YieldObservation
	err   error
	loads int
}

func (s *memSource) Name() string { return "memory" }

func (s *memSource) Load(context.Context) ([]models.YieldObservation, error) {
	s.loads++
	return s.obs, s.err
}

// echoMinimizer returns its start point as the optimum.
type echoMinimizer struct{}

func (echoMinimizer) Minimize(objective func([]float64) float64, x0 []float64, _ []solver.Bound, _ int) (solver.Result, error) {
	x := append([]float64(nil), x0...)
	return solver.Result{X: x, F: objective(x), Converged: true, Iterations: 1}, nil
}

type countingObserver struct{ n atomic.Int64 }

func (o *countingObserver) ObserveFit(models.DayFit, time.Duration) { o.n.Add(1) }

func day(n int) time.Time {
	return time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// nssSeries builds n consecutive days of NSS curves with level, slope and
// curvature moving independently.
func nssSeries(n int) []models.YieldObservation {
	out := make([]models.YieldObservation, n)
	for i := range out {
		f := float64(i)
		p := []float64{4.3 + 0.02*f, -0.9 + 0.2*math.Sin(f), -1.8 + 0.3*math.Cos(0.7*f), 1.2, 1.6, 0.15}
		out[i] = models.YieldObservation{Date: day(i), Yields: curve.Curve(p)}
	}
	return out
}

func flatSeries(n int) []models.YieldObservation {
	out := make([]models.YieldObservation, n)
	for i := range out {
		var y [models.NumTenors]float64
		for j := range y {
			y[j] = 4.25
		}
		out[i] = models.YieldObservation{Date: day(i), Yields: y}
	}
	return out
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = New(Options{Source: &memSource{}, WindowMonths: -1})
	assert.True(t, errors.Is(err, models.ErrValidation))

	bad := fitting.DefaultConfig(models.ModelNS)
	bad.QuickIterations = 0
	_, err = New(Options{Source: &memSource{}, Fitting: bad})
	assert.Error(t, err)

	p, err := New(Options{Source: &memSource{}})
	require.NoError(t, err)
	assert.Equal(t, models.ModelNSS, p.opts.Fitting.Model)
	assert.Equal(t, solver.BoundedDescent, p.opts.Solver.Strategy)
}

func TestRunEndToEnd(t *testing.T) {
	src := &memSource{obs: nssSeries(12)}
	metrics := observability.NewMetrics("test")
	p, err := New(Options{Source: src, Metrics: metrics})
	require.NoError(t, err)

	_, ok := p.Last()
	assert.False(t, ok)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, models.ModelNSS, report.Model)
	assert.Equal(t, "bounded", report.Strategy)
	assert.Equal(t, day(0), report.Start)
	assert.Equal(t, day(11), report.End)
	require.Len(t, report.Fits, 12)
	assert.Equal(t, 12, report.Tiers.Total())
	assert.Greater(t, report.MeanRSquared(), 0.95)

	require.NotNil(t, report.Butterfly)
	assert.Len(t, report.Butterfly.Points, 12)
	assert.Equal(t, 1.0, report.Butterfly.Weights.Mid)
	assert.Equal(t, report.Butterfly.Weights, p.Engine().Weights())
	require.NotNil(t, report.Spread2s5s)
	assert.Len(t, report.Spread2s5s.Spreads, 12)

	last, ok := p.Last()
	require.True(t, ok)
	assert.Same(t, report, last)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 12.0, testutil.ToFloat64(metrics.ObservationsLoaded))
}

func TestRunChunked(t *testing.T) {
	cfg := fitting.DefaultConfig(models.ModelNSS)
	cfg.ChunkSize = 4
	cfg.Workers = 2
	obs := &countingObserver{}
	metrics := observability.NewMetrics("test")
	p, err := New(Options{
		Source:    &memSource{obs: nssSeries(10)},
		Fitting:   cfg,
		Minimizer: echoMinimizer{},
		Metrics:   metrics,
		Observer:  obs,
	})
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Fits, 10)
	for i, f := range report.Fits {
		assert.Equal(t, day(i), f.Date)
	}
	assert.Equal(t, int64(10), obs.n.Load())
	var counted float64
	for _, tier := range []string{"quick", "moderate", "intensive"} {
		counted += testutil.ToFloat64(metrics.FitsTotal.WithLabelValues(tier, "true"))
	}
	assert.Equal(t, 10.0, counted)
}

func TestRunFlatSeriesWarns(t *testing.T) {
	p, err := New(Options{Source: &memSource{obs: flatSeries(6)}, Minimizer: echoMinimizer{}})
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	for _, f := range report.Fits {
		assert.True(t, f.Degenerate)
	}
	require.NotNil(t, report.Butterfly)
	assert.Len(t, report.Butterfly.Points, 6)
	assert.Equal(t, models.DefaultButterflyWeights, report.Butterfly.Weights)
	assert.Nil(t, report.Butterfly.ZScores)
	require.NotNil(t, report.Spread2s5s)
	assert.Equal(t, 0.0, report.Spread2s5s.StdDev)
	assert.Nil(t, report.Spread2s5s.ZScores)

	joined := strings.Join(report.Warnings, "\n")
	assert.Contains(t, joined, "flat observed curve")
	assert.Contains(t, joined, "butterfly hedge regression")
	assert.Contains(t, joined, "butterfly residual z-scores")
	assert.Contains(t, joined, "2s5s spread")
}

func TestRunFlatSeriesSpreadsNearZero(t *testing.T) {
	obs := flatSeries(5)
	for i := range obs {
		for j := range obs[i].Yields {
			obs[i].Yields[j] = 4.30
		}
	}
	p, err := New(Options{Source: &memSource{obs: obs}})
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Butterfly)

	for _, pt := range report.Butterfly.Points {
		assert.InDelta(t, 0.0, pt.Market, 1e-12)
		assert.InDelta(t, 0.0, pt.Model, 1e-3)
	}
	assert.InDelta(t, 0.0, report.Butterfly.Reversion.Mean, 1e-3)
	assert.InDelta(t, 0.0, report.Butterfly.Reversion.StdDev, 1e-3)
	assert.Equal(t, 5, report.Butterfly.Reversion.N)
	assert.Contains(t, strings.Join(report.Warnings, "\n"), "butterfly hedge regression")
}

func TestRunTooFewDaysForRegression(t *testing.T) {
	p, err := New(Options{Source: &memSource{obs: nssSeries(2)}, Minimizer: echoMinimizer{}})
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Butterfly)
	assert.Len(t, report.Butterfly.Points, 2)
	assert.Equal(t, 2, report.Butterfly.Reversion.N)
	assert.Equal(t, 0, report.Butterfly.Regression.Observations)
	assert.Contains(t, strings.Join(report.Warnings, "\n"), "butterfly hedge regression")
	assert.NotNil(t, report.Spread2s5s)
}

// seedRecorder records every start point and nudges the level so each
// result differs from its seed.
type seedRecorder struct {
	mu    sync.Mutex
	seeds [][]float64
}

func (r *seedRecorder) Minimize(objective func([]float64) float64, x0 []float64, _ []solver.Bound, _ int) (solver.Result, error) {
	r.mu.Lock()
	r.seeds = append(r.seeds, append([]float64(nil), x0...))
	r.mu.Unlock()
	x := append([]float64(nil), x0...)
	x[0] += 0.01
	return solver.Result{X: x, F: objective(x), Converged: true, Iterations: 1}, nil
}

func TestRunDefaultChainsWarmStarts(t *testing.T) {
	rec := &seedRecorder{}
	p, err := New(Options{Source: &memSource{obs: nssSeries(25)}, Minimizer: rec})
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Fits, 25)

	cold := fitting.DefaultColdStart(models.ModelNSS)
	var coldSeeds int
	for _, seed := range rec.seeds {
		if assert.ObjectsAreEqual(cold, seed) {
			coldSeeds++
		}
	}
	assert.Equal(t, 1, coldSeeds, "only the first day should start cold")

	for i := 1; i < len(report.Fits); i++ {
		assert.Greater(t, report.Fits[i].Params[0], report.Fits[i-1].Params[0],
			"day %d should continue from day %d", i, i-1)
	}
}

func TestRunSourceError(t *testing.T) {
	metrics := observability.NewMetrics("test")
	p, err := New(Options{Source: &memSource{err: marketdata.ErrNoData}, Metrics: metrics})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.True(t, errors.Is(err, marketdata.ErrNoData))
	_, ok := p.Last()
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("error")))
}

func TestRunCancelled(t *testing.T) {
	p, err := New(Options{Source: &memSource{obs: nssSeries(5)}, Minimizer: echoMinimizer{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadWindow(t *testing.T) {
	var obs []models.YieldObservation
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		o := nssSeries(1)[0]
		o.Date = base.AddDate(0, i, 0)
		obs = append(obs, o)
	}
	p, err := New(Options{Source: &memSource{obs: obs}, WindowMonths: 2})
	require.NoError(t, err)

	got, err := p.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, base.AddDate(0, 3, 0), got[0].Date)

	_, err = (&Pipeline{opts: Options{Source: &memSource{}}}).Load(context.Background())
	assert.True(t, errors.Is(err, marketdata.ErrNoData))
}
