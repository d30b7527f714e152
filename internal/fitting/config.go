package fitting

import (
	"fmt"
	"math"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/internal/solver"
	"github.com/yazwaza/us-treasuries/pkg/models"
)

// Config controls a fitting run.
type Config struct {
	Model models.CurveModel

	// Weighted selects the 10Y-weighted objective instead of plain SSR.
	Weighted        bool
	BenchmarkWeight float64

	// Iteration caps per tier.
	QuickIterations     int
	ModerateIterations  int
	IntensiveIterations int

	// Every curve region must be under a threshold to settle on that tier.
	GoodThreshold       float64
	AcceptableThreshold float64

	ClampEpsilon float64
	ColdStart    []float64
	Bounds       []solver.Bound

	// ChunkSize and Workers only apply to FitSeriesChunked. A zero
	// ChunkSize keeps the sequential warm-start chain.
	ChunkSize int
	Workers   int
}

// DefaultChunkSize is the chunk length used when parallel fitting is
// switched on without an explicit size.
const DefaultChunkSize = 20

// DefaultConfig returns production settings for the given model.
func DefaultConfig(model models.CurveModel) Config {
	return Config{
		Model:               model,
		Weighted:            model == models.ModelNSS,
		BenchmarkWeight:     curve.DefaultBenchmarkWeight,
		QuickIterations:     50,
		ModerateIterations:  200,
		IntensiveIterations: 1000,
		GoodThreshold:       0.05,
		AcceptableThreshold: 0.15,
		ClampEpsilon:        solver.DefaultClampEpsilon,
		ColdStart:           DefaultColdStart(model),
		Bounds:              DefaultBounds(model),
		ChunkSize:           0,
		Workers:             4,
	}
}

// DefaultBounds returns the production parameter bounds.
func DefaultBounds(model models.CurveModel) []solver.Bound {
	if model == models.ModelNS {
		return []solver.Bound{
			{Lower: 1, Upper: 8},     // β0
			{Lower: -6, Upper: 6},    // β1
			{Lower: -8, Upper: 8},    // β2
			{Lower: 0.8, Upper: 3.5}, // λ
		}
	}
	return []solver.Bound{
		{Lower: 1, Upper: 8},      // β0
		{Lower: -6, Upper: 6},     // β1
		{Lower: -8, Upper: 8},     // β2
		{Lower: -6, Upper: 6},     // β3
		{Lower: 0.8, Upper: 3.5},  // λ0
		{Lower: 0.05, Upper: 0.4}, // λ1
	}
}

// DefaultColdStart returns the first-day starting guess.
func DefaultColdStart(model models.CurveModel) []float64 {
	if model == models.ModelNS {
		return []float64{4.5, -1.2, -2.5, 1.2}
	}
	return []float64{4.5, -1.2, -2.5, 1.5, 1.2, 0.12}
}

// Validate checks the config for internal consistency.
func (c Config) Validate() error {
	if c.Model != models.ModelNS && c.Model != models.ModelNSS {
		return fmt.Errorf("%w: unknown model %q", models.ErrValidation, c.Model)
	}
	n := c.Model.NumParams()
	if len(c.ColdStart) != n {
		return fmt.Errorf("%w: cold start has %d values, %s needs %d", models.ErrValidation, len(c.ColdStart), c.Model, n)
	}
	if len(c.Bounds) != n {
		return fmt.Errorf("%w: %d bounds, %s needs %d", models.ErrValidation, len(c.Bounds), c.Model, n)
	}
	for i, b := range c.Bounds {
		if !(b.Lower < b.Upper) {
			return fmt.Errorf("%w: bound %d lower %g >= upper %g", models.ErrValidation, i, b.Lower, b.Upper)
		}
	}
	if c.QuickIterations <= 0 || c.ModerateIterations <= 0 || c.IntensiveIterations <= 0 {
		return fmt.Errorf("%w: iteration caps must be positive", models.ErrValidation)
	}
	if !(c.GoodThreshold > 0) || !(c.AcceptableThreshold >= c.GoodThreshold) {
		return fmt.Errorf("%w: thresholds need 0 < good (%g) <= acceptable (%g)",
			models.ErrValidation, c.GoodThreshold, c.AcceptableThreshold)
	}
	if c.Weighted && (!(c.BenchmarkWeight > 0) || math.IsInf(c.BenchmarkWeight, 0)) {
		return fmt.Errorf("%w: benchmark weight must be positive, got %g", models.ErrValidation, c.BenchmarkWeight)
	}
	return nil
}
