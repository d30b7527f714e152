// Package butterfly prices the 2s5s10s butterfly from market yields and
// fitted curves, and regresses a hedge for it over a batch of days.
package butterfly

import (
	"errors"
	"fmt"
	"sync"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/pkg/models"
)

// MarketSpread is the default-weighted fly: -short + 2·mid - long.
func MarketSpread(short, mid, long float64) float64 {
	return models.DefaultButterflyWeights.Apply(short, mid, long)
}

// ModelSpread applies the same combination to a fitted curve at the 2Y, 5Y
// and 10Y grid points.
func ModelSpread(c [models.NumTenors]float64) float64 {
	return MarketSpread(c[models.Tenor2Y], c[models.Tenor5Y], c[models.Tenor10Y])
}

// Spreads pairs each observation with its fit and prices both flies.
// The two series must be the same non-zero length and on the same dates.
func Spreads(obs []models.YieldObservation, fits []models.DayFit) ([]models.ButterflyPoint, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: empty observation series", models.ErrValidation)
	}
	if len(obs) != len(fits) {
		return nil, fmt.Errorf("%w: %d observations but %d fits", models.ErrValidation, len(obs), len(fits))
	}
	points := make([]models.ButterflyPoint, len(obs))
	for i, o := range obs {
		if !o.Date.Equal(fits[i].Date) {
			return nil, fmt.Errorf("%w: observation %d dated %s but fit dated %s",
				models.ErrValidation, i, o.Date.Format("2006-01-02"), fits[i].Date.Format("2006-01-02"))
		}
		points[i] = models.ButterflyPoint{
			Date:   o.Date,
			Market: ModelSpread(o.Yields),
			Model:  ModelSpread(curve.Curve(fits[i].Params)),
		}
	}
	return points, nil
}

// Features extracts the hedge regressors from market yields:
// curve slope (2Y - 10Y) and curve level (5Y).
func Features(obs []models.YieldObservation) [][2]float64 {
	out := make([][2]float64, len(obs))
	for i, o := range obs {
		out[i] = [2]float64{
			o.Yields[models.Tenor2Y] - o.Yields[models.Tenor10Y],
			o.Yields[models.Tenor5Y],
		}
	}
	return out
}

// Engine owns the current hedge weights and regression model. Each Analyze
// call replaces both wholesale.
type Engine struct {
	mu      sync.RWMutex
	weights models.ButterflyWeights
	model   *models.RegressionModel
}

// NewEngine creates an engine holding the default (-1, 2, -1) weights.
func NewEngine() *Engine {
	return &Engine{weights: models.DefaultButterflyWeights}
}

// Weights returns the current leg weights.
func (e *Engine) Weights() models.ButterflyWeights {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights
}

// Model returns the last fitted hedge regression, if any.
func (e *Engine) Model() (models.RegressionModel, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return models.RegressionModel{}, false
	}
	return *e.model, true
}

// Analyze runs the batch: spreads for every day, reversion statistics,
// one hedge regression of the model fly on (slope, level), weights
// (b_slope, 1, b_level), the hedged market fly and z-scores of the
// market-minus-model residual.
//
// Mismatched inputs return an empty analysis. A regression or z-score
// failure still returns the spreads and reversion statistics together with
// the error: the weights fall back to the default fly, ZScores is nil when
// the residual is constant, and the engine keeps its previous weights.
func (e *Engine) Analyze(obs []models.YieldObservation, fits []models.DayFit) (models.ButterflyAnalysis, error) {
	points, err := Spreads(obs, fits)
	if err != nil {
		return models.ButterflyAnalysis{}, err
	}

	market := make([]float64, len(points))
	model := make([]float64, len(points))
	residual := make([]float64, len(points))
	for i, p := range points {
		market[i] = p.Market
		model[i] = p.Model
		residual[i] = p.Residual()
	}

	reversion, err := MeanReversionStats(market, model)
	if err != nil {
		return models.ButterflyAnalysis{}, err
	}
	out := models.ButterflyAnalysis{
		Points:    points,
		Weights:   models.DefaultButterflyWeights,
		Reversion: reversion,
	}

	reg, regErr := HedgeRegression(Features(obs), model)
	if regErr == nil {
		out.Regression = reg
		out.Weights = models.ButterflyWeights{Short: reg.Coefficients[0], Mid: 1.0, Long: reg.Coefficients[1]}
		e.mu.Lock()
		e.weights = out.Weights
		e.model = &reg
		e.mu.Unlock()
	} else {
		regErr = fmt.Errorf("hedge regression: %w", regErr)
	}

	out.HedgedSpread = make([]float64, len(obs))
	for i, o := range obs {
		out.HedgedSpread[i] = out.Weights.Apply(o.Yields[models.Tenor2Y], o.Yields[models.Tenor5Y], o.Yields[models.Tenor10Y])
	}

	z, zErr := ZScores(residual)
	if zErr == nil {
		out.ZScores = z
	} else {
		zErr = fmt.Errorf("residual z-scores: %w", zErr)
	}
	return out, errors.Join(regErr, zErr)
}

// IsDegenerate reports whether err came from degenerate input.
func IsDegenerate(err error) bool {
	return errors.Is(err, models.ErrNumericalDegeneracy)
}
