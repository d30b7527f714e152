// Package fitting fits a curve to every day of a yield series, chaining
// each day's parameters into the next day's starting point and escalating
// the iteration budget only on days whose quick fit is poor.
package fitting

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/internal/solver"
	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Collaborators
// ════════════════════════════════════════════════════════════════════

// Minimizer is the optimizer contract the driver depends on.
// *solver.Optimizer satisfies it.
type Minimizer interface {
	Minimize(objective func([]float64) float64, x0 []float64, bounds []solver.Bound, maxIter int) (solver.Result, error)
}

// Observer receives every completed day fit.
type Observer interface {
	ObserveFit(fit models.DayFit, elapsed time.Duration)
}

// State carries the warm-start seed from one day to the next. The zero
// value means cold start.
type State struct {
	Seed models.CurveParams
}

// Cold reports whether the next fit will use the cold-start guess.
func (s State) Cold() bool { return len(s.Seed) == 0 }

// ════════════════════════════════════════════════════════════════════
// Driver
// ════════════════════════════════════════════════════════════════════

// Driver runs per-day fits. It keeps no state between calls; the warm-start
// seed travels in State.
type Driver struct {
	cfg      Config
	min      Minimizer
	logger   *zap.Logger
	observer Observer
	weights  *[models.NumTenors]float64
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver registers an observer for completed fits.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observer = o }
}

// NewDriver validates cfg and creates a Driver.
func NewDriver(cfg Config, m Minimizer, opts ...Option) (*Driver, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: minimizer is nil", models.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{cfg: cfg, min: m, logger: zap.NewNop()}
	if cfg.Weighted {
		w := curve.Weights(cfg.BenchmarkWeight)
		d.weights = &w
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the driver configuration.
func (d *Driver) Config() Config { return d.cfg }

// FitDay fits one observation. It returns the fit and the state to pass to
// the next day. Non-convergence is reported on the fit, not as an error.
func (d *Driver) FitDay(state State, obs models.YieldObservation) (models.DayFit, State, error) {
	start := time.Now()
	if err := validateObservation(obs); err != nil {
		return models.DayFit{}, state, err
	}

	seed := d.cfg.ColdStart
	if len(state.Seed) == d.cfg.Model.NumParams() {
		seed = state.Seed
	}
	seed = solver.Clamp(seed, d.cfg.Bounds, d.cfg.ClampEpsilon)
	objective := curve.Objective(obs.Yields, d.weights)

	// Quick pass
	best, err := d.min.Minimize(objective, seed, d.cfg.Bounds, d.cfg.QuickIterations)
	if err != nil {
		return models.DayFit{}, state, fmt.Errorf("quick pass %s: %w", utils.FormatDate(obs.Date), err)
	}
	iterations := best.Iterations

	tier, maxIter := d.selectTier(curve.Regional(best.X, obs.Yields))
	if tier != models.TierQuick {
		refined, err := d.min.Minimize(objective, best.X, d.cfg.Bounds, maxIter)
		if err != nil {
			return models.DayFit{}, state, fmt.Errorf("%s pass %s: %w", tier, utils.FormatDate(obs.Date), err)
		}
		iterations += refined.Iterations
		if refined.F <= best.F {
			best = refined
		}
	}

	params := models.CurveParams(best.X).Clone()
	if !curve.DecaysPositive(params) {
		return models.DayFit{}, state, fmt.Errorf("%w: %s fitted decay %v is not positive",
			models.ErrNumericalDegeneracy, utils.FormatDate(obs.Date), params.Decays())
	}

	fit := d.describe(obs, params, best, tier, iterations)
	elapsed := time.Since(start)

	d.logger.Debug("fitted day",
		zap.String("date", utils.FormatDate(obs.Date)),
		zap.Stringer("tier", tier),
		zap.Float64("objective", fit.Objective),
		zap.Float64("r_squared", fit.RSquared),
		zap.Float64("ssr_short", fit.Regions.Short),
		zap.Float64("ssr_mid", fit.Regions.Mid),
		zap.Float64("ssr_long", fit.Regions.Long),
		zap.Int("iterations", iterations),
		zap.Bool("converged", fit.Converged),
		zap.Duration("elapsed", elapsed),
	)
	if len(fit.Issues) > 0 {
		d.logger.Warn("fitted parameters outside validation ranges",
			zap.String("date", utils.FormatDate(obs.Date)),
			zap.Strings("issues", fit.Issues),
		)
	}
	if d.observer != nil {
		d.observer.ObserveFit(fit, elapsed)
	}
	return fit, State{Seed: params.Clone()}, nil
}

// selectTier picks the effort level from the quick pass diagnostics.
func (d *Driver) selectTier(r models.RegionalSSR) (models.Tier, int) {
	switch {
	case r.AllBelow(d.cfg.GoodThreshold):
		return models.TierQuick, 0
	case r.AllBelow(d.cfg.AcceptableThreshold):
		return models.TierModerate, d.cfg.ModerateIterations
	default:
		return models.TierIntensive, d.cfg.IntensiveIterations
	}
}

func (d *Driver) describe(obs models.YieldObservation, params models.CurveParams, res solver.Result, tier models.Tier, iterations int) models.DayFit {
	fitted := curve.Curve(params)
	// Lengths match by construction, so RSquared cannot fail here.
	r2, _ := curve.RSquared(obs.Yields[:], fitted[:])
	return models.DayFit{
		Date:       obs.Date,
		Params:     params,
		Objective:  res.F,
		SSR:        curve.SSR(params, obs.Yields),
		RSquared:   r2,
		Converged:  res.Converged,
		Iterations: iterations,
		Tier:       tier,
		Regions:    curve.Regional(params, obs.Yields),
		Observed:   obs.Yields,
		Fitted:     fitted,
		Degenerate: curve.IsFlat(obs.Yields[:]),
		Issues:     curve.Validate(params),
	}
}

// FitSeries fits every observation in order, chaining warm starts. It
// returns one fit per observation and the tier counts.
func (d *Driver) FitSeries(series []models.YieldObservation) ([]models.DayFit, models.TierSummary, error) {
	var summary models.TierSummary
	if err := validateSeries(series); err != nil {
		return nil, summary, err
	}

	fits := make([]models.DayFit, 0, len(series))
	var state State
	for _, obs := range series {
		fit, next, err := d.FitDay(state, obs)
		if err != nil {
			return nil, summary, err
		}
		fits = append(fits, fit)
		summary.Add(fit.Tier)
		state = next
	}

	d.logger.Info("fitted series",
		zap.Int("days", len(fits)),
		zap.Int("quick", summary.Quick),
		zap.Int("moderate", summary.Moderate),
		zap.Int("intensive", summary.Intensive),
	)
	return fits, summary, nil
}

func validateObservation(obs models.YieldObservation) error {
	for i, y := range obs.Yields {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return fmt.Errorf("%w: %s %s yield is %v",
				models.ErrValidation, utils.FormatDate(obs.Date), models.TenorLabels[i], y)
		}
	}
	return nil
}

func validateSeries(series []models.YieldObservation) error {
	if len(series) == 0 {
		return fmt.Errorf("%w: empty yield series", models.ErrValidation)
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Date.After(series[i-1].Date) {
			return fmt.Errorf("%w: series not in ascending date order at %s",
				models.ErrValidation, utils.FormatDate(series[i].Date))
		}
	}
	return nil
}
