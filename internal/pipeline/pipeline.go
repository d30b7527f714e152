// Package pipeline runs one analysis end to end: load yields, window them,
// fit every day, then derive the butterfly and 2s5s statistics from the same
// days.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yazwaza/us-treasuries/internal/analysis/butterfly"
	"github.com/yazwaza/us-treasuries/internal/analysis/spread"
	"github.com/yazwaza/us-treasuries/internal/fitting"
	"github.com/yazwaza/us-treasuries/internal/marketdata"
	"github.com/yazwaza/us-treasuries/internal/observability"
	"github.com/yazwaza/us-treasuries/internal/solver"
	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Configuration
// ════════════════════════════════════════════════════════════════════

// Options wires a Pipeline. Source is required; everything else has a
// default.
type Options struct {
	Source       marketdata.Source
	WindowMonths int // 0 keeps the whole series
	Fitting      fitting.Config
	Solver       solver.Settings
	Logger       *zap.Logger
	Metrics      *observability.Metrics

	// Observer receives every day fit alongside Metrics, e.g. a progress
	// stream.
	Observer fitting.Observer

	// Minimizer replaces the optimizer built from Solver.
	Minimizer fitting.Minimizer
}

// Pipeline runs analyses and keeps the most recent report. Runs are
// serialized.
type Pipeline struct {
	opts   Options
	engine *butterfly.Engine
	logger *zap.Logger

	mu   sync.Mutex // held for a whole run
	lmu  sync.RWMutex
	last *models.AnalysisReport
}

// New validates opts and creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: no market data source", models.ErrValidation)
	}
	if opts.WindowMonths < 0 {
		return nil, fmt.Errorf("%w: window of %d months", models.ErrValidation, opts.WindowMonths)
	}
	if opts.Fitting.Model == "" {
		opts.Fitting = fitting.DefaultConfig(models.ModelNSS)
	}
	if err := opts.Fitting.Validate(); err != nil {
		return nil, err
	}
	if opts.Solver == (solver.Settings{}) {
		opts.Solver = solver.DefaultSettings()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		opts:   opts,
		engine: butterfly.NewEngine(),
		logger: logger,
	}, nil
}

// Engine returns the butterfly engine whose weights track the last
// successful analysis.
func (p *Pipeline) Engine() *butterfly.Engine { return p.engine }

// Last returns the report of the most recent successful run.
func (p *Pipeline) Last() (*models.AnalysisReport, bool) {
	p.lmu.RLock()
	defer p.lmu.RUnlock()
	return p.last, p.last != nil
}

// ════════════════════════════════════════════════════════════════════
// Run
// ════════════════════════════════════════════════════════════════════

// Load reads the source and applies the configured window.
func (p *Pipeline) Load(ctx context.Context) ([]models.YieldObservation, error) {
	obs, err := p.opts.Source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p.opts.Source.Name(), err)
	}
	obs = marketdata.Window(obs, p.opts.WindowMonths)
	if len(obs) == 0 {
		return nil, fmt.Errorf("load %s: %w", p.opts.Source.Name(), marketdata.ErrNoData)
	}
	return obs, nil
}

// Run performs a full analysis. Degenerate butterfly or 2s5s inputs become
// report warnings; load, validation and fitting failures abort the run.
func (p *Pipeline) Run(ctx context.Context) (report *models.AnalysisReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	runID := uuid.NewString()
	log := p.logger.With(zap.String("run_id", runID))
	log.Info("analysis started",
		zap.String("source", p.opts.Source.Name()),
		zap.String("model", string(p.opts.Fitting.Model)),
		zap.String("strategy", p.opts.Solver.Strategy.String()),
		zap.Int("window_months", p.opts.WindowMonths),
	)
	defer func() {
		elapsed := time.Since(start)
		if p.opts.Metrics != nil {
			p.opts.Metrics.ObserveRun(report, elapsed, err)
		}
		if err != nil {
			log.Error("analysis failed", zap.Duration("elapsed", elapsed), zap.Error(err))
			return
		}
		log.Info("analysis finished",
			zap.Duration("elapsed", elapsed),
			zap.Int("days", len(report.Fits)),
			zap.Int("warnings", len(report.Warnings)),
		)
	}()

	obs, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}

	fits, tiers, err := p.fit(ctx, obs, log)
	if err != nil {
		return nil, err
	}

	report = &models.AnalysisReport{
		RunID:       runID,
		GeneratedAt: utils.NowET(),
		Model:       p.opts.Fitting.Model,
		Strategy:    p.opts.Solver.Strategy.String(),
		Start:       obs[0].Date,
		End:         obs[len(obs)-1].Date,
		Fits:        fits,
		Tiers:       tiers,
		Warnings:    fitWarnings(fits),
	}

	fly, err := p.engine.Analyze(obs, fits)
	switch {
	case err == nil:
		report.Butterfly = &fly
	case skippable(err) && len(fly.Points) > 0:
		// Spreads and reversion statistics survive a failed hedge.
		report.Butterfly = &fly
		for _, e := range unjoin(err) {
			report.Warnings = append(report.Warnings, "butterfly "+e.Error())
		}
		log.Warn("butterfly analysis incomplete", zap.Error(err))
	case skippable(err):
		report.Warnings = append(report.Warnings, "butterfly analysis skipped: "+err.Error())
		log.Warn("butterfly analysis skipped", zap.Error(err))
	default:
		return nil, fmt.Errorf("butterfly analysis: %w", err)
	}

	stats, err := spread.AnalyzeObservations(obs)
	switch {
	case err == nil:
		report.Spread2s5s = &stats
	case errors.Is(err, models.ErrNumericalDegeneracy):
		// Summary statistics are still meaningful without a regression.
		report.Spread2s5s = &stats
		report.Warnings = append(report.Warnings, "2s5s spread: "+err.Error())
		log.Warn("2s5s spread degenerate", zap.Error(err))
	case errors.Is(err, models.ErrValidation):
		report.Warnings = append(report.Warnings, "2s5s spread skipped: "+err.Error())
	default:
		return nil, fmt.Errorf("2s5s spread: %w", err)
	}

	report.Elapsed = time.Since(start)
	p.lmu.Lock()
	p.last = report
	p.lmu.Unlock()
	return report, nil
}

func (p *Pipeline) fit(ctx context.Context, obs []models.YieldObservation, log *zap.Logger) ([]models.DayFit, models.TierSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.TierSummary{}, err
	}
	m := p.opts.Minimizer
	if m == nil {
		m = solver.New(p.opts.Solver)
	}
	var observers multiObserver
	if p.opts.Metrics != nil {
		observers = append(observers, p.opts.Metrics)
	}
	if p.opts.Observer != nil {
		observers = append(observers, p.opts.Observer)
	}
	opts := []fitting.Option{fitting.WithLogger(log)}
	if len(observers) > 0 {
		opts = append(opts, fitting.WithObserver(observers))
	}
	driver, err := fitting.NewDriver(p.opts.Fitting, m, opts...)
	if err != nil {
		return nil, models.TierSummary{}, err
	}
	if p.opts.Fitting.ChunkSize > 0 {
		return driver.FitSeriesChunked(ctx, obs)
	}
	return driver.FitSeries(obs)
}

// multiObserver fans a fit out to several observers.
type multiObserver []fitting.Observer

func (m multiObserver) ObserveFit(fit models.DayFit, elapsed time.Duration) {
	for _, o := range m {
		o.ObserveFit(fit, elapsed)
	}
}

// skippable reports whether a butterfly error comes from the data rather
// than from a bug: too few days or a batch with no variation.
func skippable(err error) bool {
	return errors.Is(err, models.ErrNumericalDegeneracy) || errors.Is(err, models.ErrValidation)
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func fitWarnings(fits []models.DayFit) []string {
	var out []string
	for _, f := range fits {
		date := utils.FormatDate(f.Date)
		if !f.Converged {
			out = append(out, fmt.Sprintf("%s: %v at %s tier after %d iterations",
				date, models.ErrNonConvergence, f.Tier, f.Iterations))
		}
		if f.Degenerate {
			out = append(out, date+": flat observed curve, R² undefined")
		}
		for _, issue := range f.Issues {
			out = append(out, date+": "+issue)
		}
	}
	return out
}
