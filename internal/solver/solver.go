// Package solver minimizes curve-fitting objectives with gonum's optimizers.
//
// Two strategies sit behind one contract: a derivative-free Nelder-Mead
// simplex search that ignores bounds during the search, and a bounded
// L-BFGS descent that maps each box-constrained parameter onto an
// unconstrained variable. Neither fails on non-convergence; both return the
// best point seen together with a convergence flag.
package solver

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/optimize"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// Strategy selects the search method.
type Strategy int

const (
	// SimplexSearch is the unconstrained Nelder-Mead search.
	SimplexSearch Strategy = iota
	// BoundedDescent is L-BFGS on logistic-transformed parameters.
	BoundedDescent
)

func (s Strategy) String() string {
	switch s {
	case SimplexSearch:
		return "simplex"
	case BoundedDescent:
		return "bounded"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simplex", "nelder-mead", "neldermead":
		return SimplexSearch, nil
	case "bounded", "lbfgs", "l-bfgs-b", "":
		return BoundedDescent, nil
	}
	return 0, fmt.Errorf("%w: unknown optimizer strategy %q", models.ErrValidation, s)
}

// Bound is a closed box constraint. Infinite ends are allowed.
type Bound struct {
	Lower float64 `mapstructure:"lower" yaml:"lower" json:"lower"`
	Upper float64 `mapstructure:"upper" yaml:"upper" json:"upper"`
}

// Unbounded returns (-Inf, +Inf).
func Unbounded() Bound { return Bound{Lower: math.Inf(-1), Upper: math.Inf(1)} }

// Contains reports whether x lies strictly inside the bound.
func (b Bound) Contains(x float64) bool { return x > b.Lower && x < b.Upper }

// Result is the outcome of one minimization.
type Result struct {
	X           []float64
	F           float64
	Converged   bool
	Iterations  int
	Evaluations int
	Status      string
}

// Settings tune termination for both strategies.
type Settings struct {
	Strategy Strategy

	// FunctionConverge parameters: stop when the best value has not
	// improved by Absolute + Relative·|f| for StallIterations iterations.
	Absolute        float64
	Relative        float64
	StallIterations int

	// GradientThreshold stops the bounded search on a small gradient norm.
	GradientThreshold float64

	// ClampEpsilon is how far inside a bound an out-of-range start is moved.
	ClampEpsilon float64
}

// DefaultSettings returns the settings used in production fits.
func DefaultSettings() Settings {
	return Settings{
		Strategy:          BoundedDescent,
		Absolute:          1e-12,
		Relative:          1e-10,
		StallIterations:   25,
		GradientThreshold: 1e-9,
		ClampEpsilon:      DefaultClampEpsilon,
	}
}

// Optimizer runs minimizations with fixed settings. It holds no per-call
// state and is safe for concurrent use.
type Optimizer struct {
	settings Settings
}

// New creates an Optimizer.
func New(s Settings) *Optimizer {
	if s.ClampEpsilon <= 0 {
		s.ClampEpsilon = DefaultClampEpsilon
	}
	return &Optimizer{settings: s}
}

// Settings returns the optimizer configuration.
func (o *Optimizer) Settings() Settings { return o.settings }

// Minimize searches for the minimum of objective starting at x0, with at
// most maxIter major iterations. bounds may be nil for an unconstrained
// problem. Starting values on or outside a bound are clamped inside first.
func (o *Optimizer) Minimize(objective func([]float64) float64, x0 []float64, bounds []Bound, maxIter int) (Result, error) {
	if len(x0) == 0 {
		return Result{}, fmt.Errorf("%w: empty starting point", models.ErrValidation)
	}
	if bounds != nil && len(bounds) != len(x0) {
		return Result{}, fmt.Errorf("%w: %d bounds for %d parameters", models.ErrValidation, len(bounds), len(x0))
	}
	if maxIter <= 0 {
		return Result{}, fmt.Errorf("%w: max iterations must be positive, got %d", models.ErrValidation, maxIter)
	}
	for i, b := range bounds {
		if !(b.Lower < b.Upper) {
			return Result{}, fmt.Errorf("%w: bound %d has lower %g >= upper %g", models.ErrValidation, i, b.Lower, b.Upper)
		}
	}
	if bounds == nil {
		bounds = make([]Bound, len(x0))
		for i := range bounds {
			bounds[i] = Unbounded()
		}
	}

	start := Clamp(x0, bounds, o.settings.ClampEpsilon)
	switch o.settings.Strategy {
	case SimplexSearch:
		return o.simplex(objective, start, maxIter)
	case BoundedDescent:
		return o.bounded(objective, start, bounds, maxIter)
	}
	return Result{}, fmt.Errorf("%w: unknown strategy %v", models.ErrValidation, o.settings.Strategy)
}

func (o *Optimizer) simplex(objective func([]float64) float64, start []float64, maxIter int) (Result, error) {
	tr := newTracker(objective, start)
	problem := optimize.Problem{Func: tr.eval}
	res, err := optimize.Minimize(problem, start, o.optimizeSettings(maxIter, false), &optimize.NelderMead{})
	return tr.result(res, err)
}

func (o *Optimizer) bounded(objective func([]float64) float64, start []float64, bounds []Bound, maxIter int) (Result, error) {
	tf := newTransform(bounds)
	tr := newTracker(objective, start)

	f := func(z []float64) float64 {
		return tr.eval(tf.toBounded(z))
	}
	problem := optimize.Problem{
		Func: f,
		Grad: func(grad, z []float64) {
			centralGradient(grad, f, z)
		},
	}
	res, err := optimize.Minimize(problem, tf.toFree(start), o.optimizeSettings(maxIter, true), &optimize.LBFGS{})
	return tr.result(res, err)
}

func (o *Optimizer) optimizeSettings(maxIter int, gradient bool) *optimize.Settings {
	s := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   o.settings.Absolute,
			Relative:   o.settings.Relative,
			Iterations: o.settings.StallIterations,
		},
	}
	if gradient {
		s.GradientThreshold = o.settings.GradientThreshold
	}
	return s
}

// convergedStatus lists the gonum statuses that count as converged.
var convergedStatus = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.FunctionThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.GradientThreshold:   true,
	optimize.StepConvergence:     true,
	optimize.MethodConverge:      true,
}

// tracker records the lowest objective value the search evaluated. Line
// searches can end on an error after having visited better points than the
// one gonum reports, so the tracked point is what the caller gets back.
type tracker struct {
	objective func([]float64) float64
	bestX     []float64
	bestF     float64
	evals     int
}

func newTracker(objective func([]float64) float64, start []float64) *tracker {
	x := make([]float64, len(start))
	copy(x, start)
	return &tracker{objective: objective, bestX: x, bestF: math.Inf(1)}
}

func (t *tracker) eval(x []float64) float64 {
	t.evals++
	f := t.objective(x)
	if math.IsNaN(f) {
		f = math.Inf(1)
	}
	if f < t.bestF {
		t.bestF = f
		copy(t.bestX, x)
	}
	return f
}

// result folds a gonum outcome into a Result. A gonum error that comes with
// a result (line-search failure, infinite start value) only marks the run as
// not converged.
func (t *tracker) result(res *optimize.Result, err error) (Result, error) {
	if res == nil && err != nil {
		return Result{}, fmt.Errorf("optimize: %w", err)
	}

	out := Result{
		X:           append([]float64(nil), t.bestX...),
		F:           t.bestF,
		Evaluations: t.evals,
		Status:      "NotTerminated",
	}
	if res != nil {
		out.Iterations = res.Stats.MajorIterations
		out.Status = res.Status.String()
		out.Converged = err == nil && convergedStatus[res.Status]
	}
	if math.IsInf(out.F, 1) {
		out.Converged = false
	}
	return out, nil
}
