// Package observability provides Prometheus metrics for fitting runs.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// Metrics holds all Prometheus metrics for the application. Each instance
// owns its registry so tests and multiple runs never collide.
type Metrics struct {
	registry *prometheus.Registry

	// Fitting metrics
	FitsTotal       *prometheus.CounterVec
	FitDuration     *prometheus.HistogramVec
	FitRSquared     prometheus.Histogram
	FitIterations   prometheus.Histogram
	NonConverged    prometheus.Counter
	DegenerateFits  prometheus.Counter
	ParameterIssues prometheus.Counter

	// Pipeline metrics
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	ObservationsLoaded prometheus.Gauge
	LastSuccessfulRun  prometheus.Gauge

	// Analysis metrics
	HedgeWeight     *prometheus.GaugeVec
	HedgeRSquared   prometheus.Gauge
	ReversionMean   prometheus.Gauge
	ReversionStdDev prometheus.Gauge
	LatestZScore    prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all metrics registered on a
// fresh registry, plus the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "treasuries"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fitting",
			Name:      "fits_total",
			Help:      "Day fits completed, by effort tier and convergence",
		}, []string{"tier", "converged"}),
		FitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fitting",
			Name:      "fit_duration_seconds",
			Help:      "Wall time of one day fit, by tier",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"tier"}),
		FitRSquared: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fitting",
			Name:      "r_squared",
			Help:      "R² of each day fit",
			Buckets:   []float64{0.5, 0.8, 0.9, 0.95, 0.98, 0.99, 0.995, 0.999, 1},
		}),
		FitIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fitting",
			Name:      "iterations",
			Help:      "Optimizer iterations spent per day, all passes",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		NonConverged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fitting",
			Name:      "non_converged_total",
			Help:      "Day fits that exhausted their iteration budget",
		}),
		DegenerateFits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fitting",
			Name:      "degenerate_total",
			Help:      "Day fits of a flat observed curve",
		}),
		ParameterIssues: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fitting",
			Name:      "parameter_issues_total",
			Help:      "Fitted parameters outside their validation ranges",
		}),

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ObservationsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "observations",
			Help:      "Days in the last analysed series",
		}),
		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),

		HedgeWeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "butterfly",
			Name:      "hedge_weight",
			Help:      "Current butterfly leg weights",
		}, []string{"leg"}),
		HedgeRSquared: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "butterfly",
			Name:      "hedge_r_squared",
			Help:      "R² of the last hedge regression",
		}),
		ReversionMean: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "butterfly",
			Name:      "reversion_mean_percent",
			Help:      "Mean of market minus model butterfly, in percent",
		}),
		ReversionStdDev: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "butterfly",
			Name:      "reversion_std_percent",
			Help:      "Standard deviation of market minus model butterfly, in percent",
		}),
		LatestZScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "butterfly",
			Name:      "latest_z_score",
			Help:      "Z-score of the most recent market minus model butterfly",
		}),
	}
}

// ObserveFit records one completed day fit.
func (m *Metrics) ObserveFit(fit models.DayFit, elapsed time.Duration) {
	tier := fit.Tier.String()
	m.FitsTotal.WithLabelValues(tier, strconv.FormatBool(fit.Converged)).Inc()
	m.FitDuration.WithLabelValues(tier).Observe(elapsed.Seconds())
	m.FitIterations.Observe(float64(fit.Iterations))
	if !fit.Converged {
		m.NonConverged.Inc()
	}
	if fit.Degenerate {
		m.DegenerateFits.Inc()
	} else {
		m.FitRSquared.Observe(fit.RSquared)
	}
	if n := len(fit.Issues); n > 0 {
		m.ParameterIssues.Add(float64(n))
	}
}

// ObserveRun records a pipeline run. report may be nil for failed runs.
func (m *Metrics) ObserveRun(report *models.AnalysisReport, elapsed time.Duration, err error) {
	m.RunDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.RunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.LastSuccessfulRun.SetToCurrentTime()
	if report == nil {
		return
	}
	m.ObservationsLoaded.Set(float64(len(report.Fits)))

	if b := report.Butterfly; b != nil {
		m.HedgeWeight.WithLabelValues("short").Set(b.Weights.Short)
		m.HedgeWeight.WithLabelValues("mid").Set(b.Weights.Mid)
		m.HedgeWeight.WithLabelValues("long").Set(b.Weights.Long)
		if b.Regression.Observations > 0 {
			m.HedgeRSquared.Set(b.Regression.RSquared)
		}
		m.ReversionMean.Set(b.Reversion.Mean)
		m.ReversionStdDev.Set(b.Reversion.StdDev)
		if n := len(b.ZScores); n > 0 {
			m.LatestZScore.Set(b.ZScores[n-1])
		}
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
