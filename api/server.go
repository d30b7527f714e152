// Package api provides the HTTP server over the most recent analysis run.
//
// It exposes the run summary, per-day fits, butterfly and 2s5s statistics,
// SVG charts, a refit trigger, a WebSocket progress stream and Prometheus
// metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/internal/config"
	"github.com/yazwaza/us-treasuries/internal/observability"
	"github.com/yazwaza/us-treasuries/internal/report"
	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// Analyzer runs analyses and remembers the last report.
// *pipeline.Pipeline satisfies it.
type Analyzer interface {
	Run(ctx context.Context) (*models.AnalysisReport, error)
	Last() (*models.AnalysisReport, bool)
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	analyzer Analyzer
	metrics  *observability.Metrics
	hub      *WSHub
	logger   *zap.Logger
	version  string
	chartCfg report.ChartConfig
	running  atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves m at /metrics.
func WithMetrics(m *observability.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithHub enables the WebSocket stream at /api/v1/stream.
func WithHub(h *WSHub) Option { return func(s *Server) { s.hub = h } }

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, a Analyzer, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", models.ErrValidation)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: analyzer is nil", models.ErrValidation)
	}
	srv := &Server{
		cfg:      cfg,
		analyzer: a,
		logger:   zap.NewNop(),
		version:  "dev",
		chartCfg: report.DefaultChartConfig(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // refits can be slow
		IdleTimeout:  60 * time.Second,
	}

	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Read-only views of the last run
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/summary", s.handleSummary)
			r.Get("/fits", s.handleFits)
			r.Get("/fits/{date}", s.handleFitByDate)
			r.Get("/butterfly", s.handleButterfly)
			r.Get("/spread", s.handleSpread)
			r.Get("/charts/{name}", s.handleChart)
			r.Get("/report", s.handleReport)
			r.Get("/config", s.handleGetConfig)
		})

		// Refit runs the whole pipeline again
		r.Post("/refit", s.handleRefit)

		if s.hub != nil {
			r.Get("/stream", s.handleWebSocket)
		}
	})

	return r
}

// requestLogger logs one line per request at debug, or warn for 5xx.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Summary is the compact view of a run returned by /summary and /refit.
type Summary struct {
	RunID        string                   `json:"run_id"`
	GeneratedAt  time.Time                `json:"generated_at"`
	Model        models.CurveModel        `json:"model"`
	Strategy     string                   `json:"strategy"`
	Start        string                   `json:"start"`
	End          string                   `json:"end"`
	Days         int                      `json:"days"`
	MeanRSquared float64                  `json:"mean_r_squared"`
	NonConverged int                      `json:"non_converged"`
	Tiers        models.TierSummary       `json:"tiers"`
	Weights      *models.ButterflyWeights `json:"weights,omitempty"`
	HedgeR2      *float64                 `json:"hedge_r_squared,omitempty"`
	Reversion    *models.ReversionStats   `json:"reversion,omitempty"`
	Spread       *SpreadSummary           `json:"spread_2s5s,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
	ElapsedMS    int64                    `json:"elapsed_ms"`
}

// SpreadSummary is SpreadStats without its series.
type SpreadSummary struct {
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Slope     float64 `json:"slope"`
	RSquared  float64 `json:"r_squared"`
	Reverting bool    `json:"reverting"`
}

// Summarize builds the compact view of r.
func Summarize(r *models.AnalysisReport) Summary {
	sum := Summary{
		RunID:        r.RunID,
		GeneratedAt:  r.GeneratedAt,
		Model:        r.Model,
		Strategy:     r.Strategy,
		Start:        utils.FormatDate(r.Start),
		End:          utils.FormatDate(r.End),
		Days:         len(r.Fits),
		MeanRSquared: r.MeanRSquared(),
		Tiers:        r.Tiers,
		Warnings:     r.Warnings,
		ElapsedMS:    r.Elapsed.Milliseconds(),
	}
	for _, f := range r.Fits {
		if !f.Converged {
			sum.NonConverged++
		}
	}
	if b := r.Butterfly; b != nil {
		w, r2, rev := b.Weights, b.Regression.RSquared, b.Reversion
		sum.Weights, sum.HedgeR2, sum.Reversion = &w, &r2, &rev
	}
	if s := r.Spread2s5s; s != nil {
		sum.Spread = &SpreadSummary{
			Mean: s.Mean, StdDev: s.StdDev, Min: s.Min, Max: s.Max,
			Slope: s.Slope, RSquared: s.RSquared, Reverting: s.Reverting,
		}
	}
	return sum
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"status":     "ok",
		"version":    s.version,
		"has_report": false,
		"refitting":  s.running.Load(),
		"time_et":    utils.NowET().Format(time.RFC3339),
	}
	if rep, ok := s.analyzer.Last(); ok {
		data["has_report"] = true
		data["last_run"] = rep.RunID
		data["last_run_at"] = rep.GeneratedAt
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// lastReport writes 503 and returns false when no run has finished yet.
func (s *Server) lastReport(w http.ResponseWriter) (*models.AnalysisReport, bool) {
	rep, ok := s.analyzer.Last()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no analysis available yet")
		return nil, false
	}
	return rep, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lastReport(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: Summarize(rep)})
}

// handleFits returns the day fits, optionally restricted by ?from= and ?to=.
func (s *Server) handleFits(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lastReport(w)
	if !ok {
		return
	}
	from, err := optionalDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date: "+err.Error())
		return
	}
	to, err := optionalDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date: "+err.Error())
		return
	}

	fits := make([]models.DayFit, 0, len(rep.Fits))
	for _, f := range rep.Fits {
		day := calendarDay(f.Date)
		if !from.IsZero() && day.Before(from) {
			continue
		}
		if !to.IsZero() && day.After(to) {
			continue
		}
		fits = append(fits, f)
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: fits})
}

func (s *Server) handleFitByDate(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lastReport(w)
	if !ok {
		return
	}
	fit, status, msg := fitOn(rep, chi.URLParam(r, "date"))
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: fit})
}

func (s *Server) handleButterfly(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lastReport(w)
	if !ok {
		return
	}
	if rep.Butterfly == nil {
		writeError(w, http.StatusNotFound, "butterfly analysis unavailable for this run")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rep.Butterfly})
}

func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lastReport(w)
	if !ok {
		return
	}
	if rep.Spread2s5s == nil {
		writeError(w, http.StatusNotFound, "2s5s analysis unavailable for this run")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rep.Spread2s5s})
}

// handleChart serves one SVG chart. The curve and spline charts accept
// ?date=; spline also accepts ?boundary=natural|clamped|not-a-knot.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lastReport(w)
	if !ok {
		return
	}
	name := strings.TrimSuffix(chi.URLParam(r, "name"), ".svg")
	date := r.URL.Query().Get("date")

	var svg string
	switch {
	case name == chartSpline || (name == report.ChartCurve && date != ""):
		fit, status, msg := fitOn(rep, date)
		if status != http.StatusOK {
			writeError(w, status, msg)
			return
		}
		if name == report.ChartCurve {
			svg = report.CurveChart(fit, s.chartCfg)
			break
		}
		boundary := curve.Boundary(r.URL.Query().Get("boundary"))
		spline, err := curve.FitSpline(fit.Observed, boundary)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		svg = report.SplineChart(models.YieldObservation{Date: fit.Date, Yields: fit.Observed}, spline, s.chartCfg)
	default:
		charts := report.Charts(rep, s.chartCfg)
		var found bool
		if svg, found = charts[name]; !found {
			writeError(w, http.StatusNotFound, fmt.Sprintf("chart %q not available", name))
			return
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(svg)) //nolint:errcheck
}

// handleReport renders the last run as ?format=html (default), text or json.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.lastReport(w)
	if !ok {
		return
	}
	cfg := report.DefaultReportConfig()
	switch report.ReportFormat(r.URL.Query().Get("format")) {
	case "", report.FormatHTML:
		html, err := report.GenerateHTML(rep, cfg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html)) //nolint:errcheck
	case report.FormatText:
		text, err := report.GenerateText(rep, cfg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(text)) //nolint:errcheck
	case report.FormatJSON:
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: rep})
	default:
		writeError(w, http.StatusBadRequest, "format must be html, text or json")
	}
}

// handleRefit runs the pipeline again. Only one refit runs at a time.
func (s *Server) handleRefit(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a refit is already running")
		return
	}
	defer s.running.Store(false)

	s.broadcast(WSMessage{Type: MsgRunStarted})
	rep, err := s.analyzer.Run(r.Context())
	if err != nil {
		s.logger.Error("refit failed", zap.Error(err))
		s.broadcast(WSMessage{Type: MsgRunFailed, Data: err.Error()})
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrValidation) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, "refit failed: "+err.Error())
		return
	}
	sum := Summarize(rep)
	s.broadcast(WSMessage{Type: MsgRunFinished, Data: sum})
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sum})
}

// ============================================================
// Helpers
// ============================================================

const chartSpline = "spline"

func (s *Server) broadcast(msg WSMessage) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}

// fitOn looks up the fit for a date string. An empty date means the latest
// day. It returns an HTTP status and message on failure.
func fitOn(rep *models.AnalysisReport, date string) (models.DayFit, int, string) {
	if date == "" || date == "latest" {
		if len(rep.Fits) == 0 {
			return models.DayFit{}, http.StatusNotFound, "run has no fits"
		}
		return rep.Fits[len(rep.Fits)-1], http.StatusOK, ""
	}
	d, err := utils.ParseTreasuryDate(date)
	if err != nil {
		return models.DayFit{}, http.StatusBadRequest, err.Error()
	}
	fit, ok := rep.FitOn(d)
	if !ok {
		return models.DayFit{}, http.StatusNotFound, "no fit for " + utils.FormatDate(d)
	}
	return fit, http.StatusOK, ""
}

func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := utils.ParseTreasuryDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return calendarDay(d), nil
}

// calendarDay drops the zone so dates from different sources compare by day.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
