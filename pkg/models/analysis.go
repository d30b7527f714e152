package models

import "time"

// ButterflyWeights are the leg weights on the (2Y, 5Y, 10Y) triple.
type ButterflyWeights struct {
	Short float64 `json:"short"`
	Mid   float64 `json:"mid"`
	Long  float64 `json:"long"`
}

// DefaultButterflyWeights is the duration-neutral (-1, 2, -1) fly.
var DefaultButterflyWeights = ButterflyWeights{Short: -1, Mid: 2, Long: -1}

// Apply combines three leg yields with the weights.
func (w ButterflyWeights) Apply(short, mid, long float64) float64 {
	return w.Short*short + w.Mid*mid + w.Long*long
}

// ButterflyPoint pairs the market and model fly on one date.
type ButterflyPoint struct {
	Date   time.Time `json:"date"`
	Market float64   `json:"market"`
	Model  float64   `json:"model"`
}

// Residual is market minus model.
func (p ButterflyPoint) Residual() float64 { return p.Market - p.Model }

// RegressionModel is an OLS fit with intercept.
type RegressionModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	RSquared     float64   `json:"r_squared"`
	Observations int       `json:"observations"`
}

// ReversionStats summarizes the market-minus-model spread series.
type ReversionStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	N      int     `json:"n"`
}

// SpreadStats summarizes the 2s5s spread and its regression of 5Y on 2Y.
type SpreadStats struct {
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Slope     float64   `json:"slope"`
	Intercept float64   `json:"intercept"`
	RSquared  float64   `json:"r_squared"`
	Spreads   []float64 `json:"spreads"`
	ZScores   []float64 `json:"z_scores,omitempty"`
	// Reverting is true when the legs are weakly related (slope and R²
	// both under 0.1) and z-scores were produced.
	Reverting bool `json:"reverting"`
}

// ButterflyAnalysis is the spread engine output for one batch.
type ButterflyAnalysis struct {
	Points       []ButterflyPoint `json:"points"`
	Weights      ButterflyWeights `json:"weights"`
	Regression   RegressionModel  `json:"regression"`
	Reversion    ReversionStats   `json:"reversion"`
	ZScores      []float64        `json:"z_scores,omitempty"`
	HedgedSpread []float64        `json:"hedged_spread,omitempty"`
}

// AnalysisReport is the full output of one pipeline run.
type AnalysisReport struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Model       CurveModel         `json:"model"`
	Strategy    string             `json:"strategy"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Fits        []DayFit           `json:"fits"`
	Tiers       TierSummary        `json:"tiers"`
	Butterfly   *ButterflyAnalysis `json:"butterfly,omitempty"`
	Spread2s5s  *SpreadStats       `json:"spread_2s5s,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// FitOn returns the fit for a calendar date.
func (r *AnalysisReport) FitOn(date time.Time) (DayFit, bool) {
	y, m, d := date.Date()
	for _, f := range r.Fits {
		fy, fm, fd := f.Date.Date()
		if fy == y && fm == m && fd == d {
			return f, true
		}
	}
	return DayFit{}, false
}

// MeanRSquared averages R² over the non-degenerate fits.
func (r *AnalysisReport) MeanRSquared() float64 {
	var sum float64
	var n int
	for _, f := range r.Fits {
		if f.Degenerate {
			continue
		}
		sum += f.RSquared
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
