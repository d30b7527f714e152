// Package report renders analysis runs as plain-text summaries, HTML pages
// and SVG charts.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// SVG Chart Generator
// ════════════════════════════════════════════════════════════════════

// ChartConfig holds rendering parameters for SVG charts.
type ChartConfig struct {
	Width        int    // SVG width in pixels (default: 800)
	Height       int    // SVG height in pixels (default: 400)
	MarginTop    int    // top margin (default: 40)
	MarginRight  int    // right margin (default: 60)
	MarginBottom int    // bottom margin (default: 50)
	MarginLeft   int    // left margin (default: 70)
	BgColor      string // background color (default: "#ffffff")
	GridColor    string // grid line color (default: "#e8e8e8")
	TextColor    string // axis label color (default: "#333333")
	FontSize     int    // axis label font size (default: 11)
	Title        string // chart title
	YFormat      string // printf verb for Y-axis labels (default: "%.2f")
}

// DefaultChartConfig returns sensible defaults for chart rendering.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:        800,
		Height:       400,
		MarginTop:    40,
		MarginRight:  60,
		MarginBottom: 50,
		MarginLeft:   70,
		BgColor:      "#ffffff",
		GridColor:    "#e8e8e8",
		TextColor:    "#333333",
		FontSize:     11,
		YFormat:      "%.2f",
	}
}

// plotArea returns the usable drawing area dimensions.
func (c ChartConfig) plotArea() (x, y, w, h int) {
	return c.MarginLeft, c.MarginTop,
		c.Width - c.MarginLeft - c.MarginRight,
		c.Height - c.MarginTop - c.MarginBottom
}

func (c ChartConfig) withDefaults(title string) ChartConfig {
	if c.Width == 0 {
		t := c.Title
		c = DefaultChartConfig()
		c.Title = t
	}
	if c.Title == "" {
		c.Title = title
	}
	if c.YFormat == "" {
		c.YFormat = "%.2f"
	}
	return c
}

// ════════════════════════════════════════════════════════════════════
// Line Chart
// ════════════════════════════════════════════════════════════════════

// LineChartSeries represents a named data series for line charts.
type LineChartSeries struct {
	Name   string
	X      []float64 // optional; index positions are used when empty
	Values []float64
	Color  string // hex color (optional, auto-assigned if empty)
	Dashed bool
	Points bool // draw markers instead of a line
}

func (s LineChartSeries) x(i int) float64 {
	if len(s.X) == len(s.Values) {
		return s.X[i]
	}
	return float64(i)
}

// LineChart generates an SVG line chart with one or more series.
// Labels are optional X-axis labels for index-positioned data; series with
// explicit X values get numeric ticks instead.
func LineChart(series []LineChartSeries, labels []string, cfg ChartConfig) string {
	cfg = cfg.withDefaults("Line Chart")
	if len(series) == 0 {
		return emptySVG(cfg, "No data")
	}

	px, py, pw, ph := cfg.plotArea()

	// Find global ranges
	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	minX, maxX := math.MaxFloat64, -math.MaxFloat64
	explicitX := false
	points := 0
	for _, s := range series {
		if len(s.X) == len(s.Values) && len(s.X) > 0 {
			explicitX = true
		}
		for i, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			points++
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
			minX = math.Min(minX, s.x(i))
			maxX = math.Max(maxX, s.x(i))
		}
	}
	if points == 0 {
		return emptySVG(cfg, "No data points")
	}

	vRange := maxVal - minVal
	if vRange < 1e-6 {
		vRange = 1
	}
	minVal -= vRange * 0.05
	maxVal += vRange * 0.05
	vRange = maxVal - minVal
	xRange := maxX - minX
	if xRange == 0 {
		xRange = 1
	}

	toX := func(x float64) float64 { return float64(px) + (x-minX)/xRange*float64(pw) }
	toY := func(v float64) float64 { return float64(py+ph) - (v-minVal)/vRange*float64(ph) }

	var sb strings.Builder
	sb.WriteString(svgHeader(cfg))
	sb.WriteString(fmt.Sprintf(`<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`,
		cfg.Width, cfg.Height, cfg.BgColor))
	sb.WriteString(fmt.Sprintf(`<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
		cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title)))

	// Y-axis grid
	gridLines := 5
	for i := 0; i <= gridLines; i++ {
		val := minVal + vRange*float64(i)/float64(gridLines)
		y := py + ph - int(float64(ph)*float64(i)/float64(gridLines))
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-dasharray="3,3"/>`,
			px, y, px+pw, y, cfg.GridColor))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, y+4, cfg.FontSize, cfg.TextColor, fmt.Sprintf(cfg.YFormat, val)))
	}

	// Draw series
	defaultColors := []string{"#2196f3", "#ff9800", "#4caf50", "#e91e63", "#9c27b0", "#00bcd4"}
	for si, s := range series {
		color := s.Color
		if color == "" {
			color = defaultColors[si%len(defaultColors)]
		}

		var pathParts []string
		for i, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			cx, cy := toX(s.x(i)), toY(v)
			if s.Points {
				sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="3.5" fill="%s"/>`, cx, cy, color))
				continue
			}
			cmd := "L"
			if len(pathParts) == 0 {
				cmd = "M"
			}
			pathParts = append(pathParts, fmt.Sprintf("%s%.1f,%.1f", cmd, cx, cy))
		}
		if len(pathParts) > 1 {
			dash := ""
			if s.Dashed {
				dash = ` stroke-dasharray="6,4"`
			}
			sb.WriteString(fmt.Sprintf(`<path d="%s" fill="none" stroke="%s" stroke-width="2"%s/>`,
				strings.Join(pathParts, " "), color, dash))
		}

		// Legend
		ly := py + 10 + si*16
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`,
			px+10, ly, px+30, ly, color))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="10" fill="%s">%s</text>`,
			px+35, ly+4, cfg.TextColor, escapeXML(s.Name)))
	}

	// X-axis labels
	switch {
	case explicitX:
		for i := 0; i <= 6; i++ {
			val := minX + xRange*float64(i)/6
			sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle">%.1fY</text>`,
				toX(val), py+ph+18, cfg.FontSize-1, cfg.TextColor, val))
		}
	case len(labels) > 0:
		interval := len(labels) / 6
		if interval < 1 {
			interval = 1
		}
		for i := 0; i < len(labels) && float64(i) <= maxX; i += interval {
			sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle">%s</text>`,
				toX(float64(i)), py+ph+18, cfg.FontSize-1, cfg.TextColor, escapeXML(labels[i])))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ════════════════════════════════════════════════════════════════════
// Bar Chart (Horizontal)
// ════════════════════════════════════════════════════════════════════

// BarItem represents a single bar in a horizontal bar chart.
type BarItem struct {
	Label string
	Value float64
	Color string // optional
}

// HorizontalBarChart generates an SVG horizontal bar chart.
func HorizontalBarChart(items []BarItem, cfg ChartConfig) string {
	cfg = cfg.withDefaults("Comparison")
	if len(items) == 0 {
		return emptySVG(cfg, "No data")
	}
	cfg.MarginLeft = 120 // wider for labels

	px, py, pw, ph := cfg.plotArea()

	maxVal := 0.0
	minVal := 0.0
	for _, item := range items {
		maxVal = math.Max(maxVal, item.Value)
		minVal = math.Min(minVal, item.Value)
	}

	hasNegative := minVal < 0
	valRange := maxVal - minVal
	if valRange < 0.001 {
		valRange = 1
	}

	barH := float64(ph) / float64(len(items)) * 0.7
	if barH > 30 {
		barH = 30
	}
	gap := (float64(ph) - barH*float64(len(items))) / float64(len(items)+1)

	var sb strings.Builder
	sb.WriteString(svgHeader(cfg))
	sb.WriteString(fmt.Sprintf(`<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`,
		cfg.Width, cfg.Height, cfg.BgColor))
	sb.WriteString(fmt.Sprintf(`<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
		cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title)))

	// Zero line for mixed positive/negative
	zeroX := float64(px)
	if hasNegative {
		zeroX = float64(px) + (-minVal/valRange)*float64(pw)
		sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="#999" stroke-width="1"/>`,
			zeroX, py, zeroX, py+ph))
	}

	for i, item := range items {
		by := float64(py) + gap + float64(i)*(barH+gap)
		color := item.Color
		if color == "" {
			color = "#4caf50"
			if item.Value < 0 {
				color = "#ef5350"
			}
		}

		var bx, bw float64
		switch {
		case !hasNegative:
			bx = float64(px)
			if maxVal > 0 {
				bw = (item.Value / maxVal) * float64(pw)
			}
		case item.Value >= 0:
			bx = zeroX
			bw = (item.Value / valRange) * float64(pw)
		default:
			bw = (-item.Value / valRange) * float64(pw)
			bx = zeroX - bw
		}

		sb.WriteString(fmt.Sprintf(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" rx="2"/>`,
			bx, by, bw, barH, color))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, by+barH/2+4, cfg.FontSize, cfg.TextColor, escapeXML(item.Label)))
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" font-size="%d" fill="%s">%.1f</text>`,
			bx+bw+5, by+barH/2+4, cfg.FontSize, cfg.TextColor, item.Value))
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ════════════════════════════════════════════════════════════════════
// Analysis Charts
// ════════════════════════════════════════════════════════════════════

// fittedSamples is the number of maturities a fitted curve is drawn at.
const fittedSamples = 120

// CurveChart plots one day's observed yields against its fitted curve.
func CurveChart(fit models.DayFit, cfg ChartConfig) string {
	cfg = cfg.withDefaults(fmt.Sprintf("%s fit, %s (R² %.4f)",
		strings.ToUpper(string(fit.Params.Model())), utils.FormatDate(fit.Date), fit.RSquared))
	if len(fit.Params) == 0 {
		return emptySVG(cfg, "No fit")
	}
	grid := curve.DenseGrid(fittedSamples)
	return LineChart([]LineChartSeries{
		{Name: "Fitted", X: grid, Values: curve.EvaluateAt(fit.Params, grid), Color: "#2196f3"},
		{Name: "Market", X: models.MaturityGrid[:], Values: fit.Observed[:], Color: "#e91e63", Points: true},
	}, nil, cfg)
}

// SplineChart plots a cubic spline through one day's observed yields.
func SplineChart(obs models.YieldObservation, s *curve.Spline, cfg ChartConfig) string {
	cfg = cfg.withDefaults(fmt.Sprintf("Cubic spline (%s), %s", s.Boundary, utils.FormatDate(obs.Date)))
	xs, ys := s.Sample(fittedSamples)
	return LineChart([]LineChartSeries{
		{Name: "Spline", X: xs, Values: ys, Color: "#4caf50"},
		{Name: "Market", X: models.MaturityGrid[:], Values: obs.Yields[:], Color: "#e91e63", Points: true},
	}, nil, cfg)
}

// ButterflyChart plots the market and model 2s5s10s butterfly over time.
func ButterflyChart(points []models.ButterflyPoint, cfg ChartConfig) string {
	cfg = cfg.withDefaults("2s5s10s butterfly: market vs model")
	cfg.YFormat = "%.3f"
	market := make([]float64, len(points))
	model := make([]float64, len(points))
	dates := make([]time.Time, len(points))
	for i, p := range points {
		market[i], model[i], dates[i] = p.Market, p.Model, p.Date
	}
	return LineChart([]LineChartSeries{
		{Name: "Market", Values: market, Color: "#e91e63"},
		{Name: "Model", Values: model, Color: "#2196f3"},
	}, dateLabels(dates), cfg)
}

// ZScoreChart plots a z-score series with ±2σ reference lines.
func ZScoreChart(title string, dates []time.Time, z []float64, cfg ChartConfig) string {
	cfg = cfg.withDefaults(title)
	if len(z) == 0 {
		return emptySVG(cfg, "No z-scores")
	}
	upper := make([]float64, len(z))
	lower := make([]float64, len(z))
	for i := range z {
		upper[i], lower[i] = 2, -2
	}
	return LineChart([]LineChartSeries{
		{Name: "z-score", Values: z, Color: "#9c27b0"},
		{Name: "+2σ", Values: upper, Color: "#999999", Dashed: true},
		{Name: "-2σ", Values: lower, Color: "#999999", Dashed: true},
	}, dateLabels(dates), cfg)
}

// TierChart shows how many days settled at each optimization tier.
func TierChart(s models.TierSummary, cfg ChartConfig) string {
	cfg = cfg.withDefaults("Optimization tiers")
	return HorizontalBarChart([]BarItem{
		{Label: "Quick", Value: float64(s.Quick), Color: "#4caf50"},
		{Label: "Moderate", Value: float64(s.Moderate), Color: "#ff9800"},
		{Label: "Intensive", Value: float64(s.Intensive), Color: "#ef5350"},
	}, cfg)
}

func dateLabels(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format("Jan 02")
	}
	return out
}

// ════════════════════════════════════════════════════════════════════
// SVG Helpers
// ════════════════════════════════════════════════════════════════════

func svgHeader(cfg ChartConfig) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
}

func emptySVG(cfg ChartConfig, msg string) string {
	if cfg.Width == 0 {
		cfg.Width = 400
	}
	if cfg.Height == 0 {
		cfg.Height = 200
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="%d" height="%d" fill="#f5f5f5"/><text x="%d" y="%d" text-anchor="middle" fill="#999" font-size="14">%s</text></svg>`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width/2, cfg.Height/2, escapeXML(msg))
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
