package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Report Generator: chart and template rendering
// ════════════════════════════════════════════════════════════════════

// ReportFormat specifies the output format.
type ReportFormat string

const (
	FormatHTML ReportFormat = "html"
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
)

// Chart names served by Charts and written by WriteCharts.
const (
	ChartCurve      = "curve"
	ChartButterfly  = "butterfly"
	ChartResidualZ  = "residual-z"
	ChartSpreadZ    = "spread-z"
	ChartTiers      = "tiers"
	ChartHedged     = "hedged"
	chartFileSuffix = ".svg"
)

// ChartNames returns every chart name in display order.
func ChartNames() []string {
	return []string{ChartCurve, ChartButterfly, ChartResidualZ, ChartHedged, ChartSpreadZ, ChartTiers}
}

// ReportConfig controls report generation behaviour.
type ReportConfig struct {
	Title    string      // custom report title (optional)
	ChartCfg ChartConfig // chart rendering config
}

// DefaultReportConfig returns sensible defaults.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Title:    "US Treasury Curve Analysis",
		ChartCfg: DefaultChartConfig(),
	}
}

// ════════════════════════════════════════════════════════════════════
// Charts
// ════════════════════════════════════════════════════════════════════

// Charts renders every chart the report has data for, keyed by name.
// The curve chart shows the most recent day.
func Charts(r *models.AnalysisReport, cfg ChartConfig) map[string]string {
	out := make(map[string]string)
	if r == nil {
		return out
	}
	if n := len(r.Fits); n > 0 {
		out[ChartCurve] = CurveChart(r.Fits[n-1], cfg)
	}
	out[ChartTiers] = TierChart(r.Tiers, cfg)

	if b := r.Butterfly; b != nil {
		out[ChartButterfly] = ButterflyChart(b.Points, cfg)
		dates := make([]time.Time, len(b.Points))
		for i, p := range b.Points {
			dates[i] = p.Date
		}
		out[ChartResidualZ] = ZScoreChart("Market minus model butterfly z-score", dates, b.ZScores, cfg)

		hedgedCfg := cfg
		hedgedCfg.Title = fmt.Sprintf("Hedged butterfly (%.3f, %.3f, %.3f)",
			b.Weights.Short, b.Weights.Mid, b.Weights.Long)
		hedgedCfg.YFormat = "%.3f"
		out[ChartHedged] = LineChart([]LineChartSeries{
			{Name: "Hedged", Values: b.HedgedSpread, Color: "#00bcd4"},
		}, dateLabels(dates), hedgedCfg)
	}
	if s := r.Spread2s5s; s != nil && len(s.ZScores) > 0 && len(r.Fits) == len(s.ZScores) {
		dates := make([]time.Time, len(r.Fits))
		for i, f := range r.Fits {
			dates[i] = f.Date
		}
		out[ChartSpreadZ] = ZScoreChart("5Y-2Y spread z-score", dates, s.ZScores, cfg)
	}
	return out
}

// WriteCharts writes each chart to dir as <name>.svg and returns the paths
// in name order.
func WriteCharts(dir string, r *models.AnalysisReport, cfg ChartConfig) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chart dir: %w", err)
	}
	charts := Charts(r, cfg)
	names := make([]string, 0, len(charts))
	for name := range charts {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name+chartFileSuffix)
		if err := os.WriteFile(path, []byte(charts[name]), 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ════════════════════════════════════════════════════════════════════
// Generate Report
// ════════════════════════════════════════════════════════════════════

// ReportData is the template model passed to the HTML template.
type ReportData struct {
	Title       string
	GeneratedAt string
	RunID       string
	Period      string
	Model       string
	Strategy    string
	Days        int
	MeanR2      string
	Elapsed     string
	Tiers       []TierRow
	Fly         *FlyData
	Spread      *SpreadData
	Warnings    []string
	Charts      []ChartData
}

// TierRow is one line of the efficiency summary.
type TierRow struct {
	Name    string
	Count   int
	Percent string
}

// FlyData is the butterfly section.
type FlyData struct {
	Coefficients string
	Weights      string
	HedgeR2      string
	Mean         string
	StdDev       string
	LatestZ      string
}

// SpreadData is the 2s5s section.
type SpreadData struct {
	Mean      string
	StdDev    string
	Min       string
	Max       string
	Slope     string
	RSquared  string
	Reverting bool
	LatestZ   string
}

// ChartData is an embedded SVG chart.
type ChartData struct {
	Name string
	SVG  template.HTML
}

// GenerateHTML generates a standalone HTML page for a run.
func GenerateHTML(r *models.AnalysisReport, cfg ReportConfig) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report is nil")
	}

	data := buildReportData(r, cfg)
	charts := Charts(r, cfg.ChartCfg)
	for _, name := range ChartNames() {
		if svg, ok := charts[name]; ok {
			data.Charts = append(data.Charts, ChartData{Name: name, SVG: template.HTML(svg)})
		}
	}

	tmpl, err := template.New("report").Parse(ReportTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// GenerateText generates a plain-text summary (terminal / CLI friendly).
func GenerateText(r *models.AnalysisReport, cfg ReportConfig) (string, error) {
	if r == nil {
		return "", fmt.Errorf("report is nil")
	}
	return renderTextReport(r, buildReportData(r, cfg)), nil
}

// ════════════════════════════════════════════════════════════════════
// Internal: template data
// ════════════════════════════════════════════════════════════════════

func buildReportData(r *models.AnalysisReport, cfg ReportConfig) ReportData {
	title := cfg.Title
	if title == "" {
		title = DefaultReportConfig().Title
	}
	d := ReportData{
		Title:       title,
		GeneratedAt: r.GeneratedAt.Format("02 Jan 2006, 03:04 PM MST"),
		RunID:       r.RunID,
		Period:      utils.FormatDate(r.Start) + " to " + utils.FormatDate(r.End),
		Model:       strings.ToUpper(string(r.Model)),
		Strategy:    r.Strategy,
		Days:        len(r.Fits),
		MeanR2:      fmt.Sprintf("%.4f", r.MeanRSquared()),
		Elapsed:     FormatDuration(r.Elapsed),
		Warnings:    r.Warnings,
	}
	for _, t := range []models.Tier{models.TierQuick, models.TierModerate, models.TierIntensive} {
		count := 0
		switch t {
		case models.TierQuick:
			count = r.Tiers.Quick
		case models.TierModerate:
			count = r.Tiers.Moderate
		case models.TierIntensive:
			count = r.Tiers.Intensive
		}
		d.Tiers = append(d.Tiers, TierRow{
			Name:    t.String(),
			Count:   count,
			Percent: fmt.Sprintf("%.1f%%", r.Tiers.Percent(t)),
		})
	}

	if b := r.Butterfly; b != nil {
		coefs := make([]string, len(b.Regression.Coefficients))
		for i, c := range b.Regression.Coefficients {
			coefs[i] = utils.FormatSigned(c, 4)
		}
		d.Fly = &FlyData{
			Coefficients: "[" + strings.Join(coefs, ", ") + "], intercept " + utils.FormatSigned(b.Regression.Intercept, 4),
			Weights: fmt.Sprintf("%s × 2Y, %s × 5Y, %s × 10Y",
				utils.FormatSigned(b.Weights.Short, 4), utils.FormatSigned(b.Weights.Mid, 4), utils.FormatSigned(b.Weights.Long, 4)),
			HedgeR2: fmt.Sprintf("%.4f", b.Regression.RSquared),
			Mean:    utils.FormatPctBps(b.Reversion.Mean),
			StdDev:  utils.FormatPctBps(b.Reversion.StdDev),
			LatestZ: latest(b.ZScores),
		}
		if b.Regression.Observations == 0 {
			d.Fly.Coefficients = "n/a (default weights)"
			d.Fly.HedgeR2 = "n/a"
		}
	}
	if s := r.Spread2s5s; s != nil {
		d.Spread = &SpreadData{
			Mean:      utils.FormatPctBps(s.Mean),
			StdDev:    utils.FormatPctBps(s.StdDev),
			Min:       utils.FormatPctBps(s.Min),
			Max:       utils.FormatPctBps(s.Max),
			Slope:     fmt.Sprintf("%.4f", s.Slope),
			RSquared:  fmt.Sprintf("%.4f", s.RSquared),
			Reverting: s.Reverting,
			LatestZ:   latest(s.ZScores),
		}
	}
	return d
}

func latest(z []float64) string {
	if len(z) == 0 {
		return "n/a"
	}
	return utils.FormatSigned(z[len(z)-1], 2)
}

// ════════════════════════════════════════════════════════════════════
// Plain-text renderer
// ════════════════════════════════════════════════════════════════════

func renderTextReport(r *models.AnalysisReport, d ReportData) string {
	var sb strings.Builder
	line := strings.Repeat("═", 64)
	thinLine := strings.Repeat("─", 64)

	sb.WriteString("\n" + line + "\n")
	sb.WriteString(fmt.Sprintf("  %s\n", d.Title))
	sb.WriteString(fmt.Sprintf("  Generated: %s | Run: %s\n", d.GeneratedAt, d.RunID))
	sb.WriteString(line + "\n\n")

	sb.WriteString(fmt.Sprintf("  %s fit, %s strategy, %d days (%s)\n", d.Model, d.Strategy, d.Days, d.Period))
	sb.WriteString(fmt.Sprintf("  Mean R²: %s | Elapsed: %s\n", d.MeanR2, d.Elapsed))
	sb.WriteString("  R² guide: curve fit > 0.90 excellent, > 0.80 good, < 0.80 poor;\n")
	sb.WriteString("            reversion < 0.10 mean-reverting, > 0.50 trending\n")
	sb.WriteString(thinLine + "\n")

	sb.WriteString("\n  ■ EFFICIENCY SUMMARY\n")
	total := r.Tiers.Total()
	for _, t := range d.Tiers {
		sb.WriteString(fmt.Sprintf("    %-10s %4d/%d (%s)\n", t.Name, t.Count, total, t.Percent))
	}
	sb.WriteString(thinLine + "\n")

	if n := len(r.Fits); n > 0 {
		f := r.Fits[n-1]
		sb.WriteString(fmt.Sprintf("\n  ■ LATEST FIT (%s, %s tier)\n", utils.FormatDate(f.Date), f.Tier))
		names := models.ParamNames(f.Params.Model())
		for i, p := range f.Params {
			sb.WriteString(fmt.Sprintf("    %-10s %s\n", names[i], utils.FormatSigned(p, 4)))
		}
		sb.WriteString(fmt.Sprintf("    Errors: short %.4f, mid %.4f, long %.4f, total %.4f\n",
			f.Regions.Short, f.Regions.Mid, f.Regions.Long, f.SSR))
		sb.WriteString(fmt.Sprintf("    R² %.4f, converged %t, %d iterations\n", f.RSquared, f.Converged, f.Iterations))
		sb.WriteString(thinLine + "\n")
	}

	if fly := d.Fly; fly != nil {
		sb.WriteString("\n  ■ BUTTERFLY SPREAD (2s5s10s)\n")
		sb.WriteString(fmt.Sprintf("    Regression coefficients: %s\n", fly.Coefficients))
		sb.WriteString(fmt.Sprintf("    Updated weights: %s\n", fly.Weights))
		sb.WriteString(fmt.Sprintf("    Hedge R²: %s\n", fly.HedgeR2))
		sb.WriteString(fmt.Sprintf("    Mean Reversion Spread: %s\n", fly.Mean))
		sb.WriteString(fmt.Sprintf("    Standard Deviation of Reversion Spread: %s\n", fly.StdDev))
		sb.WriteString(fmt.Sprintf("    Latest z-score: %s\n", fly.LatestZ))
		sb.WriteString(thinLine + "\n")
	}

	if s := d.Spread; s != nil {
		sb.WriteString("\n  ■ 5Y-2Y SPREAD\n")
		sb.WriteString(fmt.Sprintf("    Mean Spread: %s\n", s.Mean))
		sb.WriteString(fmt.Sprintf("    Standard Deviation: %s\n", s.StdDev))
		sb.WriteString(fmt.Sprintf("    Min Spread: %s\n", s.Min))
		sb.WriteString(fmt.Sprintf("    Max Spread: %s\n", s.Max))
		sb.WriteString(fmt.Sprintf("    Slope: %s, R-squared: %s\n", s.Slope, s.RSquared))
		if s.Reverting {
			sb.WriteString(fmt.Sprintf("    Mean-reverting, latest z-score %s\n", s.LatestZ))
		} else {
			sb.WriteString("    Legs co-move; z-scores not computed\n")
		}
		sb.WriteString(thinLine + "\n")
	}

	if len(d.Warnings) > 0 {
		sb.WriteString(fmt.Sprintf("\n  ⚠ WARNINGS (%d)\n", len(d.Warnings)))
		for _, w := range d.Warnings {
			sb.WriteString("    " + w + "\n")
		}
	}

	sb.WriteString("\n" + line + "\n")
	return sb.String()
}

// ════════════════════════════════════════════════════════════════════
// Utility: Timestamp
// ════════════════════════════════════════════════════════════════════

// ReportTimestamp returns the current US/Eastern time formatted for report headers.
func ReportTimestamp() string {
	return utils.NowET().Format("02 Jan 2006, 03:04 PM MST")
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
