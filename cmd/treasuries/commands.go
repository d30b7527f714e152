package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yazwaza/us-treasuries/internal/analysis/curve"
	"github.com/yazwaza/us-treasuries/internal/analysis/spread"
	"github.com/yazwaza/us-treasuries/internal/config"
	"github.com/yazwaza/us-treasuries/internal/fitting"
	"github.com/yazwaza/us-treasuries/internal/marketdata"
	"github.com/yazwaza/us-treasuries/internal/observability"
	"github.com/yazwaza/us-treasuries/internal/pipeline"
	"github.com/yazwaza/us-treasuries/internal/report"
	"github.com/yazwaza/us-treasuries/pkg/models"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// --- Fit Command ---

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit every day and print the full analysis report",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := buildPipeline(nil)
		if err != nil {
			return err
		}
		rep, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}
		if err := writeSVGs(cmd, rep); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		out, closeOut, err := output(cmd)
		if err != nil {
			return err
		}
		defer closeOut()

		rcfg := report.DefaultReportConfig()
		switch report.ReportFormat(format) {
		case report.FormatText:
			text, err := report.GenerateText(rep, rcfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, text)
			return err
		case report.FormatHTML:
			html, err := report.GenerateHTML(rep, rcfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, html)
			return err
		case report.FormatJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		return fmt.Errorf("%w: unknown format %q (text, html, json)", models.ErrValidation, format)
	},
}

func init() {
	fitCmd.Flags().String("format", string(report.FormatText), "output format (text, html, json)")
	fitCmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	fitCmd.Flags().String("svg-dir", "", "write SVG charts to this directory")
}

// --- Butterfly Command ---

var butterflyCmd = &cobra.Command{
	Use:   "butterfly",
	Short: "Fit the curves and report the 2s5s10s butterfly",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := buildPipeline(nil)
		if err != nil {
			return err
		}
		rep, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}
		if err := writeSVGs(cmd, rep); err != nil {
			return err
		}
		b := rep.Butterfly
		if b == nil {
			for _, w := range rep.Warnings {
				fmt.Fprintln(os.Stderr, "⚠", w)
			}
			return fmt.Errorf("butterfly analysis unavailable for %s to %s",
				utils.FormatDate(rep.Start), utils.FormatDate(rep.End))
		}

		fmt.Printf("🦋 2s5s10s butterfly, %s to %s (%d days)\n\n",
			utils.FormatDate(rep.Start), utils.FormatDate(rep.End), len(b.Points))
		fmt.Printf("  Hedge weights:     %s / %s / %s  (2Y / 5Y / 10Y)\n",
			utils.FormatSigned(b.Weights.Short, 4), utils.FormatSigned(b.Weights.Mid, 4), utils.FormatSigned(b.Weights.Long, 4))
		fmt.Printf("  Regression R²:     %.4f (intercept %s, n=%d)\n",
			b.Regression.RSquared, utils.FormatSigned(b.Regression.Intercept, 4), b.Regression.Observations)
		fmt.Printf("  Reversion mean:    %s\n", utils.FormatPctBps(b.Reversion.Mean))
		fmt.Printf("  Reversion std dev: %s\n\n", utils.FormatPctBps(b.Reversion.StdDev))

		show, _ := cmd.Flags().GetInt("last")
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "date\tmarket\tmodel\tresidual\tz\t")
		from := max(len(b.Points)-show, 0)
		if show <= 0 {
			from = 0
		}
		for i := from; i < len(b.Points); i++ {
			pt := b.Points[i]
			z := "n/a"
			if i < len(b.ZScores) {
				z = utils.FormatSigned(b.ZScores[i], 2)
			}
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%s\t%s\t\n",
				utils.FormatDate(pt.Date), pt.Market, pt.Model, utils.FormatSigned(pt.Residual(), 4), z)
		}
		return tw.Flush()
	},
}

func init() {
	butterflyCmd.Flags().Int("last", 10, "show the last N days (0 = all)")
	butterflyCmd.Flags().String("svg-dir", "", "write SVG charts to this directory")
}

// --- Spread Command (2s5s) ---

var spreadCmd = &cobra.Command{
	Use:   "spread",
	Short: "Compute 2s5s spread statistics without fitting curves",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := buildPipeline(nil)
		if err != nil {
			return err
		}
		obs, err := p.Load(cmd.Context())
		if err != nil {
			return err
		}
		s, err := spread.AnalyzeObservations(obs)
		if err != nil && !errors.Is(err, models.ErrNumericalDegeneracy) {
			return err
		}

		fmt.Printf("📐 5Y-2Y spread, %s to %s (%d days)\n\n",
			utils.FormatDate(obs[0].Date), utils.FormatDate(obs[len(obs)-1].Date), len(obs))
		fmt.Printf("  Mean:     %s\n", utils.FormatPctBps(s.Mean))
		fmt.Printf("  Std dev:  %s\n", utils.FormatPctBps(s.StdDev))
		fmt.Printf("  Range:    %s to %s\n", utils.FormatBps(s.Min), utils.FormatBps(s.Max))
		if err != nil {
			return fmt.Errorf("2s5s regression: %w", err)
		}
		fmt.Printf("  5Y on 2Y: slope %.4f, intercept %s, R² %.4f\n",
			s.Slope, utils.FormatSigned(s.Intercept, 4), s.RSquared)
		if !s.Reverting {
			fmt.Println("  Legs move together; z-scores are not meaningful for this window.")
			return nil
		}
		fmt.Printf("  Latest z: %s\n", utils.FormatSigned(s.ZScores[len(s.ZScores)-1], 2))
		return nil
	},
}

// --- Spline Command ---

var splineCmd = &cobra.Command{
	Use:   "spline [date]",
	Short: "Interpolate one day's observed curve with a cubic spline",
	Long: `Interpolate the observed par curve of one day (default: the latest) with a
cubic spline and print it on an evenly spaced maturity grid.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := buildPipeline(nil)
		if err != nil {
			return err
		}
		obs, err := p.Load(cmd.Context())
		if err != nil {
			return err
		}
		day := obs[len(obs)-1]
		if len(args) == 1 {
			d, err := utils.ParseTreasuryDate(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", models.ErrValidation, err)
			}
			found := false
			for _, o := range obs {
				if utils.FormatDate(o.Date) == utils.FormatDate(d) {
					day, found = o, true
					break
				}
			}
			if !found {
				return fmt.Errorf("no observation on %s", utils.FormatDate(d))
			}
		}

		boundary, _ := cmd.Flags().GetString("boundary")
		points, _ := cmd.Flags().GetInt("points")
		s, err := curve.FitSpline(day.Yields, curve.Boundary(boundary))
		if err != nil {
			return err
		}

		fmt.Printf("〰 %s cubic spline, %s\n\n", s.Boundary, utils.FormatDate(day.Date))
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "maturity (y)\tyield\t")
		mats, ys := s.Sample(points)
		for i := range mats {
			fmt.Fprintf(tw, "%.2f\t%s\t\n", mats[i], utils.FormatYield(ys[i]))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if dir, _ := cmd.Flags().GetString("svg-dir"); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(dir, "spline.svg")
			svg := report.SplineChart(day, s, report.DefaultChartConfig())
			if err := os.WriteFile(path, []byte(svg), 0o644); err != nil {
				return err
			}
			fmt.Printf("\n  wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	splineCmd.Flags().String("boundary", string(curve.BoundaryNatural), "boundary condition (natural, clamped, not-a-knot)")
	splineCmd.Flags().Int("points", 30, "number of maturities to sample")
	splineCmd.Flags().String("svg-dir", "", "write the spline chart to this directory")
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

// applyDataFlags overrides the data section of c with any set data flags.
func applyDataFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("source") {
		c.Data.Source, _ = flags.GetString("source")
	}
	if flags.Changed("file") {
		c.Data.Files, _ = flags.GetStringSlice("file")
		if !flags.Changed("source") {
			c.Data.Source = marketdata.KindCSV
		}
	}
	if flags.Changed("year") {
		c.Data.Years, _ = flags.GetIntSlice("year")
	}
	if flags.Changed("months") {
		months, _ := flags.GetInt("months")
		if months < 0 {
			return fmt.Errorf("%w: --months must be 0 or more", models.ErrValidation)
		}
		c.Data.WindowMonths = months
	}
	return nil
}

// buildPipeline wires source, fitting settings and metrics from the global
// config. observer may be nil.
func buildPipeline(observer fitting.Observer) (*pipeline.Pipeline, *observability.Metrics, error) {
	src, err := marketdata.NewSource(cfg.SourceOptions())
	if err != nil {
		return nil, nil, err
	}
	fc, sc, err := cfg.FittingOptions()
	if err != nil {
		return nil, nil, err
	}
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}
	p, err := pipeline.New(pipeline.Options{
		Source:       src,
		WindowMonths: cfg.Data.WindowMonths,
		Fitting:      fc,
		Solver:       sc,
		Logger:       logger,
		Metrics:      metrics,
		Observer:     observer,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, metrics, nil
}

func writeSVGs(cmd *cobra.Command, rep *models.AnalysisReport) error {
	dir, _ := cmd.Flags().GetString("svg-dir")
	if dir == "" {
		return nil
	}
	paths, err := report.WriteCharts(dir, rep, report.DefaultChartConfig())
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(os.Stderr, "  wrote %s\n", p)
	}
	return nil
}

// output returns the writer selected by --output and its closer.
func output(cmd *cobra.Command) (io.Writer, func(), error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
