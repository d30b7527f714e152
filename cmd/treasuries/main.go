// treasuries fits Nelson-Siegel-Svensson curves to daily US Treasury par
// yields and analyzes the 2s5s10s butterfly and 2s5s spread.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yazwaza/us-treasuries/api"
	"github.com/yazwaza/us-treasuries/internal/config"
	"github.com/yazwaza/us-treasuries/internal/logging"
	"github.com/yazwaza/us-treasuries/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root command's pre-run.
var (
	cfg    *config.Config
	logger = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "treasuries",
	Short: "US Treasury yield curve fitting and butterfly analysis",
	Long: `treasuries fits a Nelson-Siegel-Svensson (or Nelson-Siegel) curve to each
day of Treasury par yields, warm-starting from the previous day, then studies
the 2s5s10s butterfly: market versus model spread, the hedge-ratio regression,
mean reversion and z-scores. A 2s5s spread calculator and a cubic spline
interpolator are included.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		cfg, err = config.LoadPath(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		return applyDataFlags(cmd, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.PersistentFlags().String("source", "", "data source override (csv, feed, table)")
	rootCmd.PersistentFlags().StringSlice("file", nil, "Treasury par yield CSV file(s) for the csv source")
	rootCmd.PersistentFlags().IntSlice("year", nil, "calendar year(s) to download for the feed and table sources")
	rootCmd.PersistentFlags().Int("months", -1, "analyze only the last N months (0 = whole series)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(butterflyCmd)
	rootCmd.AddCommand(spreadCmd)
	rootCmd.AddCommand(splineCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("treasuries %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis and serve it over HTTP",
	Long: `Run the analysis once at startup, then serve the report, charts, Prometheus
metrics and a websocket progress stream. POST /api/v1/refit runs it again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hub := api.NewWSHub()
		p, metrics, err := buildPipeline(hub)
		if err != nil {
			return err
		}

		opts := []api.Option{api.WithHub(hub), api.WithLogger(logger), api.WithVersion(version)}
		if metrics != nil {
			opts = append(opts, api.WithMetrics(metrics))
		}
		srv, err := api.NewServer(cfg, p, opts...)
		if err != nil {
			return err
		}

		go func() {
			if _, err := p.Run(ctx); err != nil {
				logger.Error("initial analysis failed; POST /api/v1/refit to retry", zap.Error(err))
			}
		}()

		addr := cfg.API.Addr()
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			addr = fmt.Sprintf("%s:%d", cfg.API.Host, port)
		}
		fmt.Printf("🌐 Serving treasury curve analysis on http://%s\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port override")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and market calendar status",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := utils.NowET()
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  treasuries status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Time (ET):     %s\n", now.Format("2006-01-02 15:04 MST"))
		if utils.IsBusinessDay(now) {
			fmt.Println("  Bond market:   business day")
		} else if h := utils.HolidayName(now); h != "" {
			fmt.Printf("  Bond market:   closed (%s)\n", h)
		} else {
			fmt.Println("  Bond market:   closed (weekend)")
		}
		fmt.Printf("  Last session:  %s\n", utils.FormatDate(utils.PrevBusinessDay(now)))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Source:        %s\n", cfg.Data.Source)
		if len(cfg.Data.Years) > 0 {
			fmt.Printf("    Years:         %v\n", cfg.Data.Years)
		}
		if len(cfg.Data.Files) > 0 {
			fmt.Printf("    Files:         %v\n", cfg.Data.Files)
		}
		fmt.Printf("    Window:        %s\n", windowLabel(cfg.Data.WindowMonths))
		fc, sc, err := cfg.FittingOptions()
		if err != nil {
			fmt.Printf("    Fitting:       ❌ %v\n", err)
		} else {
			fmt.Printf("    Model:         %s (%s)\n", fc.Model, sc.Strategy)
			fmt.Printf("    Tiers:         %d / %d / %d iterations\n",
				fc.QuickIterations, fc.ModerateIterations, fc.IntensiveIterations)
			fmt.Printf("    Thresholds:    %.2f (good), %.2f (acceptable)\n", fc.GoodThreshold, fc.AcceptableThreshold)
		}
		fmt.Printf("    API Server:    %s\n", cfg.API.Addr())
		fmt.Printf("    Metrics:       %t (namespace %q)\n", cfg.Metrics.Enabled, cfg.Metrics.Namespace)
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func windowLabel(months int) string {
	if months == 0 {
		return "whole series"
	}
	return fmt.Sprintf("last %d months", months)
}
