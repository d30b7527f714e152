// Package config handles configuration loading for the treasuries tool.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yazwaza/us-treasuries/internal/fitting"
	"github.com/yazwaza/us-treasuries/internal/marketdata"
	"github.com/yazwaza/us-treasuries/internal/solver"
	"github.com/yazwaza/us-treasuries/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g.
// TREASURIES_FITTING_GOOD_THRESHOLD.
const EnvPrefix = "TREASURIES"

// Config represents the complete application configuration.
type Config struct {
	Data    DataConfig    `mapstructure:"data"    yaml:"data"`
	Fitting FittingConfig `mapstructure:"fitting" yaml:"fitting"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// DataConfig selects where yields come from.
type DataConfig struct {
	Source       string   `mapstructure:"source"        yaml:"source"` // "csv", "feed", "table"
	Files        []string `mapstructure:"files"         yaml:"files"`
	Years        []int    `mapstructure:"years"         yaml:"years"`
	WindowMonths int      `mapstructure:"window_months" yaml:"window_months"` // 0 = whole series
	FeedURL      string   `mapstructure:"feed_url"      yaml:"feed_url"`
	TableURL     string   `mapstructure:"table_url"     yaml:"table_url"`
	CacheTTL     int      `mapstructure:"cache_ttl"     yaml:"cache_ttl"` // seconds
}

// FittingConfig holds curve fitting settings. Empty cold_start, lower and
// upper fall back to the model's production defaults.
type FittingConfig struct {
	Model               string    `mapstructure:"model"                yaml:"model"`     // "ns" or "nss"
	Strategy            string    `mapstructure:"strategy"             yaml:"strategy"`  // "bounded" or "simplex"
	Objective           string    `mapstructure:"objective"            yaml:"objective"` // "auto", "weighted", "ssr"
	BenchmarkWeight     float64   `mapstructure:"benchmark_weight"     yaml:"benchmark_weight"`
	QuickIterations     int       `mapstructure:"quick_iterations"     yaml:"quick_iterations"`
	ModerateIterations  int       `mapstructure:"moderate_iterations"  yaml:"moderate_iterations"`
	IntensiveIterations int       `mapstructure:"intensive_iterations" yaml:"intensive_iterations"`
	GoodThreshold       float64   `mapstructure:"good_threshold"       yaml:"good_threshold"`
	AcceptableThreshold float64   `mapstructure:"acceptable_threshold" yaml:"acceptable_threshold"`
	ClampEpsilon        float64   `mapstructure:"clamp_epsilon"        yaml:"clamp_epsilon"`
	Tolerance           float64   `mapstructure:"tolerance"            yaml:"tolerance"`
	StallIterations     int       `mapstructure:"stall_iterations"     yaml:"stall_iterations"`
	ColdStart           []float64 `mapstructure:"cold_start"           yaml:"cold_start"`
	Lower               []float64 `mapstructure:"lower"                yaml:"lower"`
	Upper               []float64 `mapstructure:"upper"                yaml:"upper"`
	Parallel            bool      `mapstructure:"parallel"             yaml:"parallel"`
	ChunkSize           int       `mapstructure:"chunk_size"           yaml:"chunk_size"`
	Workers             int       `mapstructure:"workers"              yaml:"workers"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Addr returns host:port.
func (a APIConfig) Addr() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"   yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.treasuries/config.yaml (home directory)
//  3. /etc/treasuries/config.yaml (system)
//
// Environment variables override config file values.
// Format: TREASURIES_<SECTION>_<KEY>, e.g., TREASURIES_FITTING_MODEL
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".treasuries"))
	v.AddConfigPath("/etc/treasuries")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// LoadPath calls LoadFromFile when path is set and Load otherwise.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	return LoadFromFile(path)
}

// Default returns the built-in defaults, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err) // the defaults are static and always decode
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.source", marketdata.KindCSV)
	v.SetDefault("data.files", []string{"data/2023.csv", "data/2024.csv", "data/2025.csv"})
	v.SetDefault("data.years", []int{})
	v.SetDefault("data.window_months", 3)
	v.SetDefault("data.feed_url", marketdata.DefaultFeedURL)
	v.SetDefault("data.table_url", marketdata.DefaultTableURL)
	v.SetDefault("data.cache_ttl", 1800) // 30 minutes

	// Fitting defaults
	def := fitting.DefaultConfig(models.ModelNSS)
	sd := solver.DefaultSettings()
	v.SetDefault("fitting.model", string(models.ModelNSS))
	v.SetDefault("fitting.strategy", sd.Strategy.String())
	v.SetDefault("fitting.objective", "auto")
	v.SetDefault("fitting.benchmark_weight", def.BenchmarkWeight)
	v.SetDefault("fitting.quick_iterations", def.QuickIterations)
	v.SetDefault("fitting.moderate_iterations", def.ModerateIterations)
	v.SetDefault("fitting.intensive_iterations", def.IntensiveIterations)
	v.SetDefault("fitting.good_threshold", def.GoodThreshold)
	v.SetDefault("fitting.acceptable_threshold", def.AcceptableThreshold)
	v.SetDefault("fitting.clamp_epsilon", def.ClampEpsilon)
	v.SetDefault("fitting.tolerance", sd.Absolute)
	v.SetDefault("fitting.stall_iterations", sd.StallIterations)
	v.SetDefault("fitting.parallel", false)
	v.SetDefault("fitting.chunk_size", fitting.DefaultChunkSize)
	v.SetDefault("fitting.workers", def.Workers)

	// API defaults
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "treasuries")
}

// SourceOptions converts the data section for marketdata.NewSource.
func (c *Config) SourceOptions() marketdata.Options {
	return marketdata.Options{
		Kind:     c.Data.Source,
		Files:    c.Data.Files,
		Years:    c.Data.Years,
		FeedURL:  c.Data.FeedURL,
		TableURL: c.Data.TableURL,
		CacheTTL: time.Duration(c.Data.CacheTTL) * time.Second,
	}
}

// FittingOptions converts the fitting section into driver and optimizer
// settings and validates them.
func (c *Config) FittingOptions() (fitting.Config, solver.Settings, error) {
	f := c.Fitting
	model, err := models.ParseCurveModel(strings.ToLower(f.Model))
	if err != nil {
		return fitting.Config{}, solver.Settings{}, err
	}
	strategy, err := solver.ParseStrategy(f.Strategy)
	if err != nil {
		return fitting.Config{}, solver.Settings{}, err
	}

	fc := fitting.DefaultConfig(model)
	switch strings.ToLower(f.Objective) {
	case "", "auto":
	case "weighted":
		fc.Weighted = true
	case "ssr", "unweighted":
		fc.Weighted = false
	default:
		return fitting.Config{}, solver.Settings{}, fmt.Errorf("%w: unknown objective %q", models.ErrValidation, f.Objective)
	}
	setPositive(&fc.BenchmarkWeight, f.BenchmarkWeight)
	setPositiveInt(&fc.QuickIterations, f.QuickIterations)
	setPositiveInt(&fc.ModerateIterations, f.ModerateIterations)
	setPositiveInt(&fc.IntensiveIterations, f.IntensiveIterations)
	setPositive(&fc.GoodThreshold, f.GoodThreshold)
	setPositive(&fc.AcceptableThreshold, f.AcceptableThreshold)
	setPositive(&fc.ClampEpsilon, f.ClampEpsilon)
	if len(f.ColdStart) > 0 {
		fc.ColdStart = append([]float64(nil), f.ColdStart...)
	}
	if len(f.Lower) > 0 || len(f.Upper) > 0 {
		if len(f.Lower) != len(f.Upper) {
			return fitting.Config{}, solver.Settings{}, fmt.Errorf("%w: %d lower bounds but %d upper bounds",
				models.ErrValidation, len(f.Lower), len(f.Upper))
		}
		fc.Bounds = make([]solver.Bound, len(f.Lower))
		for i := range f.Lower {
			fc.Bounds[i] = solver.Bound{Lower: f.Lower[i], Upper: f.Upper[i]}
		}
	}
	if f.Parallel {
		fc.ChunkSize = fitting.DefaultChunkSize
		setPositiveInt(&fc.ChunkSize, f.ChunkSize)
		setPositiveInt(&fc.Workers, f.Workers)
	} else {
		fc.ChunkSize = 0
	}
	if err := fc.Validate(); err != nil {
		return fitting.Config{}, solver.Settings{}, err
	}

	sc := solver.DefaultSettings()
	sc.Strategy = strategy
	sc.ClampEpsilon = fc.ClampEpsilon
	setPositive(&sc.Absolute, f.Tolerance)
	setPositiveInt(&sc.StallIterations, f.StallIterations)
	return fc, sc, nil
}

func setPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setPositiveInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
