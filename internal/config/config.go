package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/trfret/internal/fitting"
	"github.com/rewired-gh/trfret/internal/models"
	"github.com/rewired-gh/trfret/internal/signal"
	"github.com/rewired-gh/trfret/internal/stats"
)

// Config represents the complete application configuration
type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Fitting  FittingConfig  `mapstructure:"fitting"`
	Output   OutputConfig   `mapstructure:"output"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatasetConfig holds the plate and dilution series description
type DatasetConfig struct {
	Path             string  `mapstructure:"path"`
	MaxConcentration float64 `mapstructure:"max_concentration"`
	DilutionFactor   int     `mapstructure:"dilution_factor"`
	Ordering         string  `mapstructure:"ordering"`
	Orientation      string  `mapstructure:"orientation"`
}

// AnalysisConfig holds the signal processing policies
type AnalysisConfig struct {
	Normalization string `mapstructure:"normalization"`
	StdConvention string `mapstructure:"std_convention"`
}

// FittingConfig holds curve fitting configuration
type FittingConfig struct {
	Models        []string `mapstructure:"models"`
	HillPlateaus  bool     `mapstructure:"hill_plateaus"`
	Solver        string   `mapstructure:"solver"`
	MaxIterations int      `mapstructure:"max_iterations"`
	Confidence    float64  `mapstructure:"confidence"`
}

// OutputConfig holds result artifact configuration
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	Workbook bool   `mapstructure:"workbook"`
	Chart    bool   `mapstructure:"chart"`
	Summary  string `mapstructure:"summary"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// SlackConfig holds Slack notification configuration
type SlackConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
	Enabled   bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Summary formats accepted by output.summary.
const (
	SummaryText = "text"
	SummaryJSON = "json"
	SummaryYAML = "yaml"
	SummaryNone = "none"
)

// Load reads configuration from file and environment variables. A missing
// file is not an error; defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment overrides, e.g. TRFRET_FITTING_SOLVER
	v.SetEnvPrefix("TRFRET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Dataset defaults
	v.SetDefault("dataset.path", "")
	v.SetDefault("dataset.max_concentration", models.DefaultMaxConcentration)
	v.SetDefault("dataset.dilution_factor", models.DefaultDilutionFactor)
	v.SetDefault("dataset.ordering", string(models.Decreasing))
	v.SetDefault("dataset.orientation", string(models.ColumnOrientation))

	// Analysis defaults
	v.SetDefault("analysis.normalization", string(signal.PerReplicate))
	v.SetDefault("analysis.std_convention", string(stats.Population))

	// Fitting defaults
	v.SetDefault("fitting.models", []string{fitting.SimpleModel, fitting.QuadraticModel, fitting.CooperativeModel})
	v.SetDefault("fitting.hill_plateaus", false)
	v.SetDefault("fitting.solver", fitting.LevenbergMarquardtSolver)
	v.SetDefault("fitting.max_iterations", 200)
	v.SetDefault("fitting.confidence", fitting.DefaultConfidence)

	// Output defaults
	v.SetDefault("output.dir", "")
	v.SetDefault("output.workbook", true)
	v.SetDefault("output.chart", true)
	v.SetDefault("output.summary", SummaryText)

	// Notification defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("slack.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid. dataset.path is
// not checked here since the interactive mode supplies it per run.
func (c *Config) Validate() error {
	// Validate Dataset config
	if !(c.Dataset.MaxConcentration > 0) || math.IsInf(c.Dataset.MaxConcentration, 1) {
		return fmt.Errorf("dataset.max_concentration must be a positive finite number")
	}
	if c.Dataset.DilutionFactor < 2 {
		return fmt.Errorf("dataset.dilution_factor must be at least 2")
	}
	if c.Dataset.Ordering != string(models.Decreasing) && c.Dataset.Ordering != string(models.Increasing) {
		return fmt.Errorf("dataset.ordering must be one of: decreasing, increasing")
	}
	if c.Dataset.Orientation != string(models.ColumnOrientation) && c.Dataset.Orientation != string(models.RowOrientation) {
		return fmt.Errorf("dataset.orientation must be one of: column, row")
	}

	// Validate Analysis config
	if _, err := signal.ParsePolicy(c.Analysis.Normalization); err != nil {
		return fmt.Errorf("analysis.normalization: %w", err)
	}
	if _, err := stats.ParseConvention(c.Analysis.StdConvention); err != nil {
		return fmt.Errorf("analysis.std_convention: %w", err)
	}

	// Validate Fitting config
	if len(c.Fitting.Models) == 0 {
		return fmt.Errorf("fitting.models must contain at least one model")
	}
	seen := make(map[string]bool)
	for _, name := range c.Fitting.Models {
		m, err := fitting.ModelByName(name, c.Fitting.HillPlateaus)
		if err != nil {
			return fmt.Errorf("fitting.models: %w", err)
		}
		if seen[m.Name()] {
			return fmt.Errorf("fitting.models lists %s twice", m.Name())
		}
		seen[m.Name()] = true
	}
	if _, err := fitting.NewSolver(c.Fitting.Solver, c.Fitting.MaxIterations); err != nil {
		return fmt.Errorf("fitting.solver: %w", err)
	}
	if c.Fitting.MaxIterations < 1 {
		return fmt.Errorf("fitting.max_iterations must be at least 1")
	}
	if !(c.Fitting.Confidence > 0 && c.Fitting.Confidence < 1) {
		return fmt.Errorf("fitting.confidence must be between 0 and 1 exclusive")
	}

	// Validate Output config
	validSummaries := map[string]bool{SummaryText: true, SummaryJSON: true, SummaryYAML: true, SummaryNone: true}
	if !validSummaries[c.Output.Summary] {
		return fmt.Errorf("output.summary must be one of: text, json, yaml, none")
	}

	// Validate notification config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Slack.Enabled {
		if c.Slack.BotToken == "" {
			return fmt.Errorf("slack.bot_token is required when slack is enabled")
		}
		if c.Slack.ChannelID == "" {
			return fmt.Errorf("slack.channel_id is required when slack is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// DatasetFor returns the run description for the dataset at path.
func (c *Config) DatasetFor(path string) models.DatasetConfig {
	return models.DatasetConfig{
		Path:             path,
		MaxConcentration: c.Dataset.MaxConcentration,
		DilutionFactor:   c.Dataset.DilutionFactor,
		Orientation:      models.Orientation(c.Dataset.Orientation),
		Ordering:         models.Ordering(c.Dataset.Ordering),
	}
}

// FitModels resolves the configured model list in order.
func (c *Config) FitModels() ([]fitting.Model, error) {
	ms := make([]fitting.Model, 0, len(c.Fitting.Models))
	for _, name := range c.Fitting.Models {
		m, err := fitting.ModelByName(name, c.Fitting.HillPlateaus)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// FittingOptions builds the engine options from the fitting section.
func (c *Config) FittingOptions() (fitting.Options, error) {
	solver, err := fitting.NewSolver(c.Fitting.Solver, c.Fitting.MaxIterations)
	if err != nil {
		return fitting.Options{}, err
	}
	return fitting.Options{Solver: solver, Confidence: c.Fitting.Confidence}, nil
}

// NormalizationPolicy returns the parsed analysis.normalization value.
func (c *Config) NormalizationPolicy() (signal.Policy, error) {
	return signal.ParsePolicy(c.Analysis.Normalization)
}

// StdConvention returns the parsed analysis.std_convention value.
func (c *Config) StdConvention() (stats.Convention, error) {
	return stats.ParseConvention(c.Analysis.StdConvention)
}
