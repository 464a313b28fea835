package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rewired-gh/trfret/internal/config"
	"github.com/rewired-gh/trfret/internal/logger"
	"github.com/rewired-gh/trfret/internal/models"
	"github.com/rewired-gh/trfret/internal/notify"
	"github.com/rewired-gh/trfret/internal/pipeline"
	"github.com/rewired-gh/trfret/internal/report"
	"github.com/rewired-gh/trfret/internal/workbook"
)

var (
	configPath    = flag.String("config", "configs/config.yaml", "Path to configuration file")
	datasetPath   = flag.String("path", "", "CSV file or directory of CSV files, one replicate per file")
	maxConc       = flag.Float64("max-conc", 0, "Maximum concentration in µM")
	dilution      = flag.Int("dilution", 0, "Dilution factor between consecutive wells")
	increasing    = flag.Bool("increasing", false, "Concentrations increase along well order")
	rowFormat     = flag.Bool("row-format", false, "Plates hold one series per row")
	normalization = flag.String("normalization", "", "Normalization policy: per_replicate or global")
	summary       = flag.String("summary", "", "Summary format: text, json, yaml or none")
	interactive   = flag.Bool("interactive", false, "Prompt for datasets until 'q'")
)

// app holds the collaborators shared by every dataset of one invocation.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	writer   *workbook.Writer
	notifier notify.Notifier
	out      io.Writer
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("Configuration loaded from %s", *configPath)

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		logger.Fatal("Failed to initialize: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *interactive {
		fmt.Println("Each CSV file holds one replicate: donor (615) readings, a blank separator, then acceptor (665) readings per column.")
		a.interactive(ctx, newPrompter(os.Stdin, os.Stdout))
		return
	}

	if cfg.Dataset.Path == "" {
		log.Fatalf("No dataset given: set -path, dataset.path or use -interactive")
	}
	if err := a.process(ctx, cfg.DatasetFor(cfg.Dataset.Path)); err != nil {
		logger.Fatal("%v", err)
	}
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.Dataset.Path = *datasetPath
		case "max-conc":
			cfg.Dataset.MaxConcentration = *maxConc
		case "dilution":
			cfg.Dataset.DilutionFactor = *dilution
		case "increasing":
			cfg.Dataset.Ordering = string(models.Decreasing)
			if *increasing {
				cfg.Dataset.Ordering = string(models.Increasing)
			}
		case "row-format":
			cfg.Dataset.Orientation = string(models.ColumnOrientation)
			if *rowFormat {
				cfg.Dataset.Orientation = string(models.RowOrientation)
			}
		case "normalization":
			cfg.Analysis.Normalization = *normalization
		case "summary":
			cfg.Output.Summary = *summary
		}
	})
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	ms, err := cfg.FitModels()
	if err != nil {
		return nil, err
	}
	fitOpts, err := cfg.FittingOptions()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.NormalizationPolicy()
	if err != nil {
		return nil, err
	}
	convention, err := cfg.StdConvention()
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(pipeline.Options{
		Models:        ms,
		Fitting:       fitOpts,
		Normalization: policy,
		StdConvention: convention,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, pipeline: p, out: out}
	if cfg.Output.Workbook {
		a.writer = workbook.NewWriter(cfg.Output.Dir, cfg.Output.Chart)
	}

	var notifiers notify.Multi
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		notifiers = append(notifiers, tg)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	if cfg.Slack.Enabled {
		notifiers = append(notifiers, notify.NewSlack(cfg.Slack.BotToken, cfg.Slack.ChannelID))
		logger.Info("Slack client initialized successfully")
	} else {
		logger.Debug("Slack notifications disabled")
	}
	if len(notifiers) > 0 {
		a.notifier = notifiers
	}
	return a, nil
}

// process runs one dataset and delivers its outputs.
func (a *app) process(ctx context.Context, d models.DatasetConfig) error {
	run, err := a.pipeline.RunPath(ctx, d)
	if err != nil {
		return fmt.Errorf("run failed for %s: %w", d.Path, err)
	}

	var path string
	if a.writer != nil {
		path, err = a.writer.Save(run)
		if err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
	}

	if err := report.Write(a.out, report.NewSummary(run, path), a.cfg.Output.Summary); err != nil {
		return fmt.Errorf("failed to print summary: %w", err)
	}

	if a.notifier != nil {
		if err := a.notifier.Notify(ctx, run, path); err != nil {
			logger.Warn("Failed to send notification: %v", err)
		}
	}
	return nil
}

// interactive prompts for datasets until the user quits. A failed dataset is
// reported and the loop continues.
func (a *app) interactive(ctx context.Context, p *prompter) {
	defaults := a.cfg.DatasetFor(a.cfg.Dataset.Path)
	for ctx.Err() == nil {
		d, ok := p.dataset(defaults)
		if !ok {
			return
		}
		if err := a.process(ctx, d); err != nil {
			logger.Error("%v", err)
		}
		fmt.Fprintf(a.out, "\n%s\n\n", strings.Repeat("*", 50))
	}
}
