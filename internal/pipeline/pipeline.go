// Package pipeline runs one titration dataset from raw plate readings to
// binding fits.
//
// Stages run in a fixed order: crosstalk correction, concentration series,
// normalization, per-point statistics for both the corrected and the
// normalized view, then one fit per configured model on the replicate-averaged
// normalized signal. A Pipeline holds configuration only, so consecutive runs
// never observe each other.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/trfret/internal/concentration"
	"github.com/rewired-gh/trfret/internal/fitting"
	"github.com/rewired-gh/trfret/internal/logger"
	"github.com/rewired-gh/trfret/internal/models"
	"github.com/rewired-gh/trfret/internal/plate"
	"github.com/rewired-gh/trfret/internal/signal"
	"github.com/rewired-gh/trfret/internal/stats"
)

// Options configures a Pipeline. Zero values select the documented defaults.
type Options struct {
	Models        []fitting.Model
	Fitting       fitting.Options
	Normalization signal.Policy
	StdConvention stats.Convention
}

// Pipeline processes datasets
type Pipeline struct {
	models     []fitting.Model
	engine     *fitting.Engine
	policy     signal.Policy
	convention stats.Convention
	now        func() time.Time
}

// New creates a Pipeline
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{
		models:     opts.Models,
		engine:     fitting.NewEngine(opts.Fitting),
		policy:     opts.Normalization,
		convention: opts.StdConvention,
		now:        time.Now,
	}
	if len(p.models) == 0 {
		p.models = []fitting.Model{fitting.Simple{}, fitting.Quadratic{}, fitting.Cooperative{}}
	}
	if p.policy == "" {
		p.policy = signal.PerReplicate
	}
	if p.convention == "" {
		p.convention = stats.Population
	}
	if _, err := signal.ParsePolicy(string(p.policy)); err != nil {
		return nil, err
	}
	if _, err := stats.ParseConvention(string(p.convention)); err != nil {
		return nil, err
	}
	return p, nil
}

// RunPath loads the dataset at d.Path and runs it.
func (p *Pipeline) RunPath(ctx context.Context, d models.DatasetConfig) (*models.Run, error) {
	raw, err := plate.Load(d)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return p.Run(ctx, d, raw)
}

// Run processes already-parsed replicates. Per-model fit failures do not fail
// the run; they are recorded in Run.FitErrors and as sentinel results.
func (p *Pipeline) Run(ctx context.Context, d models.DatasetConfig, raw models.ReplicateSet) (*models.Run, error) {
	run := &models.Run{ID: uuid.NewString(), StartedAt: p.now()}
	logger.Info("Run %s started for %s (%d replicate file(s))", run.ID, d.Path, len(raw))

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dataset configuration: %w", err)
	}

	corrected, err := signal.Correct(raw)
	if err != nil {
		return nil, fmt.Errorf("signal correction failed: %w", err)
	}
	d = d.WithCounts(corrected.Replicates(), corrected.Datapoints())
	run.Dataset = d
	logger.Debug("Corrected %d replicate(s) to %d point(s) each", d.ReplicateCount, d.DatapointCount)

	series, err := concentration.FromDataset(d)
	if err != nil {
		return nil, fmt.Errorf("concentration series failed: %w", err)
	}

	normalized, err := signal.Normalize(corrected, p.policy)
	if err != nil {
		return nil, fmt.Errorf("normalization failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	correctedStats, err := stats.Aggregate(corrected.ReplicateSignal, p.convention)
	if err != nil {
		return nil, fmt.Errorf("corrected statistics failed: %w", err)
	}
	normalizedStats, err := stats.Aggregate(normalized.ReplicateSignal, p.convention)
	if err != nil {
		return nil, fmt.Errorf("normalized statistics failed: %w", err)
	}
	run.Corrected = models.SignalView{Signal: corrected.ReplicateSignal, Concentrations: series, Statistics: correctedStats}
	run.Normalized = models.SignalView{Signal: normalized.ReplicateSignal, Concentrations: series, Statistics: normalizedStats}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fits, fitErrs := p.engine.FitAll(p.models, series.Nanomolar, normalizedStats.Average, d.ReplicateCount)
	run.Fits = fits
	for name, err := range fitErrs {
		if run.FitErrors == nil {
			run.FitErrors = make(map[string]string)
		}
		run.FitErrors[name] = err.Error()
		if errors.Is(err, fitting.ErrInsufficientDOF) {
			logger.Warn("Skipped %s fit: %v", name, err)
		} else {
			logger.Error("%s fit failed: %v", name, err)
		}
	}

	run.CompletedAt = p.now()
	logger.Info("Run %s completed: %d/%d model(s) converged in %v",
		run.ID, succeeded(fits), len(fits), run.CompletedAt.Sub(run.StartedAt))
	return run, nil
}

func succeeded(fits []models.FitResult) int {
	n := 0
	for _, f := range fits {
		if f.Succeeded() {
			n++
		}
	}
	return n
}
