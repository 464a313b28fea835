package models

import (
	"errors"
	"time"
)

// SentinelValue marks every number of a fit that could not be produced.
// Downstream spreadsheets filter on it, so it stays a literal.
const SentinelValue = 999.0

// FitStatus tells consumers why a FitResult holds real or sentinel values.
type FitStatus string

const (
	FitSucceeded       FitStatus = "succeeded"
	FitFailed          FitStatus = "failed"
	FitInsufficientDOF FitStatus = "insufficient_dof"
)

// ParameterEstimate is one fitted parameter with its confidence interval and
// the dispersion and standard error back-calculated from the interval width.
type ParameterEstimate struct {
	Name       string  `json:"name" yaml:"name"`
	Value      float64 `json:"value" yaml:"value"`
	CILower    float64 `json:"ci_lower" yaml:"ci_lower"`
	CIUpper    float64 `json:"ci_upper" yaml:"ci_upper"`
	Dispersion float64 `json:"standard_deviation" yaml:"standard_deviation"`
	StdError   float64 `json:"standard_error" yaml:"standard_error"`
}

// SentinelEstimate returns the failed-fit record for a parameter.
func SentinelEstimate(name string) ParameterEstimate {
	return ParameterEstimate{
		Name:       name,
		Value:      SentinelValue,
		CILower:    SentinelValue,
		CIUpper:    SentinelValue,
		Dispersion: SentinelValue,
		StdError:   SentinelValue,
	}
}

// FitResult is the boundary record of one binding model fit. A failed or
// DOF-starved fit carries SentinelValue in every numeric field of every parameter.
type FitResult struct {
	Model         string              `json:"model" yaml:"model"`
	Status        FitStatus           `json:"status" yaml:"status"`
	Parameters    []ParameterEstimate `json:"parameters" yaml:"parameters"`
	DOF           int                 `json:"degrees_of_freedom" yaml:"degrees_of_freedom"`
	PointsUsed    int                 `json:"points_used" yaml:"points_used"`
	RemovedPoints int                 `json:"removed_points" yaml:"removed_points"`
	SSR           float64             `json:"ssr" yaml:"ssr"`
}

// Parameter looks up a parameter by name.
func (f FitResult) Parameter(name string) (ParameterEstimate, bool) {
	for _, p := range f.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterEstimate{}, false
}

// Succeeded reports whether the fit converged.
func (f FitResult) Succeeded() bool {
	return f.Status == FitSucceeded
}

// Validate checks the record is internally consistent.
func (f *FitResult) Validate() error {
	if f.Model == "" {
		return errors.New("fit model must not be empty")
	}
	if len(f.Parameters) == 0 {
		return errors.New("fit must carry at least one parameter")
	}
	switch f.Status {
	case FitSucceeded:
	case FitFailed, FitInsufficientDOF:
		for _, p := range f.Parameters {
			if p != SentinelEstimate(p.Name) {
				return errors.New("failed fit must carry sentinel values only")
			}
		}
	default:
		return errors.New("fit status must be succeeded, failed or insufficient_dof")
	}
	return nil
}

// Run is everything one dataset produces, handed to the output collaborators.
type Run struct {
	ID          string            `json:"id" yaml:"id"`
	Dataset     DatasetConfig     `json:"dataset" yaml:"dataset"`
	Corrected   SignalView        `json:"corrected" yaml:"corrected"`
	Normalized  SignalView        `json:"normalized" yaml:"normalized"`
	Fits        []FitResult       `json:"fits" yaml:"fits"`
	FitErrors   map[string]string `json:"fit_errors,omitempty" yaml:"fit_errors,omitempty"`
	StartedAt   time.Time         `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time         `json:"completed_at" yaml:"completed_at"`
}

// Fit returns the result of the named model.
func (r *Run) Fit(model string) (FitResult, bool) {
	for _, f := range r.Fits {
		if f.Model == model {
			return f, true
		}
	}
	return FitResult{}, false
}
