// Package models defines the core domain entities for the trfret application.
// These models represent a titration dataset's configuration, the raw dual-channel
// plate readings, the derived signal views, and the per-model binding fits.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology (matching the plate reader's own naming):
//   - Donor channel: the 615 nm emission reading of a well.
//   - Acceptor channel: the 665 nm emission reading of a well.
//   - Replicate: one plate file, holding one dilution series.
package models

import (
	"errors"
	"fmt"
	"math"
)

// Error classes shared across the pipeline. Callers test with errors.Is.
var (
	// ErrMalformedInput marks ragged, empty, negative or non-numeric readings.
	ErrMalformedInput = errors.New("malformed input")
	// ErrDegenerateInput marks input that is well-formed but numerically unusable:
	// a zero calibration donor reading, a flat signal, or a non-positive concentration.
	ErrDegenerateInput = errors.New("degenerate numeric input")
)

// Orientation is the plate layout of an input file.
type Orientation string

const (
	// ColumnOrientation plates hold one dilution series per column.
	ColumnOrientation Orientation = "column"
	// RowOrientation plates hold one dilution series per row and are transposed on ingestion.
	RowOrientation Orientation = "row"
)

// Ordering describes how concentrations change across well order.
type Ordering string

const (
	// Decreasing series start at the maximum concentration.
	Decreasing Ordering = "decreasing"
	// Increasing series end at the maximum concentration.
	Increasing Ordering = "increasing"
)

// Default dataset values used when neither config nor flags provide one.
const (
	DefaultMaxConcentration = 10.0 // µM
	DefaultDilutionFactor   = 2
)

// DatasetConfig describes one titration run. ReplicateCount and DatapointCount are
// derived from parsed data; everything else is configuration. A DatasetConfig is
// constructed once per run and never mutated afterwards.
type DatasetConfig struct {
	Path             string      `json:"path" yaml:"path"`
	MaxConcentration float64     `json:"max_concentration_um" yaml:"max_concentration_um"`
	DilutionFactor   int         `json:"dilution_factor" yaml:"dilution_factor"`
	Orientation      Orientation `json:"orientation" yaml:"orientation"`
	Ordering         Ordering    `json:"ordering" yaml:"ordering"`
	ReplicateCount   int         `json:"replicate_count" yaml:"replicate_count"`
	DatapointCount   int         `json:"datapoint_count" yaml:"datapoint_count"`
}

// NewDatasetConfig returns a DatasetConfig populated with the documented defaults.
func NewDatasetConfig(path string) DatasetConfig {
	return DatasetConfig{
		Path:             path,
		MaxConcentration: DefaultMaxConcentration,
		DilutionFactor:   DefaultDilutionFactor,
		Orientation:      ColumnOrientation,
		Ordering:         Decreasing,
	}
}

// WithCounts returns a copy carrying the counts derived from parsed data.
func (d DatasetConfig) WithCounts(replicates, datapoints int) DatasetConfig {
	d.ReplicateCount = replicates
	d.DatapointCount = datapoints
	return d
}

// Validate checks the configuration fields. Derived counts are only checked
// once they have been set.
func (d *DatasetConfig) Validate() error {
	if !(d.MaxConcentration > 0) || math.IsInf(d.MaxConcentration, 1) {
		return fmt.Errorf("%w: maximum concentration must be a positive finite number, got %g", ErrDegenerateInput, d.MaxConcentration)
	}
	if d.DilutionFactor < 2 {
		return fmt.Errorf("%w: dilution factor must be at least 2, got %d", ErrDegenerateInput, d.DilutionFactor)
	}
	if d.Orientation != ColumnOrientation && d.Orientation != RowOrientation {
		return fmt.Errorf("orientation must be 'column' or 'row', got %q", d.Orientation)
	}
	if d.Ordering != Decreasing && d.Ordering != Increasing {
		return fmt.Errorf("ordering must be 'decreasing' or 'increasing', got %q", d.Ordering)
	}
	if d.ReplicateCount < 0 || d.DatapointCount < 0 {
		return errors.New("replicate and datapoint counts must not be negative")
	}
	return nil
}
