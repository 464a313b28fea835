// Package report prints the human-facing summary of a run as text, JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/trfret/internal/models"
)

// Formats
const (
	Text = "text"
	JSON = "json"
	YAML = "yaml"
	None = "none"
)

// Summary is the machine-readable digest of a run.
type Summary struct {
	ID             string             `json:"id" yaml:"id"`
	Path           string             `json:"path" yaml:"path"`
	Replicates     int                `json:"replicates" yaml:"replicates"`
	Datapoints     int                `json:"datapoints" yaml:"datapoints"`
	Concentrations []float64          `json:"concentration_nm" yaml:"concentration_nm"`
	Average        []float64          `json:"normalized_average" yaml:"normalized_average"`
	StdError       []float64          `json:"normalized_standard_error" yaml:"normalized_standard_error"`
	Fits           []models.FitResult `json:"fits" yaml:"fits"`
	FitErrors      map[string]string  `json:"fit_errors,omitempty" yaml:"fit_errors,omitempty"`
	Workbook       string             `json:"workbook,omitempty" yaml:"workbook,omitempty"`
}

// NewSummary digests a run. workbook is the written artifact path, if any.
func NewSummary(run *models.Run, workbook string) Summary {
	return Summary{
		ID:             run.ID,
		Path:           run.Dataset.Path,
		Replicates:     run.Dataset.ReplicateCount,
		Datapoints:     run.Dataset.DatapointCount,
		Concentrations: run.Normalized.Concentrations.Nanomolar,
		Average:        run.Normalized.Statistics.Average,
		StdError:       run.Normalized.Statistics.StdError,
		Fits:           run.Fits,
		FitErrors:      run.FitErrors,
		Workbook:       workbook,
	}
}

// Write prints the summary in the given format. None writes nothing.
func Write(w io.Writer, s Summary, format string) error {
	switch format {
	case Text, "":
		return writeText(w, s)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case None:
		return nil
	}
	return fmt.Errorf("unknown summary format %q", format)
}

func writeText(w io.Writer, s Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\nRun %s\n", s.ID)
	fmt.Fprintf(&b, "  Dataset: %s\n", s.Path)
	fmt.Fprintf(&b, "  Replicates: %d, datapoints: %d\n", s.Replicates, s.Datapoints)

	b.WriteString("\nNormalized signal:\n")
	fmt.Fprintf(&b, "  %14s  %10s  %10s\n", "Conc (nM)", "Average", "Std Error")
	for i := range s.Concentrations {
		fmt.Fprintf(&b, "  %14.4f  %10.4f  %10.4f\n", s.Concentrations[i], s.Average[i], s.StdError[i])
	}

	b.WriteString("\nFits:\n")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, fit := range s.Fits {
		fmt.Fprintf(&b, "  %s (%s)", fit.Model, fit.Status)
		if fit.Succeeded() {
			fmt.Fprintf(&b, ": df=%d, points=%d, removed=%d, SSR=%.4g", fit.DOF, fit.PointsUsed, fit.RemovedPoints, fit.SSR)
		}
		b.WriteString("\n")
		for _, p := range fit.Parameters {
			fmt.Fprintf(&b, "    %-7s %12.4f  CI [%.4f, %.4f]  SD %.4f  SE %.4f\n",
				p.Name, p.Value, p.CILower, p.CIUpper, p.Dispersion, p.StdError)
		}
		if msg, ok := s.FitErrors[fit.Model]; ok {
			fmt.Fprintf(&b, "    note: %s\n", msg)
		}
	}

	if s.Workbook != "" {
		fmt.Fprintf(&b, "\nWorkbook: %s\n", s.Workbook)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
