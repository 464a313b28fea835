// Package stats reduces a replicate signal across its replicate dimension.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/trfret/internal/models"
)

// Convention selects the standard deviation divisor.
type Convention string

const (
	// Population divides by n (ddof 0).
	Population Convention = "population"
	// Sample divides by n−1 (Bessel correction). With a single replicate it
	// falls back to Population so every point stays defined.
	Sample Convention = "sample"
)

// ParseConvention maps a config string to a Convention.
func ParseConvention(s string) (Convention, error) {
	switch Convention(s) {
	case Population, Sample:
		return Convention(s), nil
	}
	return "", fmt.Errorf("std convention must be %q or %q, got %q", Population, Sample, s)
}

// Effective returns the convention actually applied for n replicates.
func (c Convention) Effective(n int) Convention {
	if c == Sample && n < 2 {
		return Population
	}
	return c
}

// Aggregate computes, per concentration point, the mean across replicates, the
// standard deviation under the effective convention, and the standard error
// sd/√n. Replicates are reduced in ascending index order.
func Aggregate(signal models.ReplicateSignal, convention Convention) (models.SignalStatistics, error) {
	if err := signal.Validate(); err != nil {
		return models.SignalStatistics{}, err
	}
	if convention != Population && convention != Sample {
		return models.SignalStatistics{}, fmt.Errorf("unknown std convention %q", convention)
	}

	rows := signal.Rows()
	reps := len(rows)
	n := signal.Datapoints()
	effective := convention.Effective(reps)
	sqrtN := math.Sqrt(float64(reps))

	out := models.SignalStatistics{
		Average:    make([]float64, n),
		Dispersion: make([]float64, n),
		StdError:   make([]float64, n),
	}
	column := make([]float64, reps)
	for i := 0; i < n; i++ {
		for r, row := range rows {
			column[r] = row[i]
		}
		var mean, variance float64
		if effective == Sample {
			mean, variance = stat.MeanVariance(column, nil)
		} else {
			mean, variance = stat.PopMeanVariance(column, nil)
		}
		sd := math.Sqrt(variance)
		out.Average[i] = mean
		out.Dispersion[i] = sd
		out.StdError[i] = sd / sqrtN
	}
	return out, nil
}
