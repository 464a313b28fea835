// Package concentration builds the geometric ligand dilution series of a titration.
package concentration

import (
	"fmt"
	"math"

	"github.com/rewired-gh/trfret/internal/models"
)

// nanomolarPerMicromolar converts the configured µM maximum to the nM series.
const nanomolarPerMicromolar = 1000.0

// Build returns n concentrations in nM. Element 0 of the generated series is
// maxMicromolar×1000 and every following element is the previous divided by
// dilution. For Increasing ordering the series is reversed so it lines up with
// well order. Log10 holds the element-wise base-10 logarithm.
func Build(maxMicromolar float64, dilution, n int, ordering models.Ordering) (models.ConcentrationSeries, error) {
	if !(maxMicromolar > 0) || math.IsInf(maxMicromolar, 0) {
		return models.ConcentrationSeries{}, fmt.Errorf("%w: maximum concentration must be positive and finite, got %g", models.ErrDegenerateInput, maxMicromolar)
	}
	if dilution < 2 {
		return models.ConcentrationSeries{}, fmt.Errorf("%w: dilution factor must be at least 2, got %d", models.ErrDegenerateInput, dilution)
	}
	if n <= 0 {
		return models.ConcentrationSeries{}, fmt.Errorf("%w: datapoint count must be positive, got %d", models.ErrMalformedInput, n)
	}

	nm := make([]float64, n)
	current := maxMicromolar * nanomolarPerMicromolar
	for i := 0; i < n; i++ {
		if ordering == models.Increasing {
			nm[n-1-i] = current
		} else {
			nm[i] = current
		}
		current /= float64(dilution)
	}

	logs, err := Log10(nm)
	if err != nil {
		return models.ConcentrationSeries{}, err
	}
	return models.ConcentrationSeries{Nanomolar: nm, Log10: logs}, nil
}

// FromDataset builds the series for a dataset whose DatapointCount is set.
func FromDataset(d models.DatasetConfig) (models.ConcentrationSeries, error) {
	return Build(d.MaxConcentration, d.DilutionFactor, d.DatapointCount, d.Ordering)
}

// Log10 transforms concentrations, rejecting values outside the log domain.
func Log10(values []float64) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		if !(v > 0) {
			return nil, fmt.Errorf("%w: cannot take log10 of concentration %d (%g)", models.ErrDegenerateInput, i, v)
		}
		out[i] = math.Log10(v)
	}
	return out, nil
}
