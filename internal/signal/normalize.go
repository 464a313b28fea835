package signal

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/trfret/internal/models"
)

// Policy selects where the min/max of the rescaling come from.
type Policy string

const (
	// PerReplicate rescales each replicate by its own range, so every replicate
	// spans exactly [0,1].
	PerReplicate Policy = "per_replicate"
	// Global rescales every replicate by the range of the replicate-averaged
	// corrected signal. Individual replicates may fall outside [0,1].
	Global Policy = "global"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PerReplicate, Global:
		return Policy(s), nil
	}
	return "", fmt.Errorf("normalization must be %q or %q, got %q", PerReplicate, Global, s)
}

// Normalize maps corrected values to (v − min)/(max − min). A zero range is a
// flat signal with no usable dynamic range and is reported as degenerate input.
func Normalize(corrected models.CorrectedSignal, policy Policy) (models.NormalizedSignal, error) {
	if err := corrected.Validate(); err != nil {
		return models.NormalizedSignal{}, err
	}

	var gmin, gmax float64
	if policy == Global {
		avg := averageAcross(corrected.ReplicateSignal)
		gmin, gmax = floats.Min(avg), floats.Max(avg)
		if gmax == gmin {
			return models.NormalizedSignal{}, fmt.Errorf("%w: averaged signal is flat (%g)", models.ErrDegenerateInput, gmin)
		}
	} else if policy != PerReplicate {
		return models.NormalizedSignal{}, fmt.Errorf("unknown normalization policy %q", policy)
	}

	out := make(models.ReplicateSignal, corrected.Replicates())
	for _, idx := range corrected.Indices() {
		values := corrected.ReplicateSignal[idx]
		lo, hi := gmin, gmax
		if policy == PerReplicate {
			lo, hi = floats.Min(values), floats.Max(values)
			if hi == lo {
				return models.NormalizedSignal{}, fmt.Errorf("%w: replicate %d signal is flat (%g)", models.ErrDegenerateInput, idx, lo)
			}
		}
		scaled := make([]float64, len(values))
		for i, v := range values {
			scaled[i] = (v - lo) / (hi - lo)
		}
		out[idx] = scaled
	}
	return models.NormalizedSignal{ReplicateSignal: out}, nil
}

func averageAcross(s models.ReplicateSignal) []float64 {
	rows := s.Rows()
	n := s.Datapoints()
	avg := make([]float64, n)
	column := make([]float64, len(rows))
	for i := 0; i < n; i++ {
		for r, row := range rows {
			column[r] = row[i]
		}
		avg[i] = stat.Mean(column, nil)
	}
	return avg
}
