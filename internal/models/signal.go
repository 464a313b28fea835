package models

import (
	"fmt"
	"math"
	"sort"
)

// RawReplicate holds the readings of one plate file in well order. Donor is the
// 615 nm channel, Acceptor the 665 nm channel. The final well of each channel is
// the no-acceptor crosstalk calibration control.
type RawReplicate struct {
	Donor    []float64 `json:"donor_615" yaml:"donor_615"`
	Acceptor []float64 `json:"acceptor_665" yaml:"acceptor_665"`
}

// Validate checks that both channels are present, equally long, even-length and
// hold finite non-negative readings.
func (r *RawReplicate) Validate() error {
	if len(r.Donor) == 0 || len(r.Acceptor) == 0 {
		return fmt.Errorf("%w: replicate has an empty channel (donor=%d, acceptor=%d)", ErrMalformedInput, len(r.Donor), len(r.Acceptor))
	}
	if len(r.Donor) != len(r.Acceptor) {
		return fmt.Errorf("%w: donor and acceptor channels differ in length (%d vs %d)", ErrMalformedInput, len(r.Donor), len(r.Acceptor))
	}
	if len(r.Donor)%2 != 0 {
		return fmt.Errorf("%w: well count must be even, got %d", ErrMalformedInput, len(r.Donor))
	}
	if len(r.Donor) < 4 {
		return fmt.Errorf("%w: at least 4 wells are needed for one corrected point, got %d", ErrMalformedInput, len(r.Donor))
	}
	for i := range r.Donor {
		if !validReading(r.Donor[i]) || !validReading(r.Acceptor[i]) {
			return fmt.Errorf("%w: well %d holds an invalid reading (donor=%g, acceptor=%g)", ErrMalformedInput, i, r.Donor[i], r.Acceptor[i])
		}
	}
	return nil
}

func validReading(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// ReplicateSet maps 1-based replicate indices to their raw readings.
type ReplicateSet map[int]RawReplicate

// Validate checks every replicate and that all replicates share one well count.
func (s ReplicateSet) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no replicates", ErrMalformedInput)
	}
	wells := -1
	for _, idx := range sortedKeys(s) {
		rep := s[idx]
		if err := rep.Validate(); err != nil {
			return fmt.Errorf("replicate %d: %w", idx, err)
		}
		if wells >= 0 && len(rep.Donor) != wells {
			return fmt.Errorf("%w: replicate %d has %d wells, expected %d", ErrMalformedInput, idx, len(rep.Donor), wells)
		}
		wells = len(rep.Donor)
	}
	return nil
}

// Indices returns replicate indices in ascending order.
func (s ReplicateSet) Indices() []int {
	return sortedKeys(s)
}

// ReplicateSignal maps 1-based replicate indices to one value per concentration point.
type ReplicateSignal map[int][]float64

// Indices returns replicate indices in ascending order, which is the order
// statistics and output reduce across.
func (s ReplicateSignal) Indices() []int {
	return sortedKeys(s)
}

// Replicates returns the number of replicates.
func (s ReplicateSignal) Replicates() int {
	return len(s)
}

// Datapoints returns the common sequence length, or 0 for an empty signal.
func (s ReplicateSignal) Datapoints() int {
	for _, idx := range s.Indices() {
		return len(s[idx])
	}
	return 0
}

// Rows returns the sequences in index order.
func (s ReplicateSignal) Rows() [][]float64 {
	rows := make([][]float64, 0, len(s))
	for _, idx := range s.Indices() {
		rows = append(rows, s[idx])
	}
	return rows
}

// Validate checks that the signal is non-empty, rectangular and finite.
func (s ReplicateSignal) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: signal has no replicates", ErrMalformedInput)
	}
	n := s.Datapoints()
	if n == 0 {
		return fmt.Errorf("%w: signal has zero-length series", ErrMalformedInput)
	}
	for _, idx := range s.Indices() {
		values := s[idx]
		if len(values) != n {
			return fmt.Errorf("%w: replicate %d has %d points, expected %d", ErrMalformedInput, idx, len(values), n)
		}
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: replicate %d point %d is not finite", ErrMalformedInput, idx, i)
			}
		}
	}
	return nil
}

// CorrectedSignal is the crosstalk-corrected FRET signal of every replicate.
type CorrectedSignal struct {
	ReplicateSignal
}

// NormalizedSignal is the corrected signal rescaled to the unit interval.
type NormalizedSignal struct {
	ReplicateSignal
}

// ConcentrationSeries holds the ligand concentrations (nM) aligned positionally
// with the corrected signal, plus their base-10 logarithms.
type ConcentrationSeries struct {
	Nanomolar []float64 `json:"concentration_nm" yaml:"concentration_nm"`
	Log10     []float64 `json:"log_concentration" yaml:"log_concentration"`
}

// Len returns the number of concentration points.
func (c ConcentrationSeries) Len() int {
	return len(c.Nanomolar)
}

// Validate checks that both sequences are aligned and every concentration is positive.
func (c *ConcentrationSeries) Validate() error {
	if len(c.Nanomolar) == 0 {
		return fmt.Errorf("%w: empty concentration series", ErrMalformedInput)
	}
	if len(c.Nanomolar) != len(c.Log10) {
		return fmt.Errorf("%w: concentration and log series differ in length (%d vs %d)", ErrMalformedInput, len(c.Nanomolar), len(c.Log10))
	}
	for i, v := range c.Nanomolar {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: concentration %d is %g", ErrDegenerateInput, i, v)
		}
	}
	return nil
}

// SignalStatistics holds the per-point reduction across replicates.
type SignalStatistics struct {
	Average    []float64 `json:"average" yaml:"average"`
	Dispersion []float64 `json:"standard_deviation" yaml:"standard_deviation"`
	StdError   []float64 `json:"standard_error" yaml:"standard_error"`
}

// SignalView bundles a signal with the series and statistics it is reported with.
type SignalView struct {
	Signal         ReplicateSignal     `json:"signal" yaml:"signal"`
	Concentrations ConcentrationSeries `json:"concentrations" yaml:"concentrations"`
	Statistics     SignalStatistics    `json:"statistics" yaml:"statistics"`
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
