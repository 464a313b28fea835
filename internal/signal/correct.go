// Package signal turns raw dual-channel plate readings into a crosstalk-corrected
// FRET signal and rescales that signal to the unit interval.
//
// Each replicate is laid out as donor+acceptor test wells followed by donor-only
// control wells, with the final well holding no acceptor. That well calibrates
// the crosstalk coefficient:
//
//	α = A[N−1] / D[N−1]
//
// and corrected point m is the test well minus its matched control, each with
// donor bleed-through removed:
//
//	(A[half+m] − α·D[half+m]) − (A[m] − α·D[m])
//
// The calibration well never produces an output point.
package signal

import (
	"fmt"

	"github.com/rewired-gh/trfret/internal/models"
)

// CrosstalkCoefficient returns the acceptor/donor ratio at the final (no-acceptor) well.
func CrosstalkCoefficient(rep models.RawReplicate) (float64, error) {
	last := len(rep.Donor) - 1
	if last < 0 || len(rep.Acceptor) != len(rep.Donor) {
		return 0, fmt.Errorf("%w: replicate channels are empty or ragged", models.ErrMalformedInput)
	}
	if rep.Donor[last] == 0 {
		return 0, fmt.Errorf("%w: donor reading at calibration well %d is zero", models.ErrDegenerateInput, last)
	}
	return rep.Acceptor[last] / rep.Donor[last], nil
}

// CorrectReplicate returns the corrected series of one replicate. Its length is
// (N−1) − N/2 for N wells.
func CorrectReplicate(rep models.RawReplicate) ([]float64, error) {
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	alpha, err := CrosstalkCoefficient(rep)
	if err != nil {
		return nil, err
	}

	d, a := rep.Donor, rep.Acceptor
	last := len(d) - 1
	half := len(d) / 2
	out := make([]float64, 0, last-half)
	for p := half; p < last; p++ {
		m := p - half
		out = append(out, (a[p]-alpha*d[p])-(a[m]-alpha*d[m]))
	}
	return out, nil
}

// Correct applies CorrectReplicate to every replicate independently. The raw
// set must be rectangular; any replicate error aborts the whole set.
func Correct(raw models.ReplicateSet) (models.CorrectedSignal, error) {
	if err := raw.Validate(); err != nil {
		return models.CorrectedSignal{}, err
	}
	out := make(models.ReplicateSignal, len(raw))
	for _, idx := range raw.Indices() {
		series, err := CorrectReplicate(raw[idx])
		if err != nil {
			return models.CorrectedSignal{}, fmt.Errorf("replicate %d: %w", idx, err)
		}
		out[idx] = series
	}
	return models.CorrectedSignal{ReplicateSignal: out}, nil
}
