package fitting

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/rewired-gh/trfret/internal/models"
)

// CurvePoints is the number of samples Curve draws across the tested range.
const CurvePoints = 100

// ModelFor resolves the model a result was fit with. Plateaus are inferred
// from the parameter count.
func ModelFor(res models.FitResult) (Model, error) {
	return ModelByName(res.Model, res.Model == CooperativeModel && len(res.Parameters) == 4)
}

// Curve evaluates a successful fit at n log-spaced concentrations between lo
// and hi (nM), for plotting next to the data.
func Curve(res models.FitResult, lo, hi float64, n int) (x, y []float64, err error) {
	if !res.Succeeded() {
		return nil, nil, fmt.Errorf("%s fit did not succeed", res.Model)
	}
	if !(lo > 0) || !(hi > lo) || n < 2 {
		return nil, nil, fmt.Errorf("invalid curve range [%g, %g] with %d points", lo, hi, n)
	}
	m, err := ModelFor(res)
	if err != nil {
		return nil, nil, err
	}

	params := make([]float64, len(m.Params()))
	for j, name := range m.Params() {
		p, ok := res.Parameter(name)
		if !ok {
			return nil, nil, fmt.Errorf("%s fit is missing parameter %s", res.Model, name)
		}
		params[j] = p.Value
	}

	x = floats.LogSpan(make([]float64, n), lo, hi)
	y = make([]float64, n)
	for i, l := range x {
		y[i] = m.Eval(l, params)
	}
	return x, y, nil
}
