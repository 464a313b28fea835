// Package fitting fits binding-model equations to averaged, normalized titration
// data by nonlinear least squares and derives t-based confidence intervals.
//
// Three models are supported, all taking the ligand concentration L in nM:
//
//	simple:      y = L / (Kd + L)
//	quadratic:   RL = ((1+L+Kd) − √((1+L+Kd)² − 4L)) / 2,  y = (L−RL) / (Kd + (L−RL))
//	cooperative: y = bottom + (top−bottom) · L^h / (EC50^h + L^h)
//
// The cooperative model fixes bottom=0, top=1 unless plateaus are enabled.
// When the solver does not converge the lowest remaining point is dropped and
// the fit retried; a model that never converges reports sentinel values.
package fitting

import (
	"fmt"
	"math"
	"strings"
)

// Model names as they appear in config and output.
const (
	SimpleModel      = "simple"
	QuadraticModel   = "quadratic"
	CooperativeModel = "cooperative"
)

// Parameter names as they appear in output.
const (
	ParamKd     = "Kd"
	ParamHill   = "nH"
	ParamBottom = "bottom"
	ParamTop    = "top"
)

// Model is a binding equation with a fixed, ordered parameter list.
type Model interface {
	Name() string
	Params() []string
	Eval(l float64, p []float64) float64
	// Initial returns the deterministic starting point for the solver.
	Initial(x, y []float64) []float64
}

// Simple is the two-state binding model.
type Simple struct{}

func (Simple) Name() string     { return SimpleModel }
func (Simple) Params() []string { return []string{ParamKd} }

func (Simple) Eval(l float64, p []float64) float64 {
	return l / (p[0] + l)
}

func (Simple) Initial(x, _ []float64) []float64 {
	return []float64{geometricMean(x)}
}

// Quadratic accounts for ligand depletion with the receptor concentration normalized to 1.
type Quadratic struct{}

func (Quadratic) Name() string     { return QuadraticModel }
func (Quadratic) Params() []string { return []string{ParamKd} }

func (Quadratic) Eval(l float64, p []float64) float64 {
	kd := p[0]
	b := 1 + l + kd
	rl := (b - math.Sqrt(b*b-4*l)) / 2
	free := l - rl
	return free / (kd + free)
}

func (Quadratic) Initial(x, _ []float64) []float64 {
	return []float64{geometricMean(x)}
}

// Cooperative is the Hill equation. EC50 is reported under the Kd name.
type Cooperative struct {
	Plateaus bool
}

func (c Cooperative) Name() string { return CooperativeModel }

func (c Cooperative) Params() []string {
	if c.Plateaus {
		return []string{ParamKd, ParamHill, ParamBottom, ParamTop}
	}
	return []string{ParamKd, ParamHill}
}

func (c Cooperative) Eval(l float64, p []float64) float64 {
	// L^h/(EC50^h+L^h) written as 1/(1+(EC50/L)^h) so large h stays finite.
	frac := 1 / (1 + math.Pow(p[0]/l, p[1]))
	if !c.Plateaus {
		return frac
	}
	return p[2] + (p[3]-p[2])*frac
}

func (c Cooperative) Initial(x, _ []float64) []float64 {
	if c.Plateaus {
		return []float64{geometricMean(x), 1, 0, 1}
	}
	return []float64{geometricMean(x), 1}
}

// ModelByName resolves a configured model name.
func ModelByName(name string, hillPlateaus bool) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SimpleModel:
		return Simple{}, nil
	case QuadraticModel:
		return Quadratic{}, nil
	case CooperativeModel, "hill":
		return Cooperative{Plateaus: hillPlateaus}, nil
	}
	return nil, fmt.Errorf("unknown binding model %q", name)
}

// geometricMean of the positive entries, 1 when there are none.
func geometricMean(x []float64) float64 {
	var sum float64
	var n int
	for _, v := range x {
		if v > 0 {
			sum += math.Log(v)
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return math.Exp(sum / float64(n))
}
