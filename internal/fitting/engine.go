package fitting

import (
	"errors"
	"fmt"
	"math"

	"github.com/rewired-gh/trfret/internal/logger"
	"github.com/rewired-gh/trfret/internal/models"
)

// ErrInsufficientDOF means the replicate count is too small for a model's
// parameter count. It is raised before the solver runs.
var ErrInsufficientDOF = errors.New("insufficient degrees of freedom")

// Status tags the outcome of one model fit.
type Status int

const (
	Succeeded Status = iota
	Failed
	InsufficientDOF
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return string(models.FitSucceeded)
	case Failed:
		return string(models.FitFailed)
	case InsufficientDOF:
		return string(models.FitInsufficientDOF)
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is the engine's internal result of one model fit. Estimates is only
// populated when Status is Succeeded.
type Outcome struct {
	Model         Model
	Status        Status
	Estimates     []models.ParameterEstimate
	DOF           int
	PointsUsed    int
	RemovedPoints int
	SSR           float64
}

// Result converts the outcome to the boundary record, substituting
// models.SentinelValue for every number of a fit that did not succeed.
func (o Outcome) Result() models.FitResult {
	res := models.FitResult{
		Model:         o.Model.Name(),
		DOF:           o.DOF,
		PointsUsed:    o.PointsUsed,
		RemovedPoints: o.RemovedPoints,
		SSR:           o.SSR,
	}
	if o.Status == Succeeded {
		res.Status = models.FitSucceeded
		res.Parameters = append([]models.ParameterEstimate(nil), o.Estimates...)
		return res
	}

	res.Status = models.FitFailed
	if o.Status == InsufficientDOF {
		res.Status = models.FitInsufficientDOF
	}
	res.SSR = models.SentinelValue
	for _, name := range o.Model.Params() {
		res.Parameters = append(res.Parameters, models.SentinelEstimate(name))
	}
	return res
}

// Options configures an Engine.
type Options struct {
	Solver     Solver
	Confidence float64
}

// Engine fits binding models with point-removal recovery. It holds no state
// between fits, so one Engine serves any number of runs.
type Engine struct {
	solver     Solver
	confidence float64
}

// NewEngine creates an Engine. A nil solver selects Levenberg–Marquardt and a
// zero confidence selects DefaultConfidence.
func NewEngine(opts Options) *Engine {
	e := &Engine{solver: opts.Solver, confidence: opts.Confidence}
	if e.solver == nil {
		e.solver = &LevenbergMarquardt{}
	}
	if e.confidence == 0 {
		e.confidence = DefaultConfidence
	}
	return e
}

// DegreesOfFreedom returns replicates minus the model's free parameter count.
func DegreesOfFreedom(m Model, replicates int) int {
	return replicates - len(m.Params())
}

// Fit fits m to the (concentration, signal) pairs. replicates is the number of
// replicates averaged into signal and sets the degrees of freedom.
//
// On non-convergence the point at the lowest remaining index is removed from
// both sequences and the fit retried, until a fit converges or no points remain.
// In the latter case a Failed outcome is returned with a nil error. An error is
// only returned for input that can never be fit: mismatched or non-finite
// sequences, or too few replicates for the model (ErrInsufficientDOF,
// alongside an InsufficientDOF outcome).
func (e *Engine) Fit(m Model, concentrations, signal []float64, replicates int) (Outcome, error) {
	out := Outcome{Model: m, DOF: DegreesOfFreedom(m, replicates)}

	if len(concentrations) != len(signal) || len(signal) == 0 {
		return out, fmt.Errorf("%w: %d concentrations for %d signal points", models.ErrMalformedInput, len(concentrations), len(signal))
	}
	for i := range signal {
		if !finite(concentrations[i]) || !finite(signal[i]) {
			return out, fmt.Errorf("%w: point %d is not finite", models.ErrMalformedInput, i)
		}
	}
	if out.DOF < 1 {
		out.Status = InsufficientDOF
		return out, fmt.Errorf("%w: %s model has %d parameters but only %d replicates", ErrInsufficientDOF, m.Name(), len(m.Params()), replicates)
	}
	tcrit, err := CriticalT(out.DOF, e.confidence)
	if err != nil {
		return out, err
	}

	for removed := 0; removed < len(signal); removed++ {
		x, y := concentrations[removed:], signal[removed:]
		sol, err := e.solver.Solve(m, x, y, m.Initial(x, y))
		if err != nil {
			if !errors.Is(err, ErrNoConvergence) {
				return out, err
			}
			logger.Debug("%s fit with %d points did not converge: %v", m.Name(), len(x), err)
			continue
		}

		out.Status = Succeeded
		out.PointsUsed = len(x)
		out.RemovedPoints = removed
		out.SSR = sol.SSR
		for j, name := range m.Params() {
			se := math.Sqrt(sol.Covariance.At(j, j))
			out.Estimates = append(out.Estimates, Estimate(name, sol.Params[j], se, out.DOF, tcrit))
		}
		if removed > 0 {
			logger.Info("%s fit converged after removing %d point(s)", m.Name(), removed)
		}
		return out, nil
	}

	logger.Warn("%s fit failed for every point subset; reporting sentinel values", m.Name())
	out.Status = Failed
	return out, nil
}

// FitAll fits each model independently. Every model yields a result, in the
// given order; models that raised an error are keyed by name in the returned map.
func (e *Engine) FitAll(ms []Model, concentrations, signal []float64, replicates int) ([]models.FitResult, map[string]error) {
	results := make([]models.FitResult, 0, len(ms))
	var errs map[string]error
	for _, m := range ms {
		outcome, err := e.Fit(m, concentrations, signal, replicates)
		if err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[m.Name()] = err
			if outcome.Status != InsufficientDOF {
				outcome.Status = Failed
			}
		}
		results = append(results, outcome.Result())
	}
	return results, errs
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
