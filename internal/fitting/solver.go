package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// ErrNoConvergence is returned by solvers when no acceptable minimum was found.
// The engine recovers from it by dropping points.
var ErrNoConvergence = errors.New("fit did not converge")

// maxParamMagnitude bounds parameter estimates; beyond it the fit is diverging.
const maxParamMagnitude = 1e12

// Solution is a converged least-squares fit.
type Solution struct {
	Params     []float64
	Covariance *mat.SymDense
	SSR        float64
	Iterations int
}

// Solver minimizes the squared residuals between a model and observations.
type Solver interface {
	Solve(m Model, x, y, p0 []float64) (Solution, error)
}

// Solver names as they appear in config.
const (
	LevenbergMarquardtSolver = "levenberg-marquardt"
	NelderMeadSolver         = "nelder-mead"
	BFGSSolver               = "bfgs"
)

// NewSolver resolves a configured solver name.
func NewSolver(name string, maxIterations int) (Solver, error) {
	switch name {
	case LevenbergMarquardtSolver, "lm", "":
		return &LevenbergMarquardt{MaxIterations: maxIterations}, nil
	case NelderMeadSolver, BFGSSolver:
		return &Minimizer{Method: name, MaxIterations: maxIterations}, nil
	}
	return nil, fmt.Errorf("unknown solver %q", name)
}

// LevenbergMarquardt is a damped Gauss–Newton solver with Marquardt diagonal
// scaling. Zero tolerances select the defaults.
type LevenbergMarquardt struct {
	MaxIterations int
	XTol          float64
	FTol          float64
}

func (lm *LevenbergMarquardt) settings() (int, float64, float64) {
	maxIter, xtol, ftol := lm.MaxIterations, lm.XTol, lm.FTol
	if maxIter <= 0 {
		maxIter = 200
	}
	if xtol <= 0 {
		xtol = 1.49012e-8
	}
	if ftol <= 0 {
		ftol = 1.49012e-8
	}
	return maxIter, xtol, ftol
}

// Solve runs the iteration from p0.
func (lm *LevenbergMarquardt) Solve(m Model, x, y, p0 []float64) (Solution, error) {
	if err := checkProblem(m, x, y, p0); err != nil {
		return Solution{}, err
	}
	maxIter, xtol, ftol := lm.settings()
	k := len(p0)

	p := append([]float64(nil), p0...)
	r := residuals(m, x, y, p)
	if !allFinite(r) {
		return Solution{}, fmt.Errorf("%w: model is not finite at the initial guess %v", ErrNoConvergence, p0)
	}
	ssr := floats.Dot(r, r)
	lambda := 1e-3

	trial := make([]float64, k)
	for iter := 1; iter <= maxIter; iter++ {
		if ssr == 0 {
			return lm.solution(m, x, y, p, ssr, iter)
		}
		jac := jacobian(m, x, p)
		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(len(r), r))
		pNorm := floats.Norm(p, 2)

		var step mat.VecDense
		var trialR []float64
		var trialSSR, stepNorm float64
		accepted, stalled := false, false
		for !accepted && !stalled {
			if lambda > 1e16 {
				return Solution{}, fmt.Errorf("%w: damping exhausted after %d iterations", ErrNoConvergence, iter)
			}
			damped := mat.NewSymDense(k, nil)
			damped.CopySym(&jtj)
			for j := 0; j < k; j++ {
				d := jtj.At(j, j)
				if d == 0 {
					d = 1
				}
				damped.SetSym(j, j, jtj.At(j, j)+lambda*d)
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				lambda *= 10
				continue
			}
			for j := 0; j < k; j++ {
				trial[j] = p[j] - step.AtVec(j)
			}
			stepNorm = floats.Norm(step.RawVector().Data, 2)
			trialR = residuals(m, x, y, trial)
			if allFinite(trialR) {
				trialSSR = floats.Dot(trialR, trialR)
				accepted = trialSSR < ssr
			}
			// A step too small to move p that still cannot reduce the residual
			// means p is already a minimum to working precision.
			stalled = !accepted && stepNorm <= xtol*(pNorm+xtol)
			if !accepted {
				lambda *= 10
			}
		}
		if stalled {
			return lm.solution(m, x, y, p, ssr, iter)
		}

		reduction := ssr - trialSSR
		prevSSR := ssr
		copy(p, trial)
		r, ssr = trialR, trialSSR
		lambda = math.Max(lambda/10, 1e-12)

		if diverged(p) {
			return Solution{}, fmt.Errorf("%w: parameters diverged to %v", ErrNoConvergence, p)
		}
		if stepNorm <= xtol*(pNorm+xtol) || reduction <= ftol*prevSSR {
			return lm.solution(m, x, y, p, ssr, iter)
		}
	}
	return Solution{}, fmt.Errorf("%w: iteration limit %d reached", ErrNoConvergence, maxIter)
}

func (lm *LevenbergMarquardt) solution(m Model, x, y, p []float64, ssr float64, iter int) (Solution, error) {
	cov, err := covariance(m, x, y, p, ssr)
	if err != nil {
		return Solution{}, err
	}
	return Solution{Params: append([]float64(nil), p...), Covariance: cov, SSR: ssr, Iterations: iter}, nil
}

// Minimizer fits with a general-purpose gonum optimize method on the sum of
// squared residuals. Covariance comes from the Jacobian at the minimum.
type Minimizer struct {
	Method        string
	MaxIterations int
}

func (mz *Minimizer) method() optimize.Method {
	switch mz.Method {
	case BFGSSolver:
		return &optimize.BFGS{}
	default:
		return &optimize.NelderMead{}
	}
}

// Solve runs the configured method from p0.
func (mz *Minimizer) Solve(m Model, x, y, p0 []float64) (Solution, error) {
	if err := checkProblem(m, x, y, p0); err != nil {
		return Solution{}, err
	}
	maxIter := mz.MaxIterations
	if maxIter <= 0 {
		maxIter = 200
	}

	// Work on parameters scaled to unit magnitude at p0 so Kd and the Hill
	// coefficient are conditioned alike.
	scale := make([]float64, len(p0))
	u0 := make([]float64, len(p0))
	for j, v := range p0 {
		scale[j] = math.Max(math.Abs(v), 1)
		u0[j] = v / scale[j]
	}
	params := func(u []float64) []float64 {
		p := make([]float64, len(u))
		for j := range u {
			p[j] = u[j] * scale[j]
		}
		return p
	}

	objective := func(u []float64) float64 {
		r := residuals(m, x, y, params(u))
		if !allFinite(r) {
			return math.Inf(1)
		}
		return floats.Dot(r, r)
	}
	problem := optimize.Problem{Func: objective}
	if mz.Method == BFGSSolver {
		problem.Grad = func(grad, u []float64) {
			gradient(grad, m, x, y, params(u), scale)
		}
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter * (len(p0) + 1),
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, u0, settings, mz.method())
	switch {
	case err != nil:
		// Line searches give up once no step lowers the objective, which is
		// also where a noisy fit ends. Keep such a point if it is stationary.
		if result == nil || !stationary(m, x, y, params(result.X), scale, result.F) {
			return Solution{}, fmt.Errorf("%w: %v", ErrNoConvergence, err)
		}
	default:
		switch result.Status {
		case optimize.Success, optimize.FunctionConvergence, optimize.GradientThreshold,
			optimize.StepConvergence, optimize.MethodConverge:
		default:
			return Solution{}, fmt.Errorf("%w: optimizer stopped with status %v", ErrNoConvergence, result.Status)
		}
	}
	p := params(result.X)
	if math.IsInf(result.F, 0) || math.IsNaN(result.F) || diverged(p) {
		return Solution{}, fmt.Errorf("%w: optimizer ended at %v", ErrNoConvergence, p)
	}

	cov, err := covariance(m, x, y, p, result.F)
	if err != nil {
		return Solution{}, err
	}
	return Solution{
		Params:     p,
		Covariance: cov,
		SSR:        result.F,
		Iterations: result.Stats.MajorIterations,
	}, nil
}

// stationaryTol bounds the scaled gradient of a point accepted after a
// failed line search.
const stationaryTol = 1e-4

// gradient writes the gradient of the squared residual sum, 2·Jᵀr, with
// respect to the scaled parameters p/scale.
func gradient(grad []float64, m Model, x, y, p, scale []float64) {
	r := residuals(m, x, y, p)
	if !allFinite(r) {
		for j := range grad {
			grad[j] = math.NaN()
		}
		return
	}
	g := mat.NewVecDense(len(grad), grad)
	g.MulVec(jacobian(m, x, p).T(), mat.NewVecDense(len(r), r))
	for j := range grad {
		grad[j] *= 2 * scale[j]
	}
}

func stationary(m Model, x, y, p, scale []float64, f float64) bool {
	if len(p) != len(scale) || math.IsInf(f, 0) || math.IsNaN(f) || diverged(p) {
		return false
	}
	grad := make([]float64, len(p))
	gradient(grad, m, x, y, p, scale)
	if !allFinite(grad) {
		return false
	}
	return floats.Norm(grad, math.Inf(1)) <= stationaryTol*(1+f)
}

// checkProblem rejects subsets no solver can fit: too few points for the
// parameter count, or a response without variation.
func checkProblem(m Model, x, y, p0 []float64) error {
	if len(p0) != len(m.Params()) {
		return fmt.Errorf("%s model takes %d parameters, got %d", m.Name(), len(m.Params()), len(p0))
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d concentrations for %d observations", ErrNoConvergence, len(x), len(y))
	}
	if len(x) <= len(p0) {
		return fmt.Errorf("%w: %d points cannot determine %d parameters", ErrNoConvergence, len(x), len(p0))
	}
	if floats.Max(y) == floats.Min(y) {
		return fmt.Errorf("%w: response has no variation", ErrNoConvergence)
	}
	return nil
}

// covariance estimates (JᵀJ)⁻¹ · SSR/(n − p) at p.
func covariance(m Model, x, y, p []float64, ssr float64) (*mat.SymDense, error) {
	jac := jacobian(m, x, p)
	var jtj mat.SymDense
	jtj.SymOuterK(1, jac.T())

	var chol mat.Cholesky
	if !chol.Factorize(&jtj) {
		return nil, fmt.Errorf("%w: Jacobian is rank deficient at %v", ErrNoConvergence, p)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConvergence, err)
	}
	cov.ScaleSym(ssr/float64(len(x)-len(p)), &cov)

	for j := range p {
		v := cov.At(j, j)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: parameter %d variance is %v", ErrNoConvergence, j, v)
		}
	}
	return &cov, nil
}

// jacobian of the model outputs with respect to p. Differences are taken on
// parameters scaled to unit magnitude so the step is relative.
func jacobian(m Model, x, p []float64) *mat.Dense {
	scale := make([]float64, len(p))
	for j, v := range p {
		scale[j] = math.Max(math.Abs(v), 1)
	}
	unit := make([]float64, len(p))
	for j := range p {
		unit[j] = p[j] / scale[j]
	}

	params := make([]float64, len(p))
	f := func(out, u []float64) {
		for j := range u {
			params[j] = u[j] * scale[j]
		}
		for i, l := range x {
			out[i] = m.Eval(l, params)
		}
	}

	jac := mat.NewDense(len(x), len(p), nil)
	fd.Jacobian(jac, f, unit, &fd.JacobianSettings{Formula: fd.Central, Step: 1e-6})
	for j := range p {
		for i := range x {
			jac.Set(i, j, jac.At(i, j)/scale[j])
		}
	}
	return jac
}

func residuals(m Model, x, y, p []float64) []float64 {
	r := make([]float64, len(x))
	for i, l := range x {
		r[i] = m.Eval(l, p) - y[i]
	}
	return r
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func diverged(p []float64) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxParamMagnitude {
			return true
		}
	}
	return false
}
