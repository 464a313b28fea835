package fitting

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/rewired-gh/trfret/internal/models"
)

// stubSolver fails until at most fitAt points remain, recording what it saw.
type stubSolver struct {
	fitAt int
	err   error
	seen  [][]float64
}

func (s *stubSolver) Solve(m Model, x, y, p0 []float64) (Solution, error) {
	s.seen = append(s.seen, append([]float64(nil), x...))
	if s.err != nil {
		return Solution{}, s.err
	}
	if len(x) > s.fitAt {
		return Solution{}, ErrNoConvergence
	}
	return Solution{
		Params:     []float64{42},
		Covariance: mat.NewSymDense(1, []float64{4}),
		SSR:        0.5,
	}, nil
}

func TestCriticalT(t *testing.T) {
	tests := []struct {
		df         int
		confidence float64
		want       float64
	}{
		{1, 0.95, 12.706204736},
		{2, 0.95, 4.302652730},
		{10, 0.95, 2.228138852},
		{5, 0.99, 4.032142984},
	}

	for _, tt := range tests {
		got, err := CriticalT(tt.df, tt.confidence)
		if err != nil {
			t.Fatalf("CriticalT(%d, %v) failed: %v", tt.df, tt.confidence, err)
		}
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("CriticalT(%d, %v) = %.9f, want %.9f", tt.df, tt.confidence, got, tt.want)
		}
	}

	if _, err := CriticalT(0, 0.95); !errors.Is(err, ErrInsufficientDOF) {
		t.Errorf("Expected ErrInsufficientDOF for df=0, got %v", err)
	}
	if _, err := CriticalT(3, 1.5); err == nil {
		t.Error("Expected error for confidence outside (0,1)")
	}
}

func TestEstimate(t *testing.T) {
	tcrit := 2.776445105
	e := Estimate(ParamKd, 10, 2, 4, tcrit)

	if e.Name != ParamKd || e.Value != 10 {
		t.Errorf("Unexpected identity: %+v", e)
	}
	if math.Abs(e.CILower-(10-tcrit*2)) > 1e-12 || math.Abs(e.CIUpper-(10+tcrit*2)) > 1e-12 {
		t.Errorf("Unexpected interval [%v, %v]", e.CILower, e.CIUpper)
	}
	// dispersion = √df·se and stderr recovers se.
	if math.Abs(e.Dispersion-4) > 1e-12 {
		t.Errorf("Expected dispersion 4, got %v", e.Dispersion)
	}
	if math.Abs(e.StdError-2) > 1e-12 {
		t.Errorf("Expected standard error 2, got %v", e.StdError)
	}
}

func TestEngineFit_RecoversKd(t *testing.T) {
	y := jitter(synthesize(Simple{}, titration, []float64{1000}), 0.005)
	e := NewEngine(Options{})

	out, err := e.Fit(Simple{}, titration, y, 3)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if out.Status != Succeeded {
		t.Fatalf("Expected success, got %v", out.Status)
	}
	if out.DOF != 2 || out.PointsUsed != len(titration) || out.RemovedPoints != 0 {
		t.Errorf("Unexpected bookkeeping: %+v", out)
	}

	kd := out.Estimates[0]
	if relErr(kd.Value, 1000) > 0.1 {
		t.Errorf("Expected Kd near 1000, got %v", kd.Value)
	}
	if !(kd.CILower < kd.Value && kd.Value < kd.CIUpper) {
		t.Errorf("Expected value inside interval, got %+v", kd)
	}

	res := out.Result()
	if err := res.Validate(); err != nil {
		t.Errorf("Result invalid: %v", err)
	}
	if !res.Succeeded() || res.Model != SimpleModel {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestEngineFit_Idempotent(t *testing.T) {
	y := jitter(synthesize(Cooperative{}, titration, []float64{600, 1.2}), 0.01)
	e := NewEngine(Options{})

	first, err := e.Fit(Cooperative{}, titration, y, 4)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	second, err := e.Fit(Cooperative{}, titration, y, 4)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !reflect.DeepEqual(first.Result(), second.Result()) {
		t.Errorf("Repeated fits differ:\n%+v\n%+v", first.Result(), second.Result())
	}
}

func TestEngineFit_ZeroSignalReportsSentinels(t *testing.T) {
	zero := make([]float64, len(titration))
	e := NewEngine(Options{})

	for _, m := range []Model{Simple{}, Quadratic{}, Cooperative{}, Cooperative{Plateaus: true}} {
		t.Run(m.Name(), func(t *testing.T) {
			out, err := e.Fit(m, titration, zero, 5)
			if err != nil {
				t.Fatalf("Expected nil error, got %v", err)
			}
			if out.Status != Failed {
				t.Fatalf("Expected Failed, got %v", out.Status)
			}
			res := out.Result()
			if res.Status != models.FitFailed || res.SSR != models.SentinelValue {
				t.Errorf("Unexpected result: %+v", res)
			}
			if len(res.Parameters) != len(m.Params()) {
				t.Fatalf("Expected %d parameters, got %d", len(m.Params()), len(res.Parameters))
			}
			for _, p := range res.Parameters {
				if p != models.SentinelEstimate(p.Name) {
					t.Errorf("Expected sentinel for %s, got %+v", p.Name, p)
				}
			}
		})
	}
}

func TestEngineFit_InsufficientDOF(t *testing.T) {
	y := synthesize(Cooperative{}, titration, []float64{800, 1})
	stub := &stubSolver{fitAt: 100}
	e := NewEngine(Options{Solver: stub})

	out, err := e.Fit(Cooperative{}, titration, y, 2)
	if !errors.Is(err, ErrInsufficientDOF) {
		t.Fatalf("Expected ErrInsufficientDOF, got %v", err)
	}
	if out.Status != InsufficientDOF || out.DOF != 0 {
		t.Errorf("Unexpected outcome: %+v", out)
	}
	if len(stub.seen) != 0 {
		t.Errorf("Expected solver not to run, it ran %d times", len(stub.seen))
	}
	res := out.Result()
	if res.Status != models.FitInsufficientDOF {
		t.Errorf("Expected insufficient_dof status, got %s", res.Status)
	}
	if p, ok := res.Parameter(ParamHill); !ok || p.Value != models.SentinelValue {
		t.Errorf("Expected sentinel Hill coefficient, got %+v", p)
	}
}

func TestEngineFit_RemovesLowestIndexFirst(t *testing.T) {
	x := []float64{800, 400, 200, 100, 50}
	y := []float64{0.9, 0.7, 0.5, 0.3, 0.1}
	stub := &stubSolver{fitAt: 3}
	e := NewEngine(Options{Solver: stub})

	out, err := e.Fit(Simple{}, x, y, 3)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if out.Status != Succeeded || out.RemovedPoints != 2 || out.PointsUsed != 3 {
		t.Fatalf("Unexpected outcome: %+v", out)
	}
	if last := stub.seen[len(stub.seen)-1]; !reflect.DeepEqual(last, []float64{200, 100, 50}) {
		t.Errorf("Expected the tail to be fit, got %v", last)
	}

	tcrit, _ := CriticalT(2, DefaultConfidence)
	want := Estimate(ParamKd, 42, 2, 2, tcrit)
	if out.Estimates[0] != want {
		t.Errorf("Expected %+v, got %+v", want, out.Estimates[0])
	}
}

func TestEngineFit_ExhaustedRetries(t *testing.T) {
	stub := &stubSolver{fitAt: 0}
	e := NewEngine(Options{Solver: stub})

	out, err := e.Fit(Simple{}, []float64{10, 5, 2}, []float64{0.8, 0.5, 0.2}, 4)
	if err != nil {
		t.Fatalf("Expected nil error, got %v", err)
	}
	if out.Status != Failed {
		t.Errorf("Expected Failed, got %v", out.Status)
	}
	if len(stub.seen) != 3 {
		t.Errorf("Expected one attempt per point, got %d", len(stub.seen))
	}
}

func TestEngineFit_SolverErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	e := NewEngine(Options{Solver: &stubSolver{err: boom}})

	_, err := e.Fit(Simple{}, []float64{10, 5, 2}, []float64{0.8, 0.5, 0.2}, 4)
	if !errors.Is(err, boom) {
		t.Errorf("Expected solver error, got %v", err)
	}
}

func TestEngineFit_MalformedInput(t *testing.T) {
	e := NewEngine(Options{})
	tests := []struct {
		name string
		x, y []float64
	}{
		{"empty", nil, nil},
		{"mismatch", []float64{1, 2}, []float64{1}},
		{"nan", []float64{1, 2}, []float64{0.5, math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Fit(Simple{}, tt.x, tt.y, 3)
			if !errors.Is(err, models.ErrMalformedInput) {
				t.Errorf("Expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestEngineFitAll(t *testing.T) {
	y := jitter(synthesize(Simple{}, titration, []float64{1000}), 0.005)
	e := NewEngine(Options{})
	ms := []Model{Simple{}, Quadratic{}, Cooperative{}}

	results, errs := e.FitAll(ms, titration, y, 2)
	if len(results) != len(ms) {
		t.Fatalf("Expected %d results, got %d", len(ms), len(results))
	}
	for i, m := range ms {
		if results[i].Model != m.Name() {
			t.Errorf("Result %d is %s, want %s", i, results[i].Model, m.Name())
		}
		if err := results[i].Validate(); err != nil {
			t.Errorf("%s result invalid: %v", m.Name(), err)
		}
	}
	if !results[0].Succeeded() || !results[1].Succeeded() {
		t.Errorf("Expected one-parameter models to fit with df=1: %+v", results[:2])
	}
	if results[2].Status != models.FitInsufficientDOF {
		t.Errorf("Expected cooperative to lack DOF, got %s", results[2].Status)
	}
	if !errors.Is(errs[CooperativeModel], ErrInsufficientDOF) || len(errs) != 1 {
		t.Errorf("Unexpected errors: %v", errs)
	}
}
