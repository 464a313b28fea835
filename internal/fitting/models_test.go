package fitting

import (
	"math"
	"testing"

	"github.com/rewired-gh/trfret/internal/models"
)

func TestModelEval(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		l     float64
		p     []float64
		want  float64
	}{
		{"simple at Kd", Simple{}, 250, []float64{250}, 0.5},
		{"simple saturates", Simple{}, 1e9, []float64{1}, 1},
		{"simple empty", Simple{}, 0, []float64{10}, 0},
		{"hill at EC50", Cooperative{}, 40, []float64{40, 2.5}, 0.5},
		{"hill steep below EC50", Cooperative{}, 10, []float64{100, 2}, 1.0 / 101},
		{"hill plateaus at EC50", Cooperative{Plateaus: true}, 40, []float64{40, 1, 0.2, 0.8}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.model.Eval(tt.l, tt.p)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Eval(%v, %v) = %v, want %v", tt.l, tt.p, got, tt.want)
			}
		})
	}
}

func TestQuadraticApproachesSimple(t *testing.T) {
	// Receptor is normalized to 1 nM, so depletion vanishes for L >> 1.
	q, s := Quadratic{}, Simple{}
	p := []float64{500}
	prev := -1.0
	for _, l := range []float64{50, 200, 1000, 5000, 20000} {
		got := q.Eval(l, p)
		if math.Abs(got-s.Eval(l, p)) > 1e-3 {
			t.Errorf("L=%v: quadratic %v differs from simple %v", l, got, s.Eval(l, p))
		}
		if got <= prev || got >= 1 {
			t.Errorf("L=%v: quadratic %v not increasing in [0,1)", l, got)
		}
		prev = got
	}
}

func TestCooperativeParams(t *testing.T) {
	if got := len(Cooperative{}.Params()); got != 2 {
		t.Errorf("Expected 2 params without plateaus, got %d", got)
	}
	c := Cooperative{Plateaus: true}
	if got := len(c.Params()); got != 4 {
		t.Errorf("Expected 4 params with plateaus, got %d", got)
	}
	if got := len(c.Initial([]float64{1, 10, 100}, nil)); got != 4 {
		t.Errorf("Expected 4 initial values with plateaus, got %d", got)
	}
}

func TestInitialGuess(t *testing.T) {
	x := []float64{1000, 100, 10}
	p := Simple{}.Initial(x, nil)
	if math.Abs(p[0]-100) > 1e-9 {
		t.Errorf("Expected geometric mean 100, got %v", p[0])
	}
	h := Cooperative{}.Initial(x, nil)
	if math.Abs(h[0]-100) > 1e-9 || h[1] != 1 {
		t.Errorf("Expected [100 1], got %v", h)
	}
	if got := geometricMean([]float64{0, -3}); got != 1 {
		t.Errorf("Expected 1 for no positive entries, got %v", got)
	}
}

func TestModelByName(t *testing.T) {
	tests := []struct {
		name     string
		plateaus bool
		want     string
		params   int
		wantErr  bool
	}{
		{"simple", false, SimpleModel, 1, false},
		{" Quadratic ", false, QuadraticModel, 1, false},
		{"cooperative", false, CooperativeModel, 2, false},
		{"hill", true, CooperativeModel, 4, false},
		{"langmuir", false, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ModelByName(tt.name, tt.plateaus)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ModelByName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if m.Name() != tt.want || len(m.Params()) != tt.params {
				t.Errorf("Got %s with %d params, want %s with %d", m.Name(), len(m.Params()), tt.want, tt.params)
			}
		})
	}
}

func TestJacobianMatchesAnalytic(t *testing.T) {
	x := []float64{5000, 1000, 200, 40}
	p := []float64{750}
	jac := jacobian(Simple{}, x, p)
	for i, l := range x {
		want := -l / ((p[0] + l) * (p[0] + l))
		got := jac.At(i, 0)
		if math.Abs(got-want) > 1e-6*math.Abs(want)+1e-12 {
			t.Errorf("dY/dKd at L=%v = %v, want %v", l, got, want)
		}
	}
}

func TestCurve(t *testing.T) {
	res := Outcome{
		Model:     Simple{},
		Status:    Succeeded,
		Estimates: []models.ParameterEstimate{{Name: ParamKd, Value: 100}},
	}.Result()

	x, y, err := Curve(res, 1, 10000, CurvePoints)
	if err != nil {
		t.Fatalf("Curve failed: %v", err)
	}
	if len(x) != CurvePoints || len(y) != CurvePoints {
		t.Fatalf("Expected %d points, got %d/%d", CurvePoints, len(x), len(y))
	}
	if math.Abs(x[0]-1) > 1e-9 || math.Abs(x[len(x)-1]-10000) > 1e-6 {
		t.Errorf("Unexpected range [%v, %v]", x[0], x[len(x)-1])
	}
	// Log spacing keeps a constant ratio between samples.
	r0, r1 := x[1]/x[0], x[len(x)-1]/x[len(x)-2]
	if math.Abs(r0-r1) > 1e-9 {
		t.Errorf("Expected constant ratio, got %v and %v", r0, r1)
	}
	for i := 1; i < len(y); i++ {
		if y[i] <= y[i-1] {
			t.Fatalf("Expected increasing curve at %d", i)
		}
	}

	failed := Outcome{Model: Simple{}, Status: Failed}.Result()
	if _, _, err := Curve(failed, 1, 10, 10); err == nil {
		t.Error("Expected error for failed fit")
	}
	if _, _, err := Curve(res, 10, 1, 10); err == nil {
		t.Error("Expected error for inverted range")
	}
}

func TestModelFor(t *testing.T) {
	res := Outcome{Model: Cooperative{Plateaus: true}, Status: Failed}.Result()
	m, err := ModelFor(res)
	if err != nil {
		t.Fatalf("ModelFor failed: %v", err)
	}
	if len(m.Params()) != 4 {
		t.Errorf("Expected plateau model, got %v", m.Params())
	}
}
