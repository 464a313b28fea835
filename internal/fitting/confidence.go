package fitting

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rewired-gh/trfret/internal/models"
)

// DefaultConfidence is the two-sided confidence level of reported intervals.
const DefaultConfidence = 0.95

// CriticalT returns the two-sided critical value of Student's t with df degrees
// of freedom at the given confidence level.
func CriticalT(df int, confidence float64) (float64, error) {
	if df < 1 {
		return 0, fmt.Errorf("%w: t distribution needs df >= 1, got %d", ErrInsufficientDOF, df)
	}
	if !(confidence > 0 && confidence < 1) {
		return 0, fmt.Errorf("confidence must be in (0,1), got %g", confidence)
	}
	alpha := 1 - confidence
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return t.Quantile(1 - alpha/2), nil
}

// Estimate builds the reported record for one parameter from its estimate and
// standard error of fit. The dispersion is back-calculated from the interval
// width as √df·(upper−lower)/(2·t) and the standard error as dispersion/√df;
// the evaluation order is fixed so results match earlier releases exactly.
func Estimate(name string, value, seFit float64, df int, tcrit float64) models.ParameterEstimate {
	lower := value + (-1*tcrit)*seFit
	upper := value + (1*tcrit)*seFit
	sqrtDF := math.Sqrt(float64(df))
	dispersion := sqrtDF * ((upper - lower) / (2 * tcrit))
	return models.ParameterEstimate{
		Name:       name,
		Value:      value,
		CILower:    lower,
		CIUpper:    upper,
		Dispersion: dispersion,
		StdError:   dispersion / sqrtDF,
	}
}
