package analytics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	paramLower = 0.001
	paramUpper = 0.999

	// maxOptimizerEvaluations caps the work spent fitting one target point.
	maxOptimizerEvaluations = 30000
)

var errNotConverged = errors.New("optimizer did not converge")

// ParameterOptimizer minimizes a function over a box without derivatives.
// The box is enforced by a logistic reparameterization, so the Nelder-Mead
// simplex can move freely while every evaluated point stays strictly inside
// (Lower, Upper).
type ParameterOptimizer struct {
	Lower          float64
	Upper          float64
	MaxEvaluations int
}

func newParameterOptimizer() ParameterOptimizer {
	return ParameterOptimizer{Lower: paramLower, Upper: paramUpper, MaxEvaluations: maxOptimizerEvaluations}
}

// Minimize starts from seed and returns the best point found. Any error
// means the result must not be used and the caller should keep its seed.
func (o ParameterOptimizer) Minimize(f func(x []float64) float64, seed []float64) ([]float64, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: nothing to fit", errNotConverged)
	}

	x0 := make([]float64, len(seed))
	for i, p := range seed {
		x0[i] = o.toFree(p)
	}

	box := make([]float64, len(seed))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for i := range x {
				box[i] = o.toBox(x[i])
			}
			v := f(box)
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return v
		},
	}
	settings := &optimize.Settings{
		MajorIterations: o.MaxEvaluations,
		FuncEvaluations: o.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 200,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotConverged, err)
	}
	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit, optimize.Failure:
		return nil, fmt.Errorf("%w: %s", errNotConverged, result.Status)
	}
	if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, fmt.Errorf("%w: non-finite objective", errNotConverged)
	}

	out := make([]float64, len(result.X))
	for i, x := range result.X {
		out[i] = o.toBox(x)
	}
	return out, nil
}

func (o ParameterOptimizer) toBox(x float64) float64 {
	return o.Lower + (o.Upper-o.Lower)/(1+math.Exp(-x))
}

func (o ParameterOptimizer) toFree(p float64) float64 {
	// Seeds on or outside the box are nudged inside so the inverse is finite.
	eps := (o.Upper - o.Lower) * 1e-6
	p = math.Max(o.Lower+eps, math.Min(o.Upper-eps, p))
	return math.Log((p - o.Lower) / (o.Upper - p))
}
