package search

import (
	"context"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// NelderMead adapts gonum's simplex method to the Strategy interface. It is
// the deterministic alternative to SPSA for low-noise backends.
type NelderMead struct{}

// Name returns the strategy identifier
func (nm *NelderMead) Name() string {
	return "nelder-mead"
}

// Minimize runs gonum's Nelder-Mead with a function-evaluation budget of
// maxIterations. Backend errors surface through the stashed evalErr because
// gonum objective functions cannot return errors.
func (nm *NelderMead) Minimize(ctx context.Context, initial []float64, eval Objective, maxIterations int) ([]float64, float64, error) {
	var evalErr error

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			y, err := eval(ctx, x)
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return y
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxIterations,
		Concurrent:      0, // evaluations must stay sequential
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if evalErr != nil {
		return nil, 0, evalErr
	}
	if err != nil && result == nil {
		return nil, 0, err
	}

	return result.X, result.F, nil
}
