package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/modules/hamiltonian"
	"github.com/quantfolio/quantfolio/internal/modules/qaoa"
)

// ProgressFunc receives one callback per objective evaluation.
type ProgressFunc func(evaluation int, objective, best float64)

// Result is the outcome of a parameter search: the best parameters seen, the
// objective estimate at those parameters, and the measurement distribution
// the estimate was computed from.
type Result struct {
	Parameters   qaoa.Parameters
	Objective    float64
	Distribution *qbackend.ExecutionResult
	Evaluations  int
}

// Loop runs the variational search: build circuit from current parameters,
// execute through the backend, estimate the objective from the measured
// distribution, feed it back to the strategy. Iterations are strictly
// sequential; a backend failure aborts the search with no partial result.
type Loop struct {
	backend  qbackend.Backend
	strategy Strategy
	shots    int
	progress ProgressFunc
	log      zerolog.Logger
}

// NewLoop creates a search loop over the given backend and strategy.
func NewLoop(backend qbackend.Backend, strategy Strategy, shots int, log zerolog.Logger) *Loop {
	return &Loop{
		backend:  backend,
		strategy: strategy,
		shots:    shots,
		log:      log.With().Str("component", "search").Logger(),
	}
}

// SetProgress installs an observer for per-evaluation progress.
func (l *Loop) SetProgress(fn ProgressFunc) {
	l.progress = fn
}

// Search optimizes a 2p-dimensional parameter schedule for maxIterations
// strategy iterations. reference is a fixed-gamma Hamiltonian used to score
// distributions so that objective estimates are comparable across parameter
// snapshots. There is no early stopping: the budget is fixed and the best
// snapshot seen is returned.
func (l *Loop) Search(
	ctx context.Context,
	encode qaoa.EncoderFunc,
	reference *hamiltonian.CostHamiltonian,
	numAssets, layers, maxIterations int,
) (*Result, error) {
	if layers < 1 {
		return nil, fmt.Errorf("%w: p=%d", qaoa.ErrInvalidCircuitDepth, layers)
	}

	var (
		evaluations int
		bestSet     bool
		bestObj     float64
		bestVec     []float64
		bestDist    *qbackend.ExecutionResult
	)

	eval := func(ctx context.Context, vec []float64) (float64, error) {
		params, err := qaoa.ParametersFromVector(vec)
		if err != nil {
			return 0, err
		}

		circuit, err := qaoa.Build(encode, numAssets, params, l.shots)
		if err != nil {
			return 0, err
		}

		result, err := l.backend.Execute(ctx, circuit)
		if err != nil {
			l.log.Error().Err(err).Int("evaluation", evaluations+1).Msg("Backend execution failed")
			return 0, err
		}

		objective := Expectation(reference, result)
		evaluations++

		if !bestSet || objective < bestObj {
			bestSet = true
			bestObj = objective
			bestVec = append(bestVec[:0], vec...)
			bestDist = result
		}

		l.log.Debug().
			Int("evaluation", evaluations).
			Float64("objective", objective).
			Float64("best", bestObj).
			Msg("Objective evaluated")

		if l.progress != nil {
			l.progress(evaluations, objective, bestObj)
		}

		return objective, nil
	}

	initial := qaoa.NewParameters(layers).Vector()
	if _, _, err := l.strategy.Minimize(ctx, initial, eval, maxIterations); err != nil {
		return nil, err
	}

	bestParams, err := qaoa.ParametersFromVector(bestVec)
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("strategy", l.strategy.Name()).
		Int("evaluations", evaluations).
		Float64("best_objective", bestObj).
		Msg("Search completed")

	return &Result{
		Parameters:   bestParams,
		Objective:    bestObj,
		Distribution: bestDist,
		Evaluations:  evaluations,
	}, nil
}

// Expectation estimates the expected cost of a measurement distribution under
// the given Hamiltonian.
func Expectation(h *hamiltonian.CostHamiltonian, result *qbackend.ExecutionResult) float64 {
	if result == nil || result.Shots == 0 {
		return 0
	}
	var total float64
	for bitstring, count := range result.Counts {
		total += h.Energy(bitstring) * float64(count)
	}
	return total / float64(result.Shots)
}
