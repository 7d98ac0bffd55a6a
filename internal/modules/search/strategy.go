// Package search drives the variational parameter search: a sequential loop
// that executes circuits through the backend and feeds objective estimates to
// a pluggable black-box minimization strategy.
package search

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Objective evaluates one parameter vector. Evaluation is expensive (one
// circuit execution) and may fail on backend errors, which abort the search.
type Objective func(ctx context.Context, params []float64) (float64, error)

// Strategy is the black-box classical optimizer. It only needs to converge
// directionally; no optimality guarantee is assumed.
type Strategy interface {
	Name() string

	// Minimize runs up to maxIterations parameter updates starting from
	// initial and returns the final parameter vector and its objective.
	Minimize(ctx context.Context, initial []float64, eval Objective, maxIterations int) ([]float64, float64, error)
}

// SPSA is a simultaneous-perturbation stochastic approximation strategy. Each
// iteration probes the objective at two symmetric perturbations of the
// current point and steps along the estimated gradient. It tolerates the
// sampling noise in shot-based objective estimates, which is why it is the
// default here.
type SPSA struct {
	a     float64 // step gain
	c     float64 // perturbation gain
	alpha float64 // step decay exponent
	gamma float64 // perturbation decay exponent
	rng   *rand.Rand
}

// NewSPSA creates an SPSA strategy with the standard gain schedules. A zero
// seed derives one from the clock.
func NewSPSA(seed int64) *SPSA {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SPSA{
		a:     0.15,
		c:     0.1,
		alpha: 0.602,
		gamma: 0.101,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Name returns the strategy identifier
func (s *SPSA) Name() string {
	return "spsa"
}

// Minimize performs maxIterations SPSA updates. One iteration evaluates the
// objective at theta+c_k*delta and theta-c_k*delta; iterations are strictly
// sequential because each update depends on the previous probes.
func (s *SPSA) Minimize(ctx context.Context, initial []float64, eval Objective, maxIterations int) ([]float64, float64, error) {
	dim := len(initial)
	theta := make([]float64, dim)
	copy(theta, initial)

	// Baseline evaluation so the caller sees the starting objective
	best, err := eval(ctx, theta)
	if err != nil {
		return nil, 0, err
	}

	stability := float64(maxIterations) * 0.1
	probe := make([]float64, dim)
	delta := make([]float64, dim)

	for k := 0; k < maxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		ck := s.c / math.Pow(float64(k)+1, s.gamma)
		ak := s.a / math.Pow(float64(k)+1+stability, s.alpha)

		for i := range delta {
			if s.rng.Intn(2) == 0 {
				delta[i] = 1
			} else {
				delta[i] = -1
			}
		}

		for i := range probe {
			probe[i] = theta[i] + ck*delta[i]
		}
		yPlus, err := eval(ctx, probe)
		if err != nil {
			return nil, 0, err
		}

		for i := range probe {
			probe[i] = theta[i] - ck*delta[i]
		}
		yMinus, err := eval(ctx, probe)
		if err != nil {
			return nil, 0, err
		}

		for i := range theta {
			gradient := (yPlus - yMinus) / (2 * ck * delta[i])
			theta[i] -= ak * gradient
		}

		if y := math.Min(yPlus, yMinus); y < best {
			best = y
		}
	}

	final, err := eval(ctx, theta)
	if err != nil {
		return nil, 0, err
	}

	return theta, final, nil
}
