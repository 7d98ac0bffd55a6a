// Package decoding converts measurement distributions into constrained
// portfolio weight vectors.
package decoding

import (
	"errors"
	"fmt"
	"math"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
)

// ErrInfeasibleAllocation is returned when no weight vector can satisfy the
// position-size bounds for the selected assets.
var ErrInfeasibleAllocation = errors.New("infeasible allocation")

const (
	boundTolerance = 1e-9
	sumTolerance   = 0.01
)

// Decode maps a measurement distribution to a weight vector. The relative
// frequency of each asset's bit across the distribution is its raw allocation
// signal; assets below the mean signal are zeroed, the survivors are rescaled
// to sum 1, and weights are clamped into [minPos, maxPos] by pinning breached
// assets at their bound and redistributing the remaining mass among the rest
// until a fixed point. Decoding is deterministic: the same distribution and
// bounds always produce the same vector.
func Decode(result *qbackend.ExecutionResult, numAssets int, minPos, maxPos float64) ([]float64, error) {
	if result == nil || result.Shots == 0 || len(result.Counts) == 0 {
		return nil, fmt.Errorf("%w: empty measurement distribution", ErrInfeasibleAllocation)
	}

	signals := marginals(result, numAssets)

	selected := selectAssets(signals, maxPos)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no asset has measurement support", ErrInfeasibleAllocation)
	}
	if minPos*float64(len(selected)) > 1+boundTolerance {
		return nil, fmt.Errorf("%w: %d selected assets at minimum %.4f exceed full allocation",
			ErrInfeasibleAllocation, len(selected), minPos)
	}
	if maxPos*float64(len(selected)) < 1-boundTolerance {
		return nil, fmt.Errorf("%w: %d selected assets at maximum %.4f cannot reach full allocation",
			ErrInfeasibleAllocation, len(selected), maxPos)
	}

	weights, err := redistribute(signals, selected, numAssets, minPos, maxPos)
	if err != nil {
		return nil, err
	}

	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1) > sumTolerance {
		return nil, fmt.Errorf("%w: redistribution converged to sum %.6f", ErrInfeasibleAllocation, sum)
	}

	return weights, nil
}

// marginals computes the per-asset bit frequency across the distribution.
func marginals(result *qbackend.ExecutionResult, numAssets int) []float64 {
	signals := make([]float64, numAssets)
	for bitstring, count := range result.Counts {
		limit := len(bitstring)
		if limit > numAssets {
			limit = numAssets
		}
		for i := 0; i < limit; i++ {
			if bitstring[i] == '1' {
				signals[i] += float64(count)
			}
		}
	}
	for i := range signals {
		signals[i] /= float64(result.Shots)
	}
	return signals
}

// selectAssets keeps assets whose signal is at or above the mean, then widens
// the selection with the strongest remaining signals if the cap alone cannot
// absorb a full allocation.
func selectAssets(signals []float64, maxPos float64) []int {
	var mean float64
	for _, s := range signals {
		mean += s
	}
	mean /= float64(len(signals))

	var selected []int
	for i, s := range signals {
		if s > 0 && s >= mean-boundTolerance {
			selected = append(selected, i)
		}
	}

	// Widen while the cap cannot absorb the full allocation
	for maxPos*float64(len(selected)) < 1-boundTolerance {
		bestIdx := -1
		bestSig := 0.0
		for i, s := range signals {
			if s <= 0 || contains(selected, i) {
				continue
			}
			if s > bestSig {
				bestSig = s
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		selected = append(selected, bestIdx)
	}

	return selected
}

// redistribute assigns the selected assets weights proportional to their
// signals, pinning bound violations and re-spreading the free mass until no
// violation remains.
func redistribute(signals []float64, selected []int, numAssets int, minPos, maxPos float64) ([]float64, error) {
	weights := make([]float64, numAssets)
	pinned := make(map[int]float64)
	maxRounds := 2*len(selected) + 4

	for round := 0; round < maxRounds; round++ {
		freeMass := 1.0
		for _, w := range pinned {
			freeMass -= w
		}
		if freeMass < -boundTolerance {
			return nil, fmt.Errorf("%w: pinned positions exceed full allocation", ErrInfeasibleAllocation)
		}

		var unpinned []int
		var signalMass float64
		for _, i := range selected {
			if _, ok := pinned[i]; ok {
				continue
			}
			unpinned = append(unpinned, i)
			signalMass += signals[i]
		}

		if len(unpinned) == 0 {
			if math.Abs(freeMass) > sumTolerance {
				return nil, fmt.Errorf("%w: all positions pinned with %.6f unallocated", ErrInfeasibleAllocation, freeMass)
			}
			for i := range weights {
				weights[i] = 0
			}
			for i, w := range pinned {
				weights[i] = w
			}
			return weights, nil
		}

		for _, i := range unpinned {
			if signalMass > 0 {
				weights[i] = freeMass * signals[i] / signalMass
			} else {
				weights[i] = freeMass / float64(len(unpinned))
			}
		}

		// Cap violations first: excess mass flows to the others
		capped := false
		for _, i := range unpinned {
			if weights[i] > maxPos+boundTolerance {
				pinned[i] = maxPos
				capped = true
			}
		}
		if capped {
			continue
		}

		// Then floor violations, one at a time so the floor demand does not
		// overshoot the free mass
		floorIdx := -1
		for _, i := range unpinned {
			if weights[i] < minPos-boundTolerance {
				if floorIdx < 0 || signals[i] < signals[floorIdx] {
					floorIdx = i
				}
			}
		}
		if floorIdx >= 0 {
			pinned[floorIdx] = minPos
			continue
		}

		// Fixed point reached
		for i := range weights {
			if !contains(selected, i) {
				weights[i] = 0
			}
		}
		for i, w := range pinned {
			weights[i] = w
		}
		return weights, nil
	}

	return nil, fmt.Errorf("%w: redistribution did not reach a fixed point", ErrInfeasibleAllocation)
}

func contains(indices []int, target int) bool {
	for _, i := range indices {
		if i == target {
			return true
		}
	}
	return false
}
