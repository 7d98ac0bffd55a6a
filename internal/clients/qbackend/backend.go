// Package qbackend provides the quantum execution backend abstraction used by
// the optimization pipeline: a circuit description, a measurement result, and
// pluggable backends (remote HTTP service or local sampler).
//
// Bitstring convention: character k of a measurement bitstring corresponds to
// qubit k (asset k), '1' meaning the asset is selected in that sample.
package qbackend

import (
	"context"
	"errors"
)

// ErrExecution is the base error for backend execution failures. Callers test
// for it with errors.Is; the wrapped message carries the stage detail.
var ErrExecution = errors.New("backend execution failed")

// GateOp is a single gate operation in a circuit description
type GateOp struct {
	Name   string    `json:"name"`
	Qubits []int     `json:"qubits"`
	Params []float64 `json:"params,omitempty"`
}

// Circuit is an executable circuit description. The backend owns gate
// scheduling; this is purely declarative.
type Circuit struct {
	NumQubits int      `json:"num_qubits"`
	Gates     []GateOp `json:"gates"`
	Shots     int      `json:"shots"`
}

// ExecutionResult holds measurement counts from one circuit execution.
// Counts values sum to Shots.
type ExecutionResult struct {
	Counts map[string]int `json:"counts"`
	Shots  int            `json:"shots"`
}

// CalibrationResult holds per-qubit readout error rates measured from
// reference states.
type CalibrationResult struct {
	// P01[q] = P(read 1 | prepared 0) for qubit q
	P01 []float64 `json:"p01"`
	// P10[q] = P(read 0 | prepared 1) for qubit q
	P10 []float64 `json:"p10"`
}

// NoiseModel describes per-qubit readout bit-flip probabilities applied by a
// simulated backend. A nil NoiseModel means ideal readout.
type NoiseModel struct {
	// Flip01[q] = probability a measured 0 is read as 1
	Flip01 []float64 `json:"flip01"`
	// Flip10[q] = probability a measured 1 is read as 0
	Flip10 []float64 `json:"flip10"`
}

// Backend executes circuit descriptions and supports a calibration-measurement
// mode for readout-error characterization.
type Backend interface {
	Name() string

	// Execute runs the circuit for its configured shot count and returns the
	// measurement distribution.
	Execute(ctx context.Context, circuit *Circuit) (*ExecutionResult, error)

	// Calibrate prepares and measures the all-zeros and all-ones reference
	// states and returns the observed per-qubit readout error rates.
	Calibrate(ctx context.Context, numQubits, shots int) (*CalibrationResult, error)
}
