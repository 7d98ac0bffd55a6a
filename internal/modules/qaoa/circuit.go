// Package qaoa builds layered variational circuit descriptions from a cost
// Hamiltonian and a (gamma, beta) parameter schedule. Execution is delegated
// to a qbackend.Backend; nothing here touches gates beyond describing them.
package qaoa

import (
	"errors"
	"fmt"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/modules/hamiltonian"
)

// ErrInvalidCircuitDepth is returned when the layer count is below 1.
var ErrInvalidCircuitDepth = errors.New("invalid circuit depth")

// EncoderFunc produces the cost Hamiltonian for a given gamma. The search
// loop closes this over the immutable problem inputs.
type EncoderFunc func(gamma float64) *hamiltonian.CostHamiltonian

// Parameters is one immutable snapshot of the circuit parameter schedule:
// one (gamma, beta) pair per layer.
type Parameters struct {
	Gammas []float64
	Betas  []float64
}

// NewParameters returns the initial schedule for p layers: a linear ramp that
// grows the cost angles and shrinks the mixing angles across layers, the
// usual warm start for annealing-like schedules.
func NewParameters(p int) Parameters {
	gammas := make([]float64, p)
	betas := make([]float64, p)
	for k := 0; k < p; k++ {
		frac := (float64(k) + 1) / float64(p)
		gammas[k] = 0.4 * frac
		betas[k] = 0.4 * (1 - frac)
		if betas[k] < 0.1 {
			betas[k] = 0.1
		}
	}
	return Parameters{Gammas: gammas, Betas: betas}
}

// Layers returns the layer count p
func (p Parameters) Layers() int {
	return len(p.Gammas)
}

// Vector flattens the schedule to [gamma_1..gamma_p, beta_1..beta_p] for the
// black-box optimizer.
func (p Parameters) Vector() []float64 {
	v := make([]float64, 0, 2*len(p.Gammas))
	v = append(v, p.Gammas...)
	v = append(v, p.Betas...)
	return v
}

// ParametersFromVector rebuilds a schedule from an optimizer vector.
func ParametersFromVector(v []float64) (Parameters, error) {
	if len(v) == 0 || len(v)%2 != 0 {
		return Parameters{}, fmt.Errorf("parameter vector length %d is not an even positive number", len(v))
	}
	p := len(v) / 2
	gammas := make([]float64, p)
	betas := make([]float64, p)
	copy(gammas, v[:p])
	copy(betas, v[p:])
	return Parameters{Gammas: gammas, Betas: betas}, nil
}

// Build produces the executable circuit description: a Hadamard wall, then p
// layers of cost phases (ZZ couplings and RZ fields at gamma_k) followed by an
// RX mixer at beta_k, then measurement of every qubit.
func Build(encode EncoderFunc, numAssets int, params Parameters, shots int) (*qbackend.Circuit, error) {
	p := params.Layers()
	if p < 1 {
		return nil, fmt.Errorf("%w: p=%d", ErrInvalidCircuitDepth, p)
	}
	if len(params.Betas) != p {
		return nil, fmt.Errorf("%w: %d gammas but %d betas", ErrInvalidCircuitDepth, p, len(params.Betas))
	}
	if numAssets < 1 {
		return nil, fmt.Errorf("%w: no assets", ErrInvalidCircuitDepth)
	}

	circuit := &qbackend.Circuit{
		NumQubits: numAssets,
		Shots:     shots,
	}

	// Uniform superposition start
	for q := 0; q < numAssets; q++ {
		circuit.Gates = append(circuit.Gates, qbackend.GateOp{Name: "H", Qubits: []int{q}})
	}

	for k := 0; k < p; k++ {
		h := encode(params.Gammas[k])

		for i := 0; i < numAssets; i++ {
			for j := i + 1; j < numAssets; j++ {
				if c := h.Couplings[i][j]; c != 0 {
					circuit.Gates = append(circuit.Gates, qbackend.GateOp{
						Name:   "ZZ",
						Qubits: []int{i, j},
						Params: []float64{c},
					})
				}
			}
		}

		for i := 0; i < numAssets; i++ {
			if f := h.Fields[i]; f != 0 {
				circuit.Gates = append(circuit.Gates, qbackend.GateOp{
					Name:   "RZ",
					Qubits: []int{i},
					Params: []float64{f},
				})
			}
		}

		for q := 0; q < numAssets; q++ {
			circuit.Gates = append(circuit.Gates, qbackend.GateOp{
				Name:   "RX",
				Qubits: []int{q},
				Params: []float64{params.Betas[k]},
			})
		}
	}

	for q := 0; q < numAssets; q++ {
		circuit.Gates = append(circuit.Gates, qbackend.GateOp{Name: "MEASURE", Qubits: []int{q}})
	}

	return circuit, nil
}
