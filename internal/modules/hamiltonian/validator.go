// Package hamiltonian turns a mean-variance problem (expected returns, risk
// matrix, risk tolerance) into the Ising cost coefficients the circuit layer
// encodes.
package hamiltonian

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidInput is returned for shape mismatches or a risk matrix that is
// not strictly positive definite.
var ErrInvalidInput = errors.New("invalid input")

const symmetryTolerance = 1e-8

// Validate checks shape consistency and strict positive-definiteness of the
// risk matrix. Positive semi-definite but singular matrices are rejected: a
// zero eigenvalue means a degenerate covariance structure and breaks the
// volatility math downstream. Pure check, no side effects.
func Validate(returns []float64, riskMatrix [][]float64) error {
	n := len(returns)
	if n == 0 {
		return fmt.Errorf("%w: empty returns vector", ErrInvalidInput)
	}
	if len(riskMatrix) != n {
		return fmt.Errorf("%w: risk matrix has %d rows, expected %d", ErrInvalidInput, len(riskMatrix), n)
	}
	for i, row := range riskMatrix {
		if len(row) != n {
			return fmt.Errorf("%w: risk matrix row %d has %d columns, expected %d", ErrInvalidInput, i, len(row), n)
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(riskMatrix[i][j]-riskMatrix[j][i]) > symmetryTolerance {
				return fmt.Errorf("%w: risk matrix is not symmetric at (%d,%d)", ErrInvalidInput, i, j)
			}
		}
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, riskMatrix[i][j])
		}
	}

	// Cholesky succeeds exactly for strictly positive definite matrices
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return fmt.Errorf("%w: risk matrix is not positive definite", ErrInvalidInput)
	}

	return nil
}
