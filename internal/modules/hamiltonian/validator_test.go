package hamiltonian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRiskMatrix() [][]float64 {
	return [][]float64{
		{0.05, 0.01, 0.02, 0.01},
		{0.01, 0.06, 0.01, 0.02},
		{0.02, 0.01, 0.04, 0.01},
		{0.01, 0.02, 0.01, 0.07},
	}
}

func TestValidate_AcceptsPositiveDefinite(t *testing.T) {
	returns := []float64{0.1, 0.15, 0.08, 0.12}
	assert.NoError(t, Validate(returns, validRiskMatrix()))
}

func TestValidate_RejectsShapeMismatch(t *testing.T) {
	returns := []float64{0.1, 0.15, 0.08}
	err := Validate(returns, validRiskMatrix())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidate_RejectsRaggedMatrix(t *testing.T) {
	matrix := validRiskMatrix()
	matrix[2] = matrix[2][:3]
	err := Validate([]float64{0.1, 0.15, 0.08, 0.12}, matrix)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidate_RejectsZeroMatrix(t *testing.T) {
	zero := make([][]float64, 4)
	for i := range zero {
		zero[i] = make([]float64, 4)
	}
	err := Validate([]float64{0.1, 0.15, 0.08, 0.12}, zero)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidate_RejectsSingularPSD(t *testing.T) {
	// Rank-1 matrix: positive semi-definite but singular, must be rejected
	psd := [][]float64{
		{1, 1},
		{1, 1},
	}
	err := Validate([]float64{0.1, 0.2}, psd)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidate_RejectsNegativeEigenvalue(t *testing.T) {
	indefinite := [][]float64{
		{1, 2},
		{2, 1},
	}
	err := Validate([]float64{0.1, 0.2}, indefinite)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidate_RejectsAsymmetry(t *testing.T) {
	matrix := validRiskMatrix()
	matrix[0][1] = 0.03
	err := Validate([]float64{0.1, 0.15, 0.08, 0.12}, matrix)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidate_RejectsEmptyInput(t *testing.T) {
	assert.ErrorIs(t, Validate(nil, nil), ErrInvalidInput)
}
