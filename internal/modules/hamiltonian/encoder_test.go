package hamiltonian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Coefficients(t *testing.T) {
	returns := []float64{0.1, 0.2}
	risk := [][]float64{
		{0.04, 0.01},
		{0.01, 0.05},
	}

	h := Encode(returns, risk, 0.5, 2.0)

	require.Equal(t, 2, h.NumAssets)
	// Coupling = 2 * gamma * risk[0][1]
	assert.InDelta(t, 2*2.0*0.01, h.Couplings[0][1], 1e-15)
	assert.Equal(t, h.Couplings[0][1], h.Couplings[1][0])
	// Field = -gamma * return * (1 - riskTolerance)
	assert.InDelta(t, -2.0*0.1*0.5, h.Fields[0], 1e-15)
	assert.InDelta(t, -2.0*0.2*0.5, h.Fields[1], 1e-15)
}

func TestEncode_RiskToleranceExtremes(t *testing.T) {
	returns := []float64{0.1, 0.2}
	risk := [][]float64{
		{0.04, 0.01},
		{0.01, 0.05},
	}

	// Pure risk minimization: return preference vanishes
	pureRisk := Encode(returns, risk, 1.0, 1.0)
	assert.Zero(t, pureRisk.Fields[0])
	assert.Zero(t, pureRisk.Fields[1])

	// Pure return maximization keeps the full linear term
	pureReturn := Encode(returns, risk, 0.0, 1.0)
	assert.InDelta(t, -0.1, pureReturn.Fields[0], 1e-15)
}

func TestEncode_IsPure(t *testing.T) {
	returns := []float64{0.1, 0.15, 0.08, 0.12}
	risk := validRiskMatrix()

	first := Encode(returns, risk, 0.5, 1.3)
	second := Encode(returns, risk, 0.5, 1.3)

	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, first.Couplings, second.Couplings)
}

func TestEnergy(t *testing.T) {
	h := &CostHamiltonian{
		NumAssets: 3,
		Couplings: [][]float64{
			{0, 0.2, 0.3},
			{0.2, 0, 0.4},
			{0.3, 0.4, 0},
		},
		Fields: []float64{-1, -2, -3},
	}

	assert.Zero(t, h.Energy("000"))
	assert.InDelta(t, -1.0, h.Energy("100"), 1e-15)
	// Both assets selected: fields plus their coupling
	assert.InDelta(t, -1-2+0.2, h.Energy("110"), 1e-15)
	assert.InDelta(t, -1-2-3+0.2+0.3+0.4, h.Energy("111"), 1e-15)
}

func TestEnergy_ShortBitstring(t *testing.T) {
	h := Encode([]float64{0.1, 0.2}, [][]float64{{0.04, 0.01}, {0.01, 0.05}}, 0.5, 1.0)
	// Only the covered qubit contributes
	assert.Equal(t, h.Fields[0], h.Energy("1"))
}
