package hamiltonian

// CostHamiltonian holds the pairwise risk-interaction coefficients and the
// per-asset linear return coefficients for one value of gamma. It is ephemeral:
// recomputed whenever gamma changes, owned by a single optimize call.
type CostHamiltonian struct {
	NumAssets int
	// Couplings[i][j] for i<j is the risk-interaction coefficient of the
	// unordered pair (i,j); the matrix is kept symmetric for convenience.
	Couplings [][]float64
	// Fields[i] is the linear return-preference coefficient of asset i.
	Fields []float64
}

// Encode builds the cost coefficients for the given gamma. For every unordered
// pair (i,j) the coupling is 2*gamma*risk[i][j]; for every asset the linear
// term is -gamma*returns[i]*(1-riskTolerance), so riskTolerance interpolates
// between pure risk minimization (1) and pure return maximization (0).
// Deterministic: identical inputs produce bit-identical coefficients.
func Encode(returns []float64, riskMatrix [][]float64, riskTolerance, gamma float64) *CostHamiltonian {
	n := len(returns)

	couplings := make([][]float64, n)
	for i := range couplings {
		couplings[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := 2 * gamma * riskMatrix[i][j]
			couplings[i][j] = c
			couplings[j][i] = c
		}
	}

	fields := make([]float64, n)
	for i := 0; i < n; i++ {
		fields[i] = -gamma * returns[i] * (1 - riskTolerance)
	}

	return &CostHamiltonian{
		NumAssets: n,
		Couplings: couplings,
		Fields:    fields,
	}
}

// Energy evaluates the cost of one measurement bitstring ('1' = asset
// selected). Bitstrings shorter than NumAssets contribute only the qubits
// they cover.
func (h *CostHamiltonian) Energy(bitstring string) float64 {
	var e float64
	limit := len(bitstring)
	if limit > h.NumAssets {
		limit = h.NumAssets
	}
	for i := 0; i < limit; i++ {
		if bitstring[i] != '1' {
			continue
		}
		e += h.Fields[i]
		for j := i + 1; j < limit; j++ {
			if bitstring[j] == '1' {
				e += h.Couplings[i][j]
			}
		}
	}
	return e
}
