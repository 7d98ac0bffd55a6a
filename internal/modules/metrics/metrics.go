// Package metrics computes portfolio quality metrics from a weight vector.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/quantfolio/pkg/formulas"
)

// Record holds the computed portfolio metrics. Turnover fields are present
// only when a current portfolio was supplied.
type Record struct {
	ExpectedReturn    float64  `json:"expected_return"`
	PortfolioRisk     float64  `json:"portfolio_risk"`
	SharpeRatio       float64  `json:"sharpe_ratio"`
	Turnover          *float64 `json:"turnover,omitempty"`
	TransactionCosts  *float64 `json:"transaction_costs,omitempty"`
	NetExpectedReturn *float64 `json:"net_expected_return,omitempty"`
}

// Calculator computes metrics with a configured transaction-cost rate.
type Calculator struct {
	costRate float64
}

// NewCalculator creates a metrics calculator.
func NewCalculator(costRate float64) *Calculator {
	return &Calculator{costRate: costRate}
}

// Compute derives expected return, volatility and Sharpe ratio from the
// weights and inputs; when currentPortfolio is non-nil it also derives
// turnover-based transaction costs and net expected return. Sharpe is defined
// as 0 at zero risk (documented convention, avoids the division).
func (c *Calculator) Compute(weights, returns []float64, riskMatrix [][]float64, currentPortfolio []float64) (*Record, error) {
	n := len(weights)
	if len(returns) != n {
		return nil, fmt.Errorf("weights length %d does not match returns length %d", n, len(returns))
	}
	if len(riskMatrix) != n {
		return nil, fmt.Errorf("weights length %d does not match risk matrix size %d", n, len(riskMatrix))
	}
	for i, row := range riskMatrix {
		if len(row) != n {
			return nil, fmt.Errorf("risk matrix row %d has %d columns, expected %d", i, len(row), n)
		}
	}
	if currentPortfolio != nil && len(currentPortfolio) != n {
		return nil, fmt.Errorf("current portfolio length %d does not match weights length %d", len(currentPortfolio), n)
	}

	expectedReturn := formulas.Dot(weights, returns)

	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sigma.SetSym(i, j, riskMatrix[i][j])
		}
	}
	w := mat.NewVecDense(n, append([]float64(nil), weights...))
	variance := mat.Inner(w, sigma, w)
	if variance < 0 {
		// Floating-point residue on a PD matrix
		variance = 0
	}
	risk := math.Sqrt(variance)

	sharpe := 0.0
	if risk > 0 {
		sharpe = expectedReturn / risk
	}

	record := &Record{
		ExpectedReturn: expectedReturn,
		PortfolioRisk:  risk,
		SharpeRatio:    sharpe,
	}

	if currentPortfolio != nil {
		turnover := formulas.Turnover(weights, currentPortfolio)
		costs := turnover * c.costRate
		net := expectedReturn - costs
		record.Turnover = &turnover
		record.TransactionCosts = &costs
		record.NetExpectedReturn = &net
	}

	return record, nil
}
