// Package optimization composes the full pipeline: validate, encode, search,
// mitigate, decode, score. One Optimize call owns all of its intermediate
// state, so independent calls can run concurrently.
package optimization

import (
	"fmt"
	"time"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/modules/metrics"
)

// Config is the optimizer configuration, fixed at construction.
type Config struct {
	RiskTolerance       float64 `json:"risk_tolerance"`
	MaxPositionSize     float64 `json:"max_position_size"`
	MinPositionSize     float64 `json:"min_position_size"`
	TransactionCostRate float64 `json:"transaction_cost_rate"`
	ErrorMitigation     bool    `json:"error_mitigation"`
	Shots               int     `json:"shots"`
	MaxIterations       int     `json:"max_iterations"`
	DefaultLayers       int     `json:"default_layers"`
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.RiskTolerance < 0 || c.RiskTolerance > 1 {
		return fmt.Errorf("risk tolerance must be in [0,1], got %f", c.RiskTolerance)
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("max position size must be in (0,1], got %f", c.MaxPositionSize)
	}
	if c.MinPositionSize < 0 || c.MinPositionSize >= c.MaxPositionSize {
		return fmt.Errorf("min position size must be in [0, max position size), got %f", c.MinPositionSize)
	}
	if c.TransactionCostRate < 0 {
		return fmt.Errorf("transaction cost rate must be non-negative, got %f", c.TransactionCostRate)
	}
	if c.Shots < 1 {
		return fmt.Errorf("shot count must be positive, got %d", c.Shots)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.DefaultLayers < 1 {
		return fmt.Errorf("default layer count must be positive, got %d", c.DefaultLayers)
	}
	return nil
}

// Request is one optimization problem instance.
type Request struct {
	Returns          []float64   `json:"returns"`
	RiskMatrix       [][]float64 `json:"risk_matrix"`
	CurrentPortfolio []float64   `json:"current_portfolio,omitempty"`
	Layers           int         `json:"layers,omitempty"` // 0 uses the configured default
}

// Result is the terminal artifact of one optimize call.
type Result struct {
	RunID         string                    `json:"run_id"`
	Weights       []float64                 `json:"weights"`
	Metrics       *metrics.Record           `json:"metrics"`
	BestObjective float64                   `json:"best_objective"`
	Evaluations   int                       `json:"evaluations"`
	Layers        int                       `json:"layers"`
	Distribution  *qbackend.ExecutionResult `json:"-"`
	CreatedAt     time.Time                 `json:"created_at"`
}
