// Package mitigation corrects raw measurement counts for systematic readout
// error using per-qubit confusion matrices measured from reference states.
package mitigation

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
)

// ErrCalibration is returned when calibration cannot be obtained or the
// measured error rates do not admit a usable correction.
var ErrCalibration = errors.New("calibration failed")

// Calibration holds the fitted per-qubit inverse confusion matrices.
type Calibration struct {
	P01       []float64 // P(read 1 | prepared 0) per qubit
	P10       []float64 // P(read 0 | prepared 1) per qubit
	UpdatedAt time.Time

	inverses []*mat.Dense
}

// NewCalibration fits inverse confusion matrices from measured error rates.
// An error rate at or above 0.5 means the readout carries no signal for that
// qubit and the linear correction is rejected.
func NewCalibration(result *qbackend.CalibrationResult) (*Calibration, error) {
	if result == nil || len(result.P01) == 0 || len(result.P01) != len(result.P10) {
		return nil, fmt.Errorf("%w: malformed calibration data", ErrCalibration)
	}

	n := len(result.P01)
	inverses := make([]*mat.Dense, n)
	for q := 0; q < n; q++ {
		p01, p10 := result.P01[q], result.P10[q]
		if p01 < 0 || p10 < 0 || p01 >= 0.5 || p10 >= 0.5 {
			return nil, fmt.Errorf("%w: qubit %d error rates out of range (p01=%f, p10=%f)", ErrCalibration, q, p01, p10)
		}

		// Column c is the readout distribution of prepared state c
		confusion := mat.NewDense(2, 2, []float64{
			1 - p01, p10,
			p01, 1 - p10,
		})

		var inv mat.Dense
		if err := inv.Inverse(confusion); err != nil {
			return nil, fmt.Errorf("%w: qubit %d confusion matrix is singular", ErrCalibration, q)
		}
		inverses[q] = &inv
	}

	return &Calibration{
		P01:       append([]float64(nil), result.P01...),
		P10:       append([]float64(nil), result.P10...),
		UpdatedAt: time.Now(),
		inverses:  inverses,
	}, nil
}

// Qubits returns the number of qubits this calibration covers.
func (c *Calibration) Qubits() int {
	return len(c.inverses)
}

// WorstRates returns the largest per-qubit error rates, for reporting.
func (c *Calibration) WorstRates() (maxP01, maxP10 float64) {
	for q := range c.P01 {
		if c.P01[q] > maxP01 {
			maxP01 = c.P01[q]
		}
		if c.P10[q] > maxP10 {
			maxP10 = c.P10[q]
		}
	}
	return maxP01, maxP10
}
