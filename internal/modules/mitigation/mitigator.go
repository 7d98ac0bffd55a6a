package mitigation

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
)

// negligible drops correction mass too small to affect integer counts
const negligible = 1e-9

// Mitigator applies readout-error correction to measurement distributions.
// Calibrations are fetched from the backend lazily per qubit count and cached
// until Refresh replaces them.
type Mitigator struct {
	backend qbackend.Backend
	shots   int
	enabled bool

	mu           sync.RWMutex
	calibrations map[int]*Calibration

	log zerolog.Logger
}

// NewMitigator creates a mitigator. When enabled is false, Mitigate is a
// passthrough and the backend is never asked to calibrate.
func NewMitigator(backend qbackend.Backend, calibrationShots int, enabled bool, log zerolog.Logger) *Mitigator {
	return &Mitigator{
		backend:      backend,
		shots:        calibrationShots,
		enabled:      enabled,
		calibrations: make(map[int]*Calibration),
		log:          log.With().Str("component", "mitigation").Logger(),
	}
}

// Enabled reports whether correction is active.
func (m *Mitigator) Enabled() bool {
	return m.enabled
}

// Calibration returns the cached calibration for a qubit count, or nil.
func (m *Mitigator) Calibration(numQubits int) *Calibration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calibrations[numQubits]
}

// Refresh measures a fresh calibration for the given qubit count and caches
// it, replacing any previous one.
func (m *Mitigator) Refresh(ctx context.Context, numQubits int) (*Calibration, error) {
	result, err := m.backend.Calibrate(ctx, numQubits, m.shots)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibration, err)
	}

	cal, err := NewCalibration(result)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calibrations[numQubits] = cal
	m.mu.Unlock()

	maxP01, maxP10 := cal.WorstRates()
	m.log.Info().
		Int("qubits", numQubits).
		Float64("max_p01", maxP01).
		Float64("max_p10", maxP10).
		Msg("Calibration refreshed")

	return cal, nil
}

// RefreshAll re-measures every cached calibration. Used by the scheduled
// recalibration job.
func (m *Mitigator) RefreshAll(ctx context.Context) error {
	m.mu.RLock()
	sizes := make([]int, 0, len(m.calibrations))
	for n := range m.calibrations {
		sizes = append(sizes, n)
	}
	m.mu.RUnlock()

	for _, n := range sizes {
		if _, err := m.Refresh(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// Mitigate corrects a measurement distribution for readout error. The
// returned distribution has the same shape (bitstring counts summing to the
// original shot count). When mitigation is disabled the input is returned
// unchanged.
func (m *Mitigator) Mitigate(ctx context.Context, result *qbackend.ExecutionResult) (*qbackend.ExecutionResult, error) {
	if !m.enabled {
		return result, nil
	}
	if result == nil || len(result.Counts) == 0 {
		return nil, fmt.Errorf("%w: empty distribution", ErrCalibration)
	}

	numQubits := 0
	for bitstring := range result.Counts {
		numQubits = len(bitstring)
		break
	}

	cal := m.Calibration(numQubits)
	if cal == nil {
		var err error
		if cal, err = m.Refresh(ctx, numQubits); err != nil {
			return nil, err
		}
	}
	if cal.Qubits() != numQubits {
		return nil, fmt.Errorf("%w: calibration covers %d qubits, distribution has %d", ErrCalibration, cal.Qubits(), numQubits)
	}

	freqs := make(map[string]float64, len(result.Counts))
	for bitstring, count := range result.Counts {
		freqs[bitstring] = float64(count)
	}

	// Tensor-product inverse, applied one qubit at a time
	for q := 0; q < numQubits; q++ {
		freqs = applyInverse(freqs, q, cal.inverses[q])
	}

	// Clamp the unphysical negative frequencies the inverse can produce,
	// then renormalize back to the shot count
	var total float64
	for bitstring, v := range freqs {
		if v <= 0 {
			delete(freqs, bitstring)
			continue
		}
		total += v
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: correction produced an empty distribution", ErrCalibration)
	}

	corrected := make(map[string]int, len(freqs))
	scale := float64(result.Shots) / total
	sum := 0
	largestKey := ""
	largestVal := -1.0
	for bitstring, v := range freqs {
		count := int(math.Round(v * scale))
		if count > 0 {
			corrected[bitstring] = count
			sum += count
		}
		if v > largestVal {
			largestVal = v
			largestKey = bitstring
		}
	}
	if diff := result.Shots - sum; diff != 0 && largestKey != "" {
		corrected[largestKey] += diff
		if corrected[largestKey] <= 0 {
			delete(corrected, largestKey)
		}
	}

	m.log.Debug().
		Int("qubits", numQubits).
		Int("raw_outcomes", len(result.Counts)).
		Int("corrected_outcomes", len(corrected)).
		Msg("Distribution corrected")

	return &qbackend.ExecutionResult{Counts: corrected, Shots: result.Shots}, nil
}

// applyInverse applies one qubit's inverse confusion matrix to every
// (bit=0, bit=1) bitstring pair in the distribution.
func applyInverse(freqs map[string]float64, q int, inv *mat.Dense) map[string]float64 {
	out := make(map[string]float64, len(freqs))
	seen := make(map[string]struct{}, len(freqs))

	for bitstring := range freqs {
		zero := withBit(bitstring, q, '0')
		if _, done := seen[zero]; done {
			continue
		}
		seen[zero] = struct{}{}
		one := withBit(bitstring, q, '1')

		c0 := freqs[zero]
		c1 := freqs[one]
		n0 := inv.At(0, 0)*c0 + inv.At(0, 1)*c1
		n1 := inv.At(1, 0)*c0 + inv.At(1, 1)*c1

		if math.Abs(n0) > negligible {
			out[zero] = n0
		}
		if math.Abs(n1) > negligible {
			out[one] = n1
		}
	}

	return out
}

func withBit(bitstring string, q int, bit byte) string {
	if q < 0 || q >= len(bitstring) || bitstring[q] == bit {
		return bitstring
	}
	b := []byte(bitstring)
	b[q] = bit
	return string(b)
}
