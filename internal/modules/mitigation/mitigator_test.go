package mitigation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
)

// stubBackend serves canned calibration results and records calls.
type stubBackend struct {
	calibration *qbackend.CalibrationResult
	err         error
	calls       int
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Execute(ctx context.Context, circuit *qbackend.Circuit) (*qbackend.ExecutionResult, error) {
	return nil, errors.New("stub backend does not execute")
}

func (s *stubBackend) Calibrate(ctx context.Context, numQubits, shots int) (*qbackend.CalibrationResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.calibration, nil
}

func TestMitigate_PassthroughWhenDisabled(t *testing.T) {
	backend := &stubBackend{}
	mitigator := NewMitigator(backend, 1024, false, zerolog.Nop())

	raw := &qbackend.ExecutionResult{Counts: map[string]int{"01": 3, "10": 5}, Shots: 8}
	out, err := mitigator.Mitigate(context.Background(), raw)
	require.NoError(t, err)

	assert.Same(t, raw, out)
	assert.Zero(t, backend.calls, "disabled mitigation must not calibrate")
	assert.False(t, mitigator.Enabled())
}

func TestMitigate_CorrectsSingleQubitReadout(t *testing.T) {
	backend := &stubBackend{
		calibration: &qbackend.CalibrationResult{
			P01: []float64{0.1},
			P10: []float64{0.2},
		},
	}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	// The confusion matrix maps a pure |1> of 1000 shots to (200, 800)
	raw := &qbackend.ExecutionResult{Counts: map[string]int{"0": 200, "1": 800}, Shots: 1000}
	out, err := mitigator.Mitigate(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"1": 1000}, out.Counts)
	assert.Equal(t, 1000, out.Shots)
}

func TestMitigate_CorrectsTwoQubitReadout(t *testing.T) {
	backend := &stubBackend{
		calibration: &qbackend.CalibrationResult{
			P01: []float64{0.1, 0.1},
			P10: []float64{0.1, 0.1},
		},
	}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	// Expected counts for a pure |11> of 100 shots through 10% symmetric
	// readout flips on each qubit
	raw := &qbackend.ExecutionResult{
		Counts: map[string]int{"11": 81, "10": 9, "01": 9, "00": 1},
		Shots:  100,
	}
	out, err := mitigator.Mitigate(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"11": 100}, out.Counts)
}

func TestMitigate_PreservesShotCount(t *testing.T) {
	backend := &stubBackend{
		calibration: &qbackend.CalibrationResult{
			P01: []float64{0.03, 0.05},
			P10: []float64{0.04, 0.02},
		},
	}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	raw := &qbackend.ExecutionResult{
		Counts: map[string]int{"00": 120, "01": 230, "10": 410, "11": 240},
		Shots:  1000,
	}
	out, err := mitigator.Mitigate(context.Background(), raw)
	require.NoError(t, err)

	total := 0
	for _, count := range out.Counts {
		assert.Positive(t, count)
		total += count
	}
	assert.Equal(t, 1000, total)
}

func TestMitigate_CachesCalibrationPerQubitCount(t *testing.T) {
	backend := &stubBackend{
		calibration: &qbackend.CalibrationResult{
			P01: []float64{0.01, 0.01},
			P10: []float64{0.01, 0.01},
		},
	}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	raw := &qbackend.ExecutionResult{Counts: map[string]int{"10": 10}, Shots: 10}
	_, err := mitigator.Mitigate(context.Background(), raw)
	require.NoError(t, err)
	_, err = mitigator.Mitigate(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.calls)
	assert.NotNil(t, mitigator.Calibration(2))
	assert.Nil(t, mitigator.Calibration(3))
}

func TestMitigate_CalibrationFailureAborts(t *testing.T) {
	backend := &stubBackend{err: errors.New("device offline")}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	raw := &qbackend.ExecutionResult{Counts: map[string]int{"0": 10}, Shots: 10}
	_, err := mitigator.Mitigate(context.Background(), raw)
	assert.ErrorIs(t, err, ErrCalibration)
}

func TestRefresh_RejectsUnusableErrorRates(t *testing.T) {
	backend := &stubBackend{
		calibration: &qbackend.CalibrationResult{
			P01: []float64{0.6},
			P10: []float64{0.01},
		},
	}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	_, err := mitigator.Refresh(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCalibration)
	assert.Nil(t, mitigator.Calibration(1))
}

func TestMitigate_RejectsEmptyDistribution(t *testing.T) {
	backend := &stubBackend{}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	_, err := mitigator.Mitigate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCalibration)

	_, err = mitigator.Mitigate(context.Background(), &qbackend.ExecutionResult{Counts: map[string]int{}})
	assert.ErrorIs(t, err, ErrCalibration)
}

func TestRefreshAll_RefreshesCachedSizes(t *testing.T) {
	backend := &stubBackend{
		calibration: &qbackend.CalibrationResult{
			P01: []float64{0.02, 0.02},
			P10: []float64{0.02, 0.02},
		},
	}
	mitigator := NewMitigator(backend, 1024, true, zerolog.Nop())

	_, err := mitigator.Refresh(context.Background(), 2)
	require.NoError(t, err)

	require.NoError(t, mitigator.RefreshAll(context.Background()))
	assert.Equal(t, 2, backend.calls)
}
