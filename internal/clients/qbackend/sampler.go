package qbackend

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	burnInSweeps   = 50
	sweepsPerShot  = 3
	minTemperature = 0.05
)

// SamplerBackend is the local simulated execution mode. It does not simulate
// gates; it samples bitstrings from a Gibbs distribution over the cost encoded
// in the circuit's ZZ/RZ phases, with the mixing angles acting as an effective
// temperature. Lower-cost assignments are sampled more often, and larger
// mixing angles broaden the distribution, which is the behavior the
// variational loop needs from an execution backend.
type SamplerBackend struct {
	noise *NoiseModel
	rng   *rand.Rand
	mu    sync.Mutex
	log   zerolog.Logger
}

// NewSamplerBackend creates a local sampling backend. A zero seed derives one
// from the clock; a fixed seed makes execution deterministic.
func NewSamplerBackend(seed int64, noise *NoiseModel, log zerolog.Logger) *SamplerBackend {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SamplerBackend{
		noise: noise,
		rng:   rand.New(rand.NewSource(seed)),
		log:   log.With().Str("client", "sampler").Logger(),
	}
}

// Name returns the backend identifier
func (s *SamplerBackend) Name() string {
	return "simulator"
}

// Execute samples Shots bitstrings for the given circuit.
func (s *SamplerBackend) Execute(ctx context.Context, circuit *Circuit) (*ExecutionResult, error) {
	if circuit == nil || circuit.NumQubits < 1 {
		return nil, fmt.Errorf("%w: circuit has no qubits", ErrExecution)
	}
	if circuit.Shots < 1 {
		return nil, fmt.Errorf("%w: shot count must be positive", ErrExecution)
	}

	couplings, fields, temperature := s.parseCircuit(circuit)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := circuit.NumQubits
	state := make([]bool, n)
	for i := range state {
		state[i] = s.rng.Intn(2) == 1
	}

	energy := func(bits []bool) float64 {
		var e float64
		for i := 0; i < n; i++ {
			if !bits[i] {
				continue
			}
			e += fields[i]
			for j := i + 1; j < n; j++ {
				if bits[j] {
					e += couplings[i][j]
				}
			}
		}
		return e
	}

	// Metropolis sweep: propose single-bit flips
	sweep := func() {
		for i := 0; i < n; i++ {
			before := energy(state)
			state[i] = !state[i]
			after := energy(state)
			delta := after - before
			if delta > 0 && s.rng.Float64() >= math.Exp(-delta/temperature) {
				state[i] = !state[i] // reject
			}
		}
	}

	for i := 0; i < burnInSweeps; i++ {
		sweep()
	}

	counts := make(map[string]int)
	buf := make([]byte, n)
	for shot := 0; shot < circuit.Shots; shot++ {
		if shot%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrExecution, err)
			}
		}

		for i := 0; i < sweepsPerShot; i++ {
			sweep()
		}

		for i := 0; i < n; i++ {
			bit := state[i]
			// Readout noise flips the recorded bit, not the chain state
			if s.noise != nil {
				if bit && i < len(s.noise.Flip10) && s.rng.Float64() < s.noise.Flip10[i] {
					bit = false
				} else if !bit && i < len(s.noise.Flip01) && s.rng.Float64() < s.noise.Flip01[i] {
					bit = true
				}
			}
			if bit {
				buf[i] = '1'
			} else {
				buf[i] = '0'
			}
		}
		counts[string(buf)]++
	}

	return &ExecutionResult{Counts: counts, Shots: circuit.Shots}, nil
}

// Calibrate measures the all-zeros and all-ones reference states through the
// configured readout noise.
func (s *SamplerBackend) Calibrate(ctx context.Context, numQubits, shots int) (*CalibrationResult, error) {
	if numQubits < 1 || shots < 1 {
		return nil, fmt.Errorf("%w: invalid calibration request", ErrExecution)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p01 := make([]float64, numQubits)
	p10 := make([]float64, numQubits)
	for q := 0; q < numQubits; q++ {
		var flip01, flip10 float64
		if s.noise != nil {
			if q < len(s.noise.Flip01) {
				flip01 = s.noise.Flip01[q]
			}
			if q < len(s.noise.Flip10) {
				flip10 = s.noise.Flip10[q]
			}
		}

		var c01, c10 int
		for i := 0; i < shots; i++ {
			if s.rng.Float64() < flip01 {
				c01++
			}
			if s.rng.Float64() < flip10 {
				c10++
			}
		}
		p01[q] = float64(c01) / float64(shots)
		p10[q] = float64(c10) / float64(shots)
	}

	s.log.Debug().Int("qubits", numQubits).Int("shots", shots).Msg("Calibration measurement completed")

	return &CalibrationResult{P01: p01, P10: p10}, nil
}

// parseCircuit extracts the cost landscape from the first cost layer and an
// effective temperature from the mixing angles.
func (s *SamplerBackend) parseCircuit(circuit *Circuit) ([][]float64, []float64, float64) {
	n := circuit.NumQubits
	couplings := make([][]float64, n)
	for i := range couplings {
		couplings[i] = make([]float64, n)
	}
	fields := make([]float64, n)

	var betaSum float64
	var betaCount int
	firstLayer := true
	for _, gate := range circuit.Gates {
		switch gate.Name {
		case "ZZ":
			if firstLayer && len(gate.Qubits) == 2 && len(gate.Params) == 1 {
				i, j := gate.Qubits[0], gate.Qubits[1]
				if i >= 0 && j >= 0 && i < n && j < n {
					couplings[i][j] = gate.Params[0]
					couplings[j][i] = gate.Params[0]
				}
			}
		case "RZ":
			if firstLayer && len(gate.Qubits) == 1 && len(gate.Params) == 1 {
				if q := gate.Qubits[0]; q >= 0 && q < n {
					fields[q] = gate.Params[0]
				}
			}
		case "RX":
			firstLayer = false
			if len(gate.Params) == 1 {
				betaSum += math.Abs(gate.Params[0])
				betaCount++
			}
		}
	}

	temperature := minTemperature
	if betaCount > 0 {
		if t := betaSum / float64(betaCount); t > temperature {
			temperature = t
		}
	}

	return couplings, fields, temperature
}
