package mitigation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/events"
)

const recalibrationTimeout = 5 * time.Minute

// RecalibrationJob periodically re-measures every cached calibration so the
// correction tracks readout drift on the backend.
type RecalibrationJob struct {
	mitigator *Mitigator
	bus       *events.Bus
	log       zerolog.Logger
}

// NewRecalibrationJob creates the scheduled recalibration job.
func NewRecalibrationJob(mitigator *Mitigator, bus *events.Bus, log zerolog.Logger) *RecalibrationJob {
	return &RecalibrationJob{
		mitigator: mitigator,
		bus:       bus,
		log:       log.With().Str("job", "recalibration").Logger(),
	}
}

// Name returns the job name
func (j *RecalibrationJob) Name() string {
	return "recalibration"
}

// Run refreshes all cached calibrations.
func (j *RecalibrationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), recalibrationTimeout)
	defer cancel()

	if err := j.mitigator.RefreshAll(ctx); err != nil {
		return err
	}

	if j.bus != nil {
		j.mitigator.mu.RLock()
		for n, cal := range j.mitigator.calibrations {
			maxP01, maxP10 := cal.WorstRates()
			j.bus.Publish(&events.CalibrationUpdatedData{
				Qubits: n,
				MaxP01: maxP01,
				MaxP10: maxP10,
			})
		}
		j.mitigator.mu.RUnlock()
	}

	return nil
}
