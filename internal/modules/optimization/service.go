package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/events"
	"github.com/quantfolio/quantfolio/internal/modules/decoding"
	"github.com/quantfolio/quantfolio/internal/modules/hamiltonian"
	"github.com/quantfolio/quantfolio/internal/modules/metrics"
	"github.com/quantfolio/quantfolio/internal/modules/mitigation"
	"github.com/quantfolio/quantfolio/internal/modules/qaoa"
	"github.com/quantfolio/quantfolio/internal/modules/search"
)

// RunStore persists completed optimization runs. Persistence failures are
// logged but never fail an otherwise valid optimization.
type RunStore interface {
	Save(result *Result) error
}

// Service orchestrates portfolio optimizations. Config and collaborators are
// immutable for the service lifetime; each Optimize call owns its own
// Hamiltonian, parameters and distributions, so calls may run concurrently.
type Service struct {
	cfg        Config
	backend    qbackend.Backend
	strategy   search.Strategy
	mitigator  *mitigation.Mitigator
	calculator *metrics.Calculator
	runs       RunStore
	bus        *events.Bus
	log        zerolog.Logger
}

// NewService creates the optimizer service. runs and bus may be nil.
func NewService(
	cfg Config,
	backend qbackend.Backend,
	strategy search.Strategy,
	mitigator *mitigation.Mitigator,
	runs RunStore,
	bus *events.Bus,
	log zerolog.Logger,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}
	return &Service{
		cfg:        cfg,
		backend:    backend,
		strategy:   strategy,
		mitigator:  mitigator,
		calculator: metrics.NewCalculator(cfg.TransactionCostRate),
		runs:       runs,
		bus:        bus,
		log:        log.With().Str("service", "optimization").Logger(),
	}, nil
}

// Config returns the service configuration snapshot.
func (s *Service) Config() Config {
	return s.cfg
}

// Optimize runs the full pipeline and returns the constrained weight vector
// with its metrics, or exactly one typed error. Validation errors are raised
// before any backend work; backend and calibration errors are logged with
// their stage and propagated unchanged. There is no silent fallback and no
// partial result.
func (s *Service) Optimize(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()

	if err := hamiltonian.Validate(req.Returns, req.RiskMatrix); err != nil {
		log.Warn().Err(err).Msg("Input validation failed")
		return nil, err
	}

	layers := req.Layers
	if layers == 0 {
		layers = s.cfg.DefaultLayers
	}
	if layers < 1 {
		err := fmt.Errorf("%w: p=%d", qaoa.ErrInvalidCircuitDepth, layers)
		log.Warn().Err(err).Msg("Invalid circuit depth")
		return nil, err
	}

	numAssets := len(req.Returns)
	log.Info().
		Int("assets", numAssets).
		Int("layers", layers).
		Int("max_iterations", s.cfg.MaxIterations).
		Str("backend", s.backend.Name()).
		Msg("Optimization started")

	encode := func(gamma float64) *hamiltonian.CostHamiltonian {
		return hamiltonian.Encode(req.Returns, req.RiskMatrix, s.cfg.RiskTolerance, gamma)
	}
	// Objective estimates are scored against a fixed gamma=1 Hamiltonian so
	// they stay comparable across parameter snapshots
	reference := encode(1)

	loop := search.NewLoop(s.backend, s.strategy, s.cfg.Shots, log)
	if s.bus != nil {
		loop.SetProgress(func(evaluation int, objective, best float64) {
			s.bus.Publish(&events.IterationCompletedData{
				RunID:         runID,
				Iteration:     evaluation,
				Objective:     objective,
				BestObjective: best,
			})
		})
	}

	searchResult, err := loop.Search(ctx, encode, reference, numAssets, layers, s.cfg.MaxIterations)
	if err != nil {
		s.failRun(log, runID, "search", err)
		return nil, err
	}

	distribution := searchResult.Distribution
	if s.mitigator != nil && s.mitigator.Enabled() {
		distribution, err = s.mitigator.Mitigate(ctx, distribution)
		if err != nil {
			s.failRun(log, runID, "mitigation", err)
			return nil, err
		}
	}

	weights, err := decoding.Decode(distribution, numAssets, s.cfg.MinPositionSize, s.cfg.MaxPositionSize)
	if err != nil {
		s.failRun(log, runID, "decoding", err)
		return nil, err
	}

	record, err := s.calculator.Compute(weights, req.Returns, req.RiskMatrix, req.CurrentPortfolio)
	if err != nil {
		s.failRun(log, runID, "metrics", err)
		return nil, err
	}

	result := &Result{
		RunID:         runID,
		Weights:       weights,
		Metrics:       record,
		BestObjective: searchResult.Objective,
		Evaluations:   searchResult.Evaluations,
		Layers:        layers,
		Distribution:  distribution,
		CreatedAt:     time.Now(),
	}

	if s.runs != nil {
		if err := s.runs.Save(result); err != nil {
			log.Warn().Err(err).Msg("Failed to persist run")
		}
	}

	if s.bus != nil {
		s.bus.Publish(&events.RunCompletedData{
			RunID:          runID,
			Iterations:     searchResult.Evaluations,
			BestObjective:  searchResult.Objective,
			ExpectedReturn: record.ExpectedReturn,
			PortfolioRisk:  record.PortfolioRisk,
		})
	}

	log.Info().
		Float64("best_objective", searchResult.Objective).
		Float64("expected_return", record.ExpectedReturn).
		Float64("portfolio_risk", record.PortfolioRisk).
		Float64("sharpe_ratio", record.SharpeRatio).
		Msg("Optimization completed")

	return result, nil
}

func (s *Service) failRun(log zerolog.Logger, runID, stage string, err error) {
	log.Error().Err(err).Str("stage", stage).Msg("Optimization failed")
	if s.bus != nil {
		s.bus.Publish(&events.RunFailedData{
			RunID: runID,
			Stage: stage,
			Error: err.Error(),
		})
	}
}
