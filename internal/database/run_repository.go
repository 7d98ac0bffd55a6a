package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/modules/metrics"
	"github.com/quantfolio/quantfolio/internal/modules/optimization"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// storedDistribution is the msgpack blob layout for measurement counts.
// msgpack keeps the blobs roughly a third the size of JSON for large
// distributions.
type storedDistribution struct {
	Counts map[string]int `msgpack:"counts"`
	Shots  int            `msgpack:"shots"`
}

// RunRepository persists optimization runs.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save stores one completed run.
func (r *RunRepository) Save(result *optimization.Result) error {
	weights, err := json.Marshal(result.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	var blob []byte
	if result.Distribution != nil {
		blob, err = msgpack.Marshal(storedDistribution{
			Counts: result.Distribution.Counts,
			Shots:  result.Distribution.Shots,
		})
		if err != nil {
			return fmt.Errorf("failed to encode distribution: %w", err)
		}
	}

	_, err = r.db.Exec(`
		INSERT INTO optimization_runs
			(run_id, created_at, layers, evaluations, best_objective, weights, metrics, distribution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.CreatedAt.UTC().Format(time.RFC3339Nano),
		result.Layers,
		result.Evaluations,
		result.BestObjective,
		string(weights),
		string(metricsJSON),
		blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetByID loads one run, including its measurement distribution.
func (r *RunRepository) GetByID(runID string) (*optimization.Result, error) {
	row := r.db.QueryRow(`
		SELECT run_id, created_at, layers, evaluations, best_objective, weights, metrics, distribution
		FROM optimization_runs WHERE run_id = ?`, runID)

	result, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return result, err
}

// List returns the most recent runs, newest first, without distributions.
func (r *RunRepository) List(limit int) ([]*optimization.Result, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT run_id, created_at, layers, evaluations, best_objective, weights, metrics, NULL
		FROM optimization_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []*optimization.Result
	for rows.Next() {
		result, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// Prune deletes all but the newest keep runs.
func (r *RunRepository) Prune(keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := r.db.Exec(`
		DELETE FROM optimization_runs WHERE run_id NOT IN (
			SELECT run_id FROM optimization_runs ORDER BY created_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	return nil
}

func scanRun(scan func(...interface{}) error) (*optimization.Result, error) {
	var (
		result      optimization.Result
		createdAt   string
		weightsJSON string
		metricsJSON string
		blob        []byte
	)
	if err := scan(
		&result.RunID,
		&createdAt,
		&result.Layers,
		&result.Evaluations,
		&result.BestObjective,
		&weightsJSON,
		&metricsJSON,
		&blob,
	); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run timestamp: %w", err)
	}
	result.CreatedAt = ts

	if err := json.Unmarshal([]byte(weightsJSON), &result.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}
	result.Metrics = &metrics.Record{}
	if err := json.Unmarshal([]byte(metricsJSON), result.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}

	if len(blob) > 0 {
		var stored storedDistribution
		if err := msgpack.Unmarshal(blob, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode distribution: %w", err)
		}
		result.Distribution = &qbackend.ExecutionResult{
			Counts: stored.Counts,
			Shots:  stored.Shots,
		}
	}

	return &result, nil
}
