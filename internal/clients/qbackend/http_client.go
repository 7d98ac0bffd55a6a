package qbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPBackend is an HTTP client for a remote circuit execution service.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPBackend creates a new remote backend client.
func NewHTTPBackend(baseURL string, log zerolog.Logger) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second, // Hardware queues can be slow
		},
		log: log.With().Str("client", "qbackend").Logger(),
	}
}

// Name returns the backend identifier
func (b *HTTPBackend) Name() string {
	return "http:" + b.baseURL
}

type calibrateRequest struct {
	NumQubits int `json:"num_qubits"`
	Shots     int `json:"shots"`
}

// Execute submits a circuit to the remote service and returns its counts.
func (b *HTTPBackend) Execute(ctx context.Context, circuit *Circuit) (*ExecutionResult, error) {
	var result ExecutionResult
	if err := b.post(ctx, "/execute", circuit, &result); err != nil {
		return nil, err
	}

	if result.Counts == nil {
		return nil, fmt.Errorf("%w: malformed response, missing counts", ErrExecution)
	}
	if result.Shots == 0 {
		for _, c := range result.Counts {
			result.Shots += c
		}
	}

	return &result, nil
}

// Calibrate requests a calibration measurement from the remote service.
func (b *HTTPBackend) Calibrate(ctx context.Context, numQubits, shots int) (*CalibrationResult, error) {
	var result CalibrationResult
	req := calibrateRequest{NumQubits: numQubits, Shots: shots}
	if err := b.post(ctx, "/calibrate", req, &result); err != nil {
		return nil, err
	}

	if len(result.P01) != numQubits || len(result.P10) != numQubits {
		return nil, fmt.Errorf("%w: malformed calibration response", ErrExecution)
	}

	return &result, nil
}

func (b *HTTPBackend) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrExecution, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrExecution, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExecution, path, err)
	}
	defer resp.Body.Close()

	b.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Backend request completed")

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrExecution, path, resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrExecution, err)
	}

	return nil
}
