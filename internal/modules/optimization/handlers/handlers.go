// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/modules/decoding"
	"github.com/quantfolio/quantfolio/internal/modules/hamiltonian"
	"github.com/quantfolio/quantfolio/internal/modules/metrics"
	"github.com/quantfolio/quantfolio/internal/modules/mitigation"
	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	"github.com/quantfolio/quantfolio/internal/modules/qaoa"
)

// Handler handles optimization HTTP requests
type Handler struct {
	service *optimization.Service
	runs    *database.RunRepository
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler. runs may be nil when
// persistence is disabled.
func NewHandler(service *optimization.Service, runs *database.RunRepository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		runs:    runs,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// ValidateRequest represents a request to validate optimization inputs
type ValidateRequest struct {
	Returns    []float64   `json:"returns"`
	RiskMatrix [][]float64 `json:"risk_matrix"`
}

// MetricsRequest represents a request to score an existing weight vector
type MetricsRequest struct {
	Weights          []float64   `json:"weights"`
	Returns          []float64   `json:"returns"`
	RiskMatrix       [][]float64 `json:"risk_matrix"`
	CurrentPortfolio []float64   `json:"current_portfolio,omitempty"`
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimization.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Optimize(r.Context(), req)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleValidate handles POST /api/optimize/validate
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	response := map[string]interface{}{"valid": true}
	if err := hamiltonian.Validate(req.Returns, req.RiskMatrix); err != nil {
		response["valid"] = false
		response["reason"] = err.Error()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": response})
}

// HandleMetrics handles POST /api/optimize/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	calculator := metrics.NewCalculator(h.service.Config().TransactionCostRate)
	record, err := calculator.Compute(req.Weights, req.Returns, req.RiskMatrix, req.CurrentPortfolio)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": record})
}

// HandleListRuns handles GET /api/optimize/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.runs.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
	})
}

// HandleGetRun handles GET /api/optimize/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	runID := chi.URLParam(r, "id")
	run, err := h.runs.GetByID(runID)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			h.writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load run")
		h.writeError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": run})
}

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, hamiltonian.ErrInvalidInput),
		errors.Is(err, qaoa.ErrInvalidCircuitDepth):
		return http.StatusBadRequest
	case errors.Is(err, decoding.ErrInfeasibleAllocation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, qbackend.ErrExecution),
		errors.Is(err, mitigation.ErrCalibration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
