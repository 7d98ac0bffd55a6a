package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	"github.com/quantfolio/quantfolio/internal/modules/search"
)

func setupTestService(t *testing.T) *optimization.Service {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	cfg := optimization.Config{
		RiskTolerance:       0.5,
		MaxPositionSize:     0.5,
		MinPositionSize:     0.05,
		TransactionCostRate: 0.001,
		Shots:               256,
		MaxIterations:       10,
		DefaultLayers:       2,
	}
	backend := qbackend.NewSamplerBackend(42, nil, logger)
	service, err := optimization.NewService(cfg, backend, search.NewSPSA(17), nil, nil, nil, logger)
	require.NoError(t, err)
	return service
}

func setupTestRepository(t *testing.T) *database.RunRepository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return database.NewRunRepository(db)
}

func testProblemBody() map[string]interface{} {
	return map[string]interface{}{
		"returns": []float64{0.1, 0.15, 0.08, 0.12},
		"risk_matrix": [][]float64{
			{0.05, 0.01, 0.02, 0.01},
			{0.01, 0.06, 0.01, 0.02},
			{0.02, 0.01, 0.04, 0.01},
			{0.01, 0.02, 0.01, 0.07},
		},
	}
}

func TestHandleOptimize(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	bodyBytes, _ := json.Marshal(testProblemBody())

	req := httptest.NewRequest("POST", "/api/optimize", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	handler.HandleOptimize(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	assert.Contains(t, response, "data")
	assert.Contains(t, response, "metadata")
	data := response["data"].(map[string]interface{})
	assert.Contains(t, data, "run_id")
	assert.Contains(t, data, "weights")
	assert.Contains(t, data, "metrics")

	weights := data["weights"].([]interface{})
	assert.Equal(t, 4, len(weights))
}

func TestHandleOptimize_InvalidInput(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	body := testProblemBody()
	body["risk_matrix"] = [][]float64{
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}
	bodyBytes, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/optimize", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	handler.HandleOptimize(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)
	assert.Contains(t, response, "error")
}

func TestHandleOptimize_InvalidJSON(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	req := httptest.NewRequest("POST", "/api/optimize", bytes.NewReader([]byte("invalid json")))
	w := httptest.NewRecorder()

	handler.HandleOptimize(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleValidate(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	bodyBytes, _ := json.Marshal(testProblemBody())

	req := httptest.NewRequest("POST", "/api/optimize/validate", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	handler.HandleValidate(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, true, data["valid"])
}

func TestHandleValidate_RejectsAsymmetricMatrix(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	body := map[string]interface{}{
		"returns": []float64{0.1, 0.2},
		"risk_matrix": [][]float64{
			{0.05, 0.01},
			{0.02, 0.06},
		},
	}
	bodyBytes, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/optimize/validate", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	handler.HandleValidate(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Equal(t, false, data["valid"])
	assert.Contains(t, data, "reason")
}

func TestHandleMetrics(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	body := testProblemBody()
	body["weights"] = []float64{0.4, 0.3, 0.2, 0.1}
	body["current_portfolio"] = []float64{0.25, 0.25, 0.25, 0.25}
	bodyBytes, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/optimize/metrics", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	handler.HandleMetrics(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err)

	data := response["data"].(map[string]interface{})
	assert.Contains(t, data, "expected_return")
	assert.Contains(t, data, "portfolio_risk")
	assert.Contains(t, data, "sharpe_ratio")
	assert.Contains(t, data, "turnover")
	assert.InDelta(t, 0.40, data["turnover"].(float64), 1e-9)
}

func TestHandleMetrics_RaggedRiskMatrix(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	body := map[string]interface{}{
		"weights": []float64{0.5, 0.5},
		"returns": []float64{0.1, 0.2},
		"risk_matrix": [][]float64{
			{0.04},
			{0.0, 0.04},
		},
	}
	bodyBytes, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/optimize/metrics", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	handler.HandleMetrics(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMetrics_ShapeMismatch(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	body := testProblemBody()
	body["weights"] = []float64{0.5, 0.5}
	bodyBytes, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/optimize/metrics", bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()

	handler.HandleMetrics(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListRuns_DisabledWithoutRepository(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(setupTestService(t), nil, logger)

	req := httptest.NewRequest("GET", "/api/optimize/runs", nil)
	w := httptest.NewRecorder()

	handler.HandleListRuns(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunHistoryRoundTrip(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	repo := setupTestRepository(t)
	handler := NewHandler(setupTestService(t), repo, logger)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	// Run one optimization through the service so a run lands in the store
	service := setupTestService(t)
	result, err := service.Optimize(context.Background(), optimization.Request{
		Returns: []float64{0.1, 0.15, 0.08, 0.12},
		RiskMatrix: [][]float64{
			{0.05, 0.01, 0.02, 0.01},
			{0.01, 0.06, 0.01, 0.02},
			{0.02, 0.01, 0.04, 0.01},
			{0.01, 0.02, 0.01, 0.07},
		},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(result))

	req := httptest.NewRequest("GET", "/optimize/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var listResponse map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listResponse))
	listData := listResponse["data"].(map[string]interface{})
	assert.Equal(t, float64(1), listData["count"])

	req = httptest.NewRequest("GET", "/optimize/runs/"+result.RunID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var getResponse map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&getResponse))
	getData := getResponse["data"].(map[string]interface{})
	assert.Equal(t, result.RunID, getData["run_id"])
}

func TestHandleGetRun_NotFound(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	repo := setupTestRepository(t)
	handler := NewHandler(setupTestService(t), repo, logger)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest("GET", "/optimize/runs/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
