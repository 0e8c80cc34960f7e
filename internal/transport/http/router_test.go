package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"idamart/internal/config"
	"idamart/internal/datamart"
	"idamart/internal/operations"
	"idamart/internal/variance"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

// testRouter builds a router over a memory store and a pipeline reading from
// dataDir.
func testRouter(t *testing.T, store datamart.Store, dataDir string) http.Handler {
	t.Helper()

	logger := testLogger()
	pipeline := operations.NewPipeline(operations.Config{
		Logger:             logger,
		Store:              store,
		DataDir:            dataDir,
		MarketVarianceMode: variance.ModeGlobal,
	})

	return NewRouter(RouterConfig{
		Logger:   logger,
		Store:    store,
		Pipeline: pipeline,
		Variance: variance.NewBuilder(logger, store, variance.ModeGlobal),
		Server: config.ServerConfig{
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Version: "test",
	})
}

func seedFacts(t *testing.T, store datamart.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.UpsertPeriods(ctx, []datamart.Period{datamart.NewPeriod(2015, 1), datamart.NewPeriod(2015, 2)})
	require.NoError(t, err)
	_, err = store.UpsertEntities(ctx, []datamart.Entity{
		{CanonicalName: "VIVO", Active: true},
		{CanonicalName: "TIM", Active: true},
	})
	require.NoError(t, err)
	_, err = store.UpsertServices(ctx, []datamart.Service{{Code: "SMP"}})
	require.NoError(t, err)

	require.NoError(t, store.ReplaceFacts(ctx, []datamart.FactMetric{
		{PeriodKey: "2015-01", EntityName: "VIVO", ServiceCode: "SMP", RateResolved5D: 50},
		{PeriodKey: "2015-01", EntityName: "TIM", ServiceCode: "SMP", RateResolved5D: 40},
		{PeriodKey: "2015-02", EntityName: "VIVO", ServiceCode: "SMP", RateResolved5D: 55},
		{PeriodKey: "2015-02", EntityName: "TIM", ServiceCode: "SMP", RateResolved5D: 36},
	}))
}

func getJSON(t *testing.T, router http.Handler, path string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t, datamart.NewMemoryStore(), t.TempDir())

	code, body := getJSON(t, router, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestVersionEndpoint(t *testing.T) {
	router := testRouter(t, datamart.NewMemoryStore(), t.TempDir())

	code, body := getJSON(t, router, "/api/version")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "test", body["version"])
}

func TestFactsEndpoint(t *testing.T) {
	store := datamart.NewMemoryStore()
	seedFacts(t, store)
	router := testRouter(t, store, t.TempDir())

	code, body := getJSON(t, router, "/api/facts")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 4, body["count"])

	code, body = getJSON(t, router, "/api/facts?period=2015-01&entity=VIVO")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = getJSON(t, router, "/api/facts?entity=NEXTEL")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["count"])
	assert.NotNil(t, body["facts"], "empty result is an empty array, not null")
}

func TestDimensionEndpoints(t *testing.T) {
	store := datamart.NewMemoryStore()
	seedFacts(t, store)
	router := testRouter(t, store, t.TempDir())

	code, body := getJSON(t, router, "/api/dimensions/periods")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])

	code, body = getJSON(t, router, "/api/dimensions/entities")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])

	code, body = getJSON(t, router, "/api/dimensions/services")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
}

func TestVarianceEndpoint(t *testing.T) {
	store := datamart.NewMemoryStore()
	seedFacts(t, store)
	router := testRouter(t, store, t.TempDir())

	code, body := getJSON(t, router, "/api/variance")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "global", body["mode"])
	assert.EqualValues(t, 1, body["count"])

	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]any)
	assert.Equal(t, "2015-02", row["period_key"])
	assert.InDelta(t, 1.1, row["market_variance"].(float64), 1e-9)
}

func TestOperationsRunEndpoint(t *testing.T) {
	dir := t.TempDir()
	writeWorkbook(t, filepath.Join(dir, "SMP2015.xlsx"), [][]interface{}{
		{"GRUPO ECONÔMICO", "VARIÁVEL", "2015-01", "2015-02"},
		{"VIVO", "Taxa de Resolvidas em 5 dias", "50", "55"},
		{"TIM", "Taxa de Resolvidas em 5 dias", "40", "36"},
	})

	store := datamart.NewMemoryStore()
	router := testRouter(t, store, dir)

	req := httptest.NewRequest(http.MethodPost, "/api/operations/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 4, summary["records_normalized"])
	assert.EqualValues(t, 4, summary["facts_built"])

	// The run's output is immediately visible to the read endpoints.
	code, factsBody := getJSON(t, router, "/api/facts")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 4, factsBody["count"])
}

func TestOperationsRunFailure(t *testing.T) {
	store := datamart.NewMemoryStore()
	router := testRouter(t, store, t.TempDir())

	req := httptest.NewRequest(http.MethodPost, "/api/operations/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
	assert.Contains(t, body, "summary")
}

func TestOperationsStatusEndpoint(t *testing.T) {
	store := datamart.NewMemoryStore()
	router := testRouter(t, store, t.TempDir())

	code, _ := getJSON(t, router, "/api/operations/status")
	assert.Equal(t, http.StatusNotFound, code, "no run yet")

	req := httptest.NewRequest(http.MethodPost, "/api/operations/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	code, body := getJSON(t, router, "/api/operations/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "summary")
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(t, datamart.NewMemoryStore(), t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFound(t *testing.T) {
	router := testRouter(t, datamart.NewMemoryStore(), t.TempDir())

	code, body := getJSON(t, router, "/api/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not found", body["error"])
}

func TestRequestIDHeader(t *testing.T) {
	router := testRouter(t, datamart.NewMemoryStore(), t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "given-id")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", rec.Header().Get("X-Request-ID"))
}
