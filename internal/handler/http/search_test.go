package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stroymart/catalog-search/internal/backend"
	"github.com/stroymart/catalog-search/internal/backend/memory"
	"github.com/stroymart/catalog-search/internal/domain"
	"github.com/stroymart/catalog-search/internal/dynamic"
	gate "github.com/stroymart/catalog-search/internal/health"
	"github.com/stroymart/catalog-search/internal/query"
	"github.com/stroymart/catalog-search/internal/service"
	"github.com/stroymart/catalog-search/internal/store"
	"github.com/stroymart/catalog-search/pkg/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// downBackend fails health probes so the gate routes to the fallback.
type downBackend struct {
	backend.SearchBackend
}

func (downBackend) ClusterHealth(_ context.Context, _ time.Duration) (*backend.Health, error) {
	return nil, errors.New("connection refused")
}

// failingStore errors on every fallback call.
type failingStore struct {
	store.Store
}

func (failingStore) FallbackSearch(_ context.Context, _ domain.SearchSpec) (*domain.SearchResult, error) {
	return nil, errors.New("db down")
}

func (failingStore) FallbackAutocomplete(_ context.Context, _ string, _ int) ([]domain.Suggestion, error) {
	return nil, errors.New("db down")
}

// newTestRouter builds the full handler stack over a memory backend.
func newTestRouter(t *testing.T, docs ...map[string]any) http.Handler {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	mem := memory.New()
	require.NoError(t, mem.CreateIndex(ctx, "products_2025_06_01_00_00_00", nil))
	require.NoError(t, mem.UpdateAliases(ctx, []backend.AliasAction{
		{Add: true, Index: "products_2025_06_01_00_00_00", Alias: "products_current"},
	}))
	for i, d := range docs {
		_, err := mem.Bulk(ctx, "products_current", []backend.Doc{{ID: string(rune('1' + i)), Body: d}})
		require.NoError(t, err)
	}

	svc := service.New(mem, &failingStore{}, gate.NewGate(mem, logger),
		query.NewBuilder(0), dynamic.Noop{}, "products_current", logger)
	return NewRouter(svc, health.NewHandler(), logger)
}

// newDegradedRouter builds a stack where both the engine and the fallback fail.
func newDegradedRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := testLogger()
	mem := memory.New()
	svc := service.New(mem, &failingStore{}, gate.NewGate(downBackend{}, logger),
		query.NewBuilder(0), dynamic.Noop{}, "products_current", logger)
	return NewRouter(svc, health.NewHandler(), logger)
}

func doGet(t *testing.T, h http.Handler, url string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), "body: %s", rec.Body.String())
	return rec, envelope
}

func TestSearchEndpoint_Success(t *testing.T) {
	h := newTestRouter(t,
		map[string]any{"product_id": int64(1), "external_id": "AB-123", "name": "Gadget"},
	)

	rec, envelope := doGet(t, h, "/api/search?q=AB-123&limit=10")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, envelope["success"])

	data := envelope["data"].(map[string]any)
	products := data["products"].([]any)
	require.Len(t, products, 1)
	first := products[0].(map[string]any)
	assert.Equal(t, "AB-123", first["external_id"])
	assert.Equal(t, float64(1), data["total"])
}

func TestSearchEndpoint_InvalidPage(t *testing.T) {
	h := newTestRouter(t)

	rec, envelope := doGet(t, h, "/api/search?q=x&page=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, envelope["success"])
	assert.Equal(t, "INVALID_PARAMETER", envelope["errorCode"])
}

func TestSearchEndpoint_DegradedOutage(t *testing.T) {
	h := newDegradedRouter(t)

	rec, envelope := doGet(t, h, "/api/search?q=hammer")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, envelope["success"])
	assert.Equal(t, "SERVICE_UNAVAILABLE", envelope["errorCode"])

	// The envelope still carries a well-formed empty payload.
	data := envelope["data"].(map[string]any)
	assert.Equal(t, float64(0), data["total"])
	assert.NotNil(t, data["products"])
}

func TestSearchEndpoint_UnknownSortFallsBackToRelevance(t *testing.T) {
	h := newTestRouter(t, map[string]any{"product_id": int64(1), "name": "Widget"})

	rec, _ := doGet(t, h, "/api/search?q=widget&sort=bogus")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAutocompleteEndpoint(t *testing.T) {
	h := newTestRouter(t, map[string]any{
		"product_id": int64(1),
		"name":       "Makita drill",
		"suggest": []any{
			map[string]any{"input": []any{"Makita"}, "weight": float64(70)},
		},
	})

	rec, envelope := doGet(t, h, "/api/autocomplete?q=mak&limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)

	data := envelope["data"].(map[string]any)
	suggestions := data["suggestions"].([]any)
	require.NotEmpty(t, suggestions)
	first := suggestions[0].(map[string]any)
	assert.Equal(t, "Makita", first["text"])
	assert.Equal(t, "suggest", first["type"])
}

func TestAutocompleteEndpoint_MissingQuery(t *testing.T) {
	h := newTestRouter(t)

	rec, envelope := doGet(t, h, "/api/autocomplete")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", envelope["errorCode"])
}

func TestAutocompleteEndpoint_DegradesSilently(t *testing.T) {
	h := newDegradedRouter(t)

	rec, envelope := doGet(t, h, "/api/autocomplete?q=mak")
	assert.Equal(t, http.StatusOK, rec.Code)

	data := envelope["data"].(map[string]any)
	assert.Empty(t, data["suggestions"])
}

func TestAvailabilityEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec, envelope := doGet(t, h, "/api/availability?city_id=1&product_ids=1,2,3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, envelope["success"])
}

func TestAvailabilityEndpoint_RejectsBadIDs(t *testing.T) {
	h := newTestRouter(t)

	rec, envelope := doGet(t, h, "/api/availability?city_id=1&product_ids=1,-2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", envelope["errorCode"])
}

func TestAvailabilityEndpoint_RejectsMissingIDs(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := doGet(t, h, "/api/availability?city_id=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec, envelope := doGet(t, h, "/api/test")
	assert.Equal(t, http.StatusOK, rec.Code)

	data := envelope["data"].(map[string]any)
	assert.Contains(t, data, "message")
	assert.Contains(t, data, "timestamp")
	assert.Equal(t, false, data["user_authenticated"])
	assert.Equal(t, true, data["opensearch_available"])
}
