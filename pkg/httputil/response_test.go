package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stroymart/catalog-search/pkg/errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]any{"total": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(3), out["data"].(map[string]any)["total"])
	_, hasError := out["error"]
	assert.False(t, hasError)
}

func TestFail(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be an integer")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "INVALID_PARAMETER", out["errorCode"])
	assert.Equal(t, "limit must be an integer", out["error"])
}

func TestDegraded_KeepsWellFormedData(t *testing.T) {
	rec := httptest.NewRecorder()
	Degraded(rec, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "outage",
		map[string]any{"products": []any{}, "total": 0})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "SERVICE_UNAVAILABLE", out["errorCode"])

	data := out["data"].(map[string]any)
	assert.Equal(t, float64(0), data["total"])
	assert.NotNil(t, data["products"])
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)

	WriteError(rec, req, apperrors.Unavailable("backend failed", errors.New("timeout")), testLogger())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "SERVICE_UNAVAILABLE", out["errorCode"])
}

func TestWriteError_Unknown(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)

	WriteError(rec, req, errors.New("boom"), testLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", out["errorCode"])
}
