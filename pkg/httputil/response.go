package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/stroymart/catalog-search/pkg/errors"
	"github.com/stroymart/catalog-search/pkg/logger"
	"github.com/stroymart/catalog-search/pkg/validator"
)

// Envelope is the uniform JSON response shape used by every endpoint.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Debug     any    `json:"debug,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a 200 success envelope around data.
func OK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Fail writes an error envelope with the given status, code, and message.
func Fail(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Envelope{Success: false, Error: message, ErrorCode: code})
}

// Degraded writes an error envelope that still carries a well-formed (usually
// empty) data payload, so clients can render a degraded UI instead of breaking.
func Degraded(w http.ResponseWriter, status int, code, message string, data any) {
	WriteJSON(w, status, Envelope{Success: false, Data: data, Error: message, ErrorCode: code})
}

// WriteError writes a standardized error envelope based on the error type.
// It prefers the request-scoped logger from context over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}

	var vErr *validator.ValidationError
	if errors.As(err, &vErr) {
		Fail(w, http.StatusBadRequest, "INVALID_PARAMETER", vErr.Error())
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			l.ErrorContext(r.Context(), "request failed",
				slog.String("error", err.Error()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		}
		Fail(w, appErr.Status, appErr.Code, appErr.Message)
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_PARAMETER"
		message = err.Error()
	case errors.Is(err, apperrors.ErrUnavailable):
		code = "SERVICE_UNAVAILABLE"
		message = "search is temporarily unavailable"
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
	}

	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	Fail(w, status, code, message)
}
