package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/stroymart/catalog-search/internal/domain"
	"github.com/stroymart/catalog-search/internal/service"
	apperrors "github.com/stroymart/catalog-search/pkg/errors"
	"github.com/stroymart/catalog-search/pkg/httputil"
)

// SearchHandler handles HTTP requests for the search endpoints.
type SearchHandler struct {
	service *service.QueryService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.QueryService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: svc, logger: logger}
}

// intParam parses an optional integer query parameter. A malformed value
// reports ok=false after writing a 400 envelope.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		httputil.Fail(w, http.StatusBadRequest, "INVALID_PARAMETER", name+" must be an integer")
		return 0, false
	}
	return n, true
}

// Search handles GET /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, ok := intParam(w, r, "page")
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	cityID, ok := intParam(w, r, "city_id")
	if !ok {
		return
	}

	params := service.SearchParams{
		Query:      q.Get("q"),
		Page:       page,
		Limit:      limit,
		Sort:       q.Get("sort"),
		CityID:     int64(cityID),
		UserID:     r.Header.Get("X-User-ID"),
		BrandName:  q.Get("brand_name"),
		SeriesName: q.Get("series_name"),
		Category:   q.Get("category"),
	}

	result, err := h.service.Search(r.Context(), params)
	if err != nil {
		h.writeSearchError(w, r, err, params)
		return
	}

	httputil.OK(w, result)
}

// writeSearchError emits a degraded 503 envelope with a well-formed empty
// payload for outages, and the standard error envelope otherwise.
func (h *SearchHandler) writeSearchError(w http.ResponseWriter, r *http.Request, err error, params service.SearchParams) {
	if apperrors.HTTPStatus(err) == http.StatusServiceUnavailable {
		h.logger.WarnContext(r.Context(), "search degraded",
			slog.String("error", err.Error()),
			slog.String("query", params.Query),
		)
		empty := &domain.SearchResult{
			Products: []map[string]any{},
			Total:    0,
			Page:     max(1, params.Page),
			Limit:    params.Limit,
		}
		httputil.Degraded(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"search is temporarily unavailable", empty)
		return
	}
	httputil.WriteError(w, r, err, h.logger)
}

// Autocomplete handles GET /api/autocomplete.
func (h *SearchHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		httputil.Fail(w, http.StatusBadRequest, "INVALID_PARAMETER", "q is required")
		return
	}

	suggestions := h.service.Autocomplete(r.Context(), q, limit)
	httputil.OK(w, map[string]any{"suggestions": suggestions})
}

// Availability handles GET /api/availability.
func (h *SearchHandler) Availability(w http.ResponseWriter, r *http.Request) {
	cityID, ok := intParam(w, r, "city_id")
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("product_ids"))
	if raw == "" {
		httputil.Fail(w, http.StatusBadRequest, "INVALID_PARAMETER", "product_ids is required")
		return
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			httputil.Fail(w, http.StatusBadRequest, "INVALID_PARAMETER",
				"product_ids must be a comma-separated list of positive integers")
			return
		}
		ids = append(ids, id)
	}

	result, err := h.service.Availability(r.Context(), int64(cityID), ids)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.OK(w, result)
}

// Diag handles GET /api/test.
func (h *SearchHandler) Diag(w http.ResponseWriter, r *http.Request) {
	// Authentication happens at the edge; this service only reports whether
	// an identity header was forwarded.
	authenticated := r.Header.Get("X-User-ID") != ""
	httputil.OK(w, h.service.Diag(r.Context(), authenticated))
}
