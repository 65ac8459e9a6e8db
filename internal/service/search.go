package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stroymart/catalog-search/internal/backend"
	"github.com/stroymart/catalog-search/internal/domain"
	"github.com/stroymart/catalog-search/internal/dynamic"
	"github.com/stroymart/catalog-search/internal/health"
	"github.com/stroymart/catalog-search/internal/query"
	"github.com/stroymart/catalog-search/internal/store"
	apperrors "github.com/stroymart/catalog-search/pkg/errors"
	"github.com/stroymart/catalog-search/pkg/validator"
)

// Request bounds.
const (
	DefaultLimit            = 20
	MaxLimit                = 100
	DefaultSuggestLimit     = 10
	MaxSuggestLimit         = 20
	DefaultQueryLengthCap   = 200
	DefaultMaxProductIDs    = 1000
)

// autocompleteSanitizer keeps letters, digits, whitespace, and -_. characters.
var autocompleteSanitizer = regexp.MustCompile(`[^\p{L}\p{N}\s\-_\.]+`)

// SearchParams are the raw, already-parsed request parameters. The service
// owns clamping and normalization.
type SearchParams struct {
	Query      string
	Page       int
	Limit      int
	Sort       string
	CityID     int64
	UserID     string
	BrandName  string
	SeriesName string
	Category   string
}

// AvailabilityRequest is the validated input of the availability endpoint.
type AvailabilityRequest struct {
	CityID     int64   `validate:"gte=1"`
	ProductIDs []int64 `validate:"required,min=1,max=1000,dive,gt=0"`
}

// QueryService is the top-level search entry point: it validates parameters,
// selects a backend through the health gate, routes to the relational
// fallback when the engine is unhealthy, and enriches results with dynamic
// per-product data.
type QueryService struct {
	backend backend.SearchBackend
	store   store.Store
	gate    *health.Gate
	builder *query.Builder
	dynamic dynamic.Provider
	alias   string
	logger  *slog.Logger

	queryLengthCap int
	maxProductIDs  int
}

// New creates a query service.
func New(
	sb backend.SearchBackend,
	st store.Store,
	gate *health.Gate,
	builder *query.Builder,
	provider dynamic.Provider,
	alias string,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		backend:        sb,
		store:          st,
		gate:           gate,
		builder:        builder,
		dynamic:        provider,
		alias:          alias,
		logger:         logger,
		queryLengthCap: DefaultQueryLengthCap,
		maxProductIDs:  DefaultMaxProductIDs,
	}
}

// normalize clamps raw parameters into a valid SearchSpec.
func (s *QueryService) normalize(params SearchParams) domain.SearchSpec {
	q := strings.TrimSpace(params.Query)
	if runes := []rune(q); len(runes) > s.queryLengthCap {
		q = string(runes[:s.queryLengthCap])
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return domain.SearchSpec{
		Query:  q,
		Page:   page,
		Limit:  limit,
		Sort:   domain.NormalizeSort(params.Sort),
		CityID: params.CityID,
		UserID: params.UserID,
		Filters: domain.SearchFilters{
			BrandName:  strings.TrimSpace(params.BrandName),
			SeriesName: strings.TrimSpace(params.SeriesName),
			Category:   strings.TrimSpace(params.Category),
		},
	}
}

// Search runs a relevance-ranked product search, falling back to the
// relational store when the search engine is gated off. A failure on the
// primary path surfaces as ErrUnavailable so the handler can emit a degraded
// 503 envelope.
func (s *QueryService) Search(ctx context.Context, params SearchParams) (*domain.SearchResult, error) {
	spec := s.normalize(params)

	var (
		result *domain.SearchResult
		err    error
	)
	if s.gate.IsAvailable(ctx) {
		result, err = s.searchPrimary(ctx, spec)
		if err != nil {
			s.gate.ReportFailure()
			return nil, apperrors.Unavailable("search backend failed", err)
		}
	} else {
		result, err = s.store.FallbackSearch(ctx, spec)
		if err != nil {
			return nil, apperrors.Unavailable("search fallback failed", err)
		}
		s.logger.InfoContext(ctx, "served search from relational fallback",
			slog.String("query", spec.Query),
		)
	}

	s.enrich(ctx, result.Products, spec.CityID, spec.UserID)
	return result, nil
}

// searchPrimary executes the engine path and shapes hits into products.
func (s *QueryService) searchPrimary(ctx context.Context, spec domain.SearchSpec) (*domain.SearchResult, error) {
	body := s.builder.BuildSearch(spec)
	res, err := s.backend.Search(ctx, s.alias, body)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.alias, err)
	}

	products := make([]map[string]any, 0, len(res.Hits))
	for _, hit := range res.Hits {
		product := make(map[string]any, len(hit.Source)+2)
		for k, v := range hit.Source {
			product[k] = v
		}
		product["_score"] = hit.Score
		if len(hit.Highlight) > 0 {
			product["_highlight"] = hit.Highlight
		}
		products = append(products, product)
	}

	return &domain.SearchResult{
		Products: products,
		Total:    res.Total,
		Page:     spec.Page,
		Limit:    spec.Limit,
		MaxScore: res.MaxScore,
	}, nil
}

// SanitizeAutocompleteQuery strips characters outside letters, digits,
// whitespace, and -_. then trims the result.
func SanitizeAutocompleteQuery(q string) string {
	return strings.TrimSpace(autocompleteSanitizer.ReplaceAllString(q, ""))
}

// Autocomplete serves prefix suggestions. It degrades silently: any internal
// failure yields an empty suggestion list, never an error envelope.
func (s *QueryService) Autocomplete(ctx context.Context, q string, limit int) []domain.Suggestion {
	q = SanitizeAutocompleteQuery(q)
	if runes := []rune(q); len(runes) > s.queryLengthCap {
		q = string(runes[:s.queryLengthCap])
	}
	if q == "" {
		return []domain.Suggestion{}
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if limit > MaxSuggestLimit {
		limit = MaxSuggestLimit
	}

	if !s.gate.IsAvailable(ctx) {
		suggestions, err := s.store.FallbackAutocomplete(ctx, q, limit)
		if err != nil {
			s.logger.WarnContext(ctx, "fallback autocomplete failed", slog.String("error", err.Error()))
			return []domain.Suggestion{}
		}
		if suggestions == nil {
			suggestions = []domain.Suggestion{}
		}
		return suggestions
	}

	body := s.builder.BuildAutocomplete(q, limit)
	res, err := s.backend.Search(ctx, s.alias, body)
	if err != nil {
		s.gate.ReportFailure()
		s.logger.WarnContext(ctx, "autocomplete failed", slog.String("error", err.Error()))
		return []domain.Suggestion{}
	}

	return mergeSuggestions(res, limit)
}

// mergeSuggestions combines completion options and secondary query hits,
// deduplicating by lowercased text with completion hits taking precedence,
// then orders by score descending and truncates.
func mergeSuggestions(res *backend.SearchResult, limit int) []domain.Suggestion {
	seen := make(map[string]struct{})
	suggestions := make([]domain.Suggestion, 0, limit)

	add := func(sug domain.Suggestion) {
		key := strings.ToLower(sug.Text)
		if sug.Text == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		suggestions = append(suggestions, sug)
	}

	for _, opt := range res.Suggest[query.SuggestName] {
		sug := domain.Suggestion{
			Text:  opt.Text,
			Type:  domain.SuggestionTypeSuggest,
			Score: opt.Score,
		}
		if id, ok := opt.Source["external_id"].(string); ok {
			sug.ExternalID = id
		}
		add(sug)
	}

	for _, hit := range res.Hits {
		name, _ := hit.Source["name"].(string)
		sug := domain.Suggestion{
			Text:  name,
			Type:  domain.SuggestionTypeProduct,
			Score: hit.Score,
		}
		if id, ok := hit.Source["external_id"].(string); ok {
			sug.ExternalID = id
		}
		add(sug)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// Availability returns per-product dynamic data for a city. Provider failure
// is logged and yields an empty, well-formed map.
func (s *QueryService) Availability(ctx context.Context, cityID int64, productIDs []int64) (map[string]dynamic.Attributes, error) {
	distinct := dedupeIDs(productIDs)
	req := AvailabilityRequest{CityID: cityID, ProductIDs: distinct}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if len(distinct) > s.maxProductIDs {
		return nil, apperrors.InvalidParameter(
			fmt.Sprintf("product_ids must contain at most %d ids", s.maxProductIDs))
	}

	attrs, err := s.dynamic.Fetch(ctx, distinct, cityID, "")
	if err != nil {
		s.logger.WarnContext(ctx, "dynamic data fetch failed", slog.String("error", err.Error()))
		return map[string]dynamic.Attributes{}, nil
	}

	out := make(map[string]dynamic.Attributes, len(attrs))
	for id, a := range attrs {
		out[strconv.FormatInt(id, 10)] = a
	}
	return out, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Diag reports service health facts for the test endpoint.
func (s *QueryService) Diag(ctx context.Context, userAuthenticated bool) map[string]any {
	return map[string]any{
		"message":              "search service is running",
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"user_authenticated":   userAuthenticated,
		"opensearch_available": s.gate.IsAvailable(ctx),
	}
}

// enrich overlays dynamic attributes onto each product. Failures are logged
// and never block the response.
func (s *QueryService) enrich(ctx context.Context, products []map[string]any, cityID int64, userID string) {
	if len(products) == 0 {
		return
	}

	ids := make([]int64, 0, len(products))
	for _, p := range products {
		if id, ok := productID(p); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	attrs, err := s.dynamic.Fetch(ctx, ids, cityID, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "enrichment failed, serving without dynamic data",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, p := range products {
		id, ok := productID(p)
		if !ok {
			continue
		}
		for k, v := range attrs[id] {
			p[k] = v
		}
	}
}

// productID extracts the numeric id from a product map; engine sources decode
// numbers as float64 while fallback rows carry int64.
func productID(p map[string]any) (int64, bool) {
	switch v := p["product_id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
