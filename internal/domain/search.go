package domain

// Sort options for search results.
const (
	SortRelevance    = "relevance"
	SortName         = "name"
	SortExternalID   = "external_id"
	SortPriceAsc     = "price_asc"
	SortPriceDesc    = "price_desc"
	SortAvailability = "availability"
	SortPopularity   = "popularity"
)

// ValidSortOptions returns the list of valid sort options.
func ValidSortOptions() []string {
	return []string{
		SortRelevance, SortName, SortExternalID,
		SortPriceAsc, SortPriceDesc, SortAvailability, SortPopularity,
	}
}

// NormalizeSort maps unknown sort values to relevance.
func NormalizeSort(sort string) string {
	for _, s := range ValidSortOptions() {
		if s == sort {
			return sort
		}
	}
	return SortRelevance
}

// SearchFilters holds the optional exact filters for a search request.
type SearchFilters struct {
	BrandName  string
	SeriesName string
	Category   string
}

// SearchSpec is a validated, clamped search request.
type SearchSpec struct {
	Query   string
	Page    int
	Limit   int
	Sort    string
	CityID  int64
	UserID  string
	Filters SearchFilters
}

// Offset returns the zero-based result offset for the page.
func (s SearchSpec) Offset() int {
	return (s.Page - 1) * s.Limit
}

// SearchResult holds the paginated search response. Products are rendered
// documents with score/highlight attached and dynamic attributes overlaid.
type SearchResult struct {
	Products     []map[string]any `json:"products"`
	Total        int64            `json:"total"`
	Page         int              `json:"page"`
	Limit        int              `json:"limit"`
	MaxScore     float64          `json:"max_score,omitempty"`
	Aggregations map[string]any   `json:"aggregations,omitempty"`
}

// Suggestion types returned by autocomplete.
const (
	SuggestionTypeSuggest = "suggest"
	SuggestionTypeProduct = "product"
)

// Suggestion is a single autocomplete entry.
type Suggestion struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Score      float64 `json:"score"`
	ExternalID string  `json:"external_id,omitempty"`
}
