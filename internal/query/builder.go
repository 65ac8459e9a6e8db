package query

import (
	"math"
	"regexp"
	"strings"

	"github.com/stroymart/catalog-search/internal/domain"
)

// Request construction constants.
const (
	DefaultRescoreWindow = 50
	searchTimeout        = "15s"
	autocompleteTimeout  = "3s"
)

// codePattern recognizes catalog identifier strings: alphanumerics with
// dash/dot/slash. A candidate must also contain a digit and be at most
// maxCodeLen characters.
var (
	codePattern = regexp.MustCompile(`^[A-Za-z0-9\-\./]+$`)
	digit       = regexp.MustCompile(`[0-9]`)
)

const maxCodeLen = 50

// IsCode reports whether q looks like a catalog identifier (external id, SKU).
func IsCode(q string) bool {
	return len(q) <= maxCodeLen && codePattern.MatchString(q) && digit.MatchString(q)
}

// sourceFields is the product payload returned for each hit; derived search
// machinery (search_all, suggest) is excluded.
var sourceFields = []string{
	"product_id", "external_id", "sku", "name", "description",
	"brand_id", "brand_name", "series_id", "series_name",
	"unit", "dimensions", "min_sale", "weight",
	"popularity_score", "in_stock", "categories", "category_ids",
	"attributes", "images", "documents", "created_at", "updated_at",
}

// Builder translates validated search specs into request bodies.
type Builder struct {
	rescoreWindow int
}

// NewBuilder creates a builder with the given rescore window;
// zero selects the default.
func NewBuilder(rescoreWindow int) *Builder {
	if rescoreWindow <= 0 {
		rescoreWindow = DefaultRescoreWindow
	}
	return &Builder{rescoreWindow: rescoreWindow}
}

// BuildSearch renders the full request body for a search spec.
func (b *Builder) BuildSearch(spec domain.SearchSpec) map[string]any {
	body := map[string]any{
		"size":             spec.Limit,
		"from":             spec.Offset(),
		"track_total_hits": true,
		"timeout":          searchTimeout,
		"_source":          sourceFields,
	}

	q := strings.TrimSpace(spec.Query)
	if q == "" {
		body["query"] = wrapFilters(MatchAll{}, spec.Filters).Render()
		body["sort"] = sortClause(spec.Sort, false)
		return body
	}

	scored := FunctionScore{
		Query:     mainQuery(q),
		Functions: scoringFunctions(),
		ScoreMode: "sum",
		BoostMode: "multiply",
	}
	body["query"] = wrapFilters(scored, spec.Filters).Render()
	body["sort"] = sortClause(spec.Sort, true)
	body["rescore"] = b.rescore(q)
	body["highlight"] = highlight()
	return body
}

// wrapFilters attaches exact filters around the scored query when present.
func wrapFilters(scored Clause, filters domain.SearchFilters) Clause {
	var filterClauses []Clause
	if filters.BrandName != "" {
		filterClauses = append(filterClauses, Term{Field: "brand_name.keyword", Value: filters.BrandName})
	}
	if filters.SeriesName != "" {
		filterClauses = append(filterClauses, Term{Field: "series_name.keyword", Value: filters.SeriesName})
	}
	if filters.Category != "" {
		filterClauses = append(filterClauses, Term{Field: "categories", Value: filters.Category})
	}
	if len(filterClauses) == 0 {
		return scored
	}
	return Bool{Must: []Clause{scored}, Filter: filterClauses}
}

// mainQuery builds the multi-strategy should query. Each clause contributes
// its boost to the score; at least one must match.
func mainQuery(q string) Clause {
	isCode := IsCode(q)
	words := strings.Fields(q)

	var should []Clause
	if isCode {
		should = append(should,
			Term{Field: "external_id.keyword", Value: q, Boost: 1000},
			Term{Field: "sku.keyword", Value: q, Boost: 900},
		)
	}
	should = append(should,
		Prefix{Field: "external_id", Value: q, Boost: 100},
		Prefix{Field: "sku", Value: q, Boost: 90},
		Fuzzy{Field: "external_id", Value: q, Fuzziness: "AUTO", PrefixLength: 2, Boost: 80},
		MatchPhrase{Field: "name", Query: q, Boost: 70},
		Match{Field: "name", Query: q, Operator: "and", Boost: 60},
		Match{Field: "name", Query: q, Fuzziness: "AUTO", PrefixLength: 3, Boost: 40},
		MultiMatch{
			Query:     q,
			Fields:    []string{"name^5", "name.ngram^2", "brand_name^3", "series_name^2", "description"},
			Type:      "best_fields",
			Fuzziness: "AUTO",
			Boost:     30,
		},
	)

	if len(words) > 1 {
		var perWord []Clause
		for _, word := range words {
			if len([]rune(word)) < 2 {
				continue
			}
			perWord = append(perWord, MultiMatch{
				Query:  word,
				Fields: []string{"name^3", "brand_name^2", "description"},
			})
		}
		if len(perWord) > 0 {
			should = append(should, Bool{
				Should:             perWord,
				MinimumShouldMatch: int(math.Ceil(0.7 * float64(len(words)))),
				Boost:              20,
			})
		}
	}

	should = append(should, Match{Field: "name.ngram", Query: q, Boost: 10})

	if len([]rune(q)) >= 3 && !isCode {
		should = append(should, Wildcard{Field: "name.keyword", Value: "*" + q + "*", Boost: 5})
	}

	return Bool{Should: should, MinimumShouldMatch: 1}
}

// scoringFunctions returns the multiplicative score transforms: popularity,
// stock, and brevity of name/description.
func scoringFunctions() []ScoreFunction {
	return []ScoreFunction{
		{
			FieldValueFactor: &FieldValueFactor{
				Field:    "popularity_score",
				Factor:   1.2,
				Modifier: "log1p",
				Missing:  0,
			},
			Weight: 10,
		},
		{
			Filter: Term{Field: "in_stock", Value: true},
			Weight: 5,
		},
		{
			Script: "def len = doc.containsKey('name.keyword') && doc['name.keyword'].size() > 0 ? doc['name.keyword'].value.length() : 50; return Math.max(1, 50 - len) / 50.0;",
			Weight: 3,
		},
		{
			Script: "if (doc.containsKey('description.keyword') && doc['description.keyword'].size() > 0) { return Math.max(0.5, 1.0 - doc['description.keyword'].value.length() / 1000.0); } return 1.0;",
			Weight: 2,
		},
	}
}

// rescore re-ranks the top window with a phrase-heavy second pass.
func (b *Builder) rescore(q string) map[string]any {
	return map[string]any{
		"window_size": b.rescoreWindow,
		"query": map[string]any{
			"query_weight":         0.7,
			"rescore_query_weight": 1.3,
			"rescore_query": Bool{Should: []Clause{
				MatchPhrase{Field: "name", Query: q, Boost: 10},
				Match{Field: "name", Query: q, Operator: "and", Boost: 5},
			}}.Render(),
		},
	}
}

// highlight marks matches in identifying fields whole-value and clips one
// description fragment.
func highlight() map[string]any {
	return map[string]any{
		"pre_tags":  []string{"<mark>"},
		"post_tags": []string{"</mark>"},
		"fields": map[string]any{
			"name":        map[string]any{"number_of_fragments": 0},
			"external_id": map[string]any{"number_of_fragments": 0},
			"sku":         map[string]any{"number_of_fragments": 0},
			"description": map[string]any{"fragment_size": 150, "number_of_fragments": 1},
		},
	}
}

// sortClause renders the sort list for a sort option. Relevance differs for
// empty and non-empty queries. price_asc/price_desc currently order by
// product_id until a canonical price field exists in the index.
func sortClause(sortBy string, hasQuery bool) []any {
	desc := func(field string) map[string]any {
		return map[string]any{field: map[string]any{"order": "desc"}}
	}
	asc := func(field string) map[string]any {
		return map[string]any{field: map[string]any{"order": "asc"}}
	}

	switch sortBy {
	case domain.SortName:
		return []any{asc("name.keyword")}
	case domain.SortExternalID:
		return []any{asc("external_id.keyword")}
	case domain.SortAvailability:
		return []any{desc("in_stock"), desc("_score")}
	case domain.SortPopularity:
		return []any{desc("popularity_score"), desc("_score")}
	case domain.SortPriceAsc:
		return []any{asc("product_id")}
	case domain.SortPriceDesc:
		return []any{desc("product_id")}
	default: // relevance
		if hasQuery {
			return []any{desc("_score"), desc("popularity_score")}
		}
		return []any{desc("popularity_score"), asc("name.keyword")}
	}
}

// SuggestName is the key of the completion-suggester block in autocomplete
// requests and responses.
const SuggestName = "product_suggest"

// BuildAutocomplete renders the autocomplete request: a completion suggester
// over the suggest field plus a secondary prefix query for product hits.
func (b *Builder) BuildAutocomplete(q string, limit int) map[string]any {
	secondary := Bool{
		Should: []Clause{
			Prefix{Field: "external_id", Value: q, Boost: 10},
			Prefix{Field: "name.autocomplete", Value: q, Boost: 5},
			MatchPhrasePrefix{Field: "name", Query: q, Boost: 3},
			Fuzzy{Field: "name", Value: q, Fuzziness: "AUTO", Boost: 2},
			Prefix{Field: "brand_name.autocomplete", Value: q, Boost: 2},
		},
		MinimumShouldMatch: 1,
	}

	return map[string]any{
		"suggest": map[string]any{
			SuggestName: map[string]any{
				"prefix": q,
				"completion": map[string]any{
					"field":           "suggest",
					"size":            limit,
					"skip_duplicates": true,
					"fuzzy": map[string]any{
						"fuzziness":     "AUTO",
						"prefix_length": 1,
					},
				},
			},
		},
		"query":   secondary.Render(),
		"size":    limit,
		"_source": []string{"product_id", "name", "external_id"},
		"timeout": autocompleteTimeout,
	}
}
