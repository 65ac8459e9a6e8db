package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stroymart/catalog-search/internal/domain"
)

func TestIsCode(t *testing.T) {
	tests := []struct {
		q    string
		want bool
	}{
		{"AB-123", true},
		{"S1", true},
		{"10.5/B", true},
		{"hammer", false},       // no digit
		{"AB 123", false},       // whitespace
		{"AB_123", false},       // underscore not allowed
		{"", false},
		{"A1", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCode(tt.q), "q=%q", tt.q)
	}

	long := "A1"
	for len(long) <= 50 {
		long += "0"
	}
	assert.False(t, IsCode(long), "over 50 chars is not a code")
}

func spec(q string) domain.SearchSpec {
	return domain.SearchSpec{Query: q, Page: 1, Limit: 10, Sort: domain.SortRelevance}
}

// shouldClauses digs the should list out of a rendered body.
func shouldClauses(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	fs := body["query"].(map[string]any)["function_score"].(map[string]any)
	boolQ := fs["query"].(map[string]any)["bool"].(map[string]any)
	raw := boolQ["should"].([]map[string]any)
	return raw
}

func TestBuildSearch_CodeQuery(t *testing.T) {
	b := NewBuilder(0)
	body := b.BuildSearch(spec("AB-123"))

	assert.Equal(t, 10, body["size"])
	assert.Equal(t, 0, body["from"])
	assert.Equal(t, true, body["track_total_hits"])
	assert.Equal(t, "15s", body["timeout"])

	should := shouldClauses(t, body)

	// Code queries lead with exact keyword terms at 1000/900.
	term := should[0]["term"].(map[string]any)["external_id.keyword"].(map[string]any)
	assert.Equal(t, "AB-123", term["value"])
	assert.Equal(t, 1000.0, term["boost"])

	sku := should[1]["term"].(map[string]any)["sku.keyword"].(map[string]any)
	assert.Equal(t, 900.0, sku["boost"])

	// No wildcard clause for code queries.
	for _, c := range should {
		_, hasWildcard := c["wildcard"]
		assert.False(t, hasWildcard, "code query must not emit wildcard clause")
	}
}

func TestBuildSearch_TextQuery(t *testing.T) {
	b := NewBuilder(0)
	body := b.BuildSearch(spec("hammer drill"))

	should := shouldClauses(t, body)

	// No exact code terms for plain text.
	for _, c := range should {
		_, hasTerm := c["term"]
		assert.False(t, hasTerm)
	}

	// Multi-word queries emit the per-word nested bool with 70% coverage.
	var nested map[string]any
	for _, c := range should {
		if bq, ok := c["bool"]; ok {
			nested = bq.(map[string]any)
		}
	}
	require.NotNil(t, nested, "expected nested per-word bool clause")
	assert.Equal(t, 2, nested["minimum_should_match"], "ceil(0.7*2)")
	assert.Equal(t, 20.0, nested["boost"])

	// Wildcard present for non-code queries of length >= 3.
	var wildcard map[string]any
	for _, c := range should {
		if w, ok := c["wildcard"]; ok {
			wildcard = w.(map[string]any)["name.keyword"].(map[string]any)
		}
	}
	require.NotNil(t, wildcard)
	assert.Equal(t, "*hammer drill*", wildcard["value"])
	assert.Equal(t, 5.0, wildcard["boost"])
}

func TestBuildSearch_ScoringFunctions(t *testing.T) {
	b := NewBuilder(0)
	body := b.BuildSearch(spec("hammer"))

	fs := body["query"].(map[string]any)["function_score"].(map[string]any)
	assert.Equal(t, "sum", fs["score_mode"])
	assert.Equal(t, "multiply", fs["boost_mode"])

	functions := fs["functions"].([]map[string]any)
	require.Len(t, functions, 4)

	fvf := functions[0]["field_value_factor"].(map[string]any)
	assert.Equal(t, "popularity_score", fvf["field"])
	assert.Equal(t, 1.2, fvf["factor"])
	assert.Equal(t, "log1p", fvf["modifier"])
	assert.Equal(t, 10.0, functions[0]["weight"])

	assert.Contains(t, functions[1], "filter")
	assert.Equal(t, 5.0, functions[1]["weight"])
	assert.Equal(t, 3.0, functions[2]["weight"])
	assert.Equal(t, 2.0, functions[3]["weight"])
}

func TestBuildSearch_Rescore(t *testing.T) {
	b := NewBuilder(0)
	body := b.BuildSearch(spec("hammer"))

	rescore := body["rescore"].(map[string]any)
	assert.Equal(t, DefaultRescoreWindow, rescore["window_size"])

	rq := rescore["query"].(map[string]any)
	assert.Equal(t, 0.7, rq["query_weight"])
	assert.Equal(t, 1.3, rq["rescore_query_weight"])
}

func TestBuildSearch_EmptyQuery(t *testing.T) {
	b := NewBuilder(0)
	body := b.BuildSearch(spec(""))

	q := body["query"].(map[string]any)
	assert.Contains(t, q, "match_all")
	assert.NotContains(t, body, "rescore")
	assert.NotContains(t, body, "highlight")

	sort := body["sort"].([]any)
	require.Len(t, sort, 2)
	assert.Contains(t, sort[0].(map[string]any), "popularity_score")
	assert.Contains(t, sort[1].(map[string]any), "name.keyword")
}

func TestBuildSearch_Pagination(t *testing.T) {
	b := NewBuilder(0)
	s := spec("x1")
	s.Page = 3
	s.Limit = 25
	body := b.BuildSearch(s)

	assert.Equal(t, 25, body["size"])
	assert.Equal(t, 50, body["from"])
}

func TestBuildSearch_Filters(t *testing.T) {
	b := NewBuilder(0)
	s := spec("drill")
	s.Filters = domain.SearchFilters{BrandName: "Makita"}
	body := b.BuildSearch(s)

	boolQ := body["query"].(map[string]any)["bool"].(map[string]any)
	filters := boolQ["filter"].([]map[string]any)
	require.Len(t, filters, 1)
	term := filters[0]["term"].(map[string]any)["brand_name.keyword"].(map[string]any)
	assert.Equal(t, "Makita", term["value"])
}

func TestSortClause(t *testing.T) {
	tests := []struct {
		sort     string
		hasQuery bool
		first    string
	}{
		{domain.SortName, true, "name.keyword"},
		{domain.SortExternalID, true, "external_id.keyword"},
		{domain.SortAvailability, true, "in_stock"},
		{domain.SortPopularity, true, "popularity_score"},
		{domain.SortPriceAsc, true, "product_id"},
		{domain.SortPriceDesc, true, "product_id"},
		{domain.SortRelevance, true, "_score"},
		{domain.SortRelevance, false, "popularity_score"},
	}
	for _, tt := range tests {
		clause := sortClause(tt.sort, tt.hasQuery)
		require.NotEmpty(t, clause, "sort=%s", tt.sort)
		assert.Contains(t, clause[0].(map[string]any), tt.first, "sort=%s", tt.sort)
	}
}

func TestBuildAutocomplete(t *testing.T) {
	b := NewBuilder(0)
	body := b.BuildAutocomplete("mak", 5)

	suggest := body["suggest"].(map[string]any)[SuggestName].(map[string]any)
	assert.Equal(t, "mak", suggest["prefix"])

	completion := suggest["completion"].(map[string]any)
	assert.Equal(t, "suggest", completion["field"])
	assert.Equal(t, 5, completion["size"])

	fuzzy := completion["fuzzy"].(map[string]any)
	assert.Equal(t, "AUTO", fuzzy["fuzziness"])
	assert.Equal(t, 1, fuzzy["prefix_length"])

	boolQ := body["query"].(map[string]any)["bool"].(map[string]any)
	should := boolQ["should"].([]map[string]any)
	require.Len(t, should, 5)

	first := should[0]["prefix"].(map[string]any)["external_id"].(map[string]any)
	assert.Equal(t, 10.0, first["boost"])

	assert.Equal(t, 5, body["size"])
	assert.Equal(t, "3s", body["timeout"])
}
