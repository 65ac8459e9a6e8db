package query

// Clause is a typed fragment of the search engine query DSL. Clause values
// carry their boosts and options as struct fields; Render is the single place
// where they become the engine's wire format.
type Clause interface {
	Render() map[string]any
}

// Term is an exact match on a keyword field.
type Term struct {
	Field string
	Value any
	Boost float64
}

func (c Term) Render() map[string]any {
	body := map[string]any{"value": c.Value}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"term": map[string]any{c.Field: body}}
}

// Prefix matches values starting with the given string.
type Prefix struct {
	Field string
	Value string
	Boost float64
}

func (c Prefix) Render() map[string]any {
	body := map[string]any{"value": c.Value}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"prefix": map[string]any{c.Field: body}}
}

// Fuzzy is an edit-distance match.
type Fuzzy struct {
	Field        string
	Value        string
	Fuzziness    string
	PrefixLength int
	Boost        float64
}

func (c Fuzzy) Render() map[string]any {
	body := map[string]any{"value": c.Value}
	if c.Fuzziness != "" {
		body["fuzziness"] = c.Fuzziness
	}
	if c.PrefixLength > 0 {
		body["prefix_length"] = c.PrefixLength
	}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"fuzzy": map[string]any{c.Field: body}}
}

// Match is an analyzed full-text match.
type Match struct {
	Field        string
	Query        string
	Operator     string
	Fuzziness    string
	PrefixLength int
	Boost        float64
}

func (c Match) Render() map[string]any {
	body := map[string]any{"query": c.Query}
	if c.Operator != "" {
		body["operator"] = c.Operator
	}
	if c.Fuzziness != "" {
		body["fuzziness"] = c.Fuzziness
	}
	if c.PrefixLength > 0 {
		body["prefix_length"] = c.PrefixLength
	}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"match": map[string]any{c.Field: body}}
}

// MatchPhrase matches the terms in order.
type MatchPhrase struct {
	Field string
	Query string
	Boost float64
}

func (c MatchPhrase) Render() map[string]any {
	body := map[string]any{"query": c.Query}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"match_phrase": map[string]any{c.Field: body}}
}

// MatchPhrasePrefix matches a phrase whose last term is a prefix.
type MatchPhrasePrefix struct {
	Field string
	Query string
	Boost float64
}

func (c MatchPhrasePrefix) Render() map[string]any {
	body := map[string]any{"query": c.Query}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"match_phrase_prefix": map[string]any{c.Field: body}}
}

// MultiMatch matches one query string across several boosted fields.
type MultiMatch struct {
	Query     string
	Fields    []string
	Type      string
	Fuzziness string
	Boost     float64
}

func (c MultiMatch) Render() map[string]any {
	body := map[string]any{
		"query":  c.Query,
		"fields": c.Fields,
	}
	if c.Type != "" {
		body["type"] = c.Type
	}
	if c.Fuzziness != "" {
		body["fuzziness"] = c.Fuzziness
	}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"multi_match": body}
}

// Wildcard matches a glob pattern on a keyword field.
type Wildcard struct {
	Field string
	Value string
	Boost float64
}

func (c Wildcard) Render() map[string]any {
	body := map[string]any{"value": c.Value}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"wildcard": map[string]any{c.Field: body}}
}

// MatchAll matches every document.
type MatchAll struct{}

func (c MatchAll) Render() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

// Bool combines sub-clauses with boolean semantics.
type Bool struct {
	Must               []Clause
	Should             []Clause
	Filter             []Clause
	MustNot            []Clause
	MinimumShouldMatch any
	Boost              float64
}

func (c Bool) Render() map[string]any {
	body := map[string]any{}
	put := func(key string, clauses []Clause) {
		if len(clauses) == 0 {
			return
		}
		rendered := make([]map[string]any, 0, len(clauses))
		for _, sub := range clauses {
			rendered = append(rendered, sub.Render())
		}
		body[key] = rendered
	}
	put("must", c.Must)
	put("should", c.Should)
	put("filter", c.Filter)
	put("must_not", c.MustNot)
	if c.MinimumShouldMatch != nil {
		body["minimum_should_match"] = c.MinimumShouldMatch
	}
	if c.Boost != 0 {
		body["boost"] = c.Boost
	}
	return map[string]any{"bool": body}
}

// FieldValueFactor scales the score by a numeric document field.
type FieldValueFactor struct {
	Field    string
	Factor   float64
	Modifier string
	Missing  float64
}

// ScoreFunction is one entry of a function_score functions list. Exactly one
// of FieldValueFactor and Script should be set; Filter is optional.
type ScoreFunction struct {
	Filter           Clause
	FieldValueFactor *FieldValueFactor
	Script           string
	Weight           float64
}

func (f ScoreFunction) render() map[string]any {
	body := map[string]any{}
	if f.Filter != nil {
		body["filter"] = f.Filter.Render()
	}
	if f.FieldValueFactor != nil {
		body["field_value_factor"] = map[string]any{
			"field":    f.FieldValueFactor.Field,
			"factor":   f.FieldValueFactor.Factor,
			"modifier": f.FieldValueFactor.Modifier,
			"missing":  f.FieldValueFactor.Missing,
		}
	}
	if f.Script != "" {
		body["script_score"] = map[string]any{
			"script": map[string]any{"source": f.Script},
		}
	}
	if f.Weight != 0 {
		body["weight"] = f.Weight
	}
	return body
}

// FunctionScore combines a textual query with scoring functions.
type FunctionScore struct {
	Query     Clause
	Functions []ScoreFunction
	ScoreMode string
	BoostMode string
}

func (c FunctionScore) Render() map[string]any {
	functions := make([]map[string]any, 0, len(c.Functions))
	for _, f := range c.Functions {
		functions = append(functions, f.render())
	}
	body := map[string]any{
		"query":     c.Query.Render(),
		"functions": functions,
	}
	if c.ScoreMode != "" {
		body["score_mode"] = c.ScoreMode
	}
	if c.BoostMode != "" {
		body["boost_mode"] = c.BoostMode
	}
	return map[string]any{"function_score": body}
}
