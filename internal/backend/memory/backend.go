package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stroymart/catalog-search/internal/backend"
	"github.com/stroymart/catalog-search/internal/domain"
)

// Backend is an in-memory implementation of backend.SearchBackend used for
// tests and local development. It keeps whole indices and their alias table
// in maps and evaluates request bodies with a deliberately naive interpreter:
// clause values are matched by prefix/substring, boosts are summed, and no
// fuzziness is applied. Thread-safe via sync.RWMutex.
type Backend struct {
	mu      sync.RWMutex
	indices map[string]*index
	aliases map[string]string
	plugins []string
}

type index struct {
	schema map[string]any
	docs   map[string]map[string]any
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		indices: make(map[string]*index),
		aliases: make(map[string]string),
	}
}

// resolve maps an alias to its physical index, or returns the name as-is.
func (b *Backend) resolve(name string) (*index, bool) {
	if target, ok := b.aliases[name]; ok {
		name = target
	}
	idx, ok := b.indices[name]
	return idx, ok
}

// Bulk stores documents under their ids.
func (b *Backend) Bulk(_ context.Context, indexName string, docs []backend.Doc) (*backend.BulkResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.resolve(indexName)
	if !ok {
		return nil, fmt.Errorf("bulk: no such index %q", indexName)
	}

	result := &backend.BulkResult{}
	for _, doc := range docs {
		if doc.ID == "" {
			result.ItemErrors = append(result.ItemErrors, backend.ItemError{ID: doc.ID, Reason: "empty id"})
			continue
		}
		idx.docs[doc.ID] = doc.Body
		result.Indexed++
	}
	return result, nil
}

// Search evaluates the request body against the index.
func (b *Backend) Search(_ context.Context, indexName string, body map[string]any) (*backend.SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.resolve(indexName)
	if !ok {
		return nil, fmt.Errorf("search: no such index %q", indexName)
	}

	result := &backend.SearchResult{}

	if suggestBody, ok := body["suggest"].(map[string]any); ok {
		result.Suggest = b.evalSuggest(idx, suggestBody)
	}

	clauses := collectClauses(body["query"])
	var hits []backend.Hit
	for id, src := range idx.docs {
		score, matched := scoreDoc(src, clauses)
		if !matched {
			continue
		}
		hits = append(hits, backend.Hit{ID: id, Source: src, Score: score})
	}

	sortHits(hits, body["sort"])
	result.Total = int64(len(hits))
	for _, h := range hits {
		if h.Score > result.MaxScore {
			result.MaxScore = h.Score
		}
	}

	from, size := 0, len(hits)
	if v, ok := asInt(body["from"]); ok {
		from = v
	}
	if v, ok := asInt(body["size"]); ok {
		size = v
	}
	if from > len(hits) {
		from = len(hits)
	}
	end := from + size
	if end > len(hits) {
		end = len(hits)
	}
	result.Hits = hits[from:end]
	return result, nil
}

// evalSuggest runs prefix matching over stored suggest payloads.
func (b *Backend) evalSuggest(idx *index, suggestBody map[string]any) map[string][]backend.SuggestOption {
	out := make(map[string][]backend.SuggestOption)
	for name, raw := range suggestBody {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		prefix, _ := block["prefix"].(string)
		if prefix == "" {
			continue
		}
		size := 10
		if completion, ok := block["completion"].(map[string]any); ok {
			if v, ok := asInt(completion["size"]); ok {
				size = v
			}
		}

		lower := strings.ToLower(prefix)
		var options []backend.SuggestOption
		for _, src := range idx.docs {
			entries, ok := src["suggest"].([]any)
			if !ok {
				// Suggest entries may be stored as typed values rather than
				// decoded JSON; handle both shapes.
				options = append(options, matchTypedSuggest(src, lower)...)
				continue
			}
			for _, e := range entries {
				entry, ok := e.(map[string]any)
				if !ok {
					continue
				}
				weight, _ := asInt(entry["weight"])
				inputs, _ := entry["input"].([]any)
				for _, in := range inputs {
					text, _ := in.(string)
					if text != "" && strings.HasPrefix(strings.ToLower(text), lower) {
						options = append(options, backend.SuggestOption{
							Text:   text,
							Score:  float64(weight),
							Source: src,
						})
					}
				}
			}
		}
		sort.Slice(options, func(i, j int) bool { return options[i].Score > options[j].Score })
		if len(options) > size {
			options = options[:size]
		}
		out[name] = options
	}
	return out
}

// matchTypedSuggest handles suggest payloads stored as typed values rather
// than decoded JSON, which is how Document.Source renders them.
func matchTypedSuggest(src map[string]any, lowerPrefix string) []backend.SuggestOption {
	entries, ok := src["suggest"].([]domain.SuggestEntry)
	if !ok {
		return nil
	}
	var options []backend.SuggestOption
	for _, entry := range entries {
		for _, text := range entry.Input {
			if strings.HasPrefix(strings.ToLower(text), lowerPrefix) {
				options = append(options, backend.SuggestOption{Text: text, Score: float64(entry.Weight), Source: src})
			}
		}
	}
	return options
}

// clause is a flattened query leaf the naive scorer can evaluate.
type clause struct {
	fields []string
	value  string
	boost  float64
	prefix bool
	exact  bool
}

// collectClauses walks a rendered query body and flattens every leaf clause.
func collectClauses(node any) []clause {
	var out []clause
	walkQuery(node, &out)
	return out
}

func walkQuery(node any, out *[]clause) {
	m, ok := node.(map[string]any)
	if !ok {
		return
	}
	for key, raw := range m {
		switch key {
		case "match_all":
			*out = append(*out, clause{boost: 1})
		case "function_score":
			if fs, ok := raw.(map[string]any); ok {
				walkQuery(fs["query"], out)
			}
		case "bool":
			if bq, ok := raw.(map[string]any); ok {
				for _, section := range []string{"must", "should", "filter"} {
					switch list := bq[section].(type) {
					case []any:
						for _, sub := range list {
							walkQuery(sub, out)
						}
					case []map[string]any:
						// Bodies built in-process arrive untouched by JSON
						// decoding and keep their concrete slice types.
						for _, sub := range list {
							walkQuery(sub, out)
						}
					case map[string]any:
						walkQuery(list, out)
					}
				}
			}
		case "term", "prefix", "wildcard", "fuzzy", "match", "match_phrase", "match_phrase_prefix":
			fieldMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			for field, spec := range fieldMap {
				c := clause{fields: []string{baseField(field)}, boost: 1}
				c.prefix = key == "prefix" || key == "match_phrase_prefix"
				c.exact = key == "term"
				switch v := spec.(type) {
				case string:
					c.value = v
				case map[string]any:
					if s, ok := v["value"].(string); ok {
						c.value = s
					}
					if s, ok := v["query"].(string); ok {
						c.value = s
					}
					if f, ok := asFloat(v["boost"]); ok {
						c.boost = f
					}
				}
				c.value = strings.Trim(c.value, "*")
				if c.value != "" {
					*out = append(*out, c)
				}
			}
		case "multi_match":
			spec, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			c := clause{boost: 1}
			if s, ok := spec["query"].(string); ok {
				c.value = s
			}
			if f, ok := asFloat(spec["boost"]); ok {
				c.boost = f
			}
			if fields, ok := spec["fields"].([]any); ok {
				for _, f := range fields {
					if s, ok := f.(string); ok {
						c.fields = append(c.fields, baseField(strings.SplitN(s, "^", 2)[0]))
					}
				}
			}
			if fields, ok := spec["fields"].([]string); ok {
				for _, s := range fields {
					c.fields = append(c.fields, baseField(strings.SplitN(s, "^", 2)[0]))
				}
			}
			if c.value != "" {
				*out = append(*out, c)
			}
		}
	}
}

// baseField strips sub-field suffixes like name.keyword.
func baseField(field string) string {
	return strings.SplitN(field, ".", 2)[0]
}

// scoreDoc sums the boosts of matching clauses.
func scoreDoc(src map[string]any, clauses []clause) (float64, bool) {
	if len(clauses) == 0 {
		return 0, false
	}
	var score float64
	matched := false
	for _, c := range clauses {
		if len(c.fields) == 0 && c.value == "" {
			// match_all
			score += c.boost
			matched = true
			continue
		}
		needle := strings.ToLower(c.value)
		for _, field := range c.fields {
			hay, ok := src[field].(string)
			if !ok {
				continue
			}
			lower := strings.ToLower(hay)
			hit := false
			switch {
			case c.exact:
				hit = lower == needle
			case c.prefix:
				hit = strings.HasPrefix(lower, needle)
			default:
				hit = strings.Contains(lower, needle)
			}
			if hit {
				score += c.boost
				matched = true
				break
			}
		}
	}
	return score, matched
}

// sortHits applies the first recognizable sort keys, defaulting to score desc.
func sortHits(hits []backend.Hit, sortSpec any) {
	keys := parseSortKeys(sortSpec)
	sort.SliceStable(hits, func(i, j int) bool {
		for _, key := range keys {
			cmp := compareHits(hits[i], hits[j], key.field)
			if cmp == 0 {
				continue
			}
			if key.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return hits[i].ID < hits[j].ID
	})
}

type sortKey struct {
	field string
	desc  bool
}

func parseSortKeys(spec any) []sortKey {
	list, ok := spec.([]any)
	if !ok {
		return []sortKey{{field: "_score", desc: true}}
	}
	var keys []sortKey
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for field, v := range m {
			key := sortKey{field: baseField(field), desc: true}
			switch order := v.(type) {
			case string:
				key.desc = order == "desc"
			case map[string]any:
				if s, ok := order["order"].(string); ok {
					key.desc = s == "desc"
				}
			}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		keys = []sortKey{{field: "_score", desc: true}}
	}
	return keys
}

func compareHits(a, b backend.Hit, field string) int {
	if field == "_score" {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		default:
			return 0
		}
	}
	av, bv := a.Source[field], b.Source[field]
	if af, ok := asFloat(av); ok {
		bf, _ := asFloat(bv)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if ab, ok := av.(bool); ok {
		bb, _ := bv.(bool)
		switch {
		case ab == bb:
			return 0
		case ab:
			return 1
		default:
			return -1
		}
	}
	as, _ := av.(string)
	bs, _ := bv.(string)
	return strings.Compare(as, bs)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// CreateIndex registers a new empty index.
func (b *Backend) CreateIndex(_ context.Context, name string, schema map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.indices[name]; exists {
		return fmt.Errorf("create index: %q already exists", name)
	}
	b.indices[name] = &index{schema: schema, docs: make(map[string]map[string]any)}
	return nil
}

// DeleteIndex removes an index and any alias pointing at it.
func (b *Backend) DeleteIndex(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.indices, name)
	for alias, target := range b.aliases {
		if target == name {
			delete(b.aliases, alias)
		}
	}
	return nil
}

// IndexExists reports whether the named index exists.
func (b *Backend) IndexExists(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.indices[name]
	return ok, nil
}

// Refresh is a no-op: in-memory documents are always visible.
func (b *Backend) Refresh(_ context.Context, _ string) error {
	return nil
}

// Stats returns the stored document count.
func (b *Backend) Stats(_ context.Context, name string) (*backend.Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.resolve(name)
	if !ok {
		return nil, fmt.Errorf("stats: no such index %q", name)
	}
	return &backend.Stats{DocCount: int64(len(idx.docs))}, nil
}

// UpdateAliases applies the whole action list or none of it.
func (b *Backend) UpdateAliases(_ context.Context, actions []backend.AliasAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range actions {
		if a.Add {
			if _, ok := b.indices[a.Index]; !ok {
				return fmt.Errorf("update aliases: no such index %q", a.Index)
			}
		}
	}
	for _, a := range actions {
		if a.Add {
			b.aliases[a.Alias] = a.Index
		} else if b.aliases[a.Alias] == a.Index {
			delete(b.aliases, a.Alias)
		}
	}
	return nil
}

// GetAlias resolves an alias; a missing alias resolves to an empty list.
func (b *Backend) GetAlias(_ context.Context, alias string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if target, ok := b.aliases[alias]; ok {
		return []string{target}, nil
	}
	return nil, nil
}

// ListIndices returns names matching a trailing-star pattern.
func (b *Backend) ListIndices(_ context.Context, pattern string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	prefix := strings.TrimSuffix(pattern, "*")
	var names []string
	for name := range b.indices {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ClusterHealth always reports green with negligible latency.
func (b *Backend) ClusterHealth(_ context.Context, _ time.Duration) (*backend.Health, error) {
	return &backend.Health{Status: "green", Elapsed: time.Millisecond}, nil
}

// PluginsInstalled returns the plugin list, settable for tests.
func (b *Backend) PluginsInstalled(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.plugins, nil
}

// SetPlugins configures the plugin list reported by PluginsInstalled.
func (b *Backend) SetPlugins(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plugins = names
}
