package indexer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed schema/products.json
var defaultSchema []byte

// Required schema elements. A schema missing any of these is rejected before
// the pipeline touches the cluster.
var (
	requiredAnalyzers = []string{
		"text_analyzer", "code_analyzer", "search_analyzer", "autocomplete_analyzer",
	}
	requiredFields = []string{
		"product_id", "external_id", "name", "brand_name", "suggest",
	}
	requiredSubFields = map[string][]string{
		"name":        {"keyword", "ngram", "autocomplete"},
		"brand_name":  {"autocomplete"},
		"external_id": {"keyword"},
		"sku":         {"keyword"},
	}
)

// LoadSchema reads and validates the index schema. An empty path selects the
// embedded default.
func LoadSchema(path string) (map[string]any, error) {
	raw := defaultSchema
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", path, err)
		}
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := ValidateSchema(schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// ValidateSchema checks the schema's shape: settings and mappings present,
// required analyzers defined, required fields mapped with their sub-fields,
// and suggest mapped as a completion field.
func ValidateSchema(schema map[string]any) error {
	settings, ok := schema["settings"].(map[string]any)
	if !ok {
		return fmt.Errorf("schema: missing settings")
	}
	mappings, ok := schema["mappings"].(map[string]any)
	if !ok {
		return fmt.Errorf("schema: missing mappings")
	}

	analyzers := dig(settings, "analysis", "analyzer")
	for _, name := range requiredAnalyzers {
		if _, ok := analyzers[name]; !ok {
			return fmt.Errorf("schema: missing analyzer %q", name)
		}
	}

	properties := dig(mappings, "properties")
	for _, name := range requiredFields {
		if _, ok := properties[name]; !ok {
			return fmt.Errorf("schema: missing field %q in mappings", name)
		}
	}

	for field, subs := range requiredSubFields {
		fieldDef, ok := properties[field].(map[string]any)
		if !ok {
			continue
		}
		fields := dig(fieldDef, "fields")
		for _, sub := range subs {
			if _, ok := fields[sub]; !ok {
				return fmt.Errorf("schema: field %q missing sub-field %q", field, sub)
			}
		}
	}

	suggestDef, ok := properties["suggest"].(map[string]any)
	if !ok || suggestDef["type"] != "completion" {
		return fmt.Errorf("schema: suggest must be a completion field")
	}

	return nil
}

// dig walks nested maps, returning an empty map when any level is absent.
func dig(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		next, ok := m[key].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		m = next
	}
	return m
}
