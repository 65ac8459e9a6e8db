package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/stroymart/catalog-search/internal/backend"
)

// Timeouts per operation class.
const (
	DefaultSearchTimeout = 20 * time.Second
	DefaultBulkTimeout   = 60 * time.Second
)

// Backend implements backend.SearchBackend on top of the Elasticsearch HTTP
// client. The cluster may equally be an OpenSearch-compatible endpoint; the
// API surface the backend consumes is shared.
type Backend struct {
	client        *elasticsearch.Client
	logger        *slog.Logger
	searchTimeout time.Duration
	bulkTimeout   time.Duration
}

// esErrorResponse is used to decode engine error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a backend connected to the given URL.
func New(url string, logger *slog.Logger) (*Backend, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("search backend: create client: %w", err)
	}
	return &Backend{
		client:        client,
		logger:        logger,
		searchTimeout: DefaultSearchTimeout,
		bulkTimeout:   DefaultBulkTimeout,
	}, nil
}

// decodeError turns a non-2xx engine response into an error, preferring the
// structured body when present.
func decodeError(op string, body *json.Decoder, status string) error {
	var errResp esErrorResponse
	if body != nil {
		if decErr := body.Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
			return fmt.Errorf("%s: %s — %s", op, errResp.Error.Type, errResp.Error.Reason)
		}
	}
	return fmt.Errorf("%s: unexpected status %s", op, status)
}

// esSearchResponse decodes search responses, including highlight and suggest.
type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			ID        string              `json:"_id"`
			Source    map[string]any      `json:"_source"`
			Score     float64             `json:"_score"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Suggest map[string][]struct {
		Text    string `json:"text"`
		Options []struct {
			Text   string         `json:"text"`
			Score  float64        `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"options"`
	} `json:"suggest"`
}

// Search executes a raw request body against an index or alias.
func (b *Backend) Search(ctx context.Context, index string, body map[string]any) (*backend.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.searchTimeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("search: marshal body: %w", err)
	}

	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(index),
		b.client.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("search", json.NewDecoder(res.Body), res.Status())
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	result := &backend.SearchResult{
		Total:    esResp.Hits.Total.Value,
		MaxScore: esResp.Hits.MaxScore,
	}
	for _, hit := range esResp.Hits.Hits {
		result.Hits = append(result.Hits, backend.Hit{
			ID:        hit.ID,
			Source:    hit.Source,
			Score:     hit.Score,
			Highlight: hit.Highlight,
		})
	}
	if len(esResp.Suggest) > 0 {
		result.Suggest = make(map[string][]backend.SuggestOption, len(esResp.Suggest))
		for name, entries := range esResp.Suggest {
			for _, entry := range entries {
				for _, opt := range entry.Options {
					result.Suggest[name] = append(result.Suggest[name], backend.SuggestOption{
						Text:   opt.Text,
						Score:  opt.Score,
						Source: opt.Source,
					})
				}
			}
		}
	}
	return result, nil
}

// esBulkResponse decodes bulk responses for per-item error accounting.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// Bulk uploads documents using the NDJSON bulk API with refresh disabled.
// Per-item failures are collected into the result; only transport-level
// problems return an error.
func (b *Backend) Bulk(ctx context.Context, index string, docs []backend.Doc) (*backend.BulkResult, error) {
	if len(docs) == 0 {
		return &backend.BulkResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.bulkTimeout)
	defer cancel()

	var buf bytes.Buffer
	for i := range docs {
		action := map[string]any{
			"index": map[string]any{"_index": index, "_id": docs[i].ID},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return nil, fmt.Errorf("bulk: encode action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(docs[i].Body); err != nil {
			return nil, fmt.Errorf("bulk: encode document: %w", err)
		}
	}

	res, err := b.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		b.client.Bulk.WithContext(ctx),
		b.client.Bulk.WithIndex(index),
		b.client.Bulk.WithRefresh("false"),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("bulk", json.NewDecoder(res.Body), res.Status())
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("bulk: decode response: %w", err)
	}

	result := &backend.BulkResult{}
	for _, item := range bulkResp.Items {
		if item.Index.Error.Type != "" {
			result.ItemErrors = append(result.ItemErrors, backend.ItemError{
				ID:     item.Index.ID,
				Reason: fmt.Sprintf("%s — %s", item.Index.Error.Type, item.Index.Error.Reason),
			})
			continue
		}
		result.Indexed++
	}
	return result, nil
}

// CreateIndex creates a new index from the given schema.
func (b *Backend) CreateIndex(ctx context.Context, name string, schema map[string]any) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("create index: marshal schema: %w", err)
	}

	res, err := b.client.Indices.Create(
		name,
		b.client.Indices.Create.WithContext(ctx),
		b.client.Indices.Create.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("create index", json.NewDecoder(res.Body), res.Status())
	}
	b.logger.Info("index created", slog.String("index", name))
	return nil
}

// DeleteIndex removes an index. A 404 is treated as success.
func (b *Backend) DeleteIndex(ctx context.Context, name string) error {
	res, err := b.client.Indices.Delete(
		[]string{name},
		b.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != 404 {
		return decodeError("delete index", json.NewDecoder(res.Body), res.Status())
	}
	b.logger.Info("index deleted", slog.String("index", name))
	return nil
}

// IndexExists reports whether the named index exists.
func (b *Backend) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := b.client.Indices.Exists(
		[]string{name},
		b.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	return res.StatusCode == 200, nil
}

// Refresh makes all indexed documents visible to search.
func (b *Backend) Refresh(ctx context.Context, name string) error {
	res, err := b.client.Indices.Refresh(
		b.client.Indices.Refresh.WithContext(ctx),
		b.client.Indices.Refresh.WithIndex(name),
	)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("refresh", json.NewDecoder(res.Body), res.Status())
	}
	return nil
}

// Stats returns the document count of an index via the count API.
func (b *Backend) Stats(ctx context.Context, name string) (*backend.Stats, error) {
	res, err := b.client.Count(
		b.client.Count.WithContext(ctx),
		b.client.Count.WithIndex(name),
	)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("stats", json.NewDecoder(res.Body), res.Status())
	}

	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return nil, fmt.Errorf("stats: decode response: %w", err)
	}
	return &backend.Stats{DocCount: countResp.Count}, nil
}

// UpdateAliases submits the action list as one atomic _aliases call.
func (b *Backend) UpdateAliases(ctx context.Context, actions []backend.AliasAction) error {
	if len(actions) == 0 {
		return nil
	}

	rendered := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		verb := "remove"
		if a.Add {
			verb = "add"
		}
		rendered = append(rendered, map[string]any{
			verb: map[string]any{"index": a.Index, "alias": a.Alias},
		})
	}

	data, err := json.Marshal(map[string]any{"actions": rendered})
	if err != nil {
		return fmt.Errorf("update aliases: marshal actions: %w", err)
	}

	res, err := b.client.Indices.UpdateAliases(
		bytes.NewReader(data),
		b.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("update aliases: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return decodeError("update aliases", json.NewDecoder(res.Body), res.Status())
	}
	return nil
}

// GetAlias resolves an alias to the indices it points at. A missing alias
// resolves to an empty list.
func (b *Backend) GetAlias(ctx context.Context, alias string) ([]string, error) {
	res, err := b.client.Indices.GetAlias(
		b.client.Indices.GetAlias.WithContext(ctx),
		b.client.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return nil, fmt.Errorf("get alias: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, decodeError("get alias", json.NewDecoder(res.Body), res.Status())
	}

	var aliasResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&aliasResp); err != nil {
		return nil, fmt.Errorf("get alias: decode response: %w", err)
	}

	indices := make([]string, 0, len(aliasResp))
	for index := range aliasResp {
		indices = append(indices, index)
	}
	return indices, nil
}

// ListIndices returns the names of indices matching the pattern.
func (b *Backend) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := b.client.Cat.Indices(
		b.client.Cat.Indices.WithContext(ctx),
		b.client.Cat.Indices.WithIndex(pattern),
		b.client.Cat.Indices.WithFormat("json"),
		b.client.Cat.Indices.WithH("index"),
	)
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, decodeError("list indices", json.NewDecoder(res.Body), res.Status())
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("list indices: decode response: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Index)
	}
	return names, nil
}

// ClusterHealth probes the cluster and measures the observed latency.
func (b *Backend) ClusterHealth(ctx context.Context, timeout time.Duration) (*backend.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := b.client.Cluster.Health(
		b.client.Cluster.Health.WithContext(ctx),
	)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("cluster health: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("cluster health", json.NewDecoder(res.Body), res.Status())
	}

	var healthResp struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&healthResp); err != nil {
		return nil, fmt.Errorf("cluster health: decode response: %w", err)
	}
	return &backend.Health{Status: healthResp.Status, Elapsed: elapsed}, nil
}

// PluginsInstalled lists the component names of installed cluster plugins.
func (b *Backend) PluginsInstalled(ctx context.Context) ([]string, error) {
	res, err := b.client.Cat.Plugins(
		b.client.Cat.Plugins.WithContext(ctx),
		b.client.Cat.Plugins.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("plugins: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, decodeError("plugins", json.NewDecoder(res.Body), res.Status())
	}

	var rows []struct {
		Component string `json:"component"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("plugins: decode response: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Component)
	}
	return names, nil
}
