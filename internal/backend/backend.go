package backend

import (
	"context"
	"time"
)

// Doc is a single document destined for the index.
type Doc struct {
	ID   string
	Body map[string]any
}

// ItemError describes a per-document failure inside a bulk request.
type ItemError struct {
	ID     string
	Reason string
}

// BulkResult aggregates the outcome of one bulk upload. Item errors are
// reported here rather than raised; only transport failures return an error.
type BulkResult struct {
	Indexed    int
	ItemErrors []ItemError
}

// Hit is a single search hit.
type Hit struct {
	ID        string
	Source    map[string]any
	Score     float64
	Highlight map[string][]string
}

// SuggestOption is one completion-suggester option.
type SuggestOption struct {
	Text   string
	Score  float64
	Source map[string]any
}

// SearchResult is the decoded response of a search request.
type SearchResult struct {
	Hits     []Hit
	Total    int64
	MaxScore float64
	Suggest  map[string][]SuggestOption
}

// AliasAction is one entry of an atomic alias update. Add selects between
// an "add" and a "remove" action.
type AliasAction struct {
	Add   bool
	Index string
	Alias string
}

// Health is the cluster health verdict with the observed probe latency.
type Health struct {
	Status  string // green, yellow, red
	Elapsed time.Duration
}

// Stats carries the per-index statistics the pipeline consumes.
type Stats struct {
	DocCount int64
}

// SearchBackend abstracts the search engine. The rest of the system never
// talks to the engine client directly.
type SearchBackend interface {
	// Bulk uploads documents to the index, idempotent per document id.
	// Partial failures are returned as per-item errors, not as an error.
	Bulk(ctx context.Context, index string, docs []Doc) (*BulkResult, error)

	// Search executes a raw request body against an index or alias.
	Search(ctx context.Context, index string, body map[string]any) (*SearchResult, error)

	CreateIndex(ctx context.Context, name string, schema map[string]any) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	Refresh(ctx context.Context, name string) error
	Stats(ctx context.Context, name string) (*Stats, error)

	// UpdateAliases submits the action list as a single atomic group.
	UpdateAliases(ctx context.Context, actions []AliasAction) error
	GetAlias(ctx context.Context, alias string) ([]string, error)
	ListIndices(ctx context.Context, pattern string) ([]string, error)

	ClusterHealth(ctx context.Context, timeout time.Duration) (*Health, error)
	PluginsInstalled(ctx context.Context) ([]string, error)
}
