package store

import (
	"context"

	"github.com/stroymart/catalog-search/internal/domain"
)

// BatchFunc receives one page of product rows. Returning an error stops the
// stream and propagates out of StreamProducts.
type BatchFunc func(batch []domain.ProductRow) error

// Store is the relational source of truth for products. It feeds the indexer
// and serves the degraded query path when the search engine is unhealthy.
type Store interface {
	// TotalProducts counts indexable rows (product_id > 0).
	TotalProducts(ctx context.Context) (int64, error)

	// StreamProducts pages through products in ascending product_id order,
	// invoking fn once per non-empty batch. Each row carries joined brand
	// and series names.
	StreamProducts(ctx context.Context, batchSize int, fn BatchFunc) error

	// FallbackSearch serves search requests relationally with a reduced
	// CASE-based ranking comparable to the engine's relevance model.
	FallbackSearch(ctx context.Context, spec domain.SearchSpec) (*domain.SearchResult, error)

	// FallbackAutocomplete serves prefix/contains/phonetic suggestions.
	FallbackAutocomplete(ctx context.Context, q string, limit int) ([]domain.Suggestion, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}
