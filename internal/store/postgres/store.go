package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stroymart/catalog-search/internal/domain"
	"github.com/stroymart/catalog-search/internal/store"
)

// DB is the subset of pgxpool.Pool the store consumes; pgxmock satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store implements store.Store over PostgreSQL. Phonetic matching in the
// fallback paths uses soundex() from the fuzzystrmatch extension.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a store over the given connection pool.
func New(db DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// TotalProducts counts indexable rows.
func (s *Store) TotalProducts(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE product_id > 0`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total products: %w", err)
	}
	return total, nil
}

// productColumns is the select list shared by the streaming and fallback
// queries. Brand and series names are joined in, empty string on null.
const productColumns = `
	p.product_id, p.external_id, p.sku, p.name, p.description,
	p.brand_id, COALESCE(b.name, '') AS brand_name,
	p.series_id, COALESCE(s.name, '') AS series_name,
	p.unit, p.dimensions, p.min_sale, p.weight,
	p.created_at, p.updated_at`

const productJoins = `
	FROM products p
	LEFT JOIN brands b ON b.brand_id = p.brand_id
	LEFT JOIN series s ON s.series_id = p.series_id`

// StreamProducts pages through products with keyset pagination on product_id.
// The stream ends at the first empty page.
func (s *Store) StreamProducts(ctx context.Context, batchSize int, fn store.BatchFunc) error {
	if batchSize <= 0 {
		return fmt.Errorf("stream products: batch size must be positive, got %d", batchSize)
	}

	query := `SELECT` + productColumns + productJoins + `
	WHERE p.product_id > $1
	ORDER BY p.product_id ASC
	LIMIT $2`

	var lastID int64
	for {
		batch, err := s.fetchBatch(ctx, query, lastID, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ProductID
	}
}

func (s *Store) fetchBatch(ctx context.Context, query string, lastID int64, batchSize int) ([]domain.ProductRow, error) {
	rows, err := s.db.Query(ctx, query, lastID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("stream products: %w", err)
	}
	defer rows.Close()

	var batch []domain.ProductRow
	for rows.Next() {
		row, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("stream products: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stream products: %w", err)
	}
	return batch, nil
}

func scanProduct(rows pgx.Rows) (domain.ProductRow, error) {
	var (
		row                  domain.ProductRow
		createdAt, updatedAt *time.Time
	)
	err := rows.Scan(
		&row.ProductID, &row.ExternalID, &row.SKU, &row.Name, &row.Description,
		&row.BrandID, &row.BrandName,
		&row.SeriesID, &row.SeriesName,
		&row.Unit, &row.Dimensions, &row.MinSale, &row.Weight,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return domain.ProductRow{}, fmt.Errorf("scan product: %w", err)
	}
	row.CreatedAt = createdAt
	row.UpdatedAt = updatedAt
	return row, nil
}

// fallbackRankSQL scores rows the way the engine's relevance model would,
// reduced to a CASE expression: exact code matches dominate, then prefixes,
// then name/brand/description containment.
const fallbackRankSQL = `CASE
	WHEN p.external_id = $1 THEN 1000
	WHEN p.sku = $1 THEN 900
	WHEN p.external_id ILIKE $1 || '%' THEN 100
	WHEN p.sku ILIKE $1 || '%' THEN 90
	WHEN p.name = $1 THEN 80
	WHEN p.name ILIKE $1 || '%' THEN 50
	WHEN p.name ILIKE '%' || $1 || '%' THEN 30
	WHEN COALESCE(b.name, '') ILIKE '%' || $1 || '%' THEN 20
	WHEN p.description ILIKE '%' || $1 || '%' THEN 10
	ELSE 1
END`

// FallbackSearch implements the relational degraded search path.
func (s *Store) FallbackSearch(ctx context.Context, spec domain.SearchSpec) (*domain.SearchResult, error) {
	where := `WHERE p.product_id > 0`
	rank := `1`
	var args []any
	argN := 1

	if spec.Query != "" {
		args = append(args, spec.Query)
		argN = 2
		rank = fallbackRankSQL
		where += ` AND (
		p.external_id ILIKE $1 || '%' OR p.sku ILIKE $1 || '%'
		OR p.name ILIKE '%' || $1 || '%'
		OR COALESCE(b.name, '') ILIKE '%' || $1 || '%'
		OR p.description ILIKE '%' || $1 || '%')`
	}
	if spec.Filters.BrandName != "" {
		where += fmt.Sprintf(` AND COALESCE(b.name, '') = $%d`, argN)
		args = append(args, spec.Filters.BrandName)
		argN++
	}
	if spec.Filters.SeriesName != "" {
		where += fmt.Sprintf(` AND COALESCE(s.name, '') = $%d`, argN)
		args = append(args, spec.Filters.SeriesName)
		argN++
	}

	countQuery := `SELECT COUNT(*)` + productJoins + ` ` + where
	var total int64
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("fallback search count: %w", err)
	}

	query := `SELECT` + productColumns + `,
	` + rank + ` AS relevance_score` + productJoins + `
	` + where + `
	ORDER BY relevance_score DESC, p.name ASC
	LIMIT $` + fmt.Sprint(argN) + ` OFFSET $` + fmt.Sprint(argN+1)
	args = append(args, spec.Limit, spec.Offset())

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fallback search: %w", err)
	}
	defer rows.Close()

	products := make([]map[string]any, 0, spec.Limit)
	for rows.Next() {
		var (
			row                  domain.ProductRow
			createdAt, updatedAt *time.Time
			score                int64
		)
		err := rows.Scan(
			&row.ProductID, &row.ExternalID, &row.SKU, &row.Name, &row.Description,
			&row.BrandID, &row.BrandName,
			&row.SeriesID, &row.SeriesName,
			&row.Unit, &row.Dimensions, &row.MinSale, &row.Weight,
			&createdAt, &updatedAt,
			&score,
		)
		if err != nil {
			return nil, fmt.Errorf("fallback search: scan: %w", err)
		}
		row.CreatedAt = createdAt
		row.UpdatedAt = updatedAt
		products = append(products, fallbackProduct(row, score))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fallback search: %w", err)
	}

	return &domain.SearchResult{
		Products: products,
		Total:    total,
		Page:     spec.Page,
		Limit:    spec.Limit,
	}, nil
}

// fallbackProduct renders a row in the same shape the engine path produces.
func fallbackProduct(row domain.ProductRow, score int64) map[string]any {
	product := map[string]any{
		"product_id":  row.ProductID,
		"external_id": row.ExternalID,
		"sku":         row.SKU,
		"name":        row.Name,
		"description": row.Description,
		"brand_id":    row.BrandID,
		"brand_name":  row.BrandName,
		"series_id":   row.SeriesID,
		"series_name": row.SeriesName,
		"unit":        row.Unit,
		"dimensions":  row.Dimensions,
		"min_sale":    row.MinSale,
		"weight":      row.Weight,
		"_score":      float64(score),
	}
	if row.CreatedAt != nil {
		product["created_at"] = row.CreatedAt.UTC().Format(time.RFC3339)
	}
	if row.UpdatedAt != nil {
		product["updated_at"] = row.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return product
}

// FallbackAutocomplete serves suggestions with prefix, contains, and phonetic
// tiers. The soundex() call requires the fuzzystrmatch extension.
func (s *Store) FallbackAutocomplete(ctx context.Context, q string, limit int) ([]domain.Suggestion, error) {
	query := `SELECT DISTINCT ON (p.name) p.name, p.external_id,
	CASE
		WHEN p.name ILIKE $1 || '%' THEN 100
		WHEN p.external_id ILIKE $1 || '%' THEN 95
		WHEN p.name ILIKE '%' || $1 || '%' THEN 50
		WHEN soundex(p.name) = soundex($1) THEN 25
		ELSE 1
	END AS score
	FROM products p
	WHERE p.product_id > 0 AND (
		p.name ILIKE $1 || '%'
		OR p.external_id ILIKE $1 || '%'
		OR p.name ILIKE '%' || $1 || '%'
		OR soundex(p.name) = soundex($1))
	ORDER BY p.name, score DESC
	LIMIT $2`

	rows, err := s.db.Query(ctx, query, q, limit)
	if err != nil {
		return nil, fmt.Errorf("fallback autocomplete: %w", err)
	}
	defer rows.Close()

	var suggestions []domain.Suggestion
	for rows.Next() {
		var (
			name, externalID string
			score            int64
		)
		if err := rows.Scan(&name, &externalID, &score); err != nil {
			return nil, fmt.Errorf("fallback autocomplete: scan: %w", err)
		}
		suggestions = append(suggestions, domain.Suggestion{
			Text:       name,
			Type:       domain.SuggestionTypeProduct,
			Score:      float64(score),
			ExternalID: externalID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fallback autocomplete: %w", err)
	}

	// DISTINCT ON ordering is by name; re-rank by score for the response.
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	return suggestions, nil
}
