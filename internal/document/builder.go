package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stroymart/catalog-search/internal/domain"
)

// Suggest weights per identifying field. The scale is part of the index
// contract and must survive reindexing unchanged.
const (
	SuggestWeightName       = 100
	SuggestWeightExternalID = 95
	SuggestWeightSKU        = 90
	SuggestWeightBrand      = 70
	SuggestWeightSeries     = 60
)

// minSuggestInputLen is the shortest input the completion suggester accepts.
const minSuggestInputLen = 2

// SkipError reports a row that cannot be indexed. The pipeline counts these
// and moves on; they are never fatal.
type SkipError struct {
	ProductID int64
	Reason    string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip product %d: %s", e.ProductID, e.Reason)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Builder transforms raw product rows into indexable documents.
// The zero value is not usable; construct with New.
type Builder struct {
	now func() time.Time
}

// New creates a document builder using the real clock.
func New() *Builder {
	return &Builder{now: time.Now}
}

// NewWithClock creates a builder with an injected clock.
func NewWithClock(now func() time.Time) *Builder {
	return &Builder{now: now}
}

// Build validates and transforms a product row. On rejection it returns a
// *SkipError describing why the row was dropped.
func (b *Builder) Build(row domain.ProductRow) (*domain.Document, error) {
	if row.ProductID <= 0 {
		return nil, &SkipError{ProductID: row.ProductID, Reason: "non-positive product_id"}
	}

	name := NormalizeText(row.Name)
	externalID := NormalizeText(row.ExternalID)
	sku := NormalizeText(row.SKU)
	if name == "" && externalID == "" && sku == "" {
		return nil, &SkipError{ProductID: row.ProductID, Reason: "no identifying fields"}
	}

	doc := &domain.Document{
		ProductID:   row.ProductID,
		ExternalID:  externalID,
		SKU:         sku,
		Name:        name,
		Description: NormalizeText(row.Description),
		BrandID:     clampMin(row.BrandID, 0),
		BrandName:   NormalizeText(row.BrandName),
		SeriesID:    clampMin(row.SeriesID, 0),
		SeriesName:  NormalizeText(row.SeriesName),
		Unit:        NormalizeText(row.Unit),
		Dimensions:  NormalizeText(row.Dimensions),
		MinSale:     clampMin(row.MinSale, 1),
		Weight:      max(row.Weight, 0),

		PopularityScore: 0,
		InStock:         false,
		Categories:      []string{},
		CategoryIDs:     []int64{},
		Attributes:      map[string]any{},
		Images:          []string{},
		Documents:       domain.DocumentCounts{},

		CreatedAt: b.coerceTime(row.CreatedAt),
		UpdatedAt: b.coerceTime(row.UpdatedAt),
	}

	doc.Suggest = buildSuggest(doc)
	doc.SearchAll = NormalizeText(strings.Join([]string{
		doc.Name, doc.ExternalID, doc.SKU, doc.BrandName, doc.SeriesName, doc.Description,
	}, " "))

	return doc, nil
}

// NormalizeText strips ASCII control characters (treating tab/newline as
// whitespace), collapses whitespace runs to single spaces, and trims.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			sb.WriteRune(' ')
		case r < 0x20 || r == 0x7f:
			// drop other control characters
		default:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(sb.String(), " "))
}

// buildSuggest assembles the weighted completion payload from the identifying
// fields. Inputs shorter than two characters are omitted.
func buildSuggest(doc *domain.Document) []domain.SuggestEntry {
	candidates := []struct {
		input  string
		weight int
	}{
		{doc.Name, SuggestWeightName},
		{doc.ExternalID, SuggestWeightExternalID},
		{doc.SKU, SuggestWeightSKU},
		{doc.BrandName, SuggestWeightBrand},
		{doc.SeriesName, SuggestWeightSeries},
	}

	entries := make([]domain.SuggestEntry, 0, len(candidates))
	for _, c := range candidates {
		if len([]rune(c.input)) < minSuggestInputLen {
			continue
		}
		entries = append(entries, domain.SuggestEntry{
			Input:  []string{c.input},
			Weight: c.weight,
		})
	}
	return entries
}

// coerceTime renders a source timestamp as ISO-8601 UTC, falling back to the
// current time when the source value is absent.
func (b *Builder) coerceTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return b.now().UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}

func clampMin(v, floor int64) int64 {
	if v < floor {
		return floor
	}
	return v
}
