package document

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stroymart/catalog-search/internal/domain"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder() *Builder {
	return NewWithClock(func() time.Time { return testNow })
}

func TestBuild_ValidRow(t *testing.T) {
	b := newTestBuilder()
	created := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)

	doc, err := b.Build(domain.ProductRow{
		ProductID:   42,
		ExternalID:  "AB-123",
		SKU:         "S1",
		Name:        "Hammer drill",
		Description: "Powerful  hammer   drill",
		BrandID:     7,
		BrandName:   "Makita",
		SeriesID:    3,
		SeriesName:  "HR",
		MinSale:     2,
		Weight:      2.9,
		CreatedAt:   &created,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), doc.ProductID)
	assert.Equal(t, "Hammer drill", doc.Name)
	assert.Equal(t, "Powerful hammer drill", doc.Description)
	assert.Equal(t, "Hammer drill AB-123 S1 Makita HR Powerful hammer drill", doc.SearchAll)
	assert.Equal(t, "2024-03-15T08:30:00Z", doc.CreatedAt)
	assert.Equal(t, "2025-06-01T12:00:00Z", doc.UpdatedAt, "nil timestamp falls back to now")
}

func TestBuild_RejectsNonPositiveID(t *testing.T) {
	b := newTestBuilder()

	_, err := b.Build(domain.ProductRow{ProductID: 0, Name: "Widget"})
	var skip *SkipError
	require.True(t, errors.As(err, &skip))
	assert.Contains(t, skip.Reason, "product_id")
}

func TestBuild_RejectsUnidentifiableRow(t *testing.T) {
	b := newTestBuilder()

	_, err := b.Build(domain.ProductRow{ProductID: 5, Description: "no identity"})
	var skip *SkipError
	require.True(t, errors.As(err, &skip))
	assert.Contains(t, skip.Reason, "identifying")
}

func TestBuild_OneIdentifyingFieldSuffices(t *testing.T) {
	b := newTestBuilder()

	for _, row := range []domain.ProductRow{
		{ProductID: 1, Name: "Widget"},
		{ProductID: 2, ExternalID: "EX-1"},
		{ProductID: 3, SKU: "SKU-1"},
	} {
		_, err := b.Build(row)
		assert.NoError(t, err, "row %+v", row)
	}
}

func TestBuild_ClampsNumerics(t *testing.T) {
	b := newTestBuilder()

	doc, err := b.Build(domain.ProductRow{
		ProductID: 9,
		Name:      "Clamp",
		BrandID:   -3,
		SeriesID:  -1,
		MinSale:   0,
		Weight:    -2.5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), doc.BrandID)
	assert.Equal(t, int64(0), doc.SeriesID)
	assert.Equal(t, int64(1), doc.MinSale)
	assert.Equal(t, 0.0, doc.Weight)
}

func TestBuild_SuggestWeights(t *testing.T) {
	b := newTestBuilder()

	doc, err := b.Build(domain.ProductRow{
		ProductID:  1,
		Name:       "Hammer drill",
		ExternalID: "AB-123",
		SKU:        "S1", // two chars, kept
		BrandName:  "Makita",
		SeriesName: "X", // single char, omitted
	})
	require.NoError(t, err)

	require.Len(t, doc.Suggest, 4)
	assert.Equal(t, []string{"Hammer drill"}, doc.Suggest[0].Input)
	assert.Equal(t, SuggestWeightName, doc.Suggest[0].Weight)
	assert.Equal(t, SuggestWeightExternalID, doc.Suggest[1].Weight)
	assert.Equal(t, SuggestWeightSKU, doc.Suggest[2].Weight)
	assert.Equal(t, SuggestWeightBrand, doc.Suggest[3].Weight)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hammer drill", "Hammer drill"},
		{"collapse runs", "a  b\t\tc", "a b c"},
		{"newlines become spaces", "a\nb\r\nc", "a b c"},
		{"trim", "  padded  ", "padded"},
		{"control chars stripped", "a\x00b\x1fc", "abc"},
		{"empty", "", ""},
		{"only whitespace", " \t\n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestSource_ElidesEmptyFields(t *testing.T) {
	b := newTestBuilder()

	doc, err := b.Build(domain.ProductRow{ProductID: 1, Name: "Widget"})
	require.NoError(t, err)

	src := doc.Source()
	assert.Equal(t, int64(1), src["product_id"])
	assert.Equal(t, "Widget", src["name"])

	for _, key := range []string{"external_id", "sku", "description", "brand_name", "series_name", "unit", "dimensions", "brand_id", "series_id"} {
		_, present := src[key]
		assert.False(t, present, "empty field %q should be elided", key)
	}

	// Defaults stay present.
	assert.Equal(t, false, src["in_stock"])
	assert.Equal(t, 0.0, src["popularity_score"])
	assert.Contains(t, src, "documents")
	assert.Contains(t, src, "suggest")
}

func TestBuild_Idempotent(t *testing.T) {
	b := newTestBuilder()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	row := domain.ProductRow{
		ProductID:  10,
		Name:       "Angle grinder",
		ExternalID: "AG-900",
		BrandName:  "Bosch",
		CreatedAt:  &created,
		UpdatedAt:  &created,
	}

	first, err := b.Build(row)
	require.NoError(t, err)

	// Feed the normalized output back through the builder.
	roundTrip := domain.ProductRow{
		ProductID:  first.ProductID,
		Name:       first.Name,
		ExternalID: first.ExternalID,
		BrandName:  first.BrandName,
		CreatedAt:  &created,
		UpdatedAt:  &created,
	}
	second, err := b.Build(roundTrip)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
