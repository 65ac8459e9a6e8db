package domain

import "time"

// ProductRow is a raw product row streamed from the relational store,
// with brand and series names already joined in.
type ProductRow struct {
	ProductID   int64
	ExternalID  string
	SKU         string
	Name        string
	Description string
	BrandID     int64
	BrandName   string
	SeriesID    int64
	SeriesName  string
	Unit        string
	Dimensions  string
	MinSale     int64
	Weight      float64
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
}

// SuggestEntry is one weighted input set for the completion suggester.
type SuggestEntry struct {
	Input  []string `json:"input"`
	Weight int      `json:"weight"`
}

// DocumentCounts tracks how many attached documents of each kind a product has.
type DocumentCounts struct {
	Certificates int `json:"certificates"`
	Manuals      int `json:"manuals"`
	Drawings     int `json:"drawings"`
}

// Document is the indexable representation of a product: the source row plus
// the derived search fields. Identity is ProductID, which is also the backend
// document id.
type Document struct {
	ProductID   int64   `json:"product_id"`
	ExternalID  string  `json:"external_id"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BrandID     int64   `json:"brand_id"`
	BrandName   string  `json:"brand_name"`
	SeriesID    int64   `json:"series_id"`
	SeriesName  string  `json:"series_name"`
	Unit        string  `json:"unit"`
	Dimensions  string  `json:"dimensions"`
	MinSale     int64   `json:"min_sale"`
	Weight      float64 `json:"weight"`

	SearchAll       string         `json:"search_all"`
	Suggest         []SuggestEntry `json:"suggest"`
	PopularityScore float64        `json:"popularity_score"`
	InStock         bool           `json:"in_stock"`
	Categories      []string       `json:"categories"`
	CategoryIDs     []int64        `json:"category_ids"`
	Attributes      map[string]any `json:"attributes"`
	Images          []string       `json:"images"`
	Documents       DocumentCounts `json:"documents"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Source renders the document as the upload body. Keys whose value is an
// empty string or a nil collection are elided to reduce index size.
func (d *Document) Source() map[string]any {
	src := map[string]any{
		"product_id":       d.ProductID,
		"min_sale":         d.MinSale,
		"weight":           d.Weight,
		"popularity_score": d.PopularityScore,
		"in_stock":         d.InStock,
		"documents":        d.Documents,
		"created_at":       d.CreatedAt,
		"updated_at":       d.UpdatedAt,
	}

	putString := func(key, val string) {
		if val != "" {
			src[key] = val
		}
	}
	putString("external_id", d.ExternalID)
	putString("sku", d.SKU)
	putString("name", d.Name)
	putString("description", d.Description)
	putString("brand_name", d.BrandName)
	putString("series_name", d.SeriesName)
	putString("unit", d.Unit)
	putString("dimensions", d.Dimensions)
	putString("search_all", d.SearchAll)

	if d.BrandID > 0 {
		src["brand_id"] = d.BrandID
	}
	if d.SeriesID > 0 {
		src["series_id"] = d.SeriesID
	}
	if d.Suggest != nil {
		src["suggest"] = d.Suggest
	}
	if d.Categories != nil {
		src["categories"] = d.Categories
	}
	if d.CategoryIDs != nil {
		src["category_ids"] = d.CategoryIDs
	}
	if d.Attributes != nil {
		src["attributes"] = d.Attributes
	}
	if d.Images != nil {
		src["images"] = d.Images
	}

	return src
}
