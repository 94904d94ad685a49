// Package catalog is the HTTP client for the external retrieval backend. It
// wraps every REST endpoint the storefront consumes and normalizes transport
// failures into a small set of typed errors.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ID is an opaque product identifier. The backend serializes IDs as bare
// numbers, but nothing in the storefront depends on them being numeric.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty product id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(bytes.TrimSpace(data))
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Product is a catalog entry as returned by the backend. SimilarityScore is
// present only on search results; it reflects rank-order relevance within a
// single query and is not calibrated across queries.
type Product struct {
	ID              ID              `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	Description     string          `json:"description,omitempty"`
	Brand           string          `json:"brand,omitempty"`
	Color           string          `json:"color,omitempty"`
	ImagePath       string          `json:"image_path"`
	ImageURL        string          `json:"image_url,omitempty"`
	SimilarityScore *float64        `json:"similarity_score,omitempty"`
}

// SearchResult is the normalized shape of every search-like response.
// Results is never nil, so consumers never branch on absence.
type SearchResult struct {
	Results   []Product `json:"results"`
	Count     int       `json:"count"`
	QueryTime *float64  `json:"query_time,omitempty"`
}

// Category is one entry of the category strip: a category name plus a
// representative image.
type Category struct {
	Category  string `json:"category"`
	ImagePath string `json:"image_path"`
	ImageURL  string `json:"image_url,omitempty"`
}

// ProductFilters are the server-side filters of the catalog listing endpoint.
// Zero values mean "no constraint".
type ProductFilters struct {
	Category string
	MinPrice string
	MaxPrice string
	Brand    string
	Color    string
	Limit    int
	Offset   int
}

// ImageFile is an uploaded query image, buffered in memory so a request can be
// replayed on retry.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}
