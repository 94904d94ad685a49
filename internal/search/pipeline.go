// Package search holds the storefront search machinery: dispatching queries
// to the retrieval backend and the filter/sort/paginate pipeline applied to
// raw result lists.
package search

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/visushop/storefront/internal/catalog"
)

// Mode is the active search mode. The category filter applies only to text
// searches; image and hybrid results carry no reliable category axis at the
// UI layer, so they are deliberately never category-filtered.
type Mode string

const (
	ModeText   Mode = "text"
	ModeImage  Mode = "image"
	ModeHybrid Mode = "hybrid"
)

// SortKey selects the total order applied to filtered results.
type SortKey string

const (
	SortRelevance SortKey = "similarity"
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
	SortName      SortKey = "name"
)

// ParseSortKey maps a user-supplied sort parameter to a SortKey, falling back
// to relevance for unknown or empty values.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortPriceAsc, SortPriceDesc, SortName:
		return SortKey(s)
	default:
		return SortRelevance
	}
}

// DefaultPageSize is the page size of the dedicated search view. The home
// view does not paginate and shows the full filtered set.
const DefaultPageSize = 12

// FilterState is the set of user-chosen result constraints. Empty selectors
// mean "no constraint". Price bounds are kept as the raw user text; a
// non-numeric bound is treated as absent, never as an error. Min > max is not
// rejected either: inverted bounds simply shrink the result set.
type FilterState struct {
	Category string
	Color    string
	MinPrice string
	MaxPrice string
	Sort     SortKey
}

// Apply runs the filter and sort stages over a raw result list. It is a pure
// function: the input slice is never mutated, and identical inputs yield
// identical output. The sort is stable, so ties keep their pre-sort order.
func Apply(items []catalog.Product, mode Mode, f FilterState) []catalog.Product {
	filtered := make([]catalog.Product, 0, len(items))

	minPrice, hasMin := parsePriceBound(f.MinPrice)
	maxPrice, hasMax := parsePriceBound(f.MaxPrice)
	colorWanted := strings.ToLower(strings.TrimSpace(f.Color))

	for _, p := range items {
		if f.Category != "" && mode == ModeText && p.Category != f.Category {
			continue
		}
		if colorWanted != "" && strings.ToLower(p.Color) != colorWanted {
			continue
		}
		if hasMin && p.Price.Cmp(minPrice) < 0 {
			continue
		}
		if hasMax && p.Price.Cmp(maxPrice) > 0 {
			continue
		}
		filtered = append(filtered, p)
	}

	sortResults(filtered, f.Sort)
	return filtered
}

// Paginate slices a filtered list into the 1-based page of the given size.
// Total pages is at least 1 even for an empty list; a page beyond the end
// yields an empty slice, not an error.
func Paginate(items []catalog.Product, page, pageSize int) ([]catalog.Product, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	totalPages := (len(items) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []catalog.Product{}, totalPages
	}
	end := min(start+pageSize, len(items))
	return slices.Clone(items[start:end]), totalPages
}

func sortResults(items []catalog.Product, key SortKey) {
	switch key {
	case SortPriceAsc:
		slices.SortStableFunc(items, func(a, b catalog.Product) int {
			return a.Price.Cmp(b.Price)
		})
	case SortPriceDesc:
		slices.SortStableFunc(items, func(a, b catalog.Product) int {
			return b.Price.Cmp(a.Price)
		})
	case SortName:
		// The catalog is French; collation keeps accented names in
		// dictionary order instead of byte order.
		collator := collate.New(language.French)
		slices.SortStableFunc(items, func(a, b catalog.Product) int {
			return collator.CompareString(a.Name, b.Name)
		})
	default:
		// Relevance: similarity descending, missing scores sink to the
		// bottom as zero.
		slices.SortStableFunc(items, func(a, b catalog.Product) int {
			sa, sb := score(a), score(b)
			switch {
			case sa > sb:
				return -1
			case sa < sb:
				return 1
			default:
				return 0
			}
		})
	}
}

func score(p catalog.Product) float64 {
	if p.SimilarityScore == nil {
		return 0
	}
	return *p.SimilarityScore
}

func parsePriceBound(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, false
	}
	bound, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return bound, true
}
