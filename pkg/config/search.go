package config

import (
	"fmt"
	"strings"
)

// SearchConfig holds the storefront-side search defaults. Limit bounds text
// search, TopK and MinSimilarity are forwarded to the image/hybrid endpoints,
// PageSize drives pagination of the filtered result set.
type SearchConfig struct {
	Limit         int     `koanf:"limit"`
	TopK          int     `koanf:"topK"`
	MinSimilarity float64 `koanf:"minSimilarity"`
	PageSize      int     `koanf:"pageSize"`
}

// String returns a string representation of the search configuration.
func (c *SearchConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Search ---\n")
	b.WriteString(fmt.Sprintf("  limit: %d\n", c.Limit))
	b.WriteString(fmt.Sprintf("  topK: %d\n", c.TopK))
	b.WriteString(fmt.Sprintf("  minSimilarity: %.2f\n", c.MinSimilarity))
	b.WriteString(fmt.Sprintf("  pageSize: %d\n", c.PageSize))
	return b.String()
}

func (c *SearchConfig) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("search limit must be greater than 0")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("search topK must be greater than 0")
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("search minSimilarity must be within [0, 1]")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("search pageSize must be greater than 0")
	}
	return nil
}
