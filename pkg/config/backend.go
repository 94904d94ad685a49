package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// BackendConfig describes the external retrieval backend. MetaTimeout applies
// to catalog and text-search calls, ImageTimeout to image-bearing calls, where
// feature extraction makes the backend noticeably slower.
type BackendConfig struct {
	URL          string        `koanf:"url"`
	MetaTimeout  time.Duration `koanf:"metaTimeout"`
	ImageTimeout time.Duration `koanf:"imageTimeout"`
	MaxRetries   int           `koanf:"maxRetries"`
}

// String returns a string representation of the backend configuration.
func (c *BackendConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Backend ---\n")
	b.WriteString(fmt.Sprintf("  url: %s\n", c.URL))
	b.WriteString(fmt.Sprintf("  metaTimeout: %v\n", c.MetaTimeout))
	b.WriteString(fmt.Sprintf("  imageTimeout: %v\n", c.ImageTimeout))
	b.WriteString(fmt.Sprintf("  maxRetries: %d\n", c.MaxRetries))
	return b.String()
}

func (c *BackendConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("backend URL is not configured")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid backend URL %q: %w", c.URL, err)
	}
	if c.MetaTimeout <= 0 {
		return fmt.Errorf("backend meta timeout is not configured")
	}
	if c.ImageTimeout <= 0 {
		return fmt.Errorf("backend image timeout is not configured")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("backend max retries must not be negative")
	}
	return nil
}
