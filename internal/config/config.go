package config

import (
	"fmt"
	"strings"

	"github.com/visushop/storefront/pkg/config"
	"github.com/visushop/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer config.HTTPConfig     `koanf:"server"`
	Backend    config.BackendConfig  `koanf:"backend"`
	Redis      config.RedisConfig    `koanf:"redis"`
	Search     config.SearchConfig   `koanf:"search"`
	Log        config.LogConfig      `koanf:"log"`
	PProf      config.PProfConfig    `koanf:"pprof"`
	Shutdown   config.ShutdownConfig `koanf:"shutdown"`
}

func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Server Configuration ---\n")
	b.WriteString(fmt.Sprintf("  server.port: %d\n", c.HTTPServer.Port))
	b.WriteString(fmt.Sprintf("  server.maxHeaderBytes: %d\n", c.HTTPServer.MaxHeaderBytes))
	b.WriteString(fmt.Sprintf("  server.timeout.read: %v\n", c.HTTPServer.Timeout.Read))
	b.WriteString(fmt.Sprintf("  server.timeout.write: %v\n", c.HTTPServer.Timeout.Write))
	b.WriteString(fmt.Sprintf("  server.timeout.idle: %v\n", c.HTTPServer.Timeout.Idle))
	b.WriteString(fmt.Sprintf("  server.timeout.readHeader: %v\n", c.HTTPServer.Timeout.ReadHeader))

	b.WriteString("\n--- Backend Configuration ---\n")
	b.WriteString(fmt.Sprintf("  backend.url: %s\n", c.Backend.URL))
	b.WriteString(fmt.Sprintf("  backend.metaTimeout: %v\n", c.Backend.MetaTimeout))
	b.WriteString(fmt.Sprintf("  backend.imageTimeout: %v\n", c.Backend.ImageTimeout))
	b.WriteString(fmt.Sprintf("  backend.maxRetries: %d\n", c.Backend.MaxRetries))

	b.WriteString("\n--- Redis Configuration ---\n")
	b.WriteString(fmt.Sprintf("  redis.addr: %s\n", c.Redis.Addr))
	b.WriteString(fmt.Sprintf("  redis.db: %d\n", c.Redis.DB))
	b.WriteString(fmt.Sprintf("  redis.connectTimeout: %v\n", c.Redis.ConnectTimeout))

	b.WriteString("\n--- Search Configuration ---\n")
	b.WriteString(fmt.Sprintf("  search.limit: %d\n", c.Search.Limit))
	b.WriteString(fmt.Sprintf("  search.topK: %d\n", c.Search.TopK))
	b.WriteString(fmt.Sprintf("  search.minSimilarity: %.2f\n", c.Search.MinSimilarity))
	b.WriteString(fmt.Sprintf("  search.pageSize: %d\n", c.Search.PageSize))

	b.WriteString("\n--- Observability & Logging ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))
	b.WriteString(fmt.Sprintf("  pprof.enabled: %t\n", c.PProf.Enabled))
	b.WriteString(fmt.Sprintf("  pprof.address: %s\n", c.PProf.Addr))

	b.WriteString("\n--- Application Behavior ---\n")
	b.WriteString(fmt.Sprintf("  shutdown.timeout: %s\n", c.Shutdown.Timeout))

	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if err := c.HTTPServer.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.PProf.Validate(); err != nil {
		return err
	}
	if err := c.Shutdown.Validate(); err != nil {
		return err
	}
	return nil
}
