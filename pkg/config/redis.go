package config

import (
	"fmt"
	"strings"
	"time"
)

type RedisConfig struct {
	Addr           string        `koanf:"addr"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"`
	ConnectTimeout time.Duration `koanf:"connectTimeout"`
}

// String returns a string representation of the Redis configuration.
func (c *RedisConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Redis ---\n")
	b.WriteString(fmt.Sprintf("  addr: %s\n", c.Addr))
	b.WriteString(fmt.Sprintf("  db: %d\n", c.DB))
	b.WriteString(fmt.Sprintf("  connectTimeout: %v\n", c.ConnectTimeout))
	return b.String()
}

func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis address is not configured")
	}
	if c.DB < 0 {
		return fmt.Errorf("invalid redis db index: %d", c.DB)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("redis connect timeout is not configured")
	}
	return nil
}
