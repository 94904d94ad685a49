package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// cartKeyPrefix namespaces cart keys in Redis.
const cartKeyPrefix = "cart:"

// RedisPersister stores each cart as a JSON array of lines under a fixed
// per-owner key. Carts never expire, so keys are written without TTL.
type RedisPersister struct {
	client *redis.Client
}

// NewRedisPersister creates a Redis-backed cart persister.
func NewRedisPersister(client *redis.Client) *RedisPersister {
	return &RedisPersister{client: client}
}

// Load implements Persister. A missing key means no cart was persisted yet.
func (p *RedisPersister) Load(ctx context.Context, ownerID string) ([]Line, error) {
	raw, err := p.client.Get(ctx, key(ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart for owner %s: %w", ownerID, err)
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("corrupt cart data for owner %s: %w", ownerID, err)
	}
	return lines, nil
}

// Save implements Persister.
func (p *RedisPersister) Save(ctx context.Context, ownerID string, lines []Line) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to serialize cart for owner %s: %w", ownerID, err)
	}
	if err := p.client.Set(ctx, key(ownerID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist cart for owner %s: %w", ownerID, err)
	}
	return nil
}

func key(ownerID string) string {
	return cartKeyPrefix + ownerID
}
