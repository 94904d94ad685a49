package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Persister is the durable storage behind a cart store. Save always writes
// the full line collection under the owner's fixed key; Load returns
// (nil, nil) when nothing was persisted yet.
type Persister interface {
	Load(ctx context.Context, ownerID string) ([]Line, error)
	Save(ctx context.Context, ownerID string, lines []Line) error
}

// MemoryPersister keeps serialized carts in a map. It goes through the same
// JSON round-trip as the Redis persister so tests exercise the real
// serialization path.
type MemoryPersister struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{carts: make(map[string][]byte)}
}

// Load implements Persister.
func (p *MemoryPersister) Load(_ context.Context, ownerID string) ([]Line, error) {
	p.mu.RLock()
	raw, ok := p.carts[ownerID]
	p.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("corrupt cart data for owner %s: %w", ownerID, err)
	}
	return lines, nil
}

// Save implements Persister.
func (p *MemoryPersister) Save(_ context.Context, ownerID string, lines []Line) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to serialize cart for owner %s: %w", ownerID, err)
	}
	p.mu.Lock()
	p.carts[ownerID] = raw
	p.mu.Unlock()
	return nil
}

// Put stores raw bytes under an owner's key, bypassing serialization. Test
// hook for corrupt-data scenarios.
func (p *MemoryPersister) Put(ownerID string, raw []byte) {
	p.mu.Lock()
	p.carts[ownerID] = raw
	p.mu.Unlock()
}
