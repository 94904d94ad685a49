package cart

import (
	"context"
	"log/slog"
	"sync"
)

// Manager owns one Store per session for the lifetime of the process. It is
// the single provider of cart state; nothing else writes cart lines.
type Manager struct {
	mu        sync.Mutex
	persister Persister
	logger    *slog.Logger
	stores    map[string]*Store
}

// NewManager creates a cart manager backed by the given persister.
func NewManager(persister Persister, logger *slog.Logger) *Manager {
	return &Manager{
		persister: persister,
		logger:    logger,
		stores:    make(map[string]*Store),
	}
}

// ForOwner returns the owner's cart store, loading it from the persister on
// first access.
func (m *Manager) ForOwner(ctx context.Context, ownerID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	store, ok := m.stores[ownerID]
	if !ok {
		store = newStore(ctx, ownerID, m.persister, m.logger)
		m.stores[ownerID] = store
	}
	return store
}
