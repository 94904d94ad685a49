// Package cart implements the per-session shopping cart: an insertion-ordered
// collection of denormalized lines, one per product, persisted in full on
// every mutation.
package cart

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/visushop/storefront/internal/catalog"
)

// Line is one cart row. Name, price and image path are snapshots taken at
// add-time, not live-linked to the catalog.
type Line struct {
	ProductID catalog.ID      `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImagePath string          `json:"image_path"`
	Quantity  int             `json:"quantity"`
}

// Snapshot is a consistent read of the cart with its derived totals. The
// totals are always recomputed from the lines, never stored separately.
type Snapshot struct {
	Lines []Line          `json:"lines"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// Store is a single-writer cart for one owner. All mutations run under the
// mutex and persist the full line collection before returning; a failed
// persist rolls the in-memory state back so memory and durable state never
// drift apart.
type Store struct {
	mu        sync.Mutex
	ownerID   string
	lines     []Line
	persister Persister
	logger    *slog.Logger
}

// newStore loads the owner's cart from the persister. Absent or corrupt
// persisted data falls back to an empty cart; that is a recovery, not an
// error.
func newStore(ctx context.Context, ownerID string, persister Persister, logger *slog.Logger) *Store {
	s := &Store{
		ownerID:   ownerID,
		persister: persister,
		logger:    logger.With("component", "cart", "owner", ownerID),
	}
	lines, err := persister.Load(ctx, ownerID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load persisted cart, starting empty", "error", err)
		return s
	}
	s.lines = lines
	return s
}

// Add puts a product in the cart. An existing line for the same product id
// has its quantity incremented instead of a duplicate line being created.
// Returns the line's new quantity.
func (s *Store) Add(ctx context.Context, product Line) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := slices.Clone(s.lines)
	quantity := 1
	found := false
	for i := range s.lines {
		if s.lines[i].ProductID == product.ProductID {
			s.lines[i].Quantity++
			quantity = s.lines[i].Quantity
			found = true
			break
		}
	}
	if !found {
		s.lines = append(s.lines, Line{
			ProductID: product.ProductID,
			Name:      product.Name,
			Price:     product.Price,
			ImagePath: product.ImagePath,
			Quantity:  1,
		})
	}

	if err := s.persist(ctx); err != nil {
		s.lines = prev
		return 0, err
	}
	return quantity, nil
}

// Remove deletes the line for the given product id. Removing an absent id is
// a no-op, not an error.
func (s *Store) Remove(ctx context.Context, productID catalog.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.lines, func(l Line) bool { return l.ProductID == productID })
	if idx < 0 {
		return nil
	}
	prev := slices.Clone(s.lines)
	s.lines = append(s.lines[:idx:idx], s.lines[idx+1:]...)

	if err := s.persist(ctx); err != nil {
		s.lines = prev
		return err
	}
	return nil
}

// Clear empties the cart unconditionally.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.lines
	s.lines = nil

	if err := s.persist(ctx); err != nil {
		s.lines = prev
		return err
	}
	return nil
}

// Count is the derived total item count: the sum of all line quantities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countOf(s.lines)
}

// Snapshot returns the lines in insertion order with the derived count and
// total price.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := slices.Clone(s.lines)
	if lines == nil {
		lines = []Line{}
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return Snapshot{
		Lines: lines,
		Count: countOf(lines),
		Total: total,
	}
}

func (s *Store) persist(ctx context.Context) error {
	lines := s.lines
	if lines == nil {
		lines = []Line{}
	}
	return s.persister.Save(ctx, s.ownerID, lines)
}

func countOf(lines []Line) int {
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}
