package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visushop/storefront/internal/catalog"
)

func newTestManager() (*Manager, *MemoryPersister) {
	persister := NewMemoryPersister()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(persister, logger), persister
}

func line(id, name string, price float64) Line {
	return Line{ProductID: catalog.ID(id), Name: name, Price: decimal.NewFromFloat(price)}
}

func Test_Store_AddSameProductTwice_IncrementsQuantity(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	store := manager.ForOwner(ctx, "owner-1")

	// when: the same product is added twice
	qty, err := store.Add(ctx, line("1", "Peluche ours", 19.99))
	require.NoError(t, err)
	assert.Equal(t, 1, qty)

	qty, err = store.Add(ctx, line("1", "Peluche ours", 19.99))
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	// then: one line, quantity 2, count 2
	snapshot := store.Snapshot()
	require.Len(t, snapshot.Lines, 1)
	assert.Equal(t, 2, snapshot.Lines[0].Quantity)
	assert.Equal(t, 2, snapshot.Count)
	assert.True(t, snapshot.Total.Equal(decimal.NewFromFloat(39.98)), "total was %s", snapshot.Total)
}

func Test_Store_PreservesInsertionOrder(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	store := manager.ForOwner(ctx, "owner-1")

	_, err := store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)
	_, err = store.Add(ctx, line("2", "Ballon", 5))
	require.NoError(t, err)
	_, err = store.Add(ctx, line("3", "Livre", 9.99))
	require.NoError(t, err)
	// bumping an existing line must not move it
	_, err = store.Add(ctx, line("2", "Ballon", 5))
	require.NoError(t, err)

	snapshot := store.Snapshot()
	require.Len(t, snapshot.Lines, 3)
	assert.Equal(t, catalog.ID("1"), snapshot.Lines[0].ProductID)
	assert.Equal(t, catalog.ID("2"), snapshot.Lines[1].ProductID)
	assert.Equal(t, catalog.ID("3"), snapshot.Lines[2].ProductID)
	assert.Equal(t, 4, snapshot.Count)
}

func Test_Store_RemoveAbsentProduct_IsNoOp(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	store := manager.ForOwner(ctx, "owner-1")

	_, err := store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)

	// when
	err = store.Remove(ctx, "does-not-exist")

	// then: no error, cart unchanged
	require.NoError(t, err)
	snapshot := store.Snapshot()
	require.Len(t, snapshot.Lines, 1)
	assert.Equal(t, 1, snapshot.Count)
}

func Test_Store_RemoveDeletesWholeLine(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	store := manager.ForOwner(ctx, "owner-1")

	_, err := store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)
	_, err = store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)

	// when: removing drops the line regardless of quantity
	require.NoError(t, store.Remove(ctx, "1"))

	snapshot := store.Snapshot()
	assert.Empty(t, snapshot.Lines)
	assert.Equal(t, 0, snapshot.Count)
	assert.True(t, snapshot.Total.IsZero())
}

func Test_Store_Clear(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	store := manager.ForOwner(ctx, "owner-1")

	_, err := store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)
	_, err = store.Add(ctx, line("2", "Ballon", 5))
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))

	snapshot := store.Snapshot()
	assert.NotNil(t, snapshot.Lines)
	assert.Empty(t, snapshot.Lines)
	assert.Equal(t, 0, snapshot.Count)
}

func Test_Store_SnapshotTotals(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	store := manager.ForOwner(ctx, "owner-1")

	// given: 2 x 19.99 + 1 x 5.00
	_, err := store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)
	_, err = store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)
	_, err = store.Add(ctx, line("2", "Ballon", 5))
	require.NoError(t, err)

	snapshot := store.Snapshot()
	assert.Equal(t, 3, snapshot.Count)
	assert.True(t, snapshot.Total.Equal(decimal.NewFromFloat(44.98)), "total was %s", snapshot.Total)
}

func Test_Store_PersistsAcrossManagers(t *testing.T) {
	// given: a cart persisted by one process lifetime
	persister := NewMemoryPersister()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	first := NewManager(persister, logger).ForOwner(ctx, "owner-1")
	_, err := first.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)
	_, err = first.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)

	// when: a fresh manager loads the same owner
	second := NewManager(persister, logger).ForOwner(ctx, "owner-1")

	// then: lines, quantities and snapshots all survive the round-trip
	snapshot := second.Snapshot()
	require.Len(t, snapshot.Lines, 1)
	assert.Equal(t, "Peluche", snapshot.Lines[0].Name)
	assert.Equal(t, 2, snapshot.Lines[0].Quantity)
	assert.True(t, snapshot.Lines[0].Price.Equal(decimal.NewFromFloat(19.99)))
}

func Test_Store_CorruptPersistedData_FallsBackToEmptyCart(t *testing.T) {
	manager, persister := newTestManager()
	persister.Put("owner-1", []byte(`{definitely not json`))
	ctx := context.Background()

	// when
	store := manager.ForOwner(ctx, "owner-1")

	// then: recovery, not an error
	snapshot := store.Snapshot()
	assert.Empty(t, snapshot.Lines)
	assert.Equal(t, 0, snapshot.Count)

	// and the cart is usable again
	_, err := store.Add(ctx, line("1", "Peluche", 19.99))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())
}

func Test_Store_FailedPersistRollsBack(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	failing := &failingPersister{}
	ctx := context.Background()
	store := NewManager(failing, logger).ForOwner(ctx, "owner-1")

	// when: the very first write fails
	_, err := store.Add(ctx, line("1", "Peluche", 19.99))

	// then: the in-memory cart did not drift from durable state
	require.Error(t, err)
	assert.Equal(t, 0, store.Count())
}

func Test_Manager_ReturnsSameStorePerOwner(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	a := manager.ForOwner(ctx, "owner-1")
	b := manager.ForOwner(ctx, "owner-1")
	c := manager.ForOwner(ctx, "owner-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

type failingPersister struct{}

func (p *failingPersister) Load(context.Context, string) ([]Line, error) {
	return nil, nil
}

func (p *failingPersister) Save(context.Context, string, []Line) error {
	return errors.New("storage unavailable")
}
