package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ttl = 15 * time.Minute

func newEngine(stock int32) *MemoryEngine {
	e := NewMemoryEngine()
	e.SetStock("sku-1", "main", stock)
	return e
}

func TestReserveDecrementsAvailability(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, ttl))

	available, err := e.Available(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(6), available)

	rec, err := e.GetRecord(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(10), rec.CurrentStock)
	assert.Equal(t, int32(4), rec.ReservedStock)
}

func TestReserveInsufficientStock(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 8, ttl))
	err := e.Reserve(ctx, "sku-1", "main", "res-2", 3, ttl)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// The failed attempt must not leave a partial hold.
	rec, err := e.GetRecord(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(8), rec.ReservedStock)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)

	ids := []string{"res-a", "res-b"}
	results := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = e.Reserve(ctx, "sku-1", "main", id, 6, ttl)
		}(i, id)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrInsufficientStock):
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	rec, err := e.GetRecord(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(6), rec.ReservedStock)
	assert.GreaterOrEqual(t, rec.ReservedStock, int32(0))
	assert.LessOrEqual(t, rec.ReservedStock, rec.CurrentStock)
}

func TestReserveIdempotentOnSameID(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, ttl))
	// A re-sent request after a crash carries the same reservation id and
	// must not double the hold.
	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, ttl))

	rec, err := e.GetRecord(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(4), rec.ReservedStock)
}

func TestConfirmDeductsPermanently(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, ttl))
	require.NoError(t, e.Confirm(ctx, "res-1"))

	rec, err := e.GetRecord(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(6), rec.CurrentStock)
	assert.Equal(t, int32(0), rec.ReservedStock)

	// Confirming again is a no-op success, not a second deduction.
	require.NoError(t, e.Confirm(ctx, "res-1"))
	rec, _ = e.GetRecord(ctx, "sku-1", "main")
	assert.Equal(t, int32(6), rec.CurrentStock)

	res, err := e.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, ReservationFulfilled, res.Status)
}

func TestReleaseReturnsStock(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, ttl))
	require.NoError(t, e.Release(ctx, "res-1", "cancelled"))

	available, err := e.Available(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(10), available)

	// Releasing twice is harmless.
	require.NoError(t, e.Release(ctx, "res-1", "cancelled"))
	available, _ = e.Available(ctx, "sku-1", "main")
	assert.Equal(t, int32(10), available)
}

func TestReleaseFulfilledFails(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, ttl))
	require.NoError(t, e.Confirm(ctx, "res-1"))

	err := e.Release(ctx, "res-1", "cancelled")
	assert.ErrorIs(t, err, ErrReservationFulfilled)
}

func TestExpireDueReturnsHolds(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)
	base := time.Now().UTC()
	e.now = func() time.Time { return base }

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, time.Minute))
	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-2", 2, time.Hour))

	expired, err := e.ExpireDue(ctx, base.Add(2*time.Minute), 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "res-1", expired[0].ID)

	available, err := e.Available(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(8), available)

	res, err := e.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, ReservationExpired, res.Status)

	// Sweeping again finds nothing new.
	expired, err = e.ExpireDue(ctx, base.Add(2*time.Minute), 100)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestConfirmExpiredFails(t *testing.T) {
	ctx := context.Background()
	e := newEngine(10)
	base := time.Now().UTC()
	e.now = func() time.Time { return base }

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, time.Minute))
	_, err := e.ExpireDue(ctx, base.Add(2*time.Minute), 100)
	require.NoError(t, err)

	err = e.Confirm(ctx, "res-1")
	assert.ErrorIs(t, err, ErrReservationNotActive)
}

func TestReserveUnknownProduct(t *testing.T) {
	ctx := context.Background()
	e := NewMemoryEngine()
	err := e.Reserve(ctx, "ghost", "main", "res-1", 1, ttl)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
