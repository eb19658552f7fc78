package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginClaimsKey(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	res, err := g.Begin(ctx, "user-1|key-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, Proceed, res.Decision)
}

func TestBeginConflictsWhileInFlight(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	_, err := g.Begin(ctx, "user-1|key-1", "order-1")
	require.NoError(t, err)

	res, err := g.Begin(ctx, "user-1|key-1", "order-2")
	require.NoError(t, err)
	assert.Equal(t, Conflict, res.Decision)
	assert.Equal(t, "order-1", res.OrderID)
}

func TestBeginReplaysCompletedOutcome(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	_, err := g.Begin(ctx, "user-1|key-1", "order-1")
	require.NoError(t, err)

	out := Outcome{OrderID: "order-1", Status: "CONFIRMED", CompletedAt: time.Now().UTC()}
	require.NoError(t, g.Complete(ctx, "user-1|key-1", out))

	res, err := g.Begin(ctx, "user-1|key-1", "order-2")
	require.NoError(t, err)
	assert.Equal(t, Replay, res.Decision)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, "order-1", res.Outcome.OrderID)
	assert.Equal(t, "CONFIRMED", res.Outcome.Status)
}

func TestSameKeyDifferentUsersDoNotCollide(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	_, err := g.Begin(ctx, "user-1|key-1", "order-1")
	require.NoError(t, err)

	res, err := g.Begin(ctx, "user-2|key-1", "order-2")
	require.NoError(t, err)
	assert.Equal(t, Proceed, res.Decision)
}

func TestCompleteWithoutBegin(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()
	err := g.Complete(ctx, "ghost", Outcome{})
	assert.ErrorIs(t, err, ErrCompleteWithoutBegin)
}

func TestKeyFromRequest(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/checkout", nil)
	require.NoError(t, err)
	assert.Empty(t, KeyFromRequest(r))

	r.Header.Set(Header, "  key-1  ")
	assert.Equal(t, "key-1", KeyFromRequest(r))
}
