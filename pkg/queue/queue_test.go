package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(time.Minute)

	first := NewJob("step", "order-1", []byte("a"))
	second := NewJob("step", "order-1", []byte("b"))
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1, got.DeliveryCount)

	got2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got2.ID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryAckRemoves(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(time.Minute)
	job := NewJob("step", "order-1", nil)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, got.ID))

	assert.Equal(t, 0, q.Len())
	assert.ErrorIs(t, q.Ack(ctx, got.ID), ErrUnknownLease)
}

func TestMemoryNackDelaysRedelivery(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(time.Minute)
	now := time.Now()
	q.now = func() time.Time { return now }

	job := NewJob("step", "order-1", nil)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, got.ID, 10*time.Second))

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	now = now.Add(11 * time.Second)
	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 2, got.DeliveryCount)
}

func TestMemoryLeaseExpiryRedelivers(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(5 * time.Second)
	now := time.Now()
	q.now = func() time.Time { return now }

	job := NewJob("step", "order-1", nil)
	require.NoError(t, q.Enqueue(ctx, job))

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// Lease still live: nothing visible.
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	now = now.Add(6 * time.Second)
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 2, got.DeliveryCount)
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	q := NewMemory(time.Minute)
	q.Close()
	assert.ErrorIs(t, q.Enqueue(ctx, NewJob("step", "k", nil)), ErrClosed)
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
