package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/events"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

func cancelledEvent() contracts.Event {
	return contracts.NewEvent(contracts.EventOrderCancelled, contracts.AggregateOrder, "order-1", 1,
		map[string]any{"user_id": "user-1", "reason": "card declined"})
}

func TestHandlerSendsCancellationNotice(t *testing.T) {
	ctx := context.Background()
	stub := NewStub()
	h := NewHandler(stub, events.NewMemoryInbox())

	require.NoError(t, h.Handle(ctx, cancelledEvent()))
	require.Equal(t, 1, stub.Count())
	assert.Equal(t, "user-1", stub.Sends[0].Recipient)
	assert.Equal(t, "order-cancelled", stub.Sends[0].Template)
	assert.Equal(t, "order-1", stub.Sends[0].Data["order_id"])
}

func TestHandlerDedupsRedelivery(t *testing.T) {
	ctx := context.Background()
	stub := NewStub()
	h := NewHandler(stub, events.NewMemoryInbox())

	evt := cancelledEvent()
	require.NoError(t, h.Handle(ctx, evt))
	require.NoError(t, h.Handle(ctx, evt))
	assert.Equal(t, 1, stub.Count())
}

func TestHandlerRetriesAfterFailedSend(t *testing.T) {
	ctx := context.Background()
	stub := NewStub()
	h := NewHandler(stub, events.NewMemoryInbox())

	evt := cancelledEvent()
	stub.FailWith(errors.New("smtp down"))
	require.Error(t, h.Handle(ctx, evt))

	// The failed send must not count as processed: the redelivered event
	// goes out.
	stub.FailWith(nil)
	require.NoError(t, h.Handle(ctx, evt))
	assert.Equal(t, 1, stub.Count())
}

func TestHandlerRejectsEventWithoutUser(t *testing.T) {
	ctx := context.Background()
	stub := NewStub()
	h := NewHandler(stub, events.NewMemoryInbox())

	evt := contracts.NewEvent(contracts.EventOrderConfirmed, contracts.AggregateOrder, "order-1", 1, nil)
	assert.Error(t, h.Handle(ctx, evt))
	assert.Equal(t, 0, stub.Count())
}

func TestHandlerIgnoresMidSagaEvents(t *testing.T) {
	h := NewHandler(NewStub(), events.NewMemoryInbox())
	assert.True(t, h.CanHandle(contracts.EventOrderConfirmed))
	assert.True(t, h.CanHandle(contracts.EventOrderCancelled))
	assert.False(t, h.CanHandle(contracts.EventStockReserved))
}
