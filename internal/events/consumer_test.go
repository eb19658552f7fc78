package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

func TestConsumerRetriesBeforeAdvancing(t *testing.T) {
	h := newRecordingHandler("all")
	c := NewConsumer(nil, []Handler{h}, zap.NewNop())
	c.retryDelay = time.Millisecond

	evt := contracts.NewEvent(contracts.EventOrderCancelled, contracts.AggregateOrder, "order-1", 1,
		map[string]any{"user_id": "user-1"})
	h.failNext(evt.EventID, 2)

	c.process(context.Background(), evt)
	require.Len(t, h.events(), 1)
	assert.Equal(t, evt.EventID, h.events()[0].EventID)
}

func TestConsumerDropsPoisonEvent(t *testing.T) {
	h := newRecordingHandler("all")
	c := NewConsumer(nil, []Handler{h}, zap.NewNop())
	c.retryDelay = time.Millisecond

	evt := contracts.NewEvent(contracts.EventOrderCancelled, contracts.AggregateOrder, "order-1", 1, nil)
	h.failNext(evt.EventID, 1000)

	// Bounded attempts: the call returns instead of spinning forever.
	c.process(context.Background(), evt)
	assert.Empty(t, h.events())
}
