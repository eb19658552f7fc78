package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/metrics"
)

// Prometheus collectors register globally, so the package shares one set.
var testInvMetrics = metrics.NewInventoryMetrics("invtest")

type capturePublisher struct {
	mu     sync.Mutex
	events []contracts.Event
}

func (p *capturePublisher) Publish(ctx context.Context, evt contracts.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) captured() []contracts.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]contracts.Event(nil), p.events...)
}

func TestSweeperPublishesExpiredReservations(t *testing.T) {
	ctx := context.Background()
	e := NewMemoryEngine()
	base := time.Now().UTC().Add(-time.Hour)
	e.now = func() time.Time { return base }
	e.SetStock("sku-1", "main", 10)
	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, time.Minute))

	pub := &capturePublisher{}
	s := NewSweeper(e, zap.NewNop(), testInvMetrics, pub, time.Second, 100)
	s.sweepOnce(ctx)

	// The hold is returned and the expiry is announced.
	available, err := e.Available(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(10), available)

	events := pub.captured()
	require.Len(t, events, 1)
	assert.Equal(t, contracts.EventReservationExpired, events[0].EventType)
	assert.Equal(t, contracts.AggregateReservation, events[0].AggregateType)
	assert.Equal(t, "res-1", events[0].AggregateID)
	assert.Equal(t, "sku-1", events[0].Payload["product_id"])

	// Nothing due, nothing announced.
	s.sweepOnce(ctx)
	assert.Len(t, pub.captured(), 1)
}

func TestInstrumentCountsReservationOps(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryEngine()
	mem.SetStock("sku-1", "main", 10)
	e := Instrument(mem, testInvMetrics)

	okBefore := testutil.ToFloat64(testInvMetrics.Reservations.WithLabelValues("reserve", "ok"))
	failedBefore := testutil.ToFloat64(testInvMetrics.Reservations.WithLabelValues("reserve", "failed"))

	require.NoError(t, e.Reserve(ctx, "sku-1", "main", "res-1", 4, time.Minute))
	require.Error(t, e.Reserve(ctx, "sku-1", "main", "res-2", 100, time.Minute))
	require.NoError(t, e.Confirm(ctx, "res-1"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(testInvMetrics.Reservations.WithLabelValues("reserve", "ok")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(testInvMetrics.Reservations.WithLabelValues("reserve", "failed")))

	// The wrapper passes reads through untouched.
	rec, err := e.GetRecord(ctx, "sku-1", "main")
	require.NoError(t, err)
	assert.Equal(t, int32(6), rec.CurrentStock)
}
