package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/domain"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

// plantSaga persists an order plus a saga record frozen mid-flight, the way a
// crash would leave them.
func plantSaga(t *testing.T, f *fixture, state State, completed []Step, paymentID string) *Record {
	t.Helper()
	ctx := context.Background()

	order := testOrder(2)
	require.NoError(t, f.orders.Create(ctx, order))

	rec := &Record{
		OrderID:        "order-1",
		Current:        StateStarted,
		ReservationIDs: []string{"res-1"},
		PaymentID:      paymentID,
	}
	require.NoError(t, f.sagas.Create(ctx, rec))

	// Walk the record to the target state through legal transitions.
	for rec.Current != state {
		require.NoError(t, rec.Transition(rec.Current+1))
	}
	rec.Completed = completed
	require.NoError(t, f.sagas.Update(ctx, rec))

	if rec.StepDone(StepReserveStock) {
		require.NoError(t, f.stock.Reserve(ctx, "sku-1", "main", "res-1", 2, time.Minute))
	}
	return rec
}

func TestRecoverResumesAfterPaymentCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plantSaga(t, f, StatePaymentCompleted,
		[]Step{StepVerifyStock, StepReserveStock, StepProcessPayment}, "pay-1")

	n, err := f.orch.Recover(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := f.sagas.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, rec.Current)

	// The payment step was already done; resuming must not charge again.
	assert.Equal(t, 0, f.payments.CaptureCalls)

	order, _ := f.orders.Get(ctx, "order-1")
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)

	stockRec, _ := f.stock.GetRecord(ctx, "sku-1", "main")
	assert.Equal(t, int32(8), stockRec.CurrentStock)
	assert.Equal(t, int32(0), stockRec.ReservedStock)
}

func TestRecoverCompensatesUnknownPaymentOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plantSaga(t, f, StatePaymentProcessing,
		[]Step{StepVerifyStock, StepReserveStock}, "")

	n, err := f.orch.Recover(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := f.sagas.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, rec.Current)

	// No payment id to refund against: flagged for an operator instead of
	// a blind refund or a blind retry.
	assert.True(t, rec.NeedsAttention)
	assert.Equal(t, 0, f.payments.CaptureCalls)
	assert.Equal(t, 0, f.payments.RefundCalls)

	// The stock hold is returned either way.
	stockRec, _ := f.stock.GetRecord(ctx, "sku-1", "main")
	assert.Equal(t, int32(10), stockRec.CurrentStock)
	assert.Equal(t, int32(0), stockRec.ReservedStock)

	assert.True(t, f.pub.has(contracts.EventOrderCancelled))
}

func TestRecoverResumesMidReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Crashed after persisting STOCK_RESERVATION but before reserving.
	plantSaga(t, f, StateStockReservation, []Step{StepVerifyStock}, "")

	n, err := f.orch.Recover(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, _ := f.sagas.Get(ctx, "order-1")
	assert.Equal(t, StateConfirmed, rec.Current)
	assert.Equal(t, 1, f.payments.CaptureCalls)
}

func TestRecoverSkipsFinishedSagas(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.Start(ctx, testOrder(1))
	require.NoError(t, err)

	n, err := f.orch.Recover(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
