package saga

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/domain"
)

// Recover sweeps unfinished sagas after a restart and drives each to a
// terminal state. Steps are idempotent, so re-running one that may have
// half-happened is safe, with one exception: an interrupted payment capture
// has an unknown outcome, and the only safe move is to compensate as if it
// succeeded rather than risk charging the customer twice.
func (o *Orchestrator) Recover(ctx context.Context, limit int) (int, error) {
	recs, err := o.sagas.ListUnfinished(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := o.resume(ctx, rec); err != nil {
			o.log.Error("saga recovery failed",
				zap.String("order_id", rec.OrderID), zap.Error(err))
		}
	}
	return len(recs), nil
}

func (o *Orchestrator) resume(ctx context.Context, rec *Record) error {
	order, err := o.orders.Get(ctx, domain.OrderID(rec.OrderID))
	if err != nil {
		return err
	}
	log := o.log.With(zap.String("order_id", rec.OrderID))
	log.Info("resuming saga", zap.String("state", rec.Current.String()))

	o.sm.InFlight.Inc()
	defer o.sm.InFlight.Dec()

	if rec.Current == StatePaymentProcessing && !rec.StepDone(StepProcessPayment) {
		// The capture was in flight when we died, so assume the provider
		// took the money and compensate. With no payment id to refund
		// against, the refund degrades to an operator flag, never a blind
		// call and never a blind retry of the charge.
		rec.Completed = append(rec.Completed, StepProcessPayment)
		_, err := o.compensate(ctx, rec, order,
			errors.New("payment outcome unknown after restart"))
		return err
	}
	_, err = o.runForward(ctx, rec, order)
	return err
}
