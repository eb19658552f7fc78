package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/domain"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/events"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/idempotency"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/inventory"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/notification"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/payment"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/metrics"
)

const defaultPaymentMethod = "card"

// Result is what a submission (or a replay of one) resolves to.
type Result struct {
	OrderID  string
	Status   string
	Reason   string
	Replayed bool
}

type Deps struct {
	Orders   OrderStore
	Sagas    Store
	Stock    inventory.Engine
	Payments payment.Provider
	Notifier notification.Provider
	Bus      events.Publisher
	Guard    idempotency.Guard
	Log      *zap.Logger
	Metrics  *metrics.SagaMetrics
}

type Options struct {
	Location       string
	ReservationTTL time.Duration
	RetryMax       int
	RetryBase      time.Duration
}

// Orchestrator drives an order from creation to CONFIRMED or CANCELLED.
// Every state transition is persisted before the action it licenses, so a
// crash leaves a resumable record instead of an untraced side effect.
type Orchestrator struct {
	orders   OrderStore
	sagas    Store
	stock    inventory.Engine
	payments payment.Provider
	notifier notification.Provider
	bus      events.Publisher
	guard    idempotency.Guard
	log      *zap.Logger
	sm       *metrics.SagaMetrics

	location       string
	reservationTTL time.Duration
	retryMax       int
	retryBase      time.Duration
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.Location == "" {
		opts.Location = "main"
	}
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = 15 * time.Minute
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	return &Orchestrator{
		orders:         deps.Orders,
		sagas:          deps.Sagas,
		stock:          deps.Stock,
		payments:       deps.Payments,
		notifier:       deps.Notifier,
		bus:            deps.Bus,
		guard:          deps.Guard,
		log:            deps.Log,
		sm:             deps.Metrics,
		location:       opts.Location,
		reservationTTL: opts.ReservationTTL,
		retryMax:       opts.RetryMax,
		retryBase:      opts.RetryBase,
	}
}

// guardKey scopes idempotency keys per user, as the key is only required to
// be unique within one user's submissions.
func guardKey(o *domain.Order) string {
	return string(o.UserID) + "|" + o.IdempotencyKey
}

// Start runs the saga for a fresh submission. A replayed idempotency key
// returns the stored outcome without re-running anything; a key whose first
// execution is still in flight returns ErrSagaInFlight.
func (o *Orchestrator) Start(ctx context.Context, order *domain.Order) (Result, error) {
	if err := domain.ValidateOrder(*order); err != nil {
		return Result{}, err
	}

	begin, err := o.guard.Begin(ctx, guardKey(order), string(order.ID))
	if err != nil {
		return Result{}, err
	}
	switch begin.Decision {
	case idempotency.Replay:
		return Result{OrderID: begin.Outcome.OrderID, Status: begin.Outcome.Status, Replayed: true}, nil
	case idempotency.Conflict:
		if res, ok := o.reclaimOutcome(ctx, order, begin.OrderID); ok {
			return res, nil
		}
		return Result{OrderID: begin.OrderID}, ErrSagaInFlight
	}

	// Durable record first, side effects after.
	order.Status = domain.OrderStatusProcessing
	if err := o.orders.Create(ctx, order); err != nil {
		return Result{}, err
	}
	rec := &Record{
		OrderID:        string(order.ID),
		Current:        StateStarted,
		ReservationIDs: reservationIDs(order),
	}
	created := o.newEvent(rec, contracts.EventOrderCreated, map[string]any{
		"user_id": string(order.UserID),
		"total":   order.TotalAmount,
	})
	if err := o.sagas.Create(ctx, rec, created); err != nil {
		return Result{}, err
	}

	o.sm.InFlight.Inc()
	defer o.sm.InFlight.Dec()

	o.emit(ctx, created)
	return o.runForward(ctx, rec, order)
}

// reclaimOutcome converges a Conflict whose saga actually finished. If
// storing the outcome failed after the terminal transition, the marker stays
// IN_FLIGHT forever while the saga record knows the answer; the record wins,
// and the marker is repaired from it.
func (o *Orchestrator) reclaimOutcome(ctx context.Context, order *domain.Order, orderID string) (Result, bool) {
	if orderID == "" {
		return Result{}, false
	}
	rec, err := o.sagas.Get(ctx, orderID)
	if err != nil || !rec.Current.Terminal() {
		return Result{}, false
	}
	status := string(domain.OrderStatusConfirmed)
	if rec.Current == StateCancelled {
		status = string(domain.OrderStatusCancelled)
	}
	out := idempotency.Outcome{OrderID: orderID, Status: status, CompletedAt: rec.UpdatedAt}
	if err := o.guard.Complete(ctx, guardKey(order), out); err != nil {
		o.log.Warn("failed to repair idempotency marker",
			zap.String("order_id", orderID), zap.Error(err))
	}
	return Result{OrderID: orderID, Status: status, Reason: rec.LastError, Replayed: true}, true
}

// reservationIDs are fixed before the first side effect so a re-entered
// reservation step re-sends the same ids.
func reservationIDs(order *domain.Order) []string {
	ids := make([]string, len(order.Items))
	for i := range order.Items {
		ids[i] = uuid.NewString()
	}
	return ids
}

type stepDef struct {
	step  Step
	entry State
	done  State
	event string
	run   func(ctx context.Context, rec *Record, order *domain.Order) error
}

func (o *Orchestrator) steps() []stepDef {
	return []stepDef{
		{
			step:  StepVerifyStock,
			entry: StateStockVerification,
			done:  StateStockVerified,
			event: contracts.EventStockVerified,
			run:   o.verifyStock,
		},
		{
			step:  StepReserveStock,
			entry: StateStockReservation,
			done:  StateStockReserved,
			event: contracts.EventStockReserved,
			run:   o.reserveStock,
		},
		{
			step:  StepProcessPayment,
			entry: StatePaymentProcessing,
			done:  StatePaymentCompleted,
			event: contracts.EventPaymentCaptured,
			run:   o.processPayment,
		},
		{
			step:  StepConfirmReservation,
			entry: StateReservationConfirmation,
			done:  StateReservationConfirmed,
			event: contracts.EventReservationConfirmed,
			run:   o.confirmReservations,
		},
		{
			step:  StepSendNotification,
			entry: StateNotificationSending,
			done:  StateNotificationSent,
			event: contracts.EventNotificationSent,
			run:   o.sendNotification,
		},
		{
			step:  StepConfirmOrder,
			entry: StateOrderConfirmation,
			done:  StateConfirmed,
			event: contracts.EventOrderConfirmed,
			run:   o.confirmOrder,
		},
	}
}

func (o *Orchestrator) runForward(ctx context.Context, rec *Record, order *domain.Order) (Result, error) {
	log := o.log.With(zap.String("order_id", rec.OrderID))

	for _, st := range o.steps() {
		if rec.StepDone(st.step) {
			continue
		}

		// Persist the entry state before acting; on resume after a crash
		// we may already be sitting in it.
		if rec.Current != st.entry {
			if err := rec.Transition(st.entry); err != nil {
				return Result{}, err
			}
			if err := o.sagas.Update(ctx, rec); err != nil {
				return Result{}, err
			}
		}

		err := o.runWithRetry(ctx, st.step, func(ctx context.Context) error {
			return st.run(ctx, rec, order)
		})
		if err != nil {
			o.sm.Steps.WithLabelValues(string(st.step), "failed").Inc()
			log.Warn("saga step failed",
				zap.String("step", string(st.step)),
				zap.String("state", rec.Current.String()),
				zap.Error(err))
			return o.compensate(ctx, rec, order, err)
		}

		if err := rec.Transition(st.done); err != nil {
			return Result{}, err
		}
		rec.Completed = append(rec.Completed, st.step)

		// The step's event rides in the same store write as its state, so a
		// crash cannot commit the one without the other.
		var staged []contracts.Event
		if st.event != "" {
			staged = append(staged, o.newEvent(rec, st.event, map[string]any{"user_id": string(order.UserID)}))
		}
		if err := o.sagas.Update(ctx, rec, staged...); err != nil {
			return Result{}, err
		}
		o.sm.Steps.WithLabelValues(string(st.step), "ok").Inc()
		for _, evt := range staged {
			o.emit(ctx, evt)
		}
	}

	out := idempotency.Outcome{
		OrderID:     rec.OrderID,
		Status:      string(domain.OrderStatusConfirmed),
		CompletedAt: time.Now().UTC(),
	}
	o.completeGuard(ctx, guardKey(order), out, log)
	o.sm.Outcomes.WithLabelValues("confirmed").Inc()
	log.Info("saga confirmed")
	return Result{OrderID: rec.OrderID, Status: string(domain.OrderStatusConfirmed)}, nil
}

// runWithRetry retries transient failures with exponential backoff; any
// other classification escalates immediately.
func (o *Orchestrator) runWithRetry(ctx context.Context, step Step, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if classify(err) != classTransient || attempt >= o.retryMax {
			return err
		}
		o.sm.Steps.WithLabelValues(string(step), "retried").Inc()
		delay := o.retryBase << attempt
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}

// verifyStock is an optimistic, non-mutating pre-check: it may race with
// other sagas' reservations, and the reservation step re-checks
// authoritatively. Failing here just avoids a pointless payment attempt.
func (o *Orchestrator) verifyStock(ctx context.Context, rec *Record, order *domain.Order) error {
	for _, it := range order.Items {
		available, err := o.stock.Available(ctx, string(it.ProductID), o.location)
		if err != nil {
			return err
		}
		if available < it.Quantity {
			return fmt.Errorf("product %s: %w", it.ProductID, inventory.ErrInsufficientStock)
		}
	}
	return nil
}

func (o *Orchestrator) reserveStock(ctx context.Context, rec *Record, order *domain.Order) error {
	for i, it := range order.Items {
		err := o.stock.Reserve(ctx, string(it.ProductID), o.location, rec.ReservationIDs[i], it.Quantity, o.reservationTTL)
		if err != nil {
			return fmt.Errorf("reserve product %s: %w", it.ProductID, err)
		}
	}
	return nil
}

func (o *Orchestrator) processPayment(ctx context.Context, rec *Record, order *domain.Order) error {
	res, err := o.payments.ProcessPayment(ctx, rec.OrderID, order.TotalAmount, order.Currency, defaultPaymentMethod)
	if err != nil {
		return err
	}
	rec.PaymentID = res.PaymentID
	return nil
}

func (o *Orchestrator) confirmReservations(ctx context.Context, rec *Record, order *domain.Order) error {
	for _, id := range rec.ReservationIDs {
		if err := o.stock.Confirm(ctx, id); err != nil {
			return fmt.Errorf("confirm reservation %s: %w", id, err)
		}
	}
	return nil
}

// sendNotification is fire-and-forget: a failed send is logged and the saga
// proceeds, it never cancels a paid order.
func (o *Orchestrator) sendNotification(ctx context.Context, rec *Record, order *domain.Order) error {
	_, err := o.notifier.Send(ctx, string(order.UserID), "order-confirmed", map[string]any{
		"order_id": rec.OrderID,
		"total":    order.TotalAmount,
		"currency": order.Currency,
	})
	if err != nil {
		o.log.Warn("confirmation notification failed",
			zap.String("order_id", rec.OrderID), zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) confirmOrder(ctx context.Context, rec *Record, order *domain.Order) error {
	return o.orders.UpdateStatus(ctx, domain.OrderID(rec.OrderID), domain.OrderStatusConfirmed)
}

// compensate undoes completed steps in reverse order, then drives the saga
// to CANCELLED. Compensation is best-effort and at-least-once: a failing
// compensation is flagged for an operator and never loops indefinitely.
func (o *Orchestrator) compensate(ctx context.Context, rec *Record, order *domain.Order, cause error) (Result, error) {
	log := o.log.With(zap.String("order_id", rec.OrderID))
	log.Warn("saga compensating", zap.Error(cause))
	rec.LastError = cause.Error()

	for i := len(rec.Completed) - 1; i >= 0; i-- {
		switch rec.Completed[i] {
		case StepReserveStock:
			o.releaseReservations(ctx, rec, log)
		case StepProcessPayment:
			o.refundPayment(ctx, rec, order, log)
		}
	}
	// Holds from a partially-failed reservation step are not in Completed
	// but still pin stock; release them too.
	if !rec.StepDone(StepReserveStock) && rec.Current >= StateStockReservation {
		o.releaseReservations(ctx, rec, log)
	}

	if err := rec.Transition(StateCancelled); err != nil {
		return Result{}, err
	}
	// The cancellation event doubles as the failure notification trigger:
	// the notification handler consumes it, deduped by event id. It is
	// staged with the terminal write so a crash right after the commit
	// cannot lose it; the saga is already terminal then and no recovery
	// sweep would re-emit it.
	cancelled := o.newEvent(rec, contracts.EventOrderCancelled, map[string]any{
		"user_id": string(order.UserID),
		"reason":  cause.Error(),
	})
	if err := o.sagas.Update(ctx, rec, cancelled); err != nil {
		return Result{}, err
	}
	if err := o.orders.UpdateStatus(ctx, domain.OrderID(rec.OrderID), domain.OrderStatusCancelled); err != nil {
		log.Error("failed to mark order cancelled", zap.Error(err))
	}

	out := idempotency.Outcome{
		OrderID:     rec.OrderID,
		Status:      string(domain.OrderStatusCancelled),
		CompletedAt: time.Now().UTC(),
	}
	o.completeGuard(ctx, guardKey(order), out, log)

	o.emit(ctx, cancelled)
	o.sm.Outcomes.WithLabelValues("cancelled").Inc()
	return Result{OrderID: rec.OrderID, Status: string(domain.OrderStatusCancelled), Reason: cause.Error()}, nil
}

// completeGuard stores the terminal outcome behind the idempotency key. The
// in-flight marker blocks every resubmission of the key until it flips, so
// failures get bounded retries; a marker that still cannot be flipped is
// repaired from the saga record by the next submission (reclaimOutcome).
func (o *Orchestrator) completeGuard(ctx context.Context, key string, out idempotency.Outcome, log *zap.Logger) {
	var err error
	for attempt := 0; ; attempt++ {
		err = o.guard.Complete(ctx, key, out)
		if err == nil {
			return
		}
		if errors.Is(err, idempotency.ErrCompleteWithoutBegin) || attempt >= o.retryMax || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(o.retryBase << attempt):
		}
	}
	log.Error("failed to store idempotency outcome", zap.Error(err))
}

func (o *Orchestrator) releaseReservations(ctx context.Context, rec *Record, log *zap.Logger) {
	if rec.StepDone(StepConfirmReservation) {
		// Fulfilled reservations are permanent deductions; undoing them
		// is a return flow, not a release.
		o.compFailed(rec, log, CompReleaseReservation,
			errors.New("reservations already fulfilled, stock return requires manual flow"))
		return
	}
	released := 0
	for _, id := range rec.ReservationIDs {
		err := o.runWithRetry(ctx, Step(CompReleaseReservation), func(ctx context.Context) error {
			return o.stock.Release(ctx, id, "saga cancelled")
		})
		if err != nil && !errors.Is(err, inventory.ErrReservationNotFound) {
			o.compFailed(rec, log, CompReleaseReservation, err)
			continue
		}
		released++
	}
	if released > 0 {
		o.publish(ctx, rec, contracts.EventStockReleased, map[string]any{
			"reservation_ids": rec.ReservationIDs,
		})
	}
}

func (o *Orchestrator) refundPayment(ctx context.Context, rec *Record, order *domain.Order, log *zap.Logger) {
	if rec.PaymentID == "" {
		// Payment outcome unknown (crash mid-capture). A blind refund
		// against nothing is worse than an operator looking at it.
		o.compFailed(rec, log, CompRefundPayment,
			errors.New("payment state unknown, manual review required"))
		return
	}
	err := o.runWithRetry(ctx, Step(CompRefundPayment), func(ctx context.Context) error {
		_, err := o.payments.RefundPayment(ctx, rec.PaymentID, order.TotalAmount)
		return err
	})
	if err != nil {
		o.compFailed(rec, log, CompRefundPayment, err)
		return
	}
	o.publish(ctx, rec, contracts.EventPaymentRefunded, map[string]any{
		"payment_id": rec.PaymentID,
		"amount":     order.TotalAmount,
	})
}

func (o *Orchestrator) compFailed(rec *Record, log *zap.Logger, comp string, err error) {
	rec.NeedsAttention = true
	o.sm.CompensationFailures.Inc()
	cerr := &CompensationError{Comp: comp, Err: err}
	log.Error("compensation failed, operator attention required",
		zap.String("compensation", comp), zap.Error(cerr))
}

func (o *Orchestrator) newEvent(rec *Record, eventType string, payload map[string]any) contracts.Event {
	return contracts.NewEvent(eventType, contracts.AggregateOrder, rec.OrderID, rec.Version, payload).
		WithCorrelation(rec.OrderID, "")
}

func (o *Orchestrator) emit(ctx context.Context, evt contracts.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, evt); err != nil {
		o.log.Warn("event publish failed",
			zap.String("event_type", evt.EventType),
			zap.String("order_id", evt.AggregateID),
			zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, rec *Record, eventType string, payload map[string]any) {
	o.emit(ctx, o.newEvent(rec, eventType, payload))
}
