package inventory

import (
	"context"
	"time"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/metrics"
)

// Instrument wraps an engine so reservation operations feed the inventory
// counters. A nil metrics set returns the engine unwrapped.
func Instrument(e Engine, inv *metrics.InventoryMetrics) Engine {
	if inv == nil {
		return e
	}
	return &instrumentedEngine{Engine: e, inv: inv}
}

type instrumentedEngine struct {
	Engine
	inv *metrics.InventoryMetrics
}

func (e *instrumentedEngine) Reserve(ctx context.Context, productID, location, reservationID string, qty int32, ttl time.Duration) error {
	err := e.Engine.Reserve(ctx, productID, location, reservationID, qty, ttl)
	e.count("reserve", err)
	return err
}

func (e *instrumentedEngine) Confirm(ctx context.Context, reservationID string) error {
	err := e.Engine.Confirm(ctx, reservationID)
	e.count("confirm", err)
	return err
}

func (e *instrumentedEngine) Release(ctx context.Context, reservationID, reason string) error {
	err := e.Engine.Release(ctx, reservationID, reason)
	e.count("release", err)
	return err
}

func (e *instrumentedEngine) count(op string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	e.inv.Reservations.WithLabelValues(op, result).Inc()
}
