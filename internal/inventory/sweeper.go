package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/metrics"
)

// Publisher is the event surface the sweeper announces expiries on.
type Publisher interface {
	Publish(ctx context.Context, evt contracts.Event) error
}

// Sweeper periodically expires overdue reservations and announces each one
// as a reservation.expired event. The TTL is the only automatic cancellation
// mechanism for stock holds.
type Sweeper struct {
	engine   Engine
	log      *zap.Logger
	inv      *metrics.InventoryMetrics
	pub      Publisher
	interval time.Duration
	batch    int
}

func NewSweeper(engine Engine, log *zap.Logger, inv *metrics.InventoryMetrics, pub Publisher, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 200
	}
	return &Sweeper{engine: engine, log: log, inv: inv, pub: pub, interval: interval, batch: batch}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	expired, err := s.engine.ExpireDue(ctx, time.Now().UTC(), s.batch)
	if err != nil {
		s.log.Warn("expiry sweep failed", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}
	s.log.Info("expired reservations", zap.Int("count", len(expired)))
	if s.inv != nil {
		s.inv.Expired.Add(float64(len(expired)))
	}
	if s.pub == nil {
		return
	}
	for _, res := range expired {
		evt := contracts.NewEvent(contracts.EventReservationExpired, contracts.AggregateReservation, res.ID, 0,
			map[string]any{
				"product_id": res.ProductID,
				"location":   res.Location,
				"quantity":   res.Quantity,
			})
		if err := s.pub.Publish(ctx, evt); err != nil {
			s.log.Warn("expiry event publish failed",
				zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}
}
