package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every domain event travels in. Events are immutable
// once published; consumers must tolerate duplicates (delivery is
// at-least-once) and dedup on EventID.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	Payload       map[string]any `json:"payload"`
	Version       int            `json:"version"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CausationID   string         `json:"causation_id,omitempty"`
}

const (
	AggregateOrder       = "order"
	AggregateReservation = "reservation"
)

const (
	EventOrderCreated         = "order.created"
	EventStockVerified        = "order.stock_verified"
	EventStockReserved        = "order.stock_reserved"
	EventPaymentCaptured      = "order.payment_captured"
	EventReservationConfirmed = "order.reservation_confirmed"
	EventNotificationSent     = "order.notification_sent"
	EventOrderConfirmed       = "order.confirmed"
	EventOrderCancelled       = "order.cancelled"
	EventStockReleased        = "order.stock_released"
	EventPaymentRefunded      = "order.payment_refunded"
	EventReservationExpired   = "reservation.expired"
)

// NewEvent stamps a fresh envelope. CorrelationID ties all events of one saga
// together; CausationID points at the event (or command) that led here.
func NewEvent(eventType, aggregateType, aggregateID string, version int, payload map[string]any) Event {
	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payload,
		Version:       version,
		Timestamp:     time.Now().UTC(),
	}
}

func (e Event) WithCorrelation(correlationID, causationID string) Event {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}
