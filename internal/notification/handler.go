package notification

import (
	"context"
	"fmt"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/internal/events"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

// Handler turns terminal order events into customer notifications. Dedup via
// the inbox makes a redelivered event a no-op instead of a second email.
type Handler struct {
	provider Provider
	inbox    events.Inbox
}

func NewHandler(provider Provider, inbox events.Inbox) *Handler {
	return &Handler{provider: provider, inbox: inbox}
}

func (h *Handler) Name() string { return "order-notifications" }

func (h *Handler) CanHandle(eventType string) bool {
	switch eventType {
	case contracts.EventOrderConfirmed, contracts.EventOrderCancelled:
		return true
	}
	return false
}

func (h *Handler) Handle(ctx context.Context, evt contracts.Event) error {
	seen, err := h.inbox.Seen(ctx, h.Name(), evt.EventID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	template := "order-confirmed"
	if evt.EventType == contracts.EventOrderCancelled {
		template = "order-cancelled"
	}
	recipient, _ := evt.Payload["user_id"].(string)
	if recipient == "" {
		return fmt.Errorf("event %s has no user_id", evt.EventID)
	}
	if _, err := h.provider.Send(ctx, recipient, template, map[string]any{
		"order_id": evt.AggregateID,
	}); err != nil {
		// Not marked: the redelivered event retries the send. A crash
		// between send and mark can duplicate the message, which
		// at-least-once delivery already allows.
		return err
	}
	_, err = h.inbox.MarkSeen(ctx, h.Name(), evt.EventID)
	return err
}
