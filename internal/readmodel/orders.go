// Package readmodel keeps a cheap order-status view in Redis so status
// polling never touches the transactional store. The cache is maintained by
// an event handler and is eventually consistent by construction.
package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/contracts"
)

var ErrNotCached = errors.New("order not in read model")

const keyPrefix = "order:status:"

type OrderView struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, orderID string) (OrderView, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+orderID).Result()
	if errors.Is(err, redis.Nil) {
		return OrderView{}, ErrNotCached
	}
	if err != nil {
		return OrderView{}, err
	}
	var view OrderView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return OrderView{}, err
	}
	return view, nil
}

func (c *Cache) put(ctx context.Context, view OrderView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+view.OrderID, data, c.ttl).Err()
}

// Handler is the bus subscriber that projects order lifecycle events into
// the cache. Writing the same status twice is harmless, so no inbox needed.
type Handler struct {
	cache *Cache
}

func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

func (h *Handler) Name() string { return "order-status-readmodel" }

func (h *Handler) CanHandle(eventType string) bool {
	switch eventType {
	case contracts.EventOrderCreated, contracts.EventOrderConfirmed, contracts.EventOrderCancelled:
		return true
	}
	return false
}

func (h *Handler) Handle(ctx context.Context, evt contracts.Event) error {
	status := "PROCESSING"
	switch evt.EventType {
	case contracts.EventOrderConfirmed:
		status = "CONFIRMED"
	case contracts.EventOrderCancelled:
		status = "CANCELLED"
	}
	return h.cache.put(ctx, OrderView{
		OrderID:   evt.AggregateID,
		Status:    status,
		UpdatedAt: evt.Timestamp,
	})
}
