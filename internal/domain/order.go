package domain

import "time"

type OrderID string
type ProductID string
type UserID string

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

type OrderItem struct {
	ProductID ProductID
	Quantity  int32
	UnitPrice int64 // minor units (cents)
}

func (i OrderItem) TotalPrice() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Order is a plain persisted record. Business behavior lives in the saga
// package; nothing here mutates state. Orders are never physically deleted.
type Order struct {
	ID             OrderID
	UserID         UserID
	Items          []OrderItem
	TotalAmount    int64
	Currency       string
	IdempotencyKey string
	Status         OrderStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o Order) ComputeTotal() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.TotalPrice()
	}
	return total
}
