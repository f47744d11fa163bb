package domain

import "time"

type EventType string

const (
	EventOrderCommitted     EventType = "order.committed"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventOrderDeleted       EventType = "order.deleted"
)

// OrderEvent is emitted after a durable change to the order store.
type OrderEvent struct {
	Type    EventType `json:"type"`
	OrderID string    `json:"orderId"`
	Order   *Order    `json:"order,omitempty"`
	At      time.Time `json:"at"`
}
