package domain

import "time"

// EventKind is the normalised outcome carried by a payment-provider event.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "succeeded"
	EventPaymentFailed    EventKind = "failed"
	EventOther            EventKind = "other"
)

// ProviderEvent is a verified notification from the payment provider.
type ProviderEvent struct {
	ID        string
	Type      string
	Kind      EventKind
	IntentID  string
	Metadata  map[string]string
	CreatedAt time.Time
}

// PaymentIntent is the provider-side handle used by clients to pay for an order.
type PaymentIntent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
}

// OrderEvent is published after an order change has been committed.
type OrderEvent struct {
	Type          string        `json:"type"`
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	UserID        string        `json:"user_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Total         string        `json:"total"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

const (
	OrderEventCreated          = "order.created"
	OrderEventCancelled        = "order.cancelled"
	OrderEventStatusChanged    = "order.status_changed"
	OrderEventPaymentCompleted = "order.payment_completed"
	OrderEventPaymentFailed    = "order.payment_failed"
)

// NewOrderEvent snapshots o into an event of the given type.
func NewOrderEvent(eventType string, o *Order, now time.Time) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       o.ID.String(),
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total.StringFixed(2),
		OccurredAt:    now.UTC(),
	}
}
