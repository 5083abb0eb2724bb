package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderDeleted   EventType = "order.deleted"

	// Coupon события
	EventTypeCouponRedeemed EventType = "coupon.redeemed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shopcore.order.events"
	TopicDeadLetterQueue = "shopcore.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	UserID     string                 `json:"user_id"`
	Status     string                 `json:"status"`
	TotalMinor int64                  `json:"total_minor"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// CouponEvent представляет погашение купона при коммите заказа
type CouponEvent struct {
	EventType     EventType `json:"event_type"`
	CouponCode    string    `json:"coupon_code"`
	OrderID       string    `json:"order_id"`
	DiscountMinor int64     `json:"discount_minor"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, userID, status string, totalMinor int64, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		UserID:     userID,
		Status:     status,
		TotalMinor: totalMinor,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewCouponEvent создает новое событие погашения купона
func NewCouponEvent(couponCode, orderID string, discountMinor int64) *CouponEvent {
	return &CouponEvent{
		EventType:     EventTypeCouponRedeemed,
		CouponCode:    couponCode,
		OrderID:       orderID,
		DiscountMinor: discountMinor,
		Timestamp:     time.Now(),
	}
}
