package domain

import "time"

// TimelineEvent — одна запись журнала заказа: что произошло, когда и почему.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
