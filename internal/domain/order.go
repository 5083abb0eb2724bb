package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает обработки.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ принят в работу.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён, складские движения компенсированы.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ActorRole определяет, от чьего имени выполняется операция над заказом.
type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleAdmin    ActorRole = "admin"
)

// OrderLine — неизменяемая позиция заказа. Цена и селектор цвета
// снапшотятся при создании и не зависят от дальнейших изменений каталога.
type OrderLine struct {
	ID        string
	ProductID string
	Quantity  int32
	// UnitPriceMinor — цена за единицу на момент оформления.
	UnitPriceMinor int64
	// TotalPriceMinor = UnitPriceMinor * Quantity.
	TotalPriceMinor int64
	// Color — снапшот селектора; nil, когда позицией управляет базовый пул.
	Color     *ColorSelector
	CreatedAt time.Time
}

// Order агрегирует заказ и его позиции.
type Order struct {
	ID     string
	UserID string
	Status OrderStatus
	// SubtotalMinor — сумма позиций до скидки.
	SubtotalMinor int64
	// DiscountMinor — применённая скидка купона.
	DiscountMinor int64
	// TotalMinor — итог к оплате: max(0, subtotal - discount).
	TotalMinor int64
	// CouponID/CouponCode пустые, если купон не применялся.
	CouponID   string
	CouponCode string
	// ShippingAddress — снапшот адреса доставки.
	ShippingAddress string
	PaymentMethod   string
	Lines           []OrderLine
	// Deleted выставляется мягким удалением; допустимо только из pending.
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CancellableBy проверяет правила отмены для роли актора.
// Отменённый заказ нельзя отменить повторно ни в какой роли; покупатель
// может отменять только pending и processing, админ — всё остальное.
func (o Order) CancellableBy(role ActorRole) error {
	if o.Status == OrderStatusCancelled {
		return ErrAlreadyCancelled
	}
	if role == RoleAdmin {
		return nil
	}
	switch o.Status {
	case OrderStatusPending, OrderStatusProcessing:
		return nil
	default:
		return ErrInvalidStateTransition
	}
}

// Deletable проверяет, допустимо ли мягкое удаление заказа.
func (o Order) Deletable() error {
	if o.Status == OrderStatusCancelled {
		return ErrAlreadyCancelled
	}
	if o.Status != OrderStatusPending {
		return ErrInvalidStateTransition
	}
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}

	var subtotal int64
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		subtotal += int64(line.Quantity) * line.UnitPriceMinor
	}
	if subtotal != o.SubtotalMinor {
		errs = append(errs, ErrLineTotalMismatch)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}
