package domain

import (
	"fmt"
	"time"
)

// DiscountType определяет способ вычисления скидки купона.
type DiscountType string

const (
	// DiscountTypePercent — скидка как процент от суммы заказа.
	DiscountTypePercent DiscountType = "percent"
	// DiscountTypeFixed — фиксированная скидка в минимальных денежных единицах.
	DiscountTypeFixed DiscountType = "fixed"
)

// Coupon описывает скидочный купон.
// Nullable-поля каталога выражены указателями: nil означает «ограничение не задано».
type Coupon struct {
	ID   string
	Code string
	Type DiscountType
	// Value — для percent это целые проценты, для fixed — минорные единицы.
	Value int64
	// MinOrderMinor — минимальная сумма заказа для применения купона.
	MinOrderMinor *int64
	// UsageLimit и UsedCount вместе ограничивают число погашений.
	UsageLimit *int64
	UsedCount  *int64
	ExpiresAt  *time.Time
	// DeletedAt — отметка мягкого удаления: такой купон не находится по коду.
	DeletedAt *time.Time
}

// Usable проверяет применимость купона к заказу с данной суммой, в порядке
// short-circuit: истечение срока, исчерпание лимита, минимальный порог.
func (c Coupon) Usable(now time.Time, subtotalMinor int64) error {
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return fmt.Errorf("%w: %s", ErrCouponExpired, c.Code)
	}
	if c.UsageLimit != nil && c.UsedCount != nil && *c.UsedCount >= *c.UsageLimit {
		return fmt.Errorf("%w: %s", ErrCouponExhausted, c.Code)
	}
	if c.MinOrderMinor != nil && subtotalMinor < *c.MinOrderMinor {
		return fmt.Errorf("%w: %s requires subtotal >= %d", ErrCouponMinimumNotMet, c.Code, *c.MinOrderMinor)
	}
	return nil
}

// DiscountFor вычисляет размер скидки для данной суммы заказа.
// Процент усекается к нулю в минорных единицах; фиксированная скидка
// возвращается как есть и не ограничивается суммой заказа.
func (c Coupon) DiscountFor(subtotalMinor int64) int64 {
	switch c.Type {
	case DiscountTypePercent:
		return subtotalMinor * c.Value / 100
	case DiscountTypeFixed:
		return c.Value
	default:
		return 0
	}
}
