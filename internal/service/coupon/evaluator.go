// Package coupon содержит оценку применимости купонов к заказу.
package coupon

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// Quote — результат успешной оценки купона: сам купон и посчитанная скидка.
type Quote struct {
	Coupon        domain.Coupon
	DiscountMinor int64
	// FinalMinor = subtotal - discount, не ниже нуля.
	FinalMinor int64
}

// Evaluator проверяет применимость купона к сумме заказа. Ошибки проверки
// идут в short-circuit порядке: существование, срок, лимит, минимальный порог.
type Evaluator struct {
	coupons domain.CouponStore
	logger  *log.Entry
	now     func() time.Time
}

// NewEvaluator создаёт оценщик купонов.
func NewEvaluator(coupons domain.CouponStore) *Evaluator {
	return &Evaluator{
		coupons: coupons,
		logger:  log.WithField("component", "coupon-evaluator"),
		now:     time.Now,
	}
}

// WithClock подменяет источник времени (используется в тестах).
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate находит купон по коду и проверяет его против суммы заказа.
// Оценка ничего не мутирует: used_count инкрементируется только при коммите.
func (e *Evaluator) Evaluate(ctx context.Context, code string, subtotalMinor int64) (Quote, error) {
	if subtotalMinor < 0 {
		return Quote{}, fmt.Errorf("%w: subtotal %d", domain.ErrAmountNegative, subtotalMinor)
	}

	coupon, err := e.coupons.GetActiveByCode(ctx, code)
	if err != nil {
		return Quote{}, err
	}

	if err := coupon.Usable(e.now().UTC(), subtotalMinor); err != nil {
		e.logger.WithFields(log.Fields{
			"coupon_code": coupon.Code,
			"subtotal":    subtotalMinor,
		}).WithError(err).Debug("coupon rejected")
		return Quote{}, err
	}

	discount := coupon.DiscountFor(subtotalMinor)
	final := subtotalMinor - discount
	if final < 0 {
		final = 0
	}

	return Quote{
		Coupon:        coupon,
		DiscountMinor: discount,
		FinalMinor:    final,
	}, nil
}
