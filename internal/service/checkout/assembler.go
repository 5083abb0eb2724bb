// Package checkout реализует сборку, коммит и отмену заказов.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/service/coupon"
)

// LineRequest — одна запрошенная позиция корзины.
type LineRequest struct {
	ProductID string
	Quantity  int32
	// Color — сырое значение селектора из запроса: JSON-объект
	// {"name","code"} или просто имя цвета. Пустая строка — базовый пул.
	Color string
}

// CreateOrderRequest — входные данные сборщика заказа.
type CreateOrderRequest struct {
	UserID          string
	Lines           []LineRequest
	CouponCode      string
	ShippingAddress string
	PaymentMethod   string
}

// Assembler валидирует и оценивает позиции, не выполняя ни одной мутации.
// Результат — OrderPlan, готовый к атомарному коммиту.
type Assembler struct {
	catalog   domain.CatalogStore
	evaluator *coupon.Evaluator
}

// NewAssembler создаёт сборщик заказов.
func NewAssembler(catalog domain.CatalogStore, evaluator *coupon.Evaluator) *Assembler {
	return &Assembler{catalog: catalog, evaluator: evaluator}
}

// Assemble строит план заказа: резолвит пул каждой позиции, проверяет
// остатки, снимает снапшоты цен и считает скидку. Позиции обрабатываются
// в порядке запроса, первая ошибка отменяет весь заказ.
func (a *Assembler) Assemble(ctx context.Context, req CreateOrderRequest) (domain.OrderPlan, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.OrderPlan{}, domain.ErrUserRequired
	}
	if len(req.Lines) == 0 {
		return domain.OrderPlan{}, domain.ErrLinesRequired
	}

	plan := domain.OrderPlan{
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	}

	// Спрос на пул суммируется по всем позициям: две позиции одного пула
	// проверяются против остатка совместно, а не каждая по отдельности.
	demand := make(map[domain.StockPoolKey]int64, len(req.Lines))

	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return domain.OrderPlan{}, fmt.Errorf("%w: product %q, quantity %d", domain.ErrLineQtyInvalid, line.ProductID, line.Quantity)
		}

		product, err := a.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.OrderPlan{}, err
		}

		selector := domain.ParseColorSelector(line.Color)
		pool, err := product.ResolvePool(selector)
		if err != nil {
			return domain.OrderPlan{}, err
		}

		demand[pool.Key()] += int64(line.Quantity)
		if demand[pool.Key()] > pool.Available {
			if pool.IsBase() {
				return domain.OrderPlan{}, fmt.Errorf("%w: product %q", domain.ErrInsufficientStock, product.ID)
			}
			return domain.OrderPlan{}, fmt.Errorf("%w: product %q, variant %q", domain.ErrInsufficientStock, product.ID, pool.VariantName)
		}

		planned := domain.PlannedLine{
			ProductID:       product.ID,
			Pool:            pool,
			Quantity:        line.Quantity,
			UnitPriceMinor:  product.PriceMinor,
			TotalPriceMinor: product.PriceMinor * int64(line.Quantity),
		}
		if !pool.IsBase() {
			planned.Color = &domain.ColorSelector{Name: pool.VariantName, Code: pool.VariantCode}
		}

		plan.Lines = append(plan.Lines, planned)
		plan.SubtotalMinor += planned.TotalPriceMinor
	}

	plan.TotalMinor = plan.SubtotalMinor

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		quote, err := a.evaluator.Evaluate(ctx, code, plan.SubtotalMinor)
		if err != nil {
			return domain.OrderPlan{}, err
		}
		c := quote.Coupon
		plan.Coupon = &c
		plan.DiscountMinor = quote.DiscountMinor
		plan.TotalMinor = quote.FinalMinor
	}

	return plan, nil
}
