package domain

// PlannedLine — провалидированная и оценённая позиция будущего заказа
// вместе с уже разрешённым пулом остатка.
type PlannedLine struct {
	ProductID string
	// Pool — счётчик, из которого коммит спишет Quantity единиц.
	Pool            StockPool
	Quantity        int32
	UnitPriceMinor  int64
	TotalPriceMinor int64
	// Color — снапшот селектора для персистентности; nil для базового пула.
	Color *ColorSelector
}

// OrderPlan — результат работы сборщика заказа: полностью провалидированный
// план, готовый к атомарному коммиту. До коммита ни одна мутация не применена.
type OrderPlan struct {
	UserID        string
	Lines         []PlannedLine
	SubtotalMinor int64
	DiscountMinor int64
	TotalMinor    int64
	// Coupon != nil означает, что коммит обязан атомарно инкрементировать
	// used_count с проверкой лимита.
	Coupon          *Coupon
	ShippingAddress string
	PaymentMethod   string
}

// StockAdjustment — одно компенсирующее движение остатков при отмене.
type StockAdjustment struct {
	ProductID string
	// VariantID пуст для базового пула или когда вариант исчез из каталога.
	VariantID string
	Quantity  int64
	// VariantMissing отмечает, что снапшот ссылался на вариант, которого
	// больше нет: инкремент варианта пропускается, счётчики товара — нет.
	VariantMissing bool
}

// PlanRestock строит компенсирующие движения для позиций заказа по их
// персистентным снапшотам цвета. lookup возвращает актуальный товар; его
// отсутствие в каталоге тоже трактуется как пропавший вариант — позиция
// пропускается целиком и попадает в список предупреждений.
func PlanRestock(order Order, lookup func(productID string) (Product, bool)) ([]StockAdjustment, []string) {
	adjustments := make([]StockAdjustment, 0, len(order.Lines))
	var missing []string

	for _, line := range order.Lines {
		product, ok := lookup(line.ProductID)
		if !ok {
			missing = append(missing, line.ProductID)
			continue
		}

		var sel ColorSelector
		if line.Color != nil {
			sel = *line.Color
		}

		pool, matched := product.ResolvePoolLenient(sel)
		adj := StockAdjustment{
			ProductID: product.ID,
			Quantity:  int64(line.Quantity),
		}
		switch {
		case matched:
			adj.VariantID = pool.VariantID
		default:
			adj.VariantMissing = true
			missing = append(missing, line.ProductID)
		}
		adjustments = append(adjustments, adj)
	}

	return adjustments, missing
}
