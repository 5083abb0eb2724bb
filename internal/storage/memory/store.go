package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

// Store — in-memory хранилище каталога, купонов и заказов для локальной
// разработки и тестов. Один мьютекс на всё хранилище делает Commit и Cancel
// тривиально атомарными; условные проверки остатков при этом выполняются в
// том же порядке, что и в PostgreSQL-реализации.
type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	coupons  map[string]domain.Coupon
	orders   map[string]domain.Order
	outbox   domain.OutboxRepository
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		coupons:  make(map[string]domain.Coupon),
		orders:   make(map[string]domain.Order),
	}
}

// AttachOutbox подключает outbox: Commit и Cancel начинают сохранять события
// заказов под тем же мьютексом, что и складские мутации.
func (s *Store) AttachOutbox(outbox domain.OutboxRepository) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = outbox
	return s
}

// SeedProduct кладёт товар в каталог, перезаписывая существующий.
func (s *Store) SeedProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = cloneProduct(p)
}

// SeedCoupon кладёт купон, перезаписывая существующий с тем же кодом.
func (s *Store) SeedCoupon(c domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.Code] = cloneCoupon(c)
}

// GetProduct возвращает копию товара со всеми вариантами.
func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return cloneProduct(p), nil
}

// GetActiveByCode возвращает копию купона по коду. Мягко удалённые купоны
// неотличимы от несуществующих.
func (s *Store) GetActiveByCode(_ context.Context, code string) (domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[code]
	if !ok || c.DeletedAt != nil {
		return domain.Coupon{}, fmt.Errorf("%w: %s", domain.ErrCouponNotFound, code)
	}
	return cloneCoupon(c), nil
}

// Commit персистит план как pending-заказ, списывает остатки и кладёт
// события в outbox. Сначала все пулы проверяются, затем мутации применяются:
// под одним мьютексом это даёт контракт «всё или ничего» без компенсаций.
func (s *Store) Commit(_ context.Context, plan domain.OrderPlan, events domain.EventFactory) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Фаза проверки: ни одной мутации до того, как пройдут все пулы.
	// Спрос агрегируется по пулам: несколько позиций одного пула не должны
	// совместно увести остаток ниже нуля.
	demand := make(map[domain.StockPoolKey]int64, len(plan.Lines))
	for _, line := range plan.Lines {
		available, err := s.poolAvailable(line.Pool)
		if err != nil {
			return domain.Order{}, err
		}
		key := line.Pool.Key()
		demand[key] += int64(line.Quantity)
		if demand[key] > available {
			return domain.Order{}, insufficientStockErr(line)
		}
	}
	if plan.Coupon != nil {
		current, ok := s.coupons[plan.Coupon.Code]
		if !ok || current.DeletedAt != nil {
			return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrCouponNotFound, plan.Coupon.Code)
		}
		if current.UsageLimit != nil && usedCount(current) >= *current.UsageLimit {
			return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrCouponExhausted, current.Code)
		}
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          plan.UserID,
		Status:          domain.OrderStatusPending,
		SubtotalMinor:   plan.SubtotalMinor,
		DiscountMinor:   plan.DiscountMinor,
		TotalMinor:      plan.TotalMinor,
		ShippingAddress: plan.ShippingAddress,
		PaymentMethod:   plan.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if plan.Coupon != nil {
		order.CouponID = plan.Coupon.ID
		order.CouponCode = plan.Coupon.Code
	}
	for _, line := range plan.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:              uuid.NewString(),
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPriceMinor:  line.UnitPriceMinor,
			TotalPriceMinor: line.TotalPriceMinor,
			Color:           cloneSelector(line.Color),
			CreatedAt:       now,
		})
	}

	// События уходят в outbox до мутаций: enqueue — единственный шаг,
	// который ещё может вернуть ошибку, дальше только map-записи.
	if err := s.enqueueEvents(order, events); err != nil {
		return domain.Order{}, err
	}

	for _, line := range plan.Lines {
		s.applyDecrement(line.Pool, int64(line.Quantity))
	}
	if plan.Coupon != nil {
		current := s.coupons[plan.Coupon.Code]
		used := usedCount(current) + 1
		current.UsedCount = &used
		s.coupons[plan.Coupon.Code] = current
	}

	s.orders[order.ID] = cloneOrder(order)
	return cloneOrder(order), nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (s *Store) Get(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (s *Store) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.UserID != userID || order.Deleted {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Cancel компенсирует складские движения заказа и переводит его в cancelled.
// Проверка статуса, guard, компенсация и смена статуса выполняются под одним
// мьютексом: конкурирующая отмена того же заказа получит ErrAlreadyCancelled
// и не удвоит остатки.
func (s *Store) Cancel(_ context.Context, orderID string, guard domain.CancelGuard, softDelete bool, events domain.EventFactory) (domain.Order, domain.RestockReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.RestockReport{}, domain.ErrOrderNotFound
	}
	if order.Status == domain.OrderStatusCancelled {
		return domain.Order{}, domain.RestockReport{}, domain.ErrAlreadyCancelled
	}
	if guard != nil {
		if err := guard(cloneOrder(order)); err != nil {
			return domain.Order{}, domain.RestockReport{}, err
		}
	}

	adjustments, missing := domain.PlanRestock(order, func(productID string) (domain.Product, bool) {
		p, ok := s.products[productID]
		return p, ok
	})

	order.Status = domain.OrderStatusCancelled
	if softDelete {
		order.Deleted = true
	}
	order.UpdatedAt = time.Now().UTC()

	// Как и в Commit: сначала outbox, затем безошибочные map-мутации.
	if err := s.enqueueEvents(order, events); err != nil {
		return domain.Order{}, domain.RestockReport{}, err
	}

	for _, adj := range adjustments {
		s.applyRestock(adj)
	}
	s.orders[orderID] = cloneOrder(order)

	return cloneOrder(order), domain.RestockReport{MissingVariants: missing}, nil
}

// enqueueEvents вызывается под s.mu: события попадают в outbox в той же
// критической секции, что и складские мутации.
func (s *Store) enqueueEvents(order domain.Order, events domain.EventFactory) error {
	if events == nil || s.outbox == nil {
		return nil
	}
	for _, msg := range events(cloneOrder(order)) {
		if _, err := s.outbox.Enqueue(msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}
	}
	return nil
}

// poolAvailable читает остаток пула; вариант ищется по идентификатору,
// зафиксированному в плане.
func (s *Store) poolAvailable(pool domain.StockPool) (int64, error) {
	p, ok := s.products[pool.ProductID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrProductNotFound, pool.ProductID)
	}
	if pool.IsBase() {
		return p.Quantity, nil
	}
	for _, v := range p.Variants {
		if v.ID == pool.VariantID {
			return v.Quantity, nil
		}
	}
	return 0, fmt.Errorf("%w: product %q, variant %q", domain.ErrVariantNotFound, pool.ProductID, pool.VariantID)
}

func (s *Store) applyDecrement(pool domain.StockPool, qty int64) {
	p := s.products[pool.ProductID]
	if pool.IsBase() {
		p.Quantity -= qty
	} else {
		for i := range p.Variants {
			if p.Variants[i].ID == pool.VariantID {
				p.Variants[i].Quantity -= qty
				break
			}
		}
	}
	p.Sold += qty
	s.products[pool.ProductID] = p
}

func (s *Store) applyRestock(adj domain.StockAdjustment) {
	p, ok := s.products[adj.ProductID]
	if !ok {
		return
	}
	switch {
	case adj.VariantMissing:
		// Вариант из снапшота исчез: инкремент пула пропускаем,
		// корректируем только счётчик продаж.
	case adj.VariantID == "":
		p.Quantity += adj.Quantity
	default:
		for i := range p.Variants {
			if p.Variants[i].ID == adj.VariantID {
				p.Variants[i].Quantity += adj.Quantity
				break
			}
		}
	}

	p.Sold -= adj.Quantity
	if p.Sold < 0 {
		p.Sold = 0
	}
	s.products[adj.ProductID] = p
}

func usedCount(c domain.Coupon) int64 {
	if c.UsedCount == nil {
		return 0
	}
	return *c.UsedCount
}

func insufficientStockErr(line domain.PlannedLine) error {
	if line.Pool.IsBase() {
		return fmt.Errorf("%w: product %q", domain.ErrInsufficientStock, line.ProductID)
	}
	return fmt.Errorf("%w: product %q, variant %q", domain.ErrInsufficientStock, line.ProductID, line.Pool.VariantName)
}

func cloneProduct(p domain.Product) domain.Product {
	dst := p
	dst.Variants = append([]domain.ColorVariant(nil), p.Variants...)
	return dst
}

func cloneCoupon(c domain.Coupon) domain.Coupon {
	dst := c
	if c.MinOrderMinor != nil {
		v := *c.MinOrderMinor
		dst.MinOrderMinor = &v
	}
	if c.UsageLimit != nil {
		v := *c.UsageLimit
		dst.UsageLimit = &v
	}
	if c.UsedCount != nil {
		v := *c.UsedCount
		dst.UsedCount = &v
	}
	if c.ExpiresAt != nil {
		v := *c.ExpiresAt
		dst.ExpiresAt = &v
	}
	if c.DeletedAt != nil {
		v := *c.DeletedAt
		dst.DeletedAt = &v
	}
	return dst
}

func cloneOrder(o domain.Order) domain.Order {
	dst := o
	dst.Lines = make([]domain.OrderLine, len(o.Lines))
	for i, line := range o.Lines {
		dst.Lines[i] = line
		dst.Lines[i].Color = cloneSelector(line.Color)
	}
	return dst
}

func cloneSelector(sel *domain.ColorSelector) *domain.ColorSelector {
	if sel == nil {
		return nil
	}
	v := *sel
	return &v
}

var (
	_ domain.CatalogStore = (*Store)(nil)
	_ domain.CouponStore  = (*Store)(nil)
	_ domain.OrderStore   = (*Store)(nil)
)
