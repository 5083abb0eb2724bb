package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

type orderStore struct {
	db *sql.DB
}

// NewOrderStore создаёт PostgreSQL-реализацию OrderStore. Контракт «всё или
// ничего» обеспечивается одной транзакцией: условные декременты остатков
// проверяют доступность прямо в WHERE, и любой недобор откатывает всё.
func NewOrderStore(store *Store) domain.OrderStore {
	return &orderStore{db: store.DB()}
}

func (r *orderStore) Commit(ctx context.Context, plan domain.OrderPlan, events domain.EventFactory) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w: %w", domain.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, line := range plan.Lines {
		if err = decrementPool(ctx, tx, line); err != nil {
			return domain.Order{}, err
		}
	}

	if plan.Coupon != nil {
		if err = redeemCoupon(ctx, tx, plan.Coupon.Code); err != nil {
			return domain.Order{}, err
		}
	}

	order := orderFromPlan(plan)
	if err = insertOrder(ctx, tx, order); err != nil {
		return domain.Order{}, err
	}

	// События ложатся в outbox той же транзакцией: откат коммита не оставит
	// ни заказа, ни событий, а упавший enqueue откатит заказ.
	if err = enqueueEventsTx(ctx, tx, order, events); err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit order: %w: %w", domain.ErrPersistence, err)
	}

	return order, nil
}

func (r *orderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderQuery+` WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, err
	}

	lines, err := loadLines(ctx, r.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := selectOrderQuery + `
		WHERE user_id = $1 AND NOT deleted
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		lines, err := loadLines(ctx, r.db, order.ID)
		if err != nil {
			return nil, err
		}
		order.Lines = lines
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w: %w", domain.ErrPersistence, err)
	}

	return orders, nil
}

// Cancel выполняет компенсацию в одной транзакции: заказ блокируется
// FOR UPDATE, поэтому проверка статуса, guard и возврат остатков не могут
// перемежаться с конкурирующей отменой того же заказа.
func (r *orderStore) Cancel(ctx context.Context, orderID string, guard domain.CancelGuard, softDelete bool, events domain.EventFactory) (domain.Order, domain.RestockReport, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, domain.RestockReport{}, fmt.Errorf("begin tx: %w: %w", domain.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var order domain.Order
	order, err = scanOrder(tx.QueryRowContext(ctx, selectOrderQuery+` WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return domain.Order{}, domain.RestockReport{}, err
	}
	if order.Status == domain.OrderStatusCancelled {
		err = domain.ErrAlreadyCancelled
		return domain.Order{}, domain.RestockReport{}, err
	}

	var lines []domain.OrderLine
	lines, err = loadLines(ctx, tx, order.ID)
	if err != nil {
		return domain.Order{}, domain.RestockReport{}, err
	}
	order.Lines = lines

	if guard != nil {
		if err = guard(order); err != nil {
			return domain.Order{}, domain.RestockReport{}, err
		}
	}

	var catalog map[string]domain.Product
	catalog, err = loadCatalogForRestock(ctx, tx, order)
	if err != nil {
		return domain.Order{}, domain.RestockReport{}, err
	}

	adjustments, missing := domain.PlanRestock(order, func(productID string) (domain.Product, bool) {
		p, ok := catalog[productID]
		return p, ok
	})

	for _, adj := range adjustments {
		if err = applyRestock(ctx, tx, adj); err != nil {
			return domain.Order{}, domain.RestockReport{}, err
		}
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    deleted = deleted OR $2,
		    updated_at = $3
		WHERE id = $4
	`, string(domain.OrderStatusCancelled), softDelete, now, order.ID); err != nil {
		err = fmt.Errorf("update order status: %w: %w", domain.ErrPersistence, err)
		return domain.Order{}, domain.RestockReport{}, err
	}

	order.Status = domain.OrderStatusCancelled
	if softDelete {
		order.Deleted = true
	}
	order.UpdatedAt = now

	// Финальное состояние заказа уходит в outbox до фиксации транзакции.
	if err = enqueueEventsTx(ctx, tx, order, events); err != nil {
		return domain.Order{}, domain.RestockReport{}, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("commit cancel: %w: %w", domain.ErrPersistence, err)
		return domain.Order{}, domain.RestockReport{}, err
	}

	return order, domain.RestockReport{MissingVariants: missing}, nil
}

func enqueueEventsTx(ctx context.Context, tx *sql.Tx, order domain.Order, events domain.EventFactory) error {
	if events == nil {
		return nil
	}
	for _, msg := range events(order) {
		if _, err := insertOutboxMessage(ctx, tx, msg); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
	}
	return nil
}

// decrementPool списывает остаток условным UPDATE: WHERE quantity >= n
// делает проверку и декремент одним атомарным действием.
func decrementPool(ctx context.Context, tx *sql.Tx, line domain.PlannedLine) error {
	qty := int64(line.Quantity)

	if line.Pool.IsBase() {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $1,
			    sold = sold + $1,
			    updated_at = NOW()
			WHERE id = $2
			  AND quantity >= $1
		`, qty, line.ProductID)
		if err != nil {
			return fmt.Errorf("decrement product stock: %w: %w", domain.ErrPersistence, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w: %w", domain.ErrPersistence, err)
		}
		if affected == 0 {
			exists, err := rowExists(ctx, tx, `SELECT 1 FROM products WHERE id = $1`, line.ProductID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
			}
			return fmt.Errorf("%w: product %q", domain.ErrInsufficientStock, line.ProductID)
		}
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE color_variants
		SET quantity = quantity - $1
		WHERE id = $2
		  AND product_id = $3
		  AND quantity >= $1
	`, qty, line.Pool.VariantID, line.ProductID)
	if err != nil {
		return fmt.Errorf("decrement variant stock: %w: %w", domain.ErrPersistence, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w: %w", domain.ErrPersistence, err)
	}
	if affected == 0 {
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM color_variants WHERE id = $1 AND product_id = $2`, line.Pool.VariantID, line.ProductID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: product %q, variant %q", domain.ErrVariantNotFound, line.ProductID, line.Pool.VariantName)
		}
		return fmt.Errorf("%w: product %q, variant %q", domain.ErrInsufficientStock, line.ProductID, line.Pool.VariantName)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET sold = sold + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, qty, line.ProductID); err != nil {
		return fmt.Errorf("increment product sold: %w: %w", domain.ErrPersistence, err)
	}

	return nil
}

// redeemCoupon атомарно инкрементирует used_count с проверкой лимита в WHERE.
func redeemCoupon(ctx context.Context, tx *sql.Tx, code string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = COALESCE(used_count, 0) + 1
		WHERE code = $1
		  AND deleted_at IS NULL
		  AND (usage_limit IS NULL OR COALESCE(used_count, 0) < usage_limit)
	`, code)
	if err != nil {
		return fmt.Errorf("redeem coupon: %w: %w", domain.ErrPersistence, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w: %w", domain.ErrPersistence, err)
	}
	if affected == 0 {
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM coupons WHERE code = $1 AND deleted_at IS NULL`, code)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", domain.ErrCouponNotFound, code)
		}
		return fmt.Errorf("%w: %s", domain.ErrCouponExhausted, code)
	}
	return nil
}

func applyRestock(ctx context.Context, tx *sql.Tx, adj domain.StockAdjustment) error {
	switch {
	case adj.VariantMissing:
		// Вариант из снапшота исчез: пул не трогаем, корректируем
		// только счётчик продаж ниже.
	case adj.VariantID == "":
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $1
			WHERE id = $2
		`, adj.Quantity, adj.ProductID); err != nil {
			return fmt.Errorf("restock product: %w: %w", domain.ErrPersistence, err)
		}
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE color_variants
			SET quantity = quantity + $1
			WHERE id = $2
		`, adj.Quantity, adj.VariantID); err != nil {
			return fmt.Errorf("restock variant: %w: %w", domain.ErrPersistence, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET sold = GREATEST(sold - $1, 0),
		    updated_at = NOW()
		WHERE id = $2
	`, adj.Quantity, adj.ProductID); err != nil {
		return fmt.Errorf("decrement product sold: %w: %w", domain.ErrPersistence, err)
	}

	return nil
}

func orderFromPlan(plan domain.OrderPlan) domain.Order {
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
		var color *domain.ColorSelector
		if line.Color != nil {
			c := *line.Color
			color = &c
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:              uuid.NewString(),
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPriceMinor:  line.UnitPriceMinor,
			TotalPriceMinor: line.TotalPriceMinor,
			Color:           color,
			CreatedAt:       now,
		})
	}
	return order
}

func insertOrder(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, subtotal_minor, discount_minor, total_minor,
			coupon_id, coupon_code, shipping_address, payment_method, deleted,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		order.ID, order.UserID, string(order.Status),
		order.SubtotalMinor, order.DiscountMinor, order.TotalMinor,
		order.CouponID, order.CouponCode, order.ShippingAddress, order.PaymentMethod,
		order.Deleted, order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert order: %w: %w", domain.ErrPersistence, err)
	}

	for _, line := range order.Lines {
		var colorName, colorCode sql.NullString
		if line.Color != nil {
			colorName = sql.NullString{String: line.Color.Name, Valid: true}
			colorCode = sql.NullString{String: line.Color.Code, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, product_id, quantity,
				unit_price_minor, total_price_minor,
				color_name, color_code, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			line.ID, order.ID, line.ProductID, line.Quantity,
			line.UnitPriceMinor, line.TotalPriceMinor,
			colorName, colorCode, line.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order line: %w: %w", domain.ErrPersistence, err)
		}
	}

	return nil
}

const selectOrderQuery = `
	SELECT id, user_id, status, subtotal_minor, discount_minor, total_minor,
	       coupon_id, coupon_code, shipping_address, payment_method, deleted,
	       created_at, updated_at
	FROM orders
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.UserID, &status,
		&order.SubtotalMinor, &order.DiscountMinor, &order.TotalMinor,
		&order.CouponID, &order.CouponCode, &order.ShippingAddress, &order.PaymentMethod,
		&order.Deleted, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order: %w: %w", domain.ErrPersistence, err)
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func loadLines(ctx context.Context, q rowQuerier, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, quantity, unit_price_minor, total_price_minor,
		       color_name, color_code, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var (
			line                 domain.OrderLine
			colorName, colorCode sql.NullString
		)
		if err := rows.Scan(
			&line.ID, &line.ProductID, &line.Quantity,
			&line.UnitPriceMinor, &line.TotalPriceMinor,
			&colorName, &colorCode, &line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w: %w", domain.ErrPersistence, err)
		}
		if colorName.Valid || colorCode.Valid {
			line.Color = &domain.ColorSelector{Name: colorName.String, Code: colorCode.String}
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w: %w", domain.ErrPersistence, err)
	}

	return lines, nil
}

// loadCatalogForRestock читает внутри транзакции актуальное состояние товаров
// из позиций заказа, чтобы компенсация сверялась со снапшотами цвета.
func loadCatalogForRestock(ctx context.Context, tx *sql.Tx, order domain.Order) (map[string]domain.Product, error) {
	catalog := make(map[string]domain.Product, len(order.Lines))
	for _, line := range order.Lines {
		if _, ok := catalog[line.ProductID]; ok {
			continue
		}

		var p domain.Product
		err := tx.QueryRowContext(ctx, `
			SELECT id, name, price_minor, discount_minor, quantity, sold
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, line.ProductID).Scan(&p.ID, &p.Name, &p.PriceMinor, &p.DiscountMinor, &p.Quantity, &p.Sold)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("select product for restock: %w: %w", domain.ErrPersistence, err)
		}

		variants, err := loadVariants(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Variants = variants
		catalog[p.ID] = p
	}

	return catalog, nil
}

func rowExists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check row exists: %w: %w", domain.ErrPersistence, err)
}

var _ domain.OrderStore = (*orderStore)(nil)
