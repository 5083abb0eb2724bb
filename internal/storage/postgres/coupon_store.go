package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

type couponStore struct {
	db *sql.DB
}

// NewCouponStore создаёт PostgreSQL-реализацию CouponStore.
func NewCouponStore(store *Store) domain.CouponStore {
	return &couponStore{db: store.DB()}
}

func (r *couponStore) GetActiveByCode(ctx context.Context, code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		c            domain.Coupon
		discountType string
	)
	// Мягко удалённый купон неотличим от несуществующего.
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, discount_type, value, min_order_minor, usage_limit, used_count, expires_at
		FROM coupons
		WHERE code = $1
		  AND deleted_at IS NULL
	`, code).Scan(
		&c.ID, &c.Code, &discountType, &c.Value,
		&c.MinOrderMinor, &c.UsageLimit, &c.UsedCount, &c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, fmt.Errorf("%w: %s", domain.ErrCouponNotFound, code)
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w: %w", domain.ErrPersistence, err)
	}
	c.Type = domain.DiscountType(discountType)

	return c, nil
}

var _ domain.CouponStore = (*couponStore)(nil)
