package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type catalogStore struct {
	db *sql.DB
}

// NewCatalogStore создаёт PostgreSQL-реализацию CatalogStore.
func NewCatalogStore(store *Store) domain.CatalogStore {
	return &catalogStore{db: store.DB()}
}

func (r *catalogStore) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price_minor, discount_minor, quantity, sold
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.PriceMinor, &p.DiscountMinor, &p.Quantity, &p.Sold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
		return domain.Product{}, fmt.Errorf("select product: %w: %w", domain.ErrPersistence, err)
	}

	variants, err := loadVariants(ctx, r.db, p.ID)
	if err != nil {
		return domain.Product{}, err
	}
	p.Variants = variants

	return p, nil
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadVariants(ctx context.Context, q rowQuerier, productID string) ([]domain.ColorVariant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, code, quantity
		FROM color_variants
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("load color variants: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	variants := make([]domain.ColorVariant, 0)
	for rows.Next() {
		var v domain.ColorVariant
		if err := rows.Scan(&v.ID, &v.Name, &v.Code, &v.Quantity); err != nil {
			return nil, fmt.Errorf("scan color variant: %w: %w", domain.ErrPersistence, err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate color variants: %w: %w", domain.ErrPersistence, err)
	}

	return variants, nil
}

var _ domain.CatalogStore = (*catalogStore)(nil)
