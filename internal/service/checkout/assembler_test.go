package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/service/coupon"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

func i64(v int64) *int64 { return &v }

func catalogStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	store.SeedProduct(domain.Product{
		ID:         "prod-hoodie",
		Name:       "Hoodie",
		PriceMinor: 5000,
		Quantity:   10,
		Variants: []domain.ColorVariant{
			{ID: "var-red", Name: "Red", Code: "#ff0000", Quantity: 3},
			{ID: "var-blue", Name: "Blue", Code: "#0000ff", Quantity: 5},
		},
	})
	store.SeedProduct(domain.Product{
		ID:         "prod-mug",
		Name:       "Mug",
		PriceMinor: 1500,
		Quantity:   7,
	})
	store.SeedCoupon(domain.Coupon{
		ID:    "cpn-1",
		Code:  "SAVE10",
		Type:  domain.DiscountTypePercent,
		Value: 10,
	})
	return store
}

func newAssembler(store *memory.Store) *Assembler {
	return NewAssembler(store, coupon.NewEvaluator(store))
}

func TestAssembleSnapshotsPricesAndColors(t *testing.T) {
	asm := newAssembler(catalogStore(t))

	plan, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID: "user-1",
		Lines: []LineRequest{
			{ProductID: "prod-hoodie", Quantity: 2, Color: "Red"},
			{ProductID: "prod-mug", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(plan.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(plan.Lines))
	}
	hoodie := plan.Lines[0]
	if hoodie.UnitPriceMinor != 5000 || hoodie.TotalPriceMinor != 10000 {
		t.Fatalf("unexpected hoodie pricing: unit=%d total=%d", hoodie.UnitPriceMinor, hoodie.TotalPriceMinor)
	}
	if hoodie.Color == nil || hoodie.Color.Name != "Red" || hoodie.Color.Code != "#ff0000" {
		t.Fatalf("expected resolved variant snapshot, got %+v", hoodie.Color)
	}
	if hoodie.Pool.VariantID != "var-red" {
		t.Fatalf("expected var-red pool, got %q", hoodie.Pool.VariantID)
	}
	if mug := plan.Lines[1]; mug.Color != nil || !mug.Pool.IsBase() {
		t.Fatalf("expected base pool for mug, got %+v", mug)
	}
	if plan.SubtotalMinor != 11500 || plan.TotalMinor != 11500 {
		t.Fatalf("unexpected totals: subtotal=%d total=%d", plan.SubtotalMinor, plan.TotalMinor)
	}
}

func TestAssembleSelectorAsJSONObject(t *testing.T) {
	asm := newAssembler(catalogStore(t))

	plan, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID: "user-1",
		Lines:  []LineRequest{{ProductID: "prod-hoodie", Quantity: 1, Color: `{"name":"ignored","code":"#0000ff"}`}},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if plan.Lines[0].Pool.VariantID != "var-blue" {
		t.Fatalf("expected code match to win, got %q", plan.Lines[0].Pool.VariantID)
	}
}

func TestAssembleColorRequired(t *testing.T) {
	asm := newAssembler(catalogStore(t))

	_, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID: "user-1",
		Lines:  []LineRequest{{ProductID: "prod-hoodie", Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrColorRequired) {
		t.Fatalf("expected ErrColorRequired, got %v", err)
	}
}

func TestAssembleVariantNotFound(t *testing.T) {
	asm := newAssembler(catalogStore(t))

	_, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID: "user-1",
		Lines:  []LineRequest{{ProductID: "prod-hoodie", Quantity: 1, Color: "Green"}},
	})
	if !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestAssembleInsufficientStock(t *testing.T) {
	asm := newAssembler(catalogStore(t))

	_, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID: "user-1",
		Lines:  []LineRequest{{ProductID: "prod-hoodie", Quantity: 4, Color: "Red"}},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestAssembleAggregatesDemandAcrossLines(t *testing.T) {
	asm := newAssembler(catalogStore(t))

	// Две позиции на один пул: поодиночке проходят, суммарно превышают
	// остаток кружек (7).
	_, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID: "user-1",
		Lines: []LineRequest{
			{ProductID: "prod-mug", Quantity: 4},
			{ProductID: "prod-mug", Quantity: 4},
		},
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestAssembleRejectsBadInput(t *testing.T) {
	asm := newAssembler(catalogStore(t))
	ctx := context.Background()

	if _, err := asm.Assemble(ctx, CreateOrderRequest{Lines: []LineRequest{{ProductID: "prod-mug", Quantity: 1}}}); !errors.Is(err, domain.ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if _, err := asm.Assemble(ctx, CreateOrderRequest{UserID: "user-1"}); !errors.Is(err, domain.ErrLinesRequired) {
		t.Fatalf("expected ErrLinesRequired, got %v", err)
	}
	if _, err := asm.Assemble(ctx, CreateOrderRequest{
		UserID: "user-1",
		Lines:  []LineRequest{{ProductID: "prod-mug", Quantity: 0}},
	}); !errors.Is(err, domain.ErrLineQtyInvalid) {
		t.Fatalf("expected ErrLineQtyInvalid, got %v", err)
	}
	if _, err := asm.Assemble(ctx, CreateOrderRequest{
		UserID: "user-1",
		Lines:  []LineRequest{{ProductID: "prod-ghost", Quantity: 1}},
	}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestAssembleAppliesCoupon(t *testing.T) {
	asm := newAssembler(catalogStore(t))

	plan, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID:     "user-1",
		Lines:      []LineRequest{{ProductID: "prod-mug", Quantity: 2}},
		CouponCode: "SAVE10",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if plan.Coupon == nil || plan.Coupon.Code != "SAVE10" {
		t.Fatalf("expected coupon on plan, got %+v", plan.Coupon)
	}
	if plan.DiscountMinor != 300 || plan.TotalMinor != 2700 {
		t.Fatalf("unexpected discount math: discount=%d total=%d", plan.DiscountMinor, plan.TotalMinor)
	}
}

func TestAssembleCouponBelowMinimum(t *testing.T) {
	store := catalogStore(t)
	expires := time.Now().Add(time.Hour)
	store.SeedCoupon(domain.Coupon{
		ID:            "cpn-min",
		Code:          "BIGSPENDER",
		Type:          domain.DiscountTypeFixed,
		Value:         500,
		MinOrderMinor: i64(10000),
		ExpiresAt:     &expires,
	})
	asm := newAssembler(store)

	_, err := asm.Assemble(context.Background(), CreateOrderRequest{
		UserID:     "user-1",
		Lines:      []LineRequest{{ProductID: "prod-mug", Quantity: 1}},
		CouponCode: "BIGSPENDER",
	})
	if !errors.Is(err, domain.ErrCouponMinimumNotMet) {
		t.Fatalf("expected ErrCouponMinimumNotMet, got %v", err)
	}
}
