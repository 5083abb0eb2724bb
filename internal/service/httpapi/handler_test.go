package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/service/checkout"
	"github.com/vladislavdragonenkov/shopcore/internal/service/coupon"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SeedProduct(domain.Product{
		ID:         "prod-hoodie",
		Name:       "Hoodie",
		PriceMinor: 5000,
		Variants: []domain.ColorVariant{
			{ID: "var-red", Name: "Red", Code: "#ff0000", Quantity: 3},
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

	evaluator := coupon.NewEvaluator(store)
	engine := checkout.NewEngine(store, checkout.NewAssembler(store, evaluator), evaluator, nil).
		WithTimeline(memory.NewTimelineRepository())

	router := NewRouter()
	NewHandler(engine, nil).Register(router, nil)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store
}

func doRequest(t *testing.T, server *httptest.Server, method, path, userID, role string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if userID != "" {
		req.Header.Set(headerUserID, userID)
	}
	if role != "" {
		req.Header.Set(headerUserRole, role)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeOrder(t *testing.T, resp *http.Response) orderResponse {
	t.Helper()
	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		t.Fatalf("decode order response: %v", err)
	}
	return order
}

func hoodieBody(qty int32) createOrderRequest {
	return createOrderRequest{
		Lines: []lineRequest{{ProductID: "prod-hoodie", Quantity: qty, Color: "Red"}},
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/orders", "user-1", "", createOrderRequest{
		Lines: []lineRequest{
			{ProductID: "prod-hoodie", Quantity: 2, Color: "Red"},
			{ProductID: "prod-mug", Quantity: 1},
		},
		CouponCode: "SAVE10",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	order := decodeOrder(t, resp)
	if order.Status != "pending" {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.SubtotalMinor != 11500 || order.DiscountMinor != 1150 || order.TotalMinor != 10350 {
		t.Fatalf("unexpected totals: %+v", order)
	}
	if len(order.Lines) != 2 || order.Lines[0].Color == nil || order.Lines[0].Color.Name != "Red" {
		t.Fatalf("unexpected lines: %+v", order.Lines)
	}
}

func TestCreateOrderConflictAndValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/orders", "user-1", "", hoodieBody(5))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodPost, "/orders", "user-1", "", createOrderRequest{
		Lines: []lineRequest{{ProductID: "prod-hoodie", Quantity: 1}},
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing color, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodPost, "/orders", "user-1", "", createOrderRequest{
		Lines: []lineRequest{{ProductID: "prod-ghost", Quantity: 1}},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodPost, "/orders", "", "", hoodieBody(1))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor header, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodPost, "/orders", "user-1", "superuser", hoodieBody(1))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", resp.StatusCode)
	}
}

func TestGetOrderEndpointVisibility(t *testing.T) {
	server, _ := newTestServer(t)

	created := decodeOrder(t, doRequest(t, server, http.MethodPost, "/orders", "user-1", "", hoodieBody(1)))

	resp := doRequest(t, server, http.MethodGet, "/orders/"+created.ID, "user-1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", resp.StatusCode)
	}
	order := decodeOrder(t, resp)
	if len(order.Timeline) != 1 || order.Timeline[0].Type != "order.created" {
		t.Fatalf("expected order.created timeline entry, got %+v", order.Timeline)
	}

	resp = doRequest(t, server, http.MethodGet, "/orders/"+created.ID, "user-2", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodGet, "/orders/"+created.ID, "admin-1", "admin", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.StatusCode)
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	server, store := newTestServer(t)

	created := decodeOrder(t, doRequest(t, server, http.MethodPost, "/orders", "user-1", "", hoodieBody(2)))

	resp := doRequest(t, server, http.MethodPost, "/orders/"+created.ID+"/cancel", "user-1", "", cancelOrderRequest{Reason: "changed my mind"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cancelled := decodeOrder(t, resp); cancelled.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	product, err := store.GetProduct(context.Background(), "prod-hoodie")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.Variants[0].Quantity != 3 {
		t.Fatalf("expected restock to 3, got %d", product.Variants[0].Quantity)
	}

	resp = doRequest(t, server, http.MethodPost, "/orders/"+created.ID+"/cancel", "user-1", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for repeated cancel, got %d", resp.StatusCode)
	}
}

func TestDeleteOrderEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	created := decodeOrder(t, doRequest(t, server, http.MethodPost, "/orders", "user-1", "", hoodieBody(1)))

	resp := doRequest(t, server, http.MethodDelete, "/orders/"+created.ID, "user-2", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger delete, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodDelete, "/orders/"+created.ID, "user-1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodGet, "/orders", "user-1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for list, got %d", resp.StatusCode)
	}
	var listed struct {
		Orders []orderResponse `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Orders) != 0 {
		t.Fatalf("expected deleted order hidden, got %d orders", len(listed.Orders))
	}
}

func TestValidateCouponEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/coupons/validate", "", "", validateCouponRequest{Code: "SAVE10", SubtotalMinor: 20000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var quote validateCouponResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.DiscountMinor != 2000 || quote.FinalMinor != 18000 {
		t.Fatalf("unexpected quote: %+v", quote)
	}

	resp = doRequest(t, server, http.MethodPost, "/coupons/validate", "", "", validateCouponRequest{Code: "NOPE", SubtotalMinor: 100})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown coupon, got %d", resp.StatusCode)
	}
}
