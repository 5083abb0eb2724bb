// Package httpapi — HTTP-поверхность движка заказов поверх chi.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/service/checkout"
)

// Заголовки, через которые передаётся идентичность актора.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// Handler обслуживает REST-операции жизненного цикла заказов.
type Handler struct {
	engine *checkout.Engine
	logger *log.Entry
}

// NewHandler создаёт HTTP-обработчик поверх движка заказов.
func NewHandler(engine *checkout.Engine, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Handler{engine: engine, logger: logger}
}

// Register навешивает маршруты на роутер. Маршрут создания заказа принимает
// опциональную обёртку идемпотентности.
func (h *Handler) Register(r chi.Router, idempotency func(http.Handler) http.Handler) {
	createOrder := http.Handler(http.HandlerFunc(h.createOrder))
	if idempotency != nil {
		createOrder = idempotency(createOrder)
	}

	r.Method(http.MethodPost, "/orders", createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Delete("/orders/{id}", h.deleteOrder)
	r.Post("/coupons/validate", h.validateCoupon)
}

type lineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Color     string `json:"color,omitempty"`
}

type createOrderRequest struct {
	Lines           []lineRequest `json:"lines"`
	CouponCode      string        `json:"coupon_code,omitempty"`
	ShippingAddress string        `json:"shipping_address,omitempty"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type validateCouponRequest struct {
	Code          string `json:"code"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

type validateCouponResponse struct {
	Code          string `json:"code"`
	DiscountMinor int64  `json:"discount_minor"`
	FinalMinor    int64  `json:"final_minor"`
}

type colorResponse struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type lineResponse struct {
	ID              string         `json:"id"`
	ProductID       string         `json:"product_id"`
	Quantity        int32          `json:"quantity"`
	UnitPriceMinor  int64          `json:"unit_price_minor"`
	TotalPriceMinor int64          `json:"total_price_minor"`
	Color           *colorResponse `json:"color,omitempty"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderResponse struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"user_id"`
	Status          string                  `json:"status"`
	SubtotalMinor   int64                   `json:"subtotal_minor"`
	DiscountMinor   int64                   `json:"discount_minor"`
	TotalMinor      int64                   `json:"total_minor"`
	CouponCode      string                  `json:"coupon_code,omitempty"`
	ShippingAddress string                  `json:"shipping_address,omitempty"`
	PaymentMethod   string                  `json:"payment_method,omitempty"`
	Lines           []lineResponse          `json:"lines"`
	Deleted         bool                    `json:"deleted,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	Timeline        []timelineEventResponse `json:"timeline,omitempty"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := actor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	lines := make([]checkout.LineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, checkout.LineRequest{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Color:     l.Color,
		})
	}

	order, err := h.engine.CreateOrder(r.Context(), checkout.CreateOrderRequest{
		UserID:          actorID,
		Lines:           lines,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order, nil))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(w, r)
	if !ok {
		return
	}

	order, timeline, err := h.engine.GetOrder(r.Context(), chi.URLParam(r, "id"), actorID, role)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, timeline))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := actor(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	orders, err := h.engine.ListOrders(r.Context(), actorID, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order, nil))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": out})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	order, err := h.engine.CancelOrder(r.Context(), chi.URLParam(r, "id"), actorID, role, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(w, r)
	if !ok {
		return
	}

	order, err := h.engine.DeleteOrder(r.Context(), chi.URLParam(r, "id"), actorID, role)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "coupon code is required")
		return
	}

	quote, err := h.engine.ValidateCoupon(r.Context(), req.Code, req.SubtotalMinor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		Code:          quote.Coupon.Code,
		DiscountMinor: quote.DiscountMinor,
		FinalMinor:    quote.FinalMinor,
	})
}

// actor извлекает идентичность из заголовков. Роль по умолчанию — customer;
// неизвестная роль отклоняется, чтобы опечатка не давала админских прав.
func actor(w http.ResponseWriter, r *http.Request) (string, domain.ActorRole, bool) {
	actorID := r.Header.Get(headerUserID)
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return "", "", false
	}

	role := domain.RoleCustomer
	switch raw := r.Header.Get(headerUserRole); raw {
	case "", string(domain.RoleCustomer):
	case string(domain.RoleAdmin):
		role = domain.RoleAdmin
	default:
		writeError(w, http.StatusBadRequest, "unknown role: "+raw)
		return "", "", false
	}
	return actorID, role, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		if errors.Is(err, domain.ErrPersistence) {
			writeError(w, status, "storage is unavailable")
			return
		}
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func toOrderResponse(order domain.Order, timeline []domain.TimelineEvent) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		SubtotalMinor:   order.SubtotalMinor,
		DiscountMinor:   order.DiscountMinor,
		TotalMinor:      order.TotalMinor,
		CouponCode:      order.CouponCode,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		Deleted:         order.Deleted,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		Lines:           make([]lineResponse, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		lr := lineResponse{
			ID:              line.ID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPriceMinor:  line.UnitPriceMinor,
			TotalPriceMinor: line.TotalPriceMinor,
		}
		if line.Color != nil {
			lr.Color = &colorResponse{Name: line.Color.Name, Code: line.Color.Code}
		}
		resp.Lines = append(resp.Lines, lr)
	}
	for _, event := range timeline {
		resp.Timeline = append(resp.Timeline, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
