package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopcore/internal/metrics"
	"github.com/vladislavdragonenkov/shopcore/internal/service/coupon"
)

// Engine — фасад жизненного цикла заказа: сборка плана, атомарный коммит,
// отмена с компенсацией остатков и мягкое удаление. Outbox-события строит
// движок, но сохраняет их OrderStore в одной критической секции со складскими
// мутациями. Timeline и Kafka producer опциональны: без них движок работает,
// но журнал и прямая публикация не ведутся.
type Engine struct {
	assembler *Assembler
	orders    domain.OrderStore
	evaluator *coupon.Evaluator
	timeline  domain.TimelineRepository
	producer  *kafka.Producer
	metrics   *metrics.EngineMetrics
	logger    *log.Entry
}

// NewEngine создаёт движок с обязательными зависимостями.
func NewEngine(orders domain.OrderStore, assembler *Assembler, evaluator *coupon.Evaluator, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Engine{
		assembler: assembler,
		orders:    orders,
		evaluator: evaluator,
		metrics:   metrics.NewEngineMetrics(),
		logger:    logger,
	}
}

// WithTimeline подключает журнал событий заказа.
func (e *Engine) WithTimeline(timeline domain.TimelineRepository) *Engine {
	e.timeline = timeline
	return e
}

// WithKafka подключает прямую публикацию событий в Kafka в дополнение к outbox.
func (e *Engine) WithKafka(producer *kafka.Producer) *Engine {
	e.producer = producer
	return e
}

// CreateOrder собирает план по запросу и атомарно коммитит его: либо
// создаются заказ и все списания остатков, либо ничего.
func (e *Engine) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	start := time.Now()
	e.metrics.RecordCommitStarted()
	defer func() {
		e.metrics.RecordCommitFinished()
		e.metrics.RecordCommitDuration(time.Since(start))
	}()

	plan, err := e.assembler.Assemble(ctx, req)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", req.UserID).Debug("order assembly rejected")
		return domain.Order{}, err
	}

	order, err := e.orders.Commit(ctx, plan, e.orderEvents(kafka.EventTypeOrderCreated, "", plan.Coupon != nil))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			e.metrics.RecordCommitConflict("insufficient_stock")
		case errors.Is(err, domain.ErrCouponExhausted):
			e.metrics.RecordCommitConflict("coupon_exhausted")
		}
		e.logger.WithError(err).WithField("user_id", req.UserID).Warn("order commit failed")
		return domain.Order{}, err
	}

	e.metrics.RecordOrderCommitted()
	e.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_minor": order.TotalMinor,
		"lines":       len(order.Lines),
	}).Info("order committed")

	e.emitOrderEvent(order, kafka.EventTypeOrderCreated, "")
	if plan.Coupon != nil {
		e.metrics.RecordCouponRedemption()
		e.emitCouponEvent(order)
	}
	return order, nil
}

// CancelOrder атомарно отменяет заказ и возвращает остатки на склад.
// Покупатель может отменять только собственные pending/processing заказы,
// админ — любой неотменённый заказ. Повторная отмена возвращает
// ErrAlreadyCancelled без каких-либо складских движений.
func (e *Engine) CancelOrder(ctx context.Context, orderID, actorID string, role domain.ActorRole, reason string) (domain.Order, error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordOperationDuration("cancel", time.Since(start))
	}()

	guard := func(o domain.Order) error {
		if role != domain.RoleAdmin && o.UserID != actorID {
			return domain.ErrForbidden
		}
		return o.CancellableBy(role)
	}

	order, report, err := e.orders.Cancel(ctx, orderID, guard, false, e.orderEvents(kafka.EventTypeOrderCancelled, reason, false))
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"actor_id": actorID,
			"role":     role,
		}).Warn("order cancel failed")
		return domain.Order{}, err
	}

	e.reportMissingVariants(order.ID, report)
	e.metrics.RecordOrderCancelled()
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"actor_id": actorID,
		"reason":   reason,
	}).Info("order cancelled")

	e.emitOrderEvent(order, kafka.EventTypeOrderCancelled, reason)
	return order, nil
}

// DeleteOrder мягко удаляет pending-заказ: выполняет ту же компенсацию
// остатков, что и отмена, и скрывает заказ из пользовательских списков.
func (e *Engine) DeleteOrder(ctx context.Context, orderID, actorID string, role domain.ActorRole) (domain.Order, error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordOperationDuration("delete", time.Since(start))
	}()

	guard := func(o domain.Order) error {
		if role != domain.RoleAdmin && o.UserID != actorID {
			return domain.ErrForbidden
		}
		return o.Deletable()
	}

	order, report, err := e.orders.Cancel(ctx, orderID, guard, true, e.orderEvents(kafka.EventTypeOrderDeleted, "", false))
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"actor_id": actorID,
		}).Warn("order delete failed")
		return domain.Order{}, err
	}

	e.reportMissingVariants(order.ID, report)
	e.metrics.RecordOrderDeleted()
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"actor_id": actorID,
	}).Info("order soft-deleted")

	e.emitOrderEvent(order, kafka.EventTypeOrderDeleted, "")
	return order, nil
}

// ValidateCoupon рассчитывает скидку купона для заданной суммы, ничего не
// резервируя: used_count изменяется только при коммите заказа.
func (e *Engine) ValidateCoupon(ctx context.Context, code string, subtotalMinor int64) (coupon.Quote, error) {
	return e.evaluator.Evaluate(ctx, code, subtotalMinor)
}

// GetOrder возвращает заказ вместе с его журналом событий. Чужие и мягко
// удалённые заказы для не-админов неотличимы от несуществующих.
func (e *Engine) GetOrder(ctx context.Context, orderID, actorID string, role domain.ActorRole) (domain.Order, []domain.TimelineEvent, error) {
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if role != domain.RoleAdmin {
		if order.UserID != actorID || order.Deleted {
			return domain.Order{}, nil, domain.ErrOrderNotFound
		}
	}

	var events []domain.TimelineEvent
	if e.timeline != nil {
		events, err = e.timeline.List(order.ID)
		if err != nil {
			e.logger.WithError(err).WithField("order_id", order.ID).Warn("load order timeline failed")
			events = nil
		}
	}
	return order, events, nil
}

// ListOrders возвращает заказы пользователя, новые первыми.
func (e *Engine) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return e.orders.ListByUser(ctx, userID, limit)
}

func (e *Engine) reportMissingVariants(orderID string, report domain.RestockReport) {
	for _, missing := range report.MissingVariants {
		e.metrics.RecordRestockMissingVariant()
		e.logger.WithFields(log.Fields{
			"order_id": orderID,
			"product":  missing,
		}).Warn("restock skipped variant missing from catalog")
	}
}

// orderEvents возвращает фабрику outbox-событий для OrderStore: хранилище
// вызывает её с финальным состоянием заказа внутри своей критической секции,
// поэтому события и складские мутации сохраняются одной атомарной единицей.
func (e *Engine) orderEvents(eventType kafka.EventType, reason string, withCoupon bool) domain.EventFactory {
	return func(order domain.Order) []domain.OutboxMessage {
		msgs := make([]domain.OutboxMessage, 0, 2)

		var metadata map[string]interface{}
		if reason != "" {
			metadata = map[string]interface{}{"reason": reason}
		}
		orderEvent := kafka.NewOrderEvent(eventType, order.ID, order.UserID, string(order.Status), order.TotalMinor, metadata)
		if msg, ok := e.encodeEvent(order.ID, string(eventType), orderEvent); ok {
			msgs = append(msgs, msg)
		}

		if withCoupon {
			couponEvent := kafka.NewCouponEvent(order.CouponCode, order.ID, order.DiscountMinor)
			if msg, ok := e.encodeEvent(order.ID, string(kafka.EventTypeCouponRedeemed), couponEvent); ok {
				msgs = append(msgs, msg)
			}
		}

		return msgs
	}
}

func (e *Engine) encodeEvent(orderID, eventType string, event interface{}) (domain.OutboxMessage, bool) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("marshal event failed")
		return domain.OutboxMessage{}, false
	}
	return domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       payload,
	}, true
}

// emitOrderEvent ведёт пост-коммитную сторону события: журнал заказа и (если
// настроена) прямая публикация в Kafka. Outbox-сообщение к этому моменту уже
// сохранено хранилищем вместе с коммитом.
func (e *Engine) emitOrderEvent(order domain.Order, eventType kafka.EventType, reason string) {
	var metadata map[string]interface{}
	if reason != "" {
		metadata = map[string]interface{}{"reason": reason}
	}
	event := kafka.NewOrderEvent(eventType, order.ID, order.UserID, string(order.Status), order.TotalMinor, metadata)
	e.dispatch(order.ID, string(eventType), reason, event)
}

func (e *Engine) emitCouponEvent(order domain.Order) {
	event := kafka.NewCouponEvent(order.CouponCode, order.ID, order.DiscountMinor)
	e.dispatch(order.ID, string(kafka.EventTypeCouponRedeemed), fmt.Sprintf("coupon %s", order.CouponCode), event)
}

func (e *Engine) dispatch(orderID, eventType, reason string, event interface{}) {
	e.metrics.RecordOutboxEvent()

	if e.timeline != nil {
		entry := domain.TimelineEvent{
			OrderID:  orderID,
			Type:     eventType,
			Reason:   reason,
			Occurred: time.Now().UTC(),
		}
		if err := e.timeline.Append(entry); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else {
			e.metrics.RecordTimelineEvent()
		}
	}

	if e.producer != nil {
		if err := e.producer.PublishEvent(kafka.TopicOrderEvents, orderID, event); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"event":    eventType,
			}).Warn("publish event to kafka failed")
		}
	}
}
