package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics содержит метрики транзакционного движка заказов.
type EngineMetrics struct {
	// Счётчики операций
	ordersCommitted prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersDeleted   prometheus.Counter
	commitConflicts *prometheus.CounterVec

	// Купоны и компенсации
	couponRedemptions      prometheus.Counter
	restockMissingVariants prometheus.Counter

	// Гистограммы времени выполнения
	commitDuration    prometheus.Histogram
	operationDuration *prometheus.HistogramVec

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для заказов в обработке
	inflightCommits prometheus.Gauge
}

// NewEngineMetrics создаёт новый экземпляр метрик движка.
func NewEngineMetrics() *EngineMetrics {
	return newEngineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newEngineMetricsWithRegisterer(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EngineMetrics{
		ordersCommitted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopcore_orders_committed_total",
			Help: "Total number of orders committed successfully",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopcore_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopcore_orders_deleted_total",
			Help: "Total number of orders soft-deleted",
		}),
		commitConflicts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shopcore_commit_conflicts_total",
			Help: "Total number of rejected commits grouped by reason",
		}, []string{"reason"}),
		couponRedemptions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopcore_coupon_redemptions_total",
			Help: "Total number of coupons redeemed at commit",
		}),
		restockMissingVariants: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopcore_restock_missing_variants_total",
			Help: "Total number of restock lines skipped because the variant vanished from the catalog",
		}),
		commitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shopcore_commit_duration_seconds",
			Help:    "Duration of order commits in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shopcore_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopcore_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shopcore_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inflightCommits: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shopcore_inflight_commits",
			Help: "Number of commits currently in progress",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCommitted увеличивает счётчик успешных коммитов.
func (m *EngineMetrics) RecordOrderCommitted() {
	m.ordersCommitted.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *EngineMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordOrderDeleted увеличивает счётчик мягко удалённых заказов.
func (m *EngineMetrics) RecordOrderDeleted() {
	m.ordersDeleted.Inc()
}

// RecordCommitConflict увеличивает счётчик отклонённых коммитов по причине.
func (m *EngineMetrics) RecordCommitConflict(reason string) {
	m.commitConflicts.WithLabelValues(reason).Inc()
}

// RecordCouponRedemption увеличивает счётчик погашенных купонов.
func (m *EngineMetrics) RecordCouponRedemption() {
	m.couponRedemptions.Inc()
}

// RecordRestockMissingVariant увеличивает счётчик пропавших при компенсации вариантов.
func (m *EngineMetrics) RecordRestockMissingVariant() {
	m.restockMissingVariants.Inc()
}

// RecordCommitStarted увеличивает количество коммитов в обработке.
func (m *EngineMetrics) RecordCommitStarted() {
	m.inflightCommits.Inc()
}

// RecordCommitFinished уменьшает количество коммитов в обработке.
func (m *EngineMetrics) RecordCommitFinished() {
	m.inflightCommits.Dec()
}

// RecordCommitDuration записывает время выполнения коммита.
func (m *EngineMetrics) RecordCommitDuration(duration time.Duration) {
	m.commitDuration.Observe(duration.Seconds())
}

// RecordOperationDuration записывает время выполнения операции движка.
func (m *EngineMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *EngineMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *EngineMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
