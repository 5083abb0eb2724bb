package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewEngineMetrics(t *testing.T) {
	metrics := NewEngineMetrics()

	if metrics == nil {
		t.Fatal("NewEngineMetrics should not return nil")
	}

	if metrics.ordersCommitted == nil {
		t.Error("ordersCommitted counter should not be nil")
	}

	if metrics.ordersCancelled == nil {
		t.Error("ordersCancelled counter should not be nil")
	}

	if metrics.ordersDeleted == nil {
		t.Error("ordersDeleted counter should not be nil")
	}

	if metrics.commitConflicts == nil {
		t.Error("commitConflicts counter vec should not be nil")
	}

	if metrics.couponRedemptions == nil {
		t.Error("couponRedemptions counter should not be nil")
	}

	if metrics.restockMissingVariants == nil {
		t.Error("restockMissingVariants counter should not be nil")
	}

	if metrics.commitDuration == nil {
		t.Error("commitDuration histogram should not be nil")
	}

	if metrics.operationDuration == nil {
		t.Error("operationDuration histogram vec should not be nil")
	}

	if metrics.timelineEvents == nil {
		t.Error("timelineEvents counter should not be nil")
	}

	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}

	if metrics.inflightCommits == nil {
		t.Error("inflightCommits gauge should not be nil")
	}
}

func TestNewEngineMetrics_AlreadyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newEngineMetricsWithRegisterer(reg)
	second := newEngineMetricsWithRegisterer(reg)

	// Повторная регистрация должна вернуть существующие коллекторы.
	if first.ordersCommitted != second.ordersCommitted {
		t.Error("expected the same ordersCommitted collector on re-registration")
	}
}

func TestRecordOrderCommitted(t *testing.T) {
	reg := prometheus.NewRegistry()

	ordersCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_orders_committed_total",
		Help: "Test counter",
	})
	inflightCommits := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_inflight_commits",
		Help: "Test gauge",
	})

	reg.MustRegister(ordersCommitted, inflightCommits)

	metrics := &EngineMetrics{
		ordersCommitted: ordersCommitted,
		inflightCommits: inflightCommits,
	}

	metrics.RecordCommitStarted()
	metrics.RecordOrderCommitted()
	metrics.RecordCommitFinished()

	metric := &dto.Metric{}
	if err := ordersCommitted.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	gaugeMetric := &dto.Metric{}
	if err := inflightCommits.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gaugeMetric.Gauge.GetValue() != 0.0 {
		t.Errorf("expected 0 inflight commits, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordCommitConflict(t *testing.T) {
	reg := prometheus.NewRegistry()

	commitConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_commit_conflicts_total",
		Help: "Test counter vec",
	}, []string{"reason"})

	reg.MustRegister(commitConflicts)

	metrics := &EngineMetrics{commitConflicts: commitConflicts}

	metrics.RecordCommitConflict("insufficient_stock")
	metrics.RecordCommitConflict("insufficient_stock")
	metrics.RecordCommitConflict("coupon_exhausted")

	metric := &dto.Metric{}
	counter, err := commitConflicts.GetMetricWithLabelValues("insufficient_stock")
	if err != nil {
		t.Fatalf("get labelled counter: %v", err)
	}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordCommitDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	commitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_commit_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(commitDuration)

	metrics := &EngineMetrics{commitDuration: commitDuration}

	metrics.RecordCommitDuration(100 * time.Millisecond)
	metrics.RecordCommitDuration(500 * time.Millisecond)
	metrics.RecordCommitDuration(1 * time.Second)

	metric := &dto.Metric{}
	if err := commitDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("expected 3 samples, got %d", metric.Histogram.GetSampleCount())
	}

	// Check sum is approximately correct (0.1 + 0.5 + 1.0 = 1.6)
	sum := metric.Histogram.GetSampleSum()
	if sum < 1.5 || sum > 1.7 {
		t.Errorf("expected sum around 1.6, got %f", sum)
	}
}

func TestRecordOperationDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_operation_duration_seconds",
		Help:    "Test histogram vec",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"operation"})

	reg.MustRegister(operationDuration)

	metrics := &EngineMetrics{operationDuration: operationDuration}

	metrics.RecordOperationDuration("create_order", 50*time.Millisecond)
	metrics.RecordOperationDuration("cancel_order", 100*time.Millisecond)

	createMetric := &dto.Metric{}
	observer := operationDuration.WithLabelValues("create_order")
	if err := observer.(prometheus.Histogram).Write(createMetric); err != nil {
		t.Fatalf("failed to write create_order metric: %v", err)
	}

	if createMetric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample for create_order, got %d", createMetric.Histogram.GetSampleCount())
	}
}

func TestRecordCouponAndRestockCounters(t *testing.T) {
	reg := prometheus.NewRegistry()

	couponRedemptions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_coupon_redemptions_total",
		Help: "Test counter",
	})
	restockMissing := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_restock_missing_variants_total",
		Help: "Test counter",
	})

	reg.MustRegister(couponRedemptions, restockMissing)

	metrics := &EngineMetrics{
		couponRedemptions:      couponRedemptions,
		restockMissingVariants: restockMissing,
	}

	metrics.RecordCouponRedemption()
	metrics.RecordRestockMissingVariant()
	metrics.RecordRestockMissingVariant()

	metric := &dto.Metric{}
	if err := couponRedemptions.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 coupon redemption, got %f", metric.Counter.GetValue())
	}

	metric = &dto.Metric{}
	if err := restockMissing.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 missing variants, got %f", metric.Counter.GetValue())
	}
}

func TestRecordTimelineAndOutboxEvents(t *testing.T) {
	reg := prometheus.NewRegistry()

	timelineEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_timeline_events_total",
		Help: "Test counter",
	})
	outboxEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_outbox_events_total",
		Help: "Test counter",
	})

	reg.MustRegister(timelineEvents, outboxEvents)

	metrics := &EngineMetrics{
		timelineEvents: timelineEvents,
		outboxEvents:   outboxEvents,
	}

	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()

	metric := &dto.Metric{}
	if err := timelineEvents.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 3.0 {
		t.Errorf("expected counter value 3.0, got %f", metric.Counter.GetValue())
	}

	metric = &dto.Metric{}
	if err := outboxEvents.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}
}
