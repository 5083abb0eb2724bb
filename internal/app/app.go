// Package app собирает зависимости и запускает HTTP-сервис движка заказов.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/shopcore/internal/health"
	"github.com/vladislavdragonenkov/shopcore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopcore/internal/service/checkout"
	"github.com/vladislavdragonenkov/shopcore/internal/service/coupon"
	"github.com/vladislavdragonenkov/shopcore/internal/service/httpapi"
	"github.com/vladislavdragonenkov/shopcore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shopcore/internal/service/outbox"
	"github.com/vladislavdragonenkov/shopcore/internal/version"
)

// Run запускает приложение и блокируется до отмены контекста либо фатальной
// ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("close storage failed")
		}
	}()

	// Kafka опционален: без брокеров события остаются в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	engine := buildEngine(deps, kafkaProducer, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	startWorkers(workerCtx, cfg, deps, kafkaProducer, logger)

	router := httpapi.NewRouter()
	idemMiddleware := httpapi.NewIdempotencyMiddleware(deps.idempotencyRepo, logger.WithField("component", "idempotency")).
		WithTTL(cfg.IdempotencyTTL)
	httpapi.NewHandler(engine, logger.WithField("component", "httpapi")).
		Register(router, idemMiddleware.Wrap)

	healthHandler := buildHealthHandler(deps, kafkaProducer)
	metricsSrv := startMetricsServer(ctx, cfg, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, router)
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP-сервер")
		shutdownHTTP(srv, cfg.ShutdownTimeout, logger)
		stopWorkers()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildEngine собирает движок заказов поверх выбранных хранилищ.
func buildEngine(deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) *checkout.Engine {
	evaluator := coupon.NewEvaluator(deps.coupons)
	assembler := checkout.NewAssembler(deps.catalog, evaluator)

	engine := checkout.NewEngine(deps.orders, assembler, evaluator, logger.WithField("component", "checkout")).
		WithTimeline(deps.timelineRepo)
	if producer != nil {
		engine = engine.WithKafka(producer)
	}
	return engine
}

// startWorkers запускает фоновые воркеры: publisher outbox-событий (только
// при настроенном Kafka) и очистку протухших ключей идемпотентности.
func startWorkers(ctx context.Context, cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) {
	if producer != nil {
		worker := outbox.NewWorker(
			deps.outboxRepo,
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		)
		go worker.Run(ctx)
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.idempotencyRepo,
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
	)
	go cleanup.Run(ctx)
}

func buildHealthHandler(deps *runtimeDependencies, producer *kafka.Producer) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	handler.RegisterChecker("storage", deps.storageChecker)
	if deps.redisChecker != nil {
		handler.RegisterChecker("redis", deps.redisChecker)
	}
	if producer != nil {
		handler.RegisterChecker("kafka", healthcheck.NewSimpleChecker("kafka", func() error { return nil }))
	}
	return handler
}

// startMetricsServer поднимает служебный HTTP: метрики и health-пробы.
func startMetricsServer(ctx context.Context, cfg Config, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", cfg.MetricsAddr)
		logger.Infof("health checks: %s/healthz, %s/livez", cfg.MetricsAddr, cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, cfg.ShutdownTimeout, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
