package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shopcore/internal/health"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/redisstore"
)

// runtimeDependencies — хранилища и проверки, собранные под выбранный драйвер.
type runtimeDependencies struct {
	catalog         domain.CatalogStore
	coupons         domain.CouponStore
	orders          domain.OrderStore
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	redisChecker   healthcheck.Checker

	closeFn func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies инициализирует хранилище по конфигурации и,
// если задан Redis, переключает на него репозиторий идемпотентности.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			_ = deps.close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}

		deps.idempotencyRepo = redisstore.NewIdempotencyRepository(client)
		deps.redisChecker = healthcheck.NewSimpleChecker("redis", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			defer cancel()
			return client.Ping(pingCtx).Err()
		})

		storageClose := deps.closeFn
		deps.closeFn = func() error {
			closeErr := client.Close()
			if storageClose != nil {
				if err := storageClose(); err != nil {
					return err
				}
			}
			return closeErr
		}
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency repository switched to redis")
	}

	return deps, nil
}
