package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/shopcore/internal/health"
)

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SHOPCORE_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.close() }()

	if deps.orders == nil || deps.catalog == nil || deps.coupons == nil {
		t.Fatal("postgres stores must be initialized")
	}
	if deps.outboxRepo == nil || deps.timelineRepo == nil || deps.idempotencyRepo == nil {
		t.Fatal("postgres repositories must be initialized")
	}
	if deps.storageChecker == nil {
		t.Fatal("expected non-nil storage checker for postgres")
	}
	if check := deps.storageChecker.Check(); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}

func TestInitRuntimeDependencies_RedisIdempotency(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("SHOPCORE_REDIS_TEST_ADDR"))
	if addr == "" {
		t.Skip("redis address is not available")
	}

	cfg := DefaultConfig()
	cfg.RedisAddr = addr

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "redis-init"))
	if err != nil {
		t.Skipf("redis is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.close() }()

	if deps.redisChecker == nil {
		t.Fatal("expected redis checker when redis is configured")
	}
	if check := deps.redisChecker.Check(); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy redis checker, got %+v", check)
	}
}
