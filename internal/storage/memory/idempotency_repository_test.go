package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
	"github.com/vladislavdragonenkov/shopcore/internal/storage/memory"
)

func TestIdempotencyCreateThenGet(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing("create-order-1", "sha-aaa", ttl)
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("new record must be processing, got %s", created.Status)
	}

	got, err := repo.Get("create-order-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RequestHash != "sha-aaa" {
		t.Errorf("expected request hash sha-aaa, got %s", got.RequestHash)
	}
	if !got.TTLAt.Equal(ttl) {
		t.Errorf("expected ttl %s, got %s", ttl, got.TTLAt)
	}
}

func TestIdempotencyValidatesArguments(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("  ", "sha-aaa", ttl); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Errorf("expected ErrIdempotencyKeyRequired for blank key, got %v", err)
	}
	if _, err := repo.CreateProcessing("create-order-2", "", ttl); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Errorf("expected ErrIdempotencyRequestHashRequired for blank hash, got %v", err)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Errorf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyDuplicateKeyOutcomes(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("create-order-3", "sha-aaa", ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}

	// Тот же ключ + тот же хеш — повтор запроса.
	if _, err := repo.CreateProcessing("create-order-3", "sha-aaa", ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Errorf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	// Тот же ключ + другой хеш — переиспользование ключа для другого запроса.
	if _, err := repo.CreateProcessing("create-order-3", "sha-bbb", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Errorf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
}

func TestIdempotencyMarkDoneAndCleanup(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	if _, err := repo.CreateProcessing("stale", "sha-old", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateProcessing stale failed: %v", err)
	}
	if _, err := repo.CreateProcessing("fresh", "sha-new", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("CreateProcessing fresh failed: %v", err)
	}

	if err := repo.MarkDone("fresh", []byte(`{"order_id":"order-1"}`), 201); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	fresh, err := repo.Get("fresh")
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if fresh.Status != domain.IdempotencyStatusDone {
		t.Errorf("expected done status, got %s", fresh.Status)
	}
	if fresh.HTTPStatus != 201 {
		t.Errorf("expected cached http status 201, got %d", fresh.HTTPStatus)
	}
	if string(fresh.ResponseBody) != `{"order_id":"order-1"}` {
		t.Errorf("unexpected cached body: %s", fresh.ResponseBody)
	}

	removed, err := repo.DeleteExpired(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed record, got %d", removed)
	}
	if _, err := repo.Get("stale"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Errorf("expected stale key deleted, got %v", err)
	}
	if _, err := repo.Get("fresh"); err != nil {
		t.Errorf("fresh key must survive cleanup, got %v", err)
	}
}
