package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

type fakeOutbox struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

var _ domain.OutboxRepository = (*fakeOutbox)(nil)

func (f *fakeOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (f *fakeOutbox) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit > 0 && limit < len(f.pending) {
		return append([]domain.OutboxMessage(nil), f.pending[:limit]...), nil
	}
	return append([]domain.OutboxMessage(nil), f.pending...), nil
}

func (f *fakeOutbox) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(f.pending)}
	if len(f.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (f *fakeOutbox) MarkSent(id string) error {
	f.sentIDs = append(f.sentIDs, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(id string) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}

// fakePublisher отдаёт ошибки из очереди errs, затем err для всех
// последующих вызовов.
type fakePublisher struct {
	mu    sync.Mutex
	err   error
	errs  []error
	count int
}

var _ domain.OutboxPublisher = (*fakePublisher)(nil)

func (f *fakePublisher) Publish(_ domain.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return f.err
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func orderCreatedMessage(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     "order.created",
		Payload:       []byte(`{"status":"pending"}`),
	}
}

func TestProcessOnceMarksSent(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderCreatedMessage("msg-1", "order-1")}}
	publisher := &fakePublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if len(repo.sentIDs) != 1 || repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected msg-1 marked sent, got %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 0 {
		t.Fatalf("expected no failed marks, got %v", repo.failedIDs)
	}
	if publisher.calls() != 1 {
		t.Fatalf("expected a single publish call, got %d", publisher.calls())
	}
}

func TestProcessOnceRoutesToDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderCreatedMessage("msg-2", "order-2")}}
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	dlq := &fakePublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)
	worker.ProcessOnce(context.Background())

	if publisher.calls() != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", publisher.calls())
	}
	if len(repo.sentIDs) != 0 {
		t.Fatalf("expected no sent marks, got %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 1 || repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected msg-2 marked failed, got %v", repo.failedIDs)
	}
	if dlq.calls() != 1 {
		t.Fatalf("expected one DLQ publish, got %d", dlq.calls())
	}
}

func TestProcessOnceRecoversWithinRetryBudget(t *testing.T) {
	t.Parallel()

	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderCreatedMessage("msg-3", "order-3")}}
	publisher := &fakePublisher{errs: []error{
		errors.New("attempt 1 failed"),
		errors.New("attempt 2 failed"),
		nil,
	}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	if publisher.calls() != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", publisher.calls())
	}
	if len(repo.sentIDs) != 1 {
		t.Fatalf("expected one sent mark, got %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 0 {
		t.Fatalf("expected no failed marks, got %v", repo.failedIDs)
	}
}

func TestBackoffDoubles(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&fakeOutbox{}, &fakePublisher{}, WithRetryBaseDelay(40*time.Millisecond))

	for attempt, want := range map[int]time.Duration{
		1: 40 * time.Millisecond,
		2: 80 * time.Millisecond,
		3: 160 * time.Millisecond,
	} {
		if got := worker.backoff(attempt); got != want {
			t.Errorf("backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&fakeOutbox{}, &fakePublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
