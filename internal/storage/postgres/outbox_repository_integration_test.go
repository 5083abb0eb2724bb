package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

func enqueueOrderEvent(t *testing.T, repo domain.OutboxRepository, id, orderID, eventType string) domain.OutboxMessage {
	t.Helper()

	stored, err := repo.Enqueue(domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       []byte(`{"id":"` + orderID + `"}`),
	})
	require.NoError(t, err, "enqueue outbox message for %s", orderID)
	return stored
}

func TestOutboxPostgresEnqueuePullMark(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	// Без явного ID репозиторий генерирует свой.
	created := enqueueOrderEvent(t, repo, "", "order-1", "order.created")
	require.NotEmpty(t, created.ID)

	cancelled := enqueueOrderEvent(t, repo, "outbox-fixed-id", "order-2", "order.cancelled")
	require.Equal(t, "outbox-fixed-id", cancelled.ID)

	// limit<=0 использует лимит по умолчанию
	pending, err := repo.PullPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	stats, err := repo.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(created.ID))
	require.NoError(t, repo.MarkFailed(cancelled.ID))

	after, err := repo.PullPending(10)
	require.NoError(t, err)
	require.Empty(t, after, "sent and failed messages must leave the pending queue")

	stats, err = repo.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestOutboxPostgresUnknownIDs(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	require.ErrorIs(t, repo.MarkSent("missing-outbox"), domain.ErrOutboxPublish)
	require.ErrorIs(t, repo.MarkFailed("missing-outbox"), domain.ErrOutboxPublish)
}

func TestOutboxPostgresBacklogStats(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	oldest := enqueueOrderEvent(t, repo, "", "order-old", "order.created")

	// Гарантируем различимые created_at у двух записей.
	time.Sleep(5 * time.Millisecond)
	enqueueOrderEvent(t, repo, "", "order-new", "order.created")

	stats, err := repo.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(oldest.ID))

	stats, err = repo.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}
