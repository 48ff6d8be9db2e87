package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

func TestOutbox_DueMarkSentReschedule(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := &fixedClock{t: start}
	store, outbox := newTestStore(t, clock)

	for i := 0; i < 3; i++ {
		clock.t = start.Add(time.Duration(i) * time.Second)
		_, err := store.Update(ctx, testID, func(s *ledger.State) error { return s.AwardXP(10, "test") })
		require.NoError(t, err)
	}

	due, err := outbox.Due(ctx, clock.t, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, "entry-01", due[0].ID)
	assert.Equal(t, ledger.OutboxKindPush, due[0].Kind)
	assert.Equal(t, int64(1), due[0].StateVersion)
	assert.Equal(t, []shared.EventType{shared.EventXPAwarded}, due[0].Events)
	assert.Equal(t, start, due[0].CreatedAt)

	// Записи в будущем ещё не готовы.
	next := clock.t.Add(time.Minute)
	require.NoError(t, outbox.Reschedule(ctx, "entry-03", 1, next, "network unavailable"))
	due, err = outbox.Due(ctx, clock.t, 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	due, err = outbox.Due(ctx, next, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, 1, due[2].Attempts)
	assert.Equal(t, "network unavailable", due[2].LastError)

	marked, err := outbox.MarkSent(ctx, testID, 2, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	n, err := outbox.Pending(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	purged, err := outbox.PurgeSent(ctx, next.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
}

func TestOutbox_RescheduleUnknown(t *testing.T) {
	_, outbox := newTestStore(t, &fixedClock{t: time.Now()})

	err := outbox.Reschedule(context.Background(), "missing", 1, time.Now(), "x")
	assert.True(t, shared.IsNotFound(err))
}

func TestOutbox_DueLimit(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	store, outbox := newTestStore(t, clock)

	for _, id := range []shared.TelegramID{1, 2, 3} {
		_, err := store.Update(ctx, id, func(s *ledger.State) error { return nil })
		require.NoError(t, err)
	}

	due, err := outbox.Due(ctx, clock.t, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}
