package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type drainerFunc func(ctx context.Context) (*command.DrainOutboxResult, error)

func (f drainerFunc) Handle(ctx context.Context) (*command.DrainOutboxResult, error) { return f(ctx) }

type fakePuller struct {
	mu     sync.Mutex
	seen   []shared.TelegramID
	result map[shared.TelegramID]error
}

func (p *fakePuller) Handle(_ context.Context, cmd command.PullProgressCommand) (*command.PullProgressResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, cmd.TelegramID)
	if err := p.result[cmd.TelegramID]; err != nil {
		return nil, err
	}
	return &command.PullProgressResult{Adopted: cmd.TelegramID%2 == 0}, nil
}

func learners(ids ...shared.TelegramID) func(context.Context) ([]shared.TelegramID, error) {
	return func(context.Context) ([]shared.TelegramID, error) { return ids, nil }
}

func TestDrainOutboxJob(t *testing.T) {
	job := NewDrainOutboxJob(drainerFunc(func(ctx context.Context) (*command.DrainOutboxResult, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return &command.DrainOutboxResult{Due: 3, Pushed: 2}, nil
	}), 0)

	assert.Nil(t, job.LastResult())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, job.LastResult().Pushed)
	assert.Equal(t, "drain_outbox", job.Name())
}

func TestPullProgressJob(t *testing.T) {
	p := &fakePuller{result: map[shared.TelegramID]error{
		1003: shared.ErrStateNotFound,
		1005: shared.ErrSyncAPIUnavailable,
	}}
	job := NewPullProgressJob(p, learners(1001, 1002, 1003, 1005), 2, nil)

	require.NoError(t, job.Run(context.Background()))
	stats := job.LastStats()
	assert.Equal(t, 4, stats.Learners)
	assert.Equal(t, 1, stats.Adopted)
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 1, stats.Failed)
	assert.ElementsMatch(t, []shared.TelegramID{1001, 1002, 1003, 1005}, p.seen)
}

func TestPullProgressJob_AllFailed(t *testing.T) {
	p := &fakePuller{result: map[shared.TelegramID]error{1001: shared.ErrSyncAPIUnavailable}}
	job := NewPullProgressJob(p, learners(1001), 1, nil)

	assert.ErrorIs(t, job.Run(context.Background()), shared.ErrSyncAPIUnavailable)
}

func TestPurgeJob(t *testing.T) {
	now := time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)
	var got time.Time

	job := NewPurgeReceiptsJob(func(_ context.Context, before time.Time) (int64, error) {
		got = before
		return 5, nil
	}, 30*24*time.Hour, timeutil.FixedClock{T: now}, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.AddDate(0, 0, -30), got)
	assert.Equal(t, "purge_sync_receipts", job.Name())

	failing := NewPurgeAccessCodesJob(func(context.Context, time.Time) (int64, error) {
		return 0, errors.New("db down")
	}, timeutil.FixedClock{T: now}, nil)
	assert.ErrorContains(t, failing.Run(context.Background()), "purge_access_codes")
}
