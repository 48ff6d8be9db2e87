package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

const testCurator shared.CuratorID = "3f2b8c1e-4d5a-4e6f-9a0b-1c2d3e4f5a6b"

func TestProgressRepository_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository(ledger.DefaultPolicy())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, 7, func(s *ledger.State) error { return s.AwardXP(25, "test") })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(20), s.Version)
	assert.Equal(t, 500, s.Economy.XP)
	assert.Equal(t, shared.Level(2), s.Level())
}

func TestProgressRepository_ReturnedStateIsDetached(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository(ledger.DefaultPolicy())

	s, err := repo.Update(ctx, 7, func(s *ledger.State) error { return s.GrantCurrency(10, 0, "test") })
	require.NoError(t, err)
	s.Economy.Coins = 999

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Economy.Coins)
}

func TestProgressRepository_PutAndGetMany(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository(ledger.DefaultPolicy())

	incoming := ledger.NewState(8)
	incoming.Version = 3
	res, err := repo.Put(ctx, incoming)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	older := ledger.NewState(8)
	older.Version = 2
	_, err = repo.Put(ctx, older)
	assert.True(t, shared.IsConflict(err))

	many, err := repo.GetMany(ctx, []shared.TelegramID{8, 9})
	require.NoError(t, err)
	assert.Len(t, many, 1)
	assert.Equal(t, int64(3), many[8].Version)
}

func TestCuratorRepository_RedeemOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewCuratorRepository()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c, err := curator.NewCurator(testCurator, "Анна", 0, "$2a$hash", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, c))
	assert.True(t, shared.IsAlreadyExists(repo.Create(ctx, c)))

	code, err := curator.NewAccessCode("ABCDEFGH", testCurator, curator.RoleStudent, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, repo.SaveCode(ctx, code))

	link, err := repo.RedeemCode(ctx, "abcd-efgh", 555, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, shared.TelegramID(555), link.TelegramID)

	_, err = repo.RedeemCode(ctx, "ABCDEFGH", 556, now.Add(2*time.Minute))
	assert.True(t, shared.IsInvalidOperation(err))

	_, err = repo.RedeemCode(ctx, "ZZZZZZZZ", 556, now)
	assert.True(t, shared.IsNotFound(err))

	links, err := repo.ListLinks(ctx, testCurator)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestCuratorRepository_PurgeExpiredCodes(t *testing.T) {
	ctx := context.Background()
	repo := NewCuratorRepository()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c, err := curator.NewCurator(testCurator, "Анна", 0, "$2a$hash", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, c))

	for _, s := range []string{"AAAAAAAA", "BBBBBBBB"} {
		code, err := curator.NewAccessCode(s, testCurator, curator.RoleParent, time.Hour, now)
		require.NoError(t, err)
		require.NoError(t, repo.SaveCode(ctx, code))
	}
	_, err = repo.RedeemCode(ctx, "AAAAAAAA", 1, now)
	require.NoError(t, err)

	n, err := repo.PurgeExpiredCodes(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReceiptStore(t *testing.T) {
	ctx := context.Background()
	s := NewReceiptStore()

	seen, err := s.Seen(ctx, "7:1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Remember(ctx, "7:1", 7, 1))
	seen, err = s.Seen(ctx, "7:1")
	require.NoError(t, err)
	assert.True(t, seen)
}
