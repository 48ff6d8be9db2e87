package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

func TestEvaluateAchievement_UnlocksOnceRewardsOnce(t *testing.T) {
	s := NewState(testID)
	today := day(2024, 4, 1)

	out, err := s.EvaluateAchievement(weekStreak, 3, today)
	require.NoError(t, err)
	assert.False(t, out.Unlocked)
	assert.Equal(t, 3, s.Achievements[weekStreak.ID].Progress)

	out, err = s.EvaluateAchievement(weekStreak, 7, today)
	require.NoError(t, err)
	assert.True(t, out.JustUnlocked)
	assert.Equal(t, 1, s.Economy.Gems)

	out, err = s.EvaluateAchievement(weekStreak, 9, today)
	require.NoError(t, err)
	assert.True(t, out.Unlocked)
	assert.False(t, out.JustUnlocked)
	assert.Equal(t, 1, s.Economy.Gems)
	assert.Equal(t, today, s.Achievements[weekStreak.ID].UnlockedOn)
}

func TestEvaluateAchievement_ProgressNeverDecreases(t *testing.T) {
	s := NewState(testID)
	_, err := s.EvaluateAchievement(weekStreak, 5, day(2024, 4, 1))
	require.NoError(t, err)
	_, err = s.EvaluateAchievement(weekStreak, 1, day(2024, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, s.Achievements[weekStreak.ID].Progress)

	_, err = s.EvaluateAchievement(weekStreak, -1, day(2024, 4, 2))
	assert.True(t, shared.IsInvalidOperation(err))
}

func TestUnlockAchievement_Twice(t *testing.T) {
	s := NewState(testID)
	today := day(2024, 4, 1)

	require.NoError(t, s.UnlockAchievement(firstLesson, today))
	assert.Equal(t, 50, s.Economy.XP)
	assert.Equal(t, 10, s.Economy.Coins)

	err := s.UnlockAchievement(firstLesson, today)
	assert.True(t, shared.IsAlreadyUnlocked(err))
	assert.Equal(t, 50, s.Economy.XP)
	assert.Equal(t, 10, s.Economy.Coins)

	out, err := s.EvaluateAchievement(firstLesson, 10, today)
	require.NoError(t, err)
	assert.False(t, out.JustUnlocked)
	assert.Equal(t, 10, s.Economy.Coins)
}

func TestEvaluateAchievement_ManualMetricNeedsExplicitUnlock(t *testing.T) {
	s := NewState(testID)
	def := AchievementDef{ID: "balance_done", Metric: MetricManual, Target: 1, Reward: shared.Reward{XP: 5}}

	out, err := s.EvaluateAchievement(def, 1, day(2024, 4, 1))
	require.NoError(t, err)
	assert.False(t, out.Unlocked)
	require.NoError(t, s.UnlockAchievement(def, day(2024, 4, 1)))
	assert.True(t, s.IsUnlocked("balance_done"))
}

func TestEvaluateAll_CascadesThroughRewards(t *testing.T) {
	cat := newTestCatalog()
	s := NewState(testID)
	s.Economy.XP = 480
	s.CompletedLessons = []string{"1-1"}

	unlocked, err := s.EvaluateAll(cat, day(2024, 4, 1))
	require.NoError(t, err)

	var ids []string
	for _, u := range unlocked {
		ids = append(ids, u.ID)
	}
	// first_lesson даёт 50 XP, это поднимает уровень до 2 и открывает level_two.
	assert.Equal(t, []string{"first_lesson", "level_two"}, ids)
	assert.Equal(t, 530, s.Economy.XP)
	assert.Equal(t, 35, s.Economy.Coins)
	assert.Contains(t, s.Achievements, weekStreak.ID)
	assert.False(t, s.IsUnlocked(weekStreak.ID))
}

func TestResetDailyQuests_OncePerDay(t *testing.T) {
	cat := newTestCatalog()
	s := NewState(testID)
	today := day(2024, 4, 1)

	assert.True(t, s.ResetDailyQuests(today, cat.quests))
	require.Len(t, s.Quests.Quests, 2)

	_, err := s.AdvanceQuests(MetricLessonsCompleted, 1)
	require.NoError(t, err)
	assert.False(t, s.ResetDailyQuests(today, cat.quests))
	assert.True(t, s.Quests.Quests[0].Completed)

	assert.True(t, s.ResetDailyQuests(today.AddDays(1), cat.quests))
	assert.False(t, s.Quests.Quests[0].Completed)
	assert.Equal(t, today.AddDays(1), s.Quests.ResetOn)
	assert.Equal(t, 2, s.Quests.Open())
}

func TestAdvanceQuests_RewardAppliedOnce(t *testing.T) {
	cat := newTestCatalog()
	s := NewState(testID)
	s.ResetDailyQuests(day(2024, 4, 1), cat.quests)

	done, err := s.AdvanceQuests(MetricLessonsCompleted, 3)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "daily_lesson", done[0].ID)
	assert.Equal(t, 1, s.Quests.Quests[0].Progress)

	done, err = s.AdvanceQuests(MetricLessonsCompleted, 1)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.Equal(t, 15, s.Economy.Coins)
	assert.Equal(t, 1, s.Stats.QuestsCompleted)

	_, err = s.AdvanceQuests(MetricLessonsCompleted, -1)
	assert.True(t, shared.IsInvalidOperation(err))
}

func TestRecordBalanceScores(t *testing.T) {
	cats := []string{"health", "family"}
	s := NewState(testID)
	today := day(2024, 4, 1)

	err := s.RecordBalanceScores(BalanceInitial, map[string]int{"health": 4}, cats, today)
	assert.True(t, shared.IsInvalidOperation(err), "missing category")

	err = s.RecordBalanceScores(BalanceInitial, map[string]int{"health": 4, "family": 11}, cats, today)
	assert.True(t, shared.IsInvalidOperation(err), "out of range")

	require.NoError(t, s.RecordBalanceScores(BalanceInitial, map[string]int{"health": 4, "family": 6}, cats, today))
	err = s.RecordBalanceScores(BalanceInitial, map[string]int{"health": 5, "family": 5}, cats, today)
	assert.True(t, shared.IsInvalidOperation(err), "initial recorded once")

	_, ok := s.Balance.Delta()
	assert.False(t, ok)

	require.NoError(t, s.RecordBalanceScores(BalanceFinal, map[string]int{"health": 7, "family": 6}, cats, today))
	require.NoError(t, s.RecordBalanceScores(BalanceFinal, map[string]int{"health": 8, "family": 5}, cats, today.AddDays(1)))

	delta, ok := s.Balance.Delta()
	require.True(t, ok)
	assert.Equal(t, map[string]int{"health": 4, "family": -1}, delta)
	assert.Equal(t, today.AddDays(1), s.Balance.FinalOn)
	assert.Equal(t, []string{"family", "health"}, s.Balance.Categories())
}

func TestCompleteLesson(t *testing.T) {
	cat := newTestCatalog()
	s := NewState(testID)
	today := day(2024, 4, 1)
	s.BeginDay(today, cat)

	out, err := s.CompleteLesson(cat.lessons[0], today, cat)
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, StreakStarted, out.Streak.Outcome)
	require.Len(t, out.QuestsCompleted, 1)
	require.Len(t, out.Achievements, 1)
	assert.Equal(t, "first_lesson", out.Achievements[0].ID)

	// 100 за урок + 50 за достижение; 20 за урок + 15 за задание + 10 за достижение.
	assert.Equal(t, 150, s.Economy.XP)
	assert.Equal(t, 45, s.Economy.Coins)
	assert.Equal(t, []string{"1-1"}, s.CompletedLessons)

	again, err := s.CompleteLesson(cat.lessons[0], today.AddDays(1), cat)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 150, s.Economy.XP)
	assert.Equal(t, today, s.Streak.LastActivity)
}

func TestCompleteLesson_LevelUp(t *testing.T) {
	cat := newTestCatalog()
	s := NewState(testID)
	today := day(2024, 4, 1)
	s.BeginDay(today, cat)

	_, err := s.CompleteLesson(cat.lessons[0], today, cat)
	require.NoError(t, err)
	out, err := s.CompleteLesson(cat.lessons[1], today, cat)
	require.NoError(t, err)

	assert.True(t, out.LeveledUp())
	assert.Equal(t, shared.Level(2), out.LevelAfter)
	assert.True(t, s.IsUnlocked(levelTwo.ID))
}

func TestBuyItem_AtomicOnFailure(t *testing.T) {
	cat := newTestCatalog()
	s := NewState(testID)
	s.Economy.Coins = 40

	err := s.BuyItem(shield, day(2024, 4, 1), cat)
	assert.True(t, shared.IsInsufficientFunds(err))
	assert.Equal(t, 40, s.Economy.Coins)
	assert.Zero(t, s.Inventory.Count(shield.ID))
	assert.Zero(t, s.Stats.ItemsPurchased)

	s.Economy.Coins = 120
	require.NoError(t, s.BuyItem(shield, day(2024, 4, 1), cat))
	require.NoError(t, s.BuyItem(shield, day(2024, 4, 1), cat))
	assert.Equal(t, 20, s.Economy.Coins)
	assert.Equal(t, 2, s.Inventory.Count(shield.ID))
	assert.Equal(t, 2, s.Stats.ItemsPurchased)
}

func TestBuyItem_CosmeticOwnedOnce(t *testing.T) {
	s := NewState(testID)
	s.Economy.Gems = 10
	require.NoError(t, s.BuyItem(hat, day(2024, 4, 1), nil))
	assert.True(t, shared.IsInvalidOperation(s.BuyItem(hat, day(2024, 4, 1), nil)))
	assert.Equal(t, 8, s.Economy.Gems)
}

func TestUseItem_StreakShield(t *testing.T) {
	s := NewState(testID)
	today := day(2024, 4, 1)

	assert.True(t, shared.IsInvalidOperation(s.UseItem(shield, today)))

	require.NoError(t, s.AddInventoryItem(shield.ID, 2))
	require.NoError(t, s.UseItem(shield, today))
	assert.True(t, s.Streak.IsProtected())
	assert.Equal(t, 1, s.Inventory.Count(shield.ID))

	err := s.UseItem(shield, today)
	assert.True(t, shared.IsInvalidOperation(err))
	assert.Equal(t, 1, s.Inventory.Count(shield.ID), "failed effect keeps the item")

	require.NoError(t, s.AddInventoryItem(hat.ID, 1))
	assert.True(t, shared.IsInvalidOperation(s.UseItem(hat, today)))
}

func TestEvents_HaveTimestamps(t *testing.T) {
	s := NewState(testID)
	before := time.Now()
	require.NoError(t, s.GrantCurrency(5, 0, "gift"))
	events := s.PullEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].OccurredAt().Before(before))
	assert.Equal(t, "gift", events[0].Payload()["source"])
}
