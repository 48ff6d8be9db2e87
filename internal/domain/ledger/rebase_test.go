package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncedPair() (base, local, server *State) {
	base = NewState(testID)
	base.Version = 3
	base.Economy = Economy{XP: 300, Coins: 50, Gems: 2}
	base.Inventory = Inventory{"streak_shield": 1}
	base.CompletedLessons = []string{"1-1"}
	base.Streak = Streak{Current: 2, Best: 4, LastActivity: day(2024, 3, 3)}
	return base, base.Clone(), base.Clone()
}

func TestRebase_AddsLocalDeltasToServer(t *testing.T) {
	base, local, server := syncedPair()

	// Offline: lesson 1-2, one shield used, 20 coins spent.
	local.Economy.XP += 100
	local.Economy.Coins -= 20
	delete(local.Inventory, "streak_shield")
	local.CompletedLessons = append(local.CompletedLessons, "1-2")
	local.Stats.ItemsUsed++

	// Server: lesson 1-3 and a bought shield.
	server.Version = 4
	server.Economy.XP += 150
	server.Economy.Coins += 10
	server.Inventory["streak_shield"]++
	server.CompletedLessons = append(server.CompletedLessons, "1-3")

	got := Rebase(base, local, server)
	require.NoError(t, got.Validate())

	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, Economy{XP: 550, Coins: 40, Gems: 2}, got.Economy)
	assert.Equal(t, 1, got.Inventory.Count("streak_shield"))
	assert.Equal(t, []string{"1-1", "1-3", "1-2"}, got.CompletedLessons)
	assert.Equal(t, 1, got.Stats.ItemsUsed)
}

func TestRebase_ClampsAtZero(t *testing.T) {
	base, local, server := syncedPair()
	local.Economy.Coins = 0
	server.Economy.Coins = 10
	server.Inventory = Inventory{}

	got := Rebase(base, local, server)
	assert.Zero(t, got.Economy.Coins)
	assert.Zero(t, got.Inventory.Count("streak_shield"))
	require.NoError(t, got.Validate())
}

func TestRebase_WithoutBaseTakesEverythingLocal(t *testing.T) {
	local := NewState(testID)
	local.Economy.XP = 20
	server := NewState(testID)
	server.Version = 1
	server.Economy.XP = 150
	server.CompletedLessons = []string{"1-1"}

	got := Rebase(nil, local, server)
	assert.Equal(t, 170, got.Economy.XP)
	assert.Equal(t, []string{"1-1"}, got.CompletedLessons)
}

func TestRebase_StreakFromLaterDay(t *testing.T) {
	base, local, server := syncedPair()
	local.Streak = Streak{Current: 3, Best: 4, LastActivity: day(2024, 3, 4), ProtectionsUsed: 1}
	server.Streak = Streak{Current: 1, Best: 5, LastActivity: day(2024, 3, 2)}

	got := Rebase(base, local, server)
	assert.Equal(t, 3, got.Streak.Current)
	assert.Equal(t, 5, got.Streak.Best)
	assert.Equal(t, day(2024, 3, 4), got.Streak.LastActivity)
	assert.Equal(t, 1, got.Streak.ProtectionsUsed)
}

func TestRebase_AchievementsAndQuests(t *testing.T) {
	base, local, server := syncedPair()
	today := day(2024, 3, 4)
	q := Quest{ID: "daily_lesson", Metric: MetricLessonsCompleted, Target: 2}

	local.Achievements["first_lesson"] = AchievementProgress{Progress: 1, Unlocked: true, UnlockedOn: today}
	local.Quests = DailyQuests{ResetOn: today, Quests: []Quest{{ID: q.ID, Metric: q.Metric, Target: 2, Progress: 1}}}
	server.Achievements["streak_3"] = AchievementProgress{Progress: 2}
	server.Quests = DailyQuests{ResetOn: today, Quests: []Quest{{ID: q.ID, Metric: q.Metric, Target: 2, Progress: 2, Completed: true}}}

	got := Rebase(base, local, server)
	assert.True(t, got.Achievements["first_lesson"].Unlocked)
	assert.Equal(t, 2, got.Achievements["streak_3"].Progress)
	require.Len(t, got.Quests.Quests, 1)
	assert.True(t, got.Quests.Quests[0].Completed)
	assert.Equal(t, 2, got.Quests.Quests[0].Progress)
}

func TestRebase_BalanceScores(t *testing.T) {
	base, local, server := syncedPair()
	scores := map[string]int{"health": 6}
	local.Balance.Final, local.Balance.FinalOn = scores, day(2024, 3, 4)
	server.Balance.Initial, server.Balance.InitialOn = map[string]int{"health": 3}, day(2024, 1, 1)

	got := Rebase(base, local, server)
	assert.Equal(t, 3, got.Balance.Initial["health"])
	assert.Equal(t, 6, got.Balance.Final["health"])
}

func TestPushStateAndSameProgress(t *testing.T) {
	base, local, _ := syncedPair()
	local.Version = 17

	push := PushState(base, local)
	assert.Equal(t, int64(4), push.Version)
	assert.True(t, SameProgress(push, local))
	assert.Equal(t, int64(1), PushState(nil, local).Version)

	local.Economy.XP++
	assert.False(t, SameProgress(push, local))
	assert.False(t, SameProgress(nil, local))
}
