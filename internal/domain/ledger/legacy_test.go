package ledger

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

func legacySnapshot() map[string]string {
	return map[string]string{
		KeyXP:                     "550",
		KeyLevel:                  "2",
		KeyCoins:                  "75",
		KeyGems:                   "3",
		KeyCurrentStreak:          "5",
		KeyLastActivityDate:       "Mon Jan 01 2024",
		KeyInventory:              `{"streak_shield":2,"party_hat":0}`,
		KeyAchievements:           `[{"id":"first_lesson","unlocked":true,"progress":1},{"id":"week_streak","unlocked":false,"progress":5}]`,
		KeyDailyQuests:            `{"date":"2024-01-01","quests":[{"id":"daily_lesson","progress":1,"target":1,"completed":true}]}`,
		KeyInitialBalanceScores:   `{"health":4,"family":6}`,
		KeyCompletedLessons:       `["1-1","1-2","1-1"]`,
		KeyStreakProtectionActive: "true",
		KeyStreakProtectionDate:   "2023-12-31",
		"theme":                   "dark",
	}
}

func TestDecodeLegacy(t *testing.T) {
	cat := newTestCatalog()

	s, rep, err := DecodeLegacy(testID, legacySnapshot(), cat, day(2024, 1, 2))
	require.NoError(t, err)

	assert.Equal(t, Economy{XP: 550, Coins: 75, Gems: 3}, s.Economy)
	assert.Equal(t, 5, s.Streak.Current)
	assert.Equal(t, 5, s.Streak.Best)
	assert.Equal(t, day(2024, 1, 1), s.Streak.LastActivity)
	require.NotNil(t, s.Streak.Protection)
	assert.Equal(t, day(2023, 12, 31), s.Streak.Protection.ActivatedOn)

	assert.Equal(t, Inventory{"streak_shield": 2}, s.Inventory)
	assert.True(t, s.IsUnlocked("first_lesson"))
	assert.Equal(t, 5, s.Achievements["week_streak"].Progress)
	assert.Contains(t, s.Achievements, "level_two")

	require.Len(t, s.Quests.Quests, 1)
	assert.Equal(t, MetricLessonsCompleted, s.Quests.Quests[0].Metric)
	assert.Equal(t, shared.Reward{Coins: 15}, s.Quests.Quests[0].Reward)
	assert.Equal(t, day(2024, 1, 1), s.Quests.ResetOn)

	assert.Equal(t, map[string]int{"health": 4, "family": 6}, s.Balance.Initial)
	assert.Nil(t, s.Balance.Final)
	assert.Equal(t, []string{"1-1", "1-2"}, s.CompletedLessons)

	assert.Equal(t, 2, rep.StoredLevel)
	assert.False(t, rep.LevelMismatch)
	assert.Equal(t, 1, rep.DuplicateLessons)
	assert.Equal(t, []string{"theme"}, rep.UnknownKeys)
}

func TestDecodeLegacy_EmptySnapshotGivesDefaults(t *testing.T) {
	s, rep, err := DecodeLegacy(testID, map[string]string{}, nil, day(2024, 1, 2))
	require.NoError(t, err)

	if diff := cmp.Diff(NewState(testID), s, cmp.AllowUnexported(State{})); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, rep.StoredLevel)
}

func TestDecodeLegacy_LevelMismatchIsReported(t *testing.T) {
	kv := map[string]string{KeyXP: "100", KeyLevel: "4"}

	s, rep, err := DecodeLegacy(testID, kv, nil, day(2024, 1, 2))
	require.NoError(t, err)
	assert.True(t, rep.LevelMismatch)
	assert.Equal(t, shared.Level(1), s.Level())
}

func TestDecodeLegacy_AchievementIDList(t *testing.T) {
	kv := map[string]string{KeyAchievements: `["first_lesson"]`}

	s, _, err := DecodeLegacy(testID, kv, newTestCatalog(), day(2024, 1, 2))
	require.NoError(t, err)
	assert.True(t, s.IsUnlocked("first_lesson"))
	assert.Equal(t, 1, s.Achievements["first_lesson"].Progress)
}

func TestDecodeLegacy_ProtectionWithoutDate(t *testing.T) {
	kv := map[string]string{
		KeyCurrentStreak:          "2",
		KeyLastActivityDate:       "2024-01-01",
		KeyStreakProtectionActive: "true",
	}

	s, _, err := DecodeLegacy(testID, kv, nil, day(2024, 1, 2))
	require.NoError(t, err)
	require.NotNil(t, s.Streak.Protection)
	assert.Equal(t, day(2024, 1, 1), s.Streak.Protection.ActivatedOn)
}

func TestDecodeLegacy_CorruptKeys(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{KeyXP, "lots"},
		{KeyCoins, "-4"},
		{KeyLastActivityDate, "yesterday"},
		{KeyInventory, `{"streak_shield":`},
		{KeyInventory, `{"streak_shield":-1}`},
		{KeyAchievements, `{"id":"x"}`},
		{KeyDailyQuests, `{"date":"soon","quests":[]}`},
		{KeyDailyQuests, `{"quests":[{"id":"unknown","progress":0}]}`},
		{KeyInitialBalanceScores, `{"health":0}`},
		{KeyCompletedLessons, `[true]`},
		{KeyStreakProtectionActive, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			_, _, err := DecodeLegacy(testID, map[string]string{tt.key: tt.value}, newTestCatalog(), day(2024, 1, 2))
			require.Error(t, err)
			assert.True(t, shared.IsCorruptState(err))
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestEncodeLegacy_RoundTrip(t *testing.T) {
	cat := newTestCatalog()
	orig, _, err := DecodeLegacy(testID, legacySnapshot(), cat, day(2024, 1, 2))
	require.NoError(t, err)

	kv, err := EncodeLegacy(orig)
	require.NoError(t, err)
	assert.Equal(t, "2", kv[KeyLevel])
	assert.Equal(t, "2024-01-01", kv[KeyLastActivityDate])
	assert.Equal(t, "true", kv[KeyStreakProtectionActive])
	assert.NotContains(t, kv, KeyFinalBalanceScores)

	back, _, err := DecodeLegacy(testID, kv, cat, day(2024, 1, 2))
	require.NoError(t, err)
	if diff := cmp.Diff(orig, back, cmp.AllowUnexported(State{})); diff != "" {
		t.Errorf("legacy round trip mismatch (-want +got):\n%s", diff)
	}
}
