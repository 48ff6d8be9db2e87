package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	for _, name := range []string{
		FeatureStreakShield,
		FeatureNotifyLessonCompleted,
		FeatureNotifyAchievement,
		FeatureOutboxCompaction,
		FeatureInitDataRequired,
	} {
		assert.True(t, ff.IsEnabled(name, 0), name)
		assert.True(t, ff.IsEnabled(name, 777), name)
	}
	assert.False(t, ff.IsEnabled("no.such.flag", 0))
	assert.Len(t, ff.All(), 5)
}

func TestFeatureFlags_Environment(t *testing.T) {
	t.Setenv("FEATURE_NOTIFY_LESSON_COMPLETED", "false")
	t.Setenv("FEATURE_AUTH_TELEGRAM_INIT_DATA_REQUIRED", "0")
	t.Setenv("FEATURE_NOTIFY_ACHIEVEMENT", "not-a-number")

	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled(FeatureNotifyLessonCompleted, 0))
	assert.False(t, ff.IsEnabled(FeatureInitDataRequired, 0))
	assert.True(t, ff.IsEnabled(FeatureNotifyAchievement, 0), "unparsable values are ignored")
}

func TestFeatureFlags_Rollout(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.Set(FeatureNotifyAchievement, "50"))

	assert.True(t, ff.IsEnabled(FeatureNotifyAchievement, 0), "partial rollout is on process-wide")

	gate := ff.LearnerGate(FeatureNotifyAchievement)
	enabled := 0
	for id := int64(1); id <= 1000; id++ {
		first := gate(id)
		assert.Equal(t, first, gate(id), "bucket must be stable")
		if first {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 100)

	require.NoError(t, ff.Set(FeatureNotifyAchievement, "0%"))
	assert.False(t, ff.IsEnabled(FeatureNotifyAchievement, 0))
	assert.False(t, gate(1))

	assert.ErrorIs(t, ff.Set(FeatureNotifyAchievement, "101"), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.Set("no.such.flag", "10"), ErrFeatureNotFound)
}

func TestFeatureFlags_GateFollowsUpdates(t *testing.T) {
	ff := LoadFeatureFlags()
	gate := ff.Gate(FeatureOutboxCompaction)

	assert.True(t, gate())
	require.NoError(t, ff.Set(FeatureOutboxCompaction, "false"))
	assert.False(t, gate())
	require.NoError(t, ff.Set(FeatureOutboxCompaction, "100%"))
	assert.True(t, gate())
	assert.Error(t, ff.Set(FeatureOutboxCompaction, "maybe"))
}
