package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

func TestRecordActivity_FirstDayStartsAtOne(t *testing.T) {
	s := NewState(testID)

	res, err := s.RecordActivity(day(2024, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, StreakStarted, res.Outcome)
	assert.Equal(t, 1, s.Streak.Current)
	assert.Equal(t, 1, s.Streak.Best)
	assert.Equal(t, day(2024, 1, 1), s.Streak.LastActivity)
}

func TestRecordActivity_SameDayUnchanged(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 4, Best: 4, LastActivity: day(2024, 1, 10)}

	for i := 0; i < 3; i++ {
		res, err := s.RecordActivity(day(2024, 1, 10))
		require.NoError(t, err)
		assert.Equal(t, StreakUnchanged, res.Outcome)
	}
	assert.Equal(t, 4, s.Streak.Current)
	assert.Empty(t, s.PullEvents())
}

func TestRecordActivity_ConsecutiveDaysIncrement(t *testing.T) {
	s := NewState(testID)
	start := day(2024, 2, 27)

	for i := 0; i < 5; i++ {
		_, err := s.RecordActivity(start.AddDays(i))
		require.NoError(t, err)
		assert.Equal(t, i+1, s.Streak.Current)
	}
	assert.Equal(t, 5, s.Streak.Best)
	assert.Equal(t, day(2024, 3, 2), s.Streak.LastActivity)
}

func TestRecordActivity_GapWithoutProtectionResets(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 8, Best: 8, LastActivity: day(2024, 1, 1)}

	res, err := s.RecordActivity(day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, StreakReset, res.Outcome)
	assert.Equal(t, 1, res.MissedDays)
	assert.Equal(t, 1, s.Streak.Current)
	assert.Equal(t, 8, s.Streak.Best)
	assert.Nil(t, s.Streak.Protection)
	assert.Equal(t, 0, s.Streak.ProtectionsUsed)
}

func TestRecordActivity_ProtectionForgivesOnceThenResets(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 5, Best: 5, LastActivity: day(2024, 1, 1)}
	require.NoError(t, s.ActivateProtection(day(2024, 1, 1)))

	res, err := s.RecordActivity(day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, StreakProtected, res.Outcome)
	assert.Equal(t, 5, s.Streak.Current)
	assert.Nil(t, s.Streak.Protection)
	assert.Equal(t, 1, s.Streak.ProtectionsUsed)
	assert.Equal(t, day(2024, 1, 3), s.Streak.LastActivity)

	res, err = s.RecordActivity(day(2024, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, StreakReset, res.Outcome)
	assert.Equal(t, 1, s.Streak.Current)
	assert.Equal(t, 1, s.Streak.ProtectionsUsed)
}

func TestRecordActivity_ExampleScenario(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 5, Best: 5, LastActivity: day(2024, 1, 1)}

	_, err := s.RecordActivity(day(2024, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 6, s.Streak.Current)

	_, err = s.RecordActivity(day(2024, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Streak.Current)
	assert.Equal(t, 6, s.Streak.Best)
}

func TestRecordActivity_ShieldActivatedOnDetectionDayStaysActive(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 3, Best: 3, LastActivity: day(2024, 1, 1)}
	require.NoError(t, s.ActivateProtection(day(2024, 1, 3)))

	res, err := s.RecordActivity(day(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, StreakReset, res.Outcome)
	assert.Equal(t, 1, s.Streak.Current)
	require.NotNil(t, s.Streak.Protection)
	assert.Equal(t, day(2024, 1, 3), s.Streak.Protection.ActivatedOn)
}

func TestRecordActivity_GapLongerThanWindow(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 3, Best: 3, LastActivity: day(2024, 1, 1)}
	require.NoError(t, s.ActivateProtection(day(2024, 1, 1)))

	res, err := s.RecordActivity(day(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, StreakReset, res.Outcome)
	assert.Equal(t, 2, res.MissedDays)
	assert.NotNil(t, s.Streak.Protection)

	wide := NewState(testID)
	wide.SetPolicy(Policy{ProtectionWindowDays: 3})
	wide.Streak = Streak{Current: 3, Best: 3, LastActivity: day(2024, 1, 1)}
	require.NoError(t, wide.ActivateProtection(day(2024, 1, 2)))

	res, err = wide.RecordActivity(day(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, StreakProtected, res.Outcome)
	assert.Equal(t, 3, wide.Streak.Current)
}

func TestRecordActivity_Errors(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 2, Best: 2, LastActivity: day(2024, 1, 10)}

	_, err := s.RecordActivity(day(2024, 1, 9))
	assert.True(t, shared.IsInvalidOperation(err))
	assert.Equal(t, 2, s.Streak.Current)

	_, err = s.RecordActivity(timeutil.Date{})
	assert.True(t, shared.IsInvalidOperation(err))
}

func TestActivateProtection_Twice(t *testing.T) {
	s := NewState(testID)
	require.NoError(t, s.ActivateProtection(day(2024, 1, 1)))
	assert.True(t, shared.IsInvalidOperation(s.ActivateProtection(day(2024, 1, 2))))
	assert.Equal(t, day(2024, 1, 1), s.Streak.Protection.ActivatedOn)
}

func TestRecordActivity_Events(t *testing.T) {
	s := NewState(testID)
	s.Streak = Streak{Current: 2, Best: 2, LastActivity: day(2024, 1, 1)}
	require.NoError(t, s.ActivateProtection(day(2024, 1, 1)))

	_, err := s.RecordActivity(day(2024, 1, 3))
	require.NoError(t, err)
	events := s.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, shared.EventStreakProtected, events[0].EventType())
	assert.Equal(t, testID.String(), events[0].AggregateID())
	assert.Equal(t, 1, events[0].Payload()["missed_days"])
}
