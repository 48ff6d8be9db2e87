package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

func TestCompactOutbox_KeepsNewestPerUser(t *testing.T) {
	entries := []OutboxEntry{
		{ID: "a1", TelegramID: 2, StateVersion: 1, Attempts: 3},
		{ID: "b1", TelegramID: 1, StateVersion: 4},
		{ID: "a2", TelegramID: 2, StateVersion: 2},
		{ID: "b0", TelegramID: 1, StateVersion: 3, Attempts: 1},
	}

	got := CompactOutbox(entries)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "b1", got[0].ID)
		assert.Equal(t, 1, got[0].Attempts)
		assert.Equal(t, "a2", got[1].ID)
		assert.Equal(t, 3, got[1].Attempts)
	}

	assert.Empty(t, CompactOutbox(nil))
}

func TestEventTypes(t *testing.T) {
	s := NewState(testID)
	assert.Nil(t, EventTypes(s.PendingEvents()))

	_ = s.AwardXP(600, "test")
	assert.Equal(t, []shared.EventType{shared.EventXPAwarded, shared.EventLevelUp}, EventTypes(s.PendingEvents()))
}
