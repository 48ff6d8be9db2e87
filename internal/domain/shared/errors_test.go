package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKind(t *testing.T) {
	err := NewDomainError("ledger", "SpendCurrency", ErrInsufficientFunds, "not enough coins")

	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.True(t, IsInsufficientFunds(fmt.Errorf("buy item: %w", err)))
	assert.False(t, IsCorruptState(err))
	assert.Equal(t, "ledger.SpendCurrency: not enough coins", err.Error())
	assert.Equal(t, ErrInsufficientFunds, KindOf(fmt.Errorf("wrapped: %w", err)))
}

func TestWrapError_KeepsCause(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := WrapError("ledger", "DecodeLegacy", ErrCorruptState, "userInventory", cause)

	assert.True(t, IsCorruptState(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "userInventory")
	assert.Contains(t, err.Error(), cause.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrSyncAPIUnavailable))
	assert.True(t, IsNetworkUnavailable(ErrSyncAPIUnavailable))
	assert.True(t, IsRetryable(ErrSyncAPIRateLimited))
	assert.False(t, IsRetryable(ErrSyncAPIInvalid))
	assert.False(t, IsRetryable(NewDomainError("ledger", "x", ErrInvalidOperation, "nope")))
}

func TestXPLevel(t *testing.T) {
	tests := []struct {
		xp    XP
		level Level
	}{
		{0, 1},
		{250, 1},
		{499, 1},
		{500, 2},
		{550, 2},
		{1000, 3},
		{-10, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, tt.xp.Level(), "xp=%d", tt.xp)
	}

	assert.Equal(t, 50, XP(550).IntoLevel())
	assert.Equal(t, 450, XP(550).ToNextLevel())
	assert.Equal(t, 10, XP(550).ProgressToNextLevel())
	assert.Equal(t, 500, Level(2).RequiredXP())
}

func TestParseTelegramID(t *testing.T) {
	id, err := ParseTelegramID("123456")
	assert.NoError(t, err)
	assert.Equal(t, TelegramID(123456), id)

	_, err = ParseTelegramID("abc")
	assert.True(t, IsValidation(err))

	_, err = ParseTelegramID("-5")
	assert.True(t, IsValidation(err))
}

func TestReward(t *testing.T) {
	r := Reward{XP: 50, Coins: 10}.Plus(Reward{Gems: 1})

	assert.Equal(t, Reward{XP: 50, Coins: 10, Gems: 1}, r)
	assert.Equal(t, "+50 XP, +10 🪙, +1 💎", r.String())
	assert.True(t, Reward{}.IsZero())
	assert.False(t, Reward{XP: -1}.IsValid())
}
