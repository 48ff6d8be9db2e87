package command

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK ACHIEVEMENT COMMAND
// Explicit unlock for manual achievements (course finale, curator awards).
// A repeated unlock fails with ErrAlreadyUnlocked and grants nothing.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockAchievementCommand contains the data to unlock an achievement.
type UnlockAchievementCommand struct {
	// TelegramID identifies the learner.
	TelegramID shared.TelegramID

	// AchievementID is the catalog achievement id.
	AchievementID string

	// Date is the unlock day (defaults to today in the configured zone).
	Date timeutil.Date
}

// Validate validates the command.
func (c UnlockAchievementCommand) Validate() error {
	if err := requireTelegramID("unlock_achievement", c.TelegramID); err != nil {
		return err
	}
	if c.AchievementID == "" {
		return shared.NewDomainError("unlock_achievement", "Validate", shared.ErrInvalidInput, "achievement_id is required")
	}
	return nil
}

// UnlockAchievementResult contains the result of an unlock.
type UnlockAchievementResult struct {
	// Achievement is the catalog entry.
	Achievement ledger.AchievementDef

	// State is the committed state.
	State *ledger.State

	// Events contains domain events generated.
	Events []shared.Event
}

// UnlockAchievementHandler handles the UnlockAchievementCommand.
type UnlockAchievementHandler struct {
	deps LedgerDeps
}

// NewUnlockAchievementHandler creates a new UnlockAchievementHandler.
func NewUnlockAchievementHandler(deps LedgerDeps) *UnlockAchievementHandler {
	return &UnlockAchievementHandler{deps: deps.withDefaults()}
}

// Handle executes the unlock command.
func (h *UnlockAchievementHandler) Handle(ctx context.Context, cmd UnlockAchievementCommand) (*UnlockAchievementResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	def, ok := h.deps.Catalog.Achievement(cmd.AchievementID)
	if !ok {
		return nil, shared.WrapError("unlock_achievement", "Handle", shared.ErrNotFound,
			fmt.Sprintf("achievement %q not found", cmd.AchievementID), shared.ErrUnknownAchieve)
	}

	today := h.deps.today(cmd.Date)
	state, events, err := h.deps.update(ctx, "unlock_achievement", cmd.TelegramID, today, func(s *ledger.State) error {
		return s.UnlockAchievement(def, today)
	})
	if err != nil {
		return nil, fmt.Errorf("unlock_achievement: %w", err)
	}

	return &UnlockAchievementResult{Achievement: def, State: state, Events: events}, nil
}
