package command

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD COMMAND
// Grants XP and currencies outside of lessons (mini-games, curator bonuses),
// then re-evaluates metric achievements.
// ══════════════════════════════════════════════════════════════════════════════

// AwardCommand contains the data to grant a reward.
type AwardCommand struct {
	// TelegramID identifies the learner.
	TelegramID shared.TelegramID

	// Reward is the bundle to grant. Every part must be non-negative.
	Reward shared.Reward

	// Source tags the events, e.g. "game:memory" or "curator".
	Source string

	// Date is the award day (defaults to today in the configured zone).
	Date timeutil.Date
}

// Validate validates the command.
func (c AwardCommand) Validate() error {
	if err := requireTelegramID("award", c.TelegramID); err != nil {
		return err
	}
	if c.Reward.IsZero() {
		return shared.NewDomainError("award", "Validate", shared.ErrInvalidInput, "reward is empty")
	}
	return nil
}

// AwardResult contains the result of granting a reward.
type AwardResult struct {
	// Unlocked lists achievements opened by the award.
	Unlocked []ledger.AchievementOutcome

	// State is the committed state.
	State *ledger.State

	// Events contains domain events generated.
	Events []shared.Event
}

// AwardHandler handles the AwardCommand.
type AwardHandler struct {
	deps LedgerDeps
}

// NewAwardHandler creates a new AwardHandler.
func NewAwardHandler(deps LedgerDeps) *AwardHandler {
	return &AwardHandler{deps: deps.withDefaults()}
}

// Handle executes the award command.
func (h *AwardHandler) Handle(ctx context.Context, cmd AwardCommand) (*AwardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	source := cmd.Source
	if source == "" {
		source = "manual"
	}
	today := h.deps.today(cmd.Date)
	var unlocked []ledger.AchievementOutcome

	state, events, err := h.deps.update(ctx, "award", cmd.TelegramID, today, func(s *ledger.State) error {
		if cmd.Reward.XP != 0 {
			if err := s.AwardXP(cmd.Reward.XP, source); err != nil {
				return err
			}
		}
		if cmd.Reward.Coins != 0 || cmd.Reward.Gems != 0 {
			if err := s.GrantCurrency(cmd.Reward.Coins, cmd.Reward.Gems, source); err != nil {
				return err
			}
		}
		var err error
		unlocked, err = s.EvaluateAll(h.deps.Catalog, today)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("award: %w", err)
	}

	return &AwardResult{Unlocked: unlocked, State: state, Events: events}, nil
}
