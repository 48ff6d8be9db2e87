package command

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Marks a day of activity: extends, protects or resets the streak.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	// TelegramID identifies the learner.
	TelegramID shared.TelegramID

	// Date is the activity day (defaults to today in the configured zone).
	Date timeutil.Date
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	return requireTelegramID("record_activity", c.TelegramID)
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// Streak describes what happened to the streak.
	Streak ledger.StreakResult

	// State is the committed state.
	State *ledger.State

	// Events contains domain events generated.
	Events []shared.Event
}

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	deps LedgerDeps
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(deps LedgerDeps) *RecordActivityHandler {
	return &RecordActivityHandler{deps: deps.withDefaults()}
}

// Handle executes the record activity command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	today := h.deps.today(cmd.Date)
	var streak ledger.StreakResult

	state, events, err := h.deps.update(ctx, "record_activity", cmd.TelegramID, today, func(s *ledger.State) error {
		var err error
		if streak, err = s.RecordActivity(today); err != nil {
			return err
		}
		_, err = s.EvaluateAll(h.deps.Catalog, today)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}

	return &RecordActivityResult{
		Streak: streak,
		State:  state,
		Events: events,
	}, nil
}
