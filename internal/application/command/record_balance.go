package command

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD BALANCE COMMAND
// Stores a "wheel of balance" self-assessment (initial or final).
// ══════════════════════════════════════════════════════════════════════════════

// RecordBalanceCommand contains the data to record balance scores.
type RecordBalanceCommand struct {
	// TelegramID identifies the learner.
	TelegramID shared.TelegramID

	// Kind is "initial" or "final".
	Kind string

	// Scores maps every catalog category to a 1-10 score.
	Scores map[string]int

	// Date is the assessment day (defaults to today in the configured zone).
	Date timeutil.Date
}

// Validate validates the command.
func (c RecordBalanceCommand) Validate() error {
	if err := requireTelegramID("record_balance", c.TelegramID); err != nil {
		return err
	}
	if _, err := ledger.ParseBalanceKind(c.Kind); err != nil {
		return err
	}
	if len(c.Scores) == 0 {
		return shared.NewDomainError("record_balance", "Validate", shared.ErrInvalidInput, "scores are required")
	}
	return nil
}

// RecordBalanceResult contains the result of recording balance scores.
type RecordBalanceResult struct {
	// Delta is final minus initial per category, when both are present.
	Delta map[string]int

	// State is the committed state.
	State *ledger.State

	// Events contains domain events generated.
	Events []shared.Event
}

// RecordBalanceHandler handles the RecordBalanceCommand.
type RecordBalanceHandler struct {
	deps LedgerDeps
}

// NewRecordBalanceHandler creates a new RecordBalanceHandler.
func NewRecordBalanceHandler(deps LedgerDeps) *RecordBalanceHandler {
	return &RecordBalanceHandler{deps: deps.withDefaults()}
}

// Handle executes the record balance command.
func (h *RecordBalanceHandler) Handle(ctx context.Context, cmd RecordBalanceCommand) (*RecordBalanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	kind, _ := ledger.ParseBalanceKind(cmd.Kind)

	today := h.deps.today(cmd.Date)
	categories := h.deps.Catalog.BalanceCategories()

	state, events, err := h.deps.update(ctx, "record_balance", cmd.TelegramID, today, func(s *ledger.State) error {
		return s.RecordBalanceScores(kind, cmd.Scores, categories, today)
	})
	if err != nil {
		return nil, fmt.Errorf("record_balance: %w", err)
	}

	delta, _ := state.Balance.Delta()
	return &RecordBalanceResult{Delta: delta, State: state, Events: events}, nil
}
