package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE LESSON COMMAND
// Credits a lesson: reward, daily activity, quests and achievements.
// Used by POST /api/telegram/complete-lesson and `ledgerctl lesson`.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLessonCommand contains the data to complete a lesson.
type CompleteLessonCommand struct {
	// TelegramID identifies the learner.
	TelegramID shared.TelegramID

	// LessonID is the catalog lesson id.
	LessonID string

	// Date is the completion day (defaults to today in the configured zone).
	Date timeutil.Date
}

// Validate validates the command.
func (c CompleteLessonCommand) Validate() error {
	if err := requireTelegramID("complete_lesson", c.TelegramID); err != nil {
		return err
	}
	if c.LessonID == "" {
		return shared.NewDomainError("complete_lesson", "Validate", shared.ErrInvalidInput, "lesson_id is required")
	}
	return nil
}

// CompleteLessonResult contains the result of completing a lesson.
type CompleteLessonResult struct {
	// Lesson is the catalog entry that was completed.
	Lesson ledger.LessonDef

	// Outcome describes rewards, streak and unlocks.
	Outcome ledger.LessonOutcome

	// State is the committed state.
	State *ledger.State

	// Events contains domain events generated.
	Events []shared.Event
}

// errDuplicateLesson aborts the update of an already completed lesson.
var errDuplicateLesson = errors.New("lesson already completed")

// CompleteLessonHandler handles the CompleteLessonCommand.
type CompleteLessonHandler struct {
	deps LedgerDeps
}

// NewCompleteLessonHandler creates a new CompleteLessonHandler.
func NewCompleteLessonHandler(deps LedgerDeps) *CompleteLessonHandler {
	return &CompleteLessonHandler{deps: deps.withDefaults()}
}

// Handle executes the complete lesson command.
func (h *CompleteLessonHandler) Handle(ctx context.Context, cmd CompleteLessonCommand) (*CompleteLessonResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	lesson, ok := h.deps.Catalog.Lesson(cmd.LessonID)
	if !ok {
		return nil, shared.WrapError("complete_lesson", "Handle", shared.ErrNotFound,
			fmt.Sprintf("lesson %q not found", cmd.LessonID), shared.ErrLessonNotFound)
	}

	today := h.deps.today(cmd.Date)
	var outcome ledger.LessonOutcome

	state, events, err := h.deps.update(ctx, "complete_lesson", cmd.TelegramID, today, func(s *ledger.State) error {
		var err error
		outcome, err = s.CompleteLesson(lesson, today, h.deps.Catalog)
		if err == nil && outcome.Duplicate {
			return errDuplicateLesson
		}
		return err
	})
	if errors.Is(err, errDuplicateLesson) {
		// Repeats are answered from the stored state without a new version.
		current, err := h.deps.Repo.Get(ctx, cmd.TelegramID)
		if err != nil {
			return nil, fmt.Errorf("complete_lesson: %w", err)
		}
		outcome.LevelBefore, outcome.LevelAfter = current.Level(), current.Level()
		return &CompleteLessonResult{Lesson: lesson, Outcome: outcome, State: current}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("complete_lesson: %w", err)
	}

	return &CompleteLessonResult{
		Lesson:  lesson,
		Outcome: outcome,
		State:   state,
		Events:  events,
	}, nil
}
