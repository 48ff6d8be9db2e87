package command

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT LEGACY COMMAND
// Migrates a browser localStorage snapshot into the versioned state.
// ══════════════════════════════════════════════════════════════════════════════

// ImportLegacyCommand contains the snapshot to import.
type ImportLegacyCommand struct {
	// TelegramID identifies the learner.
	TelegramID shared.TelegramID

	// Values is the key/value snapshot (userXP, userCoins, ...).
	Values map[string]string

	// Force replaces a state that already has progress.
	Force bool

	// Date is the import day (defaults to today in the configured zone).
	Date timeutil.Date
}

// Validate validates the command.
func (c ImportLegacyCommand) Validate() error {
	if err := requireTelegramID("import_legacy", c.TelegramID); err != nil {
		return err
	}
	if len(c.Values) == 0 {
		return shared.NewDomainError("import_legacy", "Validate", shared.ErrInvalidInput, "snapshot is empty")
	}
	return nil
}

// ImportLegacyResult contains the imported state and decoder notes.
type ImportLegacyResult struct {
	Report ledger.LegacyReport
	State  *ledger.State
}

// ImportLegacyHandler handles the ImportLegacyCommand.
type ImportLegacyHandler struct {
	deps LedgerDeps
}

// NewImportLegacyHandler creates a new ImportLegacyHandler.
func NewImportLegacyHandler(deps LedgerDeps) *ImportLegacyHandler {
	return &ImportLegacyHandler{deps: deps.withDefaults()}
}

// Handle executes the import. The stored version keeps counting up.
func (h *ImportLegacyHandler) Handle(ctx context.Context, cmd ImportLegacyCommand) (*ImportLegacyResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	today := h.deps.today(cmd.Date)

	decoded, report, err := ledger.DecodeLegacy(cmd.TelegramID, cmd.Values, h.deps.Catalog, today)
	if err != nil {
		return nil, fmt.Errorf("import_legacy: %w", err)
	}

	state, _, err := h.deps.update(ctx, "import_legacy", cmd.TelegramID, today, func(s *ledger.State) error {
		if s.Version > 0 && !cmd.Force {
			return shared.Errorf("import_legacy", "Handle", shared.ErrAlreadyExists,
				"progress for %d already exists at version %d", cmd.TelegramID, s.Version)
		}
		if err := s.ReplaceContent(decoded); err != nil {
			return err
		}
		s.BeginDay(today, h.deps.Catalog)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import_legacy: %w", err)
	}

	log := h.deps.Logger.With(logger.TelegramID(cmd.TelegramID.Int64()), logger.StateVersion(state.Version))
	if report.LevelMismatch {
		log.Warn("legacy userLevel does not match XP",
			logger.Int("stored_level", report.StoredLevel),
			logger.Int("level", state.Level().Int()))
	}
	if len(report.UnknownKeys) > 0 {
		log.Info("legacy snapshot has unknown keys", logger.Any("keys", report.UnknownKeys))
	}
	if report.DuplicateLessons > 0 {
		log.Info("dropped duplicate legacy lessons", logger.Int("count", report.DuplicateLessons))
	}

	return &ImportLegacyResult{Report: report, State: state}, nil
}
