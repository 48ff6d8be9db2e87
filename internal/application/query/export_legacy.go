package query

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT LEGACY QUERY
// Выгружает состояние в прежний формат ключей localStorage
// (userXP, userCoins, currentStreak...) для старых версий Mini App.
// ══════════════════════════════════════════════════════════════════════════════

// ExportLegacyQuery содержит параметры выгрузки.
type ExportLegacyQuery struct {
	TelegramID shared.TelegramID
}

// ExportLegacyHandler обрабатывает выгрузку.
type ExportLegacyHandler struct {
	repo ProgressReader
}

// NewExportLegacyHandler создаёт обработчик.
func NewExportLegacyHandler(repo ProgressReader) *ExportLegacyHandler {
	return &ExportLegacyHandler{repo: repo}
}

// Handle возвращает набор legacy-ключей.
func (h *ExportLegacyHandler) Handle(ctx context.Context, q ExportLegacyQuery) (map[string]string, error) {
	if !q.TelegramID.IsValid() {
		return nil, shared.ErrInvalidTelegram
	}
	s, err := h.repo.Get(ctx, q.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("export legacy %d: %w", q.TelegramID, err)
	}
	kv, err := ledger.EncodeLegacy(s)
	if err != nil {
		return nil, fmt.Errorf("export legacy %d: %w", q.TelegramID, err)
	}
	return kv, nil
}
