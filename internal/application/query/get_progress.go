package query

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Читает версионированное состояние ученика. На сервере это
// GET /api/sync/progress/{id} с cache-aside через Redis.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery содержит параметры запроса.
type GetProgressQuery struct {
	// TelegramID - ученик.
	TelegramID shared.TelegramID

	// SkipCache - читать мимо кэша (CLI, отладка).
	SkipCache bool
}

// Validate проверяет корректность параметров.
func (q GetProgressQuery) Validate() error {
	if !q.TelegramID.IsValid() {
		return shared.ErrInvalidTelegram
	}
	return nil
}

// GetProgressHandler обрабатывает запрос прогресса.
type GetProgressHandler struct {
	repo    ProgressReader
	cache   ProgressCache
	catalog CourseCatalog
	log     *logger.Logger
}

// NewGetProgressHandler создаёт обработчик. cache и catalog могут быть nil.
func NewGetProgressHandler(repo ProgressReader, cache ProgressCache, catalog CourseCatalog, log *logger.Logger) *GetProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetProgressHandler{repo: repo, cache: cache, catalog: catalog, log: log}
}

// Handle возвращает состояние. Нет состояния - shared.ErrStateNotFound.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ledger.State, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.SkipCache {
		if s, err := h.cache.Get(ctx, q.TelegramID); err == nil && s != nil {
			return s, nil
		}
	}

	s, err := h.repo.Get(ctx, q.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("get progress %d: %w", q.TelegramID, err)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, s); err != nil {
			h.log.Debug("progress cache set failed",
				logger.TelegramID(q.TelegramID.Int64()),
				logger.Err(err))
		}
	}
	return s, nil
}

// Summary возвращает сводку прогресса ученика.
func (h *GetProgressHandler) Summary(ctx context.Context, q GetProgressQuery) (*ProgressSummary, error) {
	s, err := h.Handle(ctx, q)
	if err != nil {
		return nil, err
	}
	sum := Summarize(s, lessonsTotal(h.catalog))
	return &sum, nil
}
