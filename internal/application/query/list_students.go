package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Список привязанных к куратору учеников и родителей со сводкой прогресса.
// Обслуживает GET /api/curator/{id}/students.
// ══════════════════════════════════════════════════════════════════════════════

// maxParallelReads - сколько состояний читается одновременно.
const maxParallelReads = 8

// LinkReader - чтение привязок куратора.
type LinkReader interface {
	ListLinks(ctx context.Context, id shared.CuratorID) ([]curator.Link, error)
}

// ListStudentsQuery содержит параметры запроса.
type ListStudentsQuery struct {
	// CuratorID - чьих учеников показать.
	CuratorID shared.CuratorID

	// Session - кто спрашивает. Только сам куратор.
	Session curator.Session

	// Page - страница списка. Нулевое значение - первая страница по умолчанию.
	Page shared.Pagination
}

// Validate проверяет корректность параметров и права.
func (q ListStudentsQuery) Validate() error {
	if !q.CuratorID.IsValid() {
		return shared.Errorf("list_students", "Validate", shared.ErrInvalidID, "invalid curator id %q", q.CuratorID)
	}
	if !q.Session.IsCurator(q.CuratorID) {
		return shared.NewDomainError("list_students", "Validate", shared.ErrForbidden, "only the curator can list their students")
	}
	return nil
}

// StudentCard - одна привязка со сводкой.
type StudentCard struct {
	TelegramID int64     `json:"telegram_id"`
	Role       string    `json:"role"`
	LinkedAt   time.Time `json:"linked_at"`

	// Progress - nil, если ученик ещё не синхронизировал прогресс.
	Progress *ProgressSummary `json:"progress,omitempty"`
}

// ListStudentsResult содержит результат запроса.
type ListStudentsResult struct {
	CuratorID string        `json:"curator_id"`
	Students  []StudentCard `json:"students"`

	// Total - число привязок на всех страницах.
	Total int `json:"total"`
	Page  int `json:"page"`
}

// ListStudentsHandler обрабатывает запрос.
type ListStudentsHandler struct {
	links    LinkReader
	progress ProgressReader
	catalog  CourseCatalog
	log      *logger.Logger
}

// NewListStudentsHandler создаёт обработчик.
func NewListStudentsHandler(links LinkReader, progress ProgressReader, catalog CourseCatalog, log *logger.Logger) *ListStudentsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ListStudentsHandler{links: links, progress: progress, catalog: catalog, log: log}
}

// Handle выполняет запрос. Порядок карточек совпадает с порядком привязок.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	links, err := h.links.ListLinks(ctx, q.CuratorID)
	if err != nil {
		return nil, fmt.Errorf("list students of %s: %w", q.CuratorID, err)
	}

	page := shared.NewPagination(q.Page.Page, q.Page.PageSize)
	totalLinks := len(links)
	links = links[min(page.Offset(), totalLinks):min(page.Offset()+page.Limit(), totalLinks)]

	cards := make([]StudentCard, len(links))
	total := lessonsTotal(h.catalog)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, l := range links {
		cards[i] = StudentCard{
			TelegramID: l.TelegramID.Int64(),
			Role:       string(l.Role),
			LinkedAt:   l.LinkedAt,
		}
		if l.Role != curator.RoleStudent {
			continue
		}
		g.Go(func() error {
			s, err := h.progress.Get(gctx, l.TelegramID)
			if shared.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("progress of %d: %w", l.TelegramID, err)
			}
			sum := Summarize(s, total)
			cards[i].Progress = &sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h.log.Debug("listed curator students",
		logger.CuratorID(q.CuratorID.String()),
		logger.Int("count", len(cards)),
		logger.Int("page", page.Page))

	return &ListStudentsResult{
		CuratorID: q.CuratorID.String(),
		Students:  cards,
		Total:     totalLinks,
		Page:      page.Page,
	}, nil
}
