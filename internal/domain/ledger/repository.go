package ledger

import (
	"context"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// UpdateFunc изменяет состояние. Ошибка отменяет всё обновление.
type UpdateFunc func(s *State) error

// Repository - хранилище прогресса с атомарным чтением-изменением-записью.
// Реализации: sqlite (клиент), postgres (сервер), memory (тесты).
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Чтение
	// ─────────────────────────────────────────────────────────────────────────

	// Get возвращает состояние. Нет записи - shared.ErrStateNotFound,
	// повреждённый блоб - shared.ErrCorruptState.
	Get(ctx context.Context, id shared.TelegramID) (*State, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Запись
	// ─────────────────────────────────────────────────────────────────────────

	// Update загружает состояние (или создаёт новое), применяет fn, проверяет
	// инварианты, увеличивает Version и сохраняет. Всё в одной транзакции.
	// Возвращённое состояние содержит события, накопленные fn.
	Update(ctx context.Context, id shared.TelegramID, fn UpdateFunc) (*State, error)

	// Put - условный upsert: состояние принимается, только если его Version
	// больше сохранённой. Равная версия с тем же содержимым не ошибка.
	// При конфликте возвращается сохранённое состояние и shared.ErrVersionConflict.
	Put(ctx context.Context, s *State) (PutResult, error)
}

// PutResult - итог условного upsert.
type PutResult struct {
	// Applied - состояние записано.
	Applied bool

	// Current - состояние, которое теперь хранится.
	Current *State
}

// PutDecision - что делать с входящим состоянием.
type PutDecision int

const (
	PutApply PutDecision = iota
	PutDuplicate
	PutConflict
)

// ResolvePut сравнивает входящее состояние с сохранённым (stored == nil - записи нет).
func ResolvePut(stored, incoming *State) PutDecision {
	if stored == nil || incoming.Version > stored.Version {
		return PutApply
	}
	if incoming.Version == stored.Version && SameContent(stored, incoming) {
		return PutDuplicate
	}
	return PutConflict
}

// ConflictError формирует ошибку конфликта версий.
func ConflictError(stored, incoming *State) error {
	return shared.Errorf("ledger", "Put", shared.ErrVersionConflict,
		"incoming version %d does not supersede stored version %d", incoming.Version, stored.Version)
}

// Prepare выполняет общую часть Update для всех реализаций: применяет fn
// к current (nil - новое состояние), проверяет инварианты и ставит новую версию.
func Prepare(id shared.TelegramID, current *State, fn UpdateFunc, policy Policy, now time.Time) (*State, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidTelegram
	}

	s := current
	if s == nil {
		s = NewState(id)
	}
	s.SetPolicy(policy)

	if err := fn(s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	s.Version++
	s.UpdatedAt = now.UTC()
	return s, nil
}

// ValidateIncoming проверяет состояние, пришедшее извне (sync API, импорт).
func ValidateIncoming(s *State) error {
	if s == nil {
		return shared.NewDomainError("ledger", "Put", shared.ErrCorruptState, "state is required")
	}
	s.normalize()
	return s.Validate()
}
