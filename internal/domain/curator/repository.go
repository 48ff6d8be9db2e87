package curator

import (
	"context"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// Repository - хранилище кураторов, кодов доступа и привязок.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Кураторы
	// ─────────────────────────────────────────────────────────────────────────

	// Create сохраняет нового куратора. Дубликат - shared.ErrAlreadyExists.
	Create(ctx context.Context, c *Curator) error

	// GetByID возвращает куратора. Нет записи - shared.ErrCuratorNotFound.
	GetByID(ctx context.Context, id shared.CuratorID) (*Curator, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Коды доступа
	// ─────────────────────────────────────────────────────────────────────────

	// SaveCode сохраняет новый код. Совпадение кода - shared.ErrAlreadyExists.
	SaveCode(ctx context.Context, code *AccessCode) error

	// RedeemCode атомарно погашает код и создаёт привязку (AccessCode.Redeem
	// внутри одной транзакции). Нет кода - shared.ErrAccessCodeNotFound.
	RedeemCode(ctx context.Context, code string, by shared.TelegramID, now time.Time) (*Link, error)

	// PurgeExpiredCodes удаляет непогашенные коды, истёкшие до before.
	PurgeExpiredCodes(ctx context.Context, before time.Time) (int64, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Привязки
	// ─────────────────────────────────────────────────────────────────────────

	// ListLinks возвращает привязки куратора в порядке привязки.
	ListLinks(ctx context.Context, id shared.CuratorID) ([]Link, error)
}
