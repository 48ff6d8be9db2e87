package curator

import (
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// Session - авторизованный участник: куратор, ученик или родитель.
type Session struct {
	// Role - роль владельца сессии.
	Role Role

	// CuratorID - куратор (для ученика и родителя - тот, к кому привязан).
	CuratorID shared.CuratorID

	// TelegramID - аккаунт ученика или родителя, 0 для куратора без Telegram.
	TelegramID shared.TelegramID

	// ExpiresAt - окончание сессии.
	ExpiresAt time.Time
}

// Subject возвращает стабильный идентификатор владельца сессии.
func (s Session) Subject() string {
	if s.Role == RoleCurator {
		return s.CuratorID.String()
	}
	return s.TelegramID.String()
}

// IsCurator проверяет, что сессия принадлежит куратору id.
func (s Session) IsCurator(id shared.CuratorID) bool {
	return s.Role == RoleCurator && s.CuratorID == id
}

// CanAccess проверяет доступ сессии к прогрессу ученика.
// Ученик видит только себя; родитель и куратор - через привязку (проверяется отдельно).
func (s Session) CanAccess(id shared.TelegramID) bool {
	return s.Role == RoleStudent && s.TelegramID == id
}

// SessionFor создаёт сессию по привязке.
func SessionFor(l Link, ttl time.Duration, now time.Time) Session {
	return Session{
		Role:       l.Role,
		CuratorID:  l.CuratorID,
		TelegramID: l.TelegramID,
		ExpiresAt:  now.UTC().Add(ttl),
	}
}

// CuratorSession создаёт сессию куратора.
func CuratorSession(c *Curator, ttl time.Duration, now time.Time) Session {
	return Session{
		Role:       RoleCurator,
		CuratorID:  c.ID,
		TelegramID: c.TelegramID,
		ExpiresAt:  now.UTC().Add(ttl),
	}
}
