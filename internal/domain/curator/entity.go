// Package curator содержит доменную модель кураторов курса: кураторы
// выдают одноразовые коды доступа, по которым ученики и родители
// привязываются к куратору.
package curator

import (
	"crypto/rand"
	"io"
	"strings"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role - роль участника, привязанного к куратору.
type Role string

const (
	// RoleStudent - подросток, проходящий курс.
	RoleStudent Role = "student"
	// RoleParent - родитель ученика, видит его дашборд.
	RoleParent Role = "parent"
	// RoleCurator - сам куратор (используется в сессиях).
	RoleCurator Role = "curator"
)

// IsValid проверяет роль, допустимую для кода доступа.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleParent
}

// ParseRole разбирает роль кода доступа. Пустая строка - ученик.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleStudent, nil
	}
	r := Role(s)
	if !r.IsValid() {
		return "", shared.Errorf("curator", "ParseRole", shared.ErrInvalidInput, "unknown role %q", s)
	}
	return r, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CURATOR
// ══════════════════════════════════════════════════════════════════════════════

// Curator - куратор группы.
type Curator struct {
	// ID - UUID куратора.
	ID shared.CuratorID

	// Name - отображаемое имя.
	Name string

	// TelegramID - аккаунт куратора в Telegram, 0 если не привязан.
	TelegramID shared.TelegramID

	// PasswordHash - bcrypt-хэш пароля для входа в дашборд.
	PasswordHash string

	// CreatedAt - время создания.
	CreatedAt time.Time
}

// NewCurator создаёт куратора с проверкой полей.
func NewCurator(id shared.CuratorID, name string, telegramID shared.TelegramID, passwordHash string, now time.Time) (*Curator, error) {
	if !id.IsValid() {
		return nil, shared.NewDomainError("curator", "NewCurator", shared.ErrInvalidID, "invalid curator ID")
	}
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 100 {
		return nil, shared.NewDomainError("curator", "NewCurator", shared.ErrInvalidInput, "name must be 2-100 characters")
	}
	if passwordHash == "" {
		return nil, shared.NewDomainError("curator", "NewCurator", shared.ErrInvalidInput, "password hash is required")
	}
	if telegramID < 0 {
		return nil, shared.ErrInvalidTelegram
	}
	return &Curator{
		ID:           id,
		Name:         name,
		TelegramID:   telegramID,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS CODE
// ══════════════════════════════════════════════════════════════════════════════

const (
	// CodeLength - длина кода доступа.
	CodeLength = 8

	// CodeAlphabet - символы без похожих друг на друга (0/O, 1/I/L).
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// DefaultCodeTTL - срок жизни кода по умолчанию.
	DefaultCodeTTL = 72 * time.Hour

	// MaxCodeTTL - максимальный срок жизни кода.
	MaxCodeTTL = 30 * 24 * time.Hour
)

// GenerateCode возвращает случайный код из CodeAlphabet. r == nil - crypto/rand.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, CodeLength)
	out := make([]byte, CodeLength)
	n := byte(len(CodeAlphabet))
	// Отбрасываем байты за пределом кратного длине алфавита, чтобы не было смещения.
	limit := byte(256 - 256%int(n))
	for i := 0; i < CodeLength; {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", shared.WrapError("curator", "GenerateCode", shared.ErrServiceUnavailable, "random source failed", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out[i] = CodeAlphabet[b%n]
			i++
			if i == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeCode приводит введённый пользователем код к каноничному виду.
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

// AccessCode - одноразовый код привязки к куратору.
type AccessCode struct {
	Code       string
	CuratorID  shared.CuratorID
	Role       Role
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RedeemedBy shared.TelegramID
	RedeemedAt time.Time
}

// NewAccessCode создаёт код. ttl <= 0 - DefaultCodeTTL.
func NewAccessCode(code string, curatorID shared.CuratorID, role Role, ttl time.Duration, now time.Time) (*AccessCode, error) {
	code = NormalizeCode(code)
	if len(code) != CodeLength {
		return nil, shared.Errorf("curator", "NewAccessCode", shared.ErrInvalidFormat, "code must be %d characters", CodeLength)
	}
	if !curatorID.IsValid() {
		return nil, shared.NewDomainError("curator", "NewAccessCode", shared.ErrInvalidID, "invalid curator ID")
	}
	if !role.IsValid() {
		return nil, shared.Errorf("curator", "NewAccessCode", shared.ErrInvalidInput, "role %q cannot be granted by code", role)
	}
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if ttl > MaxCodeTTL {
		return nil, shared.Errorf("curator", "NewAccessCode", shared.ErrValueOutOfRange, "ttl %s exceeds %s", ttl, MaxCodeTTL)
	}
	now = now.UTC()
	return &AccessCode{
		Code:      code,
		CuratorID: curatorID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsExpired проверяет истечение срока.
func (c *AccessCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsRedeemed проверяет, был ли код уже использован.
func (c *AccessCode) IsRedeemed() bool {
	return c.RedeemedBy != 0
}

// Redeem погашает код. Истёкший или уже погашенный код - shared.ErrInvalidOperation.
func (c *AccessCode) Redeem(by shared.TelegramID, now time.Time) (*Link, error) {
	if !by.IsValid() {
		return nil, shared.ErrInvalidTelegram
	}
	if c.IsRedeemed() {
		return nil, shared.ErrAccessCodeUsed
	}
	if c.IsExpired(now) {
		return nil, shared.ErrAccessCodeExpired
	}
	now = now.UTC()
	c.RedeemedBy = by
	c.RedeemedAt = now
	return &Link{
		CuratorID:  c.CuratorID,
		TelegramID: by,
		Role:       c.Role,
		LinkedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LINK
// ══════════════════════════════════════════════════════════════════════════════

// Link - привязка ученика или родителя к куратору.
type Link struct {
	CuratorID  shared.CuratorID
	TelegramID shared.TelegramID
	Role       Role
	LinkedAt   time.Time
}

// StudentLinked - событие привязки.
type StudentLinked struct {
	shared.BaseEvent
	Link Link
}

// NewStudentLinked создаёт событие привязки.
func NewStudentLinked(l Link) StudentLinked {
	return StudentLinked{
		BaseEvent: shared.NewBaseEventAt(shared.EventStudentLinked, l.CuratorID.String(), l.LinkedAt),
		Link:      l,
	}
}

// Payload implements shared.Event.
func (e StudentLinked) Payload() map[string]interface{} {
	return map[string]interface{}{
		"curator_id":  e.Link.CuratorID.String(),
		"telegram_id": e.Link.TelegramID.Int64(),
		"role":        string(e.Link.Role),
	}
}
