// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TelegramID represents a unique Telegram user identifier.
type TelegramID int64

// IsValid checks if the Telegram ID is valid (positive number).
func (t TelegramID) IsValid() bool {
	return t > 0
}

// Int64 returns the underlying int64 value.
func (t TelegramID) Int64() int64 {
	return int64(t)
}

// String returns the string representation.
func (t TelegramID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// NewTelegramID creates a new TelegramID with validation.
func NewTelegramID(id int64) (TelegramID, error) {
	if id <= 0 {
		return 0, ErrInvalidTelegram
	}
	return TelegramID(id), nil
}

// ParseTelegramID parses a decimal Telegram ID, e.g. from a URL path.
func ParseTelegramID(s string) (TelegramID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, WrapError("shared", "ParseTelegramID", ErrInvalidID, "telegram id must be an integer", err)
	}
	return NewTelegramID(id)
}

// CuratorID identifies a curator (UUID format).
type CuratorID string

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the curator ID is a valid UUID.
func (c CuratorID) IsValid() bool {
	return uuidRegex.MatchString(string(c))
}

// String returns the string representation.
func (c CuratorID) String() string {
	return string(c)
}

// NewCuratorID creates a new CuratorID with validation.
func NewCuratorID(id string) (CuratorID, error) {
	cid := CuratorID(strings.ToLower(strings.TrimSpace(id)))
	if !cid.IsValid() {
		return "", NewDomainError("shared", "NewCuratorID", ErrInvalidID, "invalid curator ID format")
	}
	return cid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// XP и уровень
// ═══════════════════════════════════════════════════════════════════════════

// XPPerLevel - сколько XP нужно на каждый уровень. Шкала линейная.
const XPPerLevel = 500

// XP represents experience points earned by a learner.
type XP int

// IsValid checks if the XP value is non-negative.
func (x XP) IsValid() bool {
	return x >= 0
}

// Int returns the underlying int value.
func (x XP) Int() int {
	return int(x)
}

// Level returns floor(xp/500)+1.
func (x XP) Level() Level {
	if x <= 0 {
		return 1
	}
	return Level(int(x)/XPPerLevel + 1)
}

// IntoLevel returns XP earned inside the current level (0..499).
func (x XP) IntoLevel() int {
	if x <= 0 {
		return 0
	}
	return int(x) % XPPerLevel
}

// ToNextLevel returns how much XP is missing until the next level.
func (x XP) ToNextLevel() int {
	return XPPerLevel - x.IntoLevel()
}

// ProgressToNextLevel returns percentage progress to next level (0-100).
func (x XP) ProgressToNextLevel() int {
	return x.IntoLevel() * 100 / XPPerLevel
}

// NewXP creates a new XP value with validation.
func NewXP(amount int) (XP, error) {
	if amount < 0 {
		return 0, NewDomainError("shared", "NewXP", ErrNegativeValue, "XP cannot be negative")
	}
	return XP(amount), nil
}

// Level represents a learner's level.
type Level int

// MinLevel is the level of a fresh learner.
const MinLevel Level = 1

// IsValid checks if the level is within valid range.
func (l Level) IsValid() bool {
	return l >= MinLevel
}

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// RequiredXP returns the total XP required to reach this level.
func (l Level) RequiredXP() int {
	if l <= 1 {
		return 0
	}
	return (int(l) - 1) * XPPerLevel
}

// Title returns a human-readable title for the level.
func (l Level) Title() string {
	switch {
	case l < 3:
		return "Исследователь"
	case l < 6:
		return "Искатель"
	case l < 10:
		return "Знаток себя"
	case l < 15:
		return "Мастер эмоций"
	default:
		return "Мудрец"
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Валюты и награды
// ═══════════════════════════════════════════════════════════════════════════

// Currency is one of the spendable in-app currencies.
type Currency string

const (
	CurrencyCoins Currency = "coins"
	CurrencyGems  Currency = "gems"
)

// IsValid checks the currency is known.
func (c Currency) IsValid() bool {
	return c == CurrencyCoins || c == CurrencyGems
}

// ParseCurrency parses "coins" or "gems".
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", Errorf("shared", "ParseCurrency", ErrInvalidOperation, "unknown currency %q", s)
	}
	return c, nil
}

// Reward is a bundle applied on lesson, quest or achievement completion.
type Reward struct {
	XP    int `json:"xp,omitempty" yaml:"xp"`
	Coins int `json:"coins,omitempty" yaml:"coins"`
	Gems  int `json:"gems,omitempty" yaml:"gems"`
}

// IsZero reports whether the reward grants nothing.
func (r Reward) IsZero() bool {
	return r.XP == 0 && r.Coins == 0 && r.Gems == 0
}

// IsValid checks that no component is negative.
func (r Reward) IsValid() bool {
	return r.XP >= 0 && r.Coins >= 0 && r.Gems >= 0
}

// Plus sums two rewards.
func (r Reward) Plus(o Reward) Reward {
	return Reward{XP: r.XP + o.XP, Coins: r.Coins + o.Coins, Gems: r.Gems + o.Gems}
}

// String renders the reward as "+50 XP, +10 🪙".
func (r Reward) String() string {
	var parts []string
	if r.XP > 0 {
		parts = append(parts, fmt.Sprintf("+%d XP", r.XP))
	}
	if r.Coins > 0 {
		parts = append(parts, fmt.Sprintf("+%d 🪙", r.Coins))
	}
	if r.Gems > 0 {
		parts = append(parts, fmt.Sprintf("+%d 💎", r.Gems))
	}
	if len(parts) == 0 {
		return "—"
	}
	return strings.Join(parts, ", ")
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}
