package ledger

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// SchemaVersion - текущая версия формата сериализованного State.
const SchemaVersion = 1

// ══════════════════════════════════════════════════════════════════════════════
// STATE AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// State - единый версионированный объект прогресса ученика.
// Заменяет разрозненные ключи localStorage (userXP, userCoins, currentStreak...).
type State struct {
	// SchemaVersion - версия формата, неизвестная версия считается повреждением.
	SchemaVersion int `json:"schema_version"`

	// TelegramID - владелец прогресса.
	TelegramID shared.TelegramID `json:"telegram_id"`

	// Version - монотонный счётчик, каждое успешное обновление увеличивает его на 1.
	Version int64 `json:"version"`

	// Economy - опыт и валюты.
	Economy Economy `json:"economy"`

	// Streak - серия дней активности и щит.
	Streak Streak `json:"streak"`

	// Inventory - купленные предметы.
	Inventory Inventory `json:"inventory"`

	// Achievements - прогресс по достижениям каталога.
	Achievements map[string]AchievementProgress `json:"achievements"`

	// Quests - ежедневные задания текущего дня.
	Quests DailyQuests `json:"daily_quests"`

	// Balance - оценки "колеса баланса".
	Balance BalanceScores `json:"balance"`

	// CompletedLessons - пройденные уроки в порядке прохождения.
	CompletedLessons []string `json:"completed_lessons"`

	// Stats - счётчики для метрик достижений.
	Stats Stats `json:"stats"`

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`

	policy  Policy
	pending []shared.Event
}

// Stats - накопительные счётчики, не выводимые из остального состояния.
type Stats struct {
	ItemsPurchased  int `json:"items_purchased"`
	ItemsUsed       int `json:"items_used"`
	QuestsCompleted int `json:"quests_completed"`
}

// NewState создаёт пустой прогресс нового ученика.
func NewState(id shared.TelegramID) *State {
	return &State{
		SchemaVersion: SchemaVersion,
		TelegramID:    id,
		Inventory:     Inventory{},
		Achievements:  map[string]AchievementProgress{},
		policy:        DefaultPolicy(),
	}
}

// Level возвращает текущий уровень.
func (s *State) Level() shared.Level {
	return s.Economy.Level()
}

// SetPolicy задаёт правила серии для последующих операций.
func (s *State) SetPolicy(p Policy) {
	s.policy = p.normalized()
}

// Policy возвращает действующие правила серии.
func (s *State) Policy() Policy {
	return s.policy.normalized()
}

// BeginDay готовит состояние к операциям дня: материализует достижения
// из каталога и при смене дня пересоздаёт ежедневные задания.
func (s *State) BeginDay(today timeutil.Date, cat Catalog) {
	if cat == nil {
		return
	}
	s.EnsureAchievements(cat.Achievements())
	s.ResetDailyQuests(today, cat.QuestTemplates())
}

// HasCompleted проверяет, пройден ли урок.
func (s *State) HasCompleted(lessonID string) bool {
	for _, id := range s.CompletedLessons {
		if id == lessonID {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// PENDING EVENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *State) record(e shared.Event) {
	s.pending = append(s.pending, e)
}

func (s *State) base(t shared.EventType) shared.BaseEvent {
	return shared.NewBaseEvent(t, s.TelegramID.String())
}

// PullEvents возвращает накопленные события и очищает очередь.
func (s *State) PullEvents() []shared.Event {
	events := s.pending
	s.pending = nil
	return events
}

// PendingEvents возвращает накопленные события без очистки.
func (s *State) PendingEvents() []shared.Event {
	return s.pending
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate проверяет инварианты. Нарушение - shared.ErrCorruptState.
func (s *State) Validate() error {
	corrupt := func(format string, args ...any) error {
		return shared.Errorf("ledger", "Validate", shared.ErrCorruptState, format, args...)
	}

	if s.SchemaVersion != SchemaVersion {
		return corrupt("unsupported schema version %d", s.SchemaVersion)
	}
	if !s.TelegramID.IsValid() {
		return corrupt("invalid telegram id %d", s.TelegramID)
	}
	if s.Version < 0 {
		return corrupt("negative version %d", s.Version)
	}
	if s.Economy.XP < 0 || s.Economy.Coins < 0 || s.Economy.Gems < 0 {
		return corrupt("negative balance xp=%d coins=%d gems=%d", s.Economy.XP, s.Economy.Coins, s.Economy.Gems)
	}
	if s.Streak.Current < 0 || s.Streak.Best < s.Streak.Current {
		return corrupt("streak current=%d best=%d", s.Streak.Current, s.Streak.Best)
	}
	if s.Streak.ProtectionsUsed < 0 {
		return corrupt("negative protections used")
	}
	for id, n := range s.Inventory {
		if id == "" || n <= 0 {
			return corrupt("inventory item %q has count %d", id, n)
		}
	}
	for id, a := range s.Achievements {
		if id == "" || a.Progress < 0 {
			return corrupt("achievement %q has progress %d", id, a.Progress)
		}
	}
	for _, q := range s.Quests.Quests {
		if q.ID == "" || q.Progress < 0 || q.Target <= 0 {
			return corrupt("quest %q progress=%d target=%d", q.ID, q.Progress, q.Target)
		}
	}
	if err := s.Balance.validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.CompletedLessons))
	for _, id := range s.CompletedLessons {
		if id == "" {
			return corrupt("empty lesson id")
		}
		if _, dup := seen[id]; dup {
			return corrupt("lesson %q completed twice", id)
		}
		seen[id] = struct{}{}
	}
	if s.Stats.ItemsPurchased < 0 || s.Stats.ItemsUsed < 0 || s.Stats.QuestsCompleted < 0 {
		return corrupt("negative stats counter")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COPY & SERIALIZATION
// ══════════════════════════════════════════════════════════════════════════════

// Clone возвращает глубокую копию без накопленных событий.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.pending = nil
	c.Inventory = s.Inventory.clone()
	c.Achievements = make(map[string]AchievementProgress, len(s.Achievements))
	for k, v := range s.Achievements {
		c.Achievements[k] = v
	}
	if s.Streak.Protection != nil {
		p := *s.Streak.Protection
		c.Streak.Protection = &p
	}
	c.Quests.Quests = append([]Quest(nil), s.Quests.Quests...)
	c.Balance = s.Balance.clone()
	c.CompletedLessons = append([]string(nil), s.CompletedLessons...)
	return &c
}

// ReplaceContent переносит содержимое src (импорт снимка), сохраняя
// владельца, версию, правила серии и накопленные события.
func (s *State) ReplaceContent(src *State) error {
	if src == nil {
		return shared.NewDomainError("ledger", "ReplaceContent", shared.ErrInvalidOperation, "source state is required")
	}
	if src.TelegramID != s.TelegramID {
		return shared.Errorf("ledger", "ReplaceContent", shared.ErrInvalidOperation,
			"source belongs to %d, not %d", src.TelegramID, s.TelegramID)
	}
	c := src.Clone()
	c.Version = s.Version
	c.UpdatedAt = s.UpdatedAt
	c.policy = s.policy
	c.pending = s.pending
	*s = *c
	return nil
}

// Encode сериализует состояние в JSON-блоб для хранилища и sync API.
func Encode(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// Decode разбирает блоб и проверяет инварианты.
// Любая ошибка разбора - shared.ErrCorruptState.
func Decode(data []byte) (*State, error) {
	s := &State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, shared.WrapError("ledger", "Decode", shared.ErrCorruptState, "malformed state blob", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// SameContent сравнивает два состояния по сериализованному виду.
func SameContent(a, b *State) bool {
	ab, errA := Encode(a)
	bb, errB := Encode(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

func (s *State) normalize() {
	if s.Inventory == nil {
		s.Inventory = Inventory{}
	}
	if s.Achievements == nil {
		s.Achievements = map[string]AchievementProgress{}
	}
	s.policy = s.policy.normalized()
}
