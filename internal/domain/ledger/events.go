package ledger

import (
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// XPAwarded - начислен опыт.
type XPAwarded struct {
	shared.BaseEvent
	Amount int    `json:"amount"`
	Total  int    `json:"total"`
	Source string `json:"source"`
}

// Payload implements shared.Event.
func (e XPAwarded) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount": e.Amount,
		"total":  e.Total,
		"source": e.Source,
	}
}

// LevelUp - повышение уровня.
type LevelUp struct {
	shared.BaseEvent
	From int `json:"from"`
	To   int `json:"to"`
}

// Payload implements shared.Event.
func (e LevelUp) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from":  e.From,
		"to":    e.To,
		"title": shared.Level(e.To).Title(),
	}
}

// StreakChanged - серия продлена, спасена щитом или сброшена (тип в BaseEvent).
type StreakChanged struct {
	shared.BaseEvent
	Previous   int `json:"previous"`
	Current    int `json:"current"`
	Best       int `json:"best"`
	MissedDays int `json:"missed_days,omitempty"`
}

// Payload implements shared.Event.
func (e StreakChanged) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous":    e.Previous,
		"current":     e.Current,
		"best":        e.Best,
		"missed_days": e.MissedDays,
	}
}

// CurrencyGranted - начислены монеты или гемы.
type CurrencyGranted struct {
	shared.BaseEvent
	Coins  int    `json:"coins"`
	Gems   int    `json:"gems"`
	Source string `json:"source"`
}

// Payload implements shared.Event.
func (e CurrencyGranted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"coins":  e.Coins,
		"gems":   e.Gems,
		"source": e.Source,
	}
}

// CurrencySpent - списана валюта.
type CurrencySpent struct {
	shared.BaseEvent
	Currency shared.Currency `json:"currency"`
	Amount   int             `json:"amount"`
	Balance  int             `json:"balance"`
	Reason   string          `json:"reason"`
}

// Payload implements shared.Event.
func (e CurrencySpent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"currency": string(e.Currency),
		"amount":   e.Amount,
		"balance":  e.Balance,
		"reason":   e.Reason,
	}
}

// ItemPurchased - куплен предмет.
type ItemPurchased struct {
	shared.BaseEvent
	ItemID string `json:"item_id"`
	Price  Price  `json:"price"`
	Count  int    `json:"count"`
}

// Payload implements shared.Event.
func (e ItemPurchased) Payload() map[string]interface{} {
	return map[string]interface{}{
		"item_id":  e.ItemID,
		"currency": string(e.Price.Currency),
		"amount":   e.Price.Amount,
		"count":    e.Count,
	}
}

// ItemUsed - предмет использован.
type ItemUsed struct {
	shared.BaseEvent
	ItemID    string `json:"item_id"`
	Effect    Effect `json:"effect"`
	Remaining int    `json:"remaining"`
}

// Payload implements shared.Event.
func (e ItemUsed) Payload() map[string]interface{} {
	return map[string]interface{}{
		"item_id":   e.ItemID,
		"effect":    string(e.Effect),
		"remaining": e.Remaining,
	}
}

// AchievementUnlocked - открыто достижение.
type AchievementUnlocked struct {
	shared.BaseEvent
	AchievementID string        `json:"achievement_id"`
	Title         string        `json:"title"`
	Reward        shared.Reward `json:"reward"`
}

// Payload implements shared.Event.
func (e AchievementUnlocked) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"title":          e.Title,
		"reward":         e.Reward.String(),
	}
}

// QuestCompleted - ежедневное задание выполнено.
type QuestCompleted struct {
	shared.BaseEvent
	QuestID string        `json:"quest_id"`
	Reward  shared.Reward `json:"reward"`
}

// Payload implements shared.Event.
func (e QuestCompleted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"quest_id": e.QuestID,
		"reward":   e.Reward.String(),
	}
}

// QuestsReset - задания пересозданы на новый день.
type QuestsReset struct {
	shared.BaseEvent
	Date  timeutil.Date `json:"date"`
	Count int           `json:"count"`
}

// Payload implements shared.Event.
func (e QuestsReset) Payload() map[string]interface{} {
	return map[string]interface{}{
		"date":  e.Date.String(),
		"count": e.Count,
	}
}

// LessonCompleted - урок пройден впервые.
type LessonCompleted struct {
	shared.BaseEvent
	LessonID string        `json:"lesson_id"`
	Title    string        `json:"title"`
	Reward   shared.Reward `json:"reward"`
	Total    int           `json:"total"`
}

// Payload implements shared.Event.
func (e LessonCompleted) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_id": e.LessonID,
		"title":     e.Title,
		"reward":    e.Reward.String(),
		"total":     e.Total,
	}
}

// BalanceRecorded - записан замер колеса баланса.
type BalanceRecorded struct {
	shared.BaseEvent
	Kind   BalanceKind    `json:"kind"`
	Scores map[string]int `json:"scores"`
}

// Payload implements shared.Event.
func (e BalanceRecorded) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":   string(e.Kind),
		"scores": e.Scores,
	}
}

// ProgressSynced - состояние принято или отдано сервером синхронизации.
type ProgressSynced struct {
	shared.BaseEvent
	Version   int64  `json:"version"`
	Direction string `json:"direction"`
}

// Payload implements shared.Event.
func (e ProgressSynced) Payload() map[string]interface{} {
	return map[string]interface{}{
		"version":   e.Version,
		"direction": e.Direction,
	}
}

// NewProgressSynced создаёт событие синхронизации.
func NewProgressSynced(id shared.TelegramID, version int64, direction string) ProgressSynced {
	return ProgressSynced{
		BaseEvent: shared.NewBaseEvent(shared.EventProgressSynced, id.String()),
		Version:   version,
		Direction: direction,
	}
}
