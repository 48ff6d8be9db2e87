package ledger

import (
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// LessonOutcome - итог прохождения урока.
type LessonOutcome struct {
	LessonID        string               `json:"lesson_id"`
	Duplicate       bool                 `json:"duplicate"`
	Reward          shared.Reward        `json:"reward"`
	LevelBefore     shared.Level         `json:"level_before"`
	LevelAfter      shared.Level         `json:"level_after"`
	Streak          StreakResult         `json:"streak"`
	QuestsCompleted []Quest              `json:"quests_completed,omitempty"`
	Achievements    []AchievementOutcome `json:"achievements,omitempty"`
}

// LeveledUp сообщает, повысился ли уровень.
func (o LessonOutcome) LeveledUp() bool {
	return o.LevelAfter > o.LevelBefore
}

// CompleteLesson засчитывает урок: награда, активность дня, задания, достижения.
// Повторное прохождение ничего не начисляет и возвращает Duplicate=true.
func (s *State) CompleteLesson(lesson LessonDef, today timeutil.Date, cat Catalog) (LessonOutcome, error) {
	out := LessonOutcome{LessonID: lesson.ID, LevelBefore: s.Level(), LevelAfter: s.Level()}

	if lesson.ID == "" {
		return out, shared.NewDomainError("ledger", "CompleteLesson", shared.ErrInvalidOperation, "lesson id is required")
	}
	if today.IsZero() {
		return out, shared.NewDomainError("ledger", "CompleteLesson", shared.ErrInvalidOperation, "completion date is required")
	}
	if s.HasCompleted(lesson.ID) {
		out.Duplicate = true
		out.Streak = StreakResult{Outcome: StreakUnchanged, Previous: s.Streak.Current, Current: s.Streak.Current}
		return out, nil
	}

	streak, err := s.RecordActivity(today)
	if err != nil {
		return out, err
	}
	out.Streak = streak

	s.CompletedLessons = append(s.CompletedLessons, lesson.ID)
	if err := s.applyReward(lesson.Reward, "lesson:"+lesson.ID); err != nil {
		return out, err
	}
	out.Reward = lesson.Reward

	s.record(LessonCompleted{
		BaseEvent: s.base(shared.EventLessonCompleted),
		LessonID:  lesson.ID,
		Title:     lesson.Title,
		Reward:    lesson.Reward,
		Total:     len(s.CompletedLessons),
	})

	quests, err := s.AdvanceQuests(MetricLessonsCompleted, 1)
	if err != nil {
		return out, err
	}
	more, err := s.AdvanceQuests(MetricXPEarned, lesson.Reward.XP)
	if err != nil {
		return out, err
	}
	out.QuestsCompleted = append(quests, more...)

	unlocked, err := s.EvaluateAll(cat, today)
	if err != nil {
		return out, err
	}
	out.Achievements = unlocked
	out.LevelAfter = s.Level()
	return out, nil
}

// BuyItem покупает одну штуку предмета: списание и пополнение инвентаря
// в одной мутации состояния.
func (s *State) BuyItem(item ItemDef, today timeutil.Date, cat Catalog) error {
	if item.ID == "" {
		return shared.NewDomainError("ledger", "BuyItem", shared.ErrInvalidOperation, "item id is required")
	}
	if item.Effect == EffectCosmetic && s.Inventory.Count(item.ID) > 0 {
		return shared.Errorf("ledger", "BuyItem", shared.ErrInvalidOperation, "%q is already owned", item.ID)
	}
	if err := s.SpendCurrency(item.Price.Currency, item.Price.Amount, "shop:"+item.ID); err != nil {
		return err
	}
	if err := s.AddInventoryItem(item.ID, 1); err != nil {
		return err
	}
	s.Stats.ItemsPurchased++

	s.record(ItemPurchased{
		BaseEvent: s.base(shared.EventItemPurchased),
		ItemID:    item.ID,
		Price:     item.Price,
		Count:     s.Inventory.Count(item.ID),
	})

	if _, err := s.AdvanceQuests(MetricItemsPurchased, 1); err != nil {
		return err
	}
	_, err := s.EvaluateAll(cat, today)
	return err
}

// UseItem применяет эффект предмета и списывает одну штуку.
// Если эффект не применился, предмет остаётся в инвентаре.
func (s *State) UseItem(item ItemDef, today timeutil.Date) error {
	if s.Inventory.Count(item.ID) <= 0 {
		return shared.Errorf("ledger", "UseItem", shared.ErrInvalidOperation, "no %q in inventory", item.ID)
	}

	switch item.Effect {
	case EffectStreakShield:
		if err := s.ActivateProtection(today); err != nil {
			return err
		}
	default:
		return shared.Errorf("ledger", "UseItem", shared.ErrInvalidOperation, "%q cannot be used", item.ID)
	}

	if err := s.ConsumeInventoryItem(item.ID); err != nil {
		return err
	}
	s.Stats.ItemsUsed++

	s.record(ItemUsed{
		BaseEvent: s.base(shared.EventItemUsed),
		ItemID:    item.ID,
		Effect:    item.Effect,
		Remaining: s.Inventory.Count(item.ID),
	})
	return nil
}
