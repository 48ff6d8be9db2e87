package ledger

import (
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY QUESTS
// ══════════════════════════════════════════════════════════════════════════════

// Quest - ежедневное задание.
type Quest struct {
	ID        string        `json:"id"`
	Title     string        `json:"title,omitempty"`
	Metric    Metric        `json:"metric"`
	Progress  int           `json:"progress"`
	Target    int           `json:"target"`
	Completed bool          `json:"completed"`
	Reward    shared.Reward `json:"reward,omitempty"`
}

// DailyQuests - набор заданий и дата последнего сброса.
type DailyQuests struct {
	ResetOn timeutil.Date `json:"reset_on"`
	Quests  []Quest       `json:"quests"`
}

// Open возвращает количество незавершённых заданий.
func (d DailyQuests) Open() int {
	n := 0
	for _, q := range d.Quests {
		if !q.Completed {
			n++
		}
	}
	return n
}

// ResetDailyQuests пересоздаёт задания из шаблонов, если сегодня сброса ещё не было.
// Возвращает true, если сброс произошёл.
func (s *State) ResetDailyQuests(today timeutil.Date, templates []QuestTemplate) bool {
	if today.IsZero() || s.Quests.ResetOn == today {
		return false
	}

	quests := make([]Quest, 0, len(templates))
	for _, t := range templates {
		quests = append(quests, Quest{
			ID:     t.ID,
			Title:  t.Title,
			Metric: t.Metric,
			Target: t.Target,
			Reward: t.Reward,
		})
	}
	s.Quests = DailyQuests{ResetOn: today, Quests: quests}

	s.record(QuestsReset{
		BaseEvent: s.base(shared.EventQuestsReset),
		Date:      today,
		Count:     len(quests),
	})
	return true
}

// AdvanceQuests продвигает открытые задания с метрикой metric на delta.
// Завершение начисляет награду один раз. Возвращает завершённые задания.
func (s *State) AdvanceQuests(metric Metric, delta int) ([]Quest, error) {
	if delta < 0 {
		return nil, shared.Errorf("ledger", "AdvanceQuests", shared.ErrInvalidOperation, "delta %d is negative", delta)
	}
	if delta == 0 {
		return nil, nil
	}

	var completed []Quest
	for i := range s.Quests.Quests {
		q := &s.Quests.Quests[i]
		if q.Completed || q.Metric != metric {
			continue
		}
		q.Progress += delta
		if q.Progress > q.Target {
			q.Progress = q.Target
		}
		if q.Progress < q.Target {
			continue
		}
		q.Completed = true
		s.Stats.QuestsCompleted++

		s.record(QuestCompleted{
			BaseEvent: s.base(shared.EventQuestCompleted),
			QuestID:   q.ID,
			Reward:    q.Reward,
		})
		if err := s.applyReward(q.Reward, "quest:"+q.ID); err != nil {
			return completed, err
		}
		completed = append(completed, *q)
	}
	return completed, nil
}
