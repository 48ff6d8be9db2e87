package ledger

import (
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementProgress - сохранённое состояние достижения.
type AchievementProgress struct {
	Progress   int           `json:"progress"`
	Unlocked   bool          `json:"unlocked"`
	UnlockedOn timeutil.Date `json:"unlocked_on,omitempty"`
}

// AchievementOutcome - результат оценки достижения.
type AchievementOutcome struct {
	ID           string        `json:"id"`
	Progress     int           `json:"progress"`
	Unlocked     bool          `json:"unlocked"`
	JustUnlocked bool          `json:"just_unlocked"`
	Reward       shared.Reward `json:"reward,omitempty"`
}

// EnsureAchievements создаёт пустые записи для достижений каталога,
// которых ещё нет в состоянии.
func (s *State) EnsureAchievements(defs []AchievementDef) {
	if s.Achievements == nil {
		s.Achievements = map[string]AchievementProgress{}
	}
	for _, d := range defs {
		if _, ok := s.Achievements[d.ID]; !ok {
			s.Achievements[d.ID] = AchievementProgress{}
		}
	}
}

// IsUnlocked проверяет, открыто ли достижение.
func (s *State) IsUnlocked(id string) bool {
	return s.Achievements[id].Unlocked
}

// EvaluateAchievement сохраняет прогресс (не уменьшая его) и открывает
// достижение при progress >= target. Награда начисляется только на переходе
// в открытое состояние, повторный вызов безопасен.
func (s *State) EvaluateAchievement(def AchievementDef, progress int, today timeutil.Date) (AchievementOutcome, error) {
	if err := checkAchievementDef(def, "EvaluateAchievement"); err != nil {
		return AchievementOutcome{}, err
	}
	if progress < 0 {
		return AchievementOutcome{}, shared.Errorf("ledger", "EvaluateAchievement", shared.ErrInvalidOperation,
			"progress %d is negative", progress)
	}

	if s.Achievements == nil {
		s.Achievements = map[string]AchievementProgress{}
	}
	cur := s.Achievements[def.ID]
	if progress > cur.Progress {
		cur.Progress = progress
	}

	out := AchievementOutcome{ID: def.ID, Progress: cur.Progress, Unlocked: cur.Unlocked}
	if !cur.Unlocked && def.Metric != MetricManual && cur.Progress >= def.Target {
		s.Achievements[def.ID] = cur
		if err := s.unlock(def, today); err != nil {
			return AchievementOutcome{}, err
		}
		out.Unlocked = true
		out.JustUnlocked = true
		out.Reward = def.Reward
		return out, nil
	}

	s.Achievements[def.ID] = cur
	return out, nil
}

// UnlockAchievement открывает достижение явно. Повторное открытие -
// shared.ErrAlreadyUnlocked, награда второй раз не начисляется.
func (s *State) UnlockAchievement(def AchievementDef, today timeutil.Date) error {
	if err := checkAchievementDef(def, "UnlockAchievement"); err != nil {
		return err
	}
	if s.IsUnlocked(def.ID) {
		return shared.Errorf("ledger", "UnlockAchievement", shared.ErrAlreadyUnlocked,
			"achievement %q already unlocked", def.ID)
	}
	return s.unlock(def, today)
}

func (s *State) unlock(def AchievementDef, today timeutil.Date) error {
	if s.Achievements == nil {
		s.Achievements = map[string]AchievementProgress{}
	}
	cur := s.Achievements[def.ID]
	if cur.Progress < def.Target {
		cur.Progress = def.Target
	}
	cur.Unlocked = true
	cur.UnlockedOn = today
	s.Achievements[def.ID] = cur

	s.record(AchievementUnlocked{
		BaseEvent:     s.base(shared.EventAchievementUnlock),
		AchievementID: def.ID,
		Title:         def.Title,
		Reward:        def.Reward,
	})
	return s.applyReward(def.Reward, "achievement:"+def.ID)
}

// MetricValue возвращает текущее значение метрики из состояния.
func (s *State) MetricValue(m Metric) int {
	switch m {
	case MetricLessonsCompleted:
		return len(s.CompletedLessons)
	case MetricStreakDays:
		return s.Streak.Current
	case MetricXPTotal:
		return s.Economy.XP
	case MetricLevel:
		return s.Economy.Level().Int()
	case MetricItemsPurchased:
		return s.Stats.ItemsPurchased
	case MetricQuestsCompleted:
		return s.Stats.QuestsCompleted
	default:
		return 0
	}
}

// EvaluateAll оценивает все метрические достижения каталога. Награды могут
// сдвинуть другие метрики (xp_total, level), поэтому проход повторяется,
// пока что-то открывается.
func (s *State) EvaluateAll(cat Catalog, today timeutil.Date) ([]AchievementOutcome, error) {
	if cat == nil {
		return nil, nil
	}
	defs := cat.Achievements()
	s.EnsureAchievements(defs)

	var unlocked []AchievementOutcome
	for pass := 0; pass <= len(defs); pass++ {
		changed := false
		for _, d := range defs {
			if d.Metric == MetricManual || s.IsUnlocked(d.ID) {
				continue
			}
			out, err := s.EvaluateAchievement(d, s.MetricValue(d.Metric), today)
			if err != nil {
				return unlocked, err
			}
			if out.JustUnlocked {
				unlocked = append(unlocked, out)
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return unlocked, nil
}

func checkAchievementDef(def AchievementDef, op string) error {
	if def.ID == "" {
		return shared.NewDomainError("ledger", op, shared.ErrInvalidOperation, "achievement id is required")
	}
	if def.Target <= 0 {
		return shared.Errorf("ledger", op, shared.ErrInvalidOperation, "achievement %q has non-positive target", def.ID)
	}
	return nil
}
