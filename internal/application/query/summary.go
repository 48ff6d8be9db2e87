// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ОБЩИЕ ПОРТЫ
// ══════════════════════════════════════════════════════════════════════════════

// ProgressReader - чтение состояния прогресса (ledger.Repository подходит).
type ProgressReader interface {
	Get(ctx context.Context, id shared.TelegramID) (*ledger.State, error)
}

// ProgressCache - кэш состояний для cache-aside чтения.
// Любая ошибка Get считается промахом.
type ProgressCache interface {
	Get(ctx context.Context, id shared.TelegramID) (*ledger.State, error)
	Set(ctx context.Context, s *ledger.State) error
}

// CourseCatalog - каталог с полным списком уроков.
type CourseCatalog interface {
	ledger.Catalog
	Lessons() []ledger.LessonDef
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS SUMMARY
// Краткая сводка прогресса: карточка ученика у куратора, ответ бота
// на /progress и вывод ledgerctl status.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressSummary - сводка прогресса ученика.
type ProgressSummary struct {
	TelegramID int64 `json:"telegram_id"`
	Version    int64 `json:"version"`

	// ─────────────────────────────────────────────────────────────────────────
	// Экономика
	// ─────────────────────────────────────────────────────────────────────────

	XP          int    `json:"xp"`
	Level       int    `json:"level"`
	LevelTitle  string `json:"level_title"`
	XPToNext    int    `json:"xp_to_next_level"`
	LevelPct    int    `json:"level_progress_pct"`
	Coins       int    `json:"coins"`
	Gems        int    `json:"gems"`
	ItemsOwned  int    `json:"items_owned"`
	ShieldReady bool   `json:"shield_active"`

	// ─────────────────────────────────────────────────────────────────────────
	// Активность
	// ─────────────────────────────────────────────────────────────────────────

	Streak       int    `json:"streak"`
	BestStreak   int    `json:"best_streak"`
	LastActivity string `json:"last_activity,omitempty"`

	LessonsCompleted int `json:"lessons_completed"`
	LessonsTotal     int `json:"lessons_total"`
	CoursePct        int `json:"course_progress_pct"`

	QuestsOpen           int `json:"quests_open"`
	AchievementsUnlocked int `json:"achievements_unlocked"`

	// BalanceDelta - Final-Initial по категориям, пусто пока нет обеих оценок.
	BalanceDelta map[string]int `json:"balance_delta,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Summarize строит сводку. lessonsTotal <= 0 - процент курса не считается.
func Summarize(s *ledger.State, lessonsTotal int) ProgressSummary {
	xp := shared.XP(s.Economy.XP)
	level := s.Level()

	sum := ProgressSummary{
		TelegramID:       s.TelegramID.Int64(),
		Version:          s.Version,
		XP:               s.Economy.XP,
		Level:            level.Int(),
		LevelTitle:       level.Title(),
		XPToNext:         xp.ToNextLevel(),
		LevelPct:         xp.ProgressToNextLevel(),
		Coins:            s.Economy.Coins,
		Gems:             s.Economy.Gems,
		ShieldReady:      s.Streak.IsProtected(),
		Streak:           s.Streak.Current,
		BestStreak:       s.Streak.Best,
		LessonsCompleted: len(s.CompletedLessons),
		LessonsTotal:     lessonsTotal,
		QuestsOpen:       s.Quests.Open(),
		UpdatedAt:        s.UpdatedAt,
	}
	if !s.Streak.LastActivity.IsZero() {
		sum.LastActivity = s.Streak.LastActivity.String()
	}
	for _, n := range s.Inventory {
		sum.ItemsOwned += n
	}
	for id := range s.Achievements {
		if s.IsUnlocked(id) {
			sum.AchievementsUnlocked++
		}
	}
	if lessonsTotal > 0 {
		sum.CoursePct = sum.LessonsCompleted * 100 / lessonsTotal
		if sum.CoursePct > 100 {
			sum.CoursePct = 100
		}
	}
	if delta, ok := s.Balance.Delta(); ok {
		sum.BalanceDelta = delta
	}
	return sum
}

func lessonsTotal(cat CourseCatalog) int {
	if cat == nil {
		return 0
	}
	return len(cat.Lessons())
}
