package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

func TestSummary(t *testing.T) {
	out := Summary(&query.ProgressSummary{
		TelegramID:       777,
		Version:          4,
		XP:               620,
		Level:            2,
		LevelTitle:       "Исследователь",
		XPToNext:         380,
		LevelPct:         24,
		Coins:            35,
		Streak:           3,
		BestStreak:       5,
		ShieldReady:      true,
		LastActivity:     "2026-10-14",
		LessonsCompleted: 2,
		LessonsTotal:     12,
		CoursePct:        16,
	})

	for _, want := range []string{"Прогресс 777", "2 · Исследователь", "ещё 380", "3 дня", IconShield, "14 октября 2026", "2 из 12", "версия 4"} {
		assert.Contains(t, out, want)
	}
}

func TestBar(t *testing.T) {
	assert.Equal(t, 10, strings.Count(Bar(50, 10), "█")+strings.Count(Bar(50, 10), "░"))
	assert.Equal(t, 10, strings.Count(Bar(150, 10), "█"))
	assert.Equal(t, 0, strings.Count(Bar(-5, 10), "█"))
	assert.Empty(t, Bar(50, 0))
}

func TestOutcome(t *testing.T) {
	assert.Contains(t, Outcome("Кто я", ledger.LessonOutcome{Duplicate: true}), "уже пройден")

	out := Outcome("Кто я", ledger.LessonOutcome{
		Reward:      shared.Reward{XP: 50, Coins: 10},
		LevelBefore: 1,
		LevelAfter:  2,
		Streak:      ledger.StreakResult{Outcome: ledger.StreakExtended, Previous: 1, Current: 2},
		Achievements: []ledger.AchievementOutcome{
			{ID: "first_lesson", JustUnlocked: true, Reward: shared.Reward{Gems: 1}},
			{ID: "week_streak"},
		},
	})
	assert.Contains(t, out, "+50 XP")
	assert.Contains(t, out, "1 → 2")
	assert.Contains(t, out, "LEVEL UP")
	assert.Contains(t, out, "first_lesson")
	assert.NotContains(t, out, "week_streak")
}

func TestBalance(t *testing.T) {
	assert.Contains(t, Balance(ledger.BalanceScores{}, []string{"health"}), "оценок пока нет")

	out := Balance(ledger.BalanceScores{
		Initial: map[string]int{"health": 4, "friends": 7},
		Final:   map[string]int{"health": 6, "friends": 5},
	}, []string{"health", "friends"})
	assert.Contains(t, out, "+2")
	assert.Contains(t, out, "-2")
}

func TestQuests(t *testing.T) {
	assert.Contains(t, Quests(ledger.DailyQuests{}), "заданий нет")

	out := Quests(ledger.DailyQuests{Quests: []ledger.Quest{
		{ID: "q1", Title: "Пройти урок", Progress: 1, Target: 1, Completed: true},
		{ID: "q2", Progress: 0, Target: 3},
	}})
	assert.Contains(t, out, "Пройти урок")
	assert.Contains(t, out, "q2")
	assert.Contains(t, out, "0/3")
}

func TestStreak_Reset(t *testing.T) {
	out := Streak(ledger.StreakResult{Outcome: ledger.StreakReset, Previous: 5, Current: 1, MissedDays: 2})
	assert.Contains(t, out, "после 5 дней")
	assert.Contains(t, out, "пропущено: 2 дня")
}
