package ledger

import (
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Metric - величина, по которой считается прогресс достижения или задания.
type Metric string

const (
	MetricLessonsCompleted Metric = "lessons_completed"
	MetricStreakDays       Metric = "streak_days"
	MetricXPTotal          Metric = "xp_total"
	MetricLevel            Metric = "level"
	MetricItemsPurchased   Metric = "items_purchased"
	MetricQuestsCompleted  Metric = "quests_completed"

	// MetricXPEarned - только для заданий: опыт, заработанный за день на уроках.
	MetricXPEarned Metric = "xp_earned"

	// MetricManual - достижение открывается только явным UnlockAchievement.
	MetricManual Metric = "manual"
)

// IsValid проверяет, что метрика известна.
func (m Metric) IsValid() bool {
	switch m {
	case MetricLessonsCompleted, MetricStreakDays, MetricXPTotal, MetricLevel,
		MetricItemsPurchased, MetricQuestsCompleted, MetricXPEarned, MetricManual:
		return true
	}
	return false
}

// Effect - действие предмета при использовании.
type Effect string

const (
	// EffectStreakShield активирует щит серии.
	EffectStreakShield Effect = "streak_shield"

	// EffectCosmetic - украшение, не расходуется.
	EffectCosmetic Effect = "cosmetic"
)

// IsValid проверяет, что эффект известен.
func (e Effect) IsValid() bool {
	return e == EffectStreakShield || e == EffectCosmetic
}

// LessonDef - урок курса.
type LessonDef struct {
	ID     string        `json:"id" yaml:"id"`
	Module int           `json:"module" yaml:"module"`
	Title  string        `json:"title" yaml:"title"`
	Reward shared.Reward `json:"reward" yaml:"reward"`
}

// Price - цена предмета в магазине.
type Price struct {
	Currency shared.Currency `json:"currency" yaml:"currency"`
	Amount   int             `json:"amount" yaml:"amount"`
}

// ItemDef - предмет магазина.
type ItemDef struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Emoji  string `json:"emoji,omitempty" yaml:"emoji"`
	Price  Price  `json:"price" yaml:"price"`
	Effect Effect `json:"effect" yaml:"effect"`
}

// AchievementDef - достижение каталога.
type AchievementDef struct {
	ID          string        `json:"id" yaml:"id"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Emoji       string        `json:"emoji,omitempty" yaml:"emoji"`
	Metric      Metric        `json:"metric" yaml:"metric"`
	Target      int           `json:"target" yaml:"target"`
	Reward      shared.Reward `json:"reward" yaml:"reward"`
}

// QuestTemplate - шаблон ежедневного задания.
type QuestTemplate struct {
	ID     string        `json:"id" yaml:"id"`
	Title  string        `json:"title" yaml:"title"`
	Metric Metric        `json:"metric" yaml:"metric"`
	Target int           `json:"target" yaml:"target"`
	Reward shared.Reward `json:"reward" yaml:"reward"`
}

// Catalog - статический справочник уроков, предметов, достижений и заданий.
type Catalog interface {
	// Lesson ищет урок по ID.
	Lesson(id string) (LessonDef, bool)

	// Item ищет предмет магазина по ID.
	Item(id string) (ItemDef, bool)

	// Achievement ищет достижение по ID.
	Achievement(id string) (AchievementDef, bool)

	// Achievements возвращает все достижения в порядке каталога.
	Achievements() []AchievementDef

	// QuestTemplates возвращает шаблоны ежедневных заданий.
	QuestTemplates() []QuestTemplate

	// BalanceCategories возвращает категории "колеса баланса".
	BalanceCategories() []string
}
