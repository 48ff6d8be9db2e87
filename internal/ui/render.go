package ui

import (
	"fmt"
	"strings"

	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

const barWidth = 20

// Summary renders the status panel of one learner.
func Summary(s *query.ProgressSummary) string {
	var b strings.Builder

	fmt.Fprintln(&b, Heading(IconSparkle, fmt.Sprintf("Прогресс %d", s.TelegramID)))
	fmt.Fprintln(&b, LabelValue(IconStar+" Уровень", fmt.Sprintf("%d · %s", s.Level, s.LevelTitle)))
	fmt.Fprintln(&b, LabelValue("   XP", fmt.Sprintf("%d %s %s", s.XP, Bar(s.LevelPct, barWidth),
		Muted.Render(fmt.Sprintf("ещё %d", s.XPToNext)))))
	fmt.Fprintln(&b, LabelValue(IconCoin+" Монеты", Gold.Render(fmt.Sprint(s.Coins)))+"   "+
		LabelValue(IconGem+" Кристаллы", Gold.Render(fmt.Sprint(s.Gems))))

	streak := timeutil.DaysRu(s.Streak)
	if s.ShieldReady {
		streak += " " + IconShield
	}
	streak += " " + Muted.Render(fmt.Sprintf("(лучшая %d)", s.BestStreak))
	fmt.Fprintln(&b, LabelValue(IconFire+" Серия", streak))
	if s.LastActivity != "" {
		last := s.LastActivity
		if d, err := timeutil.ParseDate(last); err == nil {
			last = d.HumanRu()
		}
		fmt.Fprintln(&b, LabelValue("   Последняя активность", last))
	}

	lessons := fmt.Sprint(s.LessonsCompleted)
	if s.LessonsTotal > 0 {
		lessons = fmt.Sprintf("%d из %d %s", s.LessonsCompleted, s.LessonsTotal, Bar(s.CoursePct, barWidth))
	}
	fmt.Fprintln(&b, LabelValue(IconBook+" Уроки", lessons))
	fmt.Fprintln(&b, LabelValue(IconQuest+" Открытых заданий", s.QuestsOpen))
	fmt.Fprintln(&b, LabelValue(IconTrophy+" Достижений", s.AchievementsUnlocked))
	fmt.Fprint(&b, Muted.Render(fmt.Sprintf("версия %d", s.Version)))

	return Panel.Render(b.String())
}

// Reward renders a reward bundle.
func Reward(r shared.Reward) string {
	if r.IsZero() {
		return Muted.Render(r.String())
	}
	return Gold.Render(r.String())
}

// Streak renders the streak transition of one activity day.
func Streak(r ledger.StreakResult) string {
	switch r.Outcome {
	case ledger.StreakStarted:
		return Good.Render(IconFire + " серия началась")
	case ledger.StreakExtended:
		return Good.Render(fmt.Sprintf("%s серия %d → %d", IconFire, r.Previous, r.Current))
	case ledger.StreakProtected:
		return Warn.Render(fmt.Sprintf("%s щит сохранил серию %d", IconShield, r.Current))
	case ledger.StreakReset:
		return Bad.Render(fmt.Sprintf("серия сброшена после %s, пропущено: %s",
			timeutil.DaysRu(r.Previous), timeutil.DaysRu(r.MissedDays)))
	default:
		return Muted.Render("серия без изменений")
	}
}

// Outcome renders the result of a completed lesson.
func Outcome(title string, o ledger.LessonOutcome) string {
	if o.Duplicate {
		return Muted.Render(fmt.Sprintf("Урок «%s» уже пройден, награда не начислена", title))
	}

	lines := []string{
		Good.Render(IconDone+" Урок «"+title+"» пройден") + "  " + Reward(o.Reward),
		Streak(o.Streak),
	}
	if o.LeveledUp() {
		lines = append(lines, BadgeLevelUp+" "+fmt.Sprintf("%d → %d", o.LevelBefore, o.LevelAfter))
	}
	lines = append(lines, Achievements(o.Achievements)...)
	return strings.Join(lines, "\n")
}

// Achievements renders the achievements opened by one operation.
func Achievements(outcomes []ledger.AchievementOutcome) []string {
	var lines []string
	for _, a := range outcomes {
		if a.JustUnlocked {
			lines = append(lines, Gold.Render(IconTrophy+" достижение "+a.ID)+" "+Reward(a.Reward))
		}
	}
	return lines
}

// Quests renders the daily quest list.
func Quests(q ledger.DailyQuests) string {
	var b strings.Builder
	heading := "Задания дня"
	if !q.ResetOn.IsZero() {
		heading += " " + q.ResetOn.String()
	}
	fmt.Fprintln(&b, Heading(IconQuest, heading))
	if len(q.Quests) == 0 {
		fmt.Fprint(&b, Muted.Render("заданий нет"))
		return b.String()
	}
	for i, quest := range q.Quests {
		mark := Muted.Render("○")
		if quest.Completed {
			mark = Good.Render("●")
		}
		title := quest.Title
		if title == "" {
			title = quest.ID
		}
		fmt.Fprintf(&b, "%s %s %s %s", mark, title,
			Muted.Render(fmt.Sprintf("%d/%d", quest.Progress, quest.Target)), Reward(quest.Reward))
		if i < len(q.Quests)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// AchievementList renders catalog achievements with the learner's progress.
func AchievementList(defs []ledger.AchievementDef, progress map[string]ledger.AchievementProgress) string {
	var b strings.Builder
	fmt.Fprintln(&b, Heading(IconTrophy, "Достижения"))
	for i, d := range defs {
		p := progress[d.ID]
		icon := d.Emoji
		if icon == "" {
			icon = IconTrophy
		}
		if p.Unlocked {
			fmt.Fprintf(&b, "%s %s %s", icon, Good.Render(d.Title), Muted.Render(p.UnlockedOn.String()))
		} else {
			pct := 0
			if d.Target > 0 {
				pct = min(p.Progress, d.Target) * 100 / d.Target
			}
			fmt.Fprintf(&b, "%s %s %s %s", IconLock, d.Title, Bar(pct, 10),
				Muted.Render(fmt.Sprintf("%d/%d", p.Progress, d.Target)))
		}
		if i < len(defs)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Balance renders both balance wheel assessments and their delta.
func Balance(scores ledger.BalanceScores, categories []string) string {
	var b strings.Builder
	fmt.Fprintln(&b, Heading(IconBalance, "Колесо баланса"))
	if !scores.HasInitial() && !scores.HasFinal() {
		fmt.Fprint(&b, Muted.Render("оценок пока нет"))
		return b.String()
	}

	delta, hasDelta := scores.Delta()
	for i, cat := range categories {
		line := fmt.Sprintf("%-14s %s", cat, cell(scores.Initial, cat))
		line += " → " + cell(scores.Final, cat)
		if hasDelta {
			if d, ok := delta[cat]; ok {
				line += " " + signed(d)
			}
		}
		b.WriteString(line)
		if i < len(categories)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Inventory renders owned items.
func Inventory(inv ledger.Inventory, cat ledger.Catalog) string {
	var b strings.Builder
	fmt.Fprintln(&b, Heading(IconBag, "Инвентарь"))
	ids := inv.IDs()
	if len(ids) == 0 {
		fmt.Fprint(&b, Muted.Render("пусто"))
		return b.String()
	}
	for i, id := range ids {
		title := id
		if def, ok := cat.Item(id); ok {
			title = strings.TrimSpace(def.Emoji + " " + def.Title)
		}
		fmt.Fprintf(&b, "%s ×%d", title, inv.Count(id))
		if i < len(ids)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func cell(m map[string]int, cat string) string {
	v, ok := m[cat]
	if !ok {
		return Muted.Render(" -")
	}
	return fmt.Sprintf("%2d", v)
}

func signed(d int) string {
	switch {
	case d > 0:
		return Good.Render(fmt.Sprintf("+%d", d))
	case d < 0:
		return Bad.Render(fmt.Sprint(d))
	default:
		return Muted.Render("0")
	}
}
