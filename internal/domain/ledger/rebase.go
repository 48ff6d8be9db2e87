package ledger

import (
	"context"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC BASE
// Клиент хранит базу - последнюю копию, про которую известно, что она
// совпадает с серверной. Локальные версии и версии сервера независимы:
// отправка идёт с версией base.Version+1, поэтому сервер примет её, только
// если с момента базы у него ничего не менялось.
// ══════════════════════════════════════════════════════════════════════════════

// SyncBase - клиентская база синхронизации.
type SyncBase interface {
	// Base возвращает базу. Синхронизации не было - shared.ErrStateNotFound.
	Base(ctx context.Context, id shared.TelegramID) (*State, error)

	// SetBase запоминает копию, принятую сервером. Более старая версия игнорируется.
	SetBase(ctx context.Context, s *State) error

	// InFlight возвращает последнюю отправленную, но не подтверждённую копию.
	// Нет такой - shared.ErrStateNotFound.
	InFlight(ctx context.Context, id shared.TelegramID) (*State, error)

	// SetInFlight запоминает копию перед отправкой.
	SetInFlight(ctx context.Context, s *State) error

	// Rebase переносит локальные изменения после базы поверх server,
	// сохраняет результат как Update и делает server новой базой.
	// Всё в одной транзакции.
	Rebase(ctx context.Context, server *State) (*State, error)
}

// PushState готовит копию local для отправки поверх base (nil - базы нет).
func PushState(base, local *State) *State {
	p := local.Clone()
	p.Version = 1
	if base != nil {
		p.Version = base.Version + 1
	}
	return p
}

// SameProgress сравнивает содержимое без версии и времени изменения.
func SameProgress(a, b *State) bool {
	if a == nil || b == nil {
		return a == b
	}
	x, y := a.Clone(), b.Clone()
	x.Version, y.Version = 0, 0
	x.UpdatedAt, y.UpdatedAt = time.Time{}, time.Time{}
	return SameContent(x, y)
}

// ══════════════════════════════════════════════════════════════════════════════
// THREE-WAY MERGE
// ══════════════════════════════════════════════════════════════════════════════

// Rebase возвращает server с применёнными локальными изменениями base -> local.
// base == nil - синхронизации не было, всё локальное считается новым.
//
// Счётчики (опыт, валюты, предметы, статистика) складываются с локальной
// разницей и не уходят ниже нуля. Уроки и достижения объединяются. Серия и
// задания берутся со стороны с более поздним днём. Замеры баланса берутся
// локальные, если они менялись после базы. Версия результата - server.Version.
func Rebase(base, local, server *State) *State {
	if base == nil {
		base = NewState(local.TelegramID)
	}
	out := server.Clone()
	out.policy = local.policy

	out.Economy.XP = addDelta(server.Economy.XP, local.Economy.XP, base.Economy.XP)
	out.Economy.Coins = addDelta(server.Economy.Coins, local.Economy.Coins, base.Economy.Coins)
	out.Economy.Gems = addDelta(server.Economy.Gems, local.Economy.Gems, base.Economy.Gems)

	out.Stats.ItemsPurchased = addDelta(server.Stats.ItemsPurchased, local.Stats.ItemsPurchased, base.Stats.ItemsPurchased)
	out.Stats.ItemsUsed = addDelta(server.Stats.ItemsUsed, local.Stats.ItemsUsed, base.Stats.ItemsUsed)
	out.Stats.QuestsCompleted = addDelta(server.Stats.QuestsCompleted, local.Stats.QuestsCompleted, base.Stats.QuestsCompleted)

	out.Inventory = rebaseInventory(base.Inventory, local.Inventory, server.Inventory)
	out.CompletedLessons = unionLessons(server.CompletedLessons, local.CompletedLessons)
	out.Achievements = unionAchievements(server.Achievements, local.Achievements)
	out.Streak = rebaseStreak(base.Streak, local.Streak, server.Streak)
	out.Quests = rebaseQuests(local.Quests, server.Quests)
	out.Balance = rebaseBalance(base.Balance, local.Balance, server.Balance)

	if local.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = local.UpdatedAt
	}
	return out
}

func addDelta(server, local, base int) int {
	return max(server+local-base, 0)
}

func rebaseInventory(base, local, server Inventory) Inventory {
	out := server.clone()
	ids := make(map[string]struct{}, len(base)+len(local))
	for id := range base {
		ids[id] = struct{}{}
	}
	for id := range local {
		ids[id] = struct{}{}
	}
	for id := range ids {
		n := addDelta(server[id], local[id], base[id])
		if n == 0 {
			delete(out, id)
			continue
		}
		out[id] = n
	}
	return out
}

func unionLessons(server, local []string) []string {
	out := append([]string(nil), server...)
	seen := make(map[string]struct{}, len(server))
	for _, id := range server {
		seen[id] = struct{}{}
	}
	for _, id := range local {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func unionAchievements(server, local map[string]AchievementProgress) map[string]AchievementProgress {
	out := make(map[string]AchievementProgress, len(server)+len(local))
	for id, a := range server {
		out[id] = a
	}
	for id, l := range local {
		s, ok := out[id]
		if !ok {
			out[id] = l
			continue
		}
		s.Progress = max(s.Progress, l.Progress)
		if l.Unlocked && (!s.Unlocked || l.UnlockedOn.Before(s.UnlockedOn)) {
			s.UnlockedOn = l.UnlockedOn
		}
		s.Unlocked = s.Unlocked || l.Unlocked
		out[id] = s
	}
	return out
}

func rebaseStreak(base, local, server Streak) Streak {
	out := server
	if local.LastActivity.After(server.LastActivity) {
		out = local
	}
	if out.Protection != nil {
		p := *out.Protection
		out.Protection = &p
	}
	out.Best = max(server.Best, local.Best, out.Current)
	out.ProtectionsUsed = addDelta(server.ProtectionsUsed, local.ProtectionsUsed, base.ProtectionsUsed)
	return out
}

func rebaseQuests(local, server DailyQuests) DailyQuests {
	switch {
	case local.ResetOn.After(server.ResetOn):
		return cloneQuests(local)
	case local.ResetOn != server.ResetOn:
		return cloneQuests(server)
	}

	out := cloneQuests(server)
	index := make(map[string]int, len(out.Quests))
	for i, q := range out.Quests {
		index[q.ID] = i
	}
	for _, l := range local.Quests {
		i, ok := index[l.ID]
		if !ok {
			out.Quests = append(out.Quests, l)
			continue
		}
		q := &out.Quests[i]
		q.Progress = max(q.Progress, l.Progress)
		q.Completed = q.Completed || l.Completed
	}
	return out
}

func cloneQuests(d DailyQuests) DailyQuests {
	return DailyQuests{ResetOn: d.ResetOn, Quests: append([]Quest(nil), d.Quests...)}
}

func rebaseBalance(base, local, server BalanceScores) BalanceScores {
	out := server.clone()
	if !out.HasInitial() && local.HasInitial() {
		out.Initial, out.InitialOn = cloneScores(local.Initial), local.InitialOn
	}
	if !sameScores(base.Final, base.FinalOn, local.Final, local.FinalOn) {
		out.Final, out.FinalOn = cloneScores(local.Final), local.FinalOn
	}
	return out
}

func sameScores(a map[string]int, aOn timeutil.Date, b map[string]int, bOn timeutil.Date) bool {
	if aOn != bOn || len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
