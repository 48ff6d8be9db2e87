package ledger

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEGACY LOCAL STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Ключи localStorage Mini App до перехода на единый State.
const (
	KeyXP                     = "userXP"
	KeyLevel                  = "userLevel"
	KeyCoins                  = "userCoins"
	KeyGems                   = "userGems"
	KeyCurrentStreak          = "currentStreak"
	KeyLastActivityDate       = "lastActivityDate"
	KeyInventory              = "userInventory"
	KeyAchievements           = "userAchievements"
	KeyDailyQuests            = "dailyQuests"
	KeyInitialBalanceScores   = "initialBalanceScores"
	KeyFinalBalanceScores     = "finalBalanceScores"
	KeyCompletedLessons       = "completedLessons"
	KeyStreakProtectionActive = "streakProtectionActive"
	KeyStreakProtectionDate   = "streakProtectionDate"
)

// LegacyKeys - все известные ключи в порядке записи.
var LegacyKeys = []string{
	KeyXP, KeyLevel, KeyCoins, KeyGems, KeyCurrentStreak, KeyLastActivityDate,
	KeyInventory, KeyAchievements, KeyDailyQuests, KeyInitialBalanceScores,
	KeyFinalBalanceScores, KeyCompletedLessons, KeyStreakProtectionActive,
	KeyStreakProtectionDate,
}

// LegacyReport - замечания импорта, которые не являются ошибкой.
type LegacyReport struct {
	// StoredLevel - значение userLevel, 0 если ключа не было.
	StoredLevel int

	// LevelMismatch - userLevel не совпал с уровнем, пересчитанным из XP.
	LevelMismatch bool

	// DuplicateLessons - сколько повторов в completedLessons отброшено.
	DuplicateLessons int

	// UnknownKeys - ключи снимка, которые импорт не распознал.
	UnknownKeys []string
}

type legacyAchievement struct {
	ID       string `json:"id"`
	Unlocked bool   `json:"unlocked"`
	Progress int    `json:"progress"`
}

type legacyQuest struct {
	ID        string `json:"id"`
	Progress  int    `json:"progress"`
	Target    int    `json:"target"`
	Completed bool   `json:"completed"`
}

type legacyQuests struct {
	Date   string        `json:"date"`
	Quests []legacyQuest `json:"quests"`
}

type legacyInventoryEntry struct {
	ID       string `json:"id"`
	Count    int    `json:"count"`
	Quantity int    `json:"quantity"`
}

// DecodeLegacy собирает State из снимка localStorage. Отсутствующий ключ даёт
// значение по умолчанию, повреждённый - shared.ErrCorruptState с именем ключа.
func DecodeLegacy(id shared.TelegramID, kv map[string]string, cat Catalog, today timeutil.Date) (*State, LegacyReport, error) {
	var rep LegacyReport
	s := NewState(id)

	known := make(map[string]struct{}, len(LegacyKeys))
	for _, k := range LegacyKeys {
		known[k] = struct{}{}
	}
	for k := range kv {
		if _, ok := known[k]; !ok {
			rep.UnknownKeys = append(rep.UnknownKeys, k)
		}
	}
	sort.Strings(rep.UnknownKeys)

	var err error
	if s.Economy.XP, err = legacyInt(kv, KeyXP); err != nil {
		return nil, rep, err
	}
	if s.Economy.Coins, err = legacyInt(kv, KeyCoins); err != nil {
		return nil, rep, err
	}
	if s.Economy.Gems, err = legacyInt(kv, KeyGems); err != nil {
		return nil, rep, err
	}
	if rep.StoredLevel, err = legacyInt(kv, KeyLevel); err != nil {
		return nil, rep, err
	}
	if rep.StoredLevel != 0 && rep.StoredLevel != s.Economy.Level().Int() {
		rep.LevelMismatch = true
	}

	if s.Streak.Current, err = legacyInt(kv, KeyCurrentStreak); err != nil {
		return nil, rep, err
	}
	s.Streak.Best = s.Streak.Current
	if s.Streak.LastActivity, err = legacyDate(kv, KeyLastActivityDate); err != nil {
		return nil, rep, err
	}
	if err := decodeLegacyProtection(s, kv, today); err != nil {
		return nil, rep, err
	}

	if err := decodeLegacyInventory(s, kv); err != nil {
		return nil, rep, err
	}
	if err := decodeLegacyAchievements(s, kv, cat); err != nil {
		return nil, rep, err
	}
	if err := decodeLegacyQuests(s, kv, cat); err != nil {
		return nil, rep, err
	}

	if s.Balance.Initial, err = legacyScores(kv, KeyInitialBalanceScores); err != nil {
		return nil, rep, err
	}
	if s.Balance.Final, err = legacyScores(kv, KeyFinalBalanceScores); err != nil {
		return nil, rep, err
	}

	if rep.DuplicateLessons, err = decodeLegacyLessons(s, kv); err != nil {
		return nil, rep, err
	}

	if err := s.Validate(); err != nil {
		return nil, rep, err
	}
	return s, rep, nil
}

// EncodeLegacy раскладывает State обратно по ключам localStorage.
func EncodeLegacy(s *State) (map[string]string, error) {
	kv := map[string]string{
		KeyXP:                     strconv.Itoa(s.Economy.XP),
		KeyLevel:                  strconv.Itoa(s.Economy.Level().Int()),
		KeyCoins:                  strconv.Itoa(s.Economy.Coins),
		KeyGems:                   strconv.Itoa(s.Economy.Gems),
		KeyCurrentStreak:          strconv.Itoa(s.Streak.Current),
		KeyStreakProtectionActive: strconv.FormatBool(s.Streak.IsProtected()),
	}
	if !s.Streak.LastActivity.IsZero() {
		kv[KeyLastActivityDate] = s.Streak.LastActivity.String()
	}
	if s.Streak.Protection != nil {
		kv[KeyStreakProtectionDate] = s.Streak.Protection.ActivatedOn.String()
	}

	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return shared.WrapError("ledger", "EncodeLegacy", shared.ErrInvalidFormat, key, err)
		}
		kv[key] = string(b)
		return nil
	}

	inv := map[string]int(s.Inventory)
	if inv == nil {
		inv = map[string]int{}
	}
	if err := put(KeyInventory, inv); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(s.Achievements))
	for id := range s.Achievements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	achievements := make([]legacyAchievement, 0, len(ids))
	for _, id := range ids {
		a := s.Achievements[id]
		achievements = append(achievements, legacyAchievement{ID: id, Unlocked: a.Unlocked, Progress: a.Progress})
	}
	if err := put(KeyAchievements, achievements); err != nil {
		return nil, err
	}

	quests := legacyQuests{Date: s.Quests.ResetOn.String(), Quests: make([]legacyQuest, 0, len(s.Quests.Quests))}
	for _, q := range s.Quests.Quests {
		quests.Quests = append(quests.Quests, legacyQuest{ID: q.ID, Progress: q.Progress, Target: q.Target, Completed: q.Completed})
	}
	if err := put(KeyDailyQuests, quests); err != nil {
		return nil, err
	}

	if s.Balance.HasInitial() {
		if err := put(KeyInitialBalanceScores, s.Balance.Initial); err != nil {
			return nil, err
		}
	}
	if s.Balance.HasFinal() {
		if err := put(KeyFinalBalanceScores, s.Balance.Final); err != nil {
			return nil, err
		}
	}

	lessons := s.CompletedLessons
	if lessons == nil {
		lessons = []string{}
	}
	if err := put(KeyCompletedLessons, lessons); err != nil {
		return nil, err
	}
	return kv, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Key decoders
// ─────────────────────────────────────────────────────────────────────────────

func corruptKey(key string, err error) error {
	return shared.WrapError("ledger", "DecodeLegacy", shared.ErrCorruptState, "malformed key "+key, err)
}

func corruptKeyf(key, format string, args ...any) error {
	return shared.Errorf("ledger", "DecodeLegacy", shared.ErrCorruptState, "malformed key %s: "+format, append([]any{key}, args...)...)
}

func legacyRaw(kv map[string]string, key string) (string, bool) {
	v, ok := kv[key]
	v = strings.TrimSpace(v)
	if !ok || v == "" || v == "null" || v == "undefined" {
		return "", false
	}
	return v, true
}

func legacyInt(kv map[string]string, key string) (int, error) {
	v, ok := legacyRaw(kv, key)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, corruptKey(key, err)
	}
	if n < 0 {
		return 0, corruptKeyf(key, "negative value %d", n)
	}
	return n, nil
}

func legacyDate(kv map[string]string, key string) (timeutil.Date, error) {
	v, ok := legacyRaw(kv, key)
	if !ok {
		return timeutil.Date{}, nil
	}
	d, err := timeutil.ParseLooseDate(v, timeutil.MoscowTZ)
	if err != nil {
		return timeutil.Date{}, corruptKey(key, err)
	}
	return d, nil
}

func legacyJSON(kv map[string]string, key string, dst any) (bool, error) {
	v, ok := legacyRaw(kv, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		return false, corruptKey(key, err)
	}
	return true, nil
}

func decodeLegacyProtection(s *State, kv map[string]string, today timeutil.Date) error {
	v, ok := legacyRaw(kv, KeyStreakProtectionActive)
	if !ok {
		return nil
	}
	active, err := strconv.ParseBool(v)
	if err != nil {
		return corruptKey(KeyStreakProtectionActive, err)
	}
	if !active {
		return nil
	}
	on, err := legacyDate(kv, KeyStreakProtectionDate)
	if err != nil {
		return err
	}
	if on.IsZero() {
		on = s.Streak.LastActivity
	}
	if on.IsZero() {
		on = today
	}
	s.Streak.Protection = &Protection{ActivatedOn: on}
	return nil
}

func decodeLegacyInventory(s *State, kv map[string]string) error {
	v, ok := legacyRaw(kv, KeyInventory)
	if !ok {
		return nil
	}

	counts := map[string]int{}
	if strings.HasPrefix(v, "[") {
		var entries []legacyInventoryEntry
		if err := json.Unmarshal([]byte(v), &entries); err != nil {
			return corruptKey(KeyInventory, err)
		}
		for _, e := range entries {
			n := e.Count
			if n == 0 {
				n = e.Quantity
			}
			counts[e.ID] += n
		}
	} else if err := json.Unmarshal([]byte(v), &counts); err != nil {
		return corruptKey(KeyInventory, err)
	}

	for id, n := range counts {
		switch {
		case id == "" || n < 0:
			return corruptKeyf(KeyInventory, "item %q has count %d", id, n)
		case n > 0:
			s.Inventory[id] = n
		}
	}
	return nil
}

func decodeLegacyAchievements(s *State, kv map[string]string, cat Catalog) error {
	if cat != nil {
		s.EnsureAchievements(cat.Achievements())
	}

	var raw []json.RawMessage
	if ok, err := legacyJSON(kv, KeyAchievements, &raw); err != nil || !ok {
		return err
	}
	for _, r := range raw {
		var a legacyAchievement
		var id string
		if err := json.Unmarshal(r, &id); err == nil {
			a = legacyAchievement{ID: id, Unlocked: true}
		} else if err := json.Unmarshal(r, &a); err != nil {
			return corruptKey(KeyAchievements, err)
		}
		if a.ID == "" || a.Progress < 0 {
			return corruptKeyf(KeyAchievements, "entry %s", string(r))
		}

		cur := AchievementProgress{Progress: a.Progress, Unlocked: a.Unlocked}
		if cat != nil {
			if def, ok := cat.Achievement(a.ID); ok && a.Unlocked && cur.Progress < def.Target {
				cur.Progress = def.Target
			}
		}
		s.Achievements[a.ID] = cur
	}
	return nil
}

func decodeLegacyQuests(s *State, kv map[string]string, cat Catalog) error {
	var lq legacyQuests
	if ok, err := legacyJSON(kv, KeyDailyQuests, &lq); err != nil || !ok {
		return err
	}

	if lq.Date != "" {
		d, err := timeutil.ParseLooseDate(lq.Date, timeutil.MoscowTZ)
		if err != nil {
			return corruptKey(KeyDailyQuests, err)
		}
		s.Quests.ResetOn = d
	}

	templates := map[string]QuestTemplate{}
	if cat != nil {
		for _, t := range cat.QuestTemplates() {
			templates[t.ID] = t
		}
	}
	for _, q := range lq.Quests {
		if q.ID == "" || q.Progress < 0 {
			return corruptKeyf(KeyDailyQuests, "quest %q progress %d", q.ID, q.Progress)
		}
		quest := Quest{ID: q.ID, Progress: q.Progress, Target: q.Target, Completed: q.Completed}
		if t, ok := templates[q.ID]; ok {
			quest.Title = t.Title
			quest.Metric = t.Metric
			quest.Reward = t.Reward
			if quest.Target <= 0 {
				quest.Target = t.Target
			}
		}
		if quest.Target <= 0 {
			return corruptKeyf(KeyDailyQuests, "quest %q has no target", q.ID)
		}
		s.Quests.Quests = append(s.Quests.Quests, quest)
	}
	return nil
}

func legacyScores(kv map[string]string, key string) (map[string]int, error) {
	var scores map[string]int
	if ok, err := legacyJSON(kv, key, &scores); err != nil || !ok {
		return nil, err
	}
	for c, v := range scores {
		if v < MinBalanceScore || v > MaxBalanceScore {
			return nil, corruptKeyf(key, "score %q=%d out of range", c, v)
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return scores, nil
}

func decodeLegacyLessons(s *State, kv map[string]string) (int, error) {
	var raw []json.RawMessage
	if ok, err := legacyJSON(kv, KeyCompletedLessons, &raw); err != nil || !ok {
		return 0, err
	}

	seen := map[string]struct{}{}
	dups := 0
	for _, r := range raw {
		var id string
		if err := json.Unmarshal(r, &id); err != nil {
			var n json.Number
			if err := json.Unmarshal(r, &n); err != nil {
				return 0, corruptKey(KeyCompletedLessons, err)
			}
			id = n.String()
		}
		if id == "" {
			return 0, corruptKeyf(KeyCompletedLessons, "empty lesson id")
		}
		if _, dup := seen[id]; dup {
			dups++
			continue
		}
		seen[id] = struct{}{}
		s.CompletedLessons = append(s.CompletedLessons, id)
	}
	return dups, nil
}
