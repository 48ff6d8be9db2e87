package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Flag names. The FEATURE_* variable of a flag is its name upper-cased with
// dots replaced by underscores.
const (
	FeatureStreakShield          = "economy.streak_shield"            // shield may be bought and consumed
	FeatureNotifyLessonCompleted = "notify.lesson_completed"          // reward message after a lesson
	FeatureNotifyAchievement     = "notify.achievement"               // message on an unlocked achievement
	FeatureOutboxCompaction      = "sync.outbox_compaction"           // purge delivered outbox rows
	FeatureInitDataRequired      = "auth.telegram_init_data_required" // sync endpoints demand initData or a JWT
)

// Feature is one toggle. RolloutPercent below 100 enables it for that share
// of learners, picked by a stable hash of the Telegram ID.
type Feature struct {
	Name           string
	Description    string
	Enabled        bool
	RolloutPercent int
}

// FeatureFlags is safe for concurrent use; Set may run while gates are read.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

var defaultFeatures = []Feature{
	{Name: FeatureStreakShield, Description: "Streak shield item in the shop"},
	{Name: FeatureNotifyLessonCompleted, Description: "Telegram message after a completed lesson"},
	{Name: FeatureNotifyAchievement, Description: "Telegram message on an unlocked achievement"},
	{Name: FeatureOutboxCompaction, Description: "Delete delivered outbox rows after retention"},
	{Name: FeatureInitDataRequired, Description: "Authenticate sync requests"},
}

// LoadFeatureFlags enables every flag, then applies FEATURE_* variables.
// Values are true, false or a percentage such as 25 or 25%. Unparsable
// values are ignored.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature, len(defaultFeatures))}
	for _, d := range defaultFeatures {
		f := d
		f.Enabled, f.RolloutPercent = true, 100
		if val := os.Getenv(envKey(f.Name)); val != "" {
			_ = f.apply(val)
		}
		ff.features[f.Name] = &f
	}
	return ff
}

func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

func (f *Feature) apply(val string) error {
	if b, err := strconv.ParseBool(val); err == nil {
		f.Enabled = b
		f.RolloutPercent = 0
		if b {
			f.RolloutPercent = 100
		}
		return nil
	}
	p, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(val), "%"))
	if err != nil || p < 0 || p > 100 {
		return ErrInvalidRolloutPercent
	}
	f.Enabled = p > 0
	f.RolloutPercent = p
	return nil
}

// IsEnabled reports whether featureName is on for the learner. telegramID 0
// asks about the process as a whole: any rollout above zero counts as on.
func (ff *FeatureFlags) IsEnabled(featureName string, telegramID int64) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[featureName]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent < 100 && telegramID != 0 {
		return bucket(featureName, telegramID) < f.RolloutPercent
	}
	return f.RolloutPercent > 0
}

// bucket places a learner in [0,100) for featureName. Different flags
// spread the same learner differently.
func bucket(featureName string, telegramID int64) int {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(strconv.FormatInt(telegramID, 10)))
	return int(h.Sum32() % 100)
}

// Gate reads a process-wide flag on every call, so Set applies live.
func (ff *FeatureFlags) Gate(featureName string) func() bool {
	return func() bool { return ff.IsEnabled(featureName, 0) }
}

// LearnerGate is Gate with per-learner rollout.
func (ff *FeatureFlags) LearnerGate(featureName string) func(telegramID int64) bool {
	return func(telegramID int64) bool { return ff.IsEnabled(featureName, telegramID) }
}

// Set changes a flag with a FEATURE_* style value.
func (ff *FeatureFlags) Set(featureName, value string) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	return f.apply(value)
}

// All returns copies of the flags sorted by name.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type FeatureFlagError struct{ Message string }

func (e *FeatureFlagError) Error() string { return e.Message }

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)
