package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Lessons(), 12)
	assert.Equal(t, []int{1, 2, 3, 4}, c.Modules())
	assert.Len(t, c.ModuleLessons(2), 3)
	assert.Len(t, c.BalanceCategories(), 8)

	l, ok := c.Lesson("1-1")
	require.True(t, ok)
	assert.Equal(t, shared.Reward{XP: 100, Coins: 20}, l.Reward)

	it, ok := c.Item("streak_shield")
	require.True(t, ok)
	assert.Equal(t, ledger.EffectStreakShield, it.Effect)
	assert.Equal(t, shared.CurrencyCoins, it.Price.Currency)

	a, ok := c.Achievement("course_complete")
	require.True(t, ok)
	assert.Equal(t, len(c.Lessons()), a.Target)

	_, ok = c.Lesson("9-9")
	assert.False(t, ok)
}

func TestDefault_ReturnsCopies(t *testing.T) {
	c := MustDefault()
	defs := c.Achievements()
	defs[0].Target = 999

	a, _ := c.Achievement(defs[0].ID)
	assert.NotEqual(t, 999, a.Target)
	assert.NotEqual(t, 999, c.Achievements()[0].Target)
}

func TestParse_Validation(t *testing.T) {
	doc := `
lessons:
  - id: "1-1"
    reward: { xp: 10 }
  - id: "1-1"
shop:
  - id: gift
    price: { currency: stars, amount: 0 }
    effect: teleport
achievements:
  - id: a
    metric: xp_earned
    target: 0
daily_quests:
  - id: q
    metric: manual
    target: 1
balance_categories: []
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)

	for _, want := range []string{
		`duplicate id "1-1"`,
		`unknown currency "stars"`,
		"positive price",
		`unknown effect "teleport"`,
		`unsupported metric "xp_earned"`,
		"positive target",
		`unsupported metric "manual"`,
		"at least one category",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, embedded, 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, c.Items(), 4)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
