package root

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempLedger(t *testing.T) {
	t.Helper()
	prev := flags
	t.Cleanup(func() { flags = prev })

	flags = globalFlags{
		dbPath:     filepath.Join(t.TempDir(), "ledger.db"),
		telegramID: 777,
		date:       "2026-10-14",
	}
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLessonThenStatus(t *testing.T) {
	useTempLedger(t)

	out, err := run(t, newLessonCmd(), "1-1")
	require.NoError(t, err)
	assert.Contains(t, out, "пройден")

	out, err = run(t, newLessonCmd(), "1-1")
	require.NoError(t, err)
	assert.Contains(t, out, "уже пройден")

	out, err = run(t, newStatusCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "Прогресс 777")
	assert.Contains(t, out, "не отправлено изменений")
}

func TestActivityAndAward(t *testing.T) {
	useTempLedger(t)

	out, err := run(t, newActivityCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "серия")

	out, err = run(t, newAwardCmd(), "--xp", "600", "--coins", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "начислено")
}

func TestBalanceCommand(t *testing.T) {
	useTempLedger(t)

	out, err := run(t, newBalanceCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "оценок пока нет")

	_, err = run(t, newBalanceCmd(), "initial")
	assert.Error(t, err)

	_, err = run(t, newBalanceCmd(), "initial", "health")
	assert.Error(t, err)
}

func TestMissingLearner(t *testing.T) {
	useTempLedger(t)
	flags.telegramID = 0

	_, err := run(t, newStatusCmd())
	assert.ErrorIs(t, err, errNoLearner)
}

func TestInvalidDate(t *testing.T) {
	useTempLedger(t)
	flags.date = "14.10.2026"

	_, err := run(t, newActivityCmd())
	assert.Error(t, err)
}

func TestLegacyRoundTrip(t *testing.T) {
	useTempLedger(t)

	_, err := run(t, newLessonCmd(), "1-1")
	require.NoError(t, err)

	out, err := run(t, newExportLegacyCmd())
	require.NoError(t, err)

	var snapshot map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &snapshot))
	assert.Contains(t, snapshot, "userXP")

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	_, err = run(t, newImportLegacyCmd(), path)
	assert.Error(t, err, "existing progress needs --force")

	out, err = run(t, newImportLegacyCmd(), "--force", path)
	require.NoError(t, err)
	assert.Contains(t, out, "импортирован")
}

func TestParseScores(t *testing.T) {
	scores, err := parseScores([]string{"health=6", "friends=4"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"health": 6, "friends": 4}, scores)

	for _, bad := range [][]string{nil, {"health"}, {"=3"}, {"health=x"}} {
		_, err := parseScores(bad)
		assert.Error(t, err, bad)
	}
}

func TestDaemonSchedulesOnlyTheDrain(t *testing.T) {
	useTempLedger(t)
	e, closeEnv, err := openEnv(context.Background())
	require.NoError(t, err)
	t.Cleanup(closeEnv)

	sched, pull, err := newDaemon(e, nil)
	require.NoError(t, err)
	require.NotNil(t, pull)

	list := sched.ListJobs()
	require.Len(t, list, 1)
	assert.Equal(t, "drain_outbox", list[0].Name)
	assert.Contains(t, list[0].Schedule, "@every")
}
