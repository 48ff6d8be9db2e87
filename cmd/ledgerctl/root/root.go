package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/internal/ui"
)

const Version = "0.4.0"

type globalFlags struct {
	configPath  string
	dbPath      string
	catalogPath string
	telegramID  int64
	date        string
	verbose     bool
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Teens Space local progress ledger",
	Long:          "ledgerctl keeps a learner's XP, streak, coins and achievements in a local SQLite ledger and syncs it with the progress server.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config overlay")
	pf.StringVar(&flags.dbPath, "db", "", "ledger database path (default: LOCAL_DB_PATH or ~/.teens-space/ledger.db)")
	pf.StringVar(&flags.catalogPath, "catalog", "", "course catalog YAML (default: embedded)")
	pf.Int64Var(&flags.telegramID, "id", 0, "learner Telegram ID (default: LOCAL_TELEGRAM_ID)")
	pf.StringVar(&flags.date, "date", "", "activity date YYYY-MM-DD (default: today in APP_TIMEZONE)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(
		newStatusCmd(),
		newAwardCmd(),
		newActivityCmd(),
		newLessonCmd(),
		newBuyCmd(),
		newUseCmd(),
		newUnlockCmd(),
		newBalanceCmd(),
		newQuestsCmd(),
		newAchievementsCmd(),
		newInventoryCmd(),
		newImportLegacyCmd(),
		newExportLegacyCmd(),
		newSyncCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err))
		os.Exit(1)
	}
}
