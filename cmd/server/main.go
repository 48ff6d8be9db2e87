// Package main - точка входа сервера прогресса Teens Space.
//
// Сервер принимает синхронизацию состояния из Telegram Mini App, выдаёт
// кураторам списки учеников и обслуживает webhook бота.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/config"
	"github.com/teens-space/progress-hub/internal/ui"
	"github.com/teens-space/progress-hub/pkg/logger"
)

const Version = "0.4.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "progress-hub",
	Short:         "Teens Space progress server",
	Long:          "progress-hub stores learner progress, serves the sync API and the curator dashboard.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config overlay (environment is read first)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newCuratorCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// newLogger builds the process logger. The console encoder is used for
// console/text formats, JSON otherwise.
func newLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	return logger.New(logger.Options{
		Output:      os.Stdout,
		Level:       level,
		AddCaller:   true,
		Development: cfg.Log.Format != "json",
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}
