package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/teens-space/progress-hub/internal/ui"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

func newCuratorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curator",
		Short: "Manage curator accounts",
	}
	cmd.AddCommand(newCuratorCreateCmd())
	return cmd
}

func newCuratorCreateCmd() *cobra.Command {
	var (
		name       string
		telegramID int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a curator; the password is read from CURATOR_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errNoDatabase
			}
			log := newLogger(cfg)
			ctx := cmd.Context()

			conn, err := connectPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			tokens, err := newTokens(cfg, log)
			if err != nil {
				return err
			}
			accounts := command.NewCuratorAccountHandler(postgres.NewCuratorRepository(conn), tokens,
				cfg.Auth.CuratorSessionTTL, cfg.Auth.BcryptCost, timeutil.SystemClock{}, log)

			c, err := accounts.Create(ctx, command.CreateCuratorCommand{
				Name:       name,
				Password:   os.Getenv("CURATOR_PASSWORD"),
				TelegramID: shared.TelegramID(telegramID),
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(ui.IconDone+" curator created"))
			fmt.Fprintln(cmd.OutOrStdout(), ui.LabelValue("ID", c.ID))
			fmt.Fprintln(cmd.OutOrStdout(), ui.LabelValue("Name", c.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "curator Telegram account (optional)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
