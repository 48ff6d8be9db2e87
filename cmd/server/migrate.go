package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/teens-space/progress-hub/internal/ui"
)

var errNoDatabase = errors.New("DATABASE_URL is required")

func newMigrateCmd() *cobra.Command {
	var (
		status   bool
		rollback bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
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
			migrator := postgres.NewMigrator(conn)

			switch {
			case rollback:
				if err := migrator.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(ui.IconDone+" rolled back the latest migration"))
				return nil
			case !status:
				if err := migrate(ctx, conn, log); err != nil {
					return err
				}
			}

			list, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Heading(ui.IconBook, "Migrations"))
			for _, m := range list {
				mark := ui.Muted.Render("pending")
				if m.IsApplied {
					mark = ui.Good.Render("applied " + m.AppliedAt.Format("2006-01-02 15:04"))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%03d %-28s %s\n", m.Version, m.Name, mark)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "only print migration status")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the latest migration")
	return cmd
}
