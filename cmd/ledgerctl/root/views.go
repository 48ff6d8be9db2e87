package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/ui"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

func newQuestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quests",
		Short: "Show today's quests",
	}
	cmd.RunE = ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, _ timeutil.Date) error {
		s, err := e.state(ctx, id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Quests(s.Quests))
		if today := e.today(); s.Quests.ResetOn != today {
			fmt.Fprintln(out, ui.Muted.Render("задания обновятся при первой активности "+today.String()))
		}
		return nil
	})
	return cmd
}

func newAchievementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "achievements",
		Short: "List achievements and their progress",
	}
	cmd.RunE = ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, _ timeutil.Date) error {
		s, err := e.state(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.AchievementList(e.catalog.Achievements(), s.Achievements))
		return nil
	})
	return cmd
}

func newInventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv"},
		Short:   "List owned items",
	}
	cmd.RunE = ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, _ timeutil.Date) error {
		s, err := e.state(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Inventory(s.Inventory, e.catalog))
		return nil
	})
	return cmd
}
