package root

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/config"
	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/ui"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ledgerRun opens the environment, resolves the learner and --date, then calls fn.
func ledgerRun(fn func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, cleanup, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := e.learner()
		if err != nil {
			return err
		}
		date, err := e.date()
		if err != nil {
			return err
		}
		return fn(ctx, cmd, e, id, date)
	}
}

func exactlyOne(what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func newAwardCmd() *cobra.Command {
	var (
		reward shared.Reward
		source string
	)

	cmd := &cobra.Command{
		Use:   "award",
		Short: "Grant XP, coins or gems",
	}
	cmd.RunE = ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
		res, err := command.NewAwardHandler(e.ledgerDeps()).Handle(ctx, command.AwardCommand{
			TelegramID: id,
			Reward:     reward,
			Source:     source,
			Date:       date,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Good.Render(ui.IconDone+" начислено")+" "+ui.Reward(reward))
		for _, line := range ui.Achievements(res.Unlocked) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, ui.LabelValue(ui.IconStar+" Уровень", res.State.Level()))
		return nil
	})
	cmd.Flags().IntVar(&reward.XP, "xp", 0, "XP to award")
	cmd.Flags().IntVar(&reward.Coins, "coins", 0, "coins to grant")
	cmd.Flags().IntVar(&reward.Gems, "gems", 0, "gems to grant")
	cmd.Flags().StringVar(&source, "source", "manual", "reward source recorded in events")
	return cmd
}

func newActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Record an activity day and advance the streak",
	}
	cmd.RunE = ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
		res, err := command.NewRecordActivityHandler(e.ledgerDeps()).Handle(ctx, command.RecordActivityCommand{
			TelegramID: id,
			Date:       date,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Streak(res.Streak))
		return nil
	})
	return cmd
}

func newLessonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lesson <lesson-id>",
		Short: "Complete a course lesson, e.g. 1-1",
		Args:  exactlyOne("lesson id"),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
			res, err := command.NewCompleteLessonHandler(e.ledgerDeps()).Handle(ctx, command.CompleteLessonCommand{
				TelegramID: id,
				LessonID:   args[0],
				Date:       date,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Outcome(res.Lesson.Title, res.Outcome))
			return nil
		})(cmd, args)
	}
	return cmd
}

func newBuyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buy <item-id>",
		Short: "Buy a shop item with coins or gems",
		Args:  exactlyOne("item id"),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
			shop := command.NewShopHandler(e.ledgerDeps(), e.cfg.Features.Gate(config.FeatureStreakShield))
			res, err := shop.Purchase(ctx, command.ItemCommand{TelegramID: id, ItemID: args[0], Date: date})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(fmt.Sprintf("%s куплено: %s %s ×%d",
				ui.IconBag, res.Item.Emoji, res.Item.Title, res.Count)))
			return nil
		})(cmd, args)
	}
	return cmd
}

func newUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <item-id>",
		Short: "Use an inventory item, e.g. the streak shield",
		Args:  exactlyOne("item id"),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
			shop := command.NewShopHandler(e.ledgerDeps(), e.cfg.Features.Gate(config.FeatureStreakShield))
			res, err := shop.Use(ctx, command.ItemCommand{TelegramID: id, ItemID: args[0], Date: date})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(fmt.Sprintf("%s использовано: %s, осталось %d",
				ui.IconDone, res.Item.Title, res.Count)))
			return nil
		})(cmd, args)
	}
	return cmd
}

func newUnlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock <achievement-id>",
		Short: "Unlock a manual achievement",
		Args:  exactlyOne("achievement id"),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
			res, err := command.NewUnlockAchievementHandler(e.ledgerDeps()).Handle(ctx, command.UnlockAchievementCommand{
				TelegramID:    id,
				AchievementID: args[0],
				Date:          date,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Gold.Render(ui.IconTrophy+" "+res.Achievement.Title)+" "+ui.Reward(res.Achievement.Reward))
			return nil
		})(cmd, args)
	}
	return cmd
}

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [initial|final category=score...]",
		Short: "Show the balance wheel or record an assessment",
		Long:  "Without arguments prints both assessments. With a kind and scores (1-10) records one assessment.",
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				s, err := e.state(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ui.Balance(s.Balance, e.catalog.BalanceCategories()))
				return nil
			}

			scores, err := parseScores(args[1:])
			if err != nil {
				return err
			}
			res, err := command.NewRecordBalanceHandler(e.ledgerDeps()).Handle(ctx, command.RecordBalanceCommand{
				TelegramID: id,
				Kind:       args[0],
				Scores:     scores,
				Date:       date,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.Balance(res.State.Balance, e.catalog.BalanceCategories()))
			return nil
		})(cmd, args)
	}
	return cmd
}

func parseScores(args []string) (map[string]int, error) {
	if len(args) == 0 {
		return nil, errors.New("scores are required, e.g. health=6")
	}
	scores := make(map[string]int, len(args))
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("score %q must look like category=value", arg)
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("score %q: %w", arg, err)
		}
		scores[key] = n
	}
	return scores, nil
}
