package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show level, streak, currencies and course progress",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			s, err := e.state(ctx, id)
			if err != nil {
				return err
			}
			summary := query.Summarize(s, len(e.catalog.Lessons()))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Summary(&summary))

			pending, err := e.outbox.Pending(ctx, id)
			if err != nil {
				return err
			}
			if pending > 0 {
				fmt.Fprintln(out, ui.Warn.Render(fmt.Sprintf("%s не отправлено изменений: %d", ui.IconSync, pending)))
			}
			return nil
		},
	}
}
