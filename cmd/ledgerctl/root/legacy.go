package root

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/ui"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

func newImportLegacyCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "import-legacy <file|->",
		Short: "Import a localStorage snapshot (JSON object of key to string value)",
		Args:  exactlyOne("snapshot file"),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, date timeutil.Date) error {
			values, err := readSnapshot(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			res, err := command.NewImportLegacyHandler(e.ledgerDeps()).Handle(ctx, command.ImportLegacyCommand{
				TelegramID: id,
				Values:     values,
				Force:      force,
				Date:       date,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Good.Render(fmt.Sprintf("%s снимок импортирован, версия %d", ui.IconDone, res.State.Version)))
			if r := res.Report; r.LevelMismatch {
				fmt.Fprintln(out, ui.Warn.Render(fmt.Sprintf("%s userLevel=%d пересчитан в %d", ui.IconWarn, r.StoredLevel, res.State.Level())))
			}
			if n := res.Report.DuplicateLessons; n > 0 {
				fmt.Fprintln(out, ui.Muted.Render(fmt.Sprintf("повторов уроков отброшено: %d", n)))
			}
			if keys := res.Report.UnknownKeys; len(keys) > 0 {
				fmt.Fprintln(out, ui.Muted.Render("неизвестные ключи: "+strings.Join(keys, ", ")))
			}
			return nil
		})(cmd, args)
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace existing local progress")
	return cmd
}

func newExportLegacyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-legacy",
		Short: "Print the ledger as a localStorage snapshot",
	}
	cmd.RunE = ledgerRun(func(ctx context.Context, cmd *cobra.Command, e *env, id shared.TelegramID, _ timeutil.Date) error {
		values, err := query.NewExportLegacyHandler(e.store).Handle(ctx, query.ExportLegacyQuery{TelegramID: id})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	})
	return cmd
}

func readSnapshot(stdin io.Reader, path string) (map[string]string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return values, nil
}
