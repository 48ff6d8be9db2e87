package root

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teens-space/progress-hub/config"
	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/syncapi"
	"github.com/teens-space/progress-hub/internal/infrastructure/scheduler"
	"github.com/teens-space/progress-hub/internal/infrastructure/scheduler/jobs"
	"github.com/teens-space/progress-hub/internal/ui"
	"github.com/teens-space/progress-hub/pkg/circuitbreaker"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/retry"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise the local ledger with the progress server",
	}
	cmd.AddCommand(
		newPushCmd(),
		newPullCmd(),
		newDaemonCmd(),
	)
	return cmd
}

func (e *env) remote() *syncapi.Client {
	cfg := syncapi.DefaultConfig(e.cfg.Sync.BaseURL)
	if e.cfg.Sync.RequestTimeout > 0 {
		cfg.Timeout = e.cfg.Sync.RequestTimeout
	}
	cfg.Token = e.cfg.Sync.Token
	cfg.InitData = e.cfg.Sync.InitData
	cfg.Logger = e.log
	return syncapi.NewClient(cfg)
}

func (e *env) drainer(remote command.RemoteProgress) *command.DrainOutboxHandler {
	return command.NewDrainOutboxHandler(command.DrainOutboxDeps{
		Outbox:       e.outbox,
		Local:        e.store,
		Remote:       remote,
		Purger:       e.outbox,
		PurgeEnabled: e.cfg.Features.Gate(config.FeatureOutboxCompaction),
		KeepSent:     e.cfg.Sync.SentRetention,
		Backoff:      retry.OutboxBackoff(),
		BatchSize:    e.cfg.Sync.BatchSize,
		Clock:        e.clock,
		Logger:       e.log,
	})
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Deliver due outbox entries once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, cleanup, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			remote := e.remote()
			res, err := e.drainer(remote).Handle(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderDrain(res))
			if st := remote.Status(); st.Breaker != circuitbreaker.StateClosed {
				fmt.Fprintln(out, ui.Warn.Render(fmt.Sprintf("%s сервер недоступен, предохранитель %s", ui.IconWarn, st.Breaker)))
			}
			return nil
		},
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Adopt the server state when it is newer",
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
			res, err := command.NewPullProgressHandler(e.store, e.remote(), e.log).Handle(ctx, command.PullProgressCommand{TelegramID: id})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Adopted {
				fmt.Fprintln(out, ui.Good.Render(fmt.Sprintf("%s принята версия сервера %d (база была %d)", ui.IconSync, res.RemoteVersion, res.BaseVersion)))
			} else {
				fmt.Fprintln(out, ui.Muted.Render(fmt.Sprintf("локальная копия актуальна (сервер %d)", res.RemoteVersion)))
			}
			return nil
		},
	}
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Drain the outbox every SYNC_INTERVAL and pull on start",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, cleanup, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return runDaemon(ctx, e)
		},
	}
}

// newDaemon registers the interval drain. The pull is returned for a single
// run on startup.
func newDaemon(e *env, remote command.RemoteProgress) (*scheduler.Scheduler, *jobs.PullProgressJob, error) {
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = e.log
	schedCfg.Timezone = e.cfg.App.Location
	sched := scheduler.New(schedCfg)
	sched.OnJobError(func(job string, err error) {
		e.log.Warn("sync job failed", logger.String("job", job), logger.Err(err))
	})

	drain := jobs.NewDrainOutboxJob(e.drainer(remote), e.cfg.Scheduler.JobTimeout)
	if err := sched.Register(drain, scheduler.Every(e.cfg.Sync.Interval)); err != nil {
		return nil, nil, err
	}

	pull := jobs.NewPullProgressJob(command.NewPullProgressHandler(e.store, remote, e.log),
		e.store.IDs,
		e.cfg.Sync.PullConcurrency, e.log)
	return sched, pull, nil
}

func runDaemon(ctx context.Context, e *env) error {
	sched, pull, err := newDaemon(e, e.remote())
	if err != nil {
		return err
	}

	e.log.Info("sync daemon started",
		logger.String("server", e.cfg.Sync.BaseURL),
		logger.Duration("interval", e.cfg.Sync.Interval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The pull finishes before the first drain. Later server changes
		// reach the client as push conflicts.
		if err := pull.Run(gctx); err != nil {
			e.log.Warn("initial pull failed", logger.Err(err))
		}
		return sched.Run(gctx)
	})
	return g.Wait()
}

func renderDrain(res *command.DrainOutboxResult) string {
	if res.Due == 0 {
		return ui.Muted.Render(ui.IconSync + " нечего отправлять")
	}
	line := fmt.Sprintf("%s к отправке %d, отправлено %d, объединено с сервером %d, отложено %d",
		ui.IconSync, res.Due, res.Pushed, res.Rebased, res.Rescheduled)
	if res.Purged > 0 {
		line += fmt.Sprintf(", очищено %d", res.Purged)
	}
	if res.Rescheduled > 0 {
		return ui.Warn.Render(line)
	}
	return ui.Good.Render(line)
}
