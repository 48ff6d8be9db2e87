// Package jobs contains the scheduled jobs of the progress hub.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DRAIN OUTBOX JOB
// ══════════════════════════════════════════════════════════════════════════════

// OutboxDrainer runs one pass over the sync outbox.
type OutboxDrainer interface {
	Handle(ctx context.Context) (*command.DrainOutboxResult, error)
}

// DrainOutboxJob pushes pending local changes to the sync API.
type DrainOutboxJob struct {
	drainer OutboxDrainer
	timeout time.Duration
	last    atomic.Pointer[command.DrainOutboxResult]
}

// NewDrainOutboxJob creates the job. timeout bounds one pass, 0 means 2m.
func NewDrainOutboxJob(drainer OutboxDrainer, timeout time.Duration) *DrainOutboxJob {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &DrainOutboxJob{drainer: drainer, timeout: timeout}
}

func (j *DrainOutboxJob) Name() string        { return "drain_outbox" }
func (j *DrainOutboxJob) Description() string { return "Push pending progress changes to the sync API" }

// Run executes one drain pass.
func (j *DrainOutboxJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	res, err := j.drainer.Handle(ctx)
	if res != nil {
		j.last.Store(res)
	}
	return err
}

// LastResult returns the result of the latest pass, nil before the first one.
func (j *DrainOutboxJob) LastResult() *command.DrainOutboxResult {
	return j.last.Load()
}

// ══════════════════════════════════════════════════════════════════════════════
// PULL PROGRESS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ProgressPuller adopts newer server state for one learner.
type ProgressPuller interface {
	Handle(ctx context.Context, cmd command.PullProgressCommand) (*command.PullProgressResult, error)
}

// PullStats summarises one pull run.
type PullStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Learners  int
	Adopted   int
	Missing   int
	Failed    int
}

// PullProgressJob pulls server state for the learners stored locally, so
// progress made on another device shows up here.
type PullProgressJob struct {
	puller      ProgressPuller
	learners    func(ctx context.Context) ([]shared.TelegramID, error)
	concurrency int
	log         *logger.Logger
	last        atomic.Pointer[PullStats]
}

// NewPullProgressJob creates the job. learners lists whom to pull.
func NewPullProgressJob(puller ProgressPuller, learners func(ctx context.Context) ([]shared.TelegramID, error), concurrency int, log *logger.Logger) *PullProgressJob {
	if concurrency <= 0 {
		concurrency = 2
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PullProgressJob{
		puller:      puller,
		learners:    learners,
		concurrency: concurrency,
		log:         log.With(logger.Component("pull_progress_job")),
	}
}

func (j *PullProgressJob) Name() string        { return "pull_progress" }
func (j *PullProgressJob) Description() string { return "Adopt newer progress from the sync API" }

// Run pulls every learner. A learner unknown to the server is not an
// error; the run fails only when no pull succeeded.
func (j *PullProgressJob) Run(ctx context.Context) error {
	ids, err := j.learners(ctx)
	if err != nil {
		return fmt.Errorf("list learners: %w", err)
	}
	stats := PullStats{StartedAt: time.Now(), Learners: len(ids)}

	var (
		mu      sync.Mutex
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			res, err := j.puller.Handle(gctx, command.PullProgressCommand{TelegramID: id})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, shared.ErrStateNotFound):
				stats.Missing++
			case err != nil:
				stats.Failed++
				lastErr = err
				j.log.Warn("pull failed", logger.TelegramID(id.Int64()), logger.Err(err))
			case res.Adopted:
				stats.Adopted++
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Duration = time.Since(stats.StartedAt)
	j.last.Store(&stats)

	if stats.Failed > 0 && stats.Failed == stats.Learners {
		return fmt.Errorf("pull progress: all %d learners failed: %w", stats.Failed, lastErr)
	}
	return nil
}

// LastStats returns the stats of the latest run.
func (j *PullProgressJob) LastStats() *PullStats {
	return j.last.Load()
}
