package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE JOB
// ══════════════════════════════════════════════════════════════════════════════

// PurgeFunc deletes rows older than before and returns how many went.
type PurgeFunc func(ctx context.Context, before time.Time) (int64, error)

// PurgeJob periodically deletes expired rows: access codes past their TTL,
// sync receipts past the replay window.
type PurgeJob struct {
	name        string
	description string
	purge       PurgeFunc
	retention   time.Duration
	clock       timeutil.Clock
	log         *logger.Logger
}

// NewPurgeJob creates a purge job. Rows older than now-retention are removed.
func NewPurgeJob(name, description string, purge PurgeFunc, retention time.Duration, clock timeutil.Clock, log *logger.Logger) *PurgeJob {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PurgeJob{
		name:        name,
		description: description,
		purge:       purge,
		retention:   retention,
		clock:       clock,
		log:         log.With(logger.Component(name)),
	}
}

// NewPurgeAccessCodesJob removes expired and redeemed access codes.
func NewPurgeAccessCodesJob(purge PurgeFunc, clock timeutil.Clock, log *logger.Logger) *PurgeJob {
	return NewPurgeJob("purge_access_codes", "Delete expired curator access codes", purge, 0, clock, log)
}

// NewPurgeReceiptsJob removes idempotency receipts older than retention.
func NewPurgeReceiptsJob(purge PurgeFunc, retention time.Duration, clock timeutil.Clock, log *logger.Logger) *PurgeJob {
	return NewPurgeJob("purge_sync_receipts", "Delete old sync idempotency receipts", purge, retention, clock, log)
}

func (j *PurgeJob) Name() string        { return j.name }
func (j *PurgeJob) Description() string { return j.description }

// Run deletes expired rows.
func (j *PurgeJob) Run(ctx context.Context) error {
	before := j.clock.Now().Add(-j.retention)
	n, err := j.purge(ctx, before)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if n > 0 {
		j.log.Info("expired rows purged", logger.Int64("rows", n), logger.Time("before", before))
	}
	return nil
}
