package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule runs a job at a fixed interval after the previous start.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an IntervalSchedule.
func Every(interval time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// Common schedule descriptors.
const (
	Hourly = "@hourly"
	Daily  = "@daily"
	Weekly = "@weekly"
)

// cronParser accepts minute hour day-of-month month day-of-week plus the
// @-descriptors, @every included.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronSchedule keeps the source expression for job listings.
type cronSchedule struct {
	cron.Schedule
	spec string
}

func (s cronSchedule) String() string { return s.spec }

// ParseSchedule parses a 5-field cron expression ("0 3 * * *"), a descriptor
// such as @daily, or "@every <duration>". Times are computed in the location
// of the time passed to Next.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	parsed, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return cronSchedule{Schedule: parsed, spec: spec}, nil
}
