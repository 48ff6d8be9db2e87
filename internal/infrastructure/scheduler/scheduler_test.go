package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Description() string           { return "test job " + j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func TestParseSchedule_Next(t *testing.T) {
	base := time.Date(2024, 3, 4, 10, 17, 30, 0, time.UTC) // Monday

	tests := []struct {
		spec string
		want time.Time
	}{
		{"* * * * *", time.Date(2024, 3, 4, 10, 18, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)},
		{"30 9 * * 0", time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"5,45 10-11 * * 1-5", time.Date(2024, 3, 4, 10, 45, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{Hourly, time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)},
		{Daily, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{Weekly, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"@every 30s", time.Date(2024, 3, 4, 10, 18, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseSchedule(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(base))
			assert.Equal(t, tt.spec, s.String())
		})
	}
}

func TestParseSchedule_Timezone(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	s, err := ParseSchedule("0 3 * * *")
	require.NoError(t, err)

	got := s.Next(time.Date(2024, 3, 4, 1, 0, 0, 0, almaty))
	assert.Equal(t, time.Date(2024, 3, 4, 3, 0, 0, 0, almaty), got)
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, bad := range []string{"", "* * *", "61 * * * *", "5-1 * * * *", "*/0 * * * *", "@every soon", "@monthlyish"} {
		_, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
	}
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := New(Config{Tick: 5 * time.Millisecond})

	var runs atomic.Int32
	require.NoError(t, s.Register(funcJob{name: "tick", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, Every(10*time.Millisecond)))

	require.ErrorIs(t, s.Register(funcJob{name: "tick"}, Every(time.Second)), ErrJobAlreadyExists)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.ErrorIs(t, s.Start(ctx), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.GreaterOrEqual(t, jobs[0].RunCount, int64(2))
	assert.Zero(t, s.Metrics().Snapshot().TotalFailures)
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New(Config{Tick: 2 * time.Millisecond})

	var active, maxActive atomic.Int32
	require.NoError(t, s.Register(funcJob{name: "slow", fn: func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}}, Every(time.Millisecond)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestScheduler_RunNowAndErrors(t *testing.T) {
	s := New(DefaultConfig())
	boom := errors.New("boom")

	var reported string
	s.OnJobError(func(name string, err error) { reported = name })

	require.NoError(t, s.Register(funcJob{name: "fail", fn: func(context.Context) error { return boom }}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "fail")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success())
	assert.True(t, res.Manual)
	assert.Equal(t, "fail", reported)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, s.SetEnabled("fail", false))
	assert.False(t, s.ListJobs()[0].Enabled)
	assert.Len(t, s.History(10), 1)
	assert.Equal(t, int64(1), s.Metrics().Snapshot().TotalFailures)
}
