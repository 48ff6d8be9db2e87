package messaging

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testEvent struct {
	shared.BaseEvent
}

func (testEvent) Payload() map[string]interface{} { return nil }

func event(t shared.EventType) shared.Event {
	return testEvent{BaseEvent: shared.NewBaseEvent(t, "1001")}
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, EnableMetrics: true})
	defer bus.Close()

	var lessons, all atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(shared.Event) error {
		lessons.Add(1)
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(event(shared.EventLessonCompleted)))
	require.NoError(t, bus.Publish(event(shared.EventXPAwarded)))
	bus.Wait()

	assert.Equal(t, int32(1), lessons.Load())
	assert.Equal(t, int32(2), all.Load())

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(3), snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}

func TestInMemoryEventBus_HandlerErrorDoesNotReachPublisher(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error {
		return errors.New("boom")
	}))

	assert.NoError(t, bus.Publish(event(shared.EventXPAwarded)))
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(event(shared.EventXPAwarded)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_CloseWaitsForRunningHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 1})

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	require.NoError(t, bus.Publish(event(shared.EventXPAwarded)))
	<-started
	require.NoError(t, bus.Close())
	assert.True(t, finished.Load())
}

func TestMiddleware_RecoveryAndDeadLetter(t *testing.T) {
	dlq := NewDeadLetterQueue(2)
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		Middleware: []Middleware{
			DeadLetterMiddleware(dlq),
			RecoveryMiddleware(logger.Nop()),
			LoggingMiddleware(logger.Nop()),
		},
	})
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		panic("unexpected")
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(event(shared.EventLevelUp)))
	}

	entries := dlq.Entries()
	require.Len(t, entries, 2)
	assert.ErrorIs(t, entries[0].Error, ErrHandlerPanic)
	assert.Equal(t, shared.EventLevelUp, entries[0].Event.EventType())
}

func TestRetryMiddleware(t *testing.T) {
	var calls atomic.Int32
	flaky := func(shared.Event) error {
		if calls.Add(1) < 3 {
			return shared.ErrServiceUnavailable
		}
		return nil
	}
	h := RetryMiddleware(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0))(flaky)
	require.NoError(t, h(event(shared.EventXPAwarded)))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	permanent := func(shared.Event) error {
		calls.Add(1)
		return shared.ErrInvalidInput
	}
	h = RetryMiddleware(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond))(permanent)
	assert.ErrorIs(t, h(event(shared.EventXPAwarded)), shared.ErrInvalidInput)
	assert.Equal(t, int32(1), calls.Load())
}
