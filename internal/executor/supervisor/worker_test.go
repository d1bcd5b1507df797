package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/executor/core"
	"auroraagent/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDiscardLogger()
	os.Exit(m.Run())
}

type eventLog struct {
	mu     sync.Mutex
	events []base.RecoveryEvent
}

func (l *eventLog) RecordRecovery(event base.RecoveryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) count(eventType base.RecoveryEventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func (l *eventLog) types() []base.RecoveryEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]base.RecoveryEventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

func TestWorker_CrashRecoveryPreservesQueue(t *testing.T) {
	queue := core.NewTaskQueue()
	for i := 0; i < 3; i++ {
		require.NoError(t, queue.PushBack(&base.Task{ID: fmt.Sprintf("t%d", i)}))
	}

	var invocations int32
	var mu sync.Mutex
	var processed []string
	loop := func(ctx context.Context) error {
		if atomic.AddInt32(&invocations, 1) == 1 {
			panic("driver exploded")
		}
		for {
			task, err := queue.Pop(ctx)
			if err != nil {
				return nil
			}
			mu.Lock()
			processed = append(processed, task.ID)
			mu.Unlock()
		}
	}

	events := &eventLog{}
	w := New(Options{Component: "input", Cooldown: 20 * time.Millisecond, Recorder: events}, loop)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"t0", "t1", "t2"}, processed)
	mu.Unlock()

	assert.Equal(t, 1, events.count(base.RecoveryCrashed))
	assert.Equal(t, 1, events.count(base.RecoveryRestarting))
	assert.Equal(t, []base.RecoveryEventType{base.RecoveryCrashed, base.RecoveryRestarting}, events.types())
	assert.Equal(t, 1, w.RestartCount())
	assert.Contains(t, w.LastError(), "driver exploded")
	assert.True(t, w.Running())

	events.mu.Lock()
	crashed := events.events[0]
	events.mu.Unlock()
	assert.Equal(t, "input", crashed.Component)
	assert.Equal(t, 1, crashed.RestartCount)
	assert.Contains(t, crashed.Detail, base.ErrExecutorCrash.Error())
}

func TestWorker_CooldownBetweenCrashAndRestart(t *testing.T) {
	var starts []time.Time
	var mu sync.Mutex
	loop := func(ctx context.Context) error {
		mu.Lock()
		starts = append(starts, time.Now())
		n := len(starts)
		mu.Unlock()
		if n == 1 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return nil
	}

	const cooldown = 100 * time.Millisecond
	w := New(Options{Component: "c", Cooldown: cooldown}, loop)
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), cooldown)
	assert.False(t, w.Running())
	assert.NoError(t, w.Err())
}

func TestWorker_StopDuringCooldown(t *testing.T) {
	events := &eventLog{}
	w := New(Options{Component: "c", Cooldown: time.Minute, Recorder: events}, func(ctx context.Context) error {
		return errors.New("always")
	})
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return events.count(base.RecoveryCrashed) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, 0, events.count(base.RecoveryRestarting))
}

func TestWorker_CleanStopRecordsNoEvents(t *testing.T) {
	events := &eventLog{}
	w := New(Options{Component: "c", Recorder: events}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
	<-w.Done()
	assert.Empty(t, events.types())
	assert.Equal(t, 0, w.RestartCount())
}

func TestWorker_CircuitBreaker(t *testing.T) {
	events := &eventLog{}
	w := New(Options{
		Component:     "input",
		Cooldown:      time.Millisecond,
		MaxRestarts:   2,
		RestartWindow: time.Minute,
		Recorder:      events,
	}, func(ctx context.Context) error {
		return errors.New("systemic fault")
	})

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, base.ErrCircuitOpen)
	assert.True(t, w.CircuitOpen())
	assert.False(t, w.Running())
	assert.Equal(t, 3, events.count(base.RecoveryCrashed))
	assert.Equal(t, 2, events.count(base.RecoveryRestarting))
	assert.Equal(t, 1, events.count(base.RecoveryCircuitOpen))
}

func TestWorker_UnlimitedRestartsByDefault(t *testing.T) {
	var calls int32
	w := New(Options{Component: "c", Cooldown: time.Millisecond}, func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 10 {
			return errors.New("again")
		}
		<-ctx.Done()
		return nil
	})
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 10 }, 2*time.Second, time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, 9, w.RestartCount())
	assert.False(t, w.CircuitOpen())
}
