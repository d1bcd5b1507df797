package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDiscardLogger()
	os.Exit(m.Run())
}

// ==================== 测试辅助 ====================

type bufferWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *bufferWriter) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *bufferWriter) Close() error { return nil }

func (b *bufferWriter) records(t *testing.T, taskID string) []audit.TaskRecord {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []audit.TaskRecord
	scanner := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for scanner.Scan() {
		var rec audit.TaskRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		if taskID == "" || rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	return out
}

func statuses(recs []audit.TaskRecord) []base.TaskStatus {
	out := make([]base.TaskStatus, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Status)
	}
	return out
}

// fakeInvoker 可编程的工具调用器
type fakeInvoker struct {
	mu        sync.Mutex
	calls     []time.Time
	prompts   []string
	active    int32
	maxActive int32
	fn        func(ctx context.Context, call int, payload base.Payload) (*Output, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, agent string, payload base.Payload) (*Output, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		old := atomic.LoadInt32(&f.maxActive)
		if n <= old || atomic.CompareAndSwapInt32(&f.maxActive, old, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	f.prompts = append(f.prompts, payload.Prompt)
	call := len(f.calls)
	f.mu.Unlock()

	if f.fn == nil {
		return &Output{Stdout: "ok " + payload.Prompt}, nil
	}
	return f.fn(ctx, call, payload)
}

func (f *fakeInvoker) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func (f *fakeInvoker) callPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func newTestExecutor(t *testing.T, opts Options) *AgentExecutor {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "toolA"
	}
	e, err := NewAgentExecutor(opts)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

func waitTerminal(t *testing.T, e *AgentExecutor, id string, timeout time.Duration) *base.Task {
	t.Helper()
	var got *base.Task
	require.Eventually(t, func() bool {
		task, err := e.Status(id)
		if err != nil {
			return false
		}
		got = task
		return task.Status.IsTerminal()
	}, timeout, 5*time.Millisecond)
	return got
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// ==================== 端到端 ====================

func TestAgentExecutor_EndToEndEcho(t *testing.T) {
	requireShell(t)
	mgr, err := audit.NewManager(audit.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	sink := mgr.Stream("toolA_audit")

	e := newTestExecutor(t, Options{
		Name:    "toolA",
		Invoker: NewProcessInvoker([]string{"sh"}, PromptModeStdin),
		Sink:    sink,
	})

	id, err := e.Submit(&base.Task{Agent: "toolA", Payload: base.Payload{Prompt: "echo test"}, TimeoutSeconds: 5})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task := waitTerminal(t, e, id, 10*time.Second)
	assert.Equal(t, base.TaskStatusCompleted, task.Status)
	assert.Equal(t, 0, task.RetryCount)
	require.NotNil(t, task.Result)
	assert.Equal(t, "test", task.Result.Output)
	assert.Empty(t, task.Result.ErrorDetail)

	require.NoError(t, mgr.Close())
	data, err := os.ReadFile(mgr.Path("toolA_audit"))
	require.NoError(t, err)

	completed := 0
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec audit.TaskRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, id, rec.TaskID)
		assert.Equal(t, audit.Fingerprint(base.Payload{Prompt: "echo test"}), rec.PayloadSHA256)
		if rec.Status == base.TaskStatusCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
	assert.NotContains(t, string(data), "echo test")
}

func TestAgentExecutor_TimeoutScenario(t *testing.T) {
	requireShell(t)
	e := newTestExecutor(t, Options{
		Invoker:    NewProcessInvoker([]string{"sh"}, PromptModeStdin),
		MaxRetries: 0,
	})

	start := time.Now()
	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "sleep 10"}, TimeoutSeconds: 1})
	require.NoError(t, err)

	task := waitTerminal(t, e, id, 8*time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, base.TaskStatusFailed, task.Status)
	assert.Less(t, elapsed, 5*time.Second, "process must be killed at the deadline")
	require.NotNil(t, task.Result)
	require.NotNil(t, task.Result.ExitCode)
	assert.Equal(t, ExitCodeTimeout, *task.Result.ExitCode)
	assert.Contains(t, task.Result.ErrorDetail, base.ErrRetriesExhausted.Error())
	assert.Contains(t, task.Result.ErrorDetail, base.ErrTimeout.Error())
}

// ==================== 并发闸门 ====================

func TestAgentExecutor_ConcurrencyBound(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		time.Sleep(2 * time.Millisecond)
		return &Output{Stdout: "done"}, nil
	}}
	e := newTestExecutor(t, Options{Invoker: inv, HistorySize: 100})

	const burst = 50
	ids := make([]string, 0, burst)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: fmt.Sprintf("p%d", i)}})
			assert.NoError(t, err)
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// 观察者：任意时刻最多一个任务处于 running
	stop := make(chan struct{})
	violations := int32(0)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			running := 0
			for _, id := range ids {
				if task, err := e.Status(id); err == nil && task.Status == base.TaskStatusRunning {
					running++
				}
			}
			if running > 1 {
				atomic.AddInt32(&violations, 1)
			}
		}
	}()

	for _, id := range ids {
		waitTerminal(t, e, id, 10*time.Second)
	}
	close(stop)

	assert.Equal(t, int32(1), atomic.LoadInt32(&inv.maxActive))
	assert.Zero(t, atomic.LoadInt32(&violations))
	assert.Len(t, e.List(0), burst)
}

func TestAgentExecutor_GateCapacityAllowsParallelism(t *testing.T) {
	release := make(chan struct{})
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		<-release
		return &Output{Stdout: "done"}, nil
	}}
	e := newTestExecutor(t, Options{Invoker: inv, GateCapacity: 3})

	for i := 0; i < 3; i++ {
		_, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "p"}})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inv.active) == 3 }, 2*time.Second, 5*time.Millisecond)
	close(release)
}

// ==================== 重试 ====================

func TestAgentExecutor_RetryBound(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		return &Output{Stderr: "resource busy", ExitCode: 75}, base.NewRetryableError(75, "resource busy", nil)
	}}
	buf := &bufferWriter{}
	e := newTestExecutor(t, Options{
		Invoker:     inv,
		MaxRetries:  2,
		BackoffBase: 10 * time.Millisecond,
		Sink:        audit.NewSink("toolA", buf, nil),
	})

	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "flaky"}})
	require.NoError(t, err)
	task := waitTerminal(t, e, id, 5*time.Second)

	assert.Equal(t, base.TaskStatusFailed, task.Status)
	assert.Equal(t, 2, task.RetryCount)
	assert.Equal(t, 2, task.Result.RetryCount)
	assert.Len(t, inv.callTimes(), 3, "attempts = maxRetries + 1")
	assert.Contains(t, task.Result.ErrorDetail, base.ErrRetriesExhausted.Error())

	assert.Equal(t, []base.TaskStatus{
		base.TaskStatusQueued,
		base.TaskStatusRunning,
		base.TaskStatusRetrying,
		base.TaskStatusRunning,
		base.TaskStatusRetrying,
		base.TaskStatusRunning,
		base.TaskStatusFailed,
	}, statuses(buf.records(t, id)))

	health := e.Health()
	assert.Equal(t, int64(3), health.ErrorCount)
	assert.Contains(t, health.LastError, "resource busy")
}

func TestAgentExecutor_BackoffMonotonic(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		return nil, base.NewRetryableError(1, "transient", nil)
	}}
	const backoffBase = 100 * time.Millisecond
	e := newTestExecutor(t, Options{Invoker: inv, MaxRetries: 2, BackoffBase: backoffBase})

	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "x"}})
	require.NoError(t, err)
	waitTerminal(t, e, id, 5*time.Second)

	calls := inv.callTimes()
	require.Len(t, calls, 3)
	first := calls[1].Sub(calls[0])
	second := calls[2].Sub(calls[1])
	assert.GreaterOrEqual(t, first, backoffBase)
	assert.GreaterOrEqual(t, second, 2*backoffBase)
	assert.GreaterOrEqual(t, second, first)
}

func TestAgentExecutor_RetryResumesBeforeFreshSubmissions(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		if call == 1 {
			close(started)
			<-release
			return nil, base.NewRetryableError(1, "busy", nil)
		}
		return &Output{Stdout: payload.Prompt}, nil
	}}
	e := newTestExecutor(t, Options{Invoker: inv, MaxRetries: 1, BackoffBase: 10 * time.Millisecond})

	idA, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "A"}})
	require.NoError(t, err)
	<-started
	_, err = e.Submit(&base.Task{Payload: base.Payload{Prompt: "B"}})
	require.NoError(t, err)
	idC, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "C"}})
	require.NoError(t, err)
	close(release)

	waitTerminal(t, e, idC, 5*time.Second)
	assert.Equal(t, []string{"A", "A", "B", "C"}, inv.callPrompts())

	taskA, err := e.Status(idA)
	require.NoError(t, err)
	assert.Equal(t, base.TaskStatusCompleted, taskA.Status)
	assert.Equal(t, 1, taskA.RetryCount)
}

func TestAgentExecutor_TerminalFailureSkipsRetry(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		return nil, base.NewTerminalError(127, "binary not found", nil)
	}}
	e := newTestExecutor(t, Options{Invoker: inv, MaxRetries: 2, BackoffBase: time.Millisecond})

	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "x"}})
	require.NoError(t, err)
	task := waitTerminal(t, e, id, 2*time.Second)

	assert.Equal(t, base.TaskStatusError, task.Status)
	assert.Equal(t, 0, task.RetryCount)
	assert.Len(t, inv.callTimes(), 1)
	assert.Contains(t, task.Result.ErrorDetail, "binary not found")
	assert.Empty(t, task.Result.Output)
}

// ==================== 历史环与状态查询 ====================

func TestAgentExecutor_HistoryBoundAndEviction(t *testing.T) {
	const capacity = 5
	e := newTestExecutor(t, Options{Invoker: &fakeInvoker{}, HistorySize: capacity})

	ids := make([]string, 0, capacity+5)
	for i := 0; i < capacity+5; i++ {
		id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: fmt.Sprintf("p%d", i)}})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	waitTerminal(t, e, ids[len(ids)-1], 5*time.Second)

	recent := e.List(capacity)
	require.Len(t, recent, capacity)
	for i, task := range recent {
		assert.Equal(t, ids[len(ids)-1-i], task.ID, "newest first")
	}
	assert.Len(t, e.List(100), capacity)

	_, err := e.Status(ids[0])
	assert.ErrorIs(t, err, base.ErrNotFound)
}

func TestAgentExecutor_StatusIsIdempotent(t *testing.T) {
	e := newTestExecutor(t, Options{Invoker: &fakeInvoker{}})
	id, err := e.Submit(&base.Task{
		Payload:  base.Payload{Prompt: "hello"},
		Metadata: map[string]string{"operator": "alice"},
	})
	require.NoError(t, err)
	waitTerminal(t, e, id, 2*time.Second)

	first, err := e.Status(id)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	// 修改返回的副本不影响后续读取
	first.Metadata["operator"] = "mallory"
	first.Result.Output = "tampered"

	for i := 0; i < 5; i++ {
		again, err := e.Status(id)
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON))
	}

	_, err = e.Status("never-existed")
	assert.ErrorIs(t, err, base.ErrNotFound)
}

// ==================== 提交校验与生命周期 ====================

func TestAgentExecutor_SubmitValidation(t *testing.T) {
	e, err := NewAgentExecutor(Options{Name: "toolA", Invoker: &fakeInvoker{}})
	require.NoError(t, err)

	_, err = e.Submit(&base.Task{Agent: "toolB", Payload: base.Payload{Prompt: "x"}})
	assert.ErrorIs(t, err, base.ErrUnknownAgent)

	id, err := e.Submit(&base.Task{ID: "fixed", Payload: base.Payload{Prompt: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)
	_, err = e.Submit(&base.Task{ID: "fixed", Payload: base.Payload{Prompt: "x"}})
	assert.Error(t, err)

	// 未启动时任务保持排队
	task, err := e.Status("fixed")
	require.NoError(t, err)
	assert.Equal(t, base.TaskStatusQueued, task.Status)
	assert.Nil(t, task.Result)
	assert.Equal(t, 1, e.Health().QueueDepth)
	assert.Equal(t, base.LivenessStopped, e.Health().Running)

	require.NoError(t, e.Stop(context.Background()))
	_, err = e.Submit(&base.Task{Payload: base.Payload{Prompt: "x"}})
	assert.ErrorIs(t, err, base.ErrExecutorStopped)
	assert.Error(t, e.Start(context.Background()))

	_, err = NewAgentExecutor(Options{Name: "x"})
	assert.Error(t, err)
}

func TestAgentExecutor_StopWaitsForInFlight(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		time.Sleep(100 * time.Millisecond)
		return &Output{Stdout: "done"}, nil
	}}
	e, err := NewAgentExecutor(Options{Name: "toolA", Invoker: inv})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, base.LivenessAlive, e.Health().Running)

	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "x"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inv.active) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))

	task, err := e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, base.TaskStatusCompleted, task.Status)
	assert.Equal(t, base.LivenessStopped, e.Health().Running)
}

func TestAgentExecutor_StopDuringBackoffFinishesTask(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		if payload.Prompt == "busy" {
			return nil, base.NewRetryableError(1, "resource busy", nil)
		}
		return &Output{Stdout: "ok"}, nil
	}}
	buf := &bufferWriter{}
	e, err := NewAgentExecutor(Options{
		Name:        "toolA",
		Invoker:     inv,
		MaxRetries:  2,
		BackoffBase: 5 * time.Second,
		Sink:        audit.NewSink("toolA_audit", buf, nil),
	})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "busy"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		task, err := e.Status(id)
		return err == nil && task.Status == base.TaskStatusRetrying
	}, time.Second, 5*time.Millisecond)

	// 退避期间排在后面的任务
	behind, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "later"}})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, e.Stop(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second, "stop interrupts the backoff")

	task, err := e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, base.TaskStatusError, task.Status)
	require.NotNil(t, task.Result)
	assert.Contains(t, task.Result.ErrorDetail, base.ErrExecutorStopped.Error())
	assert.Equal(t, 1, task.RetryCount)

	queued, err := e.Status(behind)
	require.NoError(t, err)
	assert.Equal(t, base.TaskStatusError, queued.Status)
	require.NotNil(t, queued.Result)

	health := e.Health()
	assert.Zero(t, health.QueueDepth)
	assert.Zero(t, health.InFlight)
	assert.Len(t, inv.callTimes(), 1)

	assert.Equal(t, []base.TaskStatus{base.TaskStatusQueued, base.TaskStatusRunning, base.TaskStatusRetrying, base.TaskStatusError},
		statuses(buf.records(t, id)))
	assert.Equal(t, []base.TaskStatus{base.TaskStatusQueued, base.TaskStatusError}, statuses(buf.records(t, behind)))
}

func TestAgentExecutor_QueuedAuditPrecedesRunning(t *testing.T) {
	buf := &bufferWriter{}
	e := newTestExecutor(t, Options{
		Invoker:      &fakeInvoker{},
		GateCapacity: 4,
		Sink:         audit.NewSink("toolA_audit", buf, nil),
	})

	var wg sync.WaitGroup
	ids := make(chan string, 200)
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "x"}})
				if assert.NoError(t, err) {
					ids <- id
				}
			}
		}()
	}
	wg.Wait()
	close(ids)

	for id := range ids {
		waitTerminal(t, e, id, 5*time.Second)
		got := statuses(buf.records(t, id))
		require.NotEmpty(t, got)
		assert.Equal(t, base.TaskStatusQueued, got[0], "task %s", id)
	}
}

func TestAgentExecutor_StopDeadlineCancelsInvocation(t *testing.T) {
	inv := &fakeInvoker{fn: func(ctx context.Context, call int, payload base.Payload) (*Output, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: invocation cancelled", base.ErrExecutorStopped)
	}}
	e, err := NewAgentExecutor(Options{Name: "toolA", Invoker: inv, MaxRetries: 2})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "x"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inv.active) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Stop(ctx), context.DeadlineExceeded)

	task, err := e.Status(id)
	require.NoError(t, err)
	assert.Equal(t, base.TaskStatusError, task.Status)
}

// ==================== 扩展审计与单任务日志 ====================

func TestAgentExecutor_RichAuditAndTaskLog(t *testing.T) {
	requireShell(t)
	buf := &bufferWriter{}
	logDir := t.TempDir()
	e := newTestExecutor(t, Options{
		Invoker:    NewProcessInvoker([]string{"sh"}, PromptModeStdin),
		RichAudit:  true,
		TaskLogDir: logDir,
		Sink:       audit.NewSink("toolA", buf, nil),
	})

	id, err := e.Submit(&base.Task{Payload: base.Payload{Prompt: "echo one; echo two; echo oops >&2"}})
	require.NoError(t, err)
	waitTerminal(t, e, id, 5*time.Second)

	recs := buf.records(t, id)
	last := recs[len(recs)-1]
	assert.Equal(t, base.TaskStatusCompleted, last.Status)
	require.NotNil(t, last.ExitCode)
	assert.Equal(t, 0, *last.ExitCode)
	require.NotNil(t, last.StdoutLines)
	assert.Equal(t, 2, *last.StdoutLines)
	require.NotNil(t, last.StderrLines)
	assert.Equal(t, 1, *last.StderrLines)
	assert.Equal(t, "echo one; echo two; echo oops >&2", last.InputSummary)

	data, err := os.ReadFile(TaskLogPath(logDir, id))
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== STDOUT ===\none\ntwo")
	assert.Contains(t, string(data), "=== STDERR ===\noops")
	assert.Contains(t, string(data), "=== RESULT ===")
}

// ==================== 进程调用器 ====================

func TestProcessInvoker_Classification(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	out, err := NewProcessInvoker([]string{"sh"}, "").Invoke(ctx, "toolA", base.Payload{Prompt: "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.Stdout)
	assert.Equal(t, 0, out.ExitCode)

	out, err = NewProcessInvoker([]string{"sh", "-c"}, PromptModeArg).Invoke(ctx, "toolA", base.Payload{Prompt: "echo arg"})
	require.NoError(t, err)
	assert.Equal(t, "arg\n", out.Stdout)

	_, err = NewProcessInvoker([]string{"sh"}, "").Invoke(ctx, "toolA", base.Payload{Prompt: "echo busy >&2; exit 3"})
	require.Error(t, err)
	assert.ErrorIs(t, err, base.ErrToolFailure)
	assert.True(t, base.IsRetryable(err))
	assert.Contains(t, err.Error(), "busy")

	_, err = NewProcessInvoker([]string{"sh"}, "").Invoke(ctx, "toolA", base.Payload{Prompt: "exit 127"})
	require.Error(t, err)
	assert.False(t, base.IsRetryable(err))

	_, err = NewProcessInvoker([]string{"definitely-not-a-real-binary-aurora"}, "").Invoke(ctx, "toolA", base.Payload{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, base.ErrToolFailure)
	assert.False(t, base.IsRetryable(err))

	_, err = NewProcessInvoker([]string{"sh"}, "").Invoke(ctx, "toolA", base.Payload{Prompt: "  "})
	assert.ErrorIs(t, err, base.ErrInvalidPayload)

	_, err = NewProcessInvoker(nil, "").Invoke(ctx, "toolA", base.Payload{Prompt: "x"})
	assert.False(t, base.IsRetryable(err))
}

func TestProcessInvoker_TimeoutKillsProcessGroup(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := NewProcessInvoker([]string{"sh"}, "").Invoke(ctx, "toolA", base.Payload{Prompt: "sleep 10; echo never"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, base.ErrTimeout)
	assert.True(t, base.IsRetryable(err))
	assert.Equal(t, ExitCodeTimeout, out.ExitCode)
	assert.NotContains(t, out.Stdout, "never")
}
