/**
 * 输入控制执行器
 * @author: sun977
 * @date: 2025.10.22
 * @description: 鼠标键盘动作的顺序执行器，消费循环由 supervisor 监督，崩溃后冷却重启且不丢失排队动作
 * @func: 操作员授权检查、单动作退避重试、急停中止、逐次状态迁移审计
 */
package input

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/executor/core"
	"auroraagent/internal/executor/supervisor"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/pkg/logger"
)

// Authorizer 操作员授权来源，config.OperatorGate 实现该接口
type Authorizer interface {
	Allowed() bool
}

// Options 输入控制执行器配置
type Options struct {
	Name          string
	Driver        ActionDriver
	Authorizer    Authorizer // nil 表示始终允许
	ActionTimeout time.Duration
	HistorySize   int
	MaxRetries    int
	RetryBase     time.Duration
	Cooldown      time.Duration
	MaxRestarts   int
	RestartWindow time.Duration
	Sink          *audit.Sink
	Recorder      base.RecoveryRecorder
	Errors        base.ErrorRecorder
}

// InputExecutor 输入控制执行器
type InputExecutor struct {
	opts    Options
	queue   *core.TaskQueue
	history *core.HistoryRing
	worker  *supervisor.Worker

	mu         sync.RWMutex
	tasks      map[string]*base.Task
	current    *base.Task // 正在执行的动作，循环崩溃后据此收尾
	stopped    bool
	errorCount int64
	lastError  string
}

// NewInputExecutor 创建输入控制执行器
func NewInputExecutor(opts Options) (*InputExecutor, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("input driver is required")
	}
	if opts.Name == "" {
		opts.Name = "input"
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 30 * time.Second
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 50
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}

	e := &InputExecutor{
		opts:    opts,
		queue:   core.NewTaskQueue(),
		history: core.NewHistoryRing(opts.HistorySize),
		tasks:   make(map[string]*base.Task),
	}
	e.worker = supervisor.New(supervisor.Options{
		Component:     opts.Name,
		Cooldown:      opts.Cooldown,
		MaxRestarts:   opts.MaxRestarts,
		RestartWindow: opts.RestartWindow,
		Recorder:      opts.Recorder,
	}, e.loop)
	return e, nil
}

// NewTaskID 输入任务ID：input_ 加12位十六进制
func NewTaskID() string {
	id := uuid.New()
	return "input_" + hex.EncodeToString(id[:6])
}

// ==================== 基础信息 ====================

// Name 代理标识
func (e *InputExecutor) Name() string {
	return e.opts.Name
}

// Type 执行器类型
func (e *InputExecutor) Type() base.ExecutorType {
	return base.ExecutorTypeInput
}

// ==================== 生命周期管理 ====================

// Start 启动受监督的消费循环
func (e *InputExecutor) Start(ctx context.Context) error {
	e.mu.RLock()
	stopped := e.stopped
	e.mu.RUnlock()
	if stopped {
		return fmt.Errorf("executor %s: %w", e.opts.Name, base.ErrExecutorStopped)
	}
	if err := e.worker.Start(ctx); err != nil {
		return err
	}
	logger.LogSystemEvent("executor", "started", fmt.Sprintf("Input executor %s started with %s driver", e.opts.Name, e.opts.Driver.Name()), logger.InfoLevel, map[string]interface{}{
		"agent":       e.opts.Name,
		"driver":      e.opts.Driver.Name(),
		"max_retries": e.opts.MaxRetries,
	})
	return nil
}

// Stop 停止消费循环，排队中的动作不再执行，记为 error
func (e *InputExecutor) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	err := e.worker.Stop(ctx)
	e.queue.Close()
	if err == nil {
		// 循环已退出，剩余动作不会再被取走
		for {
			task, popErr := e.queue.Pop(context.Background())
			if popErr != nil {
				break
			}
			e.finish(task, base.TaskStatusError, fmt.Errorf("%w: not started before shutdown", base.ErrExecutorStopped))
		}
	}
	logger.LogSystemEvent("executor", "stopped", fmt.Sprintf("Input executor %s stopped", e.opts.Name), logger.InfoLevel, map[string]interface{}{
		"agent":       e.opts.Name,
		"queue_depth": e.queue.Len(),
	})
	return err
}

// ==================== 任务管理 ====================

// Submit 入队并立即返回任务ID；操作员未授权时拒绝
func (e *InputExecutor) Submit(task *base.Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("%w: task is nil", base.ErrInvalidPayload)
	}
	if task.Agent != "" && task.Agent != e.opts.Name {
		return "", fmt.Errorf("%w: %s is not handled by %s", base.ErrUnknownAgent, task.Agent, e.opts.Name)
	}
	if !e.allowed() {
		return "", fmt.Errorf("%s: %w", e.opts.Name, base.ErrOperatorDisabled)
	}

	t := task.Clone()
	t.Agent = e.opts.Name
	if t.ID == "" {
		t.ID = NewTaskID()
	}
	t.Status = base.TaskStatusQueued
	t.RetryCount = 0
	t.StartedAt = nil
	t.Result = nil
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return "", fmt.Errorf("executor %s: %w", e.opts.Name, base.ErrExecutorStopped)
	}
	if _, exists := e.tasks[t.ID]; exists {
		e.mu.Unlock()
		return "", fmt.Errorf("task %s already exists", t.ID)
	}
	if err := e.queue.PushBack(t); err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.tasks[t.ID] = t
	// 持锁写入，queued 记录总在循环的 running 记录之前
	e.audit(e.record(t, 0))
	e.mu.Unlock()

	return t.ID, nil
}

// Status 查询非终态任务或历史环
func (e *InputExecutor) Status(taskID string) (*base.Task, error) {
	e.mu.RLock()
	if t, ok := e.tasks[taskID]; ok {
		c := t.Clone()
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	if t, ok := e.history.Get(taskID); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", base.ErrNotFound, taskID)
}

// List 最近的终态任务，新的在前
func (e *InputExecutor) List(limit int) []*base.Task {
	return e.history.Recent(limit)
}

// ==================== 健康检查 ====================

// Health 非阻塞健康快照
func (e *InputExecutor) Health() base.ExecutorHealth {
	running := e.worker.Running()

	e.mu.RLock()
	defer e.mu.RUnlock()
	inFlight := 0
	if e.current != nil {
		inFlight = 1
	}
	lastError := e.lastError
	if e.worker.CircuitOpen() {
		lastError = e.worker.LastError()
	}
	return base.ExecutorHealth{
		Agent:        e.opts.Name,
		Type:         base.ExecutorTypeInput,
		Running:      base.LivenessOf(running),
		Available:    running && e.allowed(),
		QueueDepth:   e.queue.Len(),
		InFlight:     inFlight,
		ErrorCount:   e.errorCount,
		RestartCount: e.worker.RestartCount(),
		LastError:    lastError,
	}
}

// ==================== 消费循环 ====================

// loop 被监督的消费循环；动作级错误在内部处理，只有 panic 等意外故障会逃逸
func (e *InputExecutor) loop(ctx context.Context) error {
	e.abandonCurrent()
	for ctx.Err() == nil {
		task, err := e.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, core.ErrQueueClosed) {
				return err
			}
			return nil
		}
		e.process(ctx, task)
	}
	return nil
}

// abandonCurrent 上一轮循环崩溃时正在执行的动作记为 error，不重放物理输入
func (e *InputExecutor) abandonCurrent() {
	e.mu.RLock()
	task := e.current
	e.mu.RUnlock()
	if task == nil {
		return
	}
	e.finish(task, base.TaskStatusError, fmt.Errorf("%w: action interrupted", base.ErrExecutorCrash))
}

func (e *InputExecutor) process(ctx context.Context, task *base.Task) {
	e.mu.Lock()
	e.current = task
	task.Status = base.TaskStatusRunning
	now := time.Now()
	task.StartedAt = &now
	rec := e.record(task, 0)
	e.mu.Unlock()
	e.audit(rec)

	action, err := ParseAction(task.Payload)
	if err != nil {
		e.noteError(task, err)
		e.finish(task, base.TaskStatusError, err)
		return
	}

	for {
		if !e.allowed() {
			err = fmt.Errorf("%s: %w", e.opts.Name, base.ErrOperatorDisabled)
			e.noteError(task, err)
			e.finish(task, base.TaskStatusError, err)
			return
		}

		attemptStart := time.Now()
		actx, cancel := context.WithTimeout(ctx, task.Timeout(e.opts.ActionTimeout))
		err = e.opts.Driver.Perform(actx, action)
		cancel()
		if err == nil {
			e.finish(task, base.TaskStatusCompleted, nil)
			logger.Debugf("input action %s performed", action)
			return
		}
		if ctx.Err() != nil {
			e.finish(task, base.TaskStatusError, fmt.Errorf("%w: %v", base.ErrExecutorStopped, err))
			return
		}

		e.noteError(task, err)
		switch {
		case errors.Is(err, base.ErrAbortSignal):
			// 急停：立即失败，不重试，也不触发循环重启
			e.finish(task, base.TaskStatusFailed, err)
			return
		case !retryableAction(err):
			e.finish(task, base.TaskStatusError, err)
			return
		case task.RetryCount >= e.opts.MaxRetries:
			e.finish(task, base.TaskStatusFailed, fmt.Errorf("%w after %d retries: %v", base.ErrRetriesExhausted, task.RetryCount, err))
			return
		}

		e.mu.Lock()
		task.RetryCount++
		task.Status = base.TaskStatusRetrying
		rec := e.record(task, time.Since(attemptStart).Milliseconds())
		rec.ErrorDetail = err.Error()
		e.mu.Unlock()
		e.audit(rec)

		if core.Sleep(ctx, core.Backoff(e.opts.RetryBase, task.RetryCount)) != nil {
			e.finish(task, base.TaskStatusError, fmt.Errorf("%w: stopped during retry backoff", base.ErrExecutorStopped))
			return
		}

		e.mu.Lock()
		task.Status = base.TaskStatusRunning
		rec = e.record(task, 0)
		e.mu.Unlock()
		e.audit(rec)
	}
}

// retryableAction 设备动作默认可重试，中止、无效参数、未授权、终止类工具错误除外
func retryableAction(err error) bool {
	if errors.Is(err, base.ErrAbortSignal) || errors.Is(err, base.ErrInvalidPayload) || errors.Is(err, base.ErrOperatorDisabled) {
		return false
	}
	var toolErr *base.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Retryable
	}
	return true
}

func (e *InputExecutor) finish(task *base.Task, status base.TaskStatus, cause error) {
	finished := time.Now()

	e.mu.Lock()
	started := finished
	if task.StartedAt != nil {
		started = *task.StartedAt
	}
	result := &base.TaskResult{
		Status:     status,
		RetryCount: task.RetryCount,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: finished.Sub(started).Milliseconds(),
	}
	if cause != nil {
		result.ErrorDetail = cause.Error()
	} else {
		result.Output = fmt.Sprintf("%s performed", task.Payload.Action)
	}
	task.Status = status
	task.Result = result
	rec := e.record(task, result.DurationMs)
	e.history.Add(task)
	delete(e.tasks, task.ID)
	if e.current == task {
		e.current = nil
	}
	e.mu.Unlock()

	e.audit(rec)
	logger.LogTaskTransition(e.opts.Name, task.ID, string(status), task.RetryCount, result.DurationMs, map[string]interface{}{
		"action": task.Payload.Action,
	})
}

func (e *InputExecutor) noteError(task *base.Task, err error) {
	e.mu.Lock()
	e.errorCount++
	e.lastError = err.Error()
	e.mu.Unlock()

	if e.opts.Errors != nil {
		e.opts.Errors.RecordError(e.opts.Name, err)
	}
	logger.LogError("executor", err, map[string]interface{}{
		"agent":   e.opts.Name,
		"task_id": task.ID,
		"action":  task.Payload.Action,
	})
}

// record 构造审计记录，调用方持有 mu
func (e *InputExecutor) record(task *base.Task, durationMs int64) *audit.TaskRecord {
	rec := audit.NewTaskRecord(task, durationMs)
	meta := make(map[string]string, len(task.Metadata)+1)
	for k, v := range task.Metadata {
		meta[k] = v
	}
	meta["action"] = task.Payload.Action
	rec.Metadata = meta
	return rec
}

func (e *InputExecutor) audit(rec *audit.TaskRecord) {
	if e.opts.Sink != nil {
		e.opts.Sink.Write(rec)
	}
}

func (e *InputExecutor) allowed() bool {
	return e.opts.Authorizer == nil || e.opts.Authorizer.Allowed()
}
