/**
 * CLI代理执行器
 * @author: sun977
 * @date: 2025.10.21
 * @description: 每个CLI代理一个执行器，独占任务队列、并发闸门与历史环
 * @func: 提交、超时、指数退避重试（队首重入）、逐次状态迁移审计
 */
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/executor/core"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/pkg/logger"
)

// Options CLI执行器配置
type Options struct {
	Name         string
	Invoker      ToolInvoker
	Timeout      time.Duration // 任务未指定超时时的默认值
	MaxRetries   int
	BackoffBase  time.Duration
	GateCapacity int // 并发消费者数量，默认1
	HistorySize  int
	RichAudit    bool   // 写入退出码、行数、输入摘要
	TaskLogDir   string // 非空时为每个终态任务写入单独日志
	Sink         *audit.Sink
	Errors       base.ErrorRecorder
}

// AgentExecutor CLI代理执行器
type AgentExecutor struct {
	opts    Options
	queue   *core.TaskQueue
	history *core.HistoryRing

	// 非终态任务（排队、运行、等待重试），所有字段修改都在 mu 下进行
	mu         sync.RWMutex
	tasks      map[string]*base.Task
	running    bool
	stopped    bool
	errorCount int64
	lastError  string

	loopCtx    context.Context
	loopCancel context.CancelFunc
	execCtx    context.Context
	execCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewAgentExecutor 创建CLI执行器
func NewAgentExecutor(opts Options) (*AgentExecutor, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if opts.Invoker == nil {
		return nil, fmt.Errorf("invoker is required for agent %s", opts.Name)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.GateCapacity < 1 {
		opts.GateCapacity = 1
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 20
	}

	return &AgentExecutor{
		opts:    opts,
		queue:   core.NewTaskQueue(),
		history: core.NewHistoryRing(opts.HistorySize),
		tasks:   make(map[string]*base.Task),
	}, nil
}

// ==================== 基础信息 ====================

// Name 代理标识
func (e *AgentExecutor) Name() string {
	return e.opts.Name
}

// Type 执行器类型
func (e *AgentExecutor) Type() base.ExecutorType {
	return base.ExecutorTypeCLI
}

// ==================== 生命周期管理 ====================

// Start 启动消费协程
func (e *AgentExecutor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("executor %s is already running", e.opts.Name)
	}
	if e.stopped {
		return fmt.Errorf("executor %s: %w", e.opts.Name, base.ErrExecutorStopped)
	}

	e.loopCtx, e.loopCancel = context.WithCancel(ctx)
	// 在途调用不随 ctx 取消，由 Stop 控制
	e.execCtx, e.execCancel = context.WithCancel(context.Background())
	e.running = true

	for i := 0; i < e.opts.GateCapacity; i++ {
		e.wg.Add(1)
		go e.consume()
	}

	logger.LogSystemEvent("executor", "started", fmt.Sprintf("CLI executor %s started", e.opts.Name), logger.InfoLevel, map[string]interface{}{
		"agent":         e.opts.Name,
		"gate_capacity": e.opts.GateCapacity,
		"max_retries":   e.opts.MaxRetries,
	})
	return nil
}

// Stop 停止取新任务，等待在途任务结束；ctx 到期后强制终止在途调用
func (e *AgentExecutor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.stopped = true
		e.mu.Unlock()
		e.drainStopped()
		return nil
	}
	e.running = false
	e.stopped = true
	e.mu.Unlock()

	e.loopCancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		e.execCancel()
		<-done
	}
	e.execCancel()
	e.drainStopped()

	logger.LogSystemEvent("executor", "stopped", fmt.Sprintf("CLI executor %s stopped", e.opts.Name), logger.InfoLevel, map[string]interface{}{
		"agent":       e.opts.Name,
		"queue_depth": e.queue.Len(),
	})
	return err
}

// ==================== 任务管理 ====================

// Submit 入队并立即返回任务ID
func (e *AgentExecutor) Submit(task *base.Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("%w: task is nil", base.ErrInvalidPayload)
	}
	if task.Agent != "" && task.Agent != e.opts.Name {
		return "", fmt.Errorf("%w: %s is not handled by %s", base.ErrUnknownAgent, task.Agent, e.opts.Name)
	}

	t := task.Clone()
	t.Agent = e.opts.Name
	if t.ID == "" {
		t.ID = uuid.NewString()
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
	// 持锁写入，queued 记录总在消费者的 running 记录之前
	e.audit(e.record(t, 0, nil))
	e.mu.Unlock()

	return t.ID, nil
}

// Status 查询非终态任务或历史环
func (e *AgentExecutor) Status(taskID string) (*base.Task, error) {
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
func (e *AgentExecutor) List(limit int) []*base.Task {
	return e.history.Recent(limit)
}

// ==================== 健康检查 ====================

// Health 非阻塞健康快照
func (e *AgentExecutor) Health() base.ExecutorHealth {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inFlight := 0
	for _, t := range e.tasks {
		if t.Status == base.TaskStatusRunning || t.Status == base.TaskStatusRetrying {
			inFlight++
		}
	}
	return base.ExecutorHealth{
		Agent:      e.opts.Name,
		Type:       base.ExecutorTypeCLI,
		Running:    base.LivenessOf(e.running),
		Available:  e.running,
		QueueDepth: e.queue.Len(),
		InFlight:   inFlight,
		ErrorCount: e.errorCount,
		LastError:  e.lastError,
	}
}

// ==================== 消费循环 ====================

func (e *AgentExecutor) consume() {
	defer e.wg.Done()
	for e.loopCtx.Err() == nil {
		task, err := e.queue.Pop(e.loopCtx)
		if err != nil {
			return
		}
		e.process(task)
	}
}

// process 执行一次尝试，并决定完成、重试或终止
func (e *AgentExecutor) process(task *base.Task) {
	attemptStart := time.Now()

	e.mu.Lock()
	task.Status = base.TaskStatusRunning
	if task.StartedAt == nil {
		started := attemptStart
		task.StartedAt = &started
	}
	rec := e.record(task, 0, nil)
	e.mu.Unlock()
	e.audit(rec)

	ctx, cancel := context.WithTimeout(e.execCtx, task.Timeout(e.opts.Timeout))
	out, err := e.opts.Invoker.Invoke(ctx, e.opts.Name, task.Payload)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = base.NewRetryableError(ExitCodeTimeout, "deadline exceeded", base.ErrTimeout)
	} else if err != nil && !isToolError(err) && errors.Is(err, context.DeadlineExceeded) {
		err = base.NewRetryableError(ExitCodeTimeout, "deadline exceeded", errors.Join(base.ErrTimeout, err))
	}
	cancel()

	if err == nil {
		e.finish(task, base.TaskStatusCompleted, out, nil)
		return
	}

	e.noteError(task, err)

	retryable := base.IsRetryable(err)
	e.mu.RLock()
	canRetry := retryable && task.RetryCount < e.opts.MaxRetries
	e.mu.RUnlock()

	switch {
	case canRetry:
		e.retry(task, out, err, time.Since(attemptStart))
	case retryable:
		e.finish(task, base.TaskStatusFailed, out, fmt.Errorf("%w after %d retries: %v", base.ErrRetriesExhausted, task.RetryCount, err))
	default:
		e.finish(task, base.TaskStatusError, out, err)
	}
}

// retry 退避后把任务放回队首
func (e *AgentExecutor) retry(task *base.Task, out *Output, cause error, attempt time.Duration) {
	e.mu.Lock()
	task.RetryCount++
	task.Status = base.TaskStatusRetrying
	rec := e.record(task, attempt.Milliseconds(), out)
	rec.ErrorDetail = cause.Error()
	delay := core.Backoff(e.opts.BackoffBase, task.RetryCount)
	e.mu.Unlock()
	e.audit(rec)

	logger.WithFields(map[string]interface{}{
		"agent":       e.opts.Name,
		"task_id":     task.ID,
		"retry_count": task.RetryCount,
		"backoff_ms":  delay.Milliseconds(),
	}).Warnf("Task %s will be retried: %v", task.ID, cause)

	if err := core.Sleep(e.loopCtx, delay); err != nil {
		e.finish(task, base.TaskStatusError, out, fmt.Errorf("%w: stopped during retry backoff", base.ErrExecutorStopped))
		return
	}
	if err := e.queue.PushFront(task); err != nil {
		e.finish(task, base.TaskStatusError, out, fmt.Errorf("%w: requeue failed: %v", base.ErrExecutorStopped, err))
	}
}

// drainStopped 关闭队列，停止时仍在排队的任务记为 error
func (e *AgentExecutor) drainStopped() {
	e.queue.Close()
	for {
		task, err := e.queue.Pop(context.Background())
		if err != nil {
			return
		}
		e.finish(task, base.TaskStatusError, nil, fmt.Errorf("%w: not started before shutdown", base.ErrExecutorStopped))
	}
}

// finish 进入终态：写结果、审计、单任务日志，移入历史环
func (e *AgentExecutor) finish(task *base.Task, status base.TaskStatus, out *Output, cause error) {
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
	if out != nil {
		code := out.ExitCode
		result.ExitCode = &code
	}
	if cause != nil {
		result.ErrorDetail = errorDetail(cause, out)
	} else if out != nil {
		result.Output = strings.TrimSpace(out.Stdout)
	}
	task.Status = status
	task.Result = result

	rec := e.record(task, result.DurationMs, out)
	e.history.Add(task)
	delete(e.tasks, task.ID)
	snapshot := task.Clone()
	e.mu.Unlock()

	e.audit(rec)
	if e.opts.TaskLogDir != "" {
		if err := writeTaskLog(e.opts.TaskLogDir, snapshot, out); err != nil {
			logger.LogError("executor", err, map[string]interface{}{"agent": e.opts.Name, "task_id": task.ID})
		}
	}
	logger.LogTaskTransition(e.opts.Name, task.ID, string(status), task.RetryCount, result.DurationMs, nil)
}

func (e *AgentExecutor) noteError(task *base.Task, err error) {
	e.mu.Lock()
	e.errorCount++
	e.lastError = err.Error()
	e.mu.Unlock()

	if e.opts.Errors != nil {
		e.opts.Errors.RecordError(e.opts.Name, err)
	}
	logger.LogError("executor", err, map[string]interface{}{
		"agent":       e.opts.Name,
		"task_id":     task.ID,
		"retry_count": task.RetryCount,
	})
}

// record 构造审计记录，调用方持有 mu
func (e *AgentExecutor) record(task *base.Task, durationMs int64, out *Output) *audit.TaskRecord {
	rec := audit.NewTaskRecord(task, durationMs)
	if task.Metadata != nil {
		rec.Metadata = make(map[string]string, len(task.Metadata))
		for k, v := range task.Metadata {
			rec.Metadata[k] = v
		}
	}
	if e.opts.RichAudit {
		rec.InputSummary = audit.Summarize(task.Payload.Prompt, 10)
		if out != nil {
			code := out.ExitCode
			stdoutLines := audit.CountLines(out.Stdout)
			stderrLines := audit.CountLines(out.Stderr)
			rec.ExitCode = &code
			rec.StdoutLines = &stdoutLines
			rec.StderrLines = &stderrLines
		}
	}
	return rec
}

func (e *AgentExecutor) audit(rec *audit.TaskRecord) {
	if e.opts.Sink != nil {
		e.opts.Sink.Write(rec)
	}
}

func isToolError(err error) bool {
	var toolErr *base.ToolError
	return errors.As(err, &toolErr)
}

// errorDetail 错误描述，附带标准错误输出的末尾
func errorDetail(err error, out *Output) string {
	detail := err.Error()
	if out != nil {
		if tail := tailLines(out.Stderr, 5); tail != "" && !strings.Contains(detail, tail) {
			detail += "\n" + tail
		}
	}
	return detail
}

func tailLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
