/**
 * 受监督的工作循环
 * @author: sun977
 * @date: 2025.10.22
 * @description: 把长时间运行的消费循环包在重启循环中，循环异常退出后记录崩溃、冷却、重启，队列内容保持不变
 * @func: Worker 生命周期、崩溃恢复事件、可选的重启熔断
 */
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/executor/core"
	"auroraagent/internal/pkg/logger"
)

// LoopFunc 被监督的消费循环
// ctx 取消时应返回；其余返回（含 panic）都视为崩溃
type LoopFunc func(ctx context.Context) error

// Options 监督配置
type Options struct {
	Component     string
	Cooldown      time.Duration // 崩溃到重启之间的冷却时间，默认2s
	MaxRestarts   int           // RestartWindow 内允许的最大重启次数，0表示不限制
	RestartWindow time.Duration
	Recorder      base.RecoveryRecorder
}

// Worker 受监督的工作循环
type Worker struct {
	opts Options
	loop LoopFunc

	mu           sync.RWMutex
	running      bool
	restartCount int
	lastError    string
	circuitOpen  bool
	crashTimes   []time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New 创建受监督的工作循环
func New(opts Options, loop LoopFunc) *Worker {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 2 * time.Second
	}
	if opts.Component == "" {
		opts.Component = "worker"
	}
	if opts.RestartWindow <= 0 {
		opts.RestartWindow = 5 * time.Minute
	}
	return &Worker{opts: opts, loop: loop}
}

// Start 在后台协程中运行监督循环
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker %s already started", w.opts.Component)
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	go func() {
		err := w.Run(runCtx)
		w.mu.Lock()
		w.err = err
		close(w.done)
		w.mu.Unlock()
	}()
	return nil
}

// Stop 发出停止信号并等待循环退出
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.RLock()
	cancel, done := w.cancel, w.done
	w.mu.RUnlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %s did not stop in time: %w", w.opts.Component, ctx.Err())
	}
}

// Done 监督循环结束后关闭
func (w *Worker) Done() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.done
}

// Err 监督循环结束的原因，正常停止为nil
func (w *Worker) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Run 阻塞运行监督循环，直到 ctx 取消或熔断打开
func (w *Worker) Run(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)

	for {
		err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// 循环自行结束，不属于崩溃
			return nil
		}

		logger.LogError(w.opts.Component, err, nil)
		restarts := w.noteCrash(err)
		w.emit(base.RecoveryCrashed, restarts, err.Error())

		if w.tripCircuit() {
			w.emit(base.RecoveryCircuitOpen, restarts, fmt.Sprintf("%d restarts within %s", restarts, w.opts.RestartWindow))
			return fmt.Errorf("worker %s: %w", w.opts.Component, base.ErrCircuitOpen)
		}

		if core.Sleep(ctx, w.opts.Cooldown) != nil {
			return nil
		}
		w.emit(base.RecoveryRestarting, restarts, "")
	}
}

// runOnce 运行一次循环，panic 转换为 ErrExecutorCrash
func (w *Worker) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v\n%s", base.ErrExecutorCrash, r, debug.Stack())
		}
	}()
	if err = w.loop(ctx); err != nil && !errors.Is(err, base.ErrExecutorCrash) {
		err = fmt.Errorf("%w: %v", base.ErrExecutorCrash, err)
	}
	return err
}

func (w *Worker) noteCrash(err error) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.restartCount++
	w.lastError = firstLine(err.Error())
	now := time.Now()
	w.crashTimes = append(w.crashTimes, now)
	cutoff := now.Add(-w.opts.RestartWindow)
	kept := w.crashTimes[:0]
	for _, t := range w.crashTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.crashTimes = kept
	return w.restartCount
}

// tripCircuit 窗口内崩溃次数超过 MaxRestarts 时打开熔断
func (w *Worker) tripCircuit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opts.MaxRestarts <= 0 || len(w.crashTimes) <= w.opts.MaxRestarts {
		return false
	}
	w.circuitOpen = true
	return true
}

func (w *Worker) emit(eventType base.RecoveryEventType, restarts int, detail string) {
	detail = firstLine(detail)
	logger.LogRecoveryEvent(w.opts.Component, string(eventType), restarts, detail, nil)
	if w.opts.Recorder == nil {
		return
	}
	w.opts.Recorder.RecordRecovery(base.RecoveryEvent{
		Timestamp:    time.Now().UTC(),
		Component:    w.opts.Component,
		EventType:    eventType,
		RestartCount: restarts,
		Detail:       detail,
	})
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	w.running = running
	w.mu.Unlock()
}

// Running 监督循环是否存活
func (w *Worker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// RestartCount 累计崩溃重启次数
func (w *Worker) RestartCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.restartCount
}

// LastError 最近一次崩溃原因
func (w *Worker) LastError() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

// CircuitOpen 熔断是否已打开
func (w *Worker) CircuitOpen() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.circuitOpen
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
