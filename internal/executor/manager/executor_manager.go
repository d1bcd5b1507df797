/**
 * 执行器管理器
 * @author: sun977
 * @date: 2025.10.21
 * @description: 控制台入口，按代理标识注册执行器，对外提供任务提交、状态查询、历史列表、健康快照和最近心跳
 * @func: Register, Submit, GetStatus, ListRecent, GetExecutorHealth, GetHeartbeat, StartAll, StopAll
 */
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/pkg/logger"
	"auroraagent/internal/service/monitor"
)

// HeartbeatSource 心跳与恢复事件来源，由心跳监控实现
type HeartbeatSource interface {
	Latest() (*monitor.HeartbeatRecord, error)
	RecentRecoveryEvents(limit int) []base.RecoveryEvent
}

// Console 执行器注册表
// 每个代理标识对应一个执行器，执行器之间互不影响
type Console struct {
	mu        sync.RWMutex
	executors map[string]base.Executor
	order     []string // 注册顺序
	heartbeat HeartbeatSource
	running   bool
}

// NewConsole 创建控制台
func NewConsole() *Console {
	return &Console{
		executors: make(map[string]base.Executor),
	}
}

// ==================== 注册 ====================

// Register 注册执行器，代理标识不可重复
func (c *Console) Register(exec base.Executor) error {
	if exec == nil {
		return fmt.Errorf("executor is nil")
	}
	name := exec.Name()
	if name == "" {
		return fmt.Errorf("executor name is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.executors[name]; exists {
		return fmt.Errorf("executor %s already registered", name)
	}
	c.executors[name] = exec
	c.order = append(c.order, name)

	logger.LogSystemEvent("console", "register", fmt.Sprintf("Executor %s registered", name), logger.DebugLevel, map[string]interface{}{
		"agent": name,
		"type":  string(exec.Type()),
	})
	return nil
}

// SetHeartbeatSource 设置心跳来源
func (c *Console) SetHeartbeatSource(src HeartbeatSource) {
	c.mu.Lock()
	c.heartbeat = src
	c.mu.Unlock()
}

// Executor 按代理标识获取执行器
func (c *Console) Executor(agent string) (base.Executor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exec, ok := c.executors[agent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", base.ErrUnknownAgent, agent)
	}
	return exec, nil
}

// Agents 已注册的代理标识，按注册顺序
func (c *Console) Agents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Providers 供心跳监控轮询的执行器列表
func (c *Console) Providers() []monitor.HealthProvider {
	execs := c.snapshot()
	out := make([]monitor.HealthProvider, 0, len(execs))
	for _, exec := range execs {
		out = append(out, exec)
	}
	return out
}

func (c *Console) snapshot() []base.Executor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]base.Executor, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.executors[name])
	}
	return out
}

// ==================== 任务接口 ====================

// Submit 提交任务到指定代理，立即返回任务ID
// timeoutSeconds 为0时使用执行器默认超时
func (c *Console) Submit(agent string, payload base.Payload, timeoutSeconds int, metadata map[string]string) (string, error) {
	exec, err := c.Executor(agent)
	if err != nil {
		return "", err
	}
	if timeoutSeconds < 0 {
		return "", fmt.Errorf("%w: timeout_seconds must not be negative", base.ErrInvalidPayload)
	}

	task := &base.Task{
		Agent:          agent,
		Payload:        payload,
		TimeoutSeconds: timeoutSeconds,
		Metadata:       metadata,
	}
	return exec.Submit(task)
}

// GetStatus 在所有执行器中查找任务
func (c *Console) GetStatus(taskID string) (*base.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: empty task id", base.ErrNotFound)
	}
	for _, exec := range c.snapshot() {
		task, err := exec.Status(taskID)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, base.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", base.ErrNotFound, taskID)
}

// ListRecent 指定代理最近的终态任务，新的在前
func (c *Console) ListRecent(agent string, limit int) ([]*base.Task, error) {
	exec, err := c.Executor(agent)
	if err != nil {
		return nil, err
	}
	return exec.List(limit), nil
}

// ==================== 健康与心跳 ====================

// GetExecutorHealth 指定代理的健康快照
func (c *Console) GetExecutorHealth(agent string) (base.ExecutorHealth, error) {
	exec, err := c.Executor(agent)
	if err != nil {
		return base.ExecutorHealth{}, err
	}
	return exec.Health(), nil
}

// AllHealth 所有执行器的健康快照，按注册顺序
func (c *Console) AllHealth() []base.ExecutorHealth {
	execs := c.snapshot()
	out := make([]base.ExecutorHealth, 0, len(execs))
	for _, exec := range execs {
		out = append(out, exec.Health())
	}
	return out
}

// GetHeartbeat 最近一次心跳；首次心跳之前返回 ErrNotFound
func (c *Console) GetHeartbeat() (*monitor.HeartbeatRecord, error) {
	c.mu.RLock()
	src := c.heartbeat
	c.mu.RUnlock()
	if src == nil {
		return nil, fmt.Errorf("%w: %w", base.ErrNotFound, base.ErrNoHeartbeatYet)
	}
	record, err := src.Latest()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", base.ErrNotFound, err)
	}
	return record, nil
}

// RecentRecoveryEvents 最近的恢复事件，新的在前
func (c *Console) RecentRecoveryEvents(limit int) []base.RecoveryEvent {
	c.mu.RLock()
	src := c.heartbeat
	c.mu.RUnlock()
	if src == nil {
		return []base.RecoveryEvent{}
	}
	return src.RecentRecoveryEvents(limit)
}

// ==================== 生命周期管理 ====================

// StartAll 按注册顺序启动执行器，任一失败则停止已启动的执行器
func (c *Console) StartAll(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("console is already running")
	}
	c.running = true
	c.mu.Unlock()

	var started []base.Executor
	for _, exec := range c.snapshot() {
		if err := exec.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop(ctx)
			}
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return fmt.Errorf("start executor %s: %w", exec.Name(), err)
		}
		started = append(started, exec)
	}

	logger.LogSystemEvent("console", "started", fmt.Sprintf("Console started with %d executors", len(started)), logger.InfoLevel, map[string]interface{}{
		"agents": c.Agents(),
	})
	return nil
}

// StopAll 并发停止所有执行器，等待在途任务结束或ctx到期
func (c *Console) StopAll(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	execs := c.snapshot()
	errs := make([]error, len(execs))
	var g errgroup.Group
	for i, exec := range execs {
		i, exec := i, exec
		g.Go(func() error {
			if err := exec.Stop(ctx); err != nil {
				errs[i] = fmt.Errorf("stop executor %s: %w", exec.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		logger.LogError("console", err, nil)
	}
	logger.LogSystemEvent("console", "stopped", "Console stopped", logger.InfoLevel, nil)
	return err
}
