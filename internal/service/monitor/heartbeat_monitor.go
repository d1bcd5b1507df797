/**
 * 心跳监控服务
 * @author: sun977
 * @date: 2025.10.22
 * @description: 定时轮询所有执行器的健康快照，汇总进程运行时长写入心跳流；错误计数上升或循环重启时写入恢复事件流
 * @func: Start/Stop 生命周期、Beat 单次心跳、RecordRecovery/RecordError 事件入口、Latest 最近心跳
 */
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/pkg/logger"
	pkgmonitor "auroraagent/internal/pkg/monitor"
)

// HealthProvider 可被轮询的执行器
type HealthProvider interface {
	Name() string
	Health() base.ExecutorHealth
}

// State 监控状态
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// HeartbeatRecord 一次心跳的汇总记录
type HeartbeatRecord struct {
	Timestamp     time.Time                 `json:"timestamp"`
	Sequence      int64                     `json:"sequence"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Executors     []base.ExecutorHealth     `json:"executors"`
	ErrorCounts   map[string]int64          `json:"error_counts,omitempty"` // 各组件累计错误数
	Process       *pkgmonitor.ProcessStats  `json:"process,omitempty"`
	System        *pkgmonitor.SystemMetrics `json:"system,omitempty"`
	Final         bool                      `json:"final,omitempty"` // 停机前的最后一次心跳
}

// Clone 深拷贝
func (r *HeartbeatRecord) Clone() *HeartbeatRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Executors = append([]base.ExecutorHealth(nil), r.Executors...)
	if r.ErrorCounts != nil {
		c.ErrorCounts = make(map[string]int64, len(r.ErrorCounts))
		for k, v := range r.ErrorCounts {
			c.ErrorCounts[k] = v
		}
	}
	if r.Process != nil {
		p := *r.Process
		c.Process = &p
	}
	if r.System != nil {
		s := *r.System
		c.System = &s
	}
	return &c
}

// Options 心跳监控配置
type Options struct {
	Interval       time.Duration // 心跳间隔，默认60s
	PollTimeout    time.Duration // 单个执行器轮询上限，默认2s
	RecentEvents   int           // 内存中保留的恢复事件数，默认100
	HeartbeatSink  *audit.Sink
	RecoverySink   *audit.Sink
	Source         func() []HealthProvider
	StartedAt      time.Time // 进程启动时间，默认为创建监控的时间
	CollectMetrics bool      // 是否采集进程与主机指标
}

// HeartbeatMonitor 心跳监控
type HeartbeatMonitor struct {
	opts Options

	mu         sync.RWMutex
	state      State
	latest     *HeartbeatRecord
	sequence   int64
	prevErrors map[string]int64
	events     []base.RecoveryEvent
	errCounts  map[string]int64

	beatMu   sync.Mutex // 串行化心跳，保证记录完整写入
	stopCh   chan struct{}
	stopOnce *sync.Once // 超时后重复 Stop 或并发 Stop 只关闭一次
	done     chan struct{}
}

// NewHeartbeatMonitor 创建心跳监控
func NewHeartbeatMonitor(opts Options) *HeartbeatMonitor {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Second
	}
	if opts.RecentEvents <= 0 {
		opts.RecentEvents = 100
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	if opts.Source == nil {
		opts.Source = func() []HealthProvider { return nil }
	}
	return &HeartbeatMonitor{
		opts:       opts,
		state:      StateStopped,
		prevErrors: make(map[string]int64),
		errCounts:  make(map[string]int64),
	}
}

// ==================== 生命周期管理 ====================

// Start stopped -> running，启动定时器
func (m *HeartbeatMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateRunning {
		m.mu.Unlock()
		return fmt.Errorf("heartbeat monitor is already running")
	}
	m.state = StateRunning
	m.stopCh = make(chan struct{})
	m.stopOnce = &sync.Once{}
	m.done = make(chan struct{})
	stopCh, done := m.stopCh, m.done
	m.mu.Unlock()

	go m.run(ctx, stopCh, done)

	logger.LogSystemEvent("heartbeat", "started", fmt.Sprintf("Heartbeat monitor started, interval %s", m.opts.Interval), logger.InfoLevel, map[string]interface{}{
		"interval":     m.opts.Interval.String(),
		"poll_timeout": m.opts.PollTimeout.String(),
	})
	return nil
}

// Stop running -> stopped：等待在途轮询结束，写入最后一次心跳后停止定时器
// ctx 到期返回错误后可以再次调用 Stop 继续等待
func (m *HeartbeatMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return nil
	}
	stopCh, stopOnce, done := m.stopCh, m.stopOnce, m.done
	m.mu.Unlock()

	stopOnce.Do(func() { close(stopCh) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("heartbeat monitor did not stop in time: %w", ctx.Err())
	}
}

// State 当前状态
func (m *HeartbeatMonitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *HeartbeatMonitor) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(m.opts.Interval)
	defer func() {
		ticker.Stop()
		m.mu.Lock()
		m.state = StateStopped
		m.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ticker.C:
			m.beat(ctx, false)
		case <-stopCh:
			m.shutdown()
			return
		case <-ctx.Done():
			m.shutdown()
			return
		}
	}
}

func (m *HeartbeatMonitor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PollTimeout+time.Second)
	defer cancel()
	record := m.beat(ctx, true)
	m.RecordRecovery(base.RecoveryEvent{
		Component: "heartbeat",
		EventType: base.RecoveryShutdown,
		Detail:    fmt.Sprintf("heartbeat monitor stopped after %d heartbeats", record.Sequence),
	})
}

// ==================== 心跳 ====================

// Beat 立即执行一次心跳
func (m *HeartbeatMonitor) Beat(ctx context.Context) *HeartbeatRecord {
	return m.beat(ctx, false)
}

func (m *HeartbeatMonitor) beat(ctx context.Context, final bool) *HeartbeatRecord {
	m.beatMu.Lock()
	defer m.beatMu.Unlock()

	snapshots := m.poll(ctx)

	record := &HeartbeatRecord{
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: float64(time.Since(m.opts.StartedAt).Milliseconds()) / 1000,
		Executors:     snapshots,
		Final:         final,
	}
	if m.opts.CollectMetrics {
		record.Process = pkgmonitor.GetProcessStats()
		if sys, err := pkgmonitor.GetSystemMetrics(); err == nil {
			record.System = sys
		}
	}

	var increased []base.RecoveryEvent
	m.mu.Lock()
	m.sequence++
	record.Sequence = m.sequence
	if len(m.errCounts) > 0 {
		record.ErrorCounts = make(map[string]int64, len(m.errCounts))
		for k, v := range m.errCounts {
			record.ErrorCounts[k] = v
		}
	}
	for _, h := range snapshots {
		if h.Running == base.LivenessUnknown {
			continue
		}
		prev := m.prevErrors[h.Agent]
		if h.ErrorCount > prev {
			increased = append(increased, base.RecoveryEvent{
				Component:    h.Agent,
				EventType:    base.RecoveryErrorIncrease,
				RestartCount: h.RestartCount,
				ErrorDelta:   h.ErrorCount - prev,
				Detail:       fmt.Sprintf("error count %d -> %d since previous heartbeat", prev, h.ErrorCount),
				Metadata:     map[string]string{"last_error": h.LastError},
			})
		}
		m.prevErrors[h.Agent] = h.ErrorCount
	}
	m.latest = record
	m.mu.Unlock()

	if m.opts.HeartbeatSink != nil {
		m.opts.HeartbeatSink.Write(record)
	}
	for _, event := range increased {
		m.RecordRecovery(event)
	}

	logger.WithFields(map[string]interface{}{
		"type":      logger.HeartbeatLog,
		"sequence":  record.Sequence,
		"uptime":    record.UptimeSeconds,
		"executors": len(snapshots),
		"final":     final,
	}).Debug("Heartbeat recorded")
	return record.Clone()
}

// poll 并发轮询所有执行器，单个执行器超时或 panic 记为 running=unknown
func (m *HeartbeatMonitor) poll(ctx context.Context) []base.ExecutorHealth {
	providers := m.opts.Source()
	results := make([]base.ExecutorHealth, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			results[i] = m.pollOne(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *HeartbeatMonitor) pollOne(ctx context.Context, p HealthProvider) base.ExecutorHealth {
	name := p.Name()
	ch := make(chan base.ExecutorHealth, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- base.ExecutorHealth{Agent: name, Running: base.LivenessUnknown, LastError: fmt.Sprintf("health poll panicked: %v", r)}
			}
		}()
		ch <- p.Health()
	}()

	timer := time.NewTimer(m.opts.PollTimeout)
	defer timer.Stop()
	select {
	case h := <-ch:
		if h.Running == base.LivenessUnknown {
			logger.LogError("heartbeat", fmt.Errorf("%s: %s", name, h.LastError), nil)
		}
		return h
	case <-timer.C:
		logger.LogError("heartbeat", fmt.Errorf("health poll of %s timed out after %s", name, m.opts.PollTimeout), nil)
		return base.ExecutorHealth{Agent: name, Running: base.LivenessUnknown, LastError: "health poll timed out"}
	case <-ctx.Done():
		return base.ExecutorHealth{Agent: name, Running: base.LivenessUnknown, LastError: ctx.Err().Error()}
	}
}

// Latest 最近一次心跳
func (m *HeartbeatMonitor) Latest() (*HeartbeatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, base.ErrNoHeartbeatYet
	}
	return m.latest.Clone(), nil
}

// ==================== 恢复事件 ====================

// RecordRecovery 写入恢复事件流并保留在内存中
func (m *HeartbeatMonitor) RecordRecovery(event base.RecoveryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	if over := len(m.events) - m.opts.RecentEvents; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	m.mu.Unlock()

	if m.opts.RecoverySink != nil {
		m.opts.RecoverySink.Write(event)
	}
	if event.EventType == base.RecoveryErrorIncrease || event.EventType == base.RecoveryShutdown {
		logger.LogRecoveryEvent(event.Component, string(event.EventType), event.RestartCount, event.Detail, map[string]interface{}{
			"error_delta": event.ErrorDelta,
		})
	}
}

// RecentRecoveryEvents 最近的恢复事件，新的在前；limit<=0 返回全部
func (m *HeartbeatMonitor) RecentRecoveryEvents(limit int) []base.RecoveryEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]base.RecoveryEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.events[i])
	}
	return out
}

// RecordError 组件错误计数，随下一次心跳上报
func (m *HeartbeatMonitor) RecordError(component string, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.errCounts[component]++
	m.mu.Unlock()
}

// ErrorCounts 各组件累计错误数
func (m *HeartbeatMonitor) ErrorCounts() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.errCounts))
	for k, v := range m.errCounts {
		out[k] = v
	}
	return out
}
