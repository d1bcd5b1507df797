/**
 * 审计流
 * @author: sun977
 * @date: 2025.10.21
 * @description: 追加写入的JSONL审计流，每个执行器一条，心跳与恢复事件各一条
 * @func: Sink 单条流, Manager 按名称管理多条流并共享镜像
 */
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"auroraagent/internal/pkg/logger"
)

// Sink 单条审计流
// 每条记录序列化为一行后一次性写入，并发追加不会交错
type Sink struct {
	name     string
	mu       sync.Mutex
	w        io.WriteCloser
	mirror   Mirror
	written  atomic.Int64
	failures atomic.Int64
}

// NewSink 基于任意写入器创建审计流
func NewSink(name string, w io.WriteCloser, mirror Mirror) *Sink {
	return &Sink{name: name, w: w, mirror: mirror}
}

// Name 流名称
func (s *Sink) Name() string {
	return s.name
}

// Write 追加一条记录
// 写入失败只记录日志和计数，不向调用方返回，任务执行不受影响
func (s *Sink) Write(record interface{}) {
	line, err := json.Marshal(record)
	if err != nil {
		s.failures.Add(1)
		logger.LogError("audit", fmt.Errorf("encode record for %s: %w", s.name, err), nil)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, err = s.w.Write(line)
	s.mu.Unlock()

	if err != nil {
		s.failures.Add(1)
		logger.LogError("audit", fmt.Errorf("write %s: %w", s.name, err), nil)
		return
	}
	s.written.Add(1)

	if s.mirror != nil {
		s.mirror.Publish(s.name, line[:len(line)-1])
	}
}

// Written 成功写入的记录数
func (s *Sink) Written() int64 {
	return s.written.Load()
}

// Failures 写入失败次数
func (s *Sink) Failures() int64 {
	return s.failures.Load()
}

// Close 关闭底层写入器
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// Options 审计流管理器配置
type Options struct {
	Dir        string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
	Mirror     Mirror
}

// Manager 按名称管理审计流
type Manager struct {
	opts  Options
	mu    sync.Mutex
	sinks map[string]*Sink
}

// NewManager 创建审计流管理器
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("audit dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir %s: %w", opts.Dir, err)
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 50
	}
	return &Manager{opts: opts, sinks: make(map[string]*Sink)}, nil
}

// Stream 获取（必要时创建）名为 name 的审计流，文件为 <dir>/<name>.jsonl
func (m *Manager) Stream(name string) *Sink {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sink, ok := m.sinks[name]; ok {
		return sink
	}
	w := logger.NewRotatingWriter(m.Path(name), m.opts.MaxSize, m.opts.MaxBackups, m.opts.MaxAge, m.opts.Compress)
	sink := NewSink(name, w, m.opts.Mirror)
	m.sinks[name] = sink
	return sink
}

// Path 审计流文件路径
func (m *Manager) Path(name string) string {
	return filepath.Join(m.opts.Dir, name+".jsonl")
}

// Close 关闭所有审计流与镜像
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close audit stream %s: %w", name, err)
		}
	}
	if m.opts.Mirror != nil {
		if err := m.opts.Mirror.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
