/**
 * 执行器基础接口
 * @author: sun977
 * @date: 2025.10.21
 * @description: 定义所有代理执行器的统一接口与任务数据模型
 * @func: Executor 接口, Task/TaskResult/ExecutorHealth/RecoveryEvent 数据结构
 */
package base

import (
	"context"
	"time"
)

// ExecutorType 执行器类型
type ExecutorType string

const (
	ExecutorTypeCLI   ExecutorType = "cli"   // 命令行代理执行器
	ExecutorTypeInput ExecutorType = "input" // 输入控制执行器
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"    // 排队中
	TaskStatusRunning   TaskStatus = "running"   // 正在执行
	TaskStatusRetrying  TaskStatus = "retrying"  // 等待重试
	TaskStatusCompleted TaskStatus = "completed" // 执行完成
	TaskStatusFailed    TaskStatus = "failed"    // 重试耗尽
	TaskStatusError     TaskStatus = "error"     // 不可重试的失败
)

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusError:
		return true
	default:
		return false
	}
}

// Executor 执行器接口
// 每个执行器独占自己的队列、并发闸门和历史环
type Executor interface {
	// ==================== 基础信息 ====================
	Name() string       // 代理标识
	Type() ExecutorType // 执行器类型

	// ==================== 生命周期管理 ====================
	Start(ctx context.Context) error // 启动消费循环
	Stop(ctx context.Context) error  // 停止消费循环，等待在途任务结束或ctx到期

	// ==================== 任务管理 ====================
	Submit(task *Task) (string, error)   // 入队，立即返回任务ID
	Status(taskID string) (*Task, error) // 查询在途或历史任务
	List(limit int) []*Task              // 最近终态任务，新的在前

	// ==================== 健康检查 ====================
	Health() ExecutorHealth // 非阻塞健康快照
}

// Payload 任务负载
// CLI代理使用 Prompt，输入控制使用 Action + Params
type Payload struct {
	Prompt string                 `json:"prompt,omitempty"`
	Action string                 `json:"action,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Task 任务描述
type Task struct {
	ID             string            `json:"id"`
	Agent          string            `json:"agent"`
	Payload        Payload           `json:"payload"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         TaskStatus        `json:"status"`
	RetryCount     int               `json:"retry_count"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	Result         *TaskResult       `json:"result,omitempty"`
}

// Clone 深拷贝任务，对外返回的任务均为副本
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.Payload.Params != nil {
		c.Payload.Params = make(map[string]interface{}, len(t.Payload.Params))
		for k, v := range t.Payload.Params {
			c.Payload.Params[k] = v
		}
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.ExitCode != nil {
			code := *t.Result.ExitCode
			r.ExitCode = &code
		}
		c.Result = &r
	}
	return &c
}

// Timeout 任务超时时间，未设置时返回默认值
func (t *Task) Timeout(def time.Duration) time.Duration {
	if t.TimeoutSeconds > 0 {
		return time.Duration(t.TimeoutSeconds) * time.Second
	}
	return def
}

// TaskResult 任务结果，仅终态任务持有
type TaskResult struct {
	Status      TaskStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	RetryCount  int        `json:"retry_count"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	DurationMs  int64      `json:"duration_ms"`
}

// ExecutorHealth 执行器健康快照
type ExecutorHealth struct {
	Agent        string       `json:"agent"`
	Type         ExecutorType `json:"type"`
	Running      Liveness     `json:"running"`
	Available    bool         `json:"available"`
	QueueDepth   int          `json:"queue_depth"`
	InFlight     int          `json:"in_flight"`
	ErrorCount   int64        `json:"error_count"`
	RestartCount int          `json:"restart_count"`
	LastError    string       `json:"last_error,omitempty"`
}

// RecoveryEventType 恢复事件类型
type RecoveryEventType string

const (
	RecoveryCrashed       RecoveryEventType = "crashed"
	RecoveryRestarting    RecoveryEventType = "restarting"
	RecoveryCircuitOpen   RecoveryEventType = "circuit_open"
	RecoveryErrorIncrease RecoveryEventType = "error_count_increased"
	RecoveryShutdown      RecoveryEventType = "shutdown"
)

// RecoveryEvent 恢复事件
type RecoveryEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	Component    string            `json:"component"`
	EventType    RecoveryEventType `json:"event_type"`
	RestartCount int               `json:"restart_count"`
	ErrorDelta   int64             `json:"error_delta,omitempty"`
	Detail       string            `json:"detail,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RecoveryRecorder 恢复事件接收方，由心跳监控实现
type RecoveryRecorder interface {
	RecordRecovery(event RecoveryEvent)
}

// ErrorRecorder 组件错误计数接收方，由心跳监控实现
type ErrorRecorder interface {
	RecordError(component string, err error)
}
