package base

import (
	"errors"
	"fmt"
)

// 错误分类
var (
	ErrUnknownAgent     = errors.New("unknown agent")
	ErrNotFound         = errors.New("task not found")
	ErrTimeout          = errors.New("invocation timed out")
	ErrToolFailure      = errors.New("tool failure")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrExecutorCrash    = errors.New("executor crashed")
	ErrAbortSignal      = errors.New("abort signal")
	ErrOperatorDisabled = errors.New("operator control disabled")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrExecutorStopped  = errors.New("executor stopped")
	ErrNoHeartbeatYet   = errors.New("no heartbeat recorded yet")
	ErrCircuitOpen      = errors.New("restart circuit open")
)

// ToolError 外部工具调用失败，携带可重试分类
type ToolError struct {
	Retryable bool
	ExitCode  int
	Reason    string
	Err       error
}

func (e *ToolError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s tool failure (exit %d): %s: %v", kind, e.ExitCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s tool failure (exit %d): %s", kind, e.ExitCode, e.Reason)
}

// Unwrap 支持 errors.Is(err, ErrToolFailure) 以及内部错误
func (e *ToolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrToolFailure, e.Err}
	}
	return []error{ErrToolFailure}
}

// NewRetryableError 创建可重试的工具错误
func NewRetryableError(exitCode int, reason string, err error) *ToolError {
	return &ToolError{Retryable: true, ExitCode: exitCode, Reason: reason, Err: err}
}

// NewTerminalError 创建不可重试的工具错误
func NewTerminalError(exitCode int, reason string, err error) *ToolError {
	return &ToolError{Retryable: false, ExitCode: exitCode, Reason: reason, Err: err}
}

// IsRetryable 判断错误是否可重试
// 超时可重试；中止信号、无效负载、未授权永不重试；其余按 ToolError 分类
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAbortSignal) || errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrOperatorDisabled) {
		return false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Retryable
	}
	return errors.Is(err, ErrTimeout)
}
