package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"auroraagent/internal/executor/base"
)

// 提示词传递方式
const (
	PromptModeStdin = "stdin" // 通过标准输入传递
	PromptModeArg   = "arg"   // 作为最后一个参数传递
)

// ExitCodeTimeout 超时终止时记录的退出码，与 timeout(1) 一致
const ExitCodeTimeout = 124

// Output 外部工具一次调用的输出
type Output struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// ToolInvoker 外部工具调用接口
// 返回的错误由调用方按 base.IsRetryable 分类
type ToolInvoker interface {
	Invoke(ctx context.Context, agent string, payload base.Payload) (*Output, error)
}

// ProcessInvoker 以结构化参数向量启动外部进程，不经过shell
type ProcessInvoker struct {
	Command    []string      // 参数向量，Command[0] 为可执行文件
	PromptMode string        // stdin/arg，默认 stdin
	Dir        string        // 工作目录
	Env        []string      // 额外环境变量 KEY=VALUE
	WaitDelay  time.Duration // 终止后等待输出管道关闭的时间
}

// NewProcessInvoker 创建进程调用器
func NewProcessInvoker(command []string, promptMode string) *ProcessInvoker {
	if promptMode == "" {
		promptMode = PromptModeStdin
	}
	return &ProcessInvoker{
		Command:    append([]string(nil), command...),
		PromptMode: promptMode,
		WaitDelay:  2 * time.Second,
	}
}

// Invoke 执行一次调用
// 超时时终止整个进程组，归类为可重试的超时错误
func (p *ProcessInvoker) Invoke(ctx context.Context, agent string, payload base.Payload) (*Output, error) {
	if len(p.Command) == 0 || p.Command[0] == "" {
		return nil, base.NewTerminalError(127, fmt.Sprintf("no command configured for agent %s", agent), nil)
	}
	if strings.TrimSpace(payload.Prompt) == "" {
		return nil, base.NewTerminalError(2, "empty prompt", base.ErrInvalidPayload)
	}

	args := append([]string(nil), p.Command[1:]...)
	if p.PromptMode == PromptModeArg {
		args = append(args, payload.Prompt)
	}

	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}
	if p.PromptMode != PromptModeArg {
		cmd.Stdin = strings.NewReader(payload.Prompt)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)
	cmd.WaitDelay = p.WaitDelay

	runErr := cmd.Run()

	out := &Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		out.ExitCode = ExitCodeTimeout
		return out, base.NewRetryableError(ExitCodeTimeout, "killed after deadline", base.ErrTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return out, fmt.Errorf("%w: invocation cancelled", base.ErrExecutorStopped)
	case runErr == nil:
		return out, nil
	}

	return out, classify(runErr, out)
}

// classify 把进程错误归类为可重试或终止
func classify(err error, out *Output) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		out.ExitCode = 127
		return base.NewTerminalError(127, "binary not found", err)
	}
	if errors.Is(err, fs.ErrPermission) {
		out.ExitCode = 126
		return base.NewTerminalError(126, "binary not executable", err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		reason := lastLine(out.Stderr)
		if reason == "" {
			reason = exitErr.String()
		}
		// shell 约定：126 不可执行，127 命令不存在
		if code == 126 || code == 127 {
			return base.NewTerminalError(code, reason, nil)
		}
		return base.NewRetryableError(code, reason, nil)
	}

	return base.NewTerminalError(-1, "failed to start process", err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
