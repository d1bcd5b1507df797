package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"auroraagent/internal/executor/base"
)

// TaskLogPath 单任务日志路径
func TaskLogPath(dir, taskID string) string {
	return filepath.Join(dir, taskID+".log")
}

// writeTaskLog 写入单任务日志，包含标准输出、标准错误与结果段落
func writeTaskLog(dir string, task *base.Task, out *Output) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create task log dir %s: %w", dir, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\nAGENT: %s\nSTATUS: %s\nRETRIES: %d\n", task.ID, task.Agent, task.Status, task.RetryCount)
	if task.Result != nil {
		fmt.Fprintf(&b, "STARTED: %s\nFINISHED: %s\nDURATION_MS: %d\n",
			task.Result.StartedAt.Format("2006-01-02 15:04:05.000"),
			task.Result.FinishedAt.Format("2006-01-02 15:04:05.000"),
			task.Result.DurationMs)
	}
	if out != nil {
		fmt.Fprintf(&b, "\n=== STDOUT ===\n%s\n", strings.TrimRight(out.Stdout, "\n"))
		fmt.Fprintf(&b, "\n=== STDERR ===\n%s\n", strings.TrimRight(out.Stderr, "\n"))
		fmt.Fprintf(&b, "\n=== EXIT CODE ===\n%d\n", out.ExitCode)
	}
	if task.Result != nil {
		if task.Result.ErrorDetail != "" {
			fmt.Fprintf(&b, "\n=== ERROR ===\n%s\n", task.Result.ErrorDetail)
		} else {
			fmt.Fprintf(&b, "\n=== RESULT ===\n%s\n", task.Result.Output)
		}
	}

	path := TaskLogPath(dir, task.ID)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write task log %s: %w", path, err)
	}
	return nil
}
