package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"auroraagent/internal/executor/base"
)

// TaskRecord 任务状态迁移审计记录
// 负载只记录指纹，不落盘原文
type TaskRecord struct {
	Timestamp     time.Time         `json:"timestamp"`
	TaskID        string            `json:"task_id"`
	Agent         string            `json:"agent"`
	PayloadSHA256 string            `json:"payload_sha256"`
	Status        base.TaskStatus   `json:"status"`
	DurationMs    int64             `json:"duration_ms"`
	RetryCount    int               `json:"retry_count"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ErrorDetail   string            `json:"error_detail,omitempty"`

	// 扩展字段，仅开启 rich_audit 的代理写入
	ExitCode     *int   `json:"exit_code,omitempty"`
	StdoutLines  *int   `json:"stdout_lines,omitempty"`
	StderrLines  *int   `json:"stderr_lines,omitempty"`
	InputSummary string `json:"input_summary,omitempty"`
}

// NewTaskRecord 根据任务当前状态构造审计记录
func NewTaskRecord(task *base.Task, durationMs int64) *TaskRecord {
	rec := &TaskRecord{
		Timestamp:     time.Now().UTC(),
		TaskID:        task.ID,
		Agent:         task.Agent,
		PayloadSHA256: Fingerprint(task.Payload),
		Status:        task.Status,
		DurationMs:    durationMs,
		RetryCount:    task.RetryCount,
		Metadata:      task.Metadata,
	}
	if task.Result != nil {
		rec.ErrorDetail = task.Result.ErrorDetail
	}
	return rec
}

// Fingerprint 负载的SHA-256指纹
// encoding/json 对 map 键排序，相同负载得到相同指纹
func Fingerprint(payload base.Payload) string {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(payload.Prompt + payload.Action)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Summarize 取输入的前n个词
func Summarize(input string, words int) string {
	fields := strings.Fields(input)
	if len(fields) > words {
		fields = fields[:words]
	}
	return strings.Join(fields, " ")
}

// CountLines 统计非空行数
func CountLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
