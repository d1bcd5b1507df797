/**
 * 通用响应结构体
 * @author: sun977
 * @date: 2025.10.21
 * @description: 通用API响应结构与任务提交请求
 * @func: 定义了API响应的通用结构，包含状态码、状态、消息、数据、错误信息
 */

package base

// APIResponse 通用API响应结构
type APIResponse struct {
	Code    int         `json:"code"`            // 响应状态码
	Status  string      `json:"status"`          // 响应状态："success" 或 "failed"
	Message string      `json:"message"`         // 响应消息
	Data    interface{} `json:"data,omitempty"`  // 响应数据，可选
	Error   string      `json:"error,omitempty"` // 错误信息，可选
}

// SubmitTaskRequest 任务提交请求
// CLI代理使用 prompt，输入控制使用 action + params
type SubmitTaskRequest struct {
	Agent          string                 `json:"agent" binding:"required"`
	Prompt         string                 `json:"prompt,omitempty"`
	Action         string                 `json:"action,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
	Metadata       map[string]string      `json:"metadata,omitempty"`
}

// SubmitTaskResponse 任务提交结果
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Agent  string `json:"agent"`
}
