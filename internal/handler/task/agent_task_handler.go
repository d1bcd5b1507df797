/**
 * 任务处理器
 * @author: sun977
 * @date: 2025.10.21
 * @description: 控制台任务接口的HTTP适配，提交任务、查询任务状态、列出代理最近任务
 * @func: SubmitTask, GetTask, ListAgentTasks
 */
package task

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/executor/manager"
	"auroraagent/internal/handler"
	model "auroraagent/internal/model/base"
	"auroraagent/internal/pkg/logger"
)

// AgentTaskHandler 任务处理器
type AgentTaskHandler struct {
	console *manager.Console
}

// NewAgentTaskHandler 创建任务处理器
func NewAgentTaskHandler(console *manager.Console) *AgentTaskHandler {
	return &AgentTaskHandler{console: console}
}

// SubmitTask 提交任务
// @Router /api/v1/tasks [post]
func (h *AgentTaskHandler) SubmitTask(c *gin.Context) {
	var req model.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" && req.Action == "" {
		handler.BadRequest(c, "Either prompt or action is required", nil)
		return
	}

	payload := base.Payload{Prompt: req.Prompt, Action: req.Action, Params: req.Params}
	taskID, err := h.console.Submit(req.Agent, payload, req.TimeoutSeconds, req.Metadata)
	if err != nil {
		if handler.StatusFromError(err) >= http.StatusInternalServerError {
			logger.LogError("api", err, map[string]interface{}{"agent": req.Agent})
		}
		handler.Fail(c, "Failed to submit task", err)
		return
	}

	handler.Success(c, http.StatusAccepted, "Task queued", model.SubmitTaskResponse{
		TaskID: taskID,
		Agent:  req.Agent,
	})
}

// GetTask 查询任务状态，终态任务附带完整结果
// @Router /api/v1/tasks/:id [get]
func (h *AgentTaskHandler) GetTask(c *gin.Context) {
	task, err := h.console.GetStatus(c.Param("id"))
	if err != nil {
		handler.Fail(c, "Task not found", err)
		return
	}
	handler.Success(c, http.StatusOK, "Success", task)
}

// ListAgentTasks 代理最近的终态任务，新的在前
// @Router /api/v1/agents/:agent/tasks [get]
func (h *AgentTaskHandler) ListAgentTasks(c *gin.Context) {
	tasks, err := h.console.ListRecent(c.Param("agent"), handler.QueryLimit(c, 0))
	if err != nil {
		message := "Failed to list tasks"
		if errors.Is(err, base.ErrUnknownAgent) {
			message = "Unknown agent"
		}
		handler.Fail(c, message, err)
		return
	}
	handler.Success(c, http.StatusOK, "Success", tasks)
}
