/**
 * 监控处理器
 * @author: sun977
 * @date: 2025.10.21
 * @description: 执行器健康快照、最近心跳、恢复事件以及主机信息的HTTP适配
 * @func: ListHealth, GetAgentHealth, GetHeartbeat, GetRecoveryEvents, GetSystemInfo
 */
package monitor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auroraagent/internal/executor/manager"
	"auroraagent/internal/handler"
	pkgmonitor "auroraagent/internal/pkg/monitor"
)

// AgentMonitorHandler 监控处理器
type AgentMonitorHandler struct {
	console *manager.Console
}

// NewAgentMonitorHandler 创建监控处理器
func NewAgentMonitorHandler(console *manager.Console) *AgentMonitorHandler {
	return &AgentMonitorHandler{console: console}
}

// ListHealth 所有执行器的健康快照
// @Router /api/v1/agents [get]
func (h *AgentMonitorHandler) ListHealth(c *gin.Context) {
	handler.Success(c, http.StatusOK, "Success", h.console.AllHealth())
}

// GetAgentHealth 单个执行器的健康快照
// @Router /api/v1/agents/:agent/health [get]
func (h *AgentMonitorHandler) GetAgentHealth(c *gin.Context) {
	health, err := h.console.GetExecutorHealth(c.Param("agent"))
	if err != nil {
		handler.Fail(c, "Unknown agent", err)
		return
	}
	handler.Success(c, http.StatusOK, "Success", health)
}

// GetHeartbeat 最近一次心跳
// @Router /api/v1/heartbeat [get]
func (h *AgentMonitorHandler) GetHeartbeat(c *gin.Context) {
	record, err := h.console.GetHeartbeat()
	if err != nil {
		handler.Fail(c, "No heartbeat recorded yet", err)
		return
	}
	handler.Success(c, http.StatusOK, "Success", record)
}

// GetRecoveryEvents 最近的恢复事件，新的在前
// @Router /api/v1/recovery-events [get]
func (h *AgentMonitorHandler) GetRecoveryEvents(c *gin.Context) {
	handler.Success(c, http.StatusOK, "Success", h.console.RecentRecoveryEvents(handler.QueryLimit(c, 20)))
}

// GetSystemInfo 主机静态信息与当前进程指标
// @Router /api/v1/system [get]
func (h *AgentMonitorHandler) GetSystemInfo(c *gin.Context) {
	hostInfo, _ := pkgmonitor.GetHostInfo()
	metrics, _ := pkgmonitor.GetSystemMetrics()
	handler.Success(c, http.StatusOK, "Success", gin.H{
		"host":    hostInfo,
		"system":  metrics,
		"process": pkgmonitor.GetProcessStats(),
	})
}
