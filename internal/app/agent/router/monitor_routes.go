/**
 * 路由:监控路由
 * @author: sun977
 * @date: 2025.10.21
 * @description: 执行器健康、心跳、恢复事件与主机信息路由
 * @func: 监控相关路由注册
 */
package router

import (
	"github.com/gin-gonic/gin"

	"auroraagent/internal/handler/monitor"
)

// setupMonitorRoutes 设置监控路由
func setupMonitorRoutes(apiGroup *gin.RouterGroup, monitorHandler *monitor.AgentMonitorHandler) {
	apiGroup.GET("/agents", monitorHandler.ListHealth)                   // 所有执行器健康快照
	apiGroup.GET("/agents/:agent/health", monitorHandler.GetAgentHealth) // 单个执行器健康快照
	apiGroup.GET("/heartbeat", monitorHandler.GetHeartbeat)              // 最近一次心跳
	apiGroup.GET("/recovery-events", monitorHandler.GetRecoveryEvents)   // 最近恢复事件
	apiGroup.GET("/system", monitorHandler.GetSystemInfo)                // 主机信息
}
