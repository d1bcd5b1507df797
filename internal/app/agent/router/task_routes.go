/**
 * 路由:任务管理路由
 * @author: sun977
 * @date: 2025.10.21
 * @description: 任务提交、状态查询与代理最近任务列表
 * @func: 任务管理相关路由注册
 */
package router

import (
	"github.com/gin-gonic/gin"

	"auroraagent/internal/handler/task"
)

// setupTaskRoutes 设置任务管理路由
func setupTaskRoutes(apiGroup *gin.RouterGroup, taskHandler *task.AgentTaskHandler) {
	taskGroup := apiGroup.Group("/tasks")
	{
		taskGroup.POST("", taskHandler.SubmitTask) // 提交任务
		taskGroup.GET("/:id", taskHandler.GetTask) // 查询任务状态
	}

	apiGroup.GET("/agents/:agent/tasks", taskHandler.ListAgentTasks) // 代理最近任务
}
