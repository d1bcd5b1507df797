/**
 * 路由:健康检查路由
 * @author: sun977
 * @date: 2025.10.21
 * @description: 存活检查、Ping与版本信息
 * @func: 健康检查相关路由注册和处理器
 */
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/pkg/logger"
	"auroraagent/internal/pkg/version"
)

// setupHealthRoutes 设置健康检查路由
func (r *Router) setupHealthRoutes() {
	r.engine.GET("/health", r.handleHealth)
	r.engine.GET("/ping", r.handlePing)
	r.engine.GET("/version", r.handleVersion)
}

// handleHealth 健康检查处理器
// 任一执行器循环未运行时返回 degraded
func (r *Router) handleHealth(c *gin.Context) {
	status := "healthy"
	executors := r.console.AllHealth()
	for _, h := range executors {
		if h.Running != base.LivenessAlive {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": logger.NowFormatted(),
		"service":   "auroraagent",
		"version":   version.GetVersion(),
		"executors": len(executors),
	})
}

// handlePing Ping处理器
func (r *Router) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": logger.NowFormatted(),
	})
}

// handleVersion 版本信息处理器
func (r *Router) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetInfo())
}
