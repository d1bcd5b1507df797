/**
 * 控制台路由注册
 * @author: sun977
 * @date: 2025.10.21
 * @description: 控制台HTTP适配层路由注册，统一管理所有路由
 * @func: NewRouter, GetEngine
 */
package router

import (
	"github.com/gin-gonic/gin"

	"auroraagent/internal/app/agent/middleware"
	"auroraagent/internal/executor/manager"
	handlerMonitor "auroraagent/internal/handler/monitor"
	handlerTask "auroraagent/internal/handler/task"
	"auroraagent/internal/pkg/logger"
)

// RouterConfig 路由配置
type RouterConfig struct {
	// 是否启用调试模式
	Debug bool `json:"debug"`

	// API版本
	APIVersion string `json:"api_version"`

	// 路由前缀
	Prefix string `json:"prefix"`

	// 日志中间件配置，nil 时使用默认值
	Logging *middleware.LoggingConfig `json:"logging"`
}

// Router 控制台路由器
type Router struct {
	engine  *gin.Engine
	config  *RouterConfig
	console *manager.Console

	loggingMiddleware *middleware.LoggingMiddleware

	// 处理器
	taskHandler    *handlerTask.AgentTaskHandler
	monitorHandler *handlerMonitor.AgentMonitorHandler
}

// NewRouter 创建新的路由器
func NewRouter(config *RouterConfig, console *manager.Console) *Router {
	if config == nil {
		config = &RouterConfig{}
	}
	if config.APIVersion == "" {
		config.APIVersion = "v1"
	}
	if config.Prefix == "" {
		config.Prefix = "/api"
	}

	// 设置Gin模式
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := &Router{
		engine:            gin.New(),
		config:            config,
		console:           console,
		loggingMiddleware: middleware.NewLoggingMiddleware(config.Logging),
		taskHandler:       handlerTask.NewAgentTaskHandler(console),
		monitorHandler:    handlerMonitor.NewAgentMonitorHandler(console),
	}
	router.registerRoutes()
	return router
}

// registerRoutes 注册路由
func (r *Router) registerRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.loggingMiddleware.Handler())

	r.setupHealthRoutes()

	apiGroup := r.engine.Group(r.config.Prefix + "/" + r.config.APIVersion)
	setupTaskRoutes(apiGroup, r.taskHandler)
	setupMonitorRoutes(apiGroup, r.monitorHandler)

	logger.Debug("HTTP routes registered")
}

// GetEngine 获取Gin引擎
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// GetConfig 获取当前配置
func (r *Router) GetConfig() *RouterConfig {
	return r.config
}
