/**
 * 日志中间件
 * @author: sun977
 * @date: 2025.10.21
 * @description: 控制台HTTP适配层的访问日志与慢请求告警
 * @func: NewLoggingMiddleware, Handler
 */
package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"auroraagent/internal/config"
	"auroraagent/internal/pkg/logger"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	// 是否启用请求日志
	EnableRequestLog bool `json:"enable_request_log"`

	// 跳过日志的路径
	SkipPaths []string `json:"skip_paths"`

	// 慢请求阈值
	SlowRequestThreshold time.Duration `json:"slow_request_threshold"`
}

// LoggingMiddleware 日志中间件
type LoggingMiddleware struct {
	config *LoggingConfig
}

// NewLoggingMiddleware 创建日志中间件
func NewLoggingMiddleware(cfg *LoggingConfig) *LoggingMiddleware {
	if cfg == nil {
		cfg = &LoggingConfig{
			EnableRequestLog:     true,
			SlowRequestThreshold: 2 * time.Second,
			SkipPaths:            []string{"/health", "/ping"},
		}
	}
	return &LoggingMiddleware{config: cfg}
}

// LoggingConfigFrom 由全局配置构造中间件配置
func LoggingConfigFrom(cfg *config.LoggingConfig) *LoggingConfig {
	if cfg == nil {
		return nil
	}
	return &LoggingConfig{
		EnableRequestLog:     cfg.EnableRequestLog,
		SkipPaths:            cfg.SkipPaths,
		SlowRequestThreshold: cfg.SlowRequestThreshold,
	}
}

// Handler 日志处理器
func (m *LoggingMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		if !m.config.EnableRequestLog || m.shouldSkipLogging(path) {
			c.Next()
			return
		}

		c.Next()

		logger.LogAccessRequest(c, startTime)

		duration := time.Since(startTime)
		if m.config.SlowRequestThreshold > 0 && duration > m.config.SlowRequestThreshold {
			logger.LogSystemEvent("api", "slow_request", fmt.Sprintf("Slow request %s %s took %s", c.Request.Method, path, duration), logger.WarnLevel, map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
				"threshold":   m.config.SlowRequestThreshold.String(),
			})
		}
	}
}

// shouldSkipLogging 检查是否应该跳过日志
func (m *LoggingMiddleware) shouldSkipLogging(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if path == skipPath || (strings.HasSuffix(skipPath, "/*") && strings.HasPrefix(path, strings.TrimSuffix(skipPath, "*"))) {
			return true
		}
	}
	return false
}
