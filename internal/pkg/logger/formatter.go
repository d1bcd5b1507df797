// 结构化日志辅助方法
package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NowFormatted 返回当前时间的毫秒精度格式："2006-01-02 15:04:05.000"
func NowFormatted() string {
	return time.Now().Format("2006-01-02 15:04:05.000")
}

// LogType 日志类型枚举
type LogType string

const (
	// AccessLog 访问日志 - 记录HTTP请求
	AccessLog LogType = "access"
	// ErrorLog 错误日志 - 记录系统错误和异常
	ErrorLog LogType = "error"
	// SystemLog 系统日志 - 记录组件生命周期
	SystemLog LogType = "system"
	// TaskLog 任务日志 - 记录任务状态迁移
	TaskLog LogType = "task"
	// RecoveryLog 恢复日志 - 记录崩溃、重启、错误数上升
	RecoveryLog LogType = "recovery"
	// HeartbeatLog 心跳日志 - 记录周期性健康汇总
	HeartbeatLog LogType = "heartbeat"
)

// LogAccessRequest 记录HTTP访问日志
func LogAccessRequest(c *gin.Context, startTime time.Time) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":          AccessLog,
		"method":        c.Request.Method,
		"path":          c.Request.URL.Path,
		"query":         c.Request.URL.RawQuery,
		"status_code":   c.Writer.Status(),
		"response_time": time.Since(startTime).Milliseconds(),
		"client_ip":     c.ClientIP(),
		"user_agent":    c.Request.UserAgent(),
		"response_size": c.Writer.Size(),
	}

	entry := LoggerInstance.logger.WithFields(fields)
	switch {
	case c.Writer.Status() >= 500:
		entry.Error("HTTP request processed")
	case c.Writer.Status() >= 400:
		entry.Warn("HTTP request processed")
	default:
		entry.Info("HTTP request processed")
	}
}

// LogSystemEvent 记录系统事件日志
// 用于记录组件启动、关闭、状态变化等系统级事件
func LogSystemEvent(component, event, message string, level LogLevel, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
		"detail":    message,
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	LoggerInstance.logger.WithFields(fields).Log(toLogrusLevel(level), fmt.Sprintf("System event: %s - %s", component, event))
}

// LogTaskTransition 记录任务状态迁移
func LogTaskTransition(agent, taskID, status string, retryCount int, durationMs int64, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":        TaskLog,
		"agent":       agent,
		"task_id":     taskID,
		"status":      status,
		"retry_count": retryCount,
		"duration_ms": durationMs,
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	entry := LoggerInstance.logger.WithFields(fields)
	switch status {
	case "failed", "error":
		entry.Warn(fmt.Sprintf("Task %s %s on %s", taskID, status, agent))
	case "completed":
		entry.Info(fmt.Sprintf("Task %s completed on %s", taskID, agent))
	default:
		entry.Debug(fmt.Sprintf("Task %s %s on %s", taskID, status, agent))
	}
}

// LogRecoveryEvent 记录恢复事件
func LogRecoveryEvent(component, event string, restartCount int, detail string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := logrus.Fields{
		"type":          RecoveryLog,
		"component":     component,
		"event":         event,
		"restart_count": restartCount,
		"detail":        detail,
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	LoggerInstance.logger.WithFields(fields).Warn(fmt.Sprintf("Recovery event: %s - %s", component, event))
}

// LogError 记录组件错误
func LogError(component string, err error, extraFields map[string]interface{}) {
	if LoggerInstance == nil || err == nil {
		return
	}

	fields := logrus.Fields{
		"type":      ErrorLog,
		"component": component,
		"error":     err.Error(),
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	LoggerInstance.logger.WithFields(fields).Error(fmt.Sprintf("%s error: %v", component, err))
}

// LogLevel 日志级别类型，封装logrus.Level避免调用方直接依赖logrus
type LogLevel int

const (
	// DebugLevel 调试级别
	DebugLevel LogLevel = iota
	// InfoLevel 信息级别
	InfoLevel
	// WarnLevel 警告级别
	WarnLevel
	// ErrorLevel 错误级别
	ErrorLevel
	// FatalLevel 致命错误级别
	FatalLevel
)

// toLogrusLevel 将封装的LogLevel转换为logrus.Level
func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
