package setup

import (
	"net/http"

	"auroraagent/internal/app/agent/router"
	"auroraagent/internal/config"
	"auroraagent/internal/executor/manager"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/service/monitor"
)

// AuditModule 审计流模块
type AuditModule struct {
	Manager *audit.Manager
	Mirror  *audit.RedisMirror // 未启用Redis时为nil
}

// CoreModule 执行器与监控模块
type CoreModule struct {
	Console *manager.Console
	Monitor *monitor.HeartbeatMonitor
	Gate    *config.OperatorGate
	Watcher *config.OperatorWatcher // 未启用监听时为nil
}

// ServerModule 服务器模块
type ServerModule struct {
	Router     *router.Router
	HTTPServer *http.Server
}
