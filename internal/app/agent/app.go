/**
 * 控制台应用程序核心逻辑
 * @author: sun977
 * @date: 2025.10.21
 * @description: 负责按顺序初始化配置、日志、审计流、执行器、心跳监控与HTTP适配层，并负责优雅停机
 * @architecture: 应用逻辑从main函数中分离，各模块在 setup 包中组装
 */

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"auroraagent/internal/app/agent/router"
	"auroraagent/internal/app/agent/setup"
	"auroraagent/internal/config"
	"auroraagent/internal/executor/manager"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/pkg/logger"
	"auroraagent/internal/pkg/monitor"
	"auroraagent/internal/pkg/version"
	svcmonitor "auroraagent/internal/service/monitor"
)

// App 控制台应用程序
type App struct {
	router     *router.Router
	httpServer *http.Server
	config     *config.Config
	logger     *logger.LoggerManager
	audits     *audit.Manager
	core       *setup.CoreModule
	serverErr  chan error
	addr       string
}

// NewApp 创建控制台应用程序实例
func NewApp(configPath string) (*App, error) {
	// 加载配置
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig 使用已加载的配置创建应用程序
func NewAppWithConfig(cfg *config.Config) (*App, error) {
	// 初始化日志管理器
	loggerManager, err := logger.InitLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	logger.Info("Aurora console initializing...")

	audits, err := setup.SetupAudit(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	coreModule, err := setup.SetupCore(cfg, audits.Manager)
	if err != nil {
		_ = audits.Manager.Close()
		return nil, fmt.Errorf("failed to set up executors: %w", err)
	}

	serverModule := setup.SetupServer(cfg, coreModule.Console)

	return &App{
		router:     serverModule.Router,
		httpServer: serverModule.HTTPServer,
		config:     cfg,
		logger:     loggerManager,
		audits:     audits.Manager,
		core:       coreModule,
		serverErr:  make(chan error, 1),
	}, nil
}

// GetRouter 获取路由器实例
func (a *App) GetRouter() *router.Router {
	return a.router
}

// GetConfig 获取配置实例
func (a *App) GetConfig() *config.Config {
	return a.config
}

// GetConsole 获取控制台
func (a *App) GetConsole() *manager.Console {
	return a.core.Console
}

// GetMonitor 获取心跳监控
func (a *App) GetMonitor() *svcmonitor.HeartbeatMonitor {
	return a.core.Monitor
}

// Addr HTTP服务实际监听地址，Start 之后有效
func (a *App) Addr() string {
	return a.addr
}

// ServerErr HTTP服务异常退出时收到错误
func (a *App) ServerErr() <-chan error {
	return a.serverErr
}

// Start 启动执行器、心跳监控与HTTP服务
func (a *App) Start(ctx context.Context) error {
	if hostInfo, err := monitor.GetHostInfo(); err == nil {
		logger.LogSystemEvent("app", "host", fmt.Sprintf("Running on %s (%s/%s, %d cores)", hostInfo.Hostname, hostInfo.OS, hostInfo.Arch, hostInfo.CPUCores), logger.InfoLevel, map[string]interface{}{
			"version": version.GetVersion(),
		})
	}

	if err := a.core.Console.StartAll(ctx); err != nil {
		return err
	}
	if err := a.core.Monitor.Start(ctx); err != nil {
		_ = a.core.Console.StopAll(ctx)
		return err
	}

	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		_ = a.core.Monitor.Stop(ctx)
		_ = a.core.Console.StopAll(ctx)
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}

	a.addr = listener.Addr().String()

	go func() {
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("app", fmt.Errorf("HTTP server stopped: %w", err), nil)
			a.serverErr <- err
		}
	}()

	logger.Infof("Aurora console listening on %s", listener.Addr())
	return nil
}

// Stop 优雅停机：先停止接收请求，再停止执行器，最后写入最终心跳并关闭审计流
func (a *App) Stop(ctx context.Context) error {
	logger.Info("Stopping Aurora console...")

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	if err := a.core.Console.StopAll(ctx); err != nil {
		errs = append(errs, err)
	}

	// 最终心跳不受已过期的停机ctx影响
	monCtx, cancel := context.WithTimeout(context.Background(), a.config.Heartbeat.PollTimeout+2*time.Second)
	defer cancel()
	if err := a.core.Monitor.Stop(monCtx); err != nil {
		errs = append(errs, err)
	}

	a.core.Close()
	if err := a.audits.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audit streams: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.LogError("app", err, nil)
		return err
	}
	logger.Info("Aurora console stopped")
	return nil
}
