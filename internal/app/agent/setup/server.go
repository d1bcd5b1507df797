package setup

import (
	"fmt"
	"net/http"

	"auroraagent/internal/app/agent/middleware"
	"auroraagent/internal/app/agent/router"
	"auroraagent/internal/config"
	"auroraagent/internal/executor/manager"
)

// SetupServer 初始化服务器模块
func SetupServer(cfg *config.Config, console *manager.Console) *ServerModule {
	routerConfig := &router.RouterConfig{
		Debug:      cfg.App.Debug,
		APIVersion: cfg.Server.APIVersion,
		Prefix:     cfg.Server.Prefix,
	}
	if cfg.Middleware != nil {
		routerConfig.Logging = middleware.LoggingConfigFrom(cfg.Middleware.Logging)
	}

	r := router.NewRouter(routerConfig, console)

	httpServer := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        r.GetEngine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return &ServerModule{
		Router:     r,
		HTTPServer: httpServer,
	}
}
