/*
 * @author: Sun977
 * @date: 2026.01.21
 * @description: Server 模式子命令，前台运行控制台直到收到中断信号
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"auroraagent/internal/app/agent"
	"auroraagent/internal/config"
	"auroraagent/internal/pkg/version"
)

var (
	serverHost string
	serverPort int
)

// serverCmd 启动控制台服务
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动控制台服务",
	Long: `加载配置，启动所有执行器、心跳监控与HTTP接口。

命令行参数优先级高于配置文件与环境变量。

示例:
  aurora server --config configs/config.yaml --port 8090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "", "监听地址 (覆盖 server.host)")
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "监听端口 (覆盖 server.port)")
}

func runServer(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort > 0 {
		cfg.Server.Port = serverPort
	}
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		cfg.Log.Level = flag.Value.String()
	}

	app, err := agent.NewAppWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create console app: %w", err)
	}

	if err := app.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start console app: %w", err)
	}
	pterm.Success.Printfln("Aurora %s listening on %s (%d executors)", version.GetVersion(), app.Addr(), len(app.GetConsole().Agents()))

	// 等待中断信号或HTTP服务异常退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case sig := <-quit:
		pterm.Info.Printfln("Received %s, shutting down...", sig)
	case serveErr = <-app.ServerErr():
		pterm.Error.Printfln("HTTP server failed: %v", serveErr)
	}

	// 给执行器5秒钟的时间来排空在途任务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.Stop(ctx); err != nil {
		return fmt.Errorf("console forced to shutdown: %w", err)
	}
	if serveErr != nil {
		return serveErr
	}

	pterm.Info.Println("Aurora exiting")
	return nil
}
