/*
 * @author: Sun977
 * @date: 2026.01.21
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"auroraagent/internal/config"
	"auroraagent/internal/pkg/client"
	"auroraagent/internal/pkg/logger"
)

const defaultConsoleURL = "http://127.0.0.1:8090/api/v1"

var (
	cfgFile string
)

// rootCmd 不带子命令时的基础命令
var rootCmd = &cobra.Command{
	Use:   "aurora",
	Short: "Aurora 操作员控制台",
	Long: `Aurora 是本地运行的操作员控制台，负责把任务分派给外部CLI代理和输入控制执行器，
每个代理一个FIFO队列，按超时与退避重试执行，并持续写入审计流与心跳。

示例:
  1.启动控制台服务
	aurora server --config configs/config.yaml
  2.提交任务并等待结果
	aurora submit toolA "summarize README.md" --wait
  3.查看执行器健康与最近心跳
	aurora health
	aurora heartbeat
`,
	SilenceUsage: true,
	// 全局初始化逻辑，确保所有子命令都能使用日志
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLILogger(cmd)
	},
}

// Execute 执行根命令
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] Aurora crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	// 全局 Flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "日志级别 (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("console", defaultConsoleURL, "控制台API地址，客户端子命令使用")
	rootCmd.PersistentFlags().Duration("request-timeout", 10*time.Second, "客户端请求超时")

	// 绑定 Viper
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("console.url", rootCmd.PersistentFlags().Lookup("console"))
	_ = viper.BindPFlag("console.timeout", rootCmd.PersistentFlags().Lookup("request-timeout"))
	_ = viper.BindEnv("console.url", config.EnvPrefix+"_CONSOLE_URL")
}

// initCLILogger 初始化 CLI 模式下的日志
// 默认只输出 Fatal，server 子命令随后按配置文件重新初始化
func initCLILogger(cmd *cobra.Command) {
	flag := cmd.Flags().Lookup("log-level")
	level := "fatal"
	if flag != nil && flag.Changed {
		level = flag.Value.String()
	}

	switch level {
	case "debug":
		pterm.EnableDebugMessages()
	case "info":
		pterm.DisableDebugMessages()
	case "warn", "error", "fatal":
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}

	logConfig := &config.LogConfig{
		Level:  level,
		Format: "text",
		Output: "stdout",
		Caller: false,
	}

	if _, err := logger.InitLogger(logConfig); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
	}
}

// newConsoleClient 按全局 Flag 创建控制台客户端
func newConsoleClient() client.ConsoleClient {
	return client.NewConsoleClient(client.Options{
		BaseURL:    viper.GetString("console.url"),
		Timeout:    viper.GetDuration("console.timeout"),
		MaxRetries: 2,
	})
}
