/**
 * 控制台配置管理
 * @author: sun977
 * @date: 2025.10.21
 * @description: 控制台配置结构定义，负责加载和管理所有配置
 * @func: 配置结构体、全局配置访问、执行器配置转换
 */
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config 控制台配置
type Config struct {
	// 应用配置
	App *AppConfig `yaml:"app" mapstructure:"app"`

	// 服务器配置
	Server *ServerConfig `yaml:"server" mapstructure:"server"`

	// 日志配置
	Log *LogConfig `yaml:"log" mapstructure:"log"`

	// 审计流配置
	Audit *AuditConfig `yaml:"audit" mapstructure:"audit"`

	// 执行器默认配置
	Executor *ExecutorConfig `yaml:"executor" mapstructure:"executor"`

	// CLI代理列表
	Agents []AgentConfig `yaml:"agents" mapstructure:"agents"`

	// 输入控制执行器配置
	Input *InputConfig `yaml:"input" mapstructure:"input"`

	// 心跳监控配置
	Heartbeat *HeartbeatConfig `yaml:"heartbeat" mapstructure:"heartbeat"`

	// 操作员授权配置
	Operator *OperatorConfig `yaml:"operator" mapstructure:"operator"`

	// Redis镜像配置
	Redis *RedisConfig `yaml:"redis" mapstructure:"redis"`

	// 中间件配置
	Middleware *MiddlewareConfig `yaml:"middleware" mapstructure:"middleware"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`               // 应用名称
	Version     string `yaml:"version" mapstructure:"version"`         // 应用版本
	Environment string `yaml:"environment" mapstructure:"environment"` // 运行环境
	Debug       bool   `yaml:"debug" mapstructure:"debug"`             // 调试模式
	Operator    string `yaml:"operator" mapstructure:"operator"`       // 默认操作员标识，写入任务元数据
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `yaml:"host" mapstructure:"host"`                         // 监听地址
	Port           int           `yaml:"port" mapstructure:"port"`                         // 监听端口
	Mode           string        `yaml:"mode" mapstructure:"mode"`                         // 运行模式 (debug/release/test)
	APIVersion     string        `yaml:"api_version" mapstructure:"api_version"`           // API版本
	Prefix         string        `yaml:"prefix" mapstructure:"prefix"`                     // 路由前缀
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`         // 读取超时时间
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`       // 写入超时时间
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`         // 空闲超时时间
	MaxHeaderBytes int           `yaml:"max_header_bytes" mapstructure:"max_header_bytes"` // 最大头部字节数
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别 (debug/info/warn/error)
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式 (json/text)
	Output     string `yaml:"output" mapstructure:"output"`           // 日志输出 (stdout/stderr/file)
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 最大文件大小（MB）
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// AuditConfig 审计流配置
// 每个执行器一个JSONL文件，心跳与恢复事件各一个文件
type AuditConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`                   // 审计目录
	TaskLogDir string `yaml:"task_log_dir" mapstructure:"task_log_dir"` // 单任务日志目录
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`         // 单文件最大大小（MB）
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`   // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`           // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`         // 是否压缩
}

// ExecutorConfig 执行器默认配置，单个代理可覆盖
type ExecutorConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`             // 默认任务超时
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`     // 最大重试次数
	BackoffBase  time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`   // 退避基数
	GateCapacity int           `yaml:"gate_capacity" mapstructure:"gate_capacity"` // 并发闸门容量
	HistorySize  int           `yaml:"history_size" mapstructure:"history_size"`   // 历史环容量
}

// AgentConfig 单个CLI代理配置
type AgentConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`                 // 代理标识
	Command     []string      `yaml:"command" mapstructure:"command"`           // 启动参数向量
	CommandEnv  string        `yaml:"command_env" mapstructure:"command_env"`   // 覆盖命令的环境变量名，默认 <NAME>_CLI_CMD
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`           // 任务超时（0使用默认值）
	MaxRetries  *int          `yaml:"max_retries" mapstructure:"max_retries"`   // 最大重试次数（空使用默认值）
	HistorySize int           `yaml:"history_size" mapstructure:"history_size"` // 历史环容量
	RichAudit   bool          `yaml:"rich_audit" mapstructure:"rich_audit"`     // 是否写入扩展审计字段
	TaskLog     bool          `yaml:"task_log" mapstructure:"task_log"`         // 是否写入单任务日志
	PromptMode  string        `yaml:"prompt_mode" mapstructure:"prompt_mode"`   // 提示词传递方式 (stdin/arg)
}

// InputConfig 输入控制执行器配置
type InputConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`               // 是否启用
	Name          string        `yaml:"name" mapstructure:"name"`                     // 代理标识
	Driver        string        `yaml:"driver" mapstructure:"driver"`                 // 驱动 (xdotool/noop)
	DriverPath    string        `yaml:"driver_path" mapstructure:"driver_path"`       // 驱动二进制路径
	HistorySize   int           `yaml:"history_size" mapstructure:"history_size"`     // 历史环容量
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`       // 单动作最大重试次数
	RetryBase     time.Duration `yaml:"retry_base" mapstructure:"retry_base"`         // 单动作重试退避基数
	Cooldown      time.Duration `yaml:"cooldown" mapstructure:"cooldown"`             // 崩溃重启冷却时间
	MaxRestarts   int           `yaml:"max_restarts" mapstructure:"max_restarts"`     // 窗口内最大重启次数（0不限制）
	RestartWindow time.Duration `yaml:"restart_window" mapstructure:"restart_window"` // 重启计数窗口
	Failsafe      bool          `yaml:"failsafe" mapstructure:"failsafe"`             // 是否启用屏幕角落急停
}

// HeartbeatConfig 心跳监控配置
type HeartbeatConfig struct {
	Interval     time.Duration `yaml:"interval" mapstructure:"interval"`           // 心跳间隔
	PollTimeout  time.Duration `yaml:"poll_timeout" mapstructure:"poll_timeout"`   // 单执行器轮询超时
	RecentEvents int           `yaml:"recent_events" mapstructure:"recent_events"` // 内存保留恢复事件数
}

// OperatorConfig 操作员授权配置
type OperatorConfig struct {
	AuthFile string `yaml:"auth_file" mapstructure:"auth_file"` // 授权文件路径
	Watch    bool   `yaml:"watch" mapstructure:"watch"`         // 是否监听授权文件变化
}

// RedisConfig Redis镜像配置
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`             // 是否启用
	Addr         string `yaml:"addr" mapstructure:"addr"`                   // 地址
	Password     string `yaml:"password" mapstructure:"password"`           // 密码
	DB           int    `yaml:"db" mapstructure:"db"`                       // 数据库编号
	StreamPrefix string `yaml:"stream_prefix" mapstructure:"stream_prefix"` // 流名称前缀
	MaxLen       int64  `yaml:"max_len" mapstructure:"max_len"`             // 流最大长度
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Logging *LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// LoggingConfig 日志中间件配置
type LoggingConfig struct {
	EnableRequestLog     bool          `yaml:"enable_request_log" mapstructure:"enable_request_log"`
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold" mapstructure:"slow_request_threshold"`
	SkipPaths            []string      `yaml:"skip_paths" mapstructure:"skip_paths"`
}

// globalConfig 全局配置
var globalConfig *Config

// LoadConfig 加载配置
func LoadConfig(configPath ...string) (*Config, error) {
	var path string
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	loader := NewConfigLoader(path, EnvPrefix)
	config, err := loader.LoadConfig()
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}

// ResolveCommand 解析代理的启动参数向量
// 环境变量覆盖优先于配置文件，按空白切分为参数向量，不经过shell
func (a *AgentConfig) ResolveCommand() []string {
	envName := a.CommandEnv
	if envName == "" {
		envName = CommandEnvName(a.Name)
	}
	if override := strings.TrimSpace(os.Getenv(envName)); override != "" {
		return strings.Fields(override)
	}
	if len(a.Command) > 0 {
		return append([]string(nil), a.Command...)
	}
	return []string{a.Name}
}

// CommandEnvName 返回代理命令覆盖环境变量名，如 claude -> CLAUDE_CLI_CMD
func CommandEnvName(agent string) string {
	name := strings.ToUpper(agent)
	name = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
	return fmt.Sprintf("%s_CLI_CMD", name)
}

// EffectiveMaxRetries 返回代理最大重试次数
func (a *AgentConfig) EffectiveMaxRetries(defaults *ExecutorConfig) int {
	if a.MaxRetries != nil {
		return *a.MaxRetries
	}
	return defaults.MaxRetries
}

// EffectiveTimeout 返回代理默认超时
func (a *AgentConfig) EffectiveTimeout(defaults *ExecutorConfig) time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return defaults.Timeout
}

// EffectiveHistorySize 返回代理历史环容量
func (a *AgentConfig) EffectiveHistorySize(defaults *ExecutorConfig) int {
	if a.HistorySize > 0 {
		return a.HistorySize
	}
	return defaults.HistorySize
}
