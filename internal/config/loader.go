package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "AURORA"

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = EnvPrefix
	}

	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// LoadConfig 加载配置
// 顺序: .env -> 默认值 -> 配置文件 -> 环境变量
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	env := cl.getEnvironment()
	if err := NewEnvLoader(".env."+env, ".env").Load(); err != nil {
		return nil, err
	}

	cl.viper.SetConfigType("yaml")

	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cl.setDefaults()

	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadConfigFile 加载配置文件
// 没有找到任何配置文件时使用默认值运行
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configPath == "" {
		if envPath := os.Getenv(cl.envPrefix + "_CONFIG_PATH"); envPath != "" {
			cl.configPath = envPath
		}
	}

	// 直接指定了文件
	if cl.configPath != "" && filepath.Ext(cl.configPath) != "" {
		cl.viper.SetConfigFile(cl.configPath)
		return cl.viper.ReadInConfig()
	}

	if cl.configPath != "" {
		cl.viper.AddConfigPath(cl.configPath)
	}
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")

	// 优先加载环境特定的配置文件
	cl.viper.SetConfigName(fmt.Sprintf("config.%s", cl.getEnvironment()))
	if err := cl.viper.ReadInConfig(); err == nil {
		return nil
	}

	cl.viper.SetConfigName("config")
	if err := cl.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// getEnvironment 获取运行环境
func (cl *ConfigLoader) getEnvironment() string {
	env := os.Getenv(cl.envPrefix + "_ENV")
	if env == "" {
		env = os.Getenv("GO_ENV")
	}
	if env == "" {
		env = "development"
	}
	return env
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	// App默认值
	cl.viper.SetDefault("app.name", "Aurora")
	cl.viper.SetDefault("app.version", "1.0.0")
	cl.viper.SetDefault("app.environment", "development")
	cl.viper.SetDefault("app.debug", false)
	cl.viper.SetDefault("app.operator", "")

	// Server默认值
	cl.viper.SetDefault("server.host", "127.0.0.1")
	cl.viper.SetDefault("server.port", 8090)
	cl.viper.SetDefault("server.mode", "release")
	cl.viper.SetDefault("server.api_version", "v1")
	cl.viper.SetDefault("server.prefix", "/api")
	cl.viper.SetDefault("server.read_timeout", "30s")
	cl.viper.SetDefault("server.write_timeout", "30s")
	cl.viper.SetDefault("server.idle_timeout", "60s")
	cl.viper.SetDefault("server.max_header_bytes", 1048576)

	// 日志默认值
	cl.viper.SetDefault("log.level", "info")
	cl.viper.SetDefault("log.format", "json")
	cl.viper.SetDefault("log.output", "stdout")
	cl.viper.SetDefault("log.file_path", "./logs/aurora.log")
	cl.viper.SetDefault("log.max_size", 100)
	cl.viper.SetDefault("log.max_backups", 3)
	cl.viper.SetDefault("log.max_age", 28)
	cl.viper.SetDefault("log.compress", true)
	cl.viper.SetDefault("log.caller", false)

	// 审计默认值
	cl.viper.SetDefault("audit.dir", "./logs/audit")
	cl.viper.SetDefault("audit.task_log_dir", "./logs/tasks")
	cl.viper.SetDefault("audit.max_size", 50)
	cl.viper.SetDefault("audit.max_backups", 5)
	cl.viper.SetDefault("audit.max_age", 90)
	cl.viper.SetDefault("audit.compress", false)

	// 执行器默认值
	cl.viper.SetDefault("executor.timeout", "300s")
	cl.viper.SetDefault("executor.max_retries", 2)
	cl.viper.SetDefault("executor.backoff_base", "1s")
	cl.viper.SetDefault("executor.gate_capacity", 1)
	cl.viper.SetDefault("executor.history_size", 20)

	// 输入控制默认值
	cl.viper.SetDefault("input.enabled", false)
	cl.viper.SetDefault("input.name", "input")
	cl.viper.SetDefault("input.driver", "xdotool")
	cl.viper.SetDefault("input.driver_path", "xdotool")
	cl.viper.SetDefault("input.history_size", 50)
	cl.viper.SetDefault("input.max_retries", 2)
	cl.viper.SetDefault("input.retry_base", "1s")
	cl.viper.SetDefault("input.cooldown", "2s")
	cl.viper.SetDefault("input.max_restarts", 0)
	cl.viper.SetDefault("input.restart_window", "5m")
	cl.viper.SetDefault("input.failsafe", true)

	// 心跳默认值
	cl.viper.SetDefault("heartbeat.interval", "60s")
	cl.viper.SetDefault("heartbeat.poll_timeout", "2s")
	cl.viper.SetDefault("heartbeat.recent_events", 100)

	// 操作员授权默认值
	cl.viper.SetDefault("operator.auth_file", "./configs/operator_enabled.yaml")
	cl.viper.SetDefault("operator.watch", true)

	// Redis默认值
	cl.viper.SetDefault("redis.enabled", false)
	cl.viper.SetDefault("redis.addr", "127.0.0.1:6379")
	cl.viper.SetDefault("redis.password", "")
	cl.viper.SetDefault("redis.db", 0)
	cl.viper.SetDefault("redis.stream_prefix", "aurora")
	cl.viper.SetDefault("redis.max_len", 10000)

	// 中间件默认值
	cl.viper.SetDefault("middleware.logging.enable_request_log", true)
	cl.viper.SetDefault("middleware.logging.slow_request_threshold", "2s")
	cl.viper.SetDefault("middleware.logging.skip_paths", []string{"/health", "/ping"})
}

// validateConfig 验证配置
func (cl *ConfigLoader) validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor.max_retries must not be negative: %d", config.Executor.MaxRetries)
	}

	if config.Executor.GateCapacity < 1 {
		return fmt.Errorf("executor.gate_capacity must be at least 1: %d", config.Executor.GateCapacity)
	}

	if config.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be positive")
	}

	seen := make(map[string]struct{}, len(config.Agents)+1)
	for i, agent := range config.Agents {
		if strings.TrimSpace(agent.Name) == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		if _, dup := seen[agent.Name]; dup {
			return fmt.Errorf("agents[%d]: duplicate agent name %q", i, agent.Name)
		}
		if agent.MaxRetries != nil && *agent.MaxRetries < 0 {
			return fmt.Errorf("agents[%d]: max_retries must not be negative", i)
		}
		seen[agent.Name] = struct{}{}
	}

	if config.Input.Enabled {
		if _, dup := seen[config.Input.Name]; dup {
			return fmt.Errorf("input.name %q collides with a CLI agent", config.Input.Name)
		}
	}

	return cl.validateDirectories(config)
}

// validateDirectories 创建审计与任务日志目录
func (cl *ConfigLoader) validateDirectories(config *Config) error {
	dirs := []string{
		config.Audit.Dir,
		config.Audit.TaskLogDir,
	}

	for _, dir := range dirs {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// GetConfigPath 获取配置文件路径
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	loader := NewConfigLoader(configFile, EnvPrefix)
	return loader.LoadConfig()
}
