package setup

import (
	"fmt"
	"path/filepath"

	"auroraagent/internal/config"
	"auroraagent/internal/executor/cli"
	"auroraagent/internal/executor/input"
	"auroraagent/internal/executor/manager"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/pkg/logger"
	"auroraagent/internal/service/monitor"
)

// SetupCore 初始化控制台、心跳监控和所有执行器
// 心跳监控先于执行器创建，作为恢复事件和错误计数的接收方
func SetupCore(cfg *config.Config, audits *audit.Manager) (*CoreModule, error) {
	console := manager.NewConsole()

	mon := monitor.NewHeartbeatMonitor(monitor.Options{
		Interval:       cfg.Heartbeat.Interval,
		PollTimeout:    cfg.Heartbeat.PollTimeout,
		RecentEvents:   cfg.Heartbeat.RecentEvents,
		HeartbeatSink:  audits.Stream("heartbeat"),
		RecoverySink:   audits.Stream("recovery_events"),
		Source:         console.Providers,
		CollectMetrics: true,
	})
	console.SetHeartbeatSource(mon)

	module := &CoreModule{Console: console, Monitor: mon}

	for i := range cfg.Agents {
		exec, err := newAgentExecutor(cfg, &cfg.Agents[i], audits, mon)
		if err != nil {
			return nil, err
		}
		if err := console.Register(exec); err != nil {
			return nil, err
		}
	}

	if cfg.Input != nil && cfg.Input.Enabled {
		if err := setupInput(cfg, module, audits); err != nil {
			module.Close()
			return nil, err
		}
	}

	logger.LogSystemEvent("console", "setup", fmt.Sprintf("Registered %d executors", len(console.Agents())), logger.InfoLevel, map[string]interface{}{
		"agents": console.Agents(),
	})
	return module, nil
}

func newAgentExecutor(cfg *config.Config, agent *config.AgentConfig, audits *audit.Manager, mon *monitor.HeartbeatMonitor) (*cli.AgentExecutor, error) {
	command := agent.ResolveCommand()
	invoker := cli.NewProcessInvoker(command, agent.PromptMode)

	opts := cli.Options{
		Name:         agent.Name,
		Invoker:      invoker,
		Timeout:      agent.EffectiveTimeout(cfg.Executor),
		MaxRetries:   agent.EffectiveMaxRetries(cfg.Executor),
		BackoffBase:  cfg.Executor.BackoffBase,
		GateCapacity: cfg.Executor.GateCapacity,
		HistorySize:  agent.EffectiveHistorySize(cfg.Executor),
		RichAudit:    agent.RichAudit,
		Sink:         audits.Stream(AuditStreamName(agent.Name)),
		Errors:       mon,
	}
	if agent.TaskLog {
		opts.TaskLogDir = filepath.Join(cfg.Audit.TaskLogDir, agent.Name)
	}

	exec, err := cli.NewAgentExecutor(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor %s: %w", agent.Name, err)
	}
	logger.LogSystemEvent("console", "agent_configured", fmt.Sprintf("Agent %s uses %v", agent.Name, command), logger.DebugLevel, map[string]interface{}{
		"agent":       agent.Name,
		"command":     command,
		"prompt_mode": agent.PromptMode,
		"timeout":     opts.Timeout.String(),
		"max_retries": opts.MaxRetries,
	})
	return exec, nil
}

// setupInput 创建输入控制执行器，授权文件变化时热更新
func setupInput(cfg *config.Config, module *CoreModule, audits *audit.Manager) error {
	driver, err := input.NewDriver(cfg.Input.Driver, cfg.Input.DriverPath, cfg.Input.Failsafe)
	if err != nil {
		return err
	}

	authFile := cfg.Operator.AuthFile
	if cfg.Operator.Watch {
		gate, watcher, err := config.WatchOperator(authFile, func(oldAuth, newAuth *config.OperatorAuth) {
			logger.LogSystemEvent("operator", "reloaded", "Operator authorization changed", logger.InfoLevel, map[string]interface{}{
				"was_allowed": oldAuth.InputControlAllowed(),
				"allowed":     newAuth.InputControlAllowed(),
				"updated_by":  newAuth.UpdatedBy,
			})
		})
		if err != nil {
			return fmt.Errorf("failed to watch operator auth file: %w", err)
		}
		module.Gate, module.Watcher = gate, watcher
	} else {
		auth, err := config.LoadOperatorAuth(authFile)
		if err != nil {
			return err
		}
		module.Gate = config.NewOperatorGate(auth)
	}

	exec, err := input.NewInputExecutor(input.Options{
		Name:          cfg.Input.Name,
		Driver:        driver,
		Authorizer:    module.Gate,
		HistorySize:   cfg.Input.HistorySize,
		MaxRetries:    cfg.Input.MaxRetries,
		RetryBase:     cfg.Input.RetryBase,
		Cooldown:      cfg.Input.Cooldown,
		MaxRestarts:   cfg.Input.MaxRestarts,
		RestartWindow: cfg.Input.RestartWindow,
		Sink:          audits.Stream(AuditStreamName(cfg.Input.Name)),
		Recorder:      module.Monitor,
		Errors:        module.Monitor,
	})
	if err != nil {
		return err
	}
	return module.Console.Register(exec)
}

// Close 停止授权文件监听
func (m *CoreModule) Close() {
	if m.Watcher != nil {
		_ = m.Watcher.Stop()
	}
}
