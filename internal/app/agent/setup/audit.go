package setup

import (
	"context"
	"fmt"

	"auroraagent/internal/config"
	"auroraagent/internal/pkg/audit"
	"auroraagent/internal/pkg/logger"
)

// SetupAudit 初始化审计流，启用时连接Redis镜像
// Redis不可用不影响启动，本地JSONL始终写入
func SetupAudit(ctx context.Context, cfg *config.Config) (*AuditModule, error) {
	module := &AuditModule{}

	var mirror audit.Mirror
	if cfg.Redis != nil && cfg.Redis.Enabled {
		m, err := audit.NewRedisMirror(ctx, audit.RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamPrefix: cfg.Redis.StreamPrefix,
			MaxLen:       cfg.Redis.MaxLen,
		})
		if err != nil {
			logger.LogSystemEvent("audit", "redis_mirror", "Redis mirror disabled: "+err.Error(), logger.WarnLevel, map[string]interface{}{
				"addr": cfg.Redis.Addr,
			})
		} else {
			module.Mirror = m
			mirror = m
		}
	}

	mgr, err := audit.NewManager(audit.Options{
		Dir:        cfg.Audit.Dir,
		MaxSize:    cfg.Audit.MaxSize,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAge:     cfg.Audit.MaxAge,
		Compress:   cfg.Audit.Compress,
		Mirror:     mirror,
	})
	if err != nil {
		if module.Mirror != nil {
			_ = module.Mirror.Close()
		}
		return nil, fmt.Errorf("failed to init audit streams: %w", err)
	}
	module.Manager = mgr
	return module, nil
}

// AuditStreamName 执行器审计流名称，文件为 <audit_dir>/<agent>_audit.jsonl
func AuditStreamName(agent string) string {
	return agent + "_audit"
}
