/**
 * 操作员授权
 * @author: sun977
 * @date: 2025.10.21
 * @description: 读取操作员授权文件，决定输入控制动作是否允许执行
 * @func: OperatorAuth 文件结构, OperatorGate 并发安全的授权状态
 */
package config

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// OperatorAuth 授权文件结构
//
//	operator_enabled: true
//	features:
//	  control_mouse_keyboard: true
type OperatorAuth struct {
	OperatorEnabled bool            `yaml:"operator_enabled"`
	Features        OperatorFeature `yaml:"features"`
	UpdatedBy       string          `yaml:"updated_by,omitempty"`
	UpdatedAt       string          `yaml:"updated_at,omitempty"`
}

// OperatorFeature 功能开关
type OperatorFeature struct {
	ControlMouseKeyboard bool `yaml:"control_mouse_keyboard"`
}

// InputControlAllowed 输入控制是否被授权
func (a *OperatorAuth) InputControlAllowed() bool {
	return a != nil && a.OperatorEnabled && a.Features.ControlMouseKeyboard
}

// LoadOperatorAuth 读取授权文件
// 文件不存在视为未授权，不返回错误
func LoadOperatorAuth(path string) (*OperatorAuth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &OperatorAuth{}, nil
		}
		return nil, fmt.Errorf("failed to read operator auth file %s: %w", path, err)
	}

	var auth OperatorAuth
	if err := yaml.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse operator auth file %s: %w", path, err)
	}
	return &auth, nil
}

// SaveOperatorAuth 写入授权文件
func SaveOperatorAuth(path string, auth *OperatorAuth) error {
	if auth.UpdatedAt == "" {
		auth.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := yaml.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to encode operator auth: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// OperatorGate 授权状态，供执行器在提交和执行时查询
type OperatorGate struct {
	auth atomic.Pointer[OperatorAuth]
}

// NewOperatorGate 创建授权状态
func NewOperatorGate(initial *OperatorAuth) *OperatorGate {
	g := &OperatorGate{}
	if initial == nil {
		initial = &OperatorAuth{}
	}
	g.auth.Store(initial)
	return g
}

// Allowed 输入控制是否被授权
func (g *OperatorGate) Allowed() bool {
	return g.auth.Load().InputControlAllowed()
}

// Current 当前授权快照
func (g *OperatorGate) Current() OperatorAuth {
	return *g.auth.Load()
}

// Update 替换授权状态，返回旧值
func (g *OperatorGate) Update(auth *OperatorAuth) *OperatorAuth {
	if auth == nil {
		auth = &OperatorAuth{}
	}
	return g.auth.Swap(auth)
}
