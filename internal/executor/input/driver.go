package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"auroraagent/internal/executor/base"
	"auroraagent/internal/pkg/logger"
)

// ActionDriver 输入设备驱动
// 急停返回 base.ErrAbortSignal；驱动内部 panic 由监督循环接管
type ActionDriver interface {
	Name() string
	Perform(ctx context.Context, action *Action) error
}

// NewDriver 按名称创建驱动
func NewDriver(name, path string, failsafe bool) (ActionDriver, error) {
	switch name {
	case "", "xdotool":
		return NewXdotoolDriver(path, failsafe), nil
	case "noop":
		return &NoopDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported input driver %q", name)
	}
}

// ==================== 空驱动 ====================

// NoopDriver 只记录动作不操作设备，用于演练
type NoopDriver struct {
	mu      sync.Mutex
	actions []string
}

// Name 驱动名称
func (d *NoopDriver) Name() string {
	return "noop"
}

// Perform 记录动作
func (d *NoopDriver) Perform(ctx context.Context, action *Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.actions = append(d.actions, action.String())
	d.mu.Unlock()
	logger.Debugf("noop input driver: %s", action)
	return nil
}

// Performed 已记录的动作
func (d *NoopDriver) Performed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

// ==================== xdotool 驱动 ====================

// commandRunner 执行外部命令并返回标准输出
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), err
}

// XdotoolDriver 通过 xdotool 操作 X11 鼠标键盘，参数向量直接传递，不经过shell
type XdotoolDriver struct {
	Path     string
	Failsafe bool // 指针位于屏幕角落时拒绝执行
	run      commandRunner
}

// NewXdotoolDriver 创建 xdotool 驱动
func NewXdotoolDriver(path string, failsafe bool) *XdotoolDriver {
	if path == "" {
		path = "xdotool"
	}
	return &XdotoolDriver{Path: path, Failsafe: failsafe, run: runCommand}
}

// Name 驱动名称
func (d *XdotoolDriver) Name() string {
	return "xdotool"
}

// Perform 执行动作，执行前检查急停
func (d *XdotoolDriver) Perform(ctx context.Context, action *Action) error {
	if d.Failsafe {
		if err := d.checkFailsafe(ctx); err != nil {
			return err
		}
	}
	args, err := Argv(action)
	if err != nil {
		return err
	}
	if _, err := d.run(ctx, d.Path, args...); err != nil {
		return classifyDriverError(err)
	}
	return nil
}

// checkFailsafe 指针位于屏幕任一角落时返回中止信号
func (d *XdotoolDriver) checkFailsafe(ctx context.Context) error {
	loc, err := d.run(ctx, d.Path, "getmouselocation", "--shell")
	if err != nil {
		return classifyDriverError(err)
	}
	geo, err := d.run(ctx, d.Path, "getdisplaygeometry")
	if err != nil {
		return classifyDriverError(err)
	}

	vars := parseShellVars(loc)
	x, xerr := strconv.Atoi(vars["X"])
	y, yerr := strconv.Atoi(vars["Y"])
	dims := strings.Fields(geo)
	if xerr != nil || yerr != nil || len(dims) != 2 {
		return base.NewRetryableError(1, "unreadable pointer location", nil)
	}
	w, werr := strconv.Atoi(dims[0])
	h, herr := strconv.Atoi(dims[1])
	if werr != nil || herr != nil {
		return base.NewRetryableError(1, "unreadable display geometry", nil)
	}

	if InCorner(x, y, w, h) {
		return fmt.Errorf("%w: pointer at screen corner (%d,%d)", base.ErrAbortSignal, x, y)
	}
	return nil
}

// InCorner 坐标是否位于屏幕四角
func InCorner(x, y, width, height int) bool {
	left := x <= 0
	right := x >= width-1
	top := y <= 0
	bottom := y >= height-1
	return (left || right) && (top || bottom)
}

// Argv 动作对应的 xdotool 参数向量
func Argv(a *Action) ([]string, error) {
	itoa := strconv.Itoa
	move := func(x, y *int) []string {
		if x == nil || y == nil {
			return nil
		}
		return []string{"mousemove", itoa(*x), itoa(*y)}
	}

	switch a.Name {
	case ActionClick, ActionRightClick:
		return append(move(a.X, a.Y), "click", buttonCode(a.Button)), nil
	case ActionDoubleClick:
		return append(move(a.X, a.Y), "click", "--repeat", "2", buttonCode(ButtonLeft)), nil
	case ActionMoveTo:
		return move(a.X, a.Y), nil
	case ActionDrag:
		args := move(a.FromX, a.FromY)
		args = append(args, "mousedown", "1")
		args = append(args, move(a.X, a.Y)...)
		return append(args, "mouseup", "1"), nil
	case ActionTypeText:
		return []string{"type", "--", a.Text}, nil
	case ActionHotkey:
		return []string{"key", "--", strings.Join(a.Keys, "+")}, nil
	case ActionPressKey:
		return []string{"key", "--", a.Key}, nil
	case ActionScroll:
		button, n := "4", a.Amount
		if n < 0 {
			button, n = "5", -n
		}
		return []string{"click", "--repeat", itoa(n), button}, nil
	default:
		return nil, invalid(fmt.Sprintf("unsupported action %q", a.Name))
	}
}

func buttonCode(button string) string {
	switch button {
	case ButtonMiddle:
		return "2"
	case ButtonRight:
		return "3"
	default:
		return "1"
	}
}

func parseShellVars(s string) map[string]string {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if k, v, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "="); ok {
			vars[k] = v
		}
	}
	return vars
}

// classifyDriverError 驱动缺失为终止错误，其余为可重试错误
func classifyDriverError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return base.NewTerminalError(127, "input driver not found", err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return base.NewRetryableError(exitErr.ExitCode(), "input driver failed", err)
	}
	return base.NewRetryableError(1, "input driver failed", err)
}
