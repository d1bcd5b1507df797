package input

import (
	"fmt"
	"math"
	"strings"

	"auroraagent/internal/executor/base"
)

// 支持的输入动作
const (
	ActionClick       = "click"
	ActionRightClick  = "right_click"
	ActionDoubleClick = "double_click"
	ActionMoveTo      = "move_to"
	ActionTypeText    = "type_text"
	ActionHotkey      = "hotkey"
	ActionScroll      = "scroll"
	ActionPressKey    = "press_key"
	ActionDrag        = "drag"
)

// SupportedActions 动作列表
var SupportedActions = []string{
	ActionClick, ActionRightClick, ActionDoubleClick, ActionMoveTo,
	ActionTypeText, ActionHotkey, ActionScroll, ActionPressKey, ActionDrag,
}

// 鼠标按键
const (
	ButtonLeft   = "left"
	ButtonMiddle = "middle"
	ButtonRight  = "right"
)

// maxTextLength type_text 单次最大字符数
const maxTextLength = 4096

// maxScrollAmount scroll 单次最大滚动格数（绝对值）
const maxScrollAmount = 100

// Action 校验后的输入动作
type Action struct {
	Name   string
	X, Y   *int // 目标坐标，点击类动作可省略（使用当前位置）
	FromX  *int // drag 起点，省略时从当前位置开始
	FromY  *int
	Button string
	Text   string
	Keys   []string
	Key    string
	Amount int // scroll 正数向上，负数向下
}

// String 动作摘要，用于日志和审计
func (a *Action) String() string {
	switch a.Name {
	case ActionTypeText:
		return fmt.Sprintf("%s(%d chars)", a.Name, len([]rune(a.Text)))
	case ActionHotkey:
		return fmt.Sprintf("%s(%s)", a.Name, strings.Join(a.Keys, "+"))
	case ActionPressKey:
		return fmt.Sprintf("%s(%s)", a.Name, a.Key)
	case ActionScroll:
		return fmt.Sprintf("%s(%d)", a.Name, a.Amount)
	}
	if a.X != nil && a.Y != nil {
		return fmt.Sprintf("%s(%d,%d)", a.Name, *a.X, *a.Y)
	}
	return a.Name
}

// ParseAction 从任务负载解析并校验动作
// 校验失败返回 ErrInvalidPayload，属于不可重试错误
func ParseAction(payload base.Payload) (*Action, error) {
	name := strings.TrimSpace(payload.Action)
	if name == "" {
		return nil, invalid("action is required")
	}
	params := payload.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	a := &Action{Name: name}
	var err error
	switch name {
	case ActionClick, ActionRightClick, ActionDoubleClick:
		if a.X, a.Y, err = optionalPoint(params, "x", "y"); err != nil {
			return nil, err
		}
		a.Button = ButtonLeft
		if name == ActionRightClick {
			a.Button = ButtonRight
		}
		if b, ok := params["button"]; ok && name == ActionClick {
			s, _ := b.(string)
			switch s {
			case ButtonLeft, ButtonMiddle, ButtonRight:
				a.Button = s
			default:
				return nil, invalid("button must be left, middle or right")
			}
		}

	case ActionMoveTo:
		if a.X, a.Y, err = requiredPoint(params, "x", "y"); err != nil {
			return nil, err
		}

	case ActionDrag:
		if a.X, a.Y, err = requiredPoint(params, "x", "y"); err != nil {
			return nil, err
		}
		if a.FromX, a.FromY, err = optionalPoint(params, "from_x", "from_y"); err != nil {
			return nil, err
		}

	case ActionTypeText:
		text, ok := params["text"].(string)
		if !ok || text == "" {
			return nil, invalid("text is required")
		}
		if len([]rune(text)) > maxTextLength {
			return nil, invalid(fmt.Sprintf("text exceeds %d characters", maxTextLength))
		}
		a.Text = text

	case ActionHotkey:
		keys, err := stringList(params["keys"])
		if err != nil || len(keys) == 0 {
			return nil, invalid("keys must be a non-empty list of key names")
		}
		a.Keys = keys

	case ActionPressKey:
		key, ok := params["key"].(string)
		if !ok || strings.TrimSpace(key) == "" {
			return nil, invalid("key is required")
		}
		a.Key = strings.TrimSpace(key)

	case ActionScroll:
		amount, ok := toInt(params["amount"])
		if !ok || amount == 0 {
			return nil, invalid("amount must be a non-zero integer")
		}
		if amount > maxScrollAmount || amount < -maxScrollAmount {
			return nil, invalid(fmt.Sprintf("amount exceeds %d", maxScrollAmount))
		}
		a.Amount = amount

	default:
		return nil, invalid(fmt.Sprintf("unsupported action %q", name))
	}
	return a, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", base.ErrInvalidPayload, msg)
}

func requiredPoint(params map[string]interface{}, xKey, yKey string) (*int, *int, error) {
	x, xok := toInt(params[xKey])
	y, yok := toInt(params[yKey])
	if !xok || !yok {
		return nil, nil, invalid(fmt.Sprintf("%s and %s are required integers", xKey, yKey))
	}
	if x < 0 || y < 0 {
		return nil, nil, invalid("coordinates must be non-negative")
	}
	return &x, &y, nil
}

func optionalPoint(params map[string]interface{}, xKey, yKey string) (*int, *int, error) {
	_, hasX := params[xKey]
	_, hasY := params[yKey]
	if !hasX && !hasY {
		return nil, nil, nil
	}
	return requiredPoint(params, xKey, yKey)
}

// toInt 兼容JSON解码得到的 float64 与直接传入的整数
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float32:
		return toInt(float64(n))
	default:
		return 0, false
	}
}

func stringList(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("invalid key %v", item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	case string:
		// 兼容 "ctrl+c" 写法
		return strings.Split(list, "+"), nil
	default:
		return nil, fmt.Errorf("keys must be a list")
	}
}
