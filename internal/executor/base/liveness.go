package base

import (
	"encoding/json"
	"fmt"
)

// Liveness 消费循环存活状态
// JSON 中编码为 true / false / "unknown"
type Liveness string

const (
	LivenessAlive   Liveness = "alive"
	LivenessStopped Liveness = "stopped"
	LivenessUnknown Liveness = "unknown"
)

// LivenessOf 由布尔值构造
func LivenessOf(running bool) Liveness {
	if running {
		return LivenessAlive
	}
	return LivenessStopped
}

// MarshalJSON 实现 json.Marshaler
func (l Liveness) MarshalJSON() ([]byte, error) {
	switch l {
	case LivenessAlive:
		return []byte("true"), nil
	case LivenessStopped, "":
		return []byte("false"), nil
	default:
		return json.Marshal(string(LivenessUnknown))
	}
}

// UnmarshalJSON 实现 json.Unmarshaler
func (l *Liveness) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*l = LivenessAlive
		return nil
	case "false", "null":
		*l = LivenessStopped
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid liveness %s: %w", string(data), err)
	}
	if s != string(LivenessUnknown) {
		return fmt.Errorf("invalid liveness %q", s)
	}
	*l = LivenessUnknown
	return nil
}
