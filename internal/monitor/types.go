package monitor

import (
	"time"

	"trade-gateway/internal/dispatch"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventDispatch  EventType = "dispatch"
	EventCancelAll EventType = "cancel_all"
	EventError     EventType = "error"
)

// ParseEventType 解析查询参数中的事件类型，空串表示全部。
func ParseEventType(s string) (EventType, bool) {
	switch t := EventType(s); t {
	case "", EventDispatch, EventCancelAll, EventError:
		return t, true
	default:
		return "", false
	}
}

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// DispatchPayload 记录一次多账户分发，下单与批量撤单共用。
type DispatchPayload struct {
	RequestID   string             `json:"request_id"`
	ClientID    string             `json:"client_id,omitempty"`
	Operation   string             `json:"operation"`
	Symbol      string             `json:"symbol,omitempty"`
	Price       float64            `json:"price,omitempty"`
	SizingMode  string             `json:"sizing_mode,omitempty"`
	SizingValue interface{}        `json:"sizing_value,omitempty"`
	Strategy    string             `json:"strategy_name,omitempty"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Outcomes    []dispatch.Outcome `json:"results"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
