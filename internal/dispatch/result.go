package dispatch

import (
	"context"

	"github.com/google/uuid"
)

// Status 单个账户的执行状态。
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome 单个账户的执行结果。
type Outcome struct {
	AccountIndex int         `json:"account_index"`
	AccountID    string      `json:"-"`
	Status       Status      `json:"status"`
	Result       interface{} `json:"result,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Result 汇总结果，Outcomes 与注册表顺序一致。
type Result struct {
	RequestID string
	Outcomes  []Outcome
}

// Count 返回成功与失败数量。
func (r Result) Count() (succeeded, failed int) {
	for _, o := range r.Outcomes {
		if o.Status == StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

type requestIDKey struct{}

// WithRequestID 在 context 中记录请求 ID。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID 读取请求 ID，不存在时生成新的 ID。
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
