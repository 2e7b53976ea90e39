package api

import (
	"context"

	"trade-gateway/internal/monitor"
)

// Notifier 在批量执行完成后推送结果，推送失败不影响响应。
type Notifier interface {
	NotifyDispatch(ctx context.Context, title string, payload monitor.DispatchPayload)
}

type nopNotifier struct{}

func (nopNotifier) NotifyDispatch(context.Context, string, monitor.DispatchPayload) {}
