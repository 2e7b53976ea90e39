package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/monitor"
)

// maxSenders 同时在途的推送数量。
const maxSenders = 4

// Sender 发送一条文本消息。
type Sender interface {
	SendText(ctx context.Context, content string) error
}

// Service 异步推送执行结果，失败只记录日志。
type Service struct {
	sender  Sender
	keyword string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	pool   *pool.Pool
}

// NewService 创建推送服务，keyword 会出现在每条消息开头以满足机器人关键词校验。
func NewService(sender Sender, keyword string, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		sender:  sender,
		keyword: keyword,
		timeout: timeout,
		logger:  logger.Named("notify"),
		pool:    pool.New().WithMaxGoroutines(maxSenders),
	}
}

// NotifyDispatch 异步推送一次批量执行的汇总，在途推送达到上限时等待空位。
func (s *Service) NotifyDispatch(ctx context.Context, title string, payload monitor.DispatchPayload) {
	content := s.format(title, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("推送服务已关闭，丢弃消息", zap.String("request_id", payload.RequestID))
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.pool.Go(func() {
		sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.sender.SendText(sendCtx, content); err != nil {
			s.logger.Warn("推送执行结果失败", zap.String("request_id", payload.RequestID), zap.Error(err))
			return
		}
		s.logger.Debug("推送执行结果完成", zap.String("request_id", payload.RequestID))
	})
}

// Close 等待在途推送完成，之后的消息会被丢弃。
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.pool.Wait()
}

func (s *Service) format(title string, p monitor.DispatchPayload) string {
	var b strings.Builder
	if s.keyword != "" {
		fmt.Fprintf(&b, "【%s】", s.keyword)
	}
	b.WriteString(title)
	fmt.Fprintf(&b, "\n请求: %s", p.RequestID)
	if p.ClientID != "" {
		fmt.Fprintf(&b, "\n客户端: %s", p.ClientID)
	}
	if p.Symbol != "" {
		fmt.Fprintf(&b, "\n操作: %s %s", p.Operation, p.Symbol)
		if p.Price > 0 {
			fmt.Fprintf(&b, " @%.3f", p.Price)
		}
	} else {
		fmt.Fprintf(&b, "\n操作: %s", p.Operation)
	}
	if p.SizingMode != "" {
		fmt.Fprintf(&b, "\n数量: %s=%v", p.SizingMode, p.SizingValue)
	}
	if p.Strategy != "" {
		fmt.Fprintf(&b, "\n策略: %s", p.Strategy)
	}
	fmt.Fprintf(&b, "\n成功 %d, 失败 %d", p.Succeeded, p.Failed)
	for _, o := range p.Outcomes {
		if o.Status == dispatch.StatusSuccess {
			fmt.Fprintf(&b, "\n交易器%d: 成功", o.AccountIndex)
			continue
		}
		b.WriteString("\n" + o.Error)
	}
	return b.String()
}
