// Package dispatch 把下单意图分发到选中的账户，单个账户的失败不影响其他账户。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade-gateway/internal/account"
	"trade-gateway/internal/order"
)

// Func 对单个账户执行的操作。
type Func func(ctx context.Context, acc account.Account) (interface{}, error)

// Engine 多账户分发与结果汇总。
type Engine struct {
	registry    *account.Registry
	maxParallel int
	logger      *zap.Logger
}

// Option 配置 Engine。
type Option func(*Engine)

// WithMaxParallel 限制同时执行的账户数量，0 表示不限制。
func WithMaxParallel(n int) Option {
	return func(e *Engine) { e.maxParallel = n }
}

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine 创建分发引擎。
func NewEngine(registry *account.Registry, opts ...Option) *Engine {
	e := &Engine{registry: registry, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry 返回账户注册表。
func (e *Engine) Registry() *account.Registry {
	return e.registry
}

// Dispatch 执行下单意图。比例下单走 ExecuteProportional，固定数量走 ExecuteFixed。
// 只有目标账户不存在时返回 error，账户执行失败体现在各自的 Outcome 中。
func (e *Engine) Dispatch(ctx context.Context, intent order.Intent) (Result, error) {
	label := string(intent.Operation) + "交易"
	return e.Each(ctx, intent.TargetPtr(), label, func(ctx context.Context, acc account.Account) (interface{}, error) {
		if pct, ok := intent.Sizing.Proportion(); ok {
			return acc.Trader.ExecuteProportional(ctx, account.ProportionalOrder{
				Side:      intent.Operation,
				Symbol:    intent.Symbol,
				Price:     intent.Price,
				PriceType: intent.PriceType,
				Pct:       pct,
				Strategy:  intent.Strategy,
			})
		}
		qty, _ := intent.Sizing.Quantity()
		return acc.Trader.ExecuteFixed(ctx, account.FixedOrder{
			Side:      intent.Operation,
			Symbol:    intent.Symbol,
			Price:     intent.Price,
			PriceType: intent.PriceType,
			Quantity:  qty,
			Strategy:  intent.Strategy,
		})
	})
}

// ErrCapabilityUnsupported 账户不支持请求的操作。
var ErrCapabilityUnsupported = errors.New("dispatch: 账户不支持该操作")

// CancelAll 撤销选中账户指定方向的全部可撤委托。
func (e *Engine) CancelAll(ctx context.Context, side order.Operation, target *int) (Result, error) {
	label := "撤销全部买单"
	if side == order.Sell {
		label = "撤销全部卖单"
	}
	return e.Each(ctx, target, label, func(ctx context.Context, acc account.Account) (interface{}, error) {
		manager, ok := acc.Trader.(account.OrderManager)
		if !ok {
			return nil, ErrCapabilityUnsupported
		}
		return manager.CancelAll(ctx, side)
	})
}

// Each 对选中的账户并发执行 fn，结果按注册表顺序返回。
func (e *Engine) Each(ctx context.Context, target *int, label string, fn Func) (Result, error) {
	accounts, err := e.registry.Select(target)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", order.ErrInvalidAccountIndex, err)
	}

	requestID := RequestID(ctx)
	logger := e.logger.With(zap.String("request_id", requestID), zap.String("operation", label))
	// 调用方断开后已发出的账户调用仍然执行完毕。
	ctx = context.WithoutCancel(WithRequestID(ctx, requestID))

	outcomes := make([]Outcome, len(accounts))
	group := new(errgroup.Group)
	if e.maxParallel > 0 {
		group.SetLimit(e.maxParallel)
	}

	start := time.Now()
	for i, acc := range accounts {
		group.Go(func() error {
			outcomes[i] = e.invoke(ctx, logger, label, acc, fn)
			return nil
		})
	}
	_ = group.Wait()

	result := Result{RequestID: requestID, Outcomes: outcomes}
	succeeded, failed := result.Count()
	logger.Info("所有交易器执行完成",
		zap.Int("accounts", len(accounts)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (e *Engine) invoke(ctx context.Context, logger *zap.Logger, label string, acc account.Account, fn Func) Outcome {
	outcome := Outcome{AccountIndex: acc.Index, AccountID: acc.ID}
	logger = logger.With(zap.Int("trader_index", acc.Index), zap.String("account_id", acc.ID))
	logger.Info("交易器开始执行")

	var (
		payload interface{}
		err     error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		payload, err = fn(ctx, acc)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		logger.Error("交易器执行发生 panic", zap.Any("panic", recovered.Value), zap.String("stack", string(recovered.Stack)))
		err = fmt.Errorf("panic: %v", recovered.Value)
	}

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = fmt.Sprintf("交易器%d%s失败: %v", acc.Index, label, err)
		logger.Error("交易器执行失败", zap.Error(err))
		return outcome
	}

	outcome.Status = StatusSuccess
	outcome.Result = payload
	logger.Info("交易器执行完成")
	return outcome
}
