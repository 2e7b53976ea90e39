package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trade-gateway/internal/account"
	"trade-gateway/internal/order"
)

// 深圳一天期国债逆回购 R-001，每张面值 100 元，10 张起。
const (
	ReverseRepoSymbol = "131810.SZ"
	reverseRepoFace   = 100
	reverseRepoLot    = 10
)

// ErrRepoInsufficientCash 扣除保留金额后不足一手逆回购。
var ErrRepoInsufficientCash = errors.New("dispatch: 可用资金不足一手逆回购")

// ReverseRepoQuantity 返回 (可用资金-保留金额) 可买入的逆回购张数，按 10 张向下取整。
func ReverseRepoQuantity(cash, reserve float64) int64 {
	available := decimal.NewFromFloat(cash).Sub(decimal.NewFromFloat(reserve))
	if !available.IsPositive() {
		return 0
	}
	lot := decimal.NewFromInt(reverseRepoLot)
	return available.Div(decimal.NewFromInt(reverseRepoFace)).Div(lot).Floor().Mul(lot).IntPart()
}

// ReverseRepo 各账户以最新价买入逆回购，数量由账户可用资金决定。
func (e *Engine) ReverseRepo(ctx context.Context, reserve float64, target *int) (Result, error) {
	return e.Each(ctx, target, "逆回购", func(ctx context.Context, acc account.Account) (interface{}, error) {
		reader, ok := acc.Trader.(account.PortfolioReader)
		if !ok {
			return nil, ErrCapabilityUnsupported
		}
		portfolio, err := reader.Portfolio(ctx)
		if err != nil {
			return nil, fmt.Errorf("读取资产失败: %w", err)
		}
		qty := ReverseRepoQuantity(portfolio.Cash, reserve)
		if qty <= 0 {
			return nil, fmt.Errorf("%w: 可用%.2f, 保留%.2f", ErrRepoInsufficientCash, portfolio.Cash, reserve)
		}
		return acc.Trader.ExecuteFixed(ctx, account.FixedOrder{
			Side:      order.Buy,
			Symbol:    ReverseRepoSymbol,
			Price:     reverseRepoFace,
			PriceType: order.PriceLatest,
			Quantity:  qty,
			Strategy:  "逆回购",
		})
	})
}
