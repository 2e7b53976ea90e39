// Package account 定义交易账户能力与规范化的资产、持仓、委托记录。
package account

import (
	"context"

	"trade-gateway/internal/order"
)

// ProportionalOrder 按比例下单。买入时为总资产比例，卖出时为可用持仓比例。
type ProportionalOrder struct {
	Side      order.Operation
	Symbol    string
	Price     float64
	PriceType order.PriceType
	Pct       float64
	Strategy  string
}

// FixedOrder 按固定数量下单。
type FixedOrder struct {
	Side      order.Operation
	Symbol    string
	Price     float64
	PriceType order.PriceType
	Quantity  int64
	Strategy  string
}

// Receipt 下单回执。Amount 为交易所账户实际提交的合约数量。
type Receipt struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"order_num"`
	Amount   float64 `json:"amount,omitempty"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
	OrderID  string  `json:"order_id"`
	Message  string  `json:"message"`
}

// TradingAccount 账户的下单能力。业务上无法下单时返回 error。
type TradingAccount interface {
	ExecuteProportional(ctx context.Context, o ProportionalOrder) (Receipt, error)
	ExecuteFixed(ctx context.Context, o FixedOrder) (Receipt, error)
}

// PortfolioReader 可选能力：查询资产与持仓。
type PortfolioReader interface {
	Portfolio(ctx context.Context) (Portfolio, error)
	Positions(ctx context.Context) ([]Position, error)
}

// OrderManager 可选能力：委托查询与撤单。
type OrderManager interface {
	Orders(ctx context.Context, cancelableOnly bool) ([]Order, error)
	Order(ctx context.Context, orderID string) (Order, error)
	CancelOrder(ctx context.Context, orderID string) (CancelResult, error)
	CancelAll(ctx context.Context, side order.Operation) ([]CancelResult, error)
}
