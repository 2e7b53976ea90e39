// Package futures 实现基于 ccxt 永续合约交易所的交易账户。
package futures

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trade-gateway/internal/account"
	"trade-gateway/internal/exchange"
	"trade-gateway/internal/instrument"
	"trade-gateway/internal/order"
)

// amountPlaces 提交给交易所的数量保留的小数位。
const amountPlaces = 8

var (
	// ErrNoPosition 交易所上没有该证券对应的持仓。
	ErrNoPosition = errors.New("futures: 未持有该证券")
	// ErrZeroAmount 计算得到的下单数量为 0。
	ErrZeroAmount = errors.New("futures: 下单数量为0")
)

type exchangeClient interface {
	Market(symbol string) (string, error)
	FetchBalance(ctx context.Context) (exchange.Balance, error)
	FetchPositions(ctx context.Context) ([]exchange.PositionDetail, error)
	FetchOrderBook(ctx context.Context, market string, depth int64) (exchange.OrderBookSnapshot, error)
	SubmitOrder(ctx context.Context, req exchange.OrderRequest) (string, error)
}

// Account 交易所账户。固定数量乘以 scale 得到合约数量，按比例下单时从账户权益计算。
type Account struct {
	id     string
	client exchangeClient
	scale  decimal.Decimal
	logger *zap.Logger
}

// New 创建交易所账户，scale 小于等于 0 时按 1 处理。
func New(id string, client *exchange.Client, scale float64, logger *zap.Logger) *Account {
	return newAccount(id, client, scale, logger)
}

func newAccount(id string, client exchangeClient, scale float64, logger *zap.Logger) *Account {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scale <= 0 {
		scale = 1
	}
	return &Account{
		id:     id,
		client: client,
		scale:  decimal.NewFromFloat(scale),
		logger: logger.With(zap.String("account_id", id)),
	}
}

// ExecuteProportional 买入金额为 min(权益×比例, 可用保证金)，卖出数量为该市场多头持仓×比例。
func (a *Account) ExecuteProportional(ctx context.Context, o account.ProportionalOrder) (account.Receipt, error) {
	symbol := instrument.Normalize(o.Symbol)
	market, err := a.client.Market(symbol)
	if err != nil {
		return account.Receipt{}, err
	}
	price, err := a.referencePrice(ctx, market, o.Price)
	if err != nil {
		return account.Receipt{}, err
	}
	pct := decimal.NewFromFloat(o.Pct)

	var amount decimal.Decimal
	switch o.Side {
	case order.Buy:
		balance, err := a.client.FetchBalance(ctx)
		if err != nil {
			return account.Receipt{}, err
		}
		value := decimal.NewFromFloat(balance.TotalEquity).Mul(pct)
		if free := decimal.NewFromFloat(balance.FreeQuote); value.GreaterThan(free) {
			value = free
		}
		amount = value.Div(price)
	case order.Sell:
		size, err := a.longSize(ctx, symbol)
		if err != nil {
			return account.Receipt{}, err
		}
		amount = size.Mul(pct)
	default:
		return account.Receipt{}, fmt.Errorf("futures: 不支持的方向 %q", o.Side)
	}

	return a.submit(ctx, o.Side, symbol, market, amount, price, o.PriceType, o.Price)
}

// ExecuteFixed 按固定数量下单。
func (a *Account) ExecuteFixed(ctx context.Context, o account.FixedOrder) (account.Receipt, error) {
	symbol := instrument.Normalize(o.Symbol)
	market, err := a.client.Market(symbol)
	if err != nil {
		return account.Receipt{}, err
	}
	price, err := a.referencePrice(ctx, market, o.Price)
	if err != nil {
		return account.Receipt{}, err
	}

	amount := decimal.NewFromInt(o.Quantity).Mul(a.scale)
	if o.Side == order.Sell {
		size, err := a.longSize(ctx, symbol)
		if err != nil {
			return account.Receipt{}, err
		}
		if amount.GreaterThan(size) {
			return account.Receipt{}, fmt.Errorf("futures: 可用持仓不足: 需要%s, 持有%s", amount, size)
		}
	}

	return a.submit(ctx, o.Side, symbol, market, amount, price, o.PriceType, o.Price)
}

func (a *Account) submit(ctx context.Context, side order.Operation, symbol, market string, amount, price decimal.Decimal, pt order.PriceType, limit float64) (account.Receipt, error) {
	amount = amount.Truncate(amountPlaces)
	if !amount.IsPositive() {
		return account.Receipt{}, fmt.Errorf("%w: %s", ErrZeroAmount, symbol)
	}

	req := exchange.OrderRequest{
		Market: market,
		Type:   "market",
		Side:   string(side),
		Amount: amount.InexactFloat64(),
	}
	if pt == order.PriceLimit && limit > 0 {
		req.Type = "limit"
		req.Price = limit
	}
	if side == order.Sell {
		req.Params = map[string]interface{}{"reduceOnly": true}
	}

	orderID, err := a.client.SubmitOrder(ctx, req)
	if err != nil {
		return account.Receipt{}, fmt.Errorf("futures: 提交委托失败: %w", err)
	}

	a.logger.Info("交易所委托已提交",
		zap.String("order_id", orderID),
		zap.String("market", market),
		zap.String("type", req.Type),
		zap.String("side", req.Side),
		zap.Float64("amount", req.Amount),
	)

	return account.Receipt{
		Symbol:   symbol,
		Quantity: amount.Div(a.scale).IntPart(),
		Amount:   req.Amount,
		Price:    price.InexactFloat64(),
		Value:    amount.Mul(price).InexactFloat64(),
		OrderID:  orderID,
		Message:  fmt.Sprintf("%s委托提交成功: %s %s %s", req.Type, market, req.Side, amount),
	}, nil
}

// referencePrice 优先使用委托价，否则取订单簿中间价。
func (a *Account) referencePrice(ctx context.Context, market string, price float64) (decimal.Decimal, error) {
	if price > 0 {
		return decimal.NewFromFloat(price), nil
	}
	snapshot, err := a.client.FetchOrderBook(ctx, market, 5)
	if err != nil {
		return decimal.Zero, err
	}
	mid := snapshot.Mid()
	if mid <= 0 {
		return decimal.Zero, fmt.Errorf("futures: %s 订单簿为空", market)
	}
	return decimal.NewFromFloat(mid), nil
}

func (a *Account) longSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	positions, err := a.client.FetchPositions(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range positions {
		if p.Symbol == symbol && strings.EqualFold(p.Side, "long") && p.Size > 0 {
			return decimal.NewFromFloat(p.Size), nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
}

// Portfolio 把交易所余额映射为账户资产。
func (a *Account) Portfolio(ctx context.Context) (account.Portfolio, error) {
	balance, err := a.client.FetchBalance(ctx)
	if err != nil {
		return account.Portfolio{}, err
	}
	positions, err := a.client.FetchPositions(ctx)
	if err != nil {
		return account.Portfolio{}, err
	}

	var marketValue float64
	for _, p := range positions {
		marketValue += p.PositionValue
	}

	var ratio float64
	if base := balance.TotalEquity - balance.Unrealized; base > 0 {
		ratio = balance.Unrealized / base * 100
	}
	return account.Portfolio{
		TotalAsset:  balance.TotalEquity,
		Cash:        balance.FreeQuote,
		FrozenCash:  balance.MarginUsed,
		MarketValue: marketValue,
		Profit:      balance.Unrealized,
		ProfitRatio: ratio,
	}, nil
}

// Positions 把合约持仓换算为网关数量单位。
func (a *Account) Positions(ctx context.Context) ([]account.Position, error) {
	raw, err := a.client.FetchPositions(ctx)
	if err != nil {
		return nil, err
	}
	positions := make([]account.Position, 0, len(raw))
	for _, p := range raw {
		volume := decimal.NewFromFloat(p.Size).Div(a.scale).IntPart()
		positions = append(positions, account.Position{
			Symbol:       p.Symbol,
			Volume:       volume,
			CanUseVolume: volume,
			MarketValue:  p.PositionValue,
			AvgPrice:     p.EntryPrice,
			OpenPrice:    p.EntryPrice,
			CurrentPrice: p.MarkPrice,
			Profit:       p.UnrealizedPnl,
		})
	}
	return positions, nil
}
