// Package paper 实现内存模拟的 A 股交易账户。
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trade-gateway/internal/account"
	"trade-gateway/internal/instrument"
	"trade-gateway/internal/marketdata"
	"trade-gateway/internal/order"
)

var (
	// ErrInsufficientFunds 可用资金不足以买入一个最小交易单位。
	ErrInsufficientFunds = errors.New("paper: 资金不足")
	// ErrNoPosition 未持有该证券。
	ErrNoPosition = errors.New("paper: 未持有该证券")
	// ErrInsufficientVolume 可用持仓不足。
	ErrInsufficientVolume = errors.New("paper: 可用持仓不足")
	// ErrNoPrice 无法确定成交价格。
	ErrNoPrice = errors.New("paper: 无可用价格")
	// ErrOrderNotFound 委托不存在。
	ErrOrderNotFound = account.ErrOrderNotFound
)

const firstOrderID = 100001

type holding struct {
	volume int64
	frozen int64
	cost   decimal.Decimal
}

func (h *holding) canUse() int64 {
	return h.volume - h.frozen
}

type entry struct {
	record      account.Order
	frozenCash  decimal.Decimal
	frozenShare int64
}

// Account 模拟账户。限价单与最新价交叉时立即成交，否则保持已报状态并冻结资金或持仓，直至撤单。
type Account struct {
	id     string
	market marketdata.Service
	logger *zap.Logger
	clock  func() time.Time

	mu         sync.Mutex
	initial    decimal.Decimal
	cash       decimal.Decimal
	frozenCash decimal.Decimal
	holdings   map[string]*holding
	orders     []*entry
	nextID     int64
}

// Option 配置模拟账户。
type Option func(*Account)

// WithMarketData 设置行情来源，用于市价成交与持仓估值。
func WithMarketData(md marketdata.Service) Option {
	return func(a *Account) { a.market = md }
}

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(a *Account) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock 替换时间来源。
func WithClock(clock func() time.Time) Option {
	return func(a *Account) { a.clock = clock }
}

// WithPosition 预置持仓，成本计入初始资产。
func WithPosition(symbol string, volume int64, avgPrice float64) Option {
	return func(a *Account) {
		symbol = instrument.Normalize(symbol)
		cost := decimal.NewFromFloat(avgPrice)
		a.holdings[symbol] = &holding{volume: volume, cost: cost}
		a.initial = a.initial.Add(cost.Mul(decimal.NewFromInt(volume)))
	}
}

// New 创建模拟账户。
func New(id string, initialCash float64, opts ...Option) *Account {
	cash := decimal.NewFromFloat(initialCash)
	a := &Account{
		id:       id,
		logger:   zap.NewNop(),
		clock:    time.Now,
		initial:  cash,
		cash:     cash,
		holdings: make(map[string]*holding),
		nextID:   firstOrderID,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("account_id", id))
	return a
}

// ExecuteProportional 按比例下单：买入金额为 min(总资产×比例, 可用资金)，卖出数量为可用持仓×比例，均向下取整到最小交易单位。
func (a *Account) ExecuteProportional(ctx context.Context, o account.ProportionalOrder) (account.Receipt, error) {
	symbol := instrument.Normalize(o.Symbol)
	kind := instrument.KindOf(symbol)
	lot := decimal.NewFromInt(instrument.MinLot(kind))

	marks := a.marks(ctx)
	fill, err := a.fillPrice(ctx, symbol, o.Price, o.PriceType)
	if err != nil {
		return account.Receipt{}, err
	}
	last, _ := a.lastPrice(ctx, symbol)
	pct := decimal.NewFromFloat(o.Pct)

	a.mu.Lock()
	defer a.mu.Unlock()

	var qty int64
	switch o.Side {
	case order.Buy:
		value := a.totalAssetLocked(marks).Mul(pct)
		if value.GreaterThan(a.cash) {
			value = a.cash
		}
		qty = value.Div(fill).Div(lot).Floor().Mul(lot).IntPart()
		if qty <= 0 {
			return account.Receipt{}, fmt.Errorf("%w: 最低%s%s需要%s, 当前可用%s",
				ErrInsufficientFunds, lot, instrument.UnitName(kind), fill.Mul(lot).StringFixed(2), a.cash.StringFixed(2))
		}
	case order.Sell:
		h, ok := a.holdings[symbol]
		if !ok || h.volume == 0 {
			return account.Receipt{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
		}
		qty = decimal.NewFromInt(h.canUse()).Mul(pct).Div(lot).Floor().Mul(lot).IntPart()
		if qty <= 0 {
			return account.Receipt{}, fmt.Errorf("%w: 卖出数量不足%s%s, 可用%d", ErrInsufficientVolume, lot, instrument.UnitName(kind), h.canUse())
		}
	default:
		return account.Receipt{}, fmt.Errorf("paper: 不支持的方向 %q", o.Side)
	}

	return a.placeLocked(o.Side, symbol, kind, qty, o.Price, fill, last, o.PriceType, o.Strategy)
}

// ExecuteFixed 按固定数量下单。买入资金不足时缩减为可负担的最大整手数量。
func (a *Account) ExecuteFixed(ctx context.Context, o account.FixedOrder) (account.Receipt, error) {
	symbol := instrument.Normalize(o.Symbol)
	kind := instrument.KindOf(symbol)
	lot := decimal.NewFromInt(instrument.MinLot(kind))

	fill, err := a.fillPrice(ctx, symbol, o.Price, o.PriceType)
	if err != nil {
		return account.Receipt{}, err
	}
	last, _ := a.lastPrice(ctx, symbol)

	a.mu.Lock()
	defer a.mu.Unlock()

	qty := o.Quantity
	switch o.Side {
	case order.Buy:
		required := fill.Mul(decimal.NewFromInt(qty))
		if required.GreaterThan(a.cash) {
			qty = a.cash.Div(fill).Div(lot).Floor().Mul(lot).IntPart()
			a.logger.Info("资金不足，按可用资金调整数量",
				zap.String("symbol", symbol),
				zap.Int64("requested", o.Quantity),
				zap.Int64("adjusted", qty),
			)
			if qty <= 0 {
				return account.Receipt{}, fmt.Errorf("%w: 需要%s, 可用%s", ErrInsufficientFunds, required.StringFixed(2), a.cash.StringFixed(2))
			}
		}
	case order.Sell:
		h, ok := a.holdings[symbol]
		if !ok || h.volume == 0 {
			return account.Receipt{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
		}
		if qty > h.canUse() {
			return account.Receipt{}, fmt.Errorf("%w: 需要%d, 可用%d", ErrInsufficientVolume, qty, h.canUse())
		}
	default:
		return account.Receipt{}, fmt.Errorf("paper: 不支持的方向 %q", o.Side)
	}

	return a.placeLocked(o.Side, symbol, kind, qty, o.Price, fill, last, o.PriceType, o.Strategy)
}

// placeLocked 记录委托，可成交时立即成交，否则冻结资金或持仓。
func (a *Account) placeLocked(side order.Operation, symbol string, kind instrument.Kind, qty int64, limit float64, fill, last decimal.Decimal, pt order.PriceType, strategy string) (account.Receipt, error) {
	quantity := decimal.NewFromInt(qty)
	orderPrice := decimal.NewFromFloat(limit)
	if pt != order.PriceLimit || orderPrice.IsZero() {
		orderPrice = fill
	}

	id := strconv.FormatInt(a.nextID, 10)
	a.nextID++

	e := &entry{record: account.Order{
		OrderID:      id,
		Symbol:       symbol,
		Side:         string(side),
		Volume:       qty,
		Time:         a.clock(),
		Price:        orderPrice.InexactFloat64(),
		PriceType:    int(pt),
		StrategyName: strategy,
	}}

	if crosses(side, pt, orderPrice, last) {
		a.fillLocked(side, symbol, quantity, fill)
		e.record.TradedVolume = qty
		e.record.TradedPrice = fill.InexactFloat64()
		e.record.Status = account.StatusSucceeded
	} else {
		switch side {
		case order.Buy:
			e.frozenCash = orderPrice.Mul(quantity)
			a.cash = a.cash.Sub(e.frozenCash)
			a.frozenCash = a.frozenCash.Add(e.frozenCash)
		case order.Sell:
			e.frozenShare = qty
			a.holdings[symbol].frozen += qty
		}
		e.record.Status = account.StatusReported
	}
	e.record.StatusName = e.record.Status.String()
	a.orders = append(a.orders, e)

	a.logger.Info("模拟委托已提交",
		zap.String("order_id", id),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("quantity", qty),
		zap.String("status", e.record.StatusName),
	)

	action := "买入"
	if side == order.Sell {
		action = "卖出"
	}
	return account.Receipt{
		Symbol:   symbol,
		Quantity: qty,
		Price:    orderPrice.InexactFloat64(),
		Value:    orderPrice.Mul(quantity).InexactFloat64(),
		OrderID:  id,
		Message:  fmt.Sprintf("%s订单提交成功: %s %d%s 价格%s", action, symbol, qty, instrument.UnitName(kind), orderPrice.String()),
	}, nil
}

func (a *Account) fillLocked(side order.Operation, symbol string, qty, price decimal.Decimal) {
	amount := price.Mul(qty)
	h := a.holdings[symbol]
	switch side {
	case order.Buy:
		a.cash = a.cash.Sub(amount)
		if h == nil {
			h = &holding{}
			a.holdings[symbol] = h
		}
		held := decimal.NewFromInt(h.volume)
		h.cost = h.cost.Mul(held).Add(amount).Div(held.Add(qty))
		h.volume += qty.IntPart()
	case order.Sell:
		a.cash = a.cash.Add(amount)
		h.volume -= qty.IntPart()
		if h.volume == 0 && h.frozen == 0 {
			delete(a.holdings, symbol)
		}
	}
}

// crosses 市价类委托总是成交；限价单在没有最新价或价格优于最新价时成交。
func crosses(side order.Operation, pt order.PriceType, price, last decimal.Decimal) bool {
	if pt != order.PriceLimit || last.IsZero() {
		return true
	}
	if side == order.Buy {
		return price.GreaterThanOrEqual(last)
	}
	return price.LessThanOrEqual(last)
}

// fillPrice 限价单按委托价成交，其余价格类型按最新价成交，取不到最新价时退回委托价。
func (a *Account) fillPrice(ctx context.Context, symbol string, price float64, pt order.PriceType) (decimal.Decimal, error) {
	if pt == order.PriceLimit && price > 0 {
		return decimal.NewFromFloat(price), nil
	}
	if last, ok := a.lastPrice(ctx, symbol); ok {
		return last, nil
	}
	if price > 0 {
		return decimal.NewFromFloat(price), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
}

func (a *Account) lastPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if a.market == nil {
		return decimal.Zero, false
	}
	price, err := a.market.LastPrice(ctx, symbol)
	if err != nil || price <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(price), true
}

// marks 在加锁前获取全部持仓的最新价。
func (a *Account) marks(ctx context.Context) map[string]decimal.Decimal {
	a.mu.Lock()
	symbols := make([]string, 0, len(a.holdings))
	for symbol := range a.holdings {
		symbols = append(symbols, symbol)
	}
	a.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		if price, ok := a.lastPrice(ctx, symbol); ok {
			out[symbol] = price
		}
	}
	return out
}

func (a *Account) marketValueLocked(marks map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for symbol, h := range a.holdings {
		price, ok := marks[symbol]
		if !ok {
			price = h.cost
		}
		total = total.Add(price.Mul(decimal.NewFromInt(h.volume)))
	}
	return total
}

func (a *Account) totalAssetLocked(marks map[string]decimal.Decimal) decimal.Decimal {
	return a.cash.Add(a.frozenCash).Add(a.marketValueLocked(marks))
}

// Portfolio 返回账户资产，盈亏相对初始资产计算。
func (a *Account) Portfolio(ctx context.Context) (account.Portfolio, error) {
	marks := a.marks(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	total := a.totalAssetLocked(marks)
	profit := total.Sub(a.initial)
	var ratio float64
	if a.initial.IsPositive() {
		ratio = profit.Div(a.initial).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return account.Portfolio{
		TotalAsset:  total.InexactFloat64(),
		Cash:        a.cash.InexactFloat64(),
		FrozenCash:  a.frozenCash.InexactFloat64(),
		MarketValue: a.marketValueLocked(marks).InexactFloat64(),
		Profit:      profit.InexactFloat64(),
		ProfitRatio: ratio,
	}, nil
}

// Positions 按代码排序返回持仓。
func (a *Account) Positions(ctx context.Context) ([]account.Position, error) {
	marks := a.marks(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make([]account.Position, 0, len(a.holdings))
	for symbol, h := range a.holdings {
		price, ok := marks[symbol]
		if !ok {
			price = h.cost
		}
		positions = append(positions, account.Position{
			Symbol:       symbol,
			Volume:       h.volume,
			CanUseVolume: h.canUse(),
			FrozenVolume: h.frozen,
			MarketValue:  price.Mul(decimal.NewFromInt(h.volume)).InexactFloat64(),
			AvgPrice:     h.cost.InexactFloat64(),
			OpenPrice:    h.cost.InexactFloat64(),
		})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// Orders 按提交顺序返回委托，cancelableOnly 时只返回可撤委托。
func (a *Account) Orders(_ context.Context, cancelableOnly bool) ([]account.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]account.Order, 0, len(a.orders))
	for _, e := range a.orders {
		if cancelableOnly && !e.record.Status.Cancelable() {
			continue
		}
		out = append(out, e.record)
	}
	return out, nil
}

// Order 查询单个委托。
func (a *Account) Order(_ context.Context, orderID string) (account.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.findLocked(orderID)
	if !ok {
		return account.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return e.record, nil
}

// CancelOrder 撤销委托并解冻资金或持仓。不可撤状态返回 Success=false。
func (a *Account) CancelOrder(_ context.Context, orderID string) (account.CancelResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.findLocked(orderID)
	if !ok {
		return account.CancelResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return a.cancelLocked(e), nil
}

// CancelAll 撤销指定方向的全部可撤委托。
func (a *Account) CancelAll(_ context.Context, side order.Operation) ([]account.CancelResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([]account.CancelResult, 0)
	for _, e := range a.orders {
		if e.record.Side != string(side) || !e.record.Status.Cancelable() {
			continue
		}
		results = append(results, a.cancelLocked(e))
	}
	return results, nil
}

func (a *Account) cancelLocked(e *entry) account.CancelResult {
	if !e.record.Status.Cancelable() {
		return account.CancelResult{
			Success: false,
			OrderID: e.record.OrderID,
			Message: fmt.Sprintf("撤单失败: 委托状态为%s", e.record.Status),
		}
	}

	if e.frozenCash.IsPositive() {
		a.cash = a.cash.Add(e.frozenCash)
		a.frozenCash = a.frozenCash.Sub(e.frozenCash)
		e.frozenCash = decimal.Zero
	}
	if e.frozenShare > 0 {
		if h, ok := a.holdings[e.record.Symbol]; ok {
			h.frozen -= e.frozenShare
		}
		e.frozenShare = 0
	}
	e.record.Status = account.StatusCanceled
	e.record.StatusName = e.record.Status.String()

	a.logger.Info("模拟委托已撤销", zap.String("order_id", e.record.OrderID))
	return account.CancelResult{
		Success: true,
		OrderID: e.record.OrderID,
		Message: "撤单成功",
	}
}

func (a *Account) findLocked(orderID string) (*entry, bool) {
	for _, e := range a.orders {
		if e.record.OrderID == orderID {
			return e, true
		}
	}
	return nil, false
}
