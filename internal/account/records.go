package account

import "time"

// Portfolio 规范化的账户资产。
type Portfolio struct {
	TotalAsset  float64 `json:"total_asset"`
	Cash        float64 `json:"cash"`
	FrozenCash  float64 `json:"frozen_cash"`
	MarketValue float64 `json:"market_value"`
	Profit      float64 `json:"profit"`
	ProfitRatio float64 `json:"profit_ratio"`
}

// Position 规范化的持仓记录。
type Position struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Volume       int64   `json:"volume"`
	CanUseVolume int64   `json:"can_use_volume"`
	FrozenVolume int64   `json:"frozen_volume"`
	MarketValue  float64 `json:"market_value"`
	AvgPrice     float64 `json:"avg_price"`
	OpenPrice    float64 `json:"open_price"`
	CurrentPrice float64 `json:"current_price"`
	Profit       float64 `json:"profit"`
	ProfitRatio  float64 `json:"profit_ratio"`
}

// Enrich 补全市值、最新价与盈亏。lastPrice 不可用时传 0，以成本价代替；name 为空时使用代码。
func (p Position) Enrich(lastPrice float64, name string) Position {
	if p.MarketValue == 0 && p.Volume > 0 && p.AvgPrice > 0 {
		p.MarketValue = float64(p.Volume) * p.AvgPrice
	}

	p.CurrentPrice = lastPrice
	if p.CurrentPrice <= 0 {
		p.CurrentPrice = p.AvgPrice
	}
	p.Name = name
	if p.Name == "" {
		p.Name = p.Symbol
	}

	var cost float64
	if p.AvgPrice > 0 {
		cost = float64(p.Volume) * p.AvgPrice
	}
	current := p.MarketValue
	if p.CurrentPrice > 0 {
		current = float64(p.Volume) * p.CurrentPrice
	}

	p.Profit, p.ProfitRatio = 0, 0
	if cost > 0 {
		p.Profit = current - cost
		p.ProfitRatio = p.Profit / cost * 100
	}
	return p
}

// OrderStatus 委托状态码。
type OrderStatus int

const (
	StatusUnreported     OrderStatus = 48
	StatusWaitReporting  OrderStatus = 49
	StatusReported       OrderStatus = 50
	StatusReportedCancel OrderStatus = 51
	StatusPartSuccCancel OrderStatus = 52
	StatusPartCancel     OrderStatus = 53
	StatusCanceled       OrderStatus = 54
	StatusPartSucc       OrderStatus = 55
	StatusSucceeded      OrderStatus = 56
	StatusJunk           OrderStatus = 57
	StatusUnknown        OrderStatus = 255
)

var statusNames = map[OrderStatus]string{
	StatusUnreported:     "未报",
	StatusWaitReporting:  "待报",
	StatusReported:       "已报",
	StatusReportedCancel: "已报待撤",
	StatusPartSuccCancel: "部成待撤",
	StatusPartCancel:     "部撤",
	StatusCanceled:       "已撤",
	StatusPartSucc:       "部成",
	StatusSucceeded:      "已成",
	StatusJunk:           "废单",
	StatusUnknown:        "未知",
}

func (s OrderStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknown]
}

// Cancelable 已报或部成的委托可以撤单。
func (s OrderStatus) Cancelable() bool {
	return s == StatusReported || s == StatusPartSucc
}

// Order 规范化的委托记录。
type Order struct {
	OrderID      string      `json:"order_id"`
	Symbol       string      `json:"symbol"`
	Side         string      `json:"side"`
	Status       OrderStatus `json:"status"`
	StatusName   string      `json:"m_status"`
	Volume       int64       `json:"volume"`
	Time         time.Time   `json:"time"`
	Price        float64     `json:"price"`
	PriceType    int         `json:"price_type"`
	TradedVolume int64       `json:"traded_volume"`
	TradedPrice  float64     `json:"traded_price"`
	StrategyName string      `json:"strategy_name"`
}

// CancelResult 撤单结果。
type CancelResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}
