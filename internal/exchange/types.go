package exchange

import "time"

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Market    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
	Nonce     int64
}

// Mid 返回买一卖一的中间价，只有一侧时返回该侧价格。
func (s OrderBookSnapshot) Mid() float64 {
	var bid, ask float64
	if len(s.Bids) > 0 {
		bid = s.Bids[0].Price
	}
	if len(s.Asks) > 0 {
		ask = s.Asks[0].Price
	}
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	default:
		return ask
	}
}

// Balance 描述账户权益及余额。
type Balance struct {
	TotalEquity  float64
	TotalQuote   float64
	FreeQuote    float64
	Withdrawable float64
	MarginUsed   float64
	Unrealized   float64
	Timestamp    time.Time
}

// PositionDetail 表示单个合约仓位，Symbol 为网关证券代码。
type PositionDetail struct {
	Symbol        string
	Market        string
	Side          string
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	Notional      float64
	PositionValue float64
	UnrealizedPnl float64
	MarginUsed    float64
	Timestamp     time.Time
}

// OrderRequest 抽象具体委托，Type 为 market 或 limit。
type OrderRequest struct {
	Market string
	Type   string
	Side   string
	Amount float64
	Price  float64
	Params map[string]interface{}
}
