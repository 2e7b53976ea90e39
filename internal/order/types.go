// Package order 把调用方的原始下单参数解析为确定的下单意图。
package order

import (
	json "github.com/goccy/go-json"

	"trade-gateway/internal/instrument"
)

// DefaultStrategyName 未指定策略名称时使用。
const DefaultStrategyName = "外部策略"

// Operation 买卖方向。
type Operation string

const (
	Buy  Operation = "buy"
	Sell Operation = "sell"
)

// PriceType 报价方式。
type PriceType int

const (
	PriceLimit            PriceType = 0
	PriceLatest           PriceType = 1
	PriceBestFiveCancel   PriceType = 2
	PriceOwnBest          PriceType = 3
	PriceCounterpartyBest PriceType = 5
)

// Valid 判断是否为支持的报价方式。
func (p PriceType) Valid() bool {
	switch p {
	case PriceLimit, PriceLatest, PriceBestFiveCancel, PriceOwnBest, PriceCounterpartyBest:
		return true
	}
	return false
}

func (p PriceType) String() string {
	switch p {
	case PriceLimit:
		return "限价"
	case PriceLatest:
		return "最新价"
	case PriceBestFiveCancel:
		return "最优五档即时成交剩余撤销"
	case PriceOwnBest:
		return "本方最优"
	case PriceCounterpartyBest:
		return "对方最优"
	}
	return "未知"
}

// SizingMode 数量的表达方式。
type SizingMode string

const (
	ModeProportion    SizingMode = "proportion"
	ModeFixedQuantity SizingMode = "fixed_quantity"
)

// Sizing 按仓位比例或固定数量二选一，只能通过 Proportion、FixedQuantity 构造。
type Sizing struct {
	mode       SizingMode
	proportion float64
	quantity   int64
	kind       instrument.Kind
}

// Proportion 按组合比例下单。
func Proportion(pct float64) Sizing {
	return Sizing{mode: ModeProportion, proportion: pct}
}

// FixedQuantity 按固定数量下单。
func FixedQuantity(qty int64, kind instrument.Kind) Sizing {
	return Sizing{mode: ModeFixedQuantity, quantity: qty, kind: kind}
}

// Mode 返回数量表达方式。
func (s Sizing) Mode() SizingMode { return s.mode }

// Proportion 返回比例，非比例模式时 ok 为 false。
func (s Sizing) Proportion() (float64, bool) {
	return s.proportion, s.mode == ModeProportion
}

// Quantity 返回固定数量，非固定数量模式时 ok 为 false。
func (s Sizing) Quantity() (int64, bool) {
	return s.quantity, s.mode == ModeFixedQuantity
}

// InstrumentKind 固定数量模式下的证券品种。
func (s Sizing) InstrumentKind() instrument.Kind { return s.kind }

// Value 返回用于展示的数值。
func (s Sizing) Value() interface{} {
	if s.mode == ModeFixedQuantity {
		return s.quantity
	}
	return s.proportion
}

// Intent 解析完成的下单意图，构造后不再修改。
type Intent struct {
	Operation Operation
	Symbol    string
	Price     float64
	PriceType PriceType
	Sizing    Sizing
	Strategy  string
	target    *int
}

// Target 返回指定的账户序号，未指定时 ok 为 false 表示全部账户。
func (i Intent) Target() (int, bool) {
	if i.target == nil {
		return 0, false
	}
	return *i.target, true
}

// TargetPtr 返回目标账户序号的副本指针，未指定时为 nil。
func (i Intent) TargetPtr() *int {
	if i.target == nil {
		return nil
	}
	idx := *i.target
	return &idx
}

// WithTarget 返回指定了目标账户的副本。
func (i Intent) WithTarget(idx int) Intent {
	i.target = &idx
	return i
}

// RawOrder 调用方提交的原始参数，数字保持 JSON 原文。
type RawOrder struct {
	Symbol        string       `json:"symbol"`
	TradePrice    *json.Number `json:"trade_price"`
	CurPrice      *json.Number `json:"cur_price,omitempty"`
	PriceType     *json.Number `json:"price_type,omitempty"`
	StrategyName  *string      `json:"strategy_name,omitempty"`
	TraderIndex   *json.Number `json:"trader_index,omitempty"`
	Proportion    *json.Number `json:"proportion,omitempty"`
	PositionPct   *json.Number `json:"position_pct,omitempty"`
	FixedQuantity *json.Number `json:"fixed_quantity,omitempty"`
	OrderNum      *json.Number `json:"order_num,omitempty"`
}

// Number 便于构造 RawOrder 中的数字字段。
func Number(lit string) *json.Number {
	n := json.Number(lit)
	return &n
}

func (r RawOrder) price() *json.Number {
	if r.TradePrice != nil {
		return r.TradePrice
	}
	return r.CurPrice
}

func (r RawOrder) proportion() *json.Number {
	if r.Proportion != nil {
		return r.Proportion
	}
	return r.PositionPct
}

func (r RawOrder) fixedQuantity() *json.Number {
	if r.FixedQuantity != nil {
		return r.FixedQuantity
	}
	return r.OrderNum
}
