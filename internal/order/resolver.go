package order

import (
	"fmt"
	"math"
	"strings"

	json "github.com/goccy/go-json"

	"trade-gateway/internal/instrument"
)

// Resolver 校验并规范化下单参数，不做任何 I/O。
type Resolver struct {
	classifier instrument.Classifier
	accounts   int
}

// NewResolver 创建解析器，accounts 为账户注册表的大小。
func NewResolver(classifier instrument.Classifier, accounts int) *Resolver {
	if classifier == nil {
		classifier = instrument.DefaultClassifier{}
	}
	return &Resolver{classifier: classifier, accounts: accounts}
}

// ParseOperation 校验买卖方向，大小写不敏感。
func ParseOperation(operation string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(operation)))
	if op != Buy && op != Sell {
		return "", invalid(KindUnsupportedOperation, "operation", "操作类型必须是 buy 或 sell: %q", operation)
	}
	return op, nil
}

// Resolve 依次校验操作、必填项、价格、报价方式、数量与账户序号。
func (r *Resolver) Resolve(operation string, raw RawOrder) (Intent, error) {
	op, err := ParseOperation(operation)
	if err != nil {
		return Intent{}, err
	}

	symbol := strings.TrimSpace(raw.Symbol)
	priceNum := raw.price()
	if symbol == "" || priceNum == nil {
		return Intent{}, invalid(KindMissingField, missingField(symbol), "缺少必要参数: symbol, trade_price")
	}

	price, err := priceNum.Float64()
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return Intent{}, invalid(KindInvalidPrice, "trade_price", "trade_price 必须是非负数: %s", priceNum.String())
	}

	priceType := PriceLimit
	if raw.PriceType != nil {
		pt, ok := integral(*raw.PriceType)
		if !ok || !PriceType(pt).Valid() {
			return Intent{}, invalid(KindUnsupportedPriceType, "price_type", "不支持的价格类型: %s", raw.PriceType.String())
		}
		priceType = PriceType(pt)
	}

	sizing, err := r.resolveSizing(symbol, raw)
	if err != nil {
		return Intent{}, err
	}

	target, err := ParseAccountIndex(raw.TraderIndex, r.accounts, false)
	if err != nil {
		return Intent{}, err
	}

	strategy := DefaultStrategyName
	if raw.StrategyName != nil && strings.TrimSpace(*raw.StrategyName) != "" {
		strategy = *raw.StrategyName
	}

	return Intent{
		Operation: op,
		Symbol:    instrument.Normalize(symbol),
		Price:     price,
		PriceType: priceType,
		Sizing:    sizing,
		Strategy:  strategy,
		target:    target,
	}, nil
}

func (r *Resolver) resolveSizing(symbol string, raw RawOrder) (Sizing, error) {
	pctNum, qtyNum := raw.proportion(), raw.fixedQuantity()
	if (pctNum == nil) == (qtyNum == nil) {
		return Sizing{}, invalid(KindAmbiguousSizing, "proportion", "必须且只能提供 proportion 或 fixed_quantity 其中之一")
	}

	if pctNum != nil {
		pct, err := pctNum.Float64()
		if err != nil || math.IsNaN(pct) || pct < 0 || pct > 1 {
			return Sizing{}, invalid(KindProportionOutOfRange, "proportion", "proportion 必须在 0 到 1 之间: %s", pctNum.String())
		}
		return Proportion(pct), nil
	}

	kind := r.classifier.KindOf(symbol)
	lot := instrument.MinLot(kind)
	unit := instrument.UnitName(kind)
	qty, ok := integral(*qtyNum)
	if !ok || qty <= 0 || qty%lot != 0 {
		return Sizing{}, &ValidationError{
			Kind:  KindLotSizeMismatch,
			Field: "fixed_quantity",
			Msg:   fmt.Sprintf("fixed_quantity 必须是 %d 的正整数倍（%s）: %s", lot, unit, qtyNum.String()),
			Lot:   lot,
			Unit:  unit,
		}
	}
	return FixedQuantity(qty, kind), nil
}

// ParseAccountIndex 校验账户序号，required 为 false 时缺省返回 nil 表示全部账户。
func ParseAccountIndex(num *json.Number, accounts int, required bool) (*int, error) {
	if num == nil {
		if required {
			return nil, invalid(KindMissingField, "trader_index", "缺少必要参数: trader_index")
		}
		return nil, nil
	}
	idx, ok := integral(*num)
	if !ok || idx < 0 || idx >= int64(accounts) {
		return nil, invalid(KindInvalidAccountIndex, "trader_index", "无效的交易器索引: %s", num.String())
	}
	i := int(idx)
	return &i, nil
}

// ParseReserveAmount 解析逆回购保留金额，缺省为 0。
func ParseReserveAmount(num *json.Number) (float64, error) {
	if num == nil {
		return 0, nil
	}
	f, err := num.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(KindInvalidAmount, "reserve_amount", "无效的保留金额: %s", num.String())
	}
	if f < 0 {
		return 0, invalid(KindInvalidAmount, "reserve_amount", "保留金额不能为负数")
	}
	return f, nil
}

// integral 接受整数或整数值的浮点写法，如 200 与 200.0。
func integral(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func missingField(symbol string) string {
	if symbol == "" {
		return "symbol"
	}
	return "trade_price"
}
