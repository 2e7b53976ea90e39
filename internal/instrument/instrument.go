// Package instrument 负责 A 股证券代码的市场归属与品种识别。
package instrument

import "strings"

// Kind 证券品种。
type Kind int

const (
	Stock Kind = iota
	ConvertibleBond
)

func (k Kind) String() string {
	if k == ConvertibleBond {
		return "convertible_bond"
	}
	return "stock"
}

// Market 交易所。
type Market string

const (
	MarketSH Market = "SH"
	MarketSZ Market = "SZ"
	MarketBJ Market = "BJ"
)

// Classifier 判断代码对应的证券品种。
type Classifier interface {
	KindOf(symbol string) Kind
}

// DefaultClassifier 使用内置前缀规则。
type DefaultClassifier struct{}

// KindOf 实现 Classifier。
func (DefaultClassifier) KindOf(symbol string) Kind { return KindOf(symbol) }

var (
	shPrefixes = []string{"50", "51", "60", "73", "90", "110", "113", "132", "204", "78"}
	szPrefixes = []string{"00", "12", "13", "18", "15", "16", "20", "30", "39", "115", "1318"}

	shBondPrefixes = []string{"110", "111", "113", "118"}
	szBondPrefixes = []string{"123", "127", "128"}
)

// Code 去掉市场前后缀，返回纯数字代码。
func Code(symbol string) string {
	code, _ := split(symbol)
	return code
}

// MarketOf 返回代码所属交易所，显式给出的后缀或 sh/sz 前缀优先。
func MarketOf(symbol string) Market {
	code, market := split(symbol)
	if market != "" {
		return market
	}
	switch {
	case hasAnyPrefix(code, shPrefixes):
		return MarketSH
	case hasAnyPrefix(code, szPrefixes):
		return MarketSZ
	case hasAnyPrefix(code, []string{"5", "6"}):
		return MarketSH
	case hasAnyPrefix(code, []string{"8", "4", "9"}):
		return MarketBJ
	default:
		return MarketSZ
	}
}

// Normalize 返回带交易所后缀的代码，如 600000.SH。
func Normalize(symbol string) string {
	code := Code(symbol)
	if code == "" {
		return ""
	}
	return code + "." + string(MarketOf(symbol))
}

// KindOf 按代码前缀识别可转债，其余视为股票。
func KindOf(symbol string) Kind {
	code := Code(symbol)
	switch MarketOf(symbol) {
	case MarketSH:
		if hasAnyPrefix(code, shBondPrefixes) {
			return ConvertibleBond
		}
	case MarketSZ:
		if hasAnyPrefix(code, szBondPrefixes) {
			return ConvertibleBond
		}
	}
	return Stock
}

// MinLot 最小交易单位。
func MinLot(kind Kind) int64 {
	if kind == ConvertibleBond {
		return 10
	}
	return 100
}

// UnitName 数量单位。
func UnitName(kind Kind) string {
	if kind == ConvertibleBond {
		return "张"
	}
	return "股"
}

func split(symbol string) (string, Market) {
	s := strings.TrimSpace(symbol)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "sh"):
		return s[2:], MarketSH
	case strings.HasPrefix(lower, "sz"):
		return s[2:], MarketSZ
	case strings.HasPrefix(lower, "bj"):
		return s[2:], MarketBJ
	}
	idx := strings.IndexByte(s, '.')
	if idx <= 0 {
		return s, ""
	}
	code, suffix := s[:idx], strings.ToUpper(s[idx+1:])
	switch suffix {
	case "SH", "SS", "XSHG":
		return code, MarketSH
	case "SZ", "XSHE":
		return code, MarketSZ
	case "BJ":
		return code, MarketBJ
	}
	return code, ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
