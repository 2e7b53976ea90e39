package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// FetchBalance 获取账户余额，计价币种按 quote_currency、USDC、USD、USDT 的顺序选取。
func (c *Client) FetchBalance(ctx context.Context) (Balance, error) {
	var raw ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		balances, err := c.api.FetchBalance()
		if err != nil {
			return err
		}
		raw = balances
		return nil
	})
	if err != nil {
		return Balance{}, fmt.Errorf("exchange: 获取账户余额失败: %w", err)
	}
	return c.normalizeBalance(raw), nil
}

func (c *Client) quoteCodes() []string {
	codes := make([]string, 0, 4)
	if q := strings.ToUpper(strings.TrimSpace(c.cfg.QuoteCurrency)); q != "" {
		codes = append(codes, q)
	}
	for _, code := range []string{"USDC", "USD", "USDT"} {
		if len(codes) > 0 && codes[0] == code {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}

func (c *Client) normalizeBalance(balances ccxt.Balances) Balance {
	var balance Balance
	codes := c.quoteCodes()

	if balances.Total != nil {
		for _, code := range codes {
			if total, ok := balances.Total[code]; ok && total != nil {
				balance.TotalQuote = *total
				balance.TotalEquity = *total
				break
			}
		}
	}
	if balances.Free != nil {
		for _, code := range codes {
			if free, ok := balances.Free[code]; ok && free != nil {
				balance.FreeQuote = *free
				break
			}
		}
	}
	if balances.Info != nil {
		if summary, ok := balances.Info["marginSummary"].(map[string]interface{}); ok {
			if v := parseNumeric(summary["accountValue"]); v > 0 {
				balance.TotalEquity = v
			}
			if balance.TotalQuote == 0 {
				balance.TotalQuote = parseNumeric(summary["totalRawUsd"])
			}
			balance.MarginUsed = parseNumeric(summary["totalMarginUsed"])
		}
		if v := parseNumeric(balances.Info["withdrawable"]); v > 0 {
			balance.Withdrawable = v
			balance.FreeQuote = v
		}
		if balance.TotalEquity == 0 {
			if v := parseNumeric(balances.Info["totalWalletBalance"]); v > 0 {
				balance.TotalEquity = v
			}
		}
		if v := parseNumeric(balances.Info["totalUnrealizedProfit"]); v != 0 {
			balance.Unrealized = v
		}
	}

	if balance.TotalEquity == 0 {
		balance.TotalEquity = balance.TotalQuote
	}
	if balance.Withdrawable == 0 {
		balance.Withdrawable = balance.FreeQuote
	}
	balance.Timestamp = time.Now().UTC()
	return balance
}

// FetchPositions 获取已映射市场上的持仓，未配置映射的市场会被忽略。
func (c *Client) FetchPositions(ctx context.Context) ([]PositionDetail, error) {
	var raw []ccxt.Position
	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		positions, err := c.api.FetchPositions()
		if err != nil {
			return err
		}
		raw = positions
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: 获取持仓失败: %w", err)
	}

	now := time.Now().UTC()
	positions := make([]PositionDetail, 0, len(raw))
	for _, rawPos := range raw {
		market := derefString(rawPos.Symbol)
		symbol, ok := c.symbolFor(market)
		if !ok {
			continue
		}

		size := derefFloat(rawPos.Contracts)
		if size == 0 {
			continue
		}

		side := strings.ToUpper(strings.TrimSpace(derefString(rawPos.Side)))
		if side == "" {
			side = "LONG"
		}

		mark := derefFloat(rawPos.MarkPrice)
		notional := derefFloat(rawPos.Notional)
		positionValue := notional
		marginUsed := derefFloat(rawPos.Collateral)

		if rawPos.Info != nil {
			if info, ok := rawPos.Info["position"].(map[string]interface{}); ok {
				if mark == 0 {
					mark = parseNumeric(info["markPx"])
				}
				if v := parseNumeric(info["positionValue"]); v > 0 {
					positionValue = v
				}
				if v := parseNumeric(info["marginUsed"]); v > 0 {
					marginUsed = v
				}
			}
		}

		positions = append(positions, PositionDetail{
			Symbol:        symbol,
			Market:        market,
			Side:          side,
			Size:          size,
			EntryPrice:    derefFloat(rawPos.EntryPrice),
			MarkPrice:     mark,
			Notional:      notional,
			PositionValue: positionValue,
			UnrealizedPnl: derefFloat(rawPos.UnrealizedPnl),
			MarginUsed:    marginUsed,
			Timestamp:     now,
		})
	}
	return positions, nil
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// parseNumeric 把交易所原始字段转换为 float64，无法识别时返回 0。
func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		return derefFloat(v)
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		return parseNumericString(v)
	case fmt.Stringer:
		return parseNumericString(v.String())
	}
	return 0
}

func parseNumericString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
