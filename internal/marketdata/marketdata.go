// Package marketdata 提供只读行情：最新价与证券名称。
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"trade-gateway/internal/config"
	"trade-gateway/internal/exchange"
	"trade-gateway/internal/instrument"
)

// ErrUnknownInstrument 行情源中没有该证券。
var ErrUnknownInstrument = errors.New("marketdata: 未知证券")

// Service 行情查询接口。
type Service interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	InstrumentName(ctx context.Context, symbol string) (string, error)
}

type quote struct {
	name  string
	price float64
}

// Static 由配置中的证券列表构成的静态行情，构造后只读。
type Static struct {
	quotes map[string]quote
}

// NewStatic 按配置构造静态行情，代码统一规范化。
func NewStatic(instruments []config.InstrumentConfig) *Static {
	quotes := make(map[string]quote, len(instruments))
	for _, inst := range instruments {
		symbol := instrument.Normalize(inst.Symbol)
		if symbol == "" {
			continue
		}
		quotes[symbol] = quote{name: strings.TrimSpace(inst.Name), price: inst.LastPrice}
	}
	return &Static{quotes: quotes}
}

// LastPrice 返回配置的最新价。
func (s *Static) LastPrice(_ context.Context, symbol string) (float64, error) {
	q, ok := s.quotes[instrument.Normalize(symbol)]
	if !ok || q.price <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return q.price, nil
}

// InstrumentName 返回配置的证券名称。
func (s *Static) InstrumentName(_ context.Context, symbol string) (string, error) {
	q, ok := s.quotes[instrument.Normalize(symbol)]
	if !ok || q.name == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return q.name, nil
}

type orderBookSource interface {
	Market(symbol string) (string, error)
	FetchOrderBook(ctx context.Context, market string, depth int64) (exchange.OrderBookSnapshot, error)
}

// Exchange 以交易所订单簿中间价作为最新价。名称取自静态配置，缺省时使用交易所市场名。
type Exchange struct {
	client orderBookSource
	names  *Static
	logger *zap.Logger
}

// NewExchange 创建基于交易所的行情服务。
func NewExchange(client *exchange.Client, names *Static, logger *zap.Logger) *Exchange {
	return newExchange(client, names, logger)
}

func newExchange(client orderBookSource, names *Static, logger *zap.Logger) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	if names == nil {
		names = NewStatic(nil)
	}
	return &Exchange{client: client, names: names, logger: logger}
}

// LastPrice 查询订单簿并返回中间价。
func (e *Exchange) LastPrice(ctx context.Context, symbol string) (float64, error) {
	market, err := e.client.Market(symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	snapshot, err := e.client.FetchOrderBook(ctx, market, 1)
	if err != nil {
		e.logger.Warn("获取订单簿失败", zap.String("symbol", symbol), zap.String("market", market), zap.Error(err))
		return 0, fmt.Errorf("marketdata: 获取 %s 行情失败: %w", symbol, err)
	}
	price := snapshot.Mid()
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s 订单簿为空", ErrUnknownInstrument, symbol)
	}
	return price, nil
}

// InstrumentName 优先返回静态配置的名称。
func (e *Exchange) InstrumentName(ctx context.Context, symbol string) (string, error) {
	if name, err := e.names.InstrumentName(ctx, symbol); err == nil {
		return name, nil
	}
	market, err := e.client.Market(symbol)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return market, nil
}
