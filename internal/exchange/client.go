// Package exchange 封装基于 ccxt 的交易所访问，供交易所账户与行情服务使用。
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"trade-gateway/internal/config"
	"trade-gateway/internal/instrument"
)

type ccxtAPI interface {
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error)
	FetchOrderBook(symbol string, options ...ccxt.FetchOrderBookOptions) (ccxt.OrderBook, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
}

// Client 负责与交易所交互并实现重试机制。
type Client struct {
	cfg         config.ExchangeConfig
	logger      *zap.Logger
	api         ccxtAPI
	loadMarkets func() error
	markets     map[string]string
	symbols     []string

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 按配置构造 binanceusdm 或 hyperliquid 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	switch strings.ToLower(cfg.Name) {
	case "binanceusdm":
		userConfig["options"] = map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		}
		ex := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return newClient(cfg, ex, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, logger), nil
	case "hyperliquid":
		if cfg.Wallet != "" {
			userConfig["walletAddress"] = cfg.Wallet
		}
		if cfg.PrivateKey != "" {
			userConfig["privateKey"] = cfg.PrivateKey
		}
		ex := ccxt.NewHyperliquid(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return newClient(cfg, ex, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, logger), nil
	default:
		return nil, fmt.Errorf("exchange: 不支持的交易所 %q", cfg.Name)
	}
}

func newClient(cfg config.ExchangeConfig, api ccxtAPI, loadMarkets func() error, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	markets := make(map[string]string, len(cfg.Markets))
	symbols := make([]string, 0, len(cfg.Markets))
	for _, m := range cfg.Markets {
		symbol := instrument.Normalize(m.Symbol)
		if _, dup := markets[symbol]; dup {
			continue
		}
		markets[symbol] = strings.TrimSpace(m.Market)
		symbols = append(symbols, symbol)
	}
	return &Client{
		cfg:         cfg,
		logger:      logger.With(zap.String("exchange", cfg.Name)),
		api:         api,
		loadMarkets: loadMarkets,
		markets:     markets,
		symbols:     symbols,
	}
}

// Name 返回交易所名称。
func (c *Client) Name() string {
	return c.cfg.Name
}

// Market 返回证券代码对应的交易所市场。
func (c *Client) Market(symbol string) (string, error) {
	market, ok := c.markets[instrument.Normalize(symbol)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnmappedSymbol, symbol)
	}
	return market, nil
}

// Symbols 返回已配置映射的证券代码，顺序与配置一致。
func (c *Client) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

func (c *Client) symbolFor(market string) (string, bool) {
	for symbol, m := range c.markets {
		if strings.EqualFold(m, market) {
			return symbol, true
		}
	}
	return "", false
}

// FetchOrderBook 获取订单簿快照。
func (c *Client) FetchOrderBook(ctx context.Context, market string, depth int64) (OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 5
	}

	var raw ccxt.OrderBook
	err := c.callWithRetry(ctx, "fetch_order_book", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		orderBook, err := c.api.FetchOrderBook(market, ccxt.WithFetchOrderBookLimit(depth))
		if err != nil {
			return err
		}
		raw = orderBook
		return nil
	})
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	return convertOrderBook(market, raw), nil
}

// SubmitOrder 提交委托并返回交易所订单号。
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	var placed ccxt.Order
	err := c.callWithRetry(ctx, "create_"+req.Type+"_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		var err error
		switch req.Type {
		case "market":
			var opts []ccxt.CreateMarketOrderOptions
			if len(req.Params) > 0 {
				opts = append(opts, ccxt.WithCreateMarketOrderParams(req.Params))
			}
			placed, err = c.api.CreateMarketOrder(req.Market, req.Side, req.Amount, opts...)
		case "limit":
			var opts []ccxt.CreateLimitOrderOptions
			if len(req.Params) > 0 {
				opts = append(opts, ccxt.WithCreateLimitOrderParams(req.Params))
			}
			placed, err = c.api.CreateLimitOrder(req.Market, req.Side, req.Amount, req.Price, opts...)
		default:
			return backoff.Permanent(fmt.Errorf("exchange: 不支持的订单类型 %s", req.Type))
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return derefString(placed.Id), nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.loadMarkets == nil {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}
	if err := c.loadMarkets(); err != nil {
		return err
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.Int("mapped_markets", len(c.markets)))
	return nil
}

// callWithRetry 对可重试错误按指数退避重试，最多 Retry.MaxAttempts 次。
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.Retry.MinDelay
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 500 * time.Millisecond
	}
	policy.MaxInterval = c.cfg.Retry.MaxDelay
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = 5 * time.Second
	}
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		start := time.Now()
		err := fn()
		latency := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", latency),
				)
			}
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}

		normalizedErr, retry := classifyError(err)
		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中", zap.String("operation", operation), zap.Error(normalizedErr))
			return normalizedErr
		}
		if !retry || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", latency),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return normalizedErr
		}
		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func convertOrderBook(market string, ob ccxt.OrderBook) OrderBookSnapshot {
	convert := func(levels [][]float64) []OrderBookLevel {
		out := make([]OrderBookLevel, 0, len(levels))
		for _, level := range levels {
			if len(level) < 2 {
				continue
			}
			out = append(out, OrderBookLevel{Price: level[0], Amount: level[1]})
		}
		return out
	}

	ts := time.Now().UTC()
	if ob.Timestamp != nil {
		ts = time.UnixMilli(*ob.Timestamp).UTC()
	}
	var nonce int64
	if ob.Nonce != nil {
		nonce = *ob.Nonce
	}

	return OrderBookSnapshot{
		Market:    market,
		Bids:      convert(ob.Bids),
		Asks:      convert(ob.Asks),
		Timestamp: ts,
		Nonce:     nonce,
	}
}
