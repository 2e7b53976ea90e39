// Package broker 根据配置构造交易账户。
package broker

import (
	"fmt"

	"go.uber.org/zap"

	"trade-gateway/internal/account"
	"trade-gateway/internal/broker/futures"
	"trade-gateway/internal/broker/paper"
	"trade-gateway/internal/config"
	"trade-gateway/internal/exchange"
	"trade-gateway/internal/marketdata"
)

// Build 按配置顺序构造启用的账户。
func Build(accounts []config.AccountConfig, md marketdata.Service, logger *zap.Logger) ([]account.Account, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make([]account.Account, 0, len(accounts))
	for _, cfg := range accounts {
		if !cfg.IsEnabled() {
			continue
		}
		trader, err := newTrader(cfg, md, logger)
		if err != nil {
			return nil, fmt.Errorf("broker: 构造账户 %s 失败: %w", cfg.AccountID, err)
		}
		out = append(out, account.Account{
			ID:       cfg.AccountID,
			Nickname: cfg.Nickname,
			Trader:   trader,
		})
		logger.Info("账户已加载", zap.String("account_id", cfg.AccountID), zap.String("kind", cfg.Kind))
	}
	return out, nil
}

func newTrader(cfg config.AccountConfig, md marketdata.Service, logger *zap.Logger) (account.TradingAccount, error) {
	switch cfg.Kind {
	case config.AccountKindPaper:
		return paper.New(cfg.AccountID, cfg.Paper.InitialCash,
			paper.WithMarketData(md),
			paper.WithLogger(logger.Named("paper")),
		), nil
	case config.AccountKindExchange:
		client, err := exchange.NewClient(cfg.Exchange, logger.Named("exchange"))
		if err != nil {
			return nil, err
		}
		return futures.New(cfg.AccountID, client, cfg.Exchange.QuantityScale, logger.Named("futures")), nil
	default:
		return nil, fmt.Errorf("不支持的账户类型 %q", cfg.Kind)
	}
}
