// Package app 组装交易网关的各个组件并驱动其生命周期。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"trade-gateway/internal/account"
	"trade-gateway/internal/api"
	"trade-gateway/internal/auth"
	"trade-gateway/internal/broker"
	"trade-gateway/internal/config"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/exchange"
	"trade-gateway/internal/instrument"
	"trade-gateway/internal/marketdata"
	"trade-gateway/internal/monitor"
	"trade-gateway/internal/notify"
	"trade-gateway/internal/order"
	"trade-gateway/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	server   *api.Server
	notifier *notify.Service
}

// New 依次构建凭证、行情、账户、分发引擎与 HTTP 服务。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	creds, err := loadCredentials(ctx, cfg.Auth, st)
	if err != nil {
		return nil, err
	}
	if creds.Len() == 0 {
		logger.Warn("未配置任何签名客户端，签名接口将全部拒绝")
	}

	md, err := newMarketData(cfg.MarketData, logger)
	if err != nil {
		return nil, err
	}

	accounts, err := broker.Build(cfg.Accounts, md, logger.Named("broker"))
	if err != nil {
		return nil, err
	}
	registry, err := account.NewRegistry(accounts...)
	if err != nil {
		return nil, err
	}

	engine := dispatch.NewEngine(registry,
		dispatch.WithMaxParallel(cfg.Dispatch.MaxParallel),
		dispatch.WithLogger(logger.Named("dispatch")),
	)
	var journal api.Journal
	if st != nil {
		svc, err := monitor.NewService(ctx, st, logger.Named("monitor"))
		if err != nil {
			return nil, err
		}
		journal = svc
	}

	var (
		notifier *notify.Service
		hook     api.Notifier
	)
	if dt := cfg.Notify.DingTalk; dt.Enabled {
		bot, err := notify.NewDingTalk(dt)
		if err != nil {
			return nil, err
		}
		notifier = notify.NewService(bot, dt.Keyword, dt.Timeout, logger)
		hook = notifier
	}

	verifier := auth.NewVerifier(creds, cfg.Auth.SignatureTimeout,
		auth.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		auth.WithLogger(logger.Named("auth")),
	)

	server := api.NewServer(cfg.Server, api.Deps{
		Engine:     engine,
		Resolver:   order.NewResolver(instrument.DefaultClassifier{}, registry.Len()),
		Verifier:   verifier,
		Sessions:   auth.NoSessions,
		MarketData: md,
		Journal:    journal,
		Notifier:   hook,
		Logger:     logger.Named("api"),
	})

	return &App{cfg: cfg, logger: logger, server: server, notifier: notifier}, nil
}

// Close 等待在途的结果推送完成。
func (a *App) Close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
}

// Handler 返回 HTTP 根处理器。
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run 启动 HTTP 服务并阻塞直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易网关已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("accounts", len(a.cfg.EnabledAccounts())),
		zap.String("market_data", a.cfg.MarketData.Source),
		zap.Bool("dingtalk", a.notifier != nil),
	)
	defer a.Close()

	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("HTTP 服务异常退出: %w", err)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，已停止")
	return nil
}

// loadCredentials 合并配置与数据库中的客户端，配置优先，数据库中禁用的客户端被忽略。
func loadCredentials(ctx context.Context, cfg config.AuthConfig, st *store.Store) (*auth.CredentialStore, error) {
	creds := make([]auth.Credential, 0, len(cfg.Clients))
	for _, c := range cfg.Clients {
		creds = append(creds, auth.Credential{ClientID: c.ClientID, Secret: []byte(c.Secret)})
	}

	if st != nil {
		clients, err := st.ListAPIClients(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: 读取 API 客户端失败: %w", err)
		}
		for _, c := range clients {
			if !c.Enabled {
				continue
			}
			creds = append(creds, auth.Credential{ClientID: c.ClientID, Secret: []byte(c.Secret)})
		}
	}

	credStore, err := auth.NewCredentialStore(creds...)
	if err != nil {
		return nil, fmt.Errorf("app: 构建凭证失败: %w", err)
	}
	return credStore, nil
}

func newMarketData(cfg config.MarketDataConfig, logger *zap.Logger) (marketdata.Service, error) {
	static := marketdata.NewStatic(cfg.Instruments)
	switch cfg.Source {
	case "", "static":
		return static, nil
	case "exchange":
		client, err := exchange.NewClient(cfg.Exchange, logger.Named("marketdata"))
		if err != nil {
			return nil, fmt.Errorf("app: 构建行情客户端失败: %w", err)
		}
		return marketdata.NewExchange(client, static, logger.Named("marketdata")), nil
	default:
		return nil, fmt.Errorf("app: 不支持的行情来源 %q", cfg.Source)
	}
}
