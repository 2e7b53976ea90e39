package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"trade-gateway/internal/app"
	"trade-gateway/internal/config"
	"trade-gateway/internal/log"
	"trade-gateway/internal/store"
)

func main() {
	var (
		configPath     string
		registerClient string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&registerClient, "register-client", "", "写入签名客户端 client_id:secret 后退出")
	flag.Parse()

	if err := run(configPath, registerClient); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(configPath, registerClient string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqliteStore, err := store.NewSQLite(ctx, cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		return err
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	if registerClient != "" {
		return register(ctx, sqliteStore, registerClient, logger)
	}

	gateway, err := app.New(ctx, cfg, logger, sqliteStore)
	if err != nil {
		logger.Error("初始化交易网关失败", zap.Error(err))
		return err
	}

	if err := gateway.Run(ctx); err != nil {
		logger.Error("系统运行异常", zap.Error(err))
		return err
	}

	logger.Info("系统已安全退出")
	return nil
}

func register(ctx context.Context, st *store.Store, pair string, logger *zap.Logger) error {
	id, secret, ok := strings.Cut(pair, ":")
	id = strings.TrimSpace(id)
	if !ok || id == "" || secret == "" {
		return errors.New("-register-client 格式应为 client_id:secret")
	}
	if err := st.UpsertAPIClient(ctx, store.APIClient{
		ClientID: id,
		Secret:   secret,
		Enabled:  true,
	}); err != nil {
		return fmt.Errorf("写入客户端失败: %w", err)
	}
	logger.Info("签名客户端已写入", zap.String("client_id", id))
	return nil
}
