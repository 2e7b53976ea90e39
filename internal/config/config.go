package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"
	envPrefix         = "tradegw"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(defaultEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyListDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv 在文件存在时把 .env 注入进程环境，已存在的环境变量不会被覆盖。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9091)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit.requests_per_second", 0)
	v.SetDefault("server.rate_limit.burst", 10)

	v.SetDefault("auth.signature_timeout", "300s")

	v.SetDefault("dispatch.max_parallel", 0)

	v.SetDefault("market_data.source", "static")
	v.SetDefault("market_data.exchange.quantity_scale", 1)
	v.SetDefault("market_data.exchange.retry.max_attempts", 3)
	v.SetDefault("market_data.exchange.retry.min_delay", "500ms")
	v.SetDefault("market_data.exchange.retry.max_delay", "5s")

	v.SetDefault("database.path", "data/trade_gateway.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("notify.dingtalk.enabled", false)
	v.SetDefault("notify.dingtalk.endpoint", "https://oapi.dingtalk.com/robot/send")
	v.SetDefault("notify.dingtalk.timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

// applyListDefaults 补齐列表项中的默认值，viper 的 SetDefault 不作用于数组元素。
func (c *Config) applyListDefaults() {
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		acc.AccountID = strings.TrimSpace(acc.AccountID)
		if acc.Kind == "" {
			acc.Kind = AccountKindPaper
		}
		acc.Kind = strings.ToLower(acc.Kind)
		if acc.Kind == AccountKindExchange {
			applyExchangeDefaults(&acc.Exchange)
		}
	}
	c.MarketData.Source = strings.ToLower(strings.TrimSpace(c.MarketData.Source))
	if c.MarketData.Source == "exchange" {
		applyExchangeDefaults(&c.MarketData.Exchange)
	}
	for i := range c.Auth.Clients {
		c.Auth.Clients[i].ClientID = strings.TrimSpace(c.Auth.Clients[i].ClientID)
	}
}

func applyExchangeDefaults(ex *ExchangeConfig) {
	ex.Name = strings.ToLower(strings.TrimSpace(ex.Name))
	if ex.QuoteCurrency == "" {
		ex.QuoteCurrency = "USDC"
	}
	if ex.QuantityScale == 0 {
		ex.QuantityScale = 1
	}
	if ex.Retry.MaxAttempts == 0 {
		ex.Retry.MaxAttempts = 3
	}
	if ex.Retry.MinDelay == 0 {
		ex.Retry.MinDelay = 500 * time.Millisecond
	}
	if ex.Retry.MaxDelay == 0 {
		ex.Retry.MaxDelay = 5 * time.Second
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
