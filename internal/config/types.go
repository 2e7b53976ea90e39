package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// 账户类型。
const (
	AccountKindPaper    = "paper"
	AccountKindExchange = "exchange"
)

// Config 聚合了网关运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Accounts   []AccountConfig  `mapstructure:"accounts"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ServerConfig 描述 HTTP 服务参数。
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// Addr 返回监听地址。
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimitConfig 控制每个客户端的请求速率，RequestsPerSecond 为 0 表示不限制。
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AuthConfig 描述签名校验参数。
type AuthConfig struct {
	SignatureTimeout time.Duration     `mapstructure:"signature_timeout"`
	Clients          []APIClientConfig `mapstructure:"clients"`
}

// APIClientConfig 为一个签名客户端的凭证。
type APIClientConfig struct {
	ClientID string `mapstructure:"client_id"`
	Secret   string `mapstructure:"secret"`
}

// AccountConfig 描述一个交易账户。
type AccountConfig struct {
	AccountID string         `mapstructure:"account_id"`
	Nickname  string         `mapstructure:"nickname"`
	Kind      string         `mapstructure:"kind"`
	Enabled   *bool          `mapstructure:"enabled"`
	Paper     PaperConfig    `mapstructure:"paper"`
	Exchange  ExchangeConfig `mapstructure:"exchange"`
}

// IsEnabled 未配置 enabled 时视为启用。
func (a AccountConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// PaperConfig 控制模拟账户。
type PaperConfig struct {
	InitialCash float64 `mapstructure:"initial_cash"`
}

// ExchangeConfig 描述交易所账户连接信息。
type ExchangeConfig struct {
	Name          string          `mapstructure:"name"`
	APIKey        string          `mapstructure:"api_key"`
	APISecret     string          `mapstructure:"api_secret"`
	APIPass       string          `mapstructure:"api_password"`
	Wallet        string          `mapstructure:"wallet_address"`
	PrivateKey    string          `mapstructure:"private_key"`
	UseSandbox    bool            `mapstructure:"use_sandbox"`
	QuoteCurrency string          `mapstructure:"quote_currency"`
	QuantityScale float64         `mapstructure:"quantity_scale"`
	Markets       []MarketMapping `mapstructure:"markets"`
	Retry         RetryConfig     `mapstructure:"retry"`
}

// MarketMapping 把网关证券代码映射到交易所市场，如 600000.SH -> BTC/USDC:USDC。
type MarketMapping struct {
	Symbol string `mapstructure:"symbol"`
	Market string `mapstructure:"market"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DispatchConfig 控制多账户分发。
type DispatchConfig struct {
	MaxParallel int `mapstructure:"max_parallel"`
}

// MarketDataConfig 描述行情来源。
type MarketDataConfig struct {
	Source      string             `mapstructure:"source"`
	Exchange    ExchangeConfig     `mapstructure:"exchange"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
}

// InstrumentConfig 为静态行情中的一条证券记录。
type InstrumentConfig struct {
	Symbol    string  `mapstructure:"symbol"`
	Name      string  `mapstructure:"name"`
	LastPrice float64 `mapstructure:"last_price"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// NotifyConfig 描述执行结果推送。
type NotifyConfig struct {
	DingTalk DingTalkConfig `mapstructure:"dingtalk"`
}

// DingTalkConfig 为钉钉群机器人配置，Secret 为加签密钥。
type DingTalkConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	AccessToken string        `mapstructure:"access_token"`
	Secret      string        `mapstructure:"secret"`
	Keyword     string        `mapstructure:"keyword"`
	AtAll       bool          `mapstructure:"at_all"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// EnabledAccounts 返回启用的账户，顺序与配置一致。
func (c *Config) EnabledAccounts() []AccountConfig {
	accounts := make([]AccountConfig, 0, len(c.Accounts))
	for _, acc := range c.Accounts {
		if acc.IsEnabled() {
			accounts = append(accounts, acc)
		}
	}
	return accounts
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		err = multierr.Append(err, errors.New("server 读写超时必须大于0"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("server.shutdown_timeout 必须大于0"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		err = multierr.Append(err, errors.New("server.max_body_bytes 必须大于0"))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 {
		err = multierr.Append(err, errors.New("server.rate_limit.requests_per_second 不能为负"))
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.Burst <= 0 {
		err = multierr.Append(err, errors.New("server.rate_limit.burst 必须大于0"))
	}
	if c.Auth.SignatureTimeout <= 0 {
		err = multierr.Append(err, errors.New("auth.signature_timeout 必须大于0"))
	}
	seen := make(map[string]struct{}, len(c.Auth.Clients))
	for i, client := range c.Auth.Clients {
		if strings.TrimSpace(client.ClientID) == "" {
			err = multierr.Append(err, fmt.Errorf("auth.clients[%d].client_id 不能为空", i))
			continue
		}
		if client.Secret == "" {
			err = multierr.Append(err, fmt.Errorf("auth.clients[%d].secret 不能为空", i))
		}
		if _, dup := seen[client.ClientID]; dup {
			err = multierr.Append(err, fmt.Errorf("auth.clients 中客户端 %q 重复", client.ClientID))
		}
		seen[client.ClientID] = struct{}{}
	}
	if len(c.EnabledAccounts()) == 0 {
		err = multierr.Append(err, errors.New("accounts 至少需要一个启用的账户"))
	}
	for i, acc := range c.Accounts {
		if !acc.IsEnabled() {
			continue
		}
		if strings.TrimSpace(acc.AccountID) == "" {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].account_id 不能为空", i))
		}
		switch acc.Kind {
		case AccountKindPaper:
			if acc.Paper.InitialCash < 0 {
				err = multierr.Append(err, fmt.Errorf("accounts[%d].paper.initial_cash 不能为负", i))
			}
		case AccountKindExchange:
			err = multierr.Append(err, validateExchange(fmt.Sprintf("accounts[%d].exchange", i), acc.Exchange))
		default:
			err = multierr.Append(err, fmt.Errorf("accounts[%d].kind 不支持: %q", i, acc.Kind))
		}
	}
	if c.Dispatch.MaxParallel < 0 {
		err = multierr.Append(err, errors.New("dispatch.max_parallel 不能为负"))
	}
	switch c.MarketData.Source {
	case "static":
	case "exchange":
		err = multierr.Append(err, validateExchange("market_data.exchange", c.MarketData.Exchange))
	default:
		err = multierr.Append(err, fmt.Errorf("market_data.source 不支持: %q", c.MarketData.Source))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if d := c.Notify.DingTalk; d.Enabled {
		if d.Endpoint == "" {
			err = multierr.Append(err, errors.New("notify.dingtalk.endpoint 不能为空"))
		}
		if d.AccessToken == "" || d.Secret == "" {
			err = multierr.Append(err, errors.New("notify.dingtalk 需要配置 access_token 与 secret"))
		}
		if d.Timeout <= 0 {
			err = multierr.Append(err, errors.New("notify.dingtalk.timeout 必须大于0"))
		}
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func validateExchange(prefix string, ex ExchangeConfig) error {
	var err error
	switch strings.ToLower(ex.Name) {
	case "binanceusdm":
	case "hyperliquid":
		if ex.Wallet == "" || ex.PrivateKey == "" {
			err = multierr.Append(err, fmt.Errorf("%s: hyperliquid 需要配置 wallet_address 与 private_key", prefix))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%s.name 不支持: %q", prefix, ex.Name))
	}
	for i, m := range ex.Markets {
		if strings.TrimSpace(m.Symbol) == "" || strings.TrimSpace(m.Market) == "" {
			err = multierr.Append(err, fmt.Errorf("%s.markets[%d] 需要同时配置 symbol 与 market", prefix, i))
		}
	}
	if ex.QuantityScale < 0 {
		err = multierr.Append(err, fmt.Errorf("%s.quantity_scale 不能为负", prefix))
	}
	if ex.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.retry.max_attempts 必须大于0", prefix))
	}
	if ex.Retry.MinDelay <= 0 || ex.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.retry.delay 必须为正", prefix))
	}
	if ex.Retry.MinDelay > ex.Retry.MaxDelay {
		err = multierr.Append(err, fmt.Errorf("%s.retry.min_delay 不能大于 max_delay", prefix))
	}
	return err
}
