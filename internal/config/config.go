// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RPCURL       string `mapstructure:"rpc_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
	PrivateKey   string `mapstructure:"private_key"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
	MetricsAddr  string `mapstructure:"metrics_addr"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Copy      CopyConfig      `mapstructure:"copy"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Positions PositionsConfig `mapstructure:"positions"`
	Router    RouterConfig    `mapstructure:"router"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

type StorageConfig struct {
	// DSN is a postgres URL, "sqlite://<path>" or "memory".
	DSN string `mapstructure:"dsn"`
}

// CopyConfig seeds copy settings on first start. Once persisted, stored settings win.
type CopyConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	SizingMode     string   `mapstructure:"sizing_mode"`
	SizeParam      float64  `mapstructure:"size_param"`
	FixedSize      float64  `mapstructure:"fixed_size"`
	BalanceCapPct  float64  `mapstructure:"balance_cap_pct"`
	MinTradeSOL    float64  `mapstructure:"min_trade_sol"`
	MaxTradeSOL    float64  `mapstructure:"max_trade_sol"`
	Direction      string   `mapstructure:"direction"`
	Whitelist      []string `mapstructure:"whitelist"`
	Blacklist      []string `mapstructure:"blacklist"`
	MaxSlippageBps int      `mapstructure:"max_slippage_bps"`
}

type MonitorConfig struct {
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
	BackoffCapMs   int `mapstructure:"backoff_cap_ms"`
	DegradedAfter  int `mapstructure:"degraded_after"`
	BackfillLimit  int `mapstructure:"backfill_limit"`
	DedupeSize     int `mapstructure:"dedupe_size"`
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	BufferSize     int `mapstructure:"buffer_size"`
}

type ExecutorConfig struct {
	Workers             int `mapstructure:"workers"`
	QuoteTimeoutMs      int `mapstructure:"quote_timeout_ms"`
	PollIntervalMs      int `mapstructure:"poll_interval_ms"`
	ConfirmTimeoutMs    int `mapstructure:"confirm_timeout_ms"`
	ReconcileIntervalMs int `mapstructure:"reconcile_interval_ms"`
	ExpireAfterMs       int `mapstructure:"expire_after_ms"`
	DefaultSlippageBps  int `mapstructure:"default_slippage_bps"`
	MaxSlippageBps      int `mapstructure:"max_slippage_bps"`
}

type PositionsConfig struct {
	CheckIntervalMs   int     `mapstructure:"check_interval_ms"`
	DefaultTakeProfit float64 `mapstructure:"default_take_profit"`
	DefaultStopLoss   float64 `mapstructure:"default_stop_loss"`
	Epsilon           float64 `mapstructure:"epsilon"`
}

type RouterConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	PriceURL  string `mapstructure:"price_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Retries   int    `mapstructure:"retries"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	ChatID      int64  `mapstructure:"chat_id"`
	NotifySkips bool   `mapstructure:"notify_skips"`
}

const (
	DefaultBackoffBase       = 1000
	DefaultBackoffCap        = 30000
	DefaultDegradedAfter     = 5
	DefaultBackfillLimit     = 100
	DefaultDedupeSize        = 2048
	DefaultFeedPoll          = 3000
	DefaultWorkers           = 4
	DefaultQuoteTimeout      = 10000
	DefaultConfirmPoll       = 2000
	DefaultConfirmTimeout    = 60000
	DefaultReconcileInterval = 30000
	DefaultExpireAfter       = 120000
	DefaultSlippageBps       = 100
	DefaultMaxSlippageBps    = 500
	DefaultCheckInterval     = 10000
	DefaultTakeProfit        = 50.0
	DefaultStopLoss          = 25.0
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"log_file":                       "logs/copybot.log",
		"storage.dsn":                    "sqlite://data/copybot.db",
		"copy.enabled":                   false,
		"copy.sizing_mode":               "percentage",
		"copy.size_param":                0.25,
		"copy.fixed_size":                0.1,
		"copy.balance_cap_pct":           0.1,
		"copy.min_trade_sol":             0.5,
		"copy.max_trade_sol":             50.0,
		"copy.direction":                 "both",
		"copy.max_slippage_bps":          DefaultMaxSlippageBps,
		"monitor.backoff_base_ms":        DefaultBackoffBase,
		"monitor.backoff_cap_ms":         DefaultBackoffCap,
		"monitor.degraded_after":         DefaultDegradedAfter,
		"monitor.backfill_limit":         DefaultBackfillLimit,
		"monitor.dedupe_size":            DefaultDedupeSize,
		"monitor.poll_interval_ms":       DefaultFeedPoll,
		"monitor.buffer_size":            256,
		"executor.workers":               DefaultWorkers,
		"executor.quote_timeout_ms":      DefaultQuoteTimeout,
		"executor.poll_interval_ms":      DefaultConfirmPoll,
		"executor.confirm_timeout_ms":    DefaultConfirmTimeout,
		"executor.reconcile_interval_ms": DefaultReconcileInterval,
		"executor.expire_after_ms":       DefaultExpireAfter,
		"executor.default_slippage_bps":  DefaultSlippageBps,
		"executor.max_slippage_bps":      DefaultMaxSlippageBps,
		"positions.check_interval_ms":    DefaultCheckInterval,
		"positions.default_take_profit":  DefaultTakeProfit,
		"positions.default_stop_loss":    DefaultStopLoss,
		"positions.epsilon":              1e-9,
		"router.base_url":                "https://api.jup.ag/ultra/v1",
		"router.price_url":               "https://lite-api.jup.ag/price/v3",
		"router.timeout_ms":              10000,
		"router.retries":                 3,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("COPYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("rpc_url is empty")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	if cfg.Storage.DSN == "" {
		return errors.New("storage.dsn is empty")
	}
	switch cfg.Copy.SizingMode {
	case "fixed", "percentage", "proportional":
	default:
		return fmt.Errorf("invalid copy.sizing_mode %q", cfg.Copy.SizingMode)
	}
	switch cfg.Copy.Direction {
	case "both", "buy", "sell":
	default:
		return fmt.Errorf("invalid copy.direction %q", cfg.Copy.Direction)
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Monitor.BackoffBaseMs <= 0 || cfg.Monitor.BackoffCapMs < cfg.Monitor.BackoffBaseMs {
		return errors.New("invalid monitor backoff bounds")
	}
	if cfg.Executor.Workers <= 0 {
		return errors.New("invalid executor.workers")
	}
	if cfg.Executor.PollIntervalMs <= 0 || cfg.Executor.ConfirmTimeoutMs < cfg.Executor.PollIntervalMs {
		return errors.New("invalid confirmation polling bounds")
	}
	if cfg.Executor.QuoteTimeoutMs <= 0 {
		return errors.New("invalid executor.quote_timeout_ms")
	}
	if cfg.Executor.MaxSlippageBps <= 0 || cfg.Executor.DefaultSlippageBps > cfg.Executor.MaxSlippageBps {
		return errors.New("invalid slippage bounds")
	}
	if cfg.Positions.CheckIntervalMs <= 0 {
		return errors.New("invalid positions.check_interval_ms")
	}
	if cfg.Positions.DefaultTakeProfit <= 0 || cfg.Positions.DefaultStopLoss <= 0 || cfg.Positions.DefaultStopLoss >= 100 {
		return errors.New("invalid default take-profit/stop-loss")
	}
	if cfg.Copy.SizeParam < 0 || cfg.Copy.FixedSize < 0 || cfg.Copy.BalanceCapPct < 0 {
		return errors.New("copy sizing parameters must not be negative")
	}
	if cfg.Copy.MaxTradeSOL > 0 && cfg.Copy.MinTradeSOL > cfg.Copy.MaxTradeSOL {
		return errors.New("copy.min_trade_sol exceeds copy.max_trade_sol")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// loadEnvironmentVariables applies secrets that are usually kept out of the file.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	if key := v.GetString("PRIVATE_KEY"); key != "" {
		cfg.PrivateKey = key
	}
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if apiKey := v.GetString("ROUTER_API_KEY"); apiKey != "" {
		cfg.Router.APIKey = apiKey
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c MonitorConfig) BackoffBase() time.Duration  { return ms(c.BackoffBaseMs) }
func (c MonitorConfig) BackoffCap() time.Duration   { return ms(c.BackoffCapMs) }
func (c MonitorConfig) PollInterval() time.Duration { return ms(c.PollIntervalMs) }

func (c ExecutorConfig) QuoteTimeout() time.Duration      { return ms(c.QuoteTimeoutMs) }
func (c ExecutorConfig) PollInterval() time.Duration      { return ms(c.PollIntervalMs) }
func (c ExecutorConfig) ConfirmTimeout() time.Duration    { return ms(c.ConfirmTimeoutMs) }
func (c ExecutorConfig) ReconcileInterval() time.Duration { return ms(c.ReconcileIntervalMs) }
func (c ExecutorConfig) ExpireAfter() time.Duration       { return ms(c.ExpireAfterMs) }

func (c PositionsConfig) CheckInterval() time.Duration { return ms(c.CheckIntervalMs) }

func (c RouterConfig) Timeout() time.Duration { return ms(c.TimeoutMs) }
