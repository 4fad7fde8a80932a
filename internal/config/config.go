package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"market-digest/internal/logging"
	"market-digest/internal/textproc"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	TextProc    TextProcConfig    `mapstructure:"textproc"`
	Telegram    TextSourceConfig  `mapstructure:"telegram"`
	Binance     BinanceConfig     `mapstructure:"binance"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Radar       RadarConfig       `mapstructure:"radar"`
	Delivery    DeliveryConfig    `mapstructure:"delivery"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// RedisConfig is shared by the delivery ledger and the radar output store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig governs the hourly cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Offset          time.Duration `mapstructure:"offset"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// PipelineConfig bounds one run.
type PipelineConfig struct {
	Timezone    string        `mapstructure:"timezone"`
	Budget      time.Duration `mapstructure:"budget"`
	Skip        []string      `mapstructure:"skip"`
	Only        []string      `mapstructure:"only"`
	ArtifactDir string        `mapstructure:"artifact_dir"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	HumanMaxLen int           `mapstructure:"human_max_len"`
}

// TextProcConfig tunes contract address detection.
type TextProcConfig struct {
	AddressLengths []int `mapstructure:"address_lengths"`
	RequireDigit   bool  `mapstructure:"require_digit"`
	SkipDecode     bool  `mapstructure:"skip_decode"`
}

// AddressRules converts the section into extractor rules.
func (c TextProcConfig) AddressRules() textproc.AddressRules {
	return textproc.AddressRules{
		Lengths:      append([]int(nil), c.AddressLengths...),
		RequireDigit: c.RequireDigit,
		SkipDecode:   c.SkipDecode,
	}
}

// TextSourceConfig points at the local Telegram ingestion service.
type TextSourceConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	SignalChannel string        `mapstructure:"signal_channel"`
	ChatChannels  []string      `mapstructure:"chat_channels"`
	SignalLimit   int           `mapstructure:"signal_limit"`
	ChatLimit     int           `mapstructure:"chat_limit"`
	SignalReplay  int           `mapstructure:"signal_replay"`
	ChatReplay    int           `mapstructure:"chat_replay"`
	BotSenders    []string      `mapstructure:"bot_senders"`
}

// BinanceConfig covers USDT-M futures market data.
type BinanceConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	SecretKey   string        `mapstructure:"secret_key"`
	BaseURL     string        `mapstructure:"base_url"`
	QuoteAsset  string        `mapstructure:"quote_asset"`
	Timeout     time.Duration `mapstructure:"timeout"`
	TopN        int           `mapstructure:"top_n"`
	Concurrency int           `mapstructure:"concurrency"`
}

// DexScreenerConfig covers the price and market cap resolver.
type DexScreenerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinInterval  time.Duration `mapstructure:"min_interval"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheSize    int           `mapstructure:"cache_size"`
	UserAgent    string        `mapstructure:"user_agent"`
	RadarChains  []string      `mapstructure:"radar_chains"`
	RadarLimit   int           `mapstructure:"radar_limit"`
	RadarTimeout time.Duration `mapstructure:"radar_timeout"`
}

// LLMConfig selects the chat and embedding backends.
type LLMConfig struct {
	Provider  string          `mapstructure:"provider"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig also serves any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig for the Messages API.
type AnthropicConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int64         `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RadarConfig governs the asynchronous discovery scan.
type RadarConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Store   string        `mapstructure:"store"`
	Path    string        `mapstructure:"path"`
	Key     string        `mapstructure:"key"`
	MaxAge  time.Duration `mapstructure:"max_age"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// DeliveryConfig selects the ledger and the output channel.
type DeliveryConfig struct {
	Store     string         `mapstructure:"store"`
	Lease     time.Duration  `mapstructure:"lease"`
	Retention time.Duration  `mapstructure:"retention"`
	Prefix    string         `mapstructure:"prefix"`
	Channel   string         `mapstructure:"channel"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig exposes the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETDIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marketdigest")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)

	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.offset", "30s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6d6b6467))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("pipeline.timezone", "Asia/Shanghai")
	v.SetDefault("pipeline.budget", "240s")
	v.SetDefault("pipeline.artifact_dir", "")
	v.SetDefault("pipeline.chunk_size", 950)
	v.SetDefault("pipeline.human_max_len", 360)

	v.SetDefault("textproc.require_digit", false)
	v.SetDefault("textproc.skip_decode", false)

	v.SetDefault("telegram.base_url", "http://127.0.0.1:8000")
	v.SetDefault("telegram.timeout", "12s")
	v.SetDefault("telegram.retries", 2)
	v.SetDefault("telegram.signal_limit", 240)
	v.SetDefault("telegram.chat_limit", 260)
	v.SetDefault("telegram.signal_replay", 400)
	v.SetDefault("telegram.chat_replay", 300)

	v.SetDefault("binance.enabled", true)
	v.SetDefault("binance.quote_asset", "USDT")
	v.SetDefault("binance.timeout", "10s")
	v.SetDefault("binance.top_n", 5)
	v.SetDefault("binance.concurrency", 4)

	v.SetDefault("dexscreener.enabled", true)
	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.timeout", "8s")
	v.SetDefault("dexscreener.min_interval", "250ms")
	v.SetDefault("dexscreener.cache_ttl", "10m")
	v.SetDefault("dexscreener.cache_size", 1024)
	v.SetDefault("dexscreener.user_agent", "marketdigest/1.0")
	v.SetDefault("dexscreener.radar_chains", []string{"solana", "bsc", "base"})
	v.SetDefault("dexscreener.radar_limit", 20)
	v.SetDefault("dexscreener.radar_timeout", "60s")

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.openai.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.openai.timeout", "30s")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic.max_tokens", 1024)
	v.SetDefault("llm.anthropic.timeout", "30s")

	v.SetDefault("radar.enabled", true)
	v.SetDefault("radar.store", "file")
	v.SetDefault("radar.path", "data/radar_latest.json")
	v.SetDefault("radar.key", "marketdigest:radar:latest")
	v.SetDefault("radar.max_age", "2h")
	v.SetDefault("radar.ttl", "6h")

	v.SetDefault("delivery.store", "memory")
	v.SetDefault("delivery.lease", "10m")
	v.SetDefault("delivery.retention", "720h")
	v.SetDefault("delivery.prefix", "marketdigest:delivery")
	v.SetDefault("delivery.channel", "stdout")
	v.SetDefault("delivery.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("delivery.telegram.timeout", "10s")

	// Keys without a real default still need registering so env overrides reach Unmarshal.
	for _, key := range []string{
		"database.dsn", "redis.addr", "redis.password",
		"telegram.signal_channel", "telegram.chat_channels", "telegram.bot_senders",
		"binance.api_key", "binance.secret_key", "binance.base_url",
		"llm.openai.api_key", "llm.openai.base_url", "llm.anthropic.api_key", "llm.anthropic.base_url",
		"delivery.telegram.bot_token", "delivery.telegram.chat_id",
		"pipeline.skip", "pipeline.only", "textproc.address_lengths",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9108")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Offset < 0 || c.Scheduler.Offset >= c.Scheduler.Interval {
		return fmt.Errorf("scheduler.offset must be within [0, interval)")
	}
	if c.Pipeline.Budget <= 0 {
		return fmt.Errorf("pipeline.budget must be greater than zero")
	}
	if c.Pipeline.ChunkSize < 0 {
		return fmt.Errorf("pipeline.chunk_size cannot be negative")
	}
	if c.Delivery.Lease <= 0 {
		return fmt.Errorf("delivery.lease must be greater than zero")
	}
	for _, n := range c.TextProc.AddressLengths {
		if n < 21 || n > 49 {
			return fmt.Errorf("textproc.address_lengths 取值 %d 超出 21..49", n)
		}
	}

	switch c.Delivery.Store {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("delivery.store=postgres 需要配置 database.dsn")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("delivery.store=redis 需要配置 redis.addr")
		}
	default:
		return fmt.Errorf("unknown delivery.store %q", c.Delivery.Store)
	}

	switch c.Delivery.Channel {
	case "stdout":
	case "telegram":
		if c.Delivery.Telegram.BotToken == "" {
			return fmt.Errorf("delivery.telegram.bot_token 必须配置")
		}
		if c.Delivery.Telegram.ChatID == "" {
			return fmt.Errorf("delivery.telegram.chat_id 必须配置")
		}
	default:
		return fmt.Errorf("unknown delivery.channel %q", c.Delivery.Channel)
	}

	if c.Radar.Enabled {
		switch c.Radar.Store {
		case "", "file":
		case "redis":
			if c.Redis.Addr == "" {
				return fmt.Errorf("radar.store=redis 需要配置 redis.addr")
			}
		default:
			return fmt.Errorf("unknown radar.store %q", c.Radar.Store)
		}
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "", "none", "off", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	return nil
}

