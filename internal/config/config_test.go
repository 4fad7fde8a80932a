package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest/internal/textproc"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 240*time.Second, cfg.Pipeline.Budget)
	assert.Equal(t, "Asia/Shanghai", cfg.Pipeline.Timezone)
	assert.Equal(t, 950, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 10*time.Minute, cfg.Delivery.Lease)
	assert.Equal(t, "memory", cfg.Delivery.Store)
	assert.Equal(t, 400, cfg.Telegram.SignalReplay)
	assert.Equal(t, []string{"solana", "bsc", "base"}, cfg.DexScreener.RadarChains)
	assert.Empty(t, cfg.Telegram.ChatChannels)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
telegram:
  signal_channel: "-100123"
  chat_channels: ["-100456", "-100789"]
delivery:
  channel: telegram
  telegram:
    chat_id: "-100999"
pipeline:
  skip: radar_join,social_cards
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("MARKETDIGEST_DELIVERY_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("MARKETDIGEST_PIPELINE_BUDGET", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "-100123", cfg.Telegram.SignalChannel)
	assert.Equal(t, []string{"-100456", "-100789"}, cfg.Telegram.ChatChannels)
	assert.Equal(t, "123:abc", cfg.Delivery.Telegram.BotToken, "环境变量应覆盖配置")
	assert.Equal(t, 90*time.Second, cfg.Pipeline.Budget)
	assert.Equal(t, []string{"radar_join", "social_cards"}, cfg.Pipeline.Skip)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Scheduler: SchedulerConfig{Interval: time.Hour, Offset: 30 * time.Second},
			Pipeline:  PipelineConfig{Budget: time.Minute},
			Delivery:  DeliveryConfig{Store: "memory", Channel: "stdout", Lease: time.Minute},
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"offset beyond interval": func(c *Config) { c.Scheduler.Offset = 2 * time.Hour },
		"zero budget":            func(c *Config) { c.Pipeline.Budget = 0 },
		"postgres without dsn":   func(c *Config) { c.Delivery.Store = "postgres" },
		"redis without addr":     func(c *Config) { c.Delivery.Store = "redis" },
		"telegram without token": func(c *Config) { c.Delivery.Channel = "telegram" },
		"unknown provider":       func(c *Config) { c.LLM.Provider = "gemini" },
		"radar redis no addr":    func(c *Config) { c.Radar.Enabled = true; c.Radar.Store = "redis" },
		"address length 60":      func(c *Config) { c.TextProc.AddressLengths = []int{32, 60} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestAddressRulesFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	const run40 = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJos"
	const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, textproc.SolanaAddresses(run40, cfg.TextProc.AddressRules()), "默认规则要求能解码为 32 字节公钥")

	t.Setenv("MARKETDIGEST_TEXTPROC_SKIP_DECODE", "true")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{run40}, textproc.SolanaAddresses(run40, cfg.TextProc.AddressRules()))

	t.Setenv("MARKETDIGEST_TEXTPROC_ADDRESS_LENGTHS", "32,44")
	t.Setenv("MARKETDIGEST_TEXTPROC_REQUIRE_DIGIT", "true")
	cfg, err = Load("")
	require.NoError(t, err)
	rules := cfg.TextProc.AddressRules()
	assert.Equal(t, []int{32, 44}, rules.Lengths)
	assert.True(t, rules.RequireDigit)
	assert.Empty(t, textproc.SolanaAddresses(run40, rules), "40 位不在 {32,44} 中")
	assert.Equal(t, []string{usdcMint}, textproc.SolanaAddresses(usdcMint, rules))
}

// chdir mirrors testing.T.Chdir (go1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
