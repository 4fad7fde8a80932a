package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"market-digest/internal/config"
	"market-digest/internal/delivery"
	"market-digest/internal/llm"
	"market-digest/internal/market"
	"market-digest/internal/metrics"
	"market-digest/internal/pipeline"
	"market-digest/internal/radar"
	"market-digest/internal/render"
	"market-digest/internal/scheduler"
	"market-digest/internal/signals"
	"market-digest/internal/storage"
	"market-digest/internal/textsource"
	"market-digest/internal/version"
	"market-digest/internal/window"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// resources are the long-lived clients one command needs; close releases them.
type resources struct {
	pg      *storage.Store
	redis   goredis.UniversalClient
	closers []func()
}

func (r *resources) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, a.Config.Delivery.Lease)
	if a.Config.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openRedis(ctx context.Context) (goredis.UniversalClient, error) {
	if a.Config.Redis.Addr == "" {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (a *App) openResources(ctx context.Context) (*resources, error) {
	res := &resources{}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		res.pg = store
		res.closers = append(res.closers, closeStore)
	}

	client, err := a.openRedis(ctx)
	if err != nil {
		res.close()
		return nil, err
	}
	if client != nil {
		res.redis = client
		res.closers = append(res.closers, func() { _ = client.Close() })
	}
	return res, nil
}

func (a *App) deliveryStore(res *resources) (delivery.Store, error) {
	cfg := a.Config.Delivery
	switch cfg.Store {
	case "postgres":
		if res.pg == nil {
			return nil, storage.ErrNotConfigured
		}
		return res.pg, nil
	case "redis":
		if res.redis == nil {
			return nil, storage.ErrNotConfigured
		}
		return storage.NewRedisStore(res.redis, storage.RedisOptions{
			Prefix:    cfg.Prefix,
			Lease:     cfg.Lease,
			Retention: cfg.Retention,
		}), nil
	default:
		a.Logger.Warn().Msg("delivery.store=memory; dedup does not survive restarts")
		return storage.NewMemoryStore(cfg.Lease), nil
	}
}

func (a *App) newChannel() delivery.Channel {
	if a.Config.Delivery.Channel == "telegram" {
		cfg := a.Config.Delivery.Telegram
		return delivery.NewTelegramChannel(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return delivery.NewWriterChannel(os.Stdout)
}

func (a *App) newRadar(res *resources, resolver radar.Resolver) *radar.Runner {
	cfg := a.Config.Radar
	if !cfg.Enabled {
		return nil
	}
	var store radar.Store
	switch {
	case cfg.Store == "redis" && res.redis != nil:
		store = radar.NewRedisStore(res.redis, cfg.Key, cfg.TTL)
	case cfg.Path != "":
		store = radar.FileStore{Path: cfg.Path}
	}

	var scanner radar.Scanner
	if a.Config.DexScreener.Enabled {
		dex := a.Config.DexScreener
		scanner = radar.NewBoostScanner(radar.BoostScannerOptions{
			BaseURL: dex.BaseURL,
			Chains:  dex.RadarChains,
			Limit:   dex.RadarLimit,
			Timeout: dex.RadarTimeout,
		}, resolver, a.Logger)
	}
	return radar.NewRunner(scanner, store, radar.RunnerOptions{MaxAge: cfg.MaxAge}, a.Logger)
}

func (a *App) llmOptions() llm.Options {
	cfg := a.Config.LLM
	return llm.Options{
		Provider: cfg.Provider,
		OpenAI: llm.OpenAIOptions{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			ChatModel:      cfg.OpenAI.ChatModel,
			EmbeddingModel: cfg.OpenAI.EmbeddingModel,
			Timeout:        cfg.OpenAI.Timeout,
		},
		Anthropic: llm.AnthropicOptions{
			APIKey:    cfg.Anthropic.APIKey,
			BaseURL:   cfg.Anthropic.BaseURL,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			Timeout:   cfg.Anthropic.Timeout,
		},
	}
}

// buildOptions tweak a pipeline for one command.
type buildOptions struct {
	only        []string
	noDelivery  bool
	noRadar     bool
	artifactDir string
}

// newPipeline wires every collaborator from config.
func (a *App) newPipeline(res *resources, m *metrics.Metrics, bo buildOptions) (*pipeline.Pipeline, error) {
	cfg := a.Config
	loc, err := window.LoadZone(cfg.Pipeline.Timezone)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{Metrics: m}

	deps.Text = textsource.New(textsource.Options{
		BaseURL: cfg.Telegram.BaseURL,
		Timeout: cfg.Telegram.Timeout,
		Retries: cfg.Telegram.Retries,
	}, a.Logger)

	if cfg.Binance.Enabled {
		deps.Market = market.NewBinance(market.BinanceOptions{
			APIKey:     cfg.Binance.APIKey,
			SecretKey:  cfg.Binance.SecretKey,
			BaseURL:    cfg.Binance.BaseURL,
			QuoteAsset: cfg.Binance.QuoteAsset,
			Timeout:    cfg.Binance.Timeout,
		}, a.Logger)
	}

	var dex *market.DexScreener
	if cfg.DexScreener.Enabled {
		dex = market.NewDexScreener(market.DexScreenerOptions{
			BaseURL:     cfg.DexScreener.BaseURL,
			Timeout:     cfg.DexScreener.Timeout,
			MinInterval: cfg.DexScreener.MinInterval,
			CacheTTL:    cfg.DexScreener.CacheTTL,
			CacheSize:   cfg.DexScreener.CacheSize,
			UserAgent:   cfg.DexScreener.UserAgent,
		}, a.Logger)
		deps.Resolver = dex
	}

	completer, err := llm.NewCompleter(a.llmOptions())
	if err != nil {
		return nil, err
	}
	deps.Completer = completer
	deps.Embedder = llm.NewEmbedder(a.llmOptions())

	switch {
	case bo.noRadar:
	case dex != nil:
		deps.Radar = a.newRadar(res, dex)
	default:
		deps.Radar = a.newRadar(res, nil)
	}

	if !bo.noDelivery {
		store, err := a.deliveryStore(res)
		if err != nil {
			return nil, fmt.Errorf("delivery store %q: %w", cfg.Delivery.Store, err)
		}
		deps.Deliverer = delivery.NewDeliverer(store, a.newChannel(), a.Logger)
	}

	lockBase := cfg.Scheduler.AdvisoryLockKey
	switch {
	case res.pg == nil:
		lockBase = 0
	case bo.noDelivery:
		deps.Locker = res.pg
	default:
		deps.Archive = res.pg
		deps.Locker = res.pg
	}

	artifactDir := cfg.Pipeline.ArtifactDir
	if bo.artifactDir != "" {
		artifactDir = bo.artifactDir
	}
	only := cfg.Pipeline.Only
	if len(bo.only) > 0 {
		only = bo.only
	}

	opts := pipeline.Options{
		Budget:        cfg.Pipeline.Budget,
		Location:      loc,
		ChatChannels:  cfg.Telegram.ChatChannels,
		SignalChannel: cfg.Telegram.SignalChannel,
		ChatLimit:     cfg.Telegram.ChatLimit,
		SignalLimit:   cfg.Telegram.SignalLimit,
		ReplayLimit:   cfg.Telegram.ChatReplay,
		SignalReplay:  cfg.Telegram.SignalReplay,
		HumanMaxLen:   cfg.Pipeline.HumanMaxLen,
		BotSenders:    cfg.Telegram.BotSenders,
		Skip:          cfg.Pipeline.Skip,
		Only:          only,
		ArtifactDir:   artifactDir,
		LockBase:      lockBase,
		AddressRules:  cfg.TextProc.AddressRules(),
		Enrich: signals.EnrichOptions{
			TopN:        cfg.Binance.TopN,
			Concurrency: cfg.Binance.Concurrency,
		},
		Render: render.Options{ChunkSize: cfg.Pipeline.ChunkSize},
	}
	return pipeline.New(deps, opts, a.Logger), nil
}

// Run executes the long-running hourly digest service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := a.openResources(ctx)
	if err != nil {
		return err
	}
	defer res.close()
	if res.pg == nil {
		a.Logger.Warn().Msg("database.dsn not configured; run archive and window lock disabled")
	}

	m := metrics.New(version.Version, version.Commit)
	if a.Config.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, a.Config.Metrics.Addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	p, err := a.newPipeline(res, m, buildOptions{})
	if err != nil {
		return err
	}

	loc, err := window.LoadZone(a.Config.Pipeline.Timezone)
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Offset:       a.Config.Scheduler.Offset,
		Location:     loc,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Str("version", version.Version).Msg("starting digest service")
	err = sched.Run(ctx, func(ctx context.Context, boundary time.Time) error {
		_, err := p.RunWindow(ctx, boundary)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("digest service stopped")
	return nil
}

// OnceOptions configure a single window run.
type OnceOptions struct {
	At          time.Time
	Only        []string
	DryRun      bool
	ArtifactDir string
}

// Once runs the window containing opts.At and prints its diagnostics.
func (a *App) Once(ctx context.Context, opts OnceOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := a.openResources(ctx)
	if err != nil {
		return err
	}
	defer res.close()

	p, err := a.newPipeline(res, nil, buildOptions{
		only:        opts.Only,
		noDelivery:  opts.DryRun,
		artifactDir: opts.ArtifactDir,
	})
	if err != nil {
		return err
	}

	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	pc, runErr := p.RunWindow(ctx, at)
	if pc == nil {
		return runErr
	}
	if opts.DryRun {
		fmt.Fprintln(os.Stdout, pc.Report.Plain)
	}
	raw, err := pc.DiagnosticsJSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, string(raw))
	return runErr
}

// ExportOptions hold parameters for exporting the signal table of one window.
type ExportOptions struct {
	At      time.Time
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Runs  bool
}
