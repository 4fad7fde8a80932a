package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest/internal/cards"
	"market-digest/internal/delivery"
	"market-digest/internal/market"
	"market-digest/internal/pipeline"
	"market-digest/internal/radar"
	"market-digest/internal/storage"
	"market-digest/internal/textsource"
	"market-digest/internal/window"
)

const (
	signalChannel = "-1001"
	chatChannel   = "-1002"
)

var cst = time.FixedZone("CST", 8*3600)

type fakeSource struct {
	mu        sync.Mutex
	messages  map[string][]textsource.Message
	needsPlay map[string]bool
	replays   []string
	healthy   bool
}

func (f *fakeSource) Fetch(_ context.Context, channel string, _, _ time.Time, _ int) ([]textsource.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.needsPlay[channel] {
		return nil, nil
	}
	return f.messages[channel], nil
}

func (f *fakeSource) Replay(_ context.Context, channel string, _, _ time.Time, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replays = append(f.replays, channel)
	delete(f.needsPlay, channel)
	return nil
}

func (f *fakeSource) Healthy(context.Context) bool { return f.healthy }

func newSource() *fakeSource {
	msg := func(ch, sender, text string) textsource.Message {
		return textsource.Message{ChannelID: ch, SenderID: sender, Text: text, Date: time.Date(2026, 3, 1, 9, 30, 0, 0, cst)}
	}
	return &fakeSource{
		healthy: true,
		messages: map[string][]textsource.Message{
			signalChannel: {
				msg(signalChannel, "bot", "🚨 WIF 合约 OI +18.5% 1h +4.2% 24h +12%"),
				msg(signalChannel, "bot", "ORDI OI -6% 1小时 -2.1%"),
			},
			chatChannel: {
				msg(chatChannel, "u1", "WIF 突破前高，资金在追，感觉还能冲一波"),
				msg(chatChannel, "u2", "WIF 放量上涨，合约持仓也在涨，偏多看待"),
				msg(chatChannel, "u3", "ORDI 继续阴跌，减仓了"),
			},
		},
		needsPlay: map[string]bool{},
	}
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []string
}

func (c *recordingChannel) Send(_ context.Context, chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, chunk)
	return nil
}

type brokenStore struct{}

func (brokenStore) Reserve(context.Context, delivery.Key) (delivery.Reservation, error) {
	return delivery.Reservation{}, errors.New("connection refused")
}
func (brokenStore) Commit(context.Context, delivery.Key, int) error { return nil }
func (brokenStore) Release(context.Context, delivery.Key) error     { return nil }

type heldLocker struct{}

func (heldLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	return nil, false, nil
}

type memoryArchive struct {
	runs []storage.RunRecord
}

func (a *memoryArchive) InsertRun(_ context.Context, run storage.RunRecord) error {
	a.runs = append(a.runs, run)
	return nil
}

func (a *memoryArchive) ListRecentRuns(_ context.Context, limit int) ([]storage.RunRecord, error) {
	return a.runs, nil
}

func options() pipeline.Options {
	return pipeline.Options{
		Budget:        time.Minute,
		Location:      cst,
		SignalChannel: signalChannel,
		ChatChannels:  []string{chatChannel},
		BotSenders:    []string{"bot"},
	}
}

func runAt() time.Time { return time.Date(2026, 3, 1, 10, 0, 30, 0, cst) }

func TestRunWindowDeliversOnce(t *testing.T) {
	ctx := context.Background()
	ch := &recordingChannel{}
	archive := &memoryArchive{}
	deps := pipeline.Deps{
		Text:      newSource(),
		Deliverer: delivery.NewDeliverer(storage.NewMemoryStore(time.Minute), ch, zerolog.Nop()),
		Archive:   archive,
	}
	p := pipeline.New(deps, options(), zerolog.Nop())

	first, err := p.RunWindow(ctx, runAt())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01 10:00", first.Window.Key)
	require.NotEmpty(t, first.Items, "应解析出 OI 信号")
	assert.Contains(t, first.Report.Plain, "WIF")
	assert.Contains(t, first.Report.Plain, "10:00 二级山寨+链上meme")
	assert.NotEmpty(t, first.Report.Hash)
	assert.False(t, first.Delivery.Skipped)
	sent := len(ch.sent)
	require.Positive(t, sent)

	second, err := p.RunWindow(ctx, runAt().Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.Report.Hash, second.Report.Hash, "同一窗口同样输入应得到同一内容哈希")
	if !second.Delivery.Skipped {
		t.Fatal("重复运行同一窗口不应再次投递")
	}
	assert.Len(t, ch.sent, sent)

	require.Len(t, archive.runs, 2)
	assert.True(t, archive.runs[0].Delivered)
	assert.True(t, archive.runs[1].Skipped)
	assert.NotEmpty(t, archive.runs[0].Diagnostics)
}

func TestRunWindowReplaysEmptyChannel(t *testing.T) {
	src := newSource()
	src.needsPlay[signalChannel] = true
	p := pipeline.New(pipeline.Deps{Text: src}, options(), zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)
	assert.Equal(t, []string{signalChannel}, src.replays)
	assert.Len(t, pc.SignalMessages, 2)
	assert.Contains(t, pc.Errors, "deliver_skipped:no_channel")
}

func TestRunWindowUnhealthySourceIsDiagnostic(t *testing.T) {
	src := newSource()
	src.healthy = false
	p := pipeline.New(pipeline.Deps{Text: src}, options(), zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)
	assert.Contains(t, pc.Errors, "tg_unhealthy")
	assert.NotEmpty(t, pc.Report.Plain, "健康检查失败不应阻止出报告")
}

func TestRunWindowStoreUnavailableIsFatal(t *testing.T) {
	opts := options()
	opts.ArtifactDir = t.TempDir()
	deps := pipeline.Deps{
		Text:      newSource(),
		Deliverer: delivery.NewDeliverer(brokenStore{}, &recordingChannel{}, zerolog.Nop()),
	}
	p := pipeline.New(deps, opts, zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.Error(t, err)
	assert.True(t, errors.Is(err, delivery.ErrStoreUnavailable))
	var fatal *pipeline.FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, pipeline.StepDeliver, fatal.Step)
	_, ran := pc.Perf["step_"+pipeline.StepArtifacts]
	assert.False(t, ran, "致命错误后不应继续执行后续步骤")
}

func TestRunWindowLockHeld(t *testing.T) {
	opts := options()
	opts.LockBase = 42
	ch := &recordingChannel{}
	deps := pipeline.Deps{
		Text:      newSource(),
		Locker:    heldLocker{},
		Deliverer: delivery.NewDeliverer(storage.NewMemoryStore(time.Minute), ch, zerolog.Nop()),
	}
	p := pipeline.New(deps, opts, zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)
	assert.Equal(t, []string{"window_locked"}, pc.Errors)
	assert.Empty(t, ch.sent)
}

func TestRunWindowOnlyRender(t *testing.T) {
	opts := options()
	opts.Only = []string{pipeline.StepRender}
	p := pipeline.New(pipeline.Deps{Text: newSource()}, opts, zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)
	assert.Contains(t, pc.Errors, "step_skipped:"+pipeline.StepTGFetch)
	assert.Contains(t, pc.Report.Plain, "无明确 OI/Price 异动信号")
	assert.Contains(t, pc.Report.Plain, "分歧")
}

func TestRunWindowWritesArtifacts(t *testing.T) {
	opts := options()
	opts.ArtifactDir = t.TempDir()
	p := pipeline.New(pipeline.Deps{Text: newSource()}, opts, zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)

	dir := pipeline.ArtifactPath(opts.ArtifactDir, pc.Window.Key)
	assert.Equal(t, filepath.Join(opts.ArtifactDir, "2026-03-01_10-00"), dir)
	for _, name := range []string{"report.txt", "report.md", "diagnostics.json", "signals.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "缺少产物 %s", name)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "# "))
}

func TestNewContextValidates(t *testing.T) {
	_, err := pipeline.NewContext(runAt(), nil, time.Minute, nil)
	assert.Error(t, err)
	_, err = pipeline.NewContext(runAt(), cst, 0, nil)
	assert.Error(t, err)

	pc, err := pipeline.NewContext(runAt(), cst, time.Minute, nil)
	require.NoError(t, err)
	pc.Diag("", "x")
	pc.LLMFailure("")
	assert.Equal(t, []string{"x"}, pc.Errors)
	assert.Empty(t, pc.LLMFailures)

	raw, err := pc.DiagnosticsJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"window_key": "2026-03-01 10:00"`)
}

type countingResolver struct {
	mu       sync.Mutex
	subjects []market.Subject
}

func (r *countingResolver) Resolve(_ context.Context, s market.Subject) (market.Metrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, s)
	return market.Metrics{}, nil
}

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func sourceWithAddress() *fakeSource {
	src := newSource()
	src.messages[chatChannel] = append(src.messages[chatChannel], textsource.Message{
		ChannelID: chatChannel, SenderID: "u4", Text: "BONK 合约 " + bonkMint + " 冲",
		Date: time.Date(2026, 3, 1, 9, 40, 0, 0, cst),
	})
	return src
}

func TestRunWindowSpentBudgetSkipsNetworkStages(t *testing.T) {
	opts := options()
	opts.Budget = time.Millisecond
	resolver := &countingResolver{}
	p := pipeline.New(pipeline.Deps{Text: sourceWithAddress(), Resolver: resolver}, opts, zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)
	assert.Contains(t, pc.Errors, "radar_merge_skipped:budget")
	assert.Empty(t, resolver.subjects, "预算耗尽后不应再发起任何解析请求")
	assert.NotEmpty(t, pc.Report.Plain)
}

func TestRunWindowMergesChatAddressesWithinBudget(t *testing.T) {
	resolver := &countingResolver{}
	p := pipeline.New(pipeline.Deps{Text: sourceWithAddress(), Resolver: resolver}, options(), zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)
	assert.NotContains(t, pc.Errors, "radar_merge_skipped:budget")
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	assert.Contains(t, resolver.subjects, market.Subject{Address: bonkMint, Type: market.SymbolOnchain})
}

type staticScanner struct{ out radar.Output }

func (s staticScanner) Scan(_ context.Context, w window.Window) (radar.Output, error) {
	out := s.out
	out.WindowKey = w.Key
	return out, nil
}

func TestRunWindowBuildsSocialTopicsFromRadar(t *testing.T) {
	scanner := staticScanner{out: radar.Output{Items: []radar.Candidate{{
		Address: bonkMint, Chain: "solana", Symbol: "BONK", Source: "dex_boost",
		Social: []string{"BONK 本周空投第二期开启，社区在刷推"},
	}}}}
	runner := radar.NewRunner(scanner, radar.FileStore{Path: filepath.Join(t.TempDir(), "radar.json")}, radar.RunnerOptions{}, zerolog.Nop())
	p := pipeline.New(pipeline.Deps{Text: newSource(), Radar: runner}, options(), zerolog.Nop())

	pc, err := p.RunWindow(context.Background(), runAt())
	require.NoError(t, err)
	assert.Contains(t, pc.Errors, "social_topics_skipped:no_llm")
	require.Len(t, pc.Radar.Social, 1)
	assert.Equal(t, "BONK 社交讨论聚焦空投", pc.Radar.Social[0].OneLiner)
	assert.Equal(t, 1, pc.CardCounts[cards.SourceSocial])

	var social *cards.SocialCard
	for i := range pc.Cards {
		if pc.Cards[i].Source == cards.SourceSocial {
			social = &pc.Cards[i]
		}
	}
	require.NotNil(t, social, "社交话题应进入卡片")
	assert.Equal(t, bonkMint, social.Subject.Address)
}
