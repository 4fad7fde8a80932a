package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest/internal/cards"
	"market-digest/internal/market"
	"market-digest/internal/signals"
	"market-digest/internal/topics"
	"market-digest/internal/window"
)

func pf(v float64) *float64 { return &v }

func testWindow(t *testing.T) window.Window {
	t.Helper()
	return window.Hourly(time.Date(2026, 3, 1, 14, 7, 0, 0, time.UTC), time.UTC)
}

func TestRenderEmptySections(t *testing.T) {
	rep := Render(Data{Window: testWindow(t)}, Options{})

	if rep.Title != "14:00 二级山寨+链上meme" {
		t.Fatalf("标题错误: %q", rep.Title)
	}
	for _, want := range []string{
		"*14:00 二级山寨+链上meme*",
		"*二级山寨（趋势观点：1H+4H）*",
		"- 无明确 OI/Price 异动信号",
		"- 无明显叙事（观点分散/多为零散聊天）",
		"*情绪*\n分歧",
		"*关注*\n- 无",
	} {
		assert.Contains(t, rep.Plain, want)
	}
	assert.Contains(t, rep.Markdown, "## 关注")
	assert.NotContains(t, rep.Markdown, "*关注*")
	require.Len(t, rep.Chunks, 1)
	assert.Equal(t, rep.Plain, rep.Chunks[0])
}

func TestRenderPlansAndWatch(t *testing.T) {
	item := signals.Item{
		Symbol:        "ORDI",
		Price:         decimal.RequireFromString("42.5"),
		PriceChange1h: pf(4.2),
		OIChange1h:    pf(12),
		Quadrant:      signals.QuadrantLongBuild,
	}
	plan := signals.Plan{
		Symbol:       "ORDI",
		Bias:         signals.BiasLong,
		Setup:        "放量突破",
		Triggers:     []string{"站稳 43", "回踩 41 不破", "第三条不显示"},
		Targets:      []string{"45.1"},
		Invalidation: "跌破 40",
		RiskNotes:    []string{"高波动", "第二条不显示"},
	}
	rep := Render(Data{
		Window:    testWindow(t),
		Items:     []signals.Item{item},
		Plans:     []signals.Plan{plan},
		Topics:    []topics.Card{{Summary: "ORDI 铭文叙事回暖", Sentiment: "偏多", Triggers: []string{"铭文"}, RelatedAssets: []string{"ORDI", "SATS"}, Inferred: true}},
		Sentiment: "偏多",
		Watch:     []string{"ORDI", "SATS", "PEPE", "WIF"},
	}, Options{})

	assert.Contains(t, rep.Plain, "*二级山寨Top3（趋势+计划）*")
	assert.Contains(t, rep.Plain, "1) ORDI（偏多）现状：$42.5 1h+4.2% | OI 1h+12.0%")
	assert.Contains(t, rep.Plain, "   - 计划：结构:放量突破 | 触发:站稳 43；回踩 41 不破 | 目标:45.1 | 无效:跌破 40")
	assert.Contains(t, rep.Plain, "   - 风险：高波动")
	assert.NotContains(t, rep.Plain, "第三条不显示")
	assert.NotContains(t, rep.Plain, "第二条不显示")
	assert.Contains(t, rep.Plain, "1) ORDI 铭文叙事回暖（偏多） | 关联（推断）: ORDI, SATS")
	assert.Contains(t, rep.Plain, "   - 触发：铭文")
	assert.Contains(t, rep.Plain, "*关注*\n- ORDI\n- SATS\n- PEPE\n")
	assert.NotContains(t, rep.Plain, "- WIF")
}

func TestRenderOmitsUnresolvedCaps(t *testing.T) {
	mc := decimal.NewFromInt(12_300_000)
	rep := Render(Data{
		Window: testWindow(t),
		Items: []signals.Item{
			{Symbol: "AAA", PriceChange1h: pf(1), MarketCap: &mc},
			{Symbol: "BBB", PriceChange1h: pf(2)},
		},
		Cards: []cards.SocialCard{{
			Source:    cards.SourceChat,
			Subject:   market.Subject{Symbol: "BONK", Type: market.SymbolCEX},
			Sentiment: "分歧",
			OneLiner:  "买:解锁 | 不买:抛压",
		}},
	}, Options{})

	assert.Contains(t, rep.Plain, "- AAA 1h+1.0% | 市值$12.3M")
	assert.Contains(t, rep.Plain, "- BBB 1h+2.0%\n")
	assert.Contains(t, rep.Plain, "1) BONK（分歧）买:解锁 | 不买:抛压")
	for _, bad := range []string{"FDV$", "N/A", "nil", "<nil>", "$0"} {
		if strings.Contains(rep.Plain, bad) {
			t.Fatalf("出现占位符 %q:\n%s", bad, rep.Plain)
		}
	}
}

func TestChunkLossless(t *testing.T) {
	var b strings.Builder
	b.WriteString("*标题*\n")
	for i := 0; i < 40; i++ {
		b.WriteString("\n*段落*\n")
		b.WriteString(strings.Repeat("行内容 abc ", 12))
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("x", 300))
	text := b.String()

	chunks := Chunk(text, 120)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 120 {
			t.Fatalf("第 %d 段超长: %d", i, n)
		}
	}
}

func TestChunkPrefersSections(t *testing.T) {
	a := "*一*\n" + strings.Repeat("a", 20) + "\n\n"
	b := "*二*\n" + strings.Repeat("b", 20) + "\n"
	chunks := Chunk(a+b, 30)
	require.Len(t, chunks, 2)
	assert.Equal(t, a, chunks[0])
	assert.Equal(t, b, chunks[1])
}

func TestChunkEmpty(t *testing.T) {
	assert.Nil(t, Chunk("", 10))
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("2026-03-01 14:00", "hello")
	h2 := ContentHash("2026-03-01 14:00", "hello")
	h3 := ContentHash("2026-03-01 15:00", "hello")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestWriteSignalArtifacts(t *testing.T) {
	dir := t.TempDir()
	items := []signals.Item{
		{Symbol: "ORDI", OIChange1h: pf(12.5), PriceChange1h: pf(-1.25)},
		{Symbol: "WIF", OIChange1h: pf(-3)},
		{Symbol: "NOOI"},
	}

	csvPath := filepath.Join(dir, "nested", "signals.csv")
	require.NoError(t, WriteSignalCSV(csvPath, items))
	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ORDI,0,-1.25,,,12.5,,,,0.000")

	pngPath := filepath.Join(dir, "signals.png")
	require.NoError(t, WriteSignalChart(pngPath, "OI 1h", items))
	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.ErrorIs(t, WriteSignalChart(pngPath, "OI 1h", items[2:]), ErrNothingToChart)
}
