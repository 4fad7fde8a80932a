// Package render turns pipeline outputs into the hourly report text.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"market-digest/internal/cards"
	"market-digest/internal/market"
	"market-digest/internal/signals"
	"market-digest/internal/topics"
	"market-digest/internal/window"
)

// Flavour selects heading and emphasis syntax.
type Flavour int

const (
	// Plain is the chat flavour: *bold* headings, no markdown.
	Plain Flavour = iota
	Markdown
)

// Data is everything a report shows.
type Data struct {
	Window    window.Window
	Items     []signals.Item
	Plans     []signals.Plan
	Topics    []topics.Card
	Cards     []cards.SocialCard
	Sentiment string
	Watch     []string
}

// Options tune display caps. Zero values take defaults.
type Options struct {
	ChunkSize int
	TopItems  int
	TopTopics int
	TopCards  int
	TopWatch  int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.TopItems <= 0 {
		o.TopItems = 3
	}
	if o.TopTopics <= 0 {
		o.TopTopics = 3
	}
	if o.TopCards <= 0 {
		o.TopCards = 3
	}
	if o.TopWatch <= 0 {
		o.TopWatch = 3
	}
	return o
}

// Report is the rendered output of one window.
type Report struct {
	WindowKey string
	Title     string
	Plain     string
	Markdown  string
	Chunks    []string
	Hash      string
}

// Render builds both flavours, chunks the plain text and hashes it.
func Render(d Data, opts Options) Report {
	opts = opts.withDefaults()
	title := Title(d.Window.End)
	plain := build(d, title, Plain, opts)
	return Report{
		WindowKey: d.Window.Key,
		Title:     title,
		Plain:     plain,
		Markdown:  build(d, title, Markdown, opts),
		Chunks:    Chunk(plain, opts.ChunkSize),
		Hash:      ContentHash(d.Window.Key, plain),
	}
}

// Title is "HH:00 二级山寨+链上meme" for the window end hour.
func Title(end time.Time) string {
	return end.Format("15") + ":00 二级山寨+链上meme"
}

type writer struct {
	lines   []string
	flavour Flavour
}

func (w *writer) heading(s string) {
	if w.flavour == Markdown {
		w.lines = append(w.lines, "", "## "+s)
		return
	}
	w.lines = append(w.lines, "", "*"+s+"*")
}

func (w *writer) line(format string, args ...any) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func build(d Data, title string, f Flavour, opts Options) string {
	w := &writer{flavour: f}
	if f == Markdown {
		w.line("# %s", title)
	} else {
		w.line("*%s*", title)
	}

	writeSignals(w, d, opts)
	writeTopics(w, d.Topics, opts.TopTopics)
	writeCards(w, cards.Top(d.Cards, opts.TopCards))

	w.heading("情绪")
	sentiment := d.Sentiment
	if sentiment == "" {
		sentiment = "分歧"
	}
	w.line("%s", sentiment)

	w.heading("关注")
	watch := d.Watch
	if len(watch) > opts.TopWatch {
		watch = watch[:opts.TopWatch]
	}
	if len(watch) == 0 {
		w.line("- 无")
	}
	for _, s := range watch {
		w.line("- %s", s)
	}
	return strings.Join(w.lines, "\n") + "\n"
}

func writeSignals(w *writer, d Data, opts Options) {
	items := signals.Top(d.Items, opts.TopItems)
	if len(d.Plans) == 0 {
		w.heading("二级山寨（趋势观点：1H+4H）")
		if len(items) == 0 {
			w.line("- 无明确 OI/Price 异动信号")
		}
		for _, it := range items {
			w.line("- %s", TrendLine(it))
		}
		return
	}

	w.heading("二级山寨Top3（趋势+计划）")
	bySym := make(map[string]signals.Item, len(items))
	for _, it := range d.Items {
		bySym[strings.ToUpper(it.Symbol)] = it
	}
	for i, p := range d.Plans {
		if i >= opts.TopItems {
			break
		}
		sym := strings.ToUpper(p.Symbol)
		bias := p.Bias
		if bias == "" {
			bias = signals.BiasWait
		}
		if it, ok := bySym[sym]; ok {
			w.line("%d) %s（%s）现状：%s", i+1, sym, bias, strings.TrimPrefix(TrendLine(it), it.Symbol+" "))
		} else {
			w.line("%d) %s（%s）", i+1, sym, bias)
		}
		var parts []string
		if p.Setup != "" {
			parts = append(parts, "结构:"+p.Setup)
		}
		if len(p.Triggers) > 0 {
			parts = append(parts, "触发:"+strings.Join(first(p.Triggers, 2), "；"))
		}
		if len(p.Targets) > 0 {
			parts = append(parts, "目标:"+strings.Join(first(p.Targets, 2), "；"))
		}
		if p.Invalidation != "" {
			parts = append(parts, "无效:"+p.Invalidation)
		}
		if len(parts) > 0 {
			w.line("   - 计划：%s", strings.Join(parts, " | "))
		}
		if len(p.RiskNotes) > 0 {
			w.line("   - 风险：%s", p.RiskNotes[0])
		}
	}
}

// TrendLine is the one-line state of a signal item. Unresolved fields are left out.
func TrendLine(it signals.Item) string {
	parts := []string{it.Symbol}
	if !it.Price.IsZero() {
		parts = append(parts, "$"+it.Price.String())
	}
	if chg := changes("", it.PriceChange1h, it.PriceChange4h, it.PriceChange24h); chg != "" {
		parts = append(parts, chg)
	}
	if chg := changes("OI ", it.OIChange1h, it.OIChange4h, it.OIChange24h); chg != "" {
		parts = append(parts, "|", chg)
	}
	if !it.OINotional.IsZero() {
		parts = append(parts, "持仓$"+market.Compact(it.OINotional))
	}
	if s := capLine(it.MarketCap, it.FDV); s != "" {
		parts = append(parts, "|", s)
	}
	if it.Quadrant != "" {
		parts = append(parts, "|", it.Quadrant)
	}
	return strings.Join(parts, " ")
}

func changes(prefix string, h1, h4, h24 *float64) string {
	var parts []string
	for _, c := range []struct {
		label string
		v     *float64
	}{{"1h", h1}, {"4h", h4}, {"24h", h24}} {
		if c.v != nil {
			parts = append(parts, fmt.Sprintf("%s%+.1f%%", c.label, *c.v))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return prefix + strings.Join(parts, " ")
}

// capLine renders market cap and FDV only when resolved.
func capLine(mc, fdv *decimal.Decimal) string {
	var parts []string
	if mc != nil {
		parts = append(parts, "市值$"+market.Compact(*mc))
	}
	if fdv != nil {
		parts = append(parts, "FDV$"+market.Compact(*fdv))
	}
	return strings.Join(parts, " ")
}

func writeTopics(w *writer, cs []topics.Card, n int) {
	w.heading("Telegram热点Top3（提炼）")
	if len(cs) == 0 {
		w.line("- 无明显叙事（观点分散/多为零散聊天）")
		return
	}
	for i, c := range first(cs, n) {
		rel := ""
		if len(c.RelatedAssets) > 0 {
			prefix := ""
			if c.Inferred {
				prefix = "（推断）"
			}
			rel = " | 关联" + prefix + ": " + strings.Join(c.RelatedAssets, ", ")
		}
		w.line("%d) %s（%s）%s", i+1, c.Summary, c.Sentiment, rel)
		if len(c.Triggers) > 0 {
			w.line("   - 触发：%s", strings.Join(c.Triggers, "、"))
		}
	}
}

func writeCards(w *writer, cs []cards.SocialCard) {
	w.heading("社交热点Top3（TG+Twitter+链上）")
	if len(cs) == 0 {
		w.line("- 无")
		return
	}
	for i, c := range cs {
		label := c.Subject.Symbol
		if label == "" {
			label = c.Subject.Address
		}
		if c.Subject.Chain != "" {
			label += "(" + c.Subject.Chain + ")"
		}
		w.line("%d) %s（%s）%s", i+1, label, c.Sentiment, c.OneLiner)
		var nums []string
		if c.Price != nil {
			nums = append(nums, "价格$"+c.Price.String())
		}
		if s := capLine(c.MarketCap, c.FDV); s != "" {
			nums = append(nums, s)
		}
		if len(nums) > 0 {
			w.line("   - %s", strings.Join(nums, " "))
		}
		if len(c.Signals) > 0 {
			w.line("   - 信号：%s", strings.Join(c.Signals, "；"))
		}
		if len(c.Drivers) > 0 {
			w.line("   - 驱动：%s", strings.Join(c.Drivers, "；"))
		}
		if c.Risk != "" {
			w.line("   - 风险：%s", c.Risk)
		}
		for _, e := range c.Evidence {
			w.line("   - 「%s」", e)
		}
	}
}

func first[T any](in []T, n int) []T {
	if len(in) > n {
		return in[:n]
	}
	return in
}
