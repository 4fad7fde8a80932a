package topics

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"market-digest/internal/textproc"
)

var (
	latinWordRE = regexp.MustCompile(`[a-z][a-z0-9_\-]{2,}`)
	hanRunRE    = regexp.MustCompile(`\p{Han}{2,}`)
)

var stopwords = toSet(
	"大家", "市场", "项目", "代币", "价格", "走势", "交易", "关注", "消息", "今天", "现在",
	"小时", "社区", "感觉", "可能", "这个", "那个", "还是", "已经", "继续", "没有", "就是",
	"出来", "因为", "而且", "应该", "需要", "看到", "一些", "有人", "用户", "群友", "拉盘",
	"出货", "交易所", "资金", "上涨", "下跌", "回调", "新高", "新低", "趋势", "情绪", "逻辑",
	"token", "coin", "project", "market", "price", "volume", "chart", "group", "telegram",
	"alpha", "pump", "dump", "moon", "signal", "entry", "exit", "long", "short",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// tokenize returns distinct keywords: latin words and short Han runs,
// long Han runs contribute their leading bigrams.
func tokenize(text string) []string {
	t := textproc.Clean(text)
	if t == "" {
		return nil
	}
	var raw []string
	for _, w := range latinWordRE.FindAllString(strings.ToLower(t), -1) {
		raw = append(raw, w)
	}
	for _, w := range hanRunRE.FindAllString(t, -1) {
		if utf8.RuneCountInString(w) <= 6 {
			raw = append(raw, w)
			continue
		}
		r := []rune(w)
		for i := 0; i < len(r)-1 && i < 5; i++ {
			raw = append(raw, string(r[i:i+2]))
		}
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, w := range raw {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// rankedCounter counts strings and remembers first-seen order for stable ties.
type rankedCounter struct {
	order  []string
	counts map[string]int
}

func newRankedCounter() *rankedCounter {
	return &rankedCounter{counts: make(map[string]int)}
}

func (c *rankedCounter) add(s string) {
	if _, ok := c.counts[s]; !ok {
		c.order = append(c.order, s)
	}
	c.counts[s]++
}

// top orders by count, then by length, both descending.
func (c *rankedCounter) top(n int) []string {
	out := append([]string(nil), c.order...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := c.counts[out[i]], c.counts[out[j]]
		if ci != cj {
			return ci > cj
		}
		return utf8.RuneCountInString(out[i]) > utf8.RuneCountInString(out[j])
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func extractKeywords(texts []string, center string, limit int) []string {
	c := newRankedCounter()
	for _, t := range texts {
		for _, w := range tokenize(t) {
			c.add(w)
		}
	}
	for _, w := range tokenize(center) {
		c.add(w)
	}
	return c.top(limit)
}
