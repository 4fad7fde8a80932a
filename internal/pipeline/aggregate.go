package pipeline

import (
	"strings"

	"market-digest/internal/cards"
	"market-digest/internal/signals"
	"market-digest/internal/textproc"
	"market-digest/internal/topics"
)

const (
	sentimentWindow = 5
	watchLimit      = 3
	maxTickerLen    = 15
)

func stanceScore(s string) int {
	switch strings.TrimSpace(s) {
	case textproc.StanceBullish:
		return 1
	case textproc.StanceBearish:
		return -1
	default:
		return 0
	}
}

// Sentiment scores the first topics and social-post cards: 偏多 +1, 偏空 -1.
// Two net votes either way decide; anything else is 分歧.
func Sentiment(chat []topics.Card, social []cards.SocialCard) string {
	sc := 0
	for i, c := range chat {
		if i >= sentimentWindow {
			break
		}
		sc += stanceScore(c.Sentiment)
	}
	n := 0
	for _, c := range social {
		if c.Source != cards.SourceSocial {
			continue
		}
		if n >= sentimentWindow {
			break
		}
		n++
		sc += stanceScore(c.Sentiment)
	}
	switch {
	case sc >= 2:
		return textproc.StanceBullish
	case sc <= -2:
		return textproc.StanceBearish
	default:
		return textproc.StanceMixed
	}
}

// Watch lists OI symbols first, then assets related to the top topics.
func Watch(items []signals.Item, chat []topics.Card) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimPrefix(strings.TrimSpace(s), "$")
		if len(s) <= maxTickerLen {
			// addresses are case-sensitive; tickers are not
			s = strings.ToUpper(s)
		}
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, it := range signals.Top(items, 5) {
		add(it.Symbol)
	}
	for i, c := range chat {
		if i >= sentimentWindow {
			break
		}
		for j, a := range c.RelatedAssets {
			if j >= 3 {
				break
			}
			add(a)
		}
	}
	if len(out) > watchLimit {
		out = out[:watchLimit]
	}
	return out
}
