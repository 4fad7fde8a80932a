package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"market-digest/internal/cards"
	"market-digest/internal/signals"
	"market-digest/internal/textproc"
	"market-digest/internal/topics"
)

func TestSentiment(t *testing.T) {
	bull := topics.Card{Sentiment: textproc.StanceBullish}
	bear := topics.Card{Sentiment: textproc.StanceBearish}
	social := func(s, src string) cards.SocialCard { return cards.SocialCard{Source: src, Sentiment: s} }

	assert.Equal(t, textproc.StanceMixed, Sentiment(nil, nil))
	assert.Equal(t, textproc.StanceBullish, Sentiment([]topics.Card{bull, bull}, nil))
	assert.Equal(t, textproc.StanceMixed, Sentiment([]topics.Card{bull, bull, bear}, nil))
	assert.Equal(t, textproc.StanceBearish, Sentiment([]topics.Card{bear},
		[]cards.SocialCard{social(textproc.StanceBearish, cards.SourceSocial)}))

	onlyChatSources := []cards.SocialCard{
		social(textproc.StanceBullish, cards.SourceChat),
		social(textproc.StanceBullish, cards.SourceSignal),
	}
	assert.Equal(t, textproc.StanceMixed, Sentiment(nil, onlyChatSources), "只统计推特来源卡片")

	late := []topics.Card{{}, {}, {}, {}, {}, bull, bull}
	assert.Equal(t, textproc.StanceMixed, Sentiment(late, nil), "只看前五个话题")
}

func TestWatch(t *testing.T) {
	items := []signals.Item{{Symbol: "WIF"}, {Symbol: "ordi"}}
	chat := []topics.Card{
		{RelatedAssets: []string{"$wif", "BONK"}},
		{RelatedAssets: []string{"PEPE"}},
	}
	assert.Equal(t, []string{"WIF", "ORDI", "BONK"}, Watch(items, chat))

	addr := "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"
	assert.Equal(t, []string{addr}, Watch(nil, []topics.Card{{RelatedAssets: []string{addr}}}), "地址保持大小写")
	assert.Empty(t, Watch(nil, nil))
}
