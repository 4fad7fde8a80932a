package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOneLinerTemplates(t *testing.T) {
	assert.Equal(t, "PEPE 上所话题升温", oneLiner("PEPE", []string{"上所"}, nil))
	assert.Equal(t, "PEPE 讨论集中：meme/热度", oneLiner("PEPE", nil, []string{"meme", "热度", "x"}))
	assert.Equal(t, "解锁 讨论集中：抛压", oneLiner("解锁", []string{"解锁"}, []string{"抛压"}))
	assert.Equal(t, "解锁 话题升温", oneLiner("", []string{"解锁"}, nil))
	assert.Equal(t, "热点话题讨论升温", oneLiner("", nil, nil))
}

func TestComposerReanchorsOnQuantity(t *testing.T) {
	c := composer{filter: newFilter()}
	card, ok := c.fromCluster(Cluster{Representative: "今晚 3000万 资金进场", Members: []string{"今晚 3000万 资金进场"}})
	assert.True(t, ok)
	assert.Contains(t, card.Summary, "3000")
}

func TestNormalizeTriggersBounds(t *testing.T) {
	assert.Equal(t, []string{"a", "关注关键位", "催化进展"}, normalizeTriggers([]string{"a", "a", ""}))
	assert.Len(t, normalizeTriggers([]string{"1", "2", "3", "4", "5", "6", "7"}), maxTriggers)
}

func TestTokenizeDropsStopwordsAndSplitsLongRuns(t *testing.T) {
	assert.Equal(t, []string{"bonk", "解锁"}, tokenize("BONK 解锁 大家 token"))
	assert.Equal(t, []string{"这是", "是一", "一段", "段很", "很长"}, tokenize("这是一段很长的句子"))
}
