package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBotish(t *testing.T) {
	assert.True(t, IsBotish(""))
	assert.True(t, IsBotish(strings.Repeat("a", 261)))
	assert.True(t, IsBotish("├ Price 0.1"))
	assert.True(t, IsBotish("Stats: holders 1200"))
	assert.True(t, IsBotish("chart on dexscreener now"))

	assert.False(t, IsBotish(usdcMint), "短 CA 消息可能是人工发送")
	assert.True(t, IsBotish(usdcMint+" "+strings.Repeat("买", 60)))

	assert.False(t, IsBotish("看这个 https://x.com/a/status/1"))
	assert.True(t, IsBotish("https://x.com/a "+strings.Repeat("长", 140)))
	assert.False(t, IsBotish("今晚 PEPE 能不能冲"))
}

func TestHumanTexts(t *testing.T) {
	msgs := []Message{
		{SenderID: "bot1", Text: "PEPE 冲"},
		{SenderID: "u1", Text: "  PEPE   冲  "},
		{SenderID: "u2", Text: "Stats: 100"},
		{SenderID: "u3", Text: strings.Repeat("好", 250)},
	}
	out := HumanTexts(msgs, map[string]struct{}{"bot1": {}}, 100)
	assert.Equal(t, []string{"PEPE 冲", strings.Repeat("好", 100)}, out)
}

func TestCleanEvidence(t *testing.T) {
	assert.Equal(t, "", CleanEvidence("vip 私信", 80))
	got := CleanEvidence("联系 me@example.com 或 +86 138-0000-0000 关于 $BONK 解锁 https://t.me/x", 80)
	assert.NotContains(t, got, "@")
	assert.NotContains(t, got, "138")
	assert.NotContains(t, got, "https")
	assert.Contains(t, got, "$BONK 解锁")
	assert.Equal(t, 10, len([]rune(CleanEvidence(strings.Repeat("长句", 20), 10))))
}
