package radar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest/internal/budget"
	"market-digest/internal/llm"
)

type scriptedCompleter struct {
	replies []string
	err     error
	calls   int
	users   []string
}

func (s *scriptedCompleter) Model() string { return "scripted" }

func (s *scriptedCompleter) Complete(_ context.Context, _ string, user string) (string, error) {
	i := s.calls
	s.calls++
	s.users = append(s.users, user)
	if s.err != nil {
		return "", s.err
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", llm.ErrEmptyResponse
}

var fastRetry = llm.RetryOptions{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func socialItems() []Candidate {
	return []Candidate{
		{Address: usdcMint, Chain: "solana", Symbol: "wif", Source: "dex_boost", SourceKey: "BOOST:" + usdcMint,
			Social: []string{"WIF 明天上线 Binance 现货，巨鲸在加仓", "WIF unlock 结束，筹码干净 https://x.com/a"}},
		{Address: evmAddr, Chain: "base", Source: "dex_boost", Mentions: 9},
		{Symbol: "PEPE", Source: "collector", Social: []string{"PEPE 讨论很多"}},
	}
}

func TestSocialTopicsRuleBasedWithoutLLM(t *testing.T) {
	s := NewSocialSummarizer(nil, SocialOptions{}, zerolog.Nop())
	res := s.Build(context.Background(), budget.Start(time.Minute), socialItems())

	assert.Equal(t, 2, res.Candidates, "没有社交证据的候选应被忽略")
	assert.Equal(t, []string{"social_topics_skipped:no_llm"}, res.Diagnostics)
	require.Len(t, res.Topics, 2)

	wif := res.Topics[0]
	assert.Equal(t, "WIF", wif.Symbol)
	assert.Equal(t, "onchain", wif.SymbolType)
	assert.Equal(t, usdcMint, wif.Address)
	assert.Equal(t, "WIF 社交讨论聚焦上线/unlock", wif.OneLiner)
	assert.Equal(t, []string{"社交提及2", "上线", "unlock"}, wif.Signals)
	assert.Len(t, wif.Evidence, 2)
	assert.NotContains(t, wif.Evidence[1], "https://")

	pepe := res.Topics[1]
	assert.Equal(t, "cex", pepe.SymbolType)
	assert.Equal(t, "PEPE 社交讨论升温（1 条）", pepe.OneLiner)
}

func TestSocialTopicsFromModel(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"```json\n" + `{"items":[
		{"id":"BOOST:` + usdcMint + `","sym":"WIF","one_liner":"WIF 现货上所预期推动买盘","sentiment":"偏多","signals":["上所","巨鲸加仓"],"why_buy":"流动性提升","risk":"上所即见顶"},
		{"id":"x","sym":"pepe","one_liner":"PEPE 热度持续","sentiment":"乐观"}
	]}` + "\n```"}}
	s := NewSocialSummarizer(c, SocialOptions{Retry: fastRetry}, zerolog.Nop())
	res := s.Build(context.Background(), budget.Start(10*time.Minute), socialItems())

	assert.Empty(t, res.Diagnostics)
	require.Len(t, res.Topics, 2)
	assert.Equal(t, "WIF 现货上所预期推动买盘", res.Topics[0].OneLiner)
	assert.Equal(t, "偏多", res.Topics[0].Sentiment)
	assert.Equal(t, []string{"上所", "巨鲸加仓"}, res.Topics[0].Signals)
	assert.Equal(t, "上所即见顶", res.Topics[0].Risk)
	assert.Equal(t, "PEPE 热度持续", res.Topics[1].OneLiner, "按符号匹配模型输出")
	assert.NotEqual(t, "乐观", res.Topics[1].Sentiment, "非法情绪标签不应透传")

	require.Len(t, c.users, 1)
	var in []socialInput
	require.NoError(t, json.Unmarshal([]byte(c.users[0]), &in))
	require.Len(t, in, 2)
	assert.Equal(t, "BOOST:"+usdcMint, in[0].ID)
}

func TestSocialTopicsSkipModelWhenBudgetSpent(t *testing.T) {
	c := &scriptedCompleter{}
	start := time.Now()
	b := budget.New(start, 2*time.Minute, func() time.Time { return start.Add(time.Minute) })
	s := NewSocialSummarizer(c, SocialOptions{}, zerolog.Nop())

	res := s.Build(context.Background(), b, socialItems())
	assert.Zero(t, c.calls)
	assert.Equal(t, []string{"social_topics_skipped:budget"}, res.Diagnostics)
	assert.Len(t, res.Topics, 2, "预算不足时退回规则摘要")
}

func TestSocialTopicsModelFailureFallsBack(t *testing.T) {
	c := &scriptedCompleter{err: errors.New("503")}
	s := NewSocialSummarizer(c, SocialOptions{Retry: fastRetry}, zerolog.Nop())

	res := s.Build(context.Background(), budget.Start(10*time.Minute), socialItems())
	assert.Equal(t, 1, c.calls, "非格式错误不重试")
	assert.Contains(t, res.Diagnostics, "social_topics_failed:503")
	assert.Equal(t, []string{"social_topics:503"}, res.LLMFailures)
	require.Len(t, res.Topics, 2)
	assert.Equal(t, "PEPE 社交讨论升温（1 条）", res.Topics[1].OneLiner)
}

func TestMergeSocialKeepsExisting(t *testing.T) {
	existing := []SocialTopic{{Symbol: "WIF", Address: usdcMint, OneLiner: "采集器摘要"}}
	built := []SocialTopic{{Symbol: "WIF", Address: usdcMint, OneLiner: "规则摘要"}, {Symbol: "PEPE"}}

	out := MergeSocial(existing, built)
	require.Len(t, out, 2)
	assert.Equal(t, "采集器摘要", out[0].OneLiner)
	assert.Equal(t, "PEPE", out[1].Symbol)
}

func TestBoostScannerCarriesSocialEvidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, boostsPath, r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"chainId": "solana", "tokenAddress": usdcMint, "totalAmount": 500, "description": "WIF 社区空投本周开启"},
			{"chainId": "ethereum", "tokenAddress": evmAddr, "totalAmount": 900},
			{"chainId": "solana", "tokenAddress": usdcMint, "totalAmount": 100},
		})
	}))
	defer srv.Close()

	s := NewBoostScanner(BoostScannerOptions{BaseURL: srv.URL}, nil, zerolog.Nop())
	out, err := s.Scan(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, out.Items, 1, "链过滤与地址去重")
	assert.Equal(t, []string{"WIF 社区空投本周开启"}, out.Items[0].Social)
	assert.Equal(t, testWindow.Key, out.WindowKey)
}
