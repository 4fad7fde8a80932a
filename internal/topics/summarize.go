package topics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"market-digest/internal/llm"
	"market-digest/internal/textproc"
)

const summarizeSystemPrompt = `你是加密市场群聊编辑。输入是若干条已去重的群聊代表消息，每条一行。
请归纳最多 3 个具体事件话题，只输出 JSON，不要其他文字：
{"items":[{"one_liner":"一句话摘要","sentiment":"偏多|偏空|分歧|中性","triggers":["3-6 个触发短语"],"related_assets":["代币符号或合约地址"]}]}
规则：
1. one_liner 必须包含具体锚点：代币符号、合约地址、链或平台名、事件词或数字。
2. 不要以"有人""大家""一些""用户""群友""投资者"等泛指开头。
3. 无法给出具体锚点的话题直接省略，宁缺毋滥。
4. 不要引用原文，不要出现用户名或联系方式。`

const summarizeTextLen = 240

type summaryPayload struct {
	Items []summaryItem `json:"items"`
}

type summaryItem struct {
	OneLiner      string   `json:"one_liner"`
	Sentiment     string   `json:"sentiment"`
	Triggers      []string `json:"triggers"`
	RelatedAssets []string `json:"related_assets"`
}

var errNoItems = errors.New("items missing")

func validateSummary(p *summaryPayload) error {
	if p.Items == nil {
		return errNoItems
	}
	return nil
}

// summarizer turns cluster representatives into candidate cards with one model call.
type summarizer struct {
	completer llm.Completer
	retry     llm.RetryOptions
}

func (s *summarizer) summarize(ctx context.Context, clusters []Cluster) ([]Card, error) {
	var sb strings.Builder
	for i, cl := range clusters {
		fmt.Fprintf(&sb, "%d. [x%d] %s\n", i+1, cl.Size(), textproc.Truncate(cl.Representative, summarizeTextLen))
	}
	payload, err := llm.CompleteJSON(ctx, s.completer, summarizeSystemPrompt, sb.String(), validateSummary, s.retry)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, 0, len(payload.Items))
	for _, it := range payload.Items {
		sentiment := strings.TrimSpace(it.Sentiment)
		if !textproc.ValidStance(sentiment) {
			sentiment = textproc.StanceNeutral
		}
		assets := make([]string, 0, len(it.RelatedAssets))
		for _, a := range it.RelatedAssets {
			if n := textproc.NormalizeSubject(a); n != "" {
				assets = append(assets, n)
			}
		}
		cards = append(cards, Card{
			Summary:       textproc.Truncate(strings.TrimSpace(it.OneLiner), summaryMaxLen),
			Sentiment:     sentiment,
			Triggers:      normalizeTriggers(trimAll(it.Triggers)),
			RelatedAssets: assets,
		})
	}
	attachClusterStats(cards, clusters)
	return cards, nil
}

// attachClusterStats credits a model card with the first cluster that mentions one of its assets.
func attachClusterStats(cards []Card, clusters []Cluster) {
	for i := range cards {
		for _, cl := range clusters {
			if mentionsAny(cl.Representative, cards[i].RelatedAssets) || mentionsAny(cards[i].Summary, []string{clusterAnchor(cl)}) {
				cards[i].ClusterSize = cl.Size()
				cards[i].Score = cl.Score
				cards[i].Evidence = cl.Members
				break
			}
		}
	}
}

func clusterAnchor(cl Cluster) string {
	if i := strings.IndexByte(cl.Key, ':'); i >= 0 {
		return cl.Key[i+1:]
	}
	return ""
}

func mentionsAny(text string, needles []string) bool {
	upper := strings.ToUpper(text)
	for _, n := range needles {
		if n != "" && strings.Contains(upper, strings.ToUpper(n)) {
			return true
		}
	}
	return false
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
