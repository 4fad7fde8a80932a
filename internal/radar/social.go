package radar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/budget"
	"market-digest/internal/llm"
	"market-digest/internal/textproc"
)

const socialSystemPrompt = `你是加密社交媒体观察员。输入是 JSON 数组，每项是一个代币及其社交帖子片段。
为每个代币归纳帖子里的观点，只输出 JSON，不要其他文字：
{"items":[{"id":"原样返回输入 id","sym":"代币符号","ca":"合约地址","one_liner":"一句话观点","sentiment":"偏多|偏空|分歧|中性","signals":["2-4 个关键信号"],"why_buy":"看多理由","why_not_buy":"看空理由","trigger":"触发条件","risk":"主要风险"}]}
规则：
1. 只依据片段内容，不编造价格、市值或合约地址。
2. one_liner 必须提到代币符号或具体事件，不要以"有人""大家""一些"开头。
3. 片段信息不足的代币直接省略。`

const (
	socialEvidenceLen = 80
	socialOneLinerLen = 80
	socialMaxSignals  = 4
	socialMaxEvidence = 2
)

// SocialOptions bound the social topic pass. Zero values take defaults.
type SocialOptions struct {
	ScanItems     int
	MaxCandidates int
	MaxTopics     int
	MaxSnippets   int
	Reserve       time.Duration
	TailReserve   time.Duration
	Retry         llm.RetryOptions
}

func (o SocialOptions) withDefaults() SocialOptions {
	if o.ScanItems <= 0 {
		o.ScanItems = 25
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 8
	}
	if o.MaxTopics <= 0 {
		o.MaxTopics = 5
	}
	if o.MaxSnippets <= 0 {
		o.MaxSnippets = 6
	}
	if o.Reserve <= 0 {
		o.Reserve = 95 * time.Second
	}
	if o.TailReserve <= 0 {
		o.TailReserve = 20 * time.Second
	}
	return o
}

// SocialResult is the outcome of one pass.
type SocialResult struct {
	Topics      []SocialTopic
	Candidates  int
	Diagnostics []string
	LLMFailures []string
}

// SocialSummarizer turns radar candidates carrying social evidence into social topics.
// The model writes the viewpoint when the budget allows; rules fill in otherwise.
type SocialSummarizer struct {
	completer llm.Completer
	extractor *textproc.Extractor
	opts      SocialOptions
	logger    zerolog.Logger
}

// NewSocialSummarizer accepts a nil completer; every topic is then rule-based.
func NewSocialSummarizer(completer llm.Completer, opts SocialOptions, logger zerolog.Logger) *SocialSummarizer {
	return &SocialSummarizer{
		completer: completer,
		extractor: textproc.NewExtractor(textproc.DefaultAddressRules()),
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "social_topics").Logger(),
	}
}

type socialCandidate struct {
	id       string
	symbol   string
	address  string
	chain    string
	snippets []string
}

type socialInput struct {
	ID       string   `json:"id"`
	Sym      string   `json:"sym,omitempty"`
	CA       string   `json:"ca,omitempty"`
	Snippets []string `json:"evidence"`
}

type socialPayload struct {
	Items []socialSummary `json:"items"`
}

type socialSummary struct {
	ID        string   `json:"id"`
	Sym       string   `json:"sym"`
	CA        string   `json:"ca"`
	OneLiner  string   `json:"one_liner"`
	Sentiment string   `json:"sentiment"`
	Signals   []string `json:"signals"`
	WhyBuy    string   `json:"why_buy"`
	WhyNot    string   `json:"why_not_buy"`
	Trigger   string   `json:"trigger"`
	Risk      string   `json:"risk"`
}

var errNoSocialItems = errors.New("items missing")

func validateSocial(p *socialPayload) error {
	if p.Items == nil {
		return errNoSocialItems
	}
	return nil
}

// Build summarises up to MaxTopics tokens, one topic per symbol or address.
func (s *SocialSummarizer) Build(ctx context.Context, b *budget.TimeBudget, items []Candidate) SocialResult {
	var res SocialResult
	cands := s.candidates(items)
	res.Candidates = len(cands)
	if len(cands) == 0 {
		return res
	}

	var summaries map[string]socialSummary
	switch {
	case s.completer == nil:
		res.Diagnostics = append(res.Diagnostics, "social_topics_skipped:no_llm")
	case b != nil && b.Over(s.opts.Reserve):
		res.Diagnostics = append(res.Diagnostics, "social_topics_skipped:budget")
	default:
		callCtx := ctx
		if b != nil {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithDeadline(ctx, b.Deadline(s.opts.TailReserve))
			defer cancel()
		}
		out, err := s.summarize(callCtx, cands)
		switch {
		case llm.IsSchemaError(err):
			res.Diagnostics = append(res.Diagnostics, "social_topics_bad_output")
			res.LLMFailures = append(res.LLMFailures, "social_topics:"+err.Error())
		case err != nil:
			res.Diagnostics = append(res.Diagnostics, "social_topics_failed:"+err.Error())
			res.LLMFailures = append(res.LLMFailures, "social_topics:"+err.Error())
			s.logger.Warn().Err(err).Msg("social summary failed; using rule-based topics")
		case len(out) == 0:
			res.Diagnostics = append(res.Diagnostics, "social_topics_empty")
		}
		summaries = out
	}

	seen := make(map[string]struct{})
	for _, c := range cands {
		sum, ok := lookupSummary(summaries, c)
		t := s.topic(c, sum, ok)
		key := topicKey(t)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		res.Topics = append(res.Topics, t)
		if len(res.Topics) >= s.opts.MaxTopics {
			break
		}
	}
	return res
}

func (s *SocialSummarizer) candidates(items []Candidate) []socialCandidate {
	var out []socialCandidate
	for i, it := range items {
		if i >= s.opts.ScanItems || len(out) >= s.opts.MaxCandidates {
			break
		}
		var snippets []string
		for _, sn := range it.Social {
			if sn = strings.TrimSpace(sn); sn != "" {
				snippets = append(snippets, sn)
			}
		}
		if len(snippets) == 0 {
			continue
		}
		if len(snippets) > s.opts.MaxSnippets {
			snippets = snippets[:s.opts.MaxSnippets]
		}

		sym, chain := it.Symbol, it.Chain
		if it.Metrics != nil {
			if sym == "" {
				sym = it.Metrics.Symbol
			}
			if chain == "" {
				chain = it.Metrics.Chain
			}
		}
		sym = textproc.NormalizeSubject(sym)
		addr := strings.TrimSpace(it.Address)
		if sym == "" && addr == "" {
			continue
		}
		id := it.SourceKey
		if id == "" {
			id = addr
		}
		if id == "" {
			id = sym
		}
		out = append(out, socialCandidate{id: id, symbol: sym, address: addr, chain: chain, snippets: snippets})
	}
	return out
}

func (s *SocialSummarizer) summarize(ctx context.Context, cands []socialCandidate) (map[string]socialSummary, error) {
	in := make([]socialInput, 0, len(cands))
	for _, c := range cands {
		in = append(in, socialInput{ID: c.id, Sym: c.symbol, CA: c.address, Snippets: c.snippets})
	}
	user, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	payload, err := llm.CompleteJSON(ctx, s.completer, socialSystemPrompt, string(user), validateSocial, s.opts.Retry)
	if err != nil {
		return nil, err
	}
	return indexSummaries(payload.Items), nil
}

// indexSummaries keys model items by id, symbol and address; the first claim wins.
func indexSummaries(items []socialSummary) map[string]socialSummary {
	out := make(map[string]socialSummary, 3*len(items))
	for _, it := range items {
		keys := []string{
			"id:" + strings.TrimSpace(it.ID),
			"sym:" + textproc.NormalizeSubject(it.Sym),
			"ca:" + textproc.NormalizeSubject(it.CA),
		}
		for _, k := range keys {
			if strings.HasSuffix(k, ":") {
				continue
			}
			if _, taken := out[k]; !taken {
				out[k] = it
			}
		}
	}
	return out
}

func lookupSummary(m map[string]socialSummary, c socialCandidate) (socialSummary, bool) {
	if len(m) == 0 {
		return socialSummary{}, false
	}
	for _, k := range []string{"id:" + c.id, "sym:" + c.symbol, "ca:" + textproc.NormalizeSubject(c.address)} {
		if strings.HasSuffix(k, ":") {
			continue
		}
		if sum, ok := m[k]; ok {
			return sum, true
		}
	}
	return socialSummary{}, false
}

func (s *SocialSummarizer) topic(c socialCandidate, sum socialSummary, fromModel bool) SocialTopic {
	t := SocialTopic{Symbol: c.symbol, Address: c.address, Chain: c.chain, SymbolType: "cex"}
	if c.address != "" {
		t.SymbolType = "onchain"
	}
	for _, sn := range c.snippets {
		if ev := textproc.CleanEvidence(sn, socialEvidenceLen); ev != "" {
			t.Evidence = append(t.Evidence, ev)
		}
		if len(t.Evidence) >= socialMaxEvidence {
			break
		}
	}

	if fromModel {
		if t.Symbol == "" {
			t.Symbol = textproc.NormalizeSubject(sum.Sym)
		}
		t.OneLiner = textproc.Truncate(strings.TrimSpace(sum.OneLiner), socialOneLinerLen)
		if sentiment := strings.TrimSpace(sum.Sentiment); textproc.ValidStance(sentiment) {
			t.Sentiment = sentiment
		}
		for _, sig := range sum.Signals {
			if sig = strings.TrimSpace(sig); sig != "" && len(t.Signals) < socialMaxSignals {
				t.Signals = append(t.Signals, sig)
			}
		}
		t.WhyBuy = strings.TrimSpace(sum.WhyBuy)
		t.WhyNot = strings.TrimSpace(sum.WhyNot)
		t.Trigger = strings.TrimSpace(sum.Trigger)
		t.Risk = strings.TrimSpace(sum.Risk)
	}

	var events []string
	for _, sn := range c.snippets {
		for _, ev := range s.extractor.Extract(sn).Events {
			events = appendEvent(events, ev)
		}
	}
	if t.Sentiment == "" {
		t.Sentiment = textproc.Stance(c.snippets)
	}
	if len(t.Signals) == 0 {
		t.Signals = append(t.Signals, fmt.Sprintf("社交提及%d", len(c.snippets)))
		for _, ev := range events {
			if len(t.Signals) >= socialMaxSignals {
				break
			}
			t.Signals = append(t.Signals, ev)
		}
	}
	if t.OneLiner == "" {
		t.OneLiner = ruleOneLiner(topicLabel(t), events, len(c.snippets))
	}
	return t
}

func ruleOneLiner(label string, events []string, mentions int) string {
	if len(events) > 2 {
		events = events[:2]
	}
	if len(events) > 0 {
		return fmt.Sprintf("%s 社交讨论聚焦%s", label, strings.Join(events, "/"))
	}
	return fmt.Sprintf("%s 社交讨论升温（%d 条）", label, mentions)
}

func topicLabel(t SocialTopic) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return textproc.Truncate(t.Address, 6) + "…"
}

func topicKey(t SocialTopic) string {
	if t.Address != "" {
		return "addr:" + textproc.NormalizeSubject(t.Address)
	}
	if sym := textproc.NormalizeSubject(t.Symbol); sym != "" {
		return "sym:" + sym
	}
	return ""
}

func appendEvent(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// MergeSocial appends built topics to those already in the output, skipping
// tokens it already covers.
func MergeSocial(existing, built []SocialTopic) []SocialTopic {
	out := append([]SocialTopic(nil), existing...)
	seen := make(map[string]struct{}, len(existing)+len(built))
	for _, t := range existing {
		if k := topicKey(t); k != "" {
			seen[k] = struct{}{}
		}
	}
	for _, t := range built {
		k := topicKey(t)
		if _, dup := seen[k]; dup || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
