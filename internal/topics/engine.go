package topics

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/budget"
	"market-digest/internal/llm"
	"market-digest/internal/textproc"
)

const dedupLimit = 240

// Options tune the engine. Zero values take defaults.
type Options struct {
	EmbedReserve time.Duration
	LLMReserve   time.Duration
	// TailReserve is kept free for render and delivery; optional calls get a deadline before it.
	TailReserve time.Duration
	Threshold   float64
	MaxClusters int
	MaxCards    int
	Retry       llm.RetryOptions
}

func (o Options) withDefaults() Options {
	if o.EmbedReserve <= 0 {
		o.EmbedReserve = 55 * time.Second
	}
	if o.LLMReserve <= 0 {
		o.LLMReserve = 65 * time.Second
	}
	if o.TailReserve <= 0 {
		o.TailReserve = 20 * time.Second
	}
	if o.Threshold <= 0 {
		o.Threshold = defaultSimilarity
	}
	if o.MaxClusters <= 0 {
		o.MaxClusters = defaultMaxClusters
	}
	if o.MaxCards <= 0 {
		o.MaxCards = maxCards
	}
	return o
}

// Result is the engine output plus operator diagnostics.
type Result struct {
	Cards       []Card
	Strategy    string
	Diagnostics []string
	LLMFailures []string
}

func (r *Result) diag(s string) {
	if s != "" {
		r.Diagnostics = append(r.Diagnostics, s)
	}
}

// Engine runs the strategy chain, summarizes and postfilters.
type Engine struct {
	filter     *textproc.Filter
	strategies []Strategy
	composer   composer
	summarizer *summarizer
	opts       Options
	logger     zerolog.Logger
}

// NewEngine wires the default chain: embedding, lexical, symbol.
// A nil completer keeps summarization rule-based.
func NewEngine(filter *textproc.Filter, embedder llm.Embedder, completer llm.Completer, opts Options, logger zerolog.Logger) *Engine {
	opts = opts.withDefaults()
	chain := []Strategy{
		&EmbeddingStrategy{Embedder: embedder, Filter: filter, Reserve: opts.EmbedReserve, Threshold: opts.Threshold, MaxClusters: opts.MaxClusters},
		&LexicalStrategy{Filter: filter, MaxClusters: opts.MaxClusters},
		&SymbolStrategy{Filter: filter, Limit: opts.MaxCards},
	}
	return NewEngineWithStrategies(filter, chain, completer, opts, logger)
}

// NewEngineWithStrategies uses an explicit chain.
func NewEngineWithStrategies(filter *textproc.Filter, chain []Strategy, completer llm.Completer, opts Options, logger zerolog.Logger) *Engine {
	opts = opts.withDefaults()
	var sum *summarizer
	if completer != nil {
		sum = &summarizer{completer: completer, retry: opts.Retry}
	}
	return &Engine{
		filter:     filter,
		strategies: chain,
		composer:   composer{filter: filter},
		summarizer: sum,
		opts:       opts,
		logger:     logger.With().Str("component", "topics").Logger(),
	}
}

// Distill turns high-information texts into at most MaxCards anchored cards.
// The first strategy whose clusters survive postfilter wins.
func (e *Engine) Distill(ctx context.Context, b *budget.TimeBudget, texts []string) Result {
	var res Result
	texts = dedup(texts, dedupLimit)
	if len(texts) == 0 {
		res.diag("topics_empty")
		return res
	}

	if b != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, b.Deadline(e.opts.TailReserve))
		defer cancel()
	}

	in := Input{Texts: texts, Budget: b}
	llmTried := false
	for _, s := range e.strategies {
		out := s.Candidates(ctx, in)
		if !out.IsOK() {
			res.diag(out.Diagnostic("topics_" + s.Name()))
			continue
		}
		clusters := rankClusters(out.Value)
		if len(clusters) > e.opts.MaxClusters {
			clusters = clusters[:e.opts.MaxClusters]
		}

		var cards []Card
		if !isDirect(clusters) && !llmTried {
			llmTried = true
			cards = e.postfilter(e.summarizeLLM(ctx, b, clusters, &res))
		}
		if len(cards) == 0 {
			cards = e.postfilter(e.compose(clusters))
		}
		if len(cards) > 0 {
			res.Cards = cards
			res.Strategy = s.Name()
			e.logger.Debug().Str("strategy", s.Name()).Int("clusters", len(clusters)).Int("cards", len(cards)).Msg("topics distilled")
			return res
		}
		res.diag("topics_" + s.Name() + "_no_cards")
	}
	return res
}

func (e *Engine) summarizeLLM(ctx context.Context, b *budget.TimeBudget, clusters []Cluster, res *Result) []Card {
	if e.summarizer == nil {
		res.diag("topics_llm_skipped:unavailable")
		return nil
	}
	if b != nil && b.Over(e.opts.LLMReserve) {
		res.diag("topics_llm_skipped:budget")
		return nil
	}
	cards, err := e.summarizer.summarize(ctx, clusters)
	if err != nil {
		res.LLMFailures = append(res.LLMFailures, "topics_llm:"+err.Error())
		res.diag("topics_llm_failed")
		e.logger.Warn().Err(err).Msg("topic summarization failed; using rule-based cards")
		return nil
	}
	return cards
}

func (e *Engine) compose(clusters []Cluster) []Card {
	cards := make([]Card, 0, len(clusters))
	for _, cl := range clusters {
		if card, ok := e.composer.fromCluster(cl); ok {
			cards = append(cards, card)
		}
	}
	return cards
}

// postfilter re-validates every candidate and drops near-duplicate summaries.
func (e *Engine) postfilter(cards []Card) []Card {
	out := make([]Card, 0, min(len(cards), e.opts.MaxCards))
	seen := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		if !e.filter.Acceptable(c.Summary) {
			continue
		}
		key := textproc.Truncate(textproc.DedupKey(c.Summary), summaryDedupLen)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		c.Triggers = normalizeTriggers(c.Triggers)
		out = append(out, c)
		if len(out) >= e.opts.MaxCards {
			break
		}
	}
	return out
}

func rankClusters(in []Cluster) []Cluster {
	out := append([]Cluster(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Size() > out[j].Size()
	})
	return out
}

func isDirect(clusters []Cluster) bool {
	return len(clusters) > 0 && clusters[0].Mentions > 0
}

func dedup(texts []string, limit int) []string {
	out := make([]string, 0, min(len(texts), limit))
	seen := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		k := textproc.DedupKey(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
		if len(out) >= limit {
			break
		}
	}
	return out
}
