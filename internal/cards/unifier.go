package cards

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/budget"
	"market-digest/internal/market"
	"market-digest/internal/radar"
	"market-digest/internal/signals"
	"market-digest/internal/topics"
)

// Resolver supplies price, market cap and FDV for a subject.
// It must return empty metrics rather than guess when a ticker is ambiguous.
type Resolver interface {
	Resolve(ctx context.Context, subject market.Subject) (market.Metrics, error)
}

// Input groups the upstream outputs by variant.
type Input struct {
	Chat    []topics.Card
	Social  []radar.SocialTopic
	Signals []signals.Item
	Plans   []signals.Plan
	Radar   []radar.Candidate
}

// Options tune the unifier. Zero values take defaults.
type Options struct {
	EnrichReserve time.Duration
	TailReserve   time.Duration
}

func (o Options) withDefaults() Options {
	if o.EnrichReserve <= 0 {
		o.EnrichReserve = 20 * time.Second
	}
	if o.TailReserve <= 0 {
		o.TailReserve = 15 * time.Second
	}
	return o
}

// Result holds every unified card; the display cap is applied when rendering.
type Result struct {
	Cards       []SocialCard
	Counts      map[string]int
	Diagnostics []string
}

// Unifier projects, enriches, dedups and orders cards.
type Unifier struct {
	resolver Resolver
	opts     Options
	logger   zerolog.Logger
}

// NewUnifier accepts a nil resolver; cards then keep only upstream figures.
func NewUnifier(resolver Resolver, opts Options, logger zerolog.Logger) *Unifier {
	return &Unifier{
		resolver: resolver,
		opts:     opts.withDefaults(),
		logger:   logger.With().Str("component", "social_cards").Logger(),
	}
}

// Build merges all sources. Chat and social cards are interleaved first,
// radar hits follow, OI signals come last.
func (u *Unifier) Build(ctx context.Context, b *budget.TimeBudget, in Input) Result {
	res := Result{Counts: make(map[string]int)}

	plans := make(map[string]*signals.Plan, len(in.Plans))
	for i := range in.Plans {
		plans[market.Subject{Symbol: in.Plans[i].Symbol}.Key()] = &in.Plans[i]
	}

	var chat, social, hits, sigs []SocialCard
	for _, c := range in.Chat {
		chat = appendProjected(chat, ChatTopic{Card: c})
	}
	for _, t := range in.Social {
		social = appendProjected(social, SocialPost{Topic: t})
	}
	sortedRadar := append([]radar.Candidate(nil), in.Radar...)
	sort.SliceStable(sortedRadar, func(i, j int) bool { return sortedRadar[i].Mentions > sortedRadar[j].Mentions })
	for _, c := range sortedRadar {
		hits = appendProjected(hits, RadarHit{Candidate: c})
	}
	for _, it := range in.Signals {
		sigs = appendProjected(sigs, MarketSignal{Item: it, Plan: plans[market.Subject{Symbol: it.Symbol}.Key()]})
	}
	byEvidence(chat)
	byEvidence(social)

	res.Counts[SourceChat] = len(chat)
	res.Counts[SourceSocial] = len(social)
	res.Counts[SourceRadar] = len(hits)
	res.Counts[SourceSignal] = len(sigs)

	all := append(interleave(social, chat), hits...)
	all = append(all, sigs...)
	all = u.enrich(ctx, b, all, &res)
	res.Cards = dedupCards(all)
	return res
}

func (u *Unifier) enrich(ctx context.Context, b *budget.TimeBudget, cards []SocialCard, res *Result) []SocialCard {
	if u.resolver == nil || len(cards) == 0 {
		return cards
	}
	if b != nil && b.Over(u.opts.EnrichReserve) {
		res.Diagnostics = append(res.Diagnostics, "social_cards_enrich_skipped:budget")
		return cards
	}
	if b != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, b.Deadline(u.opts.TailReserve))
		defer cancel()
	}

	cache := make(map[string]market.Metrics)
	out := make([]SocialCard, len(cards))
	for i, c := range cards {
		out[i] = c
		if c.Price != nil && (c.MarketCap != nil || c.FDV != nil) {
			continue
		}
		key := c.Key()
		m, ok := cache[key]
		if !ok {
			var err error
			m, err = u.resolver.Resolve(ctx, c.Subject)
			if err != nil {
				res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("social_cards_enrich_failed:%s:%v", key, err))
				u.logger.Debug().Err(err).Str("subject", key).Msg("card enrichment failed")
				m = market.Metrics{}
			}
			cache[key] = m
		}
		if m.Resolved() {
			out[i] = c.withMetrics(m)
		}
	}
	return out
}

// interleave alternates a and b, starting with a.
func interleave(a, b []SocialCard) []SocialCard {
	out := make([]SocialCard, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	return out
}

// dedupCards keeps the first card per subject. A card collides on its address
// key or its ticker, so a radar hit and a chat topic about the same token merge.
func dedupCards(in []SocialCard) []SocialCard {
	out := make([]SocialCard, 0, len(in))
	seen := make(map[string]struct{}, 2*len(in))
	for _, c := range in {
		keys := subjectKeys(c.Subject)
		dup := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		out = append(out, c)
	}
	return out
}

func subjectKeys(s market.Subject) []string {
	n := s.Normalize()
	var keys []string
	if n.Address != "" {
		keys = append(keys, "addr:"+n.Address)
	}
	if n.Symbol != "" {
		keys = append(keys, "sym:"+n.Symbol)
	}
	return keys
}

func byEvidence(cards []SocialCard) {
	sort.SliceStable(cards, func(i, j int) bool { return len(cards[i].Evidence) > len(cards[j].Evidence) })
}

func appendProjected(out []SocialCard, p Provenance) []SocialCard {
	if c, ok := Project(p); ok {
		out = append(out, c)
	}
	return out
}

func head[T any](in []T, n int) []T {
	if len(in) > n {
		return in[:n]
	}
	return in
}

// Top returns at most n cards for display.
func Top(cards []SocialCard, n int) []SocialCard {
	return head(cards, n)
}
