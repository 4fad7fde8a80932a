package topics

import (
	"context"
	"sort"

	"market-digest/internal/outcome"
	"market-digest/internal/textproc"
)

const (
	symbolScanLimit  = 400
	symbolsPerText   = 3
	symbolSampleSize = 30
)

// SymbolStrategy skips clustering and counts symbol mentions directly.
type SymbolStrategy struct {
	Filter *textproc.Filter
	Limit  int
}

func (s *SymbolStrategy) Name() string { return "symbol" }

func (s *SymbolStrategy) Candidates(_ context.Context, in Input) outcome.Outcome[[]Cluster] {
	texts := in.Texts
	if len(texts) > symbolScanLimit {
		texts = texts[:symbolScanLimit]
	}
	counter := newRankedCounter()
	samples := make(map[string][]string)
	for _, t := range texts {
		syms := s.Filter.Extractor().Extract(t).Symbols
		if len(syms) > symbolsPerText {
			syms = syms[:symbolsPerText]
		}
		for _, sym := range syms {
			counter.add(sym)
			if len(samples[sym]) < symbolSampleSize {
				samples[sym] = append(samples[sym], t)
			}
		}
	}
	// count only; symbol length is not a useful tie-break here
	syms := append([]string(nil), counter.order...)
	sort.SliceStable(syms, func(i, j int) bool { return counter.counts[syms[i]] > counter.counts[syms[j]] })

	limit := s.Limit
	if limit <= 0 {
		limit = maxCards
	}
	if len(syms) > limit {
		syms = syms[:limit]
	}
	out := make([]Cluster, 0, len(syms))
	for _, sym := range syms {
		members := samples[sym]
		out = append(out, Cluster{
			Key:            "sym:" + sym,
			Symbol:         sym,
			Mentions:       counter.counts[sym],
			Representative: members[0],
			Members:        members,
			Score:          float64(counter.counts[sym]),
		})
	}
	if len(out) == 0 {
		return outcome.Skipped[[]Cluster]("no_symbols")
	}
	return outcome.Ok(out)
}
