package topics

import (
	"context"

	"market-digest/internal/outcome"
	"market-digest/internal/textproc"
)

// LexicalStrategy groups texts by their leading symbol, event word or keyword.
type LexicalStrategy struct {
	Filter      *textproc.Filter
	MaxClusters int
}

func (s *LexicalStrategy) Name() string { return "lexical" }

func (s *LexicalStrategy) Candidates(_ context.Context, in Input) outcome.Outcome[[]Cluster] {
	k := s.MaxClusters
	if k <= 0 {
		k = defaultMaxClusters
	}
	var (
		order    []string
		clusters = make(map[string]*Cluster)
		best     = make(map[string]float64)
	)
	for _, text := range in.Texts {
		key := s.clusterKey(text)
		cl, ok := clusters[key]
		if !ok {
			if len(clusters) >= k {
				continue
			}
			cl = &Cluster{Key: key, Representative: text}
			clusters[key] = cl
			best[key] = -1
			order = append(order, key)
		}
		cl.Members = append(cl.Members, text)
		if score := s.Filter.Score(text); score > best[key] {
			best[key] = score
			cl.Representative = text
		}
	}
	out := make([]Cluster, 0, len(order))
	for _, key := range order {
		cl := *clusters[key]
		cl.Score = s.Filter.ClusterScore(cl.Representative, cl.Size())
		out = append(out, cl)
	}
	if len(out) == 0 {
		return outcome.Skipped[[]Cluster]("no_texts")
	}
	return outcome.Ok(out)
}

func (s *LexicalStrategy) clusterKey(text string) string {
	a := s.Filter.Extractor().Extract(text)
	if len(a.Symbols) > 0 {
		return "sym:" + a.Symbols[0]
	}
	if len(a.Events) > 0 {
		return "event:" + a.Events[0]
	}
	if kw := tokenize(text); len(kw) > 0 {
		return "kw:" + kw[0]
	}
	return "misc"
}
