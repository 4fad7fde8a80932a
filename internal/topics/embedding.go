package topics

import (
	"context"
	"math"
	"time"

	"market-digest/internal/llm"
	"market-digest/internal/outcome"
	"market-digest/internal/textproc"
)

const (
	defaultSimilarity  = 0.82
	defaultMaxClusters = 12
	minEmbedTexts      = 6
	embedTextLen       = 240
)

// EmbeddingStrategy clusters greedily by cosine similarity.
type EmbeddingStrategy struct {
	Embedder    llm.Embedder
	Filter      *textproc.Filter
	Reserve     time.Duration
	Threshold   float64
	MaxClusters int
}

func (s *EmbeddingStrategy) Name() string { return "embedding" }

func (s *EmbeddingStrategy) Candidates(ctx context.Context, in Input) outcome.Outcome[[]Cluster] {
	switch {
	case s.Embedder == nil || !s.Embedder.Available():
		return outcome.Skipped[[]Cluster]("unavailable")
	case len(in.Texts) <= minEmbedTexts:
		return outcome.Skipped[[]Cluster]("too_few_texts")
	case in.Budget != nil && in.Budget.Over(s.Reserve):
		return outcome.Skipped[[]Cluster]("budget")
	}

	inputs := make([]string, len(in.Texts))
	for i, t := range in.Texts {
		inputs[i] = textproc.Truncate(t, embedTextLen)
	}
	vecs, err := s.Embedder.Embed(ctx, inputs)
	if err != nil {
		return outcome.Failed[[]Cluster](err.Error())
	}
	if len(vecs) != len(in.Texts) {
		return outcome.Failedf[[]Cluster]("vector count %d != %d", len(vecs), len(in.Texts))
	}

	threshold := s.Threshold
	if threshold <= 0 {
		threshold = defaultSimilarity
	}
	k := s.MaxClusters
	if k <= 0 {
		k = defaultMaxClusters
	}
	clusters := greedyCluster(in.Texts, vecs, k, threshold)
	for i := range clusters {
		clusters[i].Score = s.Filter.ClusterScore(clusters[i].Representative, clusters[i].Size())
	}
	return outcome.Ok(clusters)
}

// greedyCluster assigns each text to its most similar centroid when similar enough,
// otherwise opens a cluster while fewer than k exist. Centroids are running means.
func greedyCluster(texts []string, vecs [][]float64, k int, threshold float64) []Cluster {
	var (
		clusters  []Cluster
		centroids [][]float64
	)
	for i, text := range texts {
		v := vecs[i]
		if len(v) == 0 {
			continue
		}
		best, bestSim := -1, -1.0
		for j, c := range centroids {
			if sim := cosine(v, c); sim > bestSim {
				best, bestSim = j, sim
			}
		}
		if best >= 0 && bestSim >= threshold {
			n := float64(clusters[best].Size())
			c := centroids[best]
			for d := range c {
				if d < len(v) {
					c[d] = (c[d]*n + v[d]) / (n + 1)
				}
			}
			clusters[best].Members = append(clusters[best].Members, text)
			continue
		}
		if len(clusters) >= k {
			continue
		}
		clusters = append(clusters, Cluster{
			Key:            "emb:" + textproc.DedupKey(text),
			Representative: text,
			Members:        []string{text},
		})
		centroids = append(centroids, append([]float64(nil), v...))
	}
	return clusters
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += a[i] * b[i]
	}
	for _, x := range a {
		na += x * x
	}
	for _, x := range b {
		nb += x * x
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
