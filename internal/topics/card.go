// Package topics distills filtered chat text into a few anchored event cards.
package topics

// Card is one distilled narrative.
type Card struct {
	Summary       string   `json:"summary"`
	Sentiment     string   `json:"sentiment"`
	Triggers      []string `json:"triggers"`
	RelatedAssets []string `json:"related_assets"`
	// Inferred marks cards composed by rules rather than a model.
	Inferred    bool     `json:"inferred"`
	ClusterSize int      `json:"cluster_size"`
	Score       float64  `json:"score"`
	Evidence    []string `json:"-"`
}

// Cluster groups near-duplicate texts around one representative.
type Cluster struct {
	Key            string
	Representative string
	Members        []string
	Score          float64
	// Mentions is set by strategies that count anchors instead of clustering.
	Mentions int
	Symbol   string
}

// Size is the member count.
func (c Cluster) Size() int { return len(c.Members) }

const (
	minTriggers     = 3
	maxTriggers     = 6
	summaryMaxLen   = 72
	summaryDedupLen = 40
	maxCards        = 3
)

// fillerTriggers pad sparse clusters up to the minimum trigger count.
var fillerTriggers = []string{"关注关键位", "催化进展", "风险提示"}

func normalizeTriggers(in []string) []string {
	out := make([]string, 0, maxTriggers)
	seen := make(map[string]struct{}, len(in))
	add := func(s string) {
		if s == "" || len(out) >= maxTriggers {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range in {
		add(s)
	}
	for _, s := range fillerTriggers {
		if len(out) >= minTriggers {
			break
		}
		add(s)
	}
	return out
}
