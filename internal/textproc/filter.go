package textproc

import (
	"math"
	"strings"
)

const (
	topicScanLimit = 800
	topicKeepLimit = 200
	topicMaxLen    = 260
	dedupKeyLen    = 120
)

// Filter applies the prefilter and scoring tables with one address policy.
type Filter struct {
	ex *Extractor
}

// NewFilter constructs a Filter.
func NewFilter(rules AddressRules) *Filter {
	return &Filter{ex: NewExtractor(rules)}
}

// Extractor exposes the underlying anchor extractor.
func (f *Filter) Extractor() *Extractor { return f.ex }

// Prefilter keeps a text with an address, a cashtag, or an event word next to a
// symbol or a numeric quantity.
func (f *Filter) Prefilter(text string) bool {
	t := Clean(text)
	if t == "" {
		return false
	}
	a := f.ex.Extract(t)
	if a.HasAddress() || len(a.Cashtags) > 0 {
		return true
	}
	return len(a.Events) > 0 && (len(a.Symbols) > 0 || a.HasNumber)
}

// FilterTopicTexts returns the high-information subset, deduplicated on a
// lowercase prefix and capped in count and length.
func (f *Filter) FilterTopicTexts(texts []string) []string {
	if len(texts) > topicScanLimit {
		texts = texts[:topicScanLimit]
	}
	seen := make(map[string]struct{}, len(texts))
	out := make([]string, 0, min(len(texts), topicKeepLimit))
	for _, raw := range texts {
		t := Clean(raw)
		if t == "" || !f.Prefilter(t) {
			continue
		}
		key := DedupKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Truncate(t, topicMaxLen))
		if len(out) >= topicKeepLimit {
			break
		}
	}
	return out
}

// DedupKey is the near-duplicate key: lowercase, first 120 runes.
func DedupKey(t string) string {
	return Truncate(strings.ToLower(t), dedupKeyLen)
}

// Score ranks a single text by anchor strength.
func (f *Filter) Score(text string) float64 {
	t := Clean(text)
	if t == "" {
		return 0
	}
	a := f.ex.Extract(t)
	score := 0.0
	if a.HasAddress() {
		score += 2.6
	}
	if len(a.Cashtags) > 0 {
		score += 1.8
	}
	if len(a.Symbols) > 0 {
		score += 1.0
	}
	if len(a.Events) > 0 {
		score += 0.8
		if a.HasNumber {
			score += 0.6
		}
	}
	if HasPromo(t) {
		score -= 0.6
	}
	return math.Max(0, score)
}

// ClusterScore rewards heat without letting size swamp content.
func (f *Filter) ClusterScore(representative string, size int) float64 {
	base := f.Score(representative)
	s := base + 0.35*float64(max(0, size-1))
	return math.Round(s*1000) / 1000
}

// HasAnchor reports whether a summary carries any concrete token.
func (f *Filter) HasAnchor(text string) bool {
	t := Clean(text)
	if t == "" {
		return false
	}
	a := f.ex.Extract(t)
	if a.HasAddress() || len(a.Cashtags) > 0 || len(a.Symbols) > 0 || len(a.Events) > 0 || a.HasNumber {
		return true
	}
	return containsAny(t, Platforms)
}

// HasVagueOpener reports a summary opening with collective filler.
func HasVagueOpener(text string) bool {
	t := strings.TrimSpace(text)
	for _, v := range VagueOpeners {
		if strings.HasPrefix(t, v) {
			return true
		}
	}
	return false
}

// Acceptable is the postfilter gate for a summary line.
func (f *Filter) Acceptable(summary string) bool {
	s := strings.TrimSpace(summary)
	return s != "" && !HasVagueOpener(s) && f.HasAnchor(s)
}

// FirstQuantity returns the first numeric quantity with its scale suffix, or "".
func FirstQuantity(text string) string {
	return strings.TrimSpace(numericRE.FindString(text))
}
