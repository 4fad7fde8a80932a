package topics

import (
	"fmt"
	"strings"

	"market-digest/internal/textproc"
)

const (
	entityLimit  = 6
	keywordLimit = 6
)

// composer builds cards from clusters without a model.
type composer struct {
	filter *textproc.Filter
}

type clusterFacts struct {
	entities []string
	events   []string
	keywords []string
	quantity string
}

func (c *composer) facts(cl Cluster) clusterFacts {
	entities := newRankedCounter()
	var f clusterFacts
	seenEvent := make(map[string]struct{})
	for _, t := range cl.Members {
		a := c.filter.Extractor().Extract(t)
		for _, s := range a.Symbols {
			entities.add(s)
		}
		for _, e := range a.Events {
			if _, dup := seenEvent[e]; dup {
				continue
			}
			seenEvent[e] = struct{}{}
			f.events = append(f.events, e)
		}
		if f.quantity == "" {
			f.quantity = textproc.FirstQuantity(textproc.Clean(t))
		}
	}
	f.entities = entities.top(entityLimit)
	f.keywords = extractKeywords(cl.Members, cl.Representative, keywordLimit)
	return f
}

// fromCluster composes one card, or reports false when no anchored sentence fits.
func (c *composer) fromCluster(cl Cluster) (Card, bool) {
	if cl.Size() == 0 {
		return Card{}, false
	}
	f := c.facts(cl)
	card := Card{
		Sentiment:   textproc.Stance(cl.Members),
		Triggers:    normalizeTriggers(append(append([]string(nil), f.events...), f.keywords...)),
		Inferred:    true,
		ClusterSize: cl.Size(),
		Score:       cl.Score,
		Evidence:    cl.Members,
	}

	if cl.Mentions > 0 && cl.Symbol != "" {
		card.Summary = fmt.Sprintf("%s 讨论升温（提及%d）", cl.Symbol, cl.Mentions)
		card.RelatedAssets = []string{cl.Symbol}
		return card, c.filter.Acceptable(card.Summary)
	}

	card.RelatedAssets = f.entities
	anchor := ""
	switch {
	case len(f.entities) > 0:
		anchor = f.entities[0]
	case len(f.events) > 0:
		anchor = f.events[0]
	case len(f.keywords) > 0:
		anchor = f.keywords[0]
	}
	card.Summary = textproc.Truncate(oneLiner(anchor, f.events, f.keywords), summaryMaxLen)
	if c.filter.Acceptable(card.Summary) {
		return card, true
	}

	// re-anchor on an event or a quantity before giving up
	switch {
	case len(f.events) > 0:
		card.Summary = f.events[0] + " 话题升温"
	case f.quantity != "":
		card.Summary = f.quantity + " 相关讨论升温"
	default:
		return Card{}, false
	}
	return card, c.filter.Acceptable(card.Summary)
}

func oneLiner(anchor string, events, keywords []string) string {
	kw := ""
	if len(keywords) > 0 {
		kw = strings.Join(keywords[:min(2, len(keywords))], "/")
	}
	switch {
	case anchor != "" && len(events) > 0 && anchor != events[0]:
		return fmt.Sprintf("%s %s话题升温", anchor, events[0])
	case anchor != "" && kw != "":
		return fmt.Sprintf("%s 讨论集中：%s", anchor, kw)
	case anchor != "":
		return anchor + " 讨论升温"
	case len(events) > 0 && kw != "":
		return fmt.Sprintf("%s 话题升温：%s", events[0], kw)
	case len(events) > 0:
		return events[0] + " 话题升温"
	case kw != "":
		return kw + " 成为讨论焦点"
	default:
		return "热点话题讨论升温"
	}
}
