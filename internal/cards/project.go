package cards

import (
	"fmt"
	"strings"

	"market-digest/internal/market"
	"market-digest/internal/signals"
	"market-digest/internal/textproc"
)

// Project converts one provenance variant into a card. ok is false when the
// variant has no usable subject.
func Project(p Provenance) (SocialCard, bool) {
	switch v := p.(type) {
	case ChatTopic:
		return fromChat(v)
	case SocialPost:
		return fromSocial(v)
	case MarketSignal:
		return fromSignal(v)
	case RadarHit:
		return fromRadar(v)
	default:
		return SocialCard{}, false
	}
}

func fromChat(v ChatTopic) (SocialCard, bool) {
	var subject market.Subject
	for _, a := range v.Card.RelatedAssets {
		if subject = subjectFromToken(a); subject.Key() != "" {
			break
		}
	}
	if subject.Key() == "" {
		return SocialCard{}, false
	}
	sentiment := v.Card.Sentiment
	if !textproc.ValidStance(sentiment) {
		sentiment = textproc.StanceNeutral
	}
	return SocialCard{
		Provenance: v,
		Source:     v.Source(),
		Subject:    subject,
		Sentiment:  sentiment,
		OneLiner:   v.Card.Summary,
		Signals:    capStrings(v.Card.Triggers, maxSignals),
		Drivers:    splitDrivers(strings.Join(v.Card.Triggers, "，"), maxDrivers),
		Risk:       defaultRisk,
		Evidence:   cleanEvidence(v.Card.Evidence),
	}, true
}

func fromSocial(v SocialPost) (SocialCard, bool) {
	t := v.Topic
	subject := market.Subject{
		Symbol:  t.Symbol,
		Address: t.Address,
		Chain:   t.Chain,
		Type:    market.SymbolType(strings.ToLower(strings.TrimSpace(t.SymbolType))),
	}
	if subject.Type != market.SymbolCEX && subject.Type != market.SymbolOnchain {
		subject.Type = ""
	}
	subject = subject.Normalize()
	if subject.Key() == "" {
		return SocialCard{}, false
	}

	whyBuy, whyNot := strings.TrimSpace(t.WhyBuy), strings.TrimSpace(t.WhyNot)
	oneLiner := strings.TrimSpace(t.OneLiner)
	if oneLiner == "" {
		oneLiner = composeOneLiner(whyBuy, whyNot)
	}
	sigs := capStrings(t.Signals, maxSignals)
	if len(sigs) == 0 {
		sigs = composeSignals(strings.TrimSpace(t.Trigger), strings.TrimSpace(t.Risk))
	}
	sentiment := strings.TrimSpace(t.Sentiment)
	if !textproc.ValidStance(sentiment) {
		sentiment = sentimentFromReasons(whyBuy, whyNot)
	}
	drivers := splitDrivers(whyBuy, maxDrivers)
	if len(drivers) == 0 && t.Trigger != "" {
		drivers = splitDrivers(t.Trigger, 2)
	}
	risk := strings.TrimSpace(t.Risk)
	if risk == "" {
		risk = defaultRisk
	}
	return SocialCard{
		Provenance: v,
		Source:     v.Source(),
		Subject:    subject,
		Sentiment:  sentiment,
		OneLiner:   oneLiner,
		Signals:    sigs,
		Drivers:    drivers,
		Risk:       risk,
		Evidence:   cleanEvidence(t.Evidence),
	}, true
}

func fromSignal(v MarketSignal) (SocialCard, bool) {
	it := v.Item
	subject := market.Subject{Symbol: it.Symbol, Type: market.SymbolCEX}.Normalize()
	if subject.Key() == "" {
		return SocialCard{}, false
	}
	card := SocialCard{
		Provenance: v,
		Source:     v.Source(),
		Subject:    subject,
		MarketCap:  it.MarketCap,
		FDV:        it.FDV,
		Sentiment:  textproc.StanceNeutral,
		OneLiner:   signalOneLiner(it),
		Risk:       defaultRisk,
	}
	if !it.Price.IsZero() {
		p := it.Price
		card.Price = &p
	}
	card.Signals = capStrings([]string{it.Quadrant, it.Flow}, maxSignals)
	if it.Indicators1h != nil {
		card.Signals = capStrings(append(card.Signals, "1h区间"+it.Indicators1h.RangeLoc), maxSignals)
	}
	if v.Plan != nil {
		switch v.Plan.Bias {
		case signals.BiasLong:
			card.Sentiment = textproc.StanceBullish
		case signals.BiasShort:
			card.Sentiment = textproc.StanceBearish
		}
		card.Drivers = capStrings(v.Plan.Triggers, maxDrivers)
		if len(v.Plan.RiskNotes) > 0 {
			card.Risk = v.Plan.RiskNotes[0]
		}
	}
	return card, true
}

func signalOneLiner(it signals.Item) string {
	parts := []string{it.Symbol}
	if it.PriceChange1h != nil {
		parts = append(parts, fmt.Sprintf("1h %+.1f%%", *it.PriceChange1h))
	}
	if it.OIChange1h != nil {
		parts = append(parts, fmt.Sprintf("OI %+.1f%%", *it.OIChange1h))
	}
	if it.Quadrant != "" {
		parts = append(parts, it.Quadrant)
	}
	return strings.Join(parts, " ")
}

func fromRadar(v RadarHit) (SocialCard, bool) {
	c := v.Candidate
	subject := market.Subject{Symbol: c.Symbol, Address: c.Address, Chain: c.Chain, Type: market.SymbolOnchain}.Normalize()
	if subject.Key() == "" {
		return SocialCard{}, false
	}
	label := subject.Symbol
	if label == "" {
		label = textproc.Truncate(subject.Address, 6) + "…"
	}
	card := SocialCard{
		Provenance: v,
		Source:     v.Source(),
		Subject:    subject,
		Sentiment:  textproc.StanceNeutral,
		Risk:       "链上新币，流动性与合约风险高",
		Evidence:   cleanEvidence(c.Examples),
	}
	if c.Mentions > 0 {
		card.OneLiner = fmt.Sprintf("%s 群内提及 %d 次", label, c.Mentions)
		card.Signals = append(card.Signals, fmt.Sprintf("提及%d", c.Mentions))
	} else {
		card.OneLiner = label + " 链上热度上升"
	}
	if c.Metrics != nil {
		card = card.withMetrics(*c.Metrics)
		if c.Metrics.LiquidityUSD != nil {
			card.Signals = append(card.Signals, "流动性$"+market.Compact(*c.Metrics.LiquidityUSD))
		}
	}
	card.Signals = capStrings(card.Signals, maxSignals)
	return card, true
}
