package cards

import (
	"market-digest/internal/radar"
	"market-digest/internal/signals"
	"market-digest/internal/topics"
)

// Source tags shown next to a card.
const (
	SourceChat   = "tg"
	SourceSocial = "twitter"
	SourceSignal = "oi"
	SourceRadar  = "radar"
)

// Provenance records where a card came from. The set of variants is closed.
type Provenance interface {
	Source() string
	isProvenance()
}

// ChatTopic is a distilled chat topic.
type ChatTopic struct {
	Card topics.Card
}

// SocialPost is a token discussed in social posts.
type SocialPost struct {
	Topic radar.SocialTopic
}

// MarketSignal is a ranked OI signal with its plan, when one exists.
type MarketSignal struct {
	Item signals.Item
	Plan *signals.Plan
}

// RadarHit is a token found by the radar scan or in chat contract pastes.
type RadarHit struct {
	Candidate radar.Candidate
}

func (ChatTopic) Source() string    { return SourceChat }
func (SocialPost) Source() string   { return SourceSocial }
func (MarketSignal) Source() string { return SourceSignal }
func (RadarHit) Source() string     { return SourceRadar }

func (ChatTopic) isProvenance()    {}
func (SocialPost) isProvenance()   {}
func (MarketSignal) isProvenance() {}
func (RadarHit) isProvenance()     {}
