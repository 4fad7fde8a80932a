// Package radar runs the asynchronous token discovery scan and persists its output
// so a later join can recover it.
package radar

import (
	"context"
	"errors"
	"time"

	"market-digest/internal/market"
	"market-digest/internal/window"
)

// ErrNoOutput is returned by a Store that has nothing persisted yet.
var ErrNoOutput = errors.New("radar output not found")

// Candidate is one discovered token.
type Candidate struct {
	Address   string          `json:"addr"`
	Chain     string          `json:"chain,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Mentions  int             `json:"mentions"`
	Examples  []string        `json:"examples,omitempty"`
	Social    []string        `json:"social_evidence,omitempty"`
	Source    string          `json:"source"`
	Metrics   *market.Metrics `json:"metrics,omitempty"`
	SourceKey string          `json:"source_key,omitempty"`
}

// SocialTopic is a token discussed in social posts. An external collector may
// persist them with the output; SocialSummarizer builds them from Candidate.Social.
type SocialTopic struct {
	Symbol     string   `json:"symbol"`
	SymbolType string   `json:"symbol_type,omitempty"`
	Address    string   `json:"addr,omitempty"`
	Chain      string   `json:"chain,omitempty"`
	OneLiner   string   `json:"one_liner,omitempty"`
	Sentiment  string   `json:"sentiment,omitempty"`
	Signals    []string `json:"signals,omitempty"`
	WhyBuy     string   `json:"why_buy,omitempty"`
	WhyNot     string   `json:"why_not_buy,omitempty"`
	Trigger    string   `json:"trigger,omitempty"`
	Risk       string   `json:"risk,omitempty"`
	Evidence   []string `json:"evidence_snippets,omitempty"`
}

// Output is what one scan produced.
type Output struct {
	WindowKey   string        `json:"window_key"`
	GeneratedAt time.Time     `json:"generated_at"`
	Items       []Candidate   `json:"items"`
	Social      []SocialTopic `json:"social,omitempty"`
}

// Scanner discovers candidates for a window.
type Scanner interface {
	Scan(ctx context.Context, w window.Window) (Output, error)
}

// Store persists the latest output independently of any run.
type Store interface {
	Save(ctx context.Context, out Output) error
	Load(ctx context.Context) (Output, error)
}
