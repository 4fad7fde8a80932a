// Package pipeline runs one hourly digest window end to end.
package pipeline

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"market-digest/internal/budget"
	"market-digest/internal/cards"
	"market-digest/internal/delivery"
	"market-digest/internal/radar"
	"market-digest/internal/render"
	"market-digest/internal/signals"
	"market-digest/internal/textsource"
	"market-digest/internal/topics"
	"market-digest/internal/window"
)

// Context owns the mutable state of one run. Only the orchestrating goroutine touches it.
type Context struct {
	RunID  uuid.UUID
	Window window.Window
	Budget *budget.TimeBudget

	Messages       map[string][]textsource.Message
	SignalMessages []string
	HumanTexts     []string
	TopicTexts     []string

	Observations  []signals.Observation
	Items         []signals.Item
	Plans         []signals.Plan
	Topics        []topics.Card
	TopicStrategy string
	Radar         radar.Output
	Cards         []cards.SocialCard
	CardCounts    map[string]int
	Sentiment     string
	Watch         []string

	Report   render.Report
	Delivery delivery.Result

	Errors      []string
	LLMFailures []string
	Perf        map[string]float64
}

// NewContext opens a run for the hourly window containing at.
func NewContext(at time.Time, loc *time.Location, total time.Duration, clock budget.Clock) (*Context, error) {
	if loc == nil {
		return nil, errors.New("pipeline: nil location")
	}
	if total <= 0 {
		return nil, errors.New("pipeline: budget must be positive")
	}
	if clock == nil {
		clock = time.Now
	}
	w := window.Hourly(at, loc)
	if w.Key == "" {
		return nil, errors.New("pipeline: empty window key")
	}
	return &Context{
		RunID:    uuid.New(),
		Window:   w,
		Budget:   budget.New(clock(), total, clock),
		Messages: make(map[string][]textsource.Message),
		Perf:     make(map[string]float64),
	}, nil
}

// Diag appends non-empty diagnostics.
func (c *Context) Diag(items ...string) {
	for _, s := range items {
		if s != "" {
			c.Errors = append(c.Errors, s)
		}
	}
}

// LLMFailure appends non-empty model failures.
func (c *Context) LLMFailure(items ...string) {
	for _, s := range items {
		if s != "" {
			c.LLMFailures = append(c.LLMFailures, s)
		}
	}
}

// Diagnostics is the operator artifact written beside the report.
type Diagnostics struct {
	RunID       string             `json:"run_id"`
	WindowKey   string             `json:"window_key"`
	Since       time.Time          `json:"since"`
	Until       time.Time          `json:"until"`
	Hash        string             `json:"summary_hash"`
	Delivered   bool               `json:"delivered"`
	Skipped     bool               `json:"skipped"`
	Chunks      int                `json:"chunks"`
	Strategy    string             `json:"topic_strategy,omitempty"`
	Counts      map[string]int     `json:"card_counts,omitempty"`
	Errors      []string           `json:"errors"`
	LLMFailures []string           `json:"llm_failures"`
	Perf        map[string]float64 `json:"perf"`
	ElapsedS    float64            `json:"elapsed_s"`
}

// Diagnostics snapshots the operator view of the run.
func (c *Context) Diagnostics() Diagnostics {
	d := Diagnostics{
		RunID:       c.RunID.String(),
		WindowKey:   c.Window.Key,
		Since:       c.Window.Start,
		Until:       c.Window.End,
		Hash:        c.Report.Hash,
		Delivered:   c.Delivery.Sent > 0 && !c.Delivery.Skipped,
		Skipped:     c.Delivery.Skipped,
		Chunks:      len(c.Report.Chunks),
		Strategy:    c.TopicStrategy,
		Counts:      c.CardCounts,
		Errors:      append([]string{}, c.Errors...),
		LLMFailures: append([]string{}, c.LLMFailures...),
		Perf:        c.Perf,
		ElapsedS:    round3(c.Budget.Elapsed().Seconds()),
	}
	return d
}

// DiagnosticsJSON is the indented JSON form of Diagnostics.
func (c *Context) DiagnosticsJSON() ([]byte, error) {
	return json.MarshalIndent(c.Diagnostics(), "", "  ")
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
