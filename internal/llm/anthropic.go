package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicOptions configure the Anthropic backend.
type AnthropicOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// Anthropic implements Completer with the Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	enabled   bool
}

// NewAnthropic constructs the client.
func NewAnthropic(opts AnthropicOptions) *Anthropic {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	client := anthropic.NewClient(reqOpts...)

	model := opts.Model
	if model == "" {
		model = "claude-haiku-4-5" // value of anthropic.ModelClaudeHaiku4_5 (SDK >= v1.14); SDK pinned to v1.9.0 for go1.21
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{client: &client, model: model, maxTokens: maxTokens, enabled: opts.APIKey != ""}
}

// Model returns the configured model name.
func (c *Anthropic) Model() string { return c.model }

// Complete sends one user turn with a system prompt.
func (c *Anthropic) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.enabled {
		return "", ErrUnavailable
	}
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		sb.WriteString(block.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

var _ Completer = (*Anthropic)(nil)
