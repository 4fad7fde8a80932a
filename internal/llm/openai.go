package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIOptions configure the OpenAI-compatible backend.
type OpenAIOptions struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
}

// OpenAI implements Completer and Embedder against the OpenAI API or a compatible server.
type OpenAI struct {
	client     *openai.Client
	chatModel  string
	embedModel string
	configured bool
	disabled   atomic.Bool
}

// NewOpenAI constructs the client. Missing key leaves it unavailable.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
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
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	client := openai.NewClient(reqOpts...)

	chat := opts.ChatModel
	if chat == "" {
		chat = string(openai.ChatModelGPT4oMini)
	}
	embed := opts.EmbeddingModel
	if embed == "" {
		embed = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	return &OpenAI{
		client:     &client,
		chatModel:  chat,
		embedModel: embed,
		configured: opts.APIKey != "",
	}
}

// Model returns the chat model name.
func (c *OpenAI) Model() string { return c.chatModel }

// Complete runs one chat completion.
func (c *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.configured {
		return "", ErrUnavailable
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Available reports a configured key and no earlier hard failure in this process.
func (c *OpenAI) Available() bool {
	return c.configured && !c.disabled.Load()
}

// Embed returns one vector per input, in order.
func (c *OpenAI) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		if ctx.Err() == nil {
			c.disabled.Store(true)
		}
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var (
	_ Completer = (*OpenAI)(nil)
	_ Embedder  = (*OpenAI)(nil)
)
