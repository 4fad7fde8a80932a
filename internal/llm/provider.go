package llm

import (
	"fmt"
	"strings"
)

// Options select and configure the chat and embedding backends.
type Options struct {
	Provider  string
	OpenAI    OpenAIOptions
	Anthropic AnthropicOptions
}

// NewCompleter returns the configured chat backend, or nil when disabled.
func NewCompleter(opts Options) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "none", "off":
		return nil, nil
	case "openai":
		return NewOpenAI(opts.OpenAI), nil
	case "anthropic":
		return NewAnthropic(opts.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}

// NewEmbedder returns the embedding backend. It is always OpenAI-compatible;
// without a key it reports unavailable.
func NewEmbedder(opts Options) Embedder {
	return NewOpenAI(opts.OpenAI)
}
