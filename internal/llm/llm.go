// Package llm adapts hosted chat and embedding models to the narrow contracts the
// digest pipeline needs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable is returned when no backend is configured.
	ErrUnavailable = errors.New("llm: backend unavailable")
	// ErrEmptyResponse is returned when the model produced no content.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Completer turns a bounded prompt into raw model text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Embedder maps texts to fixed-length vectors.
type Embedder interface {
	// Available is a cheap check; it never loads or calls the model.
	Available() bool
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// SchemaError marks output that could not be parsed or failed validation.
// Only this class of failure is retried.
type SchemaError struct {
	Reason  string
	Content string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("llm schema: %s", e.Reason)
}

// IsSchemaError reports whether err is a parse or validation failure.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// cleanJSON strips code fences and prose around the outermost object.
func cleanJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
