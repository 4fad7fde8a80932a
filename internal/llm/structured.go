package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// RetryOptions tune the single schema retry.
type RetryOptions struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (o RetryOptions) normalize() RetryOptions {
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay * 4
	}
	return o
}

// CompleteJSON asks for a JSON object, decodes it into T and validates it.
// A parse or validation failure is retried once with backoff; other errors are returned as is.
func CompleteJSON[T any](ctx context.Context, c Completer, system, user string, validate func(*T) error, opts RetryOptions) (T, error) {
	var zero T
	if c == nil {
		return zero, ErrUnavailable
	}
	opts = opts.normalize()

	policy := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool { return IsSchemaError(err) }).
		WithBackoff(opts.BaseDelay, opts.MaxDelay).
		WithMaxRetries(1).
		ReturnLastFailure().
		Build()

	return failsafe.With[T](policy).WithContext(ctx).Get(func() (T, error) {
		var out T
		raw, err := c.Complete(ctx, system, user)
		if err != nil {
			return out, err
		}
		content := cleanJSON(raw)
		if content == "" {
			return out, &SchemaError{Reason: "empty content"}
		}
		if err := json.Unmarshal([]byte(content), &out); err != nil {
			return out, &SchemaError{Reason: err.Error(), Content: content}
		}
		if validate != nil {
			if err := validate(&out); err != nil {
				return out, &SchemaError{Reason: err.Error(), Content: content}
			}
		}
		return out, nil
	})
}
