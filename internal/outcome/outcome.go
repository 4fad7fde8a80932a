// Package outcome tags the result of an optional step.
package outcome

import "fmt"

// Status is the tag of an Outcome.
type Status int

const (
	StatusOK Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is Ok(value), Skipped(reason) or Failed(reason).
type Outcome[T any] struct {
	Status Status
	Value  T
	Reason string
}

// Ok wraps a produced value.
func Ok[T any](v T) Outcome[T] { return Outcome[T]{Status: StatusOK, Value: v} }

// Skipped records a deliberate skip such as an exhausted budget.
func Skipped[T any](reason string) Outcome[T] {
	return Outcome[T]{Status: StatusSkipped, Reason: reason}
}

// Failed records a recovered failure.
func Failed[T any](reason string) Outcome[T] {
	return Outcome[T]{Status: StatusFailed, Reason: reason}
}

// Failedf formats the failure reason.
func Failedf[T any](format string, args ...any) Outcome[T] {
	return Failed[T](fmt.Sprintf(format, args...))
}

// IsOK reports an Ok outcome.
func (o Outcome[T]) IsOK() bool { return o.Status == StatusOK }

// Diagnostic renders a non-Ok outcome for the operator log, "" for Ok.
func (o Outcome[T]) Diagnostic(step string) string {
	if o.Status == StatusOK {
		return ""
	}
	return fmt.Sprintf("%s_%s:%s", step, o.Status, o.Reason)
}
