package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedCompleter) Model() string { return "scripted" }

func (s *scriptedCompleter) Complete(context.Context, string, string) (string, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], err
	}
	return "", err
}

type payload struct {
	Items []string `json:"items"`
}

func nonEmpty(p *payload) error {
	if len(p.Items) == 0 {
		return errors.New("items empty")
	}
	return nil
}

var fastRetry = RetryOptions{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestCompleteJSONCleansFences(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"好的:\n```json\n{\"items\":[\"a\"]}\n```"}}
	got, err := CompleteJSON(context.Background(), c, "sys", "user", nonEmpty, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Items)
	assert.Equal(t, 1, c.calls)
}

func TestCompleteJSONRetriesSchemaFailureOnce(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"not json", `{"items":["b"]}`}}
	got, err := CompleteJSON(context.Background(), c, "sys", "user", nonEmpty, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.Items)
	assert.Equal(t, 2, c.calls)
}

func TestCompleteJSONGivesUpAfterOneRetry(t *testing.T) {
	c := &scriptedCompleter{replies: []string{`{"items":[]}`, `{"items":[]}`, `{"items":["late"]}`}}
	_, err := CompleteJSON(context.Background(), c, "sys", "user", nonEmpty, fastRetry)
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.Equal(t, 2, c.calls)
}

func TestCompleteJSONDoesNotRetryTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	c := &scriptedCompleter{errs: []error{boom}}
	_, err := CompleteJSON(context.Background(), c, "sys", "user", nonEmpty, fastRetry)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.calls)
}

func TestCompleteJSONNilCompleter(t *testing.T) {
	_, err := CompleteJSON[payload](context.Background(), nil, "", "", nil, fastRetry)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":{"b":2}}`, cleanJSON(`result: {"a":{"b":2}} done`))
	assert.Equal(t, "plain", cleanJSON("  plain "))
}
