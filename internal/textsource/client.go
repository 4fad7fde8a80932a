// Package textsource reads chat transcripts from the local Telegram service.
package textsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog"

	"market-digest/internal/textproc"
)

// Message is one chat message.
type Message struct {
	ID        string
	ChannelID string
	SenderID  string
	Text      string
	Date      time.Time
}

// Source yields chat messages for a channel and time range.
type Source interface {
	Fetch(ctx context.Context, channel string, since, until time.Time, limit int) ([]Message, error)
}

// Options configure the HTTP client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Client talks to the Telegram service HTTP API.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	retries   int
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    zerolog.Logger
}

func New(opts Options, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://127.0.0.1:8000"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "marketdigest/1.0"
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = 2
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 4 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout},
		retries:   opts.Retries,
		baseDelay: opts.BaseDelay,
		maxDelay:  opts.MaxDelay,
		logger:    logger.With().Str("component", "textsource").Logger(),
	}
}

// statusError is a non-2xx reply; 4xx other than 429 is not retried.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tg service error: status %d body=%s", e.Code, e.Body)
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	policy := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return retryable(err) }).
		WithBackoff(c.baseDelay, c.maxDelay).
		WithMaxRetries(c.retries).
		ReturnLastFailure().
		Build()

	return failsafe.With[[]byte](policy).WithContext(ctx).Get(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("build tg request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call tg service: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("read tg response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &statusError{Code: resp.StatusCode, Body: textproc.Truncate(string(raw), 200)}
		}
		return raw, nil
	})
}

// Healthy reports whether /health answers ok.
func (c *Client) Healthy(ctx context.Context) bool {
	raw, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("tg service health check failed")
		return false
	}
	var h struct {
		OK     bool   `json:"ok"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return false
	}
	return h.OK || strings.EqualFold(h.Status, "ok")
}

// Replay asks the service to backfill a channel range into its cache.
func (c *Client) Replay(ctx context.Context, channel string, since, until time.Time, limit int) error {
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return fmt.Errorf("replay channel %q: %w", channel, err)
	}
	payload := map[string]any{
		"channel": id,
		"limit":   limit,
		"since":   since.Format(time.RFC3339),
		"until":   until.Format(time.RFC3339),
	}
	_, err = c.do(ctx, http.MethodPost, "/replay", payload)
	return err
}

// Fetch lists messages of a channel in [since, until).
func (c *Client) Fetch(ctx context.Context, channel string, since, until time.Time, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("since", since.Format(time.RFC3339))
	q.Set("until", until.Format(time.RFC3339))
	path := "/channels/" + url.PathEscape(channel) + "/messages?" + q.Encode()

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		m := r.message(channel)
		if m.Text == "" {
			continue
		}
		out = append(out, m)
	}
	c.logger.Debug().Str("channel", channel).Int("messages", len(out)).Msg("fetched messages")
	return out, nil
}

type wireMessage struct {
	ID       any    `json:"id"`
	SenderID any    `json:"sender_id"`
	RawText  string `json:"raw_text"`
	Text     string `json:"text"`
	Message  string `json:"message"`
	Content  string `json:"content"`
	Date     string `json:"date"`
}

func (w wireMessage) message(channel string) Message {
	text := w.RawText
	for _, alt := range []string{w.Text, w.Message, w.Content} {
		if strings.TrimSpace(text) != "" {
			break
		}
		text = alt
	}
	m := Message{
		ID:        scalar(w.ID),
		ChannelID: channel,
		SenderID:  scalar(w.SenderID),
		Text:      strings.TrimSpace(text),
	}
	if t, err := time.Parse(time.RFC3339, w.Date); err == nil {
		m.Date = t
	}
	return m
}

func scalar(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// decodeMessages accepts either a bare list or {"messages": [...]}.
func decodeMessages(raw []byte) ([]wireMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	dec := func(b []byte, v any) error {
		d := json.NewDecoder(bytes.NewReader(b))
		d.UseNumber()
		return d.Decode(v)
	}
	if trimmed[0] == '[' {
		var rows []wireMessage
		if err := dec(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("decode tg messages: %w", err)
		}
		return rows, nil
	}
	var wrapped struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := dec(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode tg messages: %w", err)
	}
	return wrapped.Messages, nil
}

// ToTextproc adapts messages for the bot filter.
func ToTextproc(msgs []Message) []textproc.Message {
	out := make([]textproc.Message, len(msgs))
	for i, m := range msgs {
		out[i] = textproc.Message{SenderID: m.SenderID, Text: m.Text}
	}
	return out
}

var _ Source = (*Client)(nil)
