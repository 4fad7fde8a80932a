package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Channel 发送单条已分片文本。
type Channel interface {
	Send(ctx context.Context, chunk string) error
}

// TelegramChannel 通过 Telegram Bot API 推送消息。
type TelegramChannel struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramChannel 构造 Telegram 推送通道。
func NewTelegramChannel(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "delivery_telegram").Logger(),
	}
}

// Send 调用 sendMessage API 推送纯文本。
func (c *TelegramChannel) Send(ctx context.Context, chunk string) error {
	payload := map[string]any{
		"chat_id":                  c.chatID,
		"text":                     chunk,
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
	}

	c.logger.Debug().Int("runes", len([]rune(chunk))).Msg("分片已发送 (Telegram)")
	return nil
}

// WriterChannel 把分片写到 io.Writer，用于本地调试与 dry-run。
type WriterChannel struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterChannel wraps out; chunks are separated by a rule line.
func NewWriterChannel(out io.Writer) *WriterChannel {
	return &WriterChannel{out: out}
}

func (c *WriterChannel) Send(_ context.Context, chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, chunk); err != nil {
		return err
	}
	if !strings.HasSuffix(chunk, "\n") {
		if _, err := io.WriteString(c.out, "\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.out, "----\n")
	return err
}

var (
	_ Channel = (*TelegramChannel)(nil)
	_ Channel = (*WriterChannel)(nil)
)
