package delivery_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest/internal/delivery"
	"market-digest/internal/render"
	"market-digest/internal/storage"
)

type recordingChannel struct {
	sent   []string
	failAt int
}

func (c *recordingChannel) Send(_ context.Context, chunk string) error {
	if c.failAt > 0 && len(c.sent)+1 == c.failAt {
		return errors.New("bot blocked")
	}
	c.sent = append(c.sent, chunk)
	return nil
}

type brokenStore struct{}

func (brokenStore) Reserve(context.Context, delivery.Key) (delivery.Reservation, error) {
	return delivery.Reservation{}, errors.New("connection refused")
}
func (brokenStore) Commit(context.Context, delivery.Key, int) error { return nil }
func (brokenStore) Release(context.Context, delivery.Key) error     { return nil }

func report() render.Report {
	return render.Report{
		WindowKey: "2026-03-01 14:00",
		Hash:      "h1",
		Chunks:    []string{"*a*\n", "*b*\n"},
	}
}

func TestDeliverOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.Minute)
	ch := &recordingChannel{}
	d := delivery.NewDeliverer(store, ch, zerolog.Nop())

	first, err := d.Deliver(ctx, report())
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 2, first.Sent)

	second, err := d.Deliver(ctx, report())
	require.NoError(t, err)
	if !second.Skipped {
		t.Fatal("同一窗口同一内容第二次投递应跳过")
	}
	assert.Equal(t, delivery.StatusDelivered, second.Status)
	assert.Equal(t, []string{"*a*\n", "*b*\n"}, ch.sent)

	changed := report()
	changed.Hash = "h2"
	third, err := d.Deliver(ctx, changed)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
}

func TestDeliverSendFailureReleases(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.Minute)
	ch := &recordingChannel{failAt: 2}
	d := delivery.NewDeliverer(store, ch, zerolog.Nop())

	res, err := d.Deliver(ctx, report())
	require.Error(t, err)
	assert.Equal(t, 1, res.Sent)

	rsv, err := store.Reserve(ctx, delivery.Key{WindowKey: "2026-03-01 14:00", Hash: "h1"})
	require.NoError(t, err)
	assert.True(t, rsv.Acquired, "发送失败后预约应被释放")
}

func TestDeliverStoreUnavailable(t *testing.T) {
	ch := &recordingChannel{}
	d := delivery.NewDeliverer(brokenStore{}, ch, zerolog.Nop())

	_, err := d.Deliver(context.Background(), report())
	assert.ErrorIs(t, err, delivery.ErrStoreUnavailable)
	assert.Empty(t, ch.sent)
}

func TestDeliverEmptyReport(t *testing.T) {
	ch := &recordingChannel{}
	d := delivery.NewDeliverer(storage.NewMemoryStore(0), ch, zerolog.Nop())

	res, err := d.Deliver(context.Background(), render.Report{WindowKey: "k"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestTelegramChannelSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	ch := delivery.NewTelegramChannel("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := ch.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Telegram Send 应成功: %v", err)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received["text"] != "hello" {
		t.Fatalf("text 不正确: %#v", received)
	}
}

func TestTelegramChannelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	ch := delivery.NewTelegramChannel("token", "chat", srv.URL, time.Second, zerolog.Nop())
	err := ch.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestWriterChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := delivery.NewWriterChannel(&buf)
	require.NoError(t, ch.Send(context.Background(), "a"))
	require.NoError(t, ch.Send(context.Background(), "b\n"))
	assert.Equal(t, "a\n----\nb\n----\n", buf.String())
}
