package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTickHonoursOffset(t *testing.T) {
	s := New(Options{Interval: time.Hour, Offset: 30 * time.Second}, zerolog.Nop())

	now := time.Date(2026, 3, 1, 10, 0, 10, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC), s.nextTick(now))

	now = time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 30, 0, time.UTC), s.nextTick(now), "恰好到点时应排到下一个周期")

	now = time.Date(2026, 3, 1, 10, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 30, 0, time.UTC), s.nextTick(now))
}

func TestBoundaryUsesLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	s := New(Options{Interval: time.Hour, Location: kolkata}, zerolog.Nop())

	now := time.Date(2026, 3, 1, 10, 50, 0, 0, kolkata)
	b := s.boundary(now)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, kolkata).Unix(), b.Unix(), "整点应按本地时区对齐")
}

func TestRunFiresAndSurvivesErrors(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond, RunOnStart: true}, zerolog.Nop())

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("tick failed")
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未按时触发")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3), "单次失败不应中断调度")
}
