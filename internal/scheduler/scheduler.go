package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every aligned interval with the boundary it fired for.
type TickFunc func(ctx context.Context, boundary time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// Offset delays each tick past the boundary so upstream data for the
	// closing window has landed.
	Offset       time.Duration
	Location     *time.Location
	StartupDelay time.Duration
	// RunOnStart fires once immediately for the current window before waiting.
	RunOnStart bool
}

// Scheduler drives boundary-aligned execution of digest runs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger(), now: time.Now}
}

// Run blocks, invoking the tick function at each aligned interval until ctx is cancelled.
// Tick errors are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.fire(ctx, tick, s.boundary(s.now()))
	}

	next := s.nextTick(s.now())
	for {
		delay := next.Sub(s.now())
		if delay < 0 {
			next = s.nextTick(s.now())
			delay = next.Sub(s.now())
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next window")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.fire(ctx, tick, s.boundary(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, boundary time.Time) {
	s.logger.Info().Time("boundary", boundary).Msg("executing scheduled tick")
	if err := tick(ctx, boundary); err != nil {
		s.logger.Error().Err(err).Time("boundary", boundary).Msg("tick execution failed")
	}
}

// nextTick is the first boundary+offset strictly after now.
func (s *Scheduler) nextTick(now time.Time) time.Time {
	t := s.boundary(now).Add(s.opts.Offset)
	for !t.After(now) {
		t = t.Add(s.opts.Interval)
	}
	return t
}

// boundary truncates t to the interval in the configured location, so hourly
// boundaries also hold for zones with non-hour UTC offsets.
func (s *Scheduler) boundary(t time.Time) time.Time {
	local := t.In(s.opts.Location)
	_, offset := local.Zone()
	shift := time.Duration(offset) * time.Second
	return local.Add(shift).Truncate(s.opts.Interval).Add(-shift)
}
