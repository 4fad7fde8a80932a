package budget

import "time"

// Clock returns the current instant. Tests substitute a fake.
type Clock func() time.Time

// TimeBudget tracks the wall-clock allowance of a single run.
// It is advisory: nothing is preempted, callers ask before starting optional work.
type TimeBudget struct {
	start time.Time
	total time.Duration
	now   Clock
}

// Start opens a budget at the current instant.
func Start(total time.Duration) *TimeBudget {
	return New(time.Now(), total, time.Now)
}

// New constructs a budget with an explicit start and clock.
func New(start time.Time, total time.Duration, now Clock) *TimeBudget {
	if now == nil {
		now = time.Now
	}
	if total < 0 {
		total = 0
	}
	return &TimeBudget{start: start, total: total, now: now}
}

// StartedAt returns the budget origin.
func (b *TimeBudget) StartedAt() time.Time { return b.start }

// Total returns the configured allowance.
func (b *TimeBudget) Total() time.Duration { return b.total }

// Elapsed returns time spent since start.
func (b *TimeBudget) Elapsed() time.Duration {
	d := b.now().Sub(b.start)
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns the unspent allowance, floored at zero.
func (b *TimeBudget) Remaining() time.Duration {
	r := b.total - b.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

// Over reports whether less than reserve remains.
func (b *TimeBudget) Over(reserve time.Duration) bool {
	return b.Remaining() < reserve
}

// Deadline is the instant at which Over(reserve) starts returning true.
func (b *TimeBudget) Deadline(reserve time.Duration) time.Time {
	return b.start.Add(b.total - reserve)
}

// Clamp bounds d to [lo, hi] after subtracting headroom from the remaining allowance.
// The radar join uses Clamp(8s, 5s, 170s).
func (b *TimeBudget) Clamp(headroom, lo, hi time.Duration) time.Duration {
	d := b.Remaining() - headroom
	if d > hi {
		d = hi
	}
	if d < lo {
		d = lo
	}
	return d
}
