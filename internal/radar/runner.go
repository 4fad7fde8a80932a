package radar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/window"
)

var errNoScanner = errors.New("no radar scanner configured")

// RunnerOptions tune the background scan. Zero values take defaults.
type RunnerOptions struct {
	ScanTimeout time.Duration
	MaxAge      time.Duration
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = 170 * time.Second
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 2 * time.Hour
	}
	return o
}

// Runner starts scans in the background and joins them with a timeout.
type Runner struct {
	scanner Scanner
	store   Store
	opts    RunnerOptions
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRunner accepts a nil store; recovery after a timeout is then impossible.
func NewRunner(scanner Scanner, store Store, opts RunnerOptions, logger zerolog.Logger) *Runner {
	return &Runner{
		scanner: scanner,
		store:   store,
		opts:    opts.withDefaults(),
		logger:  logger.With().Str("component", "radar").Logger(),
		now:     time.Now,
	}
}

// Start launches the scan and returns immediately. The scan outlives ctx
// cancellation up to ScanTimeout so its output still gets persisted.
func (r *Runner) Start(ctx context.Context, w window.Window) *Slot {
	slot := NewSlot()
	if r.scanner == nil {
		slot.Set(Output{}, errNoScanner)
		return slot
	}
	go func() {
		scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ScanTimeout)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				slot.Set(Output{}, fmt.Errorf("radar scan panic: %v", p))
			}
		}()

		out, err := r.scanner.Scan(scanCtx, w)
		if err == nil {
			out.WindowKey = w.Key
			if out.GeneratedAt.IsZero() {
				out.GeneratedAt = r.now()
			}
			if r.store != nil {
				if serr := r.store.Save(scanCtx, out); serr != nil {
					r.logger.Warn().Err(serr).Str("window", w.Key).Msg("persist radar output failed")
				}
			}
		}
		slot.Set(out, err)
	}()
	return slot
}

// JoinResult is the joined output plus diagnostics.
type JoinResult struct {
	Output      Output
	Recovered   bool
	Diagnostics []string
}

// Join waits for the slot up to timeout. On timeout or failure it falls back to
// the last persisted output when that is recent enough.
func (r *Runner) Join(ctx context.Context, slot *Slot, w window.Window, timeout time.Duration) JoinResult {
	var res JoinResult
	out, ok, err := slot.Wait(ctx, timeout)
	switch {
	case !ok:
		res.Diagnostics = append(res.Diagnostics, "radar_timeout")
	case errors.Is(err, errNoScanner):
		res.Diagnostics = append(res.Diagnostics, "radar_skipped:no_scanner")
	case err != nil:
		res.Diagnostics = append(res.Diagnostics, "radar_failed:"+err.Error())
	default:
		res.Output = out
		return res
	}

	if r.store == nil {
		return res
	}
	prev, err := r.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoOutput):
		return res
	case err != nil:
		res.Diagnostics = append(res.Diagnostics, "radar_load_failed:"+err.Error())
		return res
	}
	if r.now().Sub(prev.GeneratedAt) > r.opts.MaxAge {
		res.Diagnostics = append(res.Diagnostics, "radar_stale_output")
		return res
	}
	if prev.WindowKey != w.Key {
		res.Diagnostics = append(res.Diagnostics, "radar_previous_window:"+prev.WindowKey)
	}
	res.Output = prev
	res.Recovered = true
	return res
}
