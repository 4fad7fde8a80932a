// Package delivery sends a rendered report at most once per (window, hash).
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/render"
)

// Result describes one Deliver call.
type Result struct {
	Key     Key
	Skipped bool
	// Status of the existing record when Skipped.
	Status Status
	Sent   int
}

// Deliverer couples the ledger with a channel.
type Deliverer struct {
	store   Store
	channel Channel
	logger  zerolog.Logger
}

func NewDeliverer(store Store, channel Channel, logger zerolog.Logger) *Deliverer {
	return &Deliverer{
		store:   store,
		channel: channel,
		logger:  logger.With().Str("component", "delivery").Logger(),
	}
}

// Deliver reserves the report key, sends every chunk in order and commits.
// An existing pending or delivered record turns the call into a no-op.
// A send failure releases the reservation so a later run can retry.
func (d *Deliverer) Deliver(ctx context.Context, rep render.Report) (Result, error) {
	key := Key{WindowKey: rep.WindowKey, Hash: rep.Hash}
	res := Result{Key: key}

	if len(rep.Chunks) == 0 {
		res.Skipped = true
		return res, nil
	}

	rsv, err := d.store.Reserve(ctx, key)
	if err != nil {
		return res, fmt.Errorf("%w: reserve: %v", ErrStoreUnavailable, err)
	}
	if !rsv.Acquired {
		res.Skipped = true
		res.Status = rsv.Status
		d.logger.Info().Str("window", key.WindowKey).Str("status", string(rsv.Status)).Msg("report already handled, skip")
		return res, nil
	}

	for i, chunk := range rep.Chunks {
		if err := d.channel.Send(ctx, chunk); err != nil {
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if relErr := d.store.Release(relCtx, key); relErr != nil {
				d.logger.Error().Err(relErr).Str("window", key.WindowKey).Msg("release reservation failed")
			}
			cancel()
			return res, fmt.Errorf("send chunk %d/%d: %w", i+1, len(rep.Chunks), err)
		}
		res.Sent++
	}

	if err := d.store.Commit(ctx, key, res.Sent); err != nil {
		return res, fmt.Errorf("%w: commit: %v", ErrStoreUnavailable, err)
	}
	d.logger.Info().Str("window", key.WindowKey).Int("chunks", res.Sent).Msg("report delivered")
	return res, nil
}
