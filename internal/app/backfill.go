package app

import (
	"context"
	"errors"
	"time"

	"market-digest/internal/window"
)

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From        time.Time
	To          time.Time
	ArtifactDir string
}

// Backfill re-renders past windows into the artifact directory. It never
// delivers and skips the radar, whose scan only describes the present.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	interval := a.Config.Scheduler.Interval
	if interval <= 0 {
		return errors.New("scheduler interval 配置不合法")
	}
	dir := opts.ArtifactDir
	if dir == "" {
		dir = a.Config.Pipeline.ArtifactDir
	}
	if dir == "" {
		return errors.New("回填需要 --artifact-dir 或 pipeline.artifact_dir")
	}

	loc, err := window.LoadZone(a.Config.Pipeline.Timezone)
	if err != nil {
		return err
	}
	boundaries := windowEnds(opts.From, opts.To, interval, loc)
	if len(boundaries) == 0 {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	res, err := a.openResources(ctx)
	if err != nil {
		return err
	}
	defer res.close()

	p, err := a.newPipeline(res, nil, buildOptions{noDelivery: true, noRadar: true, artifactDir: dir})
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for _, end := range boundaries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pc, err := p.RunWindow(ctx, end)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Time("window_end", end).Msg("回填失败")
			continue
		}
		processed++
		a.Logger.Info().Str("window", pc.Window.Key).Int("items", len(pc.Items)).Int("topics", len(pc.Topics)).Msg("回填窗口完成")
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分窗口回填失败，请检查日志")
	}
	return nil
}

// windowEnds lists the interval boundaries in (from, to], aligned in loc.
func windowEnds(from, to time.Time, interval time.Duration, loc *time.Location) []time.Time {
	var out []time.Time
	end := alignForward(from, interval, loc)
	if !end.After(from) {
		end = end.Add(interval)
	}
	for ; !end.After(to); end = end.Add(interval) {
		out = append(out, end)
	}
	return out
}

func alignForward(t time.Time, interval time.Duration, loc *time.Location) time.Time {
	_, offset := t.In(loc).Zone()
	shift := time.Duration(offset) * time.Second
	truncated := t.Add(shift).Truncate(interval).Add(-shift)
	if truncated.Before(t) {
		return truncated.Add(interval)
	}
	return truncated
}
