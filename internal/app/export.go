package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"market-digest/internal/pipeline"
	"market-digest/internal/render"
)

// signalSteps are the steps an export needs: fetch, parse and enrich.
var signalSteps = []string{pipeline.StepTGHealth, pipeline.StepTGFetch, pipeline.StepOIParse, pipeline.StepOIEnrich}

// Export runs the signal half of a window and writes the ranked items as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := a.openResources(ctx)
	if err != nil {
		return err
	}
	defer res.close()

	p, err := a.newPipeline(res, nil, buildOptions{only: signalSteps, noDelivery: true})
	if err != nil {
		return err
	}
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	pc, err := p.RunWindow(ctx, at)
	if err != nil {
		return err
	}
	if len(pc.Items) == 0 {
		a.Logger.Info().Str("window", pc.Window.Key).Strs("diagnostics", pc.Errors).Msg("no signals found for export window")
		return nil
	}
	a.Logger.Info().Str("window", pc.Window.Key).Int("items", len(pc.Items)).Msg("exporting signals")

	if opts.CSVPath != "" {
		if err := render.WriteSignalCSV(opts.CSVPath, pc.Items); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		err := render.WriteSignalChart(opts.PNGPath, render.Title(pc.Window.End), pc.Items)
		if errors.Is(err, render.ErrNothingToChart) {
			a.Logger.Warn().Msg("no item carries a 1h OI change; chart skipped")
			return nil
		}
		return err
	}
	return nil
}
