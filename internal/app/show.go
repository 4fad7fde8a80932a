package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"market-digest/internal/delivery"
	"market-digest/internal/storage"
)

// Show prints recent delivery ledger entries, or archived runs with opts.Runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	res, err := a.openResources(ctx)
	if err != nil {
		return err
	}
	defer res.close()

	if opts.Runs {
		if res.pg == nil {
			return errors.New("database not configured; cannot show runs")
		}
		runs, err := res.pg.ListRecentRuns(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return printRuns(os.Stdout, runs)
	}

	var lister delivery.Lister
	switch a.Config.Delivery.Store {
	case "postgres":
		if res.pg != nil {
			lister = res.pg
		}
	case "redis":
		if res.redis != nil {
			lister = storage.NewRedisStore(res.redis, storage.RedisOptions{Prefix: a.Config.Delivery.Prefix})
		}
	}
	if lister == nil {
		return fmt.Errorf("delivery.store=%s keeps no shared ledger; nothing to show", a.Config.Delivery.Store)
	}

	records, err := lister.Recent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return printRecords(os.Stdout, records)
}

func printRecords(out io.Writer, records []delivery.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "no deliveries found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Window\tHash\tStatus\tChunks\tReserved (UTC)\tDelivered (UTC)")
	for _, r := range records {
		delivered := "-"
		if r.DeliveredAt != nil {
			delivered = r.DeliveredAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\n",
			r.Key.WindowKey,
			shortHash(r.Key.Hash),
			r.Status,
			r.Chunks,
			r.ReservedAt.UTC().Format(time.RFC3339),
			delivered,
		)
	}
	return writer.Flush()
}

func printRuns(out io.Writer, runs []storage.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tWindow\tHash\tResult\tElapsed(s)\tRun")
	for _, r := range runs {
		result := "failed"
		switch {
		case r.Delivered:
			result = "delivered"
		case r.Skipped:
			result = "skipped"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%.1f\t%s\n",
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.WindowKey,
			shortHash(r.ContentHash),
			result,
			r.ElapsedSeconds,
			r.ID,
		)
	}
	return writer.Flush()
}

func shortHash(h string) string {
	h = sanitizeInline(h)
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "-"
	}
	return h
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
