package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"market-digest/internal/budget"
	"market-digest/internal/market"
)

// CapResolver supplies market cap and FDV for a ticker.
type CapResolver interface {
	Resolve(ctx context.Context, subject market.Subject) (market.Metrics, error)
}

// EnrichOptions tune the fan-out. Zero values take defaults.
type EnrichOptions struct {
	TopN        int
	Concurrency int
	Bars1h      int
	Bars4h      int
	Reserve     time.Duration
	TailReserve time.Duration
}

func (o EnrichOptions) withDefaults() EnrichOptions {
	if o.TopN <= 0 {
		o.TopN = 5
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Bars1h <= 0 {
		o.Bars1h = 120
	}
	if o.Bars4h <= 0 {
		o.Bars4h = 80
	}
	if o.Reserve <= 0 {
		o.Reserve = 20 * time.Second
	}
	if o.TailReserve <= 0 || o.TailReserve > o.Reserve {
		o.TailReserve = o.Reserve / 2
	}
	return o
}

// Enricher turns parsed alerts into ranked items with exchange context.
type Enricher struct {
	data     market.DataSource
	resolver CapResolver
	opts     EnrichOptions
	logger   zerolog.Logger
}

// NewEnricher accepts nil data or resolver; the matching fields then stay empty.
func NewEnricher(data market.DataSource, resolver CapResolver, opts EnrichOptions, logger zerolog.Logger) *Enricher {
	return &Enricher{
		data:     data,
		resolver: resolver,
		opts:     opts.withDefaults(),
		logger:   logger.With().Str("component", "signals").Logger(),
	}
}

// Enrich fetches data for the strongest alerts and returns them ranked.
// Per-symbol failures degrade that item and are reported as diagnostics.
// When b is nearly spent the alerts are returned as reported, without any call.
func (e *Enricher) Enrich(ctx context.Context, b *budget.TimeBudget, obs []Observation) ([]Item, []string) {
	if len(obs) == 0 {
		return nil, nil
	}
	if len(obs) > e.opts.TopN {
		obs = obs[:e.opts.TopN]
	}

	items := make([]Item, len(obs))
	diags := make([][]string, len(obs))
	var skip string
	switch {
	case e.data == nil:
		skip = "oi_enrich_skipped:no_market_data"
	case b != nil && b.Over(e.opts.Reserve):
		skip = "oi_enrich_skipped:budget"
	}
	if skip != "" {
		for i, o := range obs {
			items[i] = fromAlert(o)
		}
		return Rank(items), []string{skip}
	}
	if b != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, b.Deadline(e.opts.TailReserve))
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, o := range obs {
		i, o := i, o
		g.Go(func() error {
			items[i], diags[i] = e.enrichOne(gctx, o)
			return nil
		})
	}
	_ = g.Wait()

	var flat []string
	for _, d := range diags {
		flat = append(flat, d...)
	}
	return Rank(items), flat
}

func (e *Enricher) enrichOne(ctx context.Context, o Observation) (Item, []string) {
	it := fromAlert(o)
	var diags []string
	fail := func(stage string, err error) {
		diags = append(diags, fmt.Sprintf("oi_enrich_failed:%s:%s:%v", o.Symbol, stage, err))
		e.logger.Debug().Err(err).Str("symbol", o.Symbol).Str("stage", stage).Msg("signal enrichment degraded")
	}

	if snap, err := e.data.Snapshot(ctx, o.Symbol); err != nil {
		fail("snapshot", err)
	} else {
		mergeSnapshot(&it, snap)
	}

	if bars, err := e.data.Klines(ctx, o.Symbol, "1h", e.opts.Bars1h); err != nil {
		fail("klines_1h", err)
	} else {
		it.Indicators1h = ComputeIndicators("1h", bars)
		if it.PriceChange4h == nil && len(bars) >= 5 {
			it.PriceChange4h = market.PctChange(bars[len(bars)-1].Close, bars[len(bars)-5].Close)
		}
		if it.Price.IsZero() && len(bars) > 0 {
			it.Price = priceOf(bars[len(bars)-1].Close)
		}
	}
	if bars, err := e.data.Klines(ctx, o.Symbol, "4h", e.opts.Bars4h); err != nil {
		fail("klines_4h", err)
	} else {
		it.Indicators4h = ComputeIndicators("4h", bars)
	}

	if e.resolver != nil {
		m, err := e.resolver.Resolve(ctx, market.Subject{Symbol: o.Symbol, Type: market.SymbolCEX})
		if err != nil {
			fail("market_cap", err)
		} else {
			it.MarketCap, it.FDV = m.MarketCap, m.FDV
		}
	}

	it.Quadrant = Quadrant(it.PriceChange1h, it.OIChange1h)
	return it, diags
}

// fromAlert seeds an item with what the alert itself reported.
func fromAlert(o Observation) Item {
	oi := o.OIChangePct
	it := Item{
		Symbol:         o.Symbol,
		PriceChange1h:  o.Price1h,
		PriceChange24h: o.Price24h,
		OIChange1h:     &oi,
		Flow:           o.Flow,
		Alert:          o,
	}
	it.Quadrant = Quadrant(it.PriceChange1h, it.OIChange1h)
	return it
}

// mergeSnapshot prefers exchange figures and keeps alert values where the exchange has none.
func mergeSnapshot(it *Item, s market.Snapshot) {
	if !s.Price.IsZero() {
		it.Price = s.Price
	}
	it.OINotional = s.OINotional
	it.PriceChange1h = prefer(s.PriceChange1h, it.PriceChange1h)
	it.PriceChange4h = prefer(s.PriceChange4h, it.PriceChange4h)
	it.PriceChange24h = prefer(s.PriceChange24h, it.PriceChange24h)
	it.OIChange1h = prefer(s.OIChange1h, it.OIChange1h)
	it.OIChange4h = prefer(s.OIChange4h, it.OIChange4h)
	it.OIChange24h = prefer(s.OIChange24h, it.OIChange24h)
}

func prefer(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
