package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const snapshotHistory = 25

// BinanceOptions parameterise the USDT-M futures adapter.
type BinanceOptions struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	QuoteAsset string
	Timeout    time.Duration
}

// Binance reads klines and open-interest history from Binance USDT-M futures.
type Binance struct {
	client *futures.Client
	quote  string
	logger zerolog.Logger
}

// NewBinance constructs the adapter. Public endpoints only, keys may be empty.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	quote := strings.ToUpper(strings.TrimSpace(opts.QuoteAsset))
	if quote == "" {
		quote = "USDT"
	}

	client := binance.NewFuturesClient(opts.APIKey, opts.SecretKey)
	client.HTTPClient = &http.Client{Timeout: timeout}
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		client.BaseURL = base
	}

	return &Binance{
		client: client,
		quote:  quote,
		logger: logger.With().Str("component", "binance").Logger(),
	}
}

// Pair maps a bare ticker to its perpetual contract symbol.
func (b *Binance) Pair(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, b.quote) {
		return s
	}
	return s + b.quote
}

// Klines returns up to limit candles, oldest first.
func (b *Binance) Klines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	raw, err := b.client.NewKlinesService().
		Symbol(b.Pair(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}
	bars := make([]Bar, 0, len(raw))
	for _, k := range raw {
		bar, err := barFromKline(k)
		if err != nil {
			b.logger.Debug().Err(err).Str("symbol", symbol).Msg("跳过无法解析的 K 线")
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// Snapshot combines hourly klines and hourly open-interest history.
func (b *Binance) Snapshot(ctx context.Context, symbol string) (Snapshot, error) {
	bars, err := b.Klines(ctx, symbol, "1h", snapshotHistory)
	if err != nil {
		return Snapshot{}, err
	}
	if len(bars) == 0 {
		return Snapshot{}, fmt.Errorf("binance klines %s: empty", symbol)
	}

	hist, err := b.client.NewOpenInterestStatisticsService().
		Symbol(b.Pair(symbol)).
		Period("1h").
		Limit(snapshotHistory).
		Do(ctx)
	if err != nil {
		// price-only snapshot is still useful for ranking
		b.logger.Warn().Err(err).Str("symbol", symbol).Msg("获取持仓历史失败")
		hist = nil
	}

	points := make([]oiPoint, 0, len(hist))
	for _, h := range hist {
		contracts, err1 := strconv.ParseFloat(h.SumOpenInterest, 64)
		notional, err2 := decimal.NewFromString(h.SumOpenInterestValue)
		if err1 != nil || err2 != nil {
			continue
		}
		points = append(points, oiPoint{At: time.UnixMilli(h.Timestamp), Contracts: contracts, Notional: notional})
	}

	snap := buildSnapshot(bars, points)
	snap.Symbol = strings.ToUpper(symbol)
	return snap, nil
}

type oiPoint struct {
	At        time.Time
	Contracts float64
	Notional  decimal.Decimal
}

// buildSnapshot derives percent changes from hourly series, oldest first.
func buildSnapshot(bars []Bar, oi []oiPoint) Snapshot {
	var snap Snapshot
	if len(bars) == 0 {
		return snap
	}
	last := bars[len(bars)-1].Close
	snap.Price = decimal.NewFromFloat(last)
	snap.PriceChange1h = changeBack(closes(bars), 1)
	snap.PriceChange4h = changeBack(closes(bars), 4)
	snap.PriceChange24h = changeBack(closes(bars), 24)

	if len(oi) > 0 {
		series := make([]float64, len(oi))
		for i, p := range oi {
			series[i] = p.Contracts
		}
		snap.OIChange1h = changeBack(series, 1)
		snap.OIChange4h = changeBack(series, 4)
		snap.OIChange24h = changeBack(series, 24)
		snap.OINotional = oi[len(oi)-1].Notional
	}
	return snap
}

func closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// changeBack compares the last value with the one n steps earlier.
func changeBack(series []float64, n int) *float64 {
	if len(series) <= n {
		return nil
	}
	return PctChange(series[len(series)-1], series[len(series)-1-n])
}

func barFromKline(k *futures.Kline) (Bar, error) {
	vals := [5]float64{}
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("parse kline field %d: %w", i, err)
		}
		vals[i] = v
	}
	return Bar{
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

var _ DataSource = (*Binance)(nil)
