package market

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"market-digest/internal/textproc"
)

// Bar is one OHLCV candle.
type Bar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Snapshot is the point-in-time derivatives view of one perpetual contract.
// Percent changes are nil when the history is too short to compute them.
type Snapshot struct {
	Symbol         string
	Price          decimal.Decimal
	PriceChange1h  *float64
	PriceChange4h  *float64
	PriceChange24h *float64
	OIChange1h     *float64
	OIChange4h     *float64
	OIChange24h    *float64
	OINotional     decimal.Decimal
}

// DataSource supplies exchange data for the signal pipeline.
type DataSource interface {
	Snapshot(ctx context.Context, symbol string) (Snapshot, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error)
}

// SymbolType distinguishes exchange tickers from on-chain tokens.
type SymbolType string

const (
	SymbolCEX     SymbolType = "cex"
	SymbolOnchain SymbolType = "onchain"
)

// Subject identifies what a card talks about.
type Subject struct {
	Symbol  string
	Type    SymbolType
	Address string
	Chain   string
}

// Normalize returns the subject with canonical symbol and address casing.
func (s Subject) Normalize() Subject {
	s.Symbol = textproc.NormalizeSubject(s.Symbol)
	s.Address = textproc.NormalizeSubject(s.Address)
	s.Chain = strings.ToLower(strings.TrimSpace(s.Chain))
	if s.Type == "" {
		if s.Address != "" {
			s.Type = SymbolOnchain
		} else {
			s.Type = SymbolCEX
		}
	}
	return s
}

// Key is the dedup key: address when known, ticker otherwise.
func (s Subject) Key() string {
	n := s.Normalize()
	if n.Address != "" {
		return "addr:" + n.Address
	}
	if n.Symbol != "" {
		return "sym:" + n.Symbol
	}
	return ""
}

// Metrics is resolver output. Nil fields were not resolved and must not be rendered.
type Metrics struct {
	Symbol       string
	Chain        string
	Address      string
	PriceUSD     *decimal.Decimal
	MarketCap    *decimal.Decimal
	FDV          *decimal.Decimal
	LiquidityUSD *decimal.Decimal
}

// Resolved reports whether any numeric field was filled.
func (m Metrics) Resolved() bool {
	return m.PriceUSD != nil || m.MarketCap != nil || m.FDV != nil
}

// PctChange returns (now-then)/then*100, or nil when then is zero.
func PctChange(now, then float64) *float64 {
	if then == 0 {
		return nil
	}
	v := (now - then) / then * 100
	return &v
}

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// Compact renders a USD figure as 950, 12.3K, 4.5M or 1.2B.
func Compact(d decimal.Decimal) string {
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(1) + "B"
	case abs.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(1) + "M"
	case abs.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(1) + "K"
	default:
		return d.StringFixed(0)
	}
}
