package market

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func hourlyBars(closes ...float64) []Bar {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{OpenTime: start.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return bars
}

func TestBuildSnapshot(t *testing.T) {
	bars := hourlyBars(100, 100, 100, 100, 80, 90, 100)
	oi := []oiPoint{
		{Contracts: 1000, Notional: decimal.NewFromInt(1)},
		{Contracts: 1100, Notional: decimal.NewFromInt(2)},
		{Contracts: 1210, Notional: decimal.NewFromInt(3)},
	}
	snap := buildSnapshot(bars, oi)

	assert.Equal(t, "100", snap.Price.String())
	if assert.NotNil(t, snap.PriceChange1h) {
		assert.InDelta(t, 11.111, *snap.PriceChange1h, 0.01)
	}
	if assert.NotNil(t, snap.PriceChange4h) {
		assert.InDelta(t, 0, *snap.PriceChange4h, 1e-9)
	}
	assert.Nil(t, snap.PriceChange24h, "历史不足 24 根时应为空")
	if assert.NotNil(t, snap.OIChange1h) {
		assert.InDelta(t, 10, *snap.OIChange1h, 1e-9)
	}
	assert.Nil(t, snap.OIChange4h)
	assert.Equal(t, "3", snap.OINotional.String())
}

func TestBuildSnapshotWithoutOI(t *testing.T) {
	snap := buildSnapshot(hourlyBars(1, 2), nil)
	assert.Nil(t, snap.OIChange1h)
	assert.True(t, snap.OINotional.IsZero())
}

func TestPairSuffix(t *testing.T) {
	b := NewBinance(BinanceOptions{}, zerolog.Nop())
	assert.Equal(t, "WIFUSDT", b.Pair("wif"))
	assert.Equal(t, "WIFUSDT", b.Pair("WIFUSDT"))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "950", Compact(decimal.NewFromInt(950)))
	assert.Equal(t, "12.3K", Compact(decimal.NewFromInt(12_345)))
	assert.Equal(t, "4.5M", Compact(decimal.NewFromInt(4_500_000)))
	assert.Equal(t, "2.0B", Compact(decimal.NewFromInt(2_000_000_000)))
	assert.Equal(t, "-1.5K", Compact(decimal.NewFromInt(-1_500)))
}
