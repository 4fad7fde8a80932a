package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-digest/internal/market"
)

func ramp(n int, start, step float64) []market.Bar {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = market.Bar{OpenTime: t0.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100}
	}
	return bars
}

func TestComputeIndicatorsUptrend(t *testing.T) {
	bars := ramp(30, 100, 1)
	bars[len(bars)-1].Volume = 300
	ind := ComputeIndicators("1h", bars)
	require.NotNil(t, ind)

	assert.Equal(t, 129.0, ind.Last)
	assert.Equal(t, 130.0, ind.SwingHigh)
	assert.Equal(t, 109.0, ind.SwingLow, "摆动区间只看最近 20 根")
	assert.Equal(t, RangeHigh, ind.RangeLoc)
	require.NotNil(t, ind.RSI)
	assert.InDelta(t, 99.9, *ind.RSI, 0.01, "只有上涨时 RSI 接近 100")
	require.NotNil(t, ind.ATRPct)
	assert.InDelta(t, 2.0/129*100, *ind.ATRPct, 1e-9)
	require.NotNil(t, ind.EMASlopePct)
	assert.Greater(t, *ind.EMASlopePct, 0.0)
	require.NotNil(t, ind.VolumeRatio)
	assert.InDelta(t, 3.0, *ind.VolumeRatio, 1e-9)
}

func TestComputeIndicatorsShortSeries(t *testing.T) {
	ind := ComputeIndicators("4h", ramp(5, 10, -1))
	require.NotNil(t, ind)
	assert.Nil(t, ind.RSI)
	assert.Nil(t, ind.ATRPct)
	assert.Nil(t, ind.EMA20)
	assert.Nil(t, ind.VolumeRatio)
	assert.Equal(t, RangeLow, ind.RangeLoc)

	assert.Nil(t, ComputeIndicators("1h", nil))
}

func TestRSIFlat(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 5
	}
	require.NotNil(t, rsi(flat, 14))
	assert.Equal(t, 50.0, *rsi(flat, 14))
}
