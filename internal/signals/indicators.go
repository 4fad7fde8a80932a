package signals

import (
	"math"

	"market-digest/internal/market"
)

const (
	atrPeriod   = 14
	rsiPeriod   = 14
	emaPeriod   = 20
	swingWindow = 20
	volWindow   = 20

	RangeLow  = "低位"
	RangeMid  = "中部"
	RangeHigh = "高位"
)

// Indicators are derived from one kline series. Pointer fields are nil when
// the series is too short for that indicator.
type Indicators struct {
	Interval    string   `json:"interval"`
	Last        float64  `json:"last"`
	SwingHigh   float64  `json:"swing_high"`
	SwingLow    float64  `json:"swing_low"`
	EMA20       *float64 `json:"ema20,omitempty"`
	EMASlopePct *float64 `json:"ema20_slope_pct,omitempty"`
	RSI         *float64 `json:"rsi14,omitempty"`
	ATRPct      *float64 `json:"atr14_pct,omitempty"`
	RangePos    float64  `json:"range_pos"`
	RangeLoc    string   `json:"range_loc"`
	VolumeRatio *float64 `json:"vol_ratio,omitempty"`
}

// ComputeIndicators returns nil for an empty series.
func ComputeIndicators(interval string, bars []market.Bar) *Indicators {
	if len(bars) == 0 {
		return nil
	}
	closes := make([]float64, len(bars))
	vols := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		vols[i] = b.Volume
	}
	last := closes[len(closes)-1]
	ind := &Indicators{Interval: interval, Last: last}

	ind.SwingHigh, ind.SwingLow = swing(bars, swingWindow)

	hi, lo := swing(bars, len(bars))
	ind.RangePos = 0.5
	if hi > lo {
		ind.RangePos = (last - lo) / (hi - lo)
	}
	ind.RangeLoc = rangeLoc(ind.RangePos)

	ind.EMA20 = ema(closes, emaPeriod)
	if len(closes) > emaPeriod+1 {
		prev := ema(closes[:len(closes)-1], emaPeriod)
		if ind.EMA20 != nil && prev != nil {
			ind.EMASlopePct = market.PctChange(*ind.EMA20, *prev)
		}
	}
	ind.RSI = rsi(closes, rsiPeriod)
	if a := atr(bars, atrPeriod); a != nil && last != 0 {
		v := *a / last * 100
		ind.ATRPct = &v
	}
	ind.VolumeRatio = volumeRatio(vols, volWindow)
	return ind
}

func rangeLoc(pos float64) string {
	switch {
	case pos < 0.25:
		return RangeLow
	case pos > 0.75:
		return RangeHigh
	default:
		return RangeMid
	}
}

// swing returns the max high and min low of the last n bars.
func swing(bars []market.Bar, n int) (float64, float64) {
	if n > len(bars) {
		n = len(bars)
	}
	win := bars[len(bars)-n:]
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, b := range win {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}

// ema is seeded with the first value.
func ema(xs []float64, n int) *float64 {
	if len(xs) < n || n <= 0 {
		return nil
	}
	k := 2.0 / float64(n+1)
	e := xs[0]
	for _, x := range xs[1:] {
		e = x*k + e*(1-k)
	}
	return &e
}

// rsi uses plain sums over the last n changes.
func rsi(xs []float64, n int) *float64 {
	if len(xs) < n+1 {
		return nil
	}
	var gains, losses float64
	for i := len(xs) - n; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		if d >= 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	v := 50.0
	switch {
	case gains == 0 && losses == 0:
	case losses == 0:
		v = 100 - 100/(1+999)
	default:
		v = 100 - 100/(1+gains/losses)
	}
	return &v
}

// atr is the simple mean of the last n true ranges.
func atr(bars []market.Bar, n int) *float64 {
	if len(bars) < n+1 {
		return nil
	}
	var sum float64
	for i := len(bars) - n; i < len(bars); i++ {
		b, prev := bars[i], bars[i-1].Close
		tr := math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		sum += tr
	}
	v := sum / float64(n)
	return &v
}

// volumeRatio compares the last volume with the mean of the n before it.
func volumeRatio(vols []float64, n int) *float64 {
	if len(vols) < n+1 {
		return nil
	}
	var sum float64
	for _, v := range vols[len(vols)-1-n : len(vols)-1] {
		sum += v
	}
	mean := sum / float64(n)
	if mean == 0 {
		return nil
	}
	v := vols[len(vols)-1] / mean
	return &v
}
