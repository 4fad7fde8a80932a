package signals

import "math"

// Plan biases.
const (
	BiasLong  = "偏多"
	BiasShort = "偏空"
	BiasWait  = "观望"
)

// TrendPolicy decides when a plan may lean directionally. Everything below
// the thresholds is reported as 观望.
type TrendPolicy struct {
	MinPrice1h  float64
	MinPrice24h float64
	MinOI24h    float64
}

// DefaultTrendPolicy requires 3% on the hour, 8% on the day and 10% OI growth or decay over 24h.
func DefaultTrendPolicy() TrendPolicy {
	return TrendPolicy{MinPrice1h: 3, MinPrice24h: 8, MinOI24h: 10}
}

func (p TrendPolicy) withDefaults() TrendPolicy {
	d := DefaultTrendPolicy()
	if p.MinPrice1h <= 0 {
		p.MinPrice1h = d.MinPrice1h
	}
	if p.MinPrice24h <= 0 {
		p.MinPrice24h = d.MinPrice24h
	}
	if p.MinOI24h <= 0 {
		p.MinOI24h = d.MinOI24h
	}
	return p
}

// Direction returns BiasLong or BiasShort for an extreme trend, BiasWait otherwise.
func (p TrendPolicy) Direction(it Item) string {
	p = p.withDefaults()
	if it.PriceChange1h == nil || it.PriceChange24h == nil || it.OIChange24h == nil {
		return BiasWait
	}
	p1, p24 := *it.PriceChange1h, *it.PriceChange24h
	if math.Abs(p1) < p.MinPrice1h || math.Abs(p24) < p.MinPrice24h {
		return BiasWait
	}
	if math.Abs(*it.OIChange24h) < p.MinOI24h {
		return BiasWait
	}
	sign := math.Signbit(p1)
	if math.Signbit(p24) != sign {
		return BiasWait
	}
	if it.PriceChange4h != nil && *it.PriceChange4h != 0 && math.Signbit(*it.PriceChange4h) != sign {
		return BiasWait
	}
	if sign {
		return BiasShort
	}
	return BiasLong
}

// Enforce returns the bias allowed for the item given a proposed one.
// Unknown values and directional calls the trend does not support become 观望.
func (p TrendPolicy) Enforce(it Item, proposed string) string {
	switch proposed {
	case BiasLong, BiasShort:
		if p.Direction(it) == proposed {
			return proposed
		}
	}
	return BiasWait
}
