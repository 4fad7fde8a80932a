package signals

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Ranking weights. OI moves dominate; 24h context breaks ties between
// alerts with similar hourly moves.
const (
	weightOI1h    = 1.0
	weightPrice1h = 0.6
	weightOI24h   = 0.25
	weightPx24h   = 0.15
)

// Item is one enriched OI signal.
type Item struct {
	Symbol         string
	Price          decimal.Decimal
	PriceChange1h  *float64
	PriceChange4h  *float64
	PriceChange24h *float64
	OIChange1h     *float64
	OIChange4h     *float64
	OIChange24h    *float64
	OINotional     decimal.Decimal
	MarketCap      *decimal.Decimal
	FDV            *decimal.Decimal
	Indicators1h   *Indicators
	Indicators4h   *Indicators
	Quadrant       string
	Flow           string
	Score          float64
	Alert          Observation
}

// Score computes the ranking score; missing components count as zero.
func Score(it Item) float64 {
	s := weightOI1h*absOrZero(it.OIChange1h) +
		weightPrice1h*absOrZero(it.PriceChange1h) +
		weightOI24h*absOrZero(it.OIChange24h) +
		weightPx24h*absOrZero(it.PriceChange24h)
	return math.Round(s*1000) / 1000
}

// Rank scores items and sorts them, highest first. Ties keep symbol order.
func Rank(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Score = Score(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Top returns at most n leading items.
func Top(items []Item, n int) []Item {
	if n < 0 || len(items) <= n {
		return items
	}
	return items[:n]
}

func priceOf(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
