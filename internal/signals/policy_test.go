package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pf(v float64) *float64 { return &v }

func TestTrendPolicyDirection(t *testing.T) {
	p := DefaultTrendPolicy()
	cases := []struct {
		name string
		item Item
		want string
	}{
		{"极端上涨", Item{PriceChange1h: pf(4), PriceChange4h: pf(6), PriceChange24h: pf(15), OIChange24h: pf(25)}, BiasLong},
		{"极端下跌", Item{PriceChange1h: pf(-5), PriceChange24h: pf(-12), OIChange24h: pf(-14)}, BiasShort},
		{"1h 幅度不足", Item{PriceChange1h: pf(2), PriceChange24h: pf(15), OIChange24h: pf(25)}, BiasWait},
		{"24h 幅度不足", Item{PriceChange1h: pf(4), PriceChange24h: pf(6), OIChange24h: pf(25)}, BiasWait},
		{"方向不一致", Item{PriceChange1h: pf(4), PriceChange24h: pf(-10), OIChange24h: pf(25)}, BiasWait},
		{"4h 反向", Item{PriceChange1h: pf(4), PriceChange4h: pf(-1), PriceChange24h: pf(10), OIChange24h: pf(25)}, BiasWait},
		{"持仓变化不足", Item{PriceChange1h: pf(4), PriceChange24h: pf(10), OIChange24h: pf(5)}, BiasWait},
		{"缺少数据", Item{PriceChange1h: pf(4), OIChange24h: pf(30)}, BiasWait},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Direction(tc.item))
		})
	}
}

func TestTrendPolicyEnforce(t *testing.T) {
	p := DefaultTrendPolicy()
	mild := Item{PriceChange1h: pf(1), PriceChange24h: pf(2), OIChange24h: pf(3)}
	strong := Item{PriceChange1h: pf(4), PriceChange24h: pf(15), OIChange24h: pf(25)}

	assert.Equal(t, BiasWait, p.Enforce(mild, BiasLong), "非极端行情的方向性判断应降级为观望")
	assert.Equal(t, BiasWait, p.Enforce(strong, BiasShort), "与趋势相反的方向应降级")
	assert.Equal(t, BiasLong, p.Enforce(strong, BiasLong))
	assert.Equal(t, BiasWait, p.Enforce(strong, "梭哈"))
}

func TestRankScore(t *testing.T) {
	items := []Item{
		{Symbol: "AAA", OIChange1h: pf(10)},
		{Symbol: "BBB", OIChange1h: pf(-8), PriceChange1h: pf(5), OIChange24h: pf(20), PriceChange24h: pf(-10)},
		{Symbol: "CCC"},
	}
	ranked := Rank(items)
	assert.Equal(t, "BBB", ranked[0].Symbol)
	assert.InDelta(t, 8+3+5+1.5, ranked[0].Score, 1e-9)
	assert.Equal(t, "AAA", ranked[1].Symbol)
	assert.Equal(t, 0.0, ranked[2].Score, "缺失字段按 0 计")
	assert.Len(t, Top(ranked, 2), 2)
	assert.Len(t, Top(ranked, 5), 3)
}
