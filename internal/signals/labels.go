package signals

// Flow labels summarise a single alert.
const (
	FlowAddFollow = "增仓跟涨"
	FlowAddWeak   = "增仓但走弱"
	FlowCutRise   = "减仓上涨"
	FlowCutDrop   = "减仓/回撤"
)

// Quadrant labels classify price direction against positioning.
const (
	QuadrantLongBuild   = "多头加仓（价↑OI↑）"
	QuadrantShortBuild  = "空头加仓（价↓OI↑）"
	QuadrantShortCover  = "空头回补（价↑OI↓）"
	QuadrantLongUnwind  = "多头止损/出清（价↓OI↓）"
	QuadrantChop        = "轻微/震荡（价/OI变化不大）"
	QuadrantUnknown     = "资金方向不明"
	quadrantOIThreshold = 5.0
	quadrantPxThreshold = 1.0
)

// FlowLabel names an alert from its OI change and optional 1h price change.
func FlowLabel(oi float64, price1h *float64) string {
	up := price1h != nil && *price1h > 0
	switch {
	case oi > 0 && up:
		return FlowAddFollow
	case oi > 0:
		return FlowAddWeak
	case oi < 0 && up:
		return FlowCutRise
	default:
		return FlowCutDrop
	}
}

// Quadrant classifies a price/OI move. Either side missing yields QuadrantUnknown.
func Quadrant(price, oi *float64) string {
	if price == nil || oi == nil {
		return QuadrantUnknown
	}
	p, o := *price, *oi
	switch {
	case o >= quadrantOIThreshold && p >= quadrantPxThreshold:
		return QuadrantLongBuild
	case o >= quadrantOIThreshold && p <= -quadrantPxThreshold:
		return QuadrantShortBuild
	case o <= -quadrantOIThreshold && p >= quadrantPxThreshold:
		return QuadrantShortCover
	case o <= -quadrantOIThreshold && p <= -quadrantPxThreshold:
		return QuadrantLongUnwind
	default:
		return QuadrantChop
	}
}
