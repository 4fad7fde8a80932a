package signals

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"market-digest/internal/textproc"
)

const (
	maxObservations = 8
	symbolScanRunes = 100
)

var (
	oiRE       = regexp.MustCompile(`(?i)(?:OI|openinterest|未平仓合约)[^0-9\-+]*([+\-]?\d+(?:\.\d+)?)%`)
	price1hRE  = regexp.MustCompile(`(?:3600秒|1h|1H|1小时|1小時)[^0-9\-+]*([+\-]?\d+(?:\.\d+)?)%`)
	price24hRE = regexp.MustCompile(`(?:24h|24H|24小时|24小時)[^0-9\-+]*([+\-]?\d+(?:\.\d+)?)%`)
	symbolRE   = regexp.MustCompile(`\b([A-Z0-9]{2,12})\b`)
	horizonRE  = regexp.MustCompile(`^\d+[HMD]$`)
)

var oiSymbolExclude = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "BNB": {}, "BSC": {}, "BASE": {},
	"USDT": {}, "USDC": {}, "USD": {}, "FDV": {}, "MCAP": {}, "DEX": {},
	"GMGN": {}, "OI": {}, "CA": {},
}

// Observation is one parsed open-interest alert.
type Observation struct {
	Symbol      string
	OIChangePct float64
	Price1h     *float64
	Price24h    *float64
	Flow        string
	Raw         string
}

// Up reports the arrow direction of the alert.
func (o Observation) Up() bool {
	return (o.Price1h != nil && *o.Price1h > 0) || o.OIChangePct > 0
}

// ParseObservations extracts OI alerts from channel messages, strongest first,
// one per symbol, at most eight.
func ParseObservations(messages []string) []Observation {
	var out []Observation
	for _, raw := range messages {
		text := textproc.Clean(raw)
		if text == "" {
			continue
		}
		m := oiRE.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		oi, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		sym := alertSymbol(text)
		if sym == "" {
			continue
		}
		obs := Observation{
			Symbol:      sym,
			OIChangePct: oi,
			Price1h:     firstPct(price1hRE, text),
			Price24h:    firstPct(price24hRE, text),
			Raw:         textproc.Truncate(text, 240),
		}
		obs.Flow = FlowLabel(obs.OIChangePct, obs.Price1h)
		out = append(out, obs)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].OIChangePct), math.Abs(out[j].OIChangePct)
		if ai != aj {
			return ai > aj
		}
		return absOrZero(out[i].Price1h) > absOrZero(out[j].Price1h)
	})

	seen := make(map[string]struct{}, len(out))
	deduped := out[:0]
	for _, o := range out {
		if _, dup := seen[o.Symbol]; dup {
			continue
		}
		seen[o.Symbol] = struct{}{}
		deduped = append(deduped, o)
		if len(deduped) == maxObservations {
			break
		}
	}
	return deduped
}

func alertSymbol(text string) string {
	head := textproc.Truncate(text, symbolScanRunes)
	for _, m := range symbolRE.FindAllStringSubmatch(head, -1) {
		tok := m[1]
		if _, skip := oiSymbolExclude[tok]; skip {
			continue
		}
		if isDigits(tok) || horizonRE.MatchString(tok) {
			continue
		}
		return tok
	}
	return ""
}

func firstPct(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func absOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return math.Abs(*p)
}

// Symbols returns the observation symbols in order.
func Symbols(obs []Observation) []string {
	out := make([]string, 0, len(obs))
	for _, o := range obs {
		out = append(out, strings.ToUpper(o.Symbol))
	}
	return out
}
