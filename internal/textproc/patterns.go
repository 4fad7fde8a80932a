// Package textproc holds the deterministic text filters used before any model runs:
// bot removal, cleaning, anchor extraction, prefilter and scoring.
package textproc

import (
	"regexp"
	"strings"
)

var (
	urlRE      = regexp.MustCompile(`https?://\S+`)
	spaceRE    = regexp.MustCompile(`\s+`)
	cashtagRE  = regexp.MustCompile(`\$[A-Za-z]{2,10}`)
	upperRE    = regexp.MustCompile(`[A-Z]{3,10}`)
	evmRE      = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	base58RE   = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{20,}`)
	numericRE  = regexp.MustCompile(`\d+(?:[\.,]\d+)?\s*(?:[kKmMwW]|万|亿|M|B|%)?`)
	digitRE    = regexp.MustCompile(`\d`)
	piiRE      = regexp.MustCompile(`([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}|\+?\d[\d\-\s()]{7,}\d)`)
	noiseRE    = regexp.MustCompile(`(?i)(airdrop|giveaway|join\s+telegram|vip|signal|paid\s+group|link\s+in\s+bio|邀请码|私信|\bdm\b|抽奖|返佣)`)
	eventRE    = regexp.MustCompile(eventPattern(EventWords))
)

// EventWords is the fixed vocabulary of market-moving events.
var EventWords = []string{
	"上线", "上所", "上架", "解锁", "锁仓", "黑客", "被黑", "漏洞", "清算", "回购", "治理",
	"提案", "空投", "迁移", "分叉", "增发", "销毁", "停摆", "暂停", "恢复", "下线", "退市",
	"listing", "list", "unlock", "airdrop", "exploit", "hack", "liquidation", "buyback", "burn", "migration",
}

// Platforms are chain and venue names that count as anchors in a summary.
var Platforms = []string{
	"Solana", "Ethereum", "BSC", "Base", "Arbitrum", "Binance", "币安", "OKX", "Bybit",
	"Coinbase", "Upbit", "Hyperliquid", "pump.fun", "Raydium",
}

// VagueOpeners are collective-reference fillers a summary must not start with.
var VagueOpeners = []string{"某个", "某些", "一些", "有人", "用户", "群友", "大家", "投资者", "市场参与者", "某人"}

var tickerExclude = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "BNB": {}, "BSC": {}, "BASE": {}, "USDT": {}, "USDC": {},
	"USD": {}, "FDV": {}, "MCAP": {}, "DEX": {}, "GMGN": {}, "OI": {}, "CA": {}, "LP": {},
	"ATH": {}, "ATL": {}, "AI": {}, "NFT": {}, "MC": {},
}

var (
	boxDrawing   = []string{"├", "└", "│", "┌", "┐", "┘", "┴"}
	statMarkers  = []string{"📊", "📈", "Stats", "交易信息", "开盘时间", "MC", "FDV", "LP", "Vol", "ATH", "Sup", "DEX Paid"}
	botFooters   = []string{"dexscreener", "geckoterminal", "solscan", "defined.fi", "axiom.trade", "photon-sol", "trojan"}
	positiveKeys = []string{"看好", "要起飞", "上车", "冲", "突破", "强", "继续拉", "做多", "买入", "梭哈", "all in", "bull"}
	negativeKeys = []string{"看空", "别买", "别追", "风险", "砸", "骗", "rug", "跑路", "割", "出货", "做空", "bear"}
)

// IsExcludedTicker reports majors, stablecoins and jargon that never count as a subject.
func IsExcludedTicker(sym string) bool {
	_, ok := tickerExclude[strings.ToUpper(sym)]
	return ok
}

func joinQuoted(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// eventPattern matches Latin words whole and CJK terms as substrings,
// so "list" does not fire inside "playlist".
func eventPattern(words []string) string {
	var latin, cjk []string
	for _, w := range words {
		if isASCIIWord(w) {
			latin = append(latin, w)
		} else {
			cjk = append(cjk, w)
		}
	}
	var alts []string
	if len(cjk) > 0 {
		alts = append(alts, joinQuoted(cjk))
	}
	if len(latin) > 0 {
		alts = append(alts, `\b(?:`+joinQuoted(latin)+`)\b`)
	}
	return `(?i)(` + strings.Join(alts, "|") + `)`
}

func isASCIIWord(w string) bool {
	for i := 0; i < len(w); i++ {
		c := w[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return w != ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
