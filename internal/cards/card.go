// Package cards merges chat topics, social posts, OI signals and radar hits
// into one card shape for rendering.
package cards

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"market-digest/internal/market"
	"market-digest/internal/textproc"
)

const (
	maxSignals  = 4
	maxDrivers  = 3
	maxEvidence = 2
	defaultRisk = "情绪盘/消息噪音"
)

// SocialCard is the unified card. Nil numeric fields were not resolved.
type SocialCard struct {
	Provenance Provenance
	Source     string
	Subject    market.Subject
	Price      *decimal.Decimal
	MarketCap  *decimal.Decimal
	FDV        *decimal.Decimal
	Sentiment  string
	OneLiner   string
	Signals    []string
	Drivers    []string
	Risk       string
	Evidence   []string
}

// Key is the dedup key of the card subject.
func (c SocialCard) Key() string {
	return c.Subject.Key()
}

func (c SocialCard) withMetrics(m market.Metrics) SocialCard {
	if c.Price == nil {
		c.Price = m.PriceUSD
	}
	if c.MarketCap == nil {
		c.MarketCap = m.MarketCap
	}
	if c.FDV == nil {
		c.FDV = m.FDV
	}
	if c.Subject.Chain == "" && m.Chain != "" {
		c.Subject.Chain = m.Chain
	}
	if c.Subject.Address == "" && m.Address != "" {
		c.Subject.Address = m.Address
		c.Subject.Type = market.SymbolOnchain
	}
	c.Subject = c.Subject.Normalize()
	return c
}

var (
	driverSepRE  = regexp.MustCompile(`[;；,，、/|]+`)
	driverConjRE = regexp.MustCompile(`和|并|以及|同时|与`)
)

// splitDrivers breaks a reason sentence into at most n short drivers.
func splitDrivers(text string, n int) []string {
	t := textproc.Clean(text)
	if t == "" {
		return nil
	}
	parts := nonEmpty(driverSepRE.Split(t, -1))
	if len(parts) < 2 {
		parts = nonEmpty(driverConjRE.Split(t, -1))
	}
	if len(parts) == 0 {
		parts = []string{t}
	}
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		k := strings.ToLower(p)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
		if len(out) >= n {
			break
		}
	}
	return out
}

// cleanEvidence de-identifies snippets and keeps two distinct ones.
func cleanEvidence(in []string) []string {
	out := make([]string, 0, maxEvidence)
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		t := textproc.CleanEvidence(raw, 0)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
		if len(out) >= maxEvidence {
			break
		}
	}
	return out
}

// sentimentFromReasons derives a stance from buy and avoid reasons.
func sentimentFromReasons(whyBuy, whyNot string) string {
	switch {
	case whyBuy != "" && whyNot != "":
		return textproc.StanceMixed
	case whyBuy != "":
		return textproc.StanceBullish
	case whyNot != "":
		return textproc.StanceBearish
	default:
		return textproc.StanceNeutral
	}
}

func composeOneLiner(whyBuy, whyNot string) string {
	var parts []string
	if whyBuy != "" {
		parts = append(parts, "买:"+whyBuy)
	}
	if whyNot != "" {
		parts = append(parts, "不买:"+whyNot)
	}
	return strings.Join(parts, " | ")
}

func composeSignals(trigger, risk string) []string {
	var out []string
	if trigger != "" {
		out = append(out, "触发:"+trigger)
	}
	if risk != "" {
		out = append(out, "风险:"+risk)
	}
	return out
}

func capStrings(in []string, n int) []string {
	out := nonEmpty(in)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// subjectFromToken treats address-looking tokens as on-chain subjects.
func subjectFromToken(tok string) market.Subject {
	n := textproc.NormalizeSubject(tok)
	if n == "" {
		return market.Subject{}
	}
	if len(textproc.EVMAddresses(n)) > 0 || len(textproc.SolanaAddresses(n, textproc.DefaultAddressRules())) > 0 {
		return market.Subject{Address: n, Type: market.SymbolOnchain}.Normalize()
	}
	return market.Subject{Symbol: n, Type: market.SymbolCEX}.Normalize()
}
