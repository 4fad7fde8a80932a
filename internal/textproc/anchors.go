package textproc

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

const (
	minAddressRun = 20
	maxAddressRun = 50
)

// AddressRules bound what counts as a Solana address. The zero value is the default.
type AddressRules struct {
	// Lengths is the accepted set of character lengths. Empty means 32..44.
	Lengths []int
	// RequireDigit rejects all-letter runs, which are usually words or hashtags.
	RequireDigit bool
	// SkipDecode accepts runs that do not base58-decode to a 32-byte key.
	SkipDecode bool
}

// DefaultAddressRules accepts 32..44 characters that decode to a public key.
func DefaultAddressRules() AddressRules {
	return AddressRules{}
}

func (r AddressRules) lengthOK(n int) bool {
	if n <= minAddressRun || n >= maxAddressRun {
		return false
	}
	if len(r.Lengths) == 0 {
		return n >= 32 && n <= 44
	}
	for _, l := range r.Lengths {
		if l == n {
			return true
		}
	}
	return false
}

// Anchors are the concrete tokens found in a text.
type Anchors struct {
	Symbols   []string
	Cashtags  []string
	EVM       []string
	Solana    []string
	Events    []string
	HasNumber bool
}

// HasAddress reports whether any address was found.
func (a Anchors) HasAddress() bool { return len(a.EVM) > 0 || len(a.Solana) > 0 }

// Addresses returns EVM then Solana addresses.
func (a Anchors) Addresses() []string {
	out := make([]string, 0, len(a.EVM)+len(a.Solana))
	out = append(out, a.EVM...)
	return append(out, a.Solana...)
}

// Extractor finds anchors with a fixed address policy.
type Extractor struct {
	rules AddressRules
}

// NewExtractor constructs an Extractor.
func NewExtractor(rules AddressRules) *Extractor {
	return &Extractor{rules: rules}
}

// Extract collects every anchor class from text.
func (e *Extractor) Extract(text string) Anchors {
	var a Anchors
	for _, m := range cashtagRE.FindAllString(text, -1) {
		a.Cashtags = appendUnique(a.Cashtags, strings.ToUpper(m[1:]))
	}
	a.Symbols = symbols(text, a.Cashtags)
	a.EVM = EVMAddresses(text)
	a.Solana = SolanaAddresses(text, e.rules)
	for _, m := range eventRE.FindAllString(text, -1) {
		a.Events = appendUnique(a.Events, strings.ToLower(m))
	}
	a.HasNumber = numericRE.MatchString(text)
	return a
}

// symbols prefers cashtags; bare uppercase needs three letters to avoid usernames.
func symbols(text string, cashtags []string) []string {
	candidates := cashtags
	if len(candidates) == 0 && len([]rune(text)) <= botMaxLen {
		for _, m := range upperRE.FindAllString(text, -1) {
			candidates = appendUnique(candidates, m)
		}
	}
	var out []string
	for _, s := range candidates {
		if IsExcludedTicker(s) || len(s) < 2 || len(s) > 10 {
			continue
		}
		out = appendUnique(out, s)
	}
	return out
}

// EVMAddresses returns lowercase 0x addresses not embedded in a longer hex run.
func EVMAddresses(text string) []string {
	var out []string
	for _, loc := range evmRE.FindAllStringIndex(text, -1) {
		if loc[1] < len(text) && isAlnum(text[loc[1]]) {
			continue
		}
		if loc[0] > 0 && isAlnum(text[loc[0]-1]) {
			continue
		}
		m := text[loc[0]:loc[1]]
		if !common.IsHexAddress(m) {
			continue
		}
		out = appendUnique(out, strings.ToLower(m))
	}
	return out
}

// SolanaAddresses returns base58 runs that satisfy rules. The whole run must qualify;
// a 50-char run never yields a 44-char address.
func SolanaAddresses(text string, rules AddressRules) []string {
	var out []string
	for _, loc := range base58RE.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && isAlnum(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isAlnum(text[loc[1]]) {
			continue
		}
		m := text[loc[0]:loc[1]]
		if !rules.lengthOK(len(m)) {
			continue
		}
		if rules.RequireDigit && !digitRE.MatchString(m) {
			continue
		}
		if !rules.SkipDecode {
			raw, err := base58.Decode(m)
			if err != nil || len(raw) != 32 {
				continue
			}
		}
		out = appendUnique(out, m)
	}
	return out
}

// NormalizeSubject canonicalises a ticker or address for dedup keys.
func NormalizeSubject(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if common.IsHexAddress(s) {
			return strings.ToLower(s)
		}
	}
	if len(s) >= 32 {
		return s
	}
	return strings.ToUpper(s)
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
