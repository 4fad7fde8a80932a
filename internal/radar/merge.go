package radar

import (
	"context"
	"fmt"
	"sort"

	"market-digest/internal/market"
	"market-digest/internal/textproc"
)

// MergeOptions bound the chat address scan. Zero values take defaults.
type MergeOptions struct {
	MaxTexts   int
	MaxAddrs   int
	ExampleLen int
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.MaxTexts <= 0 {
		o.MaxTexts = 500
	}
	if o.MaxAddrs <= 0 {
		o.MaxAddrs = 12
	}
	if o.ExampleLen <= 0 {
		o.ExampleLen = 220
	}
	return o
}

// MergeChatAddresses counts contract addresses pasted in chat, resolves the most
// mentioned ones and appends those not already present in out. Unresolved
// addresses are dropped.
func MergeChatAddresses(ctx context.Context, out Output, texts []string, ex *textproc.Extractor, resolver Resolver, opts MergeOptions) (Output, []string) {
	opts = opts.withDefaults()
	if resolver == nil || ex == nil {
		return out, nil
	}

	texts = preferAddressTexts(texts, ex, opts.MaxTexts)
	counts := make(map[string]int)
	examples := make(map[string]string)
	var order []string
	for _, t := range texts {
		seen := make(map[string]struct{})
		for _, a := range ex.Extract(t).Addresses() {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			if counts[a] == 0 {
				order = append(order, a)
				examples[a] = textproc.Truncate(t, opts.ExampleLen)
			}
			counts[a]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > opts.MaxAddrs {
		order = order[:opts.MaxAddrs]
	}

	existing := make(map[string]struct{}, len(out.Items))
	for _, it := range out.Items {
		existing[textproc.NormalizeSubject(it.Address)] = struct{}{}
	}

	var diags []string
	for i, addr := range order {
		if err := ctx.Err(); err != nil {
			diags = append(diags, fmt.Sprintf("tg_addr_resolve_stopped:%d_left:%v", len(order)-i, err))
			break
		}
		key := textproc.NormalizeSubject(addr)
		if _, dup := existing[key]; dup {
			continue
		}
		m, err := resolver.Resolve(ctx, market.Subject{Address: addr, Type: market.SymbolOnchain})
		if err != nil {
			diags = append(diags, fmt.Sprintf("tg_addr_resolve_failed:%s:%v", addr, err))
			continue
		}
		if !m.Resolved() {
			continue
		}
		existing[key] = struct{}{}
		out.Items = append(out.Items, Candidate{
			Address:   addr,
			Chain:     m.Chain,
			Symbol:    m.Symbol,
			Mentions:  counts[addr],
			Examples:  []string{examples[addr]},
			Source:    "tg",
			Metrics:   &m,
			SourceKey: "TG:" + addr,
		})
	}
	return out, diags
}

// preferAddressTexts keeps address-bearing texts first when the batch is over limit.
func preferAddressTexts(texts []string, ex *textproc.Extractor, limit int) []string {
	if len(texts) <= limit {
		return texts
	}
	withAddr := make([]string, 0, limit)
	var rest []string
	for _, t := range texts {
		if ex.Extract(t).HasAddress() {
			withAddr = append(withAddr, t)
		} else {
			rest = append(rest, t)
		}
	}
	all := append(withAddr, rest...)
	return all[:limit]
}
