package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	dexSearchPath = "/latest/dex/search"
	dexTokensPath = "/latest/dex/tokens/"
	// pairs considered when checking a symbol search for ambiguity
	dexAmbiguityWindow = 5
)

// DexScreenerOptions parameterise the resolver.
type DexScreenerOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
	CacheTTL    time.Duration
	CacheSize   int
	UserAgent   string
}

// DexScreener resolves price, market cap and FDV for tickers and token addresses.
type DexScreener struct {
	opts    DexScreenerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	cache   *expirable.LRU[string, Metrics]
}

// NewDexScreener constructs the resolver.
func NewDexScreener(opts DexScreenerOptions, logger zerolog.Logger) *DexScreener {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 250 * time.Millisecond
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	return &DexScreener{
		opts:    opts,
		logger:  logger.With().Str("component", "dexscreener").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		cache:   expirable.NewLRU[string, Metrics](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Resolve looks the subject up by address when known, otherwise by symbol search.
// An ambiguous symbol resolves to empty Metrics without error.
func (d *DexScreener) Resolve(ctx context.Context, subject Subject) (Metrics, error) {
	subject = subject.Normalize()
	key := subject.Key()
	if key == "" {
		return Metrics{}, nil
	}
	if m, ok := d.cache.Get(key); ok {
		return m, nil
	}

	var (
		m   Metrics
		err error
	)
	if subject.Address != "" {
		m, err = d.byAddress(ctx, subject)
	} else {
		m, err = d.bySymbol(ctx, subject.Symbol)
	}
	if err != nil {
		return Metrics{}, err
	}
	d.cache.Add(key, m)
	return m, nil
}

func (d *DexScreener) byAddress(ctx context.Context, subject Subject) (Metrics, error) {
	pairs, err := d.get(ctx, dexTokensPath+url.PathEscape(subject.Address))
	if err != nil {
		return Metrics{}, err
	}
	var matched []dexPair
	for _, p := range pairs {
		if strings.EqualFold(p.BaseToken.Address, subject.Address) {
			if subject.Chain != "" && !strings.EqualFold(p.ChainID, subject.Chain) {
				continue
			}
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return Metrics{}, nil
	}
	sortByLiquidity(matched)
	return matched[0].metrics(), nil
}

func (d *DexScreener) bySymbol(ctx context.Context, symbol string) (Metrics, error) {
	if symbol == "" {
		return Metrics{}, nil
	}
	pairs, err := d.get(ctx, dexSearchPath+"?q="+url.QueryEscape(symbol))
	if err != nil {
		return Metrics{}, err
	}
	var matched []dexPair
	for _, p := range pairs {
		if strings.EqualFold(p.BaseToken.Symbol, symbol) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return Metrics{}, nil
	}
	sortByLiquidity(matched)
	if ambiguous(matched) {
		d.logger.Debug().Str("symbol", symbol).Msg("symbol maps to several tokens, skipping")
		return Metrics{}, nil
	}
	return matched[0].metrics(), nil
}

// ambiguous reports whether the top-liquidity pairs disagree on the base token.
func ambiguous(sorted []dexPair) bool {
	n := len(sorted)
	if n > dexAmbiguityWindow {
		n = dexAmbiguityWindow
	}
	seen := make(map[string]struct{}, n)
	for _, p := range sorted[:n] {
		seen[strings.ToLower(p.ChainID+":"+p.BaseToken.Address)] = struct{}{}
	}
	return len(seen) > 1
}

func sortByLiquidity(pairs []dexPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Liquidity.USD > pairs[j].Liquidity.USD
	})
}

func (d *DexScreener) get(ctx context.Context, path string) ([]dexPair, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "marketdigest/1.0")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 0 {
			return nil, fmt.Errorf("dexscreener error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("dexscreener error (%d)", resp.StatusCode)
	}

	var payload dexResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Join(errors.New("decode dexscreener response"), err)
	}
	return payload.Pairs, nil
}

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV       float64 `json:"fdv"`
	MarketCap float64 `json:"marketCap"`
}

func (p dexPair) metrics() Metrics {
	m := Metrics{
		Symbol:  strings.ToUpper(p.BaseToken.Symbol),
		Chain:   strings.ToLower(p.ChainID),
		Address: p.BaseToken.Address,
	}
	if v, err := decimal.NewFromString(p.PriceUSD); err == nil && v.IsPositive() {
		m.PriceUSD = &v
	}
	m.MarketCap = positive(p.MarketCap)
	m.FDV = positive(p.FDV)
	m.LiquidityUSD = positive(p.Liquidity.USD)
	return m
}

func positive(f float64) *decimal.Decimal {
	if f <= 0 {
		return nil
	}
	v := decimal.NewFromFloat(f)
	return &v
}
