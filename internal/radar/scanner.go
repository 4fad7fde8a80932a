package radar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/market"
	"market-digest/internal/window"
)

const boostsPath = "/token-boosts/top/v1"

// Resolver enriches a discovered address.
type Resolver interface {
	Resolve(ctx context.Context, subject market.Subject) (market.Metrics, error)
}

// BoostScannerOptions parameterise the DexScreener boost scan.
type BoostScannerOptions struct {
	BaseURL string
	Chains  []string
	Limit   int
	Timeout time.Duration
}

// BoostScanner lists the most boosted tokens on DexScreener for the configured chains.
type BoostScanner struct {
	opts     BoostScannerOptions
	baseURL  string
	client   *http.Client
	resolver Resolver
	logger   zerolog.Logger
}

// NewBoostScanner constructs the scanner. A nil resolver leaves candidates unenriched.
func NewBoostScanner(opts BoostScannerOptions, resolver Resolver, logger zerolog.Logger) *BoostScanner {
	if opts.Limit <= 0 {
		opts.Limit = 8
	}
	if len(opts.Chains) == 0 {
		opts.Chains = []string{"solana", "bsc", "base"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}
	return &BoostScanner{
		opts:     opts,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: opts.Timeout},
		resolver: resolver,
		logger:   logger.With().Str("component", "radar_scanner").Logger(),
	}
}

type boost struct {
	ChainID      string  `json:"chainId"`
	TokenAddress string  `json:"tokenAddress"`
	TotalAmount  float64 `json:"totalAmount"`
	Description  string  `json:"description"`
}

func (s *BoostScanner) Scan(ctx context.Context, w window.Window) (Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+boostsPath, nil)
	if err != nil {
		return Output{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return Output{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Output{}, fmt.Errorf("dexscreener boosts error (%d)", resp.StatusCode)
	}
	var boosts []boost
	if err := json.Unmarshal(body, &boosts); err != nil {
		return Output{}, fmt.Errorf("decode boosts: %w", err)
	}

	chains := make(map[string]struct{}, len(s.opts.Chains))
	for _, c := range s.opts.Chains {
		chains[strings.ToLower(c)] = struct{}{}
	}

	out := Output{WindowKey: w.Key}
	seen := make(map[string]struct{})
	for _, b := range boosts {
		chain := strings.ToLower(b.ChainID)
		if _, ok := chains[chain]; !ok || b.TokenAddress == "" {
			continue
		}
		if _, dup := seen[b.TokenAddress]; dup {
			continue
		}
		seen[b.TokenAddress] = struct{}{}

		c := Candidate{Address: b.TokenAddress, Chain: chain, Source: "dex_boost", SourceKey: "BOOST:" + b.TokenAddress}
		// the boost description is the team's own post about the token
		if d := strings.TrimSpace(b.Description); d != "" {
			c.Social = []string{d}
		}
		if s.resolver != nil {
			m, err := s.resolver.Resolve(ctx, market.Subject{Address: b.TokenAddress, Chain: chain, Type: market.SymbolOnchain})
			if err != nil {
				s.logger.Debug().Err(err).Str("addr", b.TokenAddress).Msg("resolve boosted token failed")
			} else if m.Resolved() {
				c.Symbol = m.Symbol
				c.Metrics = &m
			}
		}
		out.Items = append(out.Items, c)
		if len(out.Items) >= s.opts.Limit {
			break
		}
	}
	return out, nil
}

var _ Scanner = (*BoostScanner)(nil)
