// Package aggregator implements the Aggregator venue family: a contract-only
// adapter (spec.md §4.1/§6) fronting an external HTTP quote API behind the
// same Venue-shaped quote/build_swap surface, guarded with a client-side
// rate limiter, a response cache, and a circuit breaker so one flaky
// upstream never blocks the strategy scan it shares a poll loop with.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// wireQuoteRequest/wireQuoteResponse are the adapter's assumed upstream
// contract: a JSON POST to Config.QuoteURL and a JSON reply. Real
// aggregator payload shapes are not specified anywhere in the pack (spec
// §4.1 deliberately leaves them a black box); this is the minimal wire
// shape the adapter needs to satisfy Venue.Quote/BuildSwap.
type wireQuoteRequest struct {
	InputMint  string `json:"input_mint"`
	OutputMint string `json:"output_mint"`
	AmountIn   uint64 `json:"amount_in"`
	ExactOut   bool   `json:"exact_out"`
}

type wireQuoteResponse struct {
	OutAmount uint64 `json:"out_amount"`
	FeeAmount uint64 `json:"fee_amount"`
	FeeBps    string `json:"fee_bps"`
}

type wireSwapResponse struct {
	ProgramID string              `json:"program_id"`
	Accounts  []wireAccountEntry  `json:"accounts"`
}

type wireAccountEntry struct {
	Key      string `json:"key"`
	Writable bool   `json:"writable"`
	Signer   bool   `json:"signer"`
}

// Config parameterizes one aggregator adapter instance. Loaded from the
// router's YAML config, one entry per configured aggregator endpoint.
type Config struct {
	Key        venue.Key
	QuoteURL   string
	SwapURL    string
	InputMint  venue.TokenId
	OutputMint venue.TokenId

	BurstLimit   int           // rate.Limiter burst
	SustainedRPS float64       // rate.Limiter refill rate, requests/sec
	CacheTTL     time.Duration // 0 disables the cache
	HTTPTimeout  time.Duration
}

// Adapter implements venue.Venue by forwarding to an external aggregator
// HTTP API. It never holds reserve/tick state of its own: every Quote call
// is a live (or cache-served) upstream round trip, which is why
// RequiresUpdateForReserves is false and Update is a no-op.
type Adapter struct {
	cfg    Config
	client *http.Client

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *redis.Client // nil disables caching
}

// New builds an aggregator adapter. cache may be nil, in which case every
// quote is a live upstream call.
func New(cfg Config, cache *redis.Client) *Adapter {
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = 5
	}
	if cfg.SustainedRPS <= 0 {
		cfg.SustainedRPS = 2
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 2 * time.Second
	}
	return &Adapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.SustainedRPS), cfg.BurstLimit),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Key.String(),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		cache: cache,
	}
}

func (a *Adapter) Key() venue.Key       { return a.cfg.Key }
func (a *Adapter) ProgramID() venue.Key { return venue.ZeroKey } // settlement owned by the aggregator, not this repo
func (a *Adapter) Kind() venue.Kind     { return venue.KindAggregator }

func (a *Adapter) ReserveMints() ([]venue.TokenId, error) {
	return []venue.TokenId{a.cfg.InputMint, a.cfg.OutputMint}, nil
}

// AccountsToUpdate is empty: this adapter's state lives upstream, not in
// any chain account the ingestor tracks.
func (a *Adapter) AccountsToUpdate() []venue.Key { return nil }

// Update is a no-op; the aggregator has no local state for the ingestor to
// refresh.
func (a *Adapter) Update(store venue.AccountStore, slot *uint64) error { return nil }

// Quote rate-limits, then cache-checks, then issues a live HTTP round trip
// through the circuit breaker, in that order: a request the limiter rejects
// never touches the cache or the network, and a cache hit is served without
// consulting the breaker.
func (a *Adapter) Quote(p venue.QuoteParams) (venue.Quote, error) {
	if p.Input != a.cfg.InputMint || p.Output != a.cfg.OutputMint {
		return venue.Quote{}, venue.ErrUnsupportedPair
	}
	if !a.limiter.Allow() {
		return venue.Quote{}, fmt.Errorf("aggregator %s: %w", a.cfg.Key, venue.ErrUnsupported)
	}

	ctx := context.Background()
	cacheKey := a.cacheKey(p)
	if a.cache != nil && a.cfg.CacheTTL > 0 {
		if cached, ok := a.getCached(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	out, err := a.breaker.Execute(func() (any, error) {
		return a.fetchQuote(ctx, p)
	})
	if err != nil {
		return venue.Quote{}, fmt.Errorf("aggregator %s: %w", a.cfg.Key, err)
	}
	q := out.(venue.Quote)

	if a.cache != nil && a.cfg.CacheTTL > 0 {
		a.setCached(ctx, cacheKey, q)
	}
	return q, nil
}

func (a *Adapter) fetchQuote(ctx context.Context, p venue.QuoteParams) (venue.Quote, error) {
	body, err := json.Marshal(wireQuoteRequest{
		InputMint:  p.Input.String(),
		OutputMint: p.Output.String(),
		AmountIn:   p.Amount,
		ExactOut:   p.Mode == venue.ExactOut,
	})
	if err != nil {
		return venue.Quote{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.QuoteURL, bytes.NewReader(body))
	if err != nil {
		return venue.Quote{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return venue.Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return venue.Quote{}, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var wire wireQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return venue.Quote{}, err
	}

	feeBps, err := decimal.NewFromString(wire.FeeBps)
	if err != nil {
		feeBps = decimal.Zero
	}
	return venue.Quote{
		InAmount:  p.Amount,
		OutAmount: wire.OutAmount,
		FeeAmount: wire.FeeAmount,
		FeeMint:   p.Input,
		FeeBps:    feeBps,
	}, nil
}

// BuildSwap never routes through the executor (spec §4.1/§6): aggregators
// own their own settlement path, so this exists only to satisfy the Venue
// contract for the strategy's uniform handling during scan.
func (a *Adapter) BuildSwap(p venue.SwapParams) (venue.SwapCall, error) {
	req, err := http.NewRequest(http.MethodPost, a.cfg.SwapURL, bytes.NewReader(mustMarshalSwapReq(p)))
	if err != nil {
		return venue.SwapCall{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return venue.SwapCall{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return venue.SwapCall{}, fmt.Errorf("aggregator %s: upstream status %d", a.cfg.Key, resp.StatusCode)
	}

	var wire wireSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return venue.SwapCall{}, err
	}
	accounts := make([]venue.AccountRef, 0, len(wire.Accounts))
	for _, e := range wire.Accounts {
		key, err := venue.KeyFromHex(e.Key)
		if err != nil {
			return venue.SwapCall{}, fmt.Errorf("aggregator %s: decode account: %w", a.cfg.Key, err)
		}
		accounts = append(accounts, venue.AccountRef{Key: key, Writable: e.Writable, Signer: e.Signer})
	}
	return venue.SwapCall{Kind: venue.KindAggregator, Accounts: accounts}, nil
}

func mustMarshalSwapReq(p venue.SwapParams) []byte {
	b, _ := json.Marshal(wireQuoteRequest{
		InputMint:  p.Input.String(),
		OutputMint: p.Output.String(),
		AmountIn:   p.Amount,
		ExactOut:   p.Mode == venue.ExactOut,
	})
	return b
}

func (a *Adapter) HasDynamicAccounts() bool       { return true }
func (a *Adapter) RequiresUpdateForReserves() bool { return false }
func (a *Adapter) SupportsExactOut() bool         { return true }
func (a *Adapter) Unidirectional() bool           { return false }
func (a *Adapter) IsActive() bool                 { return a.breaker.State() != gobreaker.StateOpen }
