package aggregator

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// cachedQuote is the JSON shape stored in Redis, keyed by direction+amount.
// A cache miss or decode failure is never an error: the adapter just falls
// through to a live upstream call.
type cachedQuote struct {
	InAmount  uint64 `json:"in_amount"`
	OutAmount uint64 `json:"out_amount"`
	FeeAmount uint64 `json:"fee_amount"`
	FeeMint   string `json:"fee_mint"`
	FeeBps    string `json:"fee_bps"`
}

func (a *Adapter) cacheKey(p venue.QuoteParams) string {
	return "dexrouter:aggregator:" + a.cfg.Key.String() + ":" + p.Mode.String() + ":" + p.Input.String() + ":" + p.Output.String() + ":" + quoteAmountKey(p.Amount)
}

func quoteAmountKey(amount uint64) string {
	b, _ := json.Marshal(amount)
	return string(b)
}

func (a *Adapter) getCached(ctx context.Context, key string) (venue.Quote, bool) {
	raw, err := a.cache.Get(ctx, key).Bytes()
	if err != nil {
		return venue.Quote{}, false
	}
	var c cachedQuote
	if err := json.Unmarshal(raw, &c); err != nil {
		return venue.Quote{}, false
	}
	feeBps, err := decimal.NewFromString(c.FeeBps)
	if err != nil {
		feeBps = decimal.Zero
	}
	var feeMint venue.Key
	if c.FeeMint != "" {
		feeMint, _ = venue.KeyFromHex(c.FeeMint)
	}
	return venue.Quote{InAmount: c.InAmount, OutAmount: c.OutAmount, FeeAmount: c.FeeAmount, FeeMint: feeMint, FeeBps: feeBps}, true
}

func (a *Adapter) setCached(ctx context.Context, key string, q venue.Quote) {
	raw, err := json.Marshal(cachedQuote{InAmount: q.InAmount, OutAmount: q.OutAmount, FeeAmount: q.FeeAmount, FeeMint: q.FeeMint.String(), FeeBps: q.FeeBps.String()})
	if err != nil {
		return
	}
	a.cache.Set(ctx, key, raw, a.cfg.CacheTTL)
}
