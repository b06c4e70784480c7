package registry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// Factory builds one adapter from a catalog descriptor. Supplied per Kind
// by whatever adapter package wires the registry together; the registry
// itself knows nothing about constant-product vs. concentrated-liquidity
// shapes.
type Factory func(d venue.Descriptor) (venue.Venue, error)

// FactoryTable maps a Kind to the constructor that instantiates it.
type FactoryTable map[venue.Kind]Factory

// AccountFetcher batch-fetches the current chain state for a set of
// accounts, used once at boot to seed the account store before the first
// Update. The ingestor satisfies this in production; tests use a fake.
type AccountFetcher interface {
	FetchAccounts(ctx context.Context, keys []venue.Key) (map[venue.Key]venue.AccountBlob, error)
}

// BootResult is what Boot hands back to the caller that wires the rest of
// the pipeline together.
type BootResult struct {
	Registry *Registry
	Store    *AccountStore
}

// Boot runs the five-step cold boot sequence: build an empty registry and
// index, instantiate one adapter per descriptor, index every adapter's
// declared accounts, batch-fetch their current blobs, then call Update once
// on every adapter. A failing Update does not fail boot: it leaves that
// adapter's breaker to record the failure, which Active() then excludes.
func Boot(ctx context.Context, log zerolog.Logger, descriptors []venue.Descriptor, factories FactoryTable, fetcher AccountFetcher) (*BootResult, error) {
	reg := New(log)
	store := NewAccountStore(len(descriptors) * 4)

	adapters := make([]venue.Venue, 0, len(descriptors))
	for _, d := range descriptors {
		build, ok := factories[d.Kind]
		if !ok {
			return nil, fmt.Errorf("registry: no factory for kind %s (venue %s)", d.Kind, d.Key)
		}
		adapter, err := build(d)
		if err != nil {
			return nil, fmt.Errorf("registry: build venue %s: %w", d.Key, err)
		}
		reg.Add(adapter)
		adapters = append(adapters, adapter)
	}

	// Index in catalog order so that, for an account claimed by several
	// venues, the later descriptor deterministically wins.
	allAccounts := make([]venue.Key, 0)
	seenAt := make(map[venue.Key]int)
	for _, v := range adapters {
		for _, account := range v.AccountsToUpdate() {
			if prior, dup := reg.Index().Owner(account); dup && prior != v.Key() {
				log.Warn().
					Str("account", account.String()).
					Str("prior_venue", prior.String()).
					Str("new_venue", v.Key().String()).
					Msg("account claimed by multiple venues, last wins")
			}
			reg.Index().Add(account, v.Key())
			if _, ok := seenAt[account]; !ok {
				seenAt[account] = len(allAccounts)
				allAccounts = append(allAccounts, account)
			}
		}
	}

	if fetcher != nil && len(allAccounts) > 0 {
		blobs, err := fetcher.FetchAccounts(ctx, allAccounts)
		if err != nil {
			return nil, fmt.Errorf("registry: fetch initial accounts: %w", err)
		}
		for key, blob := range blobs {
			store.Set(key, blob)
		}
	}

	for _, v := range reg.All() {
		if err := reg.Update(v.Key(), store, nil); err != nil {
			log.Warn().Str("venue", v.Key().String()).Err(err).Msg("cold boot update failed, venue starts inactive")
		}
	}

	return &BootResult{Registry: reg, Store: store}, nil
}
