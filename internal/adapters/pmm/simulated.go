package pmm

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/dexrouter/internal/venue"
)

type simulatedParams struct {
	MintA  string `json:"mint_a"`
	MintB  string `json:"mint_b"`
	VaultA string `json:"vault_a"`
	VaultB string `json:"vault_b"`
	FeeNum uint64 `json:"fee_num"`
	FeeDen uint64 `json:"fee_den"`
}

// SimulatedAdapter is a Venue implementation for the PMMSimulated family:
// it mirrors live vault accounts into a sandbox and prices by executing the
// same SwapCall BuildSwap would return, then parsing the emitted SwapEvent
// (spec §4.3.3).
type SimulatedAdapter struct {
	key       venue.Key
	programID venue.Key

	mintA, mintB   venue.TokenId
	vaultA, vaultB venue.Key

	sandbox Sandbox
	primed  bool
}

// NewSimulatedFactory builds a registry.Factory for PMMSimulated venues.
// newSandbox is invoked once per descriptor with THAT descriptor's own
// vault keys and fee fraction, so one Factory value (e.g. NewMemSandbox)
// serves every PMMSimulated entry in the catalog — each adapter instance
// still owns its own, never-shared sandbox (spec §4.3.3).
func NewSimulatedFactory(newSandbox Factory) func(d venue.Descriptor) (venue.Venue, error) {
	return func(d venue.Descriptor) (venue.Venue, error) {
		var p simulatedParams
		if err := json.Unmarshal(d.CatalogParams, &p); err != nil {
			return nil, fmt.Errorf("pmm: parse kind_specific: %w", err)
		}
		a := &SimulatedAdapter{key: d.Key, programID: d.ProgramID}
		var err error
		if a.mintA, err = venue.KeyFromHex(p.MintA); err != nil {
			return nil, fmt.Errorf("pmm: mint_a: %w", err)
		}
		if a.mintB, err = venue.KeyFromHex(p.MintB); err != nil {
			return nil, fmt.Errorf("pmm: mint_b: %w", err)
		}
		if a.vaultA, err = venue.KeyFromHex(p.VaultA); err != nil {
			return nil, fmt.Errorf("pmm: vault_a: %w", err)
		}
		if a.vaultB, err = venue.KeyFromHex(p.VaultB); err != nil {
			return nil, fmt.Errorf("pmm: vault_b: %w", err)
		}
		a.sandbox, err = newSandbox(a.vaultA, a.vaultB, p.FeeNum, p.FeeDen)
		if err != nil {
			return nil, fmt.Errorf("pmm: build sandbox: %w", err)
		}
		return a, nil
	}
}

func (a *SimulatedAdapter) Key() venue.Key       { return a.key }
func (a *SimulatedAdapter) ProgramID() venue.Key { return a.programID }
func (a *SimulatedAdapter) Kind() venue.Kind     { return venue.KindPMMSimulated }

func (a *SimulatedAdapter) ReserveMints() ([]venue.TokenId, error) {
	if !a.primed {
		return nil, venue.ErrNotPrimed
	}
	return []venue.TokenId{a.mintA, a.mintB}, nil
}

func (a *SimulatedAdapter) AccountsToUpdate() []venue.Key {
	return []venue.Key{a.vaultA, a.vaultB}
}

// Update mirrors the two vault accounts into the sandbox. Idempotent: a
// failed mirror leaves the adapter's prior primed state untouched.
func (a *SimulatedAdapter) Update(store venue.AccountStore, slot *uint64) error {
	blobA, ok := store.Get(a.vaultA)
	if !ok {
		return venue.ErrAccountMissing
	}
	blobB, ok := store.Get(a.vaultB)
	if !ok {
		return venue.ErrAccountMissing
	}
	if err := a.sandbox.MirrorAccounts(map[venue.Key]venue.AccountBlob{a.vaultA: blobA, a.vaultB: blobB}); err != nil {
		return err
	}
	if slot != nil {
		a.sandbox.AdvanceSlot(*slot)
	}
	a.primed = true
	return nil
}

// Quote executes the swap call against the sandbox's last-mirrored state.
// Sandbox failures map to ErrSimulation and never poison the adapter (spec
// §4.3.3/§7).
func (a *SimulatedAdapter) Quote(p venue.QuoteParams) (venue.Quote, error) {
	if !a.primed {
		return venue.Quote{}, venue.ErrNotPrimed
	}
	if p.Mode == venue.ExactOut {
		return venue.Quote{}, venue.ErrUnsupported
	}
	// Quoting only has QuoteParams, not the src/dst/authority accounts a
	// real swap carries; the sandbox call built here stands in with zero
	// placeholders for them, which is sound because nothing simulating
	// this adapter's own reserves math reads those fields — only the
	// vault accounts already mirrored by Update matter.
	call, err := a.buildCall(venue.SwapParams{QuoteParams: p})
	if err != nil {
		return venue.Quote{}, err
	}
	event, err := a.sandbox.Execute(call, p.Amount)
	if err != nil {
		return venue.Quote{}, fmt.Errorf("%w: %v", venue.ErrSimulation, err)
	}
	return venue.Quote{InAmount: p.Amount, OutAmount: event.AmountOut, FeeBps: decimal.Zero}, nil
}

func (a *SimulatedAdapter) BuildSwap(p venue.SwapParams) (venue.SwapCall, error) {
	return a.buildCall(p)
}

func (a *SimulatedAdapter) buildCall(p venue.SwapParams) (venue.SwapCall, error) {
	if !a.primed {
		return venue.SwapCall{}, venue.ErrNotPrimed
	}
	var swapSource, swapDest venue.Key
	switch {
	case p.Input == a.mintA && p.Output == a.mintB:
		swapSource, swapDest = a.vaultA, a.vaultB
	case p.Input == a.mintB && p.Output == a.mintA:
		swapSource, swapDest = a.vaultB, a.vaultA
	default:
		return venue.SwapCall{}, venue.ErrUnsupportedPair
	}
	call := venue.SwapCall{
		Kind: venue.KindPMMSimulated,
		Accounts: []venue.AccountRef{
			{Key: a.key, Writable: true},
			{Key: p.Authority, Signer: true},
			{Key: p.SrcAccount, Writable: true},
			{Key: swapSource, Writable: true},
			{Key: swapDest, Writable: true},
			{Key: p.DstAccount, Writable: true},
		},
	}
	if err := venue.SpecFor(venue.KindPMMSimulated).Validate(call); err != nil {
		return venue.SwapCall{}, err
	}
	return call, nil
}

func (a *SimulatedAdapter) HasDynamicAccounts() bool       { return false }
func (a *SimulatedAdapter) RequiresUpdateForReserves() bool { return true }
func (a *SimulatedAdapter) SupportsExactOut() bool         { return false }
func (a *SimulatedAdapter) Unidirectional() bool           { return false }
func (a *SimulatedAdapter) IsActive() bool                 { return a.primed }
