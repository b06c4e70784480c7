package pmm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// oracleAccountLen is the fixed layout this adapter reads from the
// published price account: an 8-byte little-endian price (Q32.32 fixed
// point, base/quote) and an 8-byte little-endian publish slot, standing in
// for the Pyth `PriceFeed` the original obric_v2 adapter decodes — no Pyth
// SDK is in this pack, so the oracle is modeled as the minimal fields the
// quote math needs.
const oracleAccountLen = 16

// priceScale is the fixed-point scale of the Q32.32 price field.
const priceScale = 1 << 32

// staleAfterSlots bounds how many slots may pass between the oracle
// account's publish slot and the adapter's last-updated slot before a
// quote is refused as stale (spec's OracleStale failure mode).
const staleAfterSlots = 600

type oracleParams struct {
	MintBase    string `json:"mint_base"`
	MintQuote   string `json:"mint_quote"`
	OracleAcct  string `json:"oracle_account"`
	FeeNum      uint64 `json:"fee_num"`
	FeeDen      uint64 `json:"fee_den"`
}

// OracleAdapter is a Venue implementation for the PMMOracle family: a
// first-principles math model (spec §9 design note b) pricing directly off
// a published oracle price instead of simulating the native program.
// Grounded on obric_v2's Pyth-fed SSTradingPair, trading the unavailable
// Pyth SDK for a fixed-layout price account.
type OracleAdapter struct {
	key       venue.Key
	programID venue.Key

	mintBase, mintQuote venue.TokenId
	oracleAccount       venue.Key
	feeNum, feeDen      uint64

	primed       bool
	price        uint64 // Q32.32, quote per base
	publishSlot  uint64
	currentSlot  uint64
}

// NewOracleFactory builds a registry.Factory for PMMOracle venues.
func NewOracleFactory(d venue.Descriptor) (venue.Venue, error) {
	var p oracleParams
	if err := json.Unmarshal(d.CatalogParams, &p); err != nil {
		return nil, fmt.Errorf("pmm/oracle: parse kind_specific: %w", err)
	}
	a := &OracleAdapter{key: d.Key, programID: d.ProgramID, feeNum: p.FeeNum, feeDen: p.FeeDen}
	var err error
	if a.mintBase, err = venue.KeyFromHex(p.MintBase); err != nil {
		return nil, fmt.Errorf("pmm/oracle: mint_base: %w", err)
	}
	if a.mintQuote, err = venue.KeyFromHex(p.MintQuote); err != nil {
		return nil, fmt.Errorf("pmm/oracle: mint_quote: %w", err)
	}
	if a.oracleAccount, err = venue.KeyFromHex(p.OracleAcct); err != nil {
		return nil, fmt.Errorf("pmm/oracle: oracle_account: %w", err)
	}
	if a.feeDen == 0 {
		a.feeDen = 1
	}
	return a, nil
}

func (a *OracleAdapter) Key() venue.Key       { return a.key }
func (a *OracleAdapter) ProgramID() venue.Key { return a.programID }
func (a *OracleAdapter) Kind() venue.Kind     { return venue.KindPMMOracle }

func (a *OracleAdapter) ReserveMints() ([]venue.TokenId, error) {
	if !a.primed {
		return nil, venue.ErrNotPrimed
	}
	return []venue.TokenId{a.mintBase, a.mintQuote}, nil
}

func (a *OracleAdapter) AccountsToUpdate() []venue.Key {
	return []venue.Key{a.oracleAccount}
}

func (a *OracleAdapter) Update(store venue.AccountStore, slot *uint64) error {
	blob, ok := store.Get(a.oracleAccount)
	if !ok {
		return venue.ErrAccountMissing
	}
	if len(blob.Data) < oracleAccountLen {
		return venue.ErrAccountMalformed
	}
	price := binary.LittleEndian.Uint64(blob.Data[0:8])
	publishSlot := binary.LittleEndian.Uint64(blob.Data[8:16])
	if price == 0 {
		return venue.ErrAccountMalformed
	}

	a.price = price
	a.publishSlot = publishSlot
	if slot != nil {
		a.currentSlot = *slot
	}
	a.primed = true
	return nil
}

// Quote prices exact-in trades at the published oracle rate less fee,
// refusing stale prices per spec's OracleStale failure mode.
func (a *OracleAdapter) Quote(p venue.QuoteParams) (venue.Quote, error) {
	if !a.primed {
		return venue.Quote{}, venue.ErrNotPrimed
	}
	if p.Mode == venue.ExactOut {
		return venue.Quote{}, venue.ErrUnsupported
	}
	if a.currentSlot > a.publishSlot && a.currentSlot-a.publishSlot > staleAfterSlots {
		return venue.Quote{}, venue.ErrOracleStale
	}

	var invert bool
	switch {
	case p.Input == a.mintBase && p.Output == a.mintQuote:
		invert = false
	case p.Input == a.mintQuote && p.Output == a.mintBase:
		invert = true
	default:
		return venue.Quote{}, venue.ErrUnsupportedPair
	}

	feeAmount := p.Amount * a.feeNum / a.feeDen
	if feeAmount > p.Amount {
		return venue.Quote{}, venue.ErrArithmetic
	}
	net := p.Amount - feeAmount

	var outAmount uint64
	if invert {
		outAmount = net * priceScale / a.price
	} else {
		outAmount = net * a.price / priceScale
	}

	feePct := decimal.NewFromInt(int64(a.feeNum)).Div(decimal.NewFromInt(int64(a.feeDen))).Mul(decimal.NewFromInt(10000)).Truncate(4)
	return venue.Quote{InAmount: p.Amount, OutAmount: outAmount, FeeAmount: feeAmount, FeeMint: p.Input, FeeBps: feePct}, nil
}

func (a *OracleAdapter) BuildSwap(p venue.SwapParams) (venue.SwapCall, error) {
	if !a.primed {
		return venue.SwapCall{}, venue.ErrNotPrimed
	}
	if p.Input != a.mintBase && p.Input != a.mintQuote {
		return venue.SwapCall{}, venue.ErrUnsupportedPair
	}
	call := venue.SwapCall{
		Kind: venue.KindPMMOracle,
		Accounts: []venue.AccountRef{
			{Key: a.key, Writable: true},
			{Key: a.oracleAccount},
			{Key: p.Authority, Signer: true},
			{Key: p.SrcAccount, Writable: true},
			{Key: p.DstAccount, Writable: true},
		},
	}
	if err := venue.SpecFor(venue.KindPMMOracle).Validate(call); err != nil {
		return venue.SwapCall{}, err
	}
	return call, nil
}

func (a *OracleAdapter) HasDynamicAccounts() bool       { return false }
func (a *OracleAdapter) RequiresUpdateForReserves() bool { return true }
func (a *OracleAdapter) SupportsExactOut() bool         { return false }
func (a *OracleAdapter) Unidirectional() bool           { return false }
func (a *OracleAdapter) IsActive() bool                 { return a.primed }
