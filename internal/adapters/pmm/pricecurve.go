package pmm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// curveAccountLen is the fixed layout read from the curve state account:
// two 8-byte little-endian real reserves followed by an 8-byte little-endian
// concentration factor (fixed point, Q32.32), mirroring the shape of
// obric_v2's SSTradingPair (reserve_x, reserve_y, concentration) without its
// Pyth-fed fields, which this family leaves to the sibling PMMOracle kind.
const curveAccountLen = 24

// concentrationScale is the fixed-point scale of the curve account's
// concentration factor.
const concentrationScale = 1 << 32

type priceCurveParams struct {
	MintX      string `json:"mint_x"`
	MintY      string `json:"mint_y"`
	CurveAcct  string `json:"curve_account"`
	FeeNum     uint64 `json:"fee_num"`
	FeeDen     uint64 `json:"fee_den"`
}

// PriceCurveAdapter is a Venue implementation for the PMMPriceCurve family:
// a constant-product curve priced against virtual reserves scaled by a
// published concentration factor, rather than the pair's real reserves.
// Grounded on obric_v2's SSTradingPair, whose `concentration`/`big_k`/
// `target_x` fields widen the effective liquidity around the curve's
// target price; this adapter keeps the same shape (virtual_reserve =
// real_reserve * concentration) while dropping the oracle-anchoring that
// PMMOracle already covers.
type PriceCurveAdapter struct {
	key       venue.Key
	programID venue.Key

	mintX, mintY venue.TokenId
	curveAccount venue.Key
	feeNum, feeDen uint64

	primed        bool
	realX, realY  uint64
	concentration uint64 // Q32.32
}

// NewPriceCurveFactory builds a registry.Factory for PMMPriceCurve venues.
func NewPriceCurveFactory(d venue.Descriptor) (venue.Venue, error) {
	var p priceCurveParams
	if err := json.Unmarshal(d.CatalogParams, &p); err != nil {
		return nil, fmt.Errorf("pmm/pricecurve: parse kind_specific: %w", err)
	}
	a := &PriceCurveAdapter{key: d.Key, programID: d.ProgramID, feeNum: p.FeeNum, feeDen: p.FeeDen}
	var err error
	if a.mintX, err = venue.KeyFromHex(p.MintX); err != nil {
		return nil, fmt.Errorf("pmm/pricecurve: mint_x: %w", err)
	}
	if a.mintY, err = venue.KeyFromHex(p.MintY); err != nil {
		return nil, fmt.Errorf("pmm/pricecurve: mint_y: %w", err)
	}
	if a.curveAccount, err = venue.KeyFromHex(p.CurveAcct); err != nil {
		return nil, fmt.Errorf("pmm/pricecurve: curve_account: %w", err)
	}
	if a.feeDen == 0 {
		a.feeDen = 1
	}
	return a, nil
}

func (a *PriceCurveAdapter) Key() venue.Key       { return a.key }
func (a *PriceCurveAdapter) ProgramID() venue.Key { return a.programID }
func (a *PriceCurveAdapter) Kind() venue.Kind     { return venue.KindPMMPriceCurve }

func (a *PriceCurveAdapter) ReserveMints() ([]venue.TokenId, error) {
	if !a.primed {
		return nil, venue.ErrNotPrimed
	}
	return []venue.TokenId{a.mintX, a.mintY}, nil
}

func (a *PriceCurveAdapter) AccountsToUpdate() []venue.Key {
	return []venue.Key{a.curveAccount}
}

func (a *PriceCurveAdapter) Update(store venue.AccountStore, slot *uint64) error {
	blob, ok := store.Get(a.curveAccount)
	if !ok {
		return venue.ErrAccountMissing
	}
	if len(blob.Data) < curveAccountLen {
		return venue.ErrAccountMalformed
	}
	realX := binary.LittleEndian.Uint64(blob.Data[0:8])
	realY := binary.LittleEndian.Uint64(blob.Data[8:16])
	concentration := binary.LittleEndian.Uint64(blob.Data[16:24])
	if concentration == 0 {
		return venue.ErrAccountMalformed
	}

	a.realX, a.realY, a.concentration = realX, realY, concentration
	_ = slot
	a.primed = true
	return nil
}

// Quote prices exact-in trades against virtual reserves (real reserve
// scaled by the published concentration factor), the same constant-product
// formula cpamm uses but against a widened, curve-chosen liquidity depth.
func (a *PriceCurveAdapter) Quote(p venue.QuoteParams) (venue.Quote, error) {
	if !a.primed {
		return venue.Quote{}, venue.ErrNotPrimed
	}
	if p.Mode == venue.ExactOut {
		return venue.Quote{}, venue.ErrUnsupported
	}

	var reserveIn, reserveOut uint64
	switch {
	case p.Input == a.mintX && p.Output == a.mintY:
		reserveIn, reserveOut = a.virtualX(), a.virtualY()
	case p.Input == a.mintY && p.Output == a.mintX:
		reserveIn, reserveOut = a.virtualY(), a.virtualX()
	default:
		return venue.Quote{}, venue.ErrUnsupportedPair
	}
	if reserveIn == 0 || reserveOut == 0 {
		return venue.Quote{InAmount: p.Amount, OutAmount: 0, FeeBps: decimal.Zero}, nil
	}

	feeAmount := p.Amount * a.feeNum / a.feeDen
	if feeAmount > p.Amount {
		return venue.Quote{}, venue.ErrArithmetic
	}
	net := p.Amount - feeAmount
	den := reserveIn + net
	if den == 0 {
		return venue.Quote{}, venue.ErrArithmetic
	}
	outAmount := net * reserveOut / den

	feePct := decimal.NewFromInt(int64(a.feeNum)).Div(decimal.NewFromInt(int64(a.feeDen))).Mul(decimal.NewFromInt(10000)).Truncate(4)
	return venue.Quote{InAmount: p.Amount, OutAmount: outAmount, FeeAmount: feeAmount, FeeMint: p.Input, FeeBps: feePct}, nil
}

// virtualX and virtualY scale the real reserves by the published
// concentration factor, mirroring SSTradingPair's widened-liquidity curve.
func (a *PriceCurveAdapter) virtualX() uint64 {
	return a.realX * a.concentration / concentrationScale
}

func (a *PriceCurveAdapter) virtualY() uint64 {
	return a.realY * a.concentration / concentrationScale
}

func (a *PriceCurveAdapter) BuildSwap(p venue.SwapParams) (venue.SwapCall, error) {
	if !a.primed {
		return venue.SwapCall{}, venue.ErrNotPrimed
	}
	if p.Input != a.mintX && p.Input != a.mintY {
		return venue.SwapCall{}, venue.ErrUnsupportedPair
	}
	call := venue.SwapCall{
		Kind: venue.KindPMMPriceCurve,
		Accounts: []venue.AccountRef{
			{Key: a.key, Writable: true},
			{Key: a.curveAccount, Writable: true},
			{Key: p.Authority, Signer: true},
			{Key: p.SrcAccount, Writable: true},
			{Key: p.DstAccount, Writable: true},
		},
	}
	if err := venue.SpecFor(venue.KindPMMPriceCurve).Validate(call); err != nil {
		return venue.SwapCall{}, err
	}
	return call, nil
}

func (a *PriceCurveAdapter) HasDynamicAccounts() bool       { return false }
func (a *PriceCurveAdapter) RequiresUpdateForReserves() bool { return true }
func (a *PriceCurveAdapter) SupportsExactOut() bool         { return false }
func (a *PriceCurveAdapter) Unidirectional() bool           { return false }
func (a *PriceCurveAdapter) IsActive() bool                 { return a.primed }
