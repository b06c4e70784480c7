// Package cpamm implements the constant-product venue family: two token
// vaults, x*y=k, a trade fee and an optional owner-skim fee, both expressed
// as num/den fractions.
package cpamm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/bits"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// tokenAccountAmountOffset is the byte offset of the u64 balance field
// inside an SPL-token-account blob: 32-byte mint, 32-byte owner, then the
// 8-byte amount.
const tokenAccountAmountOffset = 64

// params is the kind_specific payload a constant-product catalog entry
// carries.
type params struct {
	TokenAMint  string `json:"token_a_mint"`
	TokenBMint  string `json:"token_b_mint"`
	VaultA      string `json:"vault_a"`
	VaultB      string `json:"vault_b"`
	FeeNum      uint64 `json:"fee_num"`
	FeeDen      uint64 `json:"fee_den"`
	OwnerFeeNum uint64 `json:"owner_fee_num"`
	OwnerFeeDen uint64 `json:"owner_fee_den"`
}

// Adapter is a Venue implementation for one constant-product pool.
type Adapter struct {
	key       venue.Key
	programID venue.Key

	tokenAMint venue.TokenId
	tokenBMint venue.TokenId
	vaultA     venue.Key
	vaultB     venue.Key

	feeNum      uint64
	feeDen      uint64
	ownerFeeNum uint64
	ownerFeeDen uint64

	reserveA uint64
	reserveB uint64
	primed   bool
}

// New builds an unprimed Adapter from a catalog descriptor. Returns an
// error if kind_specific fails to parse or names don't decode as keys.
func New(d venue.Descriptor) (venue.Venue, error) {
	var p params
	if err := json.Unmarshal(d.CatalogParams, &p); err != nil {
		return nil, fmt.Errorf("cpamm: parse kind_specific: %w", err)
	}

	a := &Adapter{key: d.Key, programID: d.ProgramID, feeNum: p.FeeNum, feeDen: p.FeeDen, ownerFeeNum: p.OwnerFeeNum, ownerFeeDen: p.OwnerFeeDen}
	var err error
	if a.tokenAMint, err = venue.KeyFromHex(p.TokenAMint); err != nil {
		return nil, fmt.Errorf("cpamm: token_a_mint: %w", err)
	}
	if a.tokenBMint, err = venue.KeyFromHex(p.TokenBMint); err != nil {
		return nil, fmt.Errorf("cpamm: token_b_mint: %w", err)
	}
	if a.vaultA, err = venue.KeyFromHex(p.VaultA); err != nil {
		return nil, fmt.Errorf("cpamm: vault_a: %w", err)
	}
	if a.vaultB, err = venue.KeyFromHex(p.VaultB); err != nil {
		return nil, fmt.Errorf("cpamm: vault_b: %w", err)
	}
	if a.feeDen == 0 {
		a.feeDen = 1
	}
	if a.ownerFeeDen == 0 {
		a.ownerFeeDen = 1
	}
	return a, nil
}

func (a *Adapter) Key() venue.Key       { return a.key }
func (a *Adapter) ProgramID() venue.Key { return a.programID }
func (a *Adapter) Kind() venue.Kind     { return venue.KindConstantProductA }

func (a *Adapter) ReserveMints() ([]venue.TokenId, error) {
	if !a.primed {
		return nil, venue.ErrNotPrimed
	}
	return []venue.TokenId{a.tokenAMint, a.tokenBMint}, nil
}

func (a *Adapter) AccountsToUpdate() []venue.Key {
	return []venue.Key{a.vaultA, a.vaultB}
}

// Update replaces both reserves atomically on success; a partial/failed
// read leaves the adapter's prior primed state untouched.
func (a *Adapter) Update(store venue.AccountStore, slot *uint64) error {
	blobA, ok := store.Get(a.vaultA)
	if !ok {
		return venue.ErrAccountMissing
	}
	blobB, ok := store.Get(a.vaultB)
	if !ok {
		return venue.ErrAccountMissing
	}
	amtA, err := tokenAccountAmount(blobA.Data)
	if err != nil {
		return err
	}
	amtB, err := tokenAccountAmount(blobB.Data)
	if err != nil {
		return err
	}

	a.reserveA = amtA
	a.reserveB = amtB
	a.primed = true
	return nil
}

func tokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < tokenAccountAmountOffset+8 {
		return 0, venue.ErrAccountMalformed
	}
	return binary.LittleEndian.Uint64(data[tokenAccountAmountOffset : tokenAccountAmountOffset+8]), nil
}

// Quote implements the exact-in constant-product formula from the pool's
// num/den fee parameters, widened to 128 bits to avoid silent overflow.
func (a *Adapter) Quote(p venue.QuoteParams) (venue.Quote, error) {
	if !a.primed {
		return venue.Quote{}, venue.ErrNotPrimed
	}
	if p.Mode == venue.ExactOut {
		return venue.Quote{}, venue.ErrUnsupported
	}

	var x, y uint64
	switch {
	case p.Input == a.tokenAMint && p.Output == a.tokenBMint:
		x, y = a.reserveA, a.reserveB
	case p.Input == a.tokenBMint && p.Output == a.tokenAMint:
		x, y = a.reserveB, a.reserveA
	default:
		return venue.Quote{}, venue.ErrUnsupportedPair
	}

	totalFeeNum, err := addFeeNumerators(a.feeNum, a.feeDen, a.ownerFeeNum, a.ownerFeeDen)
	if err != nil {
		return venue.Quote{}, err
	}

	feeAmount, err := mulDivFloor(p.Amount, totalFeeNum, a.feeDen)
	if err != nil {
		return venue.Quote{}, err
	}
	if feeAmount > p.Amount {
		return venue.Quote{}, venue.ErrArithmetic
	}
	amountNet := p.Amount - feeAmount

	denOut := x + amountNet
	if denOut < x {
		return venue.Quote{}, venue.ErrArithmetic
	}

	var outAmount uint64
	if denOut > 0 {
		outAmount, err = mulDivFloor(amountNet, y, denOut)
		if err != nil {
			return venue.Quote{}, err
		}
	}

	feePct := decimal.NewFromInt(int64(totalFeeNum)).Div(decimal.NewFromInt(int64(a.feeDen))).Mul(decimal.NewFromInt(10000)).Truncate(4)

	return venue.Quote{
		InAmount:  p.Amount,
		OutAmount: outAmount,
		FeeAmount: feeAmount,
		FeeMint:   p.Input,
		FeeBps:    feePct,
	}, nil
}

// addFeeNumerators returns the total fee numerator against den: a plain
// add of ownerNum into num when both fee fractions share a denominator (or
// the owner fee is zero), otherwise ownerNum is first rescaled to den.
// Overflow is reported as ErrArithmetic.
func addFeeNumerators(num, den, ownerNum, ownerDen uint64) (uint64, error) {
	if den != ownerDen && ownerNum != 0 {
		// owner fee expressed against a different denominator: rescale
		// num*ownerDen + ownerNum*den, over den*ownerDen, then report
		// back against den by truncating division.
		scaled, err := mulDivFloor(ownerNum, den, ownerDen)
		if err != nil {
			return 0, err
		}
		total := num + scaled
		if total < num {
			return 0, venue.ErrArithmetic
		}
		return total, nil
	}
	total := num + ownerNum
	if total < num {
		return 0, venue.ErrArithmetic
	}
	return total, nil
}

// BuildSwap assembles the account list a constant-product swap instruction
// needs. Account ordering matches the settlement program's expectation:
// pool, authority, source, swap-source-vault, swap-dest-vault, destination.
func (a *Adapter) BuildSwap(p venue.SwapParams) (venue.SwapCall, error) {
	if !a.primed {
		return venue.SwapCall{}, venue.ErrNotPrimed
	}
	var swapSource, swapDest venue.Key
	switch {
	case p.Input == a.tokenAMint:
		swapSource, swapDest = a.vaultA, a.vaultB
	case p.Input == a.tokenBMint:
		swapSource, swapDest = a.vaultB, a.vaultA
	default:
		return venue.SwapCall{}, venue.ErrUnsupportedPair
	}

	call := venue.SwapCall{
		Kind: venue.KindConstantProductA,
		Accounts: []venue.AccountRef{
			{Key: a.key, Writable: true},
			{Key: p.Authority, Signer: true},
			{Key: p.SrcAccount, Writable: true},
			{Key: swapSource, Writable: true},
			{Key: swapDest, Writable: true},
			{Key: p.DstAccount, Writable: true},
		},
	}
	if err := venue.SpecFor(venue.KindConstantProductA).Validate(call); err != nil {
		return venue.SwapCall{}, err
	}
	return call, nil
}

func (a *Adapter) HasDynamicAccounts() bool       { return false }
func (a *Adapter) RequiresUpdateForReserves() bool { return true }
func (a *Adapter) SupportsExactOut() bool         { return false }
func (a *Adapter) Unidirectional() bool           { return false }
func (a *Adapter) IsActive() bool                 { return a.primed }

// mulDivFloor computes floor(a*b/den) using a 128-bit intermediate product
// so a*b never silently wraps a uint64, per spec. Returns ErrArithmetic on
// division by zero or a quotient that would not fit in 64 bits.
func mulDivFloor(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, venue.ErrArithmetic
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, venue.ErrArithmetic
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}
