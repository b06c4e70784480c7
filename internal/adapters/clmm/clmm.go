// Package clmm implements the concentrated-liquidity venue family: a
// tick-indexed liquidity curve quoted by stepping the current price across
// tick boundaries until the input is exhausted or the curve runs out of
// liquidity, whichever comes first.
package clmm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// poolStateLen is the fixed layout this adapter reads from the pool's
// dynamic account: a 4-byte little-endian current tick, then two 16-byte
// little-endian u128 fields (sqrt price Q64.64, active liquidity). The
// settlement program's real account is a much larger Borsh struct; no
// Borsh codec exists anywhere in the example pack, so the adapter reads
// only the three fields it needs at fixed offsets instead of decoding the
// whole record.
const poolStateLen = 4 + 16 + 16

// tick is one initialized tick boundary: its precomputed Q64.64 sqrt price
// and the signed liquidity delta applied when price crosses it upward.
type tick struct {
	index        int32
	sqrtPriceX64 *big.Int
	liquidityNet *big.Int
}

// tickArray groups a contiguous span of ticks behind one account key, the
// unit the adapter reports through AccountsToUpdate.
type tickArray struct {
	key        venue.Key
	startIndex int32
	ticks      []tick
}

type tickArrayParams struct {
	StartIndex int32  `json:"start_index"`
	Key        string `json:"key"`
	Ticks      []struct {
		Index        int32  `json:"index"`
		SqrtPriceX64 string `json:"sqrt_price_x64"`
		LiquidityNet string `json:"liquidity_net"`
	} `json:"ticks"`
}

type params struct {
	Token0Mint  string            `json:"token0_mint"`
	Token1Mint  string            `json:"token1_mint"`
	PoolState   string            `json:"pool_state"`
	FeeNum      uint64            `json:"fee_num"`
	FeeDen      uint64            `json:"fee_den"`
	TickSpacing int32             `json:"tick_spacing"`
	TickArrays  []tickArrayParams `json:"tick_arrays"`
}

// Adapter is a Venue implementation for one concentrated-liquidity pool.
type Adapter struct {
	key       venue.Key
	programID venue.Key

	token0Mint venue.TokenId
	token1Mint venue.TokenId
	poolState  venue.Key

	feeNum, feeDen uint64
	tickSpacing    int32

	arrays []tickArray
	ticks  []tick // flattened, ascending by index, built once at construction

	primed       bool
	tickCurrent  int32
	sqrtPriceX64 *big.Int
	liquidity    *big.Int
}

// New builds an unprimed Adapter from a catalog descriptor.
func New(d venue.Descriptor) (venue.Venue, error) {
	var p params
	if err := json.Unmarshal(d.CatalogParams, &p); err != nil {
		return nil, fmt.Errorf("clmm: parse kind_specific: %w", err)
	}

	a := &Adapter{key: d.Key, programID: d.ProgramID, feeNum: p.FeeNum, feeDen: p.FeeDen, tickSpacing: p.TickSpacing}
	var err error
	if a.token0Mint, err = venue.KeyFromHex(p.Token0Mint); err != nil {
		return nil, fmt.Errorf("clmm: token0_mint: %w", err)
	}
	if a.token1Mint, err = venue.KeyFromHex(p.Token1Mint); err != nil {
		return nil, fmt.Errorf("clmm: token1_mint: %w", err)
	}
	if a.poolState, err = venue.KeyFromHex(p.PoolState); err != nil {
		return nil, fmt.Errorf("clmm: pool_state: %w", err)
	}
	if a.feeDen == 0 {
		return nil, fmt.Errorf("clmm: fee_den must be nonzero")
	}

	for _, ap := range p.TickArrays {
		arrKey, err := venue.KeyFromHex(ap.Key)
		if err != nil {
			return nil, fmt.Errorf("clmm: tick array key: %w", err)
		}
		arr := tickArray{key: arrKey, startIndex: ap.StartIndex}
		for _, t := range ap.Ticks {
			sqrtP, ok := new(big.Int).SetString(t.SqrtPriceX64, 10)
			if !ok {
				return nil, fmt.Errorf("clmm: tick %d sqrt_price_x64 invalid", t.Index)
			}
			net, ok := new(big.Int).SetString(t.LiquidityNet, 10)
			if !ok {
				return nil, fmt.Errorf("clmm: tick %d liquidity_net invalid", t.Index)
			}
			tk := tick{index: t.Index, sqrtPriceX64: sqrtP, liquidityNet: net}
			arr.ticks = append(arr.ticks, tk)
			a.ticks = append(a.ticks, tk)
		}
		a.arrays = append(a.arrays, arr)
	}
	sort.Slice(a.ticks, func(i, j int) bool { return a.ticks[i].index < a.ticks[j].index })
	sort.Slice(a.arrays, func(i, j int) bool { return a.arrays[i].startIndex < a.arrays[j].startIndex })

	return a, nil
}

func (a *Adapter) Key() venue.Key       { return a.key }
func (a *Adapter) ProgramID() venue.Key { return a.programID }
func (a *Adapter) Kind() venue.Kind     { return venue.KindConcentratedLiquidityA }

func (a *Adapter) ReserveMints() ([]venue.TokenId, error) {
	if !a.primed {
		return nil, venue.ErrNotPrimed
	}
	return []venue.TokenId{a.token0Mint, a.token1Mint}, nil
}

// AccountsToUpdate is dynamic: before priming, only the pool's own state
// account is needed to learn the current tick; afterwards, the tick array
// covering the current tick plus one neighbor on each side join it.
func (a *Adapter) AccountsToUpdate() []venue.Key {
	accounts := []venue.Key{a.poolState}
	if !a.primed {
		return accounts
	}
	idx := a.arrayIndexFor(a.tickCurrent)
	for _, i := range []int{idx - 1, idx, idx + 1} {
		if i >= 0 && i < len(a.arrays) {
			accounts = append(accounts, a.arrays[i].key)
		}
	}
	return accounts
}

func (a *Adapter) arrayIndexFor(tickIndex int32) int {
	for i, arr := range a.arrays {
		if i+1 == len(a.arrays) || tickIndex < a.arrays[i+1].startIndex {
			if tickIndex >= arr.startIndex {
				return i
			}
		}
	}
	return 0
}

// Update reads the pool's current tick, sqrt price and active liquidity.
// A successful read replaces all three atomically; a failed read leaves
// the prior primed state untouched.
func (a *Adapter) Update(store venue.AccountStore, slot *uint64) error {
	blob, ok := store.Get(a.poolState)
	if !ok {
		return venue.ErrAccountMissing
	}
	if len(blob.Data) < poolStateLen {
		return venue.ErrAccountMalformed
	}
	tickCurrent := int32(binary.LittleEndian.Uint32(blob.Data[0:4]))
	sqrtPriceX64 := new(big.Int).SetBytes(reverse(blob.Data[4:20]))
	liquidity := new(big.Int).SetBytes(reverse(blob.Data[20:36]))

	a.tickCurrent = tickCurrent
	a.sqrtPriceX64 = sqrtPriceX64
	a.liquidity = liquidity
	a.primed = true
	return nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// Quote steps the current price across tick boundaries, accumulating
// output until amount is exhausted or the tick list runs out. Running out
// of liquidity mid-swap reports the partial fill as OutAmount, not an
// error, per the concentrated-liquidity contract.
func (a *Adapter) Quote(p venue.QuoteParams) (venue.Quote, error) {
	if !a.primed {
		return venue.Quote{}, venue.ErrNotPrimed
	}
	if p.Mode == venue.ExactOut {
		return venue.Quote{}, venue.ErrUnsupported
	}

	var zeroForOne bool
	switch {
	case p.Input == a.token0Mint && p.Output == a.token1Mint:
		zeroForOne = true
	case p.Input == a.token1Mint && p.Output == a.token0Mint:
		zeroForOne = false
	default:
		return venue.Quote{}, venue.ErrUnsupportedPair
	}

	curSqrt := new(big.Int).Set(a.sqrtPriceX64)
	curLiquidity := new(big.Int).Set(a.liquidity)
	remaining := new(big.Int).SetUint64(p.Amount)
	totalOut := new(big.Int)
	totalFee := new(big.Int)

	tickIdx := a.nextTickIndex(curSqrt, zeroForOne)

	const maxSteps = 256
	for step := 0; step < maxSteps && remaining.Sign() > 0; step++ {
		var target *big.Int
		haveBoundary := false
		if zeroForOne && tickIdx >= 0 {
			target = a.ticks[tickIdx].sqrtPriceX64
			haveBoundary = true
		} else if !zeroForOne && tickIdx < len(a.ticks) {
			target = a.ticks[tickIdx].sqrtPriceX64
			haveBoundary = true
		}
		if !haveBoundary {
			break // liquidity exhausted: report the partial fill accumulated so far
		}

		sqrtNext, amountIn, amountOut, feeAmount, err := computeSwapStep(curSqrt, target, curLiquidity, remaining, a.feeNum, a.feeDen)
		if err != nil {
			return venue.Quote{}, err
		}
		consumed := new(big.Int).Add(amountIn, feeAmount)
		if consumed.Cmp(remaining) > 0 {
			consumed.Set(remaining)
		}
		remaining.Sub(remaining, consumed)
		totalOut.Add(totalOut, amountOut)
		totalFee.Add(totalFee, feeAmount)
		curSqrt = sqrtNext

		if curSqrt.Cmp(target) == 0 {
			net := a.ticks[tickIdx].liquidityNet
			if zeroForOne {
				curLiquidity.Sub(curLiquidity, net)
				tickIdx--
			} else {
				curLiquidity.Add(curLiquidity, net)
				tickIdx++
			}
			if curLiquidity.Sign() < 0 {
				curLiquidity.SetInt64(0)
			}
		} else {
			break // ran out of input strictly inside this tick range
		}
	}

	if !totalOut.IsUint64() || !totalFee.IsUint64() {
		return venue.Quote{}, venue.ErrArithmetic
	}

	feePct := decimal.NewFromInt(int64(a.feeNum)).Div(decimal.NewFromInt(int64(a.feeDen))).Mul(decimal.NewFromInt(10000)).Truncate(4)

	return venue.Quote{
		InAmount:  p.Amount,
		OutAmount: totalOut.Uint64(),
		FeeAmount: totalFee.Uint64(),
		FeeMint:   p.Input,
		FeeBps:    feePct,
	}, nil
}

// nextTickIndex finds the first tick boundary the swap will cross,
// scanning down from the current price if zeroForOne, up otherwise.
func (a *Adapter) nextTickIndex(curSqrt *big.Int, zeroForOne bool) int {
	if zeroForOne {
		for i := len(a.ticks) - 1; i >= 0; i-- {
			if a.ticks[i].sqrtPriceX64.Cmp(curSqrt) < 0 {
				return i
			}
		}
		return -1
	}
	for i := 0; i < len(a.ticks); i++ {
		if a.ticks[i].sqrtPriceX64.Cmp(curSqrt) > 0 {
			return i
		}
	}
	return len(a.ticks)
}

// BuildSwap assembles the account list, mirroring the settlement program's
// expected order: authority (signer), pool key, pool-state account, source,
// destination.
func (a *Adapter) BuildSwap(p venue.SwapParams) (venue.SwapCall, error) {
	if !a.primed {
		return venue.SwapCall{}, venue.ErrNotPrimed
	}
	if p.Input != a.token0Mint && p.Input != a.token1Mint {
		return venue.SwapCall{}, venue.ErrUnsupportedPair
	}

	call := venue.SwapCall{
		Kind: venue.KindConcentratedLiquidityA,
		Accounts: []venue.AccountRef{
			{Key: p.Authority, Signer: true},
			{Key: a.key, Writable: true},
			{Key: a.poolState, Writable: true},
			{Key: p.SrcAccount, Writable: true},
			{Key: p.DstAccount, Writable: true},
		},
	}
	if err := venue.SpecFor(venue.KindConcentratedLiquidityA).Validate(call); err != nil {
		return venue.SwapCall{}, err
	}
	return call, nil
}

func (a *Adapter) HasDynamicAccounts() bool       { return true }
func (a *Adapter) RequiresUpdateForReserves() bool { return true }
func (a *Adapter) SupportsExactOut() bool         { return false }
func (a *Adapter) Unidirectional() bool           { return false }
func (a *Adapter) IsActive() bool                 { return a.primed }
