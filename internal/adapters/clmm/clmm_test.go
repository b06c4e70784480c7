package clmm

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/dexrouter/internal/venue"
)

type fakeStore struct {
	blobs map[venue.Key]venue.AccountBlob
}

func (s *fakeStore) Get(key venue.Key) (venue.AccountBlob, bool) {
	b, ok := s.blobs[key]
	return b, ok
}

func mint(b byte) venue.TokenId {
	var k venue.Key
	k[0] = b
	return k
}

func poolBlob(tickCurrent int32, sqrtPriceX64, liquidity *big.Int) venue.AccountBlob {
	data := make([]byte, poolStateLen)
	binary.LittleEndian.PutUint32(data[0:4], uint32(tickCurrent))
	copy(data[4:20], leBytes(sqrtPriceX64, 16))
	copy(data[20:36], leBytes(liquidity, 16))
	return venue.AccountBlob{Data: data}
}

// leBytes renders v as n little-endian bytes, most-significant bytes
// truncated away if v doesn't fit (tests here always fit).
func leBytes(v *big.Int, n int) []byte {
	be := v.Bytes()
	padded := make([]byte, n)
	copy(padded[n-len(be):], be)
	le := make([]byte, n)
	for i := 0; i < n; i++ {
		le[i] = padded[n-1-i]
	}
	return le
}

func q64() *big.Int { return new(big.Int).Lsh(big.NewInt(1), 64) }

// Hand-derived scenario: price ratio 1 -> 4 (sqrt 1 -> 2), liquidity 500,
// a single tick boundary exactly at the target price with zero net. A
// token1-in swap of 1000 reaches the boundary after consuming exactly 500,
// producing exactly 250 token0 out, then the tick list is exhausted so the
// remaining 500 is an unfilled partial fill (not an error).
func TestQuote_TickCrossingExactBoundary(t *testing.T) {
	sqrtCurrent := q64()
	sqrtTarget := new(big.Int).Mul(q64(), big.NewInt(2))

	a := &Adapter{
		token0Mint:   mint(1),
		token1Mint:   mint(2),
		poolState:    mint(50),
		feeNum:       0,
		feeDen:       1,
		primed:       true,
		tickCurrent:  0,
		sqrtPriceX64: sqrtCurrent,
		liquidity:    big.NewInt(500),
		ticks: []tick{
			{index: 100, sqrtPriceX64: sqrtTarget, liquidityNet: big.NewInt(0)},
		},
	}

	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1000, Input: mint(2), Output: mint(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(1000), q.InAmount)
	require.Equal(t, uint64(250), q.OutAmount)
	require.Equal(t, uint64(0), q.FeeAmount)
}

func TestQuote_ExhaustedLiquidityReportsZeroNotError(t *testing.T) {
	a := &Adapter{
		token0Mint:   mint(1),
		token1Mint:   mint(2),
		feeDen:       1,
		primed:       true,
		sqrtPriceX64: q64(),
		liquidity:    big.NewInt(1_000_000),
	}
	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 500, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)
	require.Equal(t, uint64(0), q.OutAmount)
}

func TestQuote_NotPrimed(t *testing.T) {
	a := &Adapter{}
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1, Input: mint(1), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrNotPrimed)
}

func TestQuote_UnsupportedPair(t *testing.T) {
	a := &Adapter{token0Mint: mint(1), token1Mint: mint(2), primed: true, sqrtPriceX64: q64(), liquidity: big.NewInt(1)}
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1, Input: mint(1), Output: mint(9)})
	require.ErrorIs(t, err, venue.ErrUnsupportedPair)
}

func TestUpdate_ReadsPoolState(t *testing.T) {
	a := &Adapter{poolState: mint(50)}
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{
		mint(50): poolBlob(42, q64(), big.NewInt(777)),
	}}
	require.NoError(t, a.Update(store, nil))
	require.True(t, a.primed)
	require.Equal(t, int32(42), a.tickCurrent)
	require.Equal(t, 0, a.sqrtPriceX64.Cmp(q64()))
	require.Equal(t, int64(777), a.liquidity.Int64())
}

func TestAccountsToUpdate_DynamicBeforeAndAfterPriming(t *testing.T) {
	a := &Adapter{
		poolState: mint(50),
		arrays: []tickArray{
			{key: mint(60), startIndex: -1000},
			{key: mint(61), startIndex: 0},
			{key: mint(62), startIndex: 1000},
		},
	}
	require.Equal(t, []venue.Key{mint(50)}, a.AccountsToUpdate())

	a.primed = true
	a.tickCurrent = 5
	accounts := a.AccountsToUpdate()
	require.Contains(t, accounts, mint(50))
	require.Contains(t, accounts, mint(61))
	require.True(t, a.HasDynamicAccounts())
}
