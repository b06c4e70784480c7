package cpamm

import (
	"encoding/binary"
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

func tokenBlob(amount uint64) venue.AccountBlob {
	data := make([]byte, tokenAccountAmountOffset+8)
	binary.LittleEndian.PutUint64(data[tokenAccountAmountOffset:], amount)
	return venue.AccountBlob{Data: data}
}

func mint(b byte) venue.TokenId {
	var k venue.Key
	k[0] = b
	return k
}

func newPrimed(t *testing.T, x, y uint64) *Adapter {
	t.Helper()
	a := &Adapter{
		tokenAMint: mint(1),
		tokenBMint: mint(2),
		vaultA:     mint(10),
		vaultB:     mint(11),
		feeNum:     30,
		feeDen:     10000,
		ownerFeeDen: 1,
	}
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{
		a.vaultA: tokenBlob(x),
		a.vaultB: tokenBlob(y),
	}}
	require.NoError(t, a.Update(store, nil))
	return a
}

// S1 from the scenario table: x=1_000_000, y=2_000_000, fee=30/10_000,
// amount_in=1_000 must yield fee_amount=3, amount_net=997 and
// out_amount=floor(997*2_000_000/1_000_997)=1_992.
func TestQuote_ScenarioS1(t *testing.T) {
	a := newPrimed(t, 1_000_000, 2_000_000)

	q, err := a.Quote(venue.QuoteParams{
		Mode:   venue.ExactIn,
		Amount: 1_000,
		Input:  mint(1),
		Output: mint(2),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), q.InAmount)
	require.Equal(t, uint64(3), q.FeeAmount)
	require.Equal(t, uint64(1_992), q.OutAmount)
}

func TestQuote_InAmountAlwaysEqualsRequestedAmount(t *testing.T) {
	a := newPrimed(t, 500, 500)
	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 77, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)
	require.Equal(t, uint64(77), q.InAmount)
}

func TestQuote_UnsupportedPairReturnsError(t *testing.T) {
	a := newPrimed(t, 1000, 1000)
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1, Input: mint(1), Output: mint(99)})
	require.ErrorIs(t, err, venue.ErrUnsupportedPair)
}

func TestQuote_NotPrimedReturnsError(t *testing.T) {
	a := &Adapter{}
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1, Input: mint(1), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrNotPrimed)
}

func TestQuote_ExactOutUnsupported(t *testing.T) {
	a := newPrimed(t, 1000, 1000)
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactOut, Amount: 1, Input: mint(1), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrUnsupported)
}

func TestUpdate_MissingAccountLeavesPriorStateUntouched(t *testing.T) {
	a := newPrimed(t, 1000, 2000)
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{
		a.vaultA: tokenBlob(999),
	}}
	err := a.Update(store, nil)
	require.ErrorIs(t, err, venue.ErrAccountMissing)
	require.Equal(t, uint64(1000), a.reserveA)
	require.True(t, a.IsActive())
}

func TestBuildSwap_RespectsAccountsLenBound(t *testing.T) {
	a := newPrimed(t, 1000, 2000)
	call, err := a.BuildSwap(venue.SwapParams{
		QuoteParams: venue.QuoteParams{Input: mint(1), Output: mint(2)},
		SrcAccount:  mint(20),
		DstAccount:  mint(21),
		Authority:   mint(22),
	})
	require.NoError(t, err)
	require.Equal(t, venue.KindConstantProductA, call.Kind)
	require.LessOrEqual(t, len(call.Accounts), venue.SpecFor(venue.KindConstantProductA).AccountsLen)
}

func TestMulDivFloor_DivisionByZero(t *testing.T) {
	_, err := mulDivFloor(1, 1, 0)
	require.ErrorIs(t, err, venue.ErrArithmetic)
}

func TestMulDivFloor_OverflowingQuotient(t *testing.T) {
	_, err := mulDivFloor(1<<63, 1<<63, 1)
	require.ErrorIs(t, err, venue.ErrArithmetic)
}
