package pmm

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

func mint(b byte) venue.TokenId {
	var k venue.Key
	k[0] = b
	return k
}

func acct(b byte) venue.Key {
	var k venue.Key
	k[0] = b
	return k
}

func oracleBlob(price, publishSlot uint64) venue.AccountBlob {
	data := make([]byte, oracleAccountLen)
	binary.LittleEndian.PutUint64(data[0:8], price)
	binary.LittleEndian.PutUint64(data[8:16], publishSlot)
	return venue.AccountBlob{Data: data}
}

func curveBlob(realX, realY, concentration uint64) venue.AccountBlob {
	data := make([]byte, curveAccountLen)
	binary.LittleEndian.PutUint64(data[0:8], realX)
	binary.LittleEndian.PutUint64(data[8:16], realY)
	binary.LittleEndian.PutUint64(data[16:24], concentration)
	return venue.AccountBlob{Data: data}
}

func tokenBlob(amount uint64) venue.AccountBlob {
	data := make([]byte, tokenAccountAmountOffset+8)
	binary.LittleEndian.PutUint64(data[tokenAccountAmountOffset:], amount)
	return venue.AccountBlob{Data: data}
}

func newPrimedOracle(t *testing.T, price uint64) *OracleAdapter {
	t.Helper()
	a := &OracleAdapter{
		mintBase:      mint(1),
		mintQuote:     mint(2),
		oracleAccount: acct(9),
		feeNum:        30,
		feeDen:        10000,
	}
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{a.oracleAccount: oracleBlob(price, 100)}}
	require.NoError(t, a.Update(store, nil))
	return a
}

func TestOracleAdapter_QuotesAtPublishedPrice(t *testing.T) {
	// price = 2.0 in Q32.32 (quote per base)
	a := newPrimedOracle(t, 2*priceScale)

	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)
	require.Equal(t, uint64(3), q.FeeAmount)
	require.Equal(t, uint64(1_994), q.OutAmount) // (1000-3)*2
}

func TestOracleAdapter_InvertsForReverseDirection(t *testing.T) {
	a := newPrimedOracle(t, 2*priceScale)

	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 2_000, Input: mint(2), Output: mint(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(997), q.OutAmount) // (2000-6)/2
}

func TestOracleAdapter_RejectsStalePrice(t *testing.T) {
	a := &OracleAdapter{
		mintBase:      mint(1),
		mintQuote:     mint(2),
		oracleAccount: acct(9),
		feeNum:        30,
		feeDen:        10000,
	}
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{a.oracleAccount: oracleBlob(2*priceScale, 100)}}
	slot := uint64(100 + staleAfterSlots + 1)
	require.NoError(t, a.Update(store, &slot))

	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(1), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrOracleStale)
}

func TestOracleAdapter_RejectsExactOut(t *testing.T) {
	a := newPrimedOracle(t, 2*priceScale)
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactOut, Amount: 1_000, Input: mint(1), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrUnsupported)
}

func TestOracleAdapter_RejectsUnknownPair(t *testing.T) {
	a := newPrimedOracle(t, 2*priceScale)
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(3), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrUnsupportedPair)
}

func newPrimedCurve(t *testing.T, realX, realY, concentration uint64) *PriceCurveAdapter {
	t.Helper()
	a := &PriceCurveAdapter{
		mintX:        mint(1),
		mintY:        mint(2),
		curveAccount: acct(9),
		feeNum:       30,
		feeDen:       10000,
	}
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{a.curveAccount: curveBlob(realX, realY, concentration)}}
	require.NoError(t, a.Update(store, nil))
	return a
}

func TestPriceCurveAdapter_WidensLiquidityByConcentration(t *testing.T) {
	unit := newPrimedCurve(t, 1_000_000, 2_000_000, concentrationScale) // concentration == 1x
	wide := newPrimedCurve(t, 1_000_000, 2_000_000, 10*concentrationScale)

	qUnit, err := unit.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 100_000, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)
	qWide, err := wide.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 100_000, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)

	require.Greater(t, qWide.OutAmount, qUnit.OutAmount, "a higher concentration must yield less slippage for the same trade")
}

func TestPriceCurveAdapter_ZeroConcentrationAccountRejected(t *testing.T) {
	a := &PriceCurveAdapter{mintX: mint(1), mintY: mint(2), curveAccount: acct(9)}
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{a.curveAccount: curveBlob(1_000, 2_000, 0)}}
	require.ErrorIs(t, a.Update(store, nil), venue.ErrAccountMalformed)
}

func TestPriceCurveAdapter_RejectsUnknownPair(t *testing.T) {
	a := newPrimedCurve(t, 1_000_000, 2_000_000, concentrationScale)
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(3), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrUnsupportedPair)
}

func newPrimedSimulated(t *testing.T, x, y uint64) *SimulatedAdapter {
	t.Helper()
	a := &SimulatedAdapter{
		mintA:  mint(1),
		mintB:  mint(2),
		vaultA: acct(10),
		vaultB: acct(11),
	}
	sandbox, err := NewMemSandbox(a.vaultA, a.vaultB, 30, 10000)
	require.NoError(t, err)
	a.sandbox = sandbox
	store := &fakeStore{blobs: map[venue.Key]venue.AccountBlob{
		a.vaultA: tokenBlob(x),
		a.vaultB: tokenBlob(y),
	}}
	require.NoError(t, a.Update(store, nil))
	return a
}

func TestSimulatedAdapter_QuotesViaSandboxExecution(t *testing.T) {
	a := newPrimedSimulated(t, 1_000_000, 2_000_000)

	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)
	require.Equal(t, uint64(1_992), q.OutAmount) // floor(997*2_000_000/1_000_997)
}

func TestSimulatedAdapter_QuotesOppositeDirectionAgainstSwappedReserves(t *testing.T) {
	a := newPrimedSimulated(t, 1_000_000, 2_000_000)

	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(2), Output: mint(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(498), q.OutAmount)
}

func TestSimulatedAdapter_NeverPrimedReturnsError(t *testing.T) {
	a := &SimulatedAdapter{mintA: mint(1), mintB: mint(2)}
	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(1), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrNotPrimed)
}

func TestSimulatedAdapter_BuildSwapOrdersAccountsByDirection(t *testing.T) {
	a := newPrimedSimulated(t, 1_000_000, 2_000_000)

	call, err := a.BuildSwap(venue.SwapParams{
		QuoteParams: venue.QuoteParams{Input: mint(1), Output: mint(2)},
		SrcAccount:  acct(20),
		DstAccount:  acct(21),
		Authority:   acct(22),
	})
	require.NoError(t, err)
	require.Equal(t, venue.KindPMMSimulated, call.Kind)
	require.Equal(t, a.vaultA, call.Accounts[3].Key)
	require.Equal(t, a.vaultB, call.Accounts[4].Key)
}
