package aggregator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/dexrouter/internal/venue"
)

func mint(b byte) venue.TokenId {
	var k venue.Key
	k[0] = b
	return k
}

func newTestAdapter(t *testing.T, quoteHandler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(quoteHandler)
	t.Cleanup(srv.Close)

	cfg := Config{
		Key:          mint(9),
		QuoteURL:     srv.URL + "/quote",
		SwapURL:      srv.URL + "/swap",
		InputMint:    mint(1),
		OutputMint:   mint(2),
		BurstLimit:   100,
		SustainedRPS: 100,
	}
	return New(cfg, nil), srv
}

func TestQuote_ParsesUpstreamResponse(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req wireQuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, uint64(1_000), req.AmountIn)
		json.NewEncoder(w).Encode(wireQuoteResponse{OutAmount: 1_991, FeeAmount: 3, FeeBps: "30"})
	})

	q, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)
	require.Equal(t, uint64(1_991), q.OutAmount)
	require.Equal(t, uint64(3), q.FeeAmount)
	require.True(t, q.FeeBps.Equal(decimal.NewFromInt(30)))
}

func TestQuote_RejectsUnconfiguredPair(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not call upstream for an unconfigured pair")
	})

	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(3), Output: mint(2)})
	require.ErrorIs(t, err, venue.ErrUnsupportedPair)
}

func TestQuote_PropagatesUpstreamErrorStatus(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1_000, Input: mint(1), Output: mint(2)})
	require.Error(t, err)
}

func TestQuote_RateLimiterRejectsBurstOverflow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireQuoteResponse{OutAmount: 1, FeeBps: "0"})
	}))
	t.Cleanup(srv.Close)
	a := New(Config{
		Key: mint(9), QuoteURL: srv.URL, InputMint: mint(1), OutputMint: mint(2),
		BurstLimit: 1, SustainedRPS: 0.001,
	}, nil)

	_, err := a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1, Input: mint(1), Output: mint(2)})
	require.NoError(t, err)
	_, err = a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1, Input: mint(1), Output: mint(2)})
	require.Error(t, err)
}

func TestBuildSwap_DecodesAccountList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireSwapResponse{
			ProgramID: mint(5).String(),
			Accounts: []wireAccountEntry{
				{Key: mint(1).String(), Writable: true},
				{Key: mint(2).String(), Signer: true},
			},
		})
	}))
	t.Cleanup(srv.Close)
	a := New(Config{Key: mint(9), SwapURL: srv.URL, InputMint: mint(1), OutputMint: mint(2)}, nil)

	call, err := a.BuildSwap(venue.SwapParams{QuoteParams: venue.QuoteParams{Input: mint(1), Output: mint(2), Amount: 10}})
	require.NoError(t, err)
	require.Equal(t, venue.KindAggregator, call.Kind)
	require.Len(t, call.Accounts, 2)
	require.True(t, call.Accounts[0].Writable)
	require.True(t, call.Accounts[1].Signer)
}

func TestIsActive_TripsAfterConsecutiveFailures(t *testing.T) {
	a, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	for i := 0; i < 3; i++ {
		_, _ = a.Quote(venue.QuoteParams{Mode: venue.ExactIn, Amount: 1, Input: mint(1), Output: mint(2)})
	}
	require.False(t, a.IsActive())
}
