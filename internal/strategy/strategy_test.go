package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/dexrouter/internal/dispatch"
	"github.com/sawpanic/dexrouter/internal/registry"
	"github.com/sawpanic/dexrouter/internal/venue"
)

type fakeVenue struct {
	key       venue.Key
	mintA     venue.Key
	mintB     venue.Key
	out       uint64
	feeBps    int64
	active    bool
	quoteErr  error
	buildErr  error
}

func (f *fakeVenue) Key() venue.Key       { return f.key }
func (f *fakeVenue) ProgramID() venue.Key { return f.key }
func (f *fakeVenue) Kind() venue.Kind     { return venue.KindConstantProductA }
func (f *fakeVenue) ReserveMints() ([]venue.TokenId, error) {
	return []venue.TokenId{f.mintA, f.mintB}, nil
}
func (f *fakeVenue) AccountsToUpdate() []venue.Key { return nil }
func (f *fakeVenue) Update(store venue.AccountStore, slot *uint64) error { return nil }
func (f *fakeVenue) Quote(p venue.QuoteParams) (venue.Quote, error) {
	if f.quoteErr != nil {
		return venue.Quote{}, f.quoteErr
	}
	return venue.Quote{InAmount: p.Amount, OutAmount: f.out, FeeBps: decimal.NewFromInt(f.feeBps)}, nil
}
func (f *fakeVenue) BuildSwap(p venue.SwapParams) (venue.SwapCall, error) {
	if f.buildErr != nil {
		return venue.SwapCall{}, f.buildErr
	}
	return venue.SwapCall{Kind: venue.KindConstantProductA, Accounts: []venue.AccountRef{{Key: f.key}}}, nil
}
func (f *fakeVenue) HasDynamicAccounts() bool       { return false }
func (f *fakeVenue) RequiresUpdateForReserves() bool { return false }
func (f *fakeVenue) SupportsExactOut() bool         { return false }
func (f *fakeVenue) Unidirectional() bool           { return false }
func (f *fakeVenue) IsActive() bool                 { return f.active }

func keyOf(b byte) venue.Key {
	var k venue.Key
	k[0] = b
	return k
}

func newRegistry(venues ...*fakeVenue) *registry.Registry {
	reg := registry.New(zerolog.Nop())
	for _, v := range venues {
		reg.Add(v)
	}
	return reg
}

func TestHandleQuote_NoCandidateRepliesZeroOut(t *testing.T) {
	reg := newRegistry()
	d := dispatch.New(1)
	s := New(reg, d, Metrics{}, zerolog.Nop())

	req := &dispatch.QuoteRequest{
		Ctx:    context.Background(),
		Params: venue.QuoteParams{Mode: venue.ExactIn, Amount: 1000, Input: keyOf(1), Output: keyOf(2)},
		Reply:  make(chan dispatch.Reply, 1),
	}
	s.handleQuote(req)

	reply := (<-req.Reply).(dispatch.QuoteReply)
	require.Equal(t, uint64(1000), reply.InAmount)
	require.Equal(t, uint64(0), reply.OutAmount)
	require.Nil(t, reply.Route)
}

// S3 from the scenario table: two adapters tie on out_amount and fee_bps;
// the lexicographically smaller key wins.
func TestHandleQuote_TieBreaksOnVenueKey(t *testing.T) {
	v1 := &fakeVenue{key: keyOf(1), mintA: keyOf(1), mintB: keyOf(2), out: 500, feeBps: 30, active: true}
	v2 := &fakeVenue{key: keyOf(2), mintA: keyOf(1), mintB: keyOf(2), out: 500, feeBps: 30, active: true}
	reg := newRegistry(v1, v2)
	d := dispatch.New(1)
	s := New(reg, d, Metrics{}, zerolog.Nop())

	req := &dispatch.QuoteRequest{
		Ctx:    context.Background(),
		Params: venue.QuoteParams{Mode: venue.ExactIn, Amount: 1000, Input: keyOf(1), Output: keyOf(2)},
		Reply:  make(chan dispatch.Reply, 1),
	}
	s.handleQuote(req)

	reply := (<-req.Reply).(dispatch.QuoteReply)
	require.NotNil(t, reply.Route)
	require.Equal(t, v1.key, reply.Route.VenueKey)
}

func TestHandleQuote_PicksHighestOutAmount(t *testing.T) {
	v1 := &fakeVenue{key: keyOf(1), mintA: keyOf(1), mintB: keyOf(2), out: 400, feeBps: 10, active: true}
	v2 := &fakeVenue{key: keyOf(2), mintA: keyOf(1), mintB: keyOf(2), out: 600, feeBps: 50, active: true}
	reg := newRegistry(v1, v2)
	d := dispatch.New(1)
	s := New(reg, d, Metrics{}, zerolog.Nop())

	req := &dispatch.QuoteRequest{
		Ctx:    context.Background(),
		Params: venue.QuoteParams{Mode: venue.ExactIn, Amount: 1000, Input: keyOf(1), Output: keyOf(2)},
		Reply:  make(chan dispatch.Reply, 1),
	}
	s.handleQuote(req)

	reply := (<-req.Reply).(dispatch.QuoteReply)
	require.Equal(t, v2.key, reply.Route.VenueKey)
}

func TestHandleQuote_ExcludesInactiveVenue(t *testing.T) {
	v1 := &fakeVenue{key: keyOf(1), mintA: keyOf(1), mintB: keyOf(2), out: 900, feeBps: 10, active: false}
	v2 := &fakeVenue{key: keyOf(2), mintA: keyOf(1), mintB: keyOf(2), out: 100, feeBps: 10, active: true}
	reg := newRegistry(v1, v2)
	d := dispatch.New(1)
	s := New(reg, d, Metrics{}, zerolog.Nop())

	req := &dispatch.QuoteRequest{
		Ctx:    context.Background(),
		Params: venue.QuoteParams{Mode: venue.ExactIn, Amount: 1000, Input: keyOf(1), Output: keyOf(2)},
		Reply:  make(chan dispatch.Reply, 1),
	}
	s.handleQuote(req)

	reply := (<-req.Reply).(dispatch.QuoteReply)
	require.Equal(t, v2.key, reply.Route.VenueKey)
}

func TestHandleSwap_ForwardsJobToExecutor(t *testing.T) {
	v1 := &fakeVenue{key: keyOf(1), mintA: keyOf(1), mintB: keyOf(2), out: 500, feeBps: 10, active: true}
	reg := newRegistry(v1)
	d := dispatch.New(1)
	s := New(reg, d, Metrics{}, zerolog.Nop())

	req := &dispatch.SwapRequest{
		Ctx: context.Background(),
		Params: venue.SwapParams{
			QuoteParams: venue.QuoteParams{Mode: venue.ExactIn, Amount: 1000, Input: keyOf(1), Output: keyOf(2)},
			Authority:   keyOf(50),
		},
		Reply: make(chan dispatch.Reply, 1),
	}
	s.handleSwap(req)

	select {
	case job := <-d.ExecutorJobs():
		require.Equal(t, v1.key, job.Route.VenueKey)
		require.Equal(t, uint64(500), job.OutAmount)
	case <-time.After(time.Second):
		t.Fatal("expected a swap job to be forwarded")
	}
}

func TestHandle_CanceledRequestIsNotDispatched(t *testing.T) {
	reg := newRegistry()
	d := dispatch.New(1)
	s := New(reg, d, Metrics{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := &dispatch.QuoteRequest{Ctx: ctx, Reply: make(chan dispatch.Reply, 1)}
	s.handle(req)

	select {
	case <-req.Reply:
		t.Fatal("canceled request must not be dispatched")
	default:
	}
}
