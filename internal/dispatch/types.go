// Package dispatch defines the request/reply protocol linking the (external)
// HTTP frontend to the strategy and executor stages: a single-consumer
// channel of requests that several frontend workers may send on, each carrying a one-shot reply
// channel the consumer fulfills exactly once.
package dispatch

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// Request is the tagged variant the frontend sends: either a quote or a
// swap, each embedding its own one-shot reply channel. Ctx carries the
// frontend's deadline/cancellation; strategy and executor must stop short
// of dispatching once Ctx is done rather than block on a dead receiver.
type Request interface {
	request()
	Context() context.Context
}

// QuoteRequest asks the strategy to pick the best venue for params and
// reply with a priced (possibly zero-liquidity) quote.
type QuoteRequest struct {
	Ctx    context.Context
	Params venue.QuoteParams
	Reply  chan Reply
}

func (*QuoteRequest) request()                       {}
func (r *QuoteRequest) Context() context.Context { return r.Ctx }

// SwapRequest asks the strategy to pick a venue, build its swap call, and
// hand off to the executor; the executor replies directly on Reply.
type SwapRequest struct {
	Ctx    context.Context
	Params venue.SwapParams
	Reply  chan Reply
}

func (*SwapRequest) request()                       {}
func (r *SwapRequest) Context() context.Context { return r.Ctx }

// Reply is the tagged variant carried back on a request's one-shot.
type Reply interface {
	reply()
}

// Route echoes which venue answered a request, or is nil when no venue
// produced a usable quote.
type Route struct {
	VenueKey  venue.Key
	Kind      venue.Kind
	ProgramID venue.Key
	FeeBps    decimal.Decimal
}

// QuoteReply answers a QuoteRequest. OutAmount == 0 with Route == nil means
// "no route" — spec-fixed as a reply, not an error, so the frontend can
// render it as HTTP 200.
type QuoteReply struct {
	InputMint  venue.TokenId
	OutputMint venue.TokenId
	InAmount   uint64
	OutAmount  uint64
	FeeAmount  uint64
	FeeMint    venue.TokenId
	Route      *Route
}

func (QuoteReply) reply() {}

// SwapReply answers a SwapRequest, sent by the executor once the on-chain
// submission resolves (or fails). Err is non-nil on executor failure; no
// retry happens at this layer.
type SwapReply struct {
	InputMint  venue.TokenId
	OutputMint venue.TokenId
	InAmount   uint64
	OutAmount  uint64
	Route      *Route
	Signature  string
	Err        error
}

func (SwapReply) reply() {}

// SwapJob is what the strategy forwards to the executor once it has picked
// a winning venue and built its SwapCall: the executor signs, submits, and
// replies directly to the original caller through Reply.
type SwapJob struct {
	Ctx        context.Context
	Call       venue.SwapCall
	Route      Route
	Authority  venue.Key
	InputMint  venue.TokenId
	OutputMint venue.TokenId
	InAmount   uint64
	OutAmount  uint64
	Reply      chan Reply
}
