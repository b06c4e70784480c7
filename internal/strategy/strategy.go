// Package strategy implements the route solver: on each request it locks
// the venue registry just long enough to scan matching venues for quotes,
// picks a winner, and either replies inline (quotes) or hands off to the
// executor (swaps). Grounded on the teacher's internal/application/pipeline
// candidate-scan shape, reshaped into a synchronous scan-and-pick.
package strategy

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sawpanic/dexrouter/internal/dispatch"
	"github.com/sawpanic/dexrouter/internal/registry"
	"github.com/sawpanic/dexrouter/internal/venue"
)

// Metrics groups the prometheus collectors Strategy increments; callers
// register these once with their registerer. Any field may be nil.
type Metrics struct {
	RequestsTotal prometheus.Counter
	NoRouteTotal  prometheus.Counter
}

// Strategy is the single consumer of the dispatcher's request channel.
// Request processing is sequential: no internal parallelism, and polling an
// adapter never performs I/O.
type Strategy struct {
	reg        *registry.Registry
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger

	requestsTotal prometheus.Counter
	noRouteTotal  prometheus.Counter
}

// New builds a Strategy bound to reg and the dispatcher it reads requests
// from and forwards swap jobs through.
func New(reg *registry.Registry, dispatcher *dispatch.Dispatcher, metrics Metrics, log zerolog.Logger) *Strategy {
	return &Strategy{
		reg:           reg,
		dispatcher:    dispatcher,
		log:           log.With().Str("component", "strategy").Logger(),
		requestsTotal: metrics.RequestsTotal,
		noRouteTotal:  metrics.NoRouteTotal,
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Run drains the dispatcher's request channel until ctx is canceled or the
// channel is closed.
func (s *Strategy) Run(ctx context.Context) {
	requests := s.dispatcher.Requests()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			s.handle(req)
		}
	}
}

func (s *Strategy) handle(req dispatch.Request) {
	if req.Context().Err() != nil {
		// Caller already gave up; release without dispatching (spec §5
		// cancellation contract).
		return
	}
	inc(s.requestsTotal)
	switch r := req.(type) {
	case *dispatch.QuoteRequest:
		s.handleQuote(r)
	case *dispatch.SwapRequest:
		s.handleSwap(r)
	}
}

// candidate pairs a venue with the quote it produced, for tie-breaking.
type candidate struct {
	v venue.Venue
	q venue.Quote
}

// scan acquires the registry mutex for the duration of the snapshot and
// every per-venue quote call via Registry.ScanActive, then releases it
// before any reply is sent — the registry mutex is never held while
// replying (spec §4.5/§5). Holding it across the quote loop itself is what
// makes the scan observe a true point-in-time snapshot consistent with the
// ingestor's Update calls, which hold the same mutex; Quote performs no
// I/O, so this costs nothing. routable, when true, additionally excludes
// Aggregator venues: they answer quotes on the same surface as on-chain
// venues but own their own settlement path and are never routed to the
// executor (spec §6).
func (s *Strategy) scan(params venue.QuoteParams, routable bool) (candidate, bool) {
	var best candidate
	haveBest := false
	s.reg.ScanActive(func(active []venue.Venue) {
		for _, v := range active {
			if routable && v.Kind() == venue.KindAggregator {
				continue
			}
			mints, err := v.ReserveMints()
			if err != nil {
				continue
			}
			if !containsBoth(mints, params.Input, params.Output) {
				continue
			}
			q, err := v.Quote(params)
			if err != nil || q.OutAmount == 0 {
				continue
			}
			if !haveBest || better(q, v.Key(), best.q, best.v.Key()) {
				best = candidate{v: v, q: q}
				haveBest = true
			}
		}
	})
	return best, haveBest
}

// better reports whether (q, key) beats (bestQ, bestKey) under the spec's
// tie-break: maximize OutAmount, then minimize FeeBps, then lexicographic
// venue key (spec scenario S3). Deterministic given the same registry
// snapshot and params (spec invariant 5).
func better(q venue.Quote, key venue.Key, bestQ venue.Quote, bestKey venue.Key) bool {
	if q.OutAmount != bestQ.OutAmount {
		return q.OutAmount > bestQ.OutAmount
	}
	cmp := q.FeeBps.Cmp(bestQ.FeeBps)
	if cmp != 0 {
		return cmp < 0
	}
	return key.Less(bestKey)
}

func containsBoth(mints []venue.TokenId, a, b venue.TokenId) bool {
	var haveA, haveB bool
	for _, m := range mints {
		if m == a {
			haveA = true
		}
		if m == b {
			haveB = true
		}
	}
	return haveA && haveB
}

func (s *Strategy) handleQuote(req *dispatch.QuoteRequest) {
	best, ok := s.scan(req.Params, false)
	if !ok {
		// No candidate venue: zero-out quote, not an error (spec S2).
		inc(s.noRouteTotal)
		dispatch.CloseReply(req.Reply, dispatch.QuoteReply{
			InputMint:  req.Params.Input,
			OutputMint: req.Params.Output,
			InAmount:   req.Params.Amount,
			OutAmount:  0,
		})
		return
	}
	dispatch.CloseReply(req.Reply, dispatch.QuoteReply{
		InputMint:  req.Params.Input,
		OutputMint: req.Params.Output,
		InAmount:   best.q.InAmount,
		OutAmount:  best.q.OutAmount,
		FeeAmount:  best.q.FeeAmount,
		FeeMint:    best.q.FeeMint,
		Route: &dispatch.Route{
			VenueKey:  best.v.Key(),
			Kind:      best.v.Kind(),
			ProgramID: best.v.ProgramID(),
			FeeBps:    best.q.FeeBps,
		},
	})
}

func (s *Strategy) handleSwap(req *dispatch.SwapRequest) {
	best, ok := s.scan(req.Params.QuoteParams, true)
	if !ok {
		inc(s.noRouteTotal)
		dispatch.CloseReply(req.Reply, dispatch.SwapReply{
			InputMint:  req.Params.Input,
			OutputMint: req.Params.Output,
			InAmount:   req.Params.Amount,
			OutAmount:  0,
		})
		return
	}

	call, err := best.v.BuildSwap(req.Params)
	if err != nil {
		dispatch.CloseReply(req.Reply, dispatch.SwapReply{
			InputMint:  req.Params.Input,
			OutputMint: req.Params.Output,
			InAmount:   req.Params.Amount,
			Err:        err,
		})
		return
	}

	route := dispatch.Route{VenueKey: best.v.Key(), Kind: best.v.Kind(), ProgramID: best.v.ProgramID(), FeeBps: best.q.FeeBps}
	job := dispatch.SwapJob{
		Ctx:        req.Ctx,
		Call:       call,
		Route:      route,
		Authority:  req.Params.Authority,
		InputMint:  req.Params.Input,
		OutputMint: req.Params.Output,
		InAmount:   best.q.InAmount,
		OutAmount:  best.q.OutAmount,
		Reply:      req.Reply,
	}
	// Strategy does not wait for the executor; the executor replies directly
	// to the caller on job.Reply (spec §4.5 step 4).
	if err := s.dispatcher.Forward(job); err != nil {
		s.log.Warn().Err(err).Str("venue", best.v.Key().String()).Msg("swap job forward canceled")
	}
}
