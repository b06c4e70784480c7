package dispatch

import (
	"context"

	"github.com/google/uuid"
)

// Dispatcher is the thin adaptation layer between the frontend and the
// strategy/executor stages: it owns the frontend->strategy channel (MPSC —
// multiple frontend workers may share one Dispatcher) and the
// strategy->executor channel. Requests carry no correlation ID of their
// own; NewCorrelationID gives a caller one to thread into its own logs.
type Dispatcher struct {
	toStrategy chan Request
	toExecutor chan SwapJob
}

// New builds a Dispatcher with the given channel buffer depth.
func New(buffer int) *Dispatcher {
	return &Dispatcher{
		toStrategy: make(chan Request, buffer),
		toExecutor: make(chan SwapJob, buffer),
	}
}

// Requests exposes the consumer side the strategy task reads from.
func (d *Dispatcher) Requests() <-chan Request { return d.toStrategy }

// ExecutorJobs exposes the consumer side the executor task reads from.
func (d *Dispatcher) ExecutorJobs() <-chan SwapJob { return d.toExecutor }

// Send enqueues req for the strategy, blocking until there's room or ctx is
// done. This is the frontend's only entry point into the pipeline.
func (d *Dispatcher) Send(ctx context.Context, req Request) error {
	select {
	case d.toStrategy <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forward hands a SwapJob from the strategy to the executor, respecting the
// job's own context so a canceled caller never pins the strategy waiting on
// a full executor queue.
func (d *Dispatcher) Forward(job SwapJob) error {
	select {
	case d.toExecutor <- job:
		return nil
	case <-job.Ctx.Done():
		return job.Ctx.Err()
	}
}

// NewCorrelationID returns a fresh random ID a caller may attach to its own
// logs for one request; nothing in this package stores it. Grounded on the teacher's use of a request-scoped identifier for
// provider call tracing.
func NewCorrelationID() string {
	return uuid.NewString()
}

// CloseReply sends reply on ch without blocking if nobody is listening and
// without panicking if ch was already closed by a canceled caller path.
// Cancellation is observed by the receiver dropping ch; the sender side
// here never re-closes a channel it didn't open.
func CloseReply(ch chan Reply, reply Reply) {
	defer func() {
		// A closed reply channel (caller gave up) makes this send panic;
		// that is the spec's "dispatch: reply channel closed, operation
		// abandoned silently" case.
		_ = recover()
	}()
	select {
	case ch <- reply:
	default:
	}
}
