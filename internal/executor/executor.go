// Package executor turns a strategy-picked SwapCall into a signed,
// submitted on-chain instruction and replies with the settlement signature.
// Grounded on the original Rust prototype's executor task (receive from
// solver, reply via one-shot); no retries happen at this layer, and a
// failure is propagated to the caller verbatim.
package executor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sawpanic/dexrouter/internal/dispatch"
	"github.com/sawpanic/dexrouter/internal/venue"
)

// Metrics groups the prometheus collectors Executor increments; callers
// register these once with their registerer. Any field may be nil.
type Metrics struct {
	SubmittedTotal prometheus.Counter
	FailedTotal    prometheus.Counter
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Signature is the settlement transaction signature returned on success.
type Signature string

// Signer signs a serialized instruction on behalf of authority. The on-chain
// program and wallet custody are external collaborators; this is a thin
// seam tests fill with a fake.
type Signer interface {
	Sign(ctx context.Context, authority venue.Key, message []byte) ([]byte, error)
}

// Submitter submits an already-signed transaction to the configured
// settlement client and returns its signature.
type Submitter interface {
	SubmitSigned(ctx context.Context, txBytes []byte) (Signature, error)
}

// AuditSink records a best-effort receipt of a submitted swap. It is
// optional: a nil Sink (or one returning an error) never blocks or fails
// the executor's reply to the caller.
type AuditSink interface {
	Record(ctx context.Context, rec Receipt) error
}

// Receipt is one row of the append-only audit trail: enough to reconstruct
// what was submitted and when, never enough to replay routing decisions
// (the registry itself stays process-local, per spec §1 non-goals).
type Receipt struct {
	VenueKey   venue.Key
	Kind       venue.Kind
	InputMint  venue.TokenId
	OutputMint venue.TokenId
	InAmount   uint64
	OutAmount  uint64
	Signature  string
	Err        string
}

// Executor is the single consumer of the dispatcher's executor-job channel.
type Executor struct {
	dispatcher *dispatch.Dispatcher
	signer     Signer
	submitter  Submitter
	audit      AuditSink
	log        zerolog.Logger

	submittedTotal prometheus.Counter
	failedTotal    prometheus.Counter
}

// New builds an Executor. audit may be nil.
func New(dispatcher *dispatch.Dispatcher, signer Signer, submitter Submitter, audit AuditSink, metrics Metrics, log zerolog.Logger) *Executor {
	return &Executor{
		dispatcher:     dispatcher,
		signer:         signer,
		submitter:      submitter,
		audit:          audit,
		log:            log.With().Str("component", "executor").Logger(),
		submittedTotal: metrics.SubmittedTotal,
		failedTotal:    metrics.FailedTotal,
	}
}

// Run drains the dispatcher's executor-job channel until ctx is canceled or
// the channel is closed.
func (e *Executor) Run(ctx context.Context) {
	jobs := e.dispatcher.ExecutorJobs()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			e.execute(job)
		}
	}
}

func (e *Executor) execute(job dispatch.SwapJob) {
	if job.Ctx.Err() != nil {
		return
	}

	sig, err := e.submit(job)
	reply := dispatch.SwapReply{
		InputMint:  job.InputMint,
		OutputMint: job.OutputMint,
		InAmount:   job.InAmount,
		OutAmount:  job.OutAmount,
		Route:      &job.Route,
	}
	rec := Receipt{
		VenueKey:   job.Route.VenueKey,
		Kind:       job.Route.Kind,
		InputMint:  job.InputMint,
		OutputMint: job.OutputMint,
		InAmount:   job.InAmount,
		OutAmount:  job.OutAmount,
	}
	if err != nil {
		e.log.Warn().Err(err).Str("venue", job.Route.VenueKey.String()).Msg("swap submission failed")
		reply.Err = err
		rec.Err = err.Error()
		inc(e.failedTotal)
	} else {
		reply.Signature = string(sig)
		rec.Signature = string(sig)
		inc(e.submittedTotal)
	}

	if e.audit != nil {
		if auditErr := e.audit.Record(job.Ctx, rec); auditErr != nil {
			e.log.Warn().Err(auditErr).Msg("audit record failed, execution unaffected")
		}
	}

	dispatch.CloseReply(job.Reply, reply)
}

func (e *Executor) submit(job dispatch.SwapJob) (Signature, error) {
	msg := encodeInstruction(job.Route.ProgramID, job.Call)
	signed, err := e.signer.Sign(job.Ctx, job.Authority, msg)
	if err != nil {
		return "", fmt.Errorf("executor: sign: %w", err)
	}
	sig, err := e.submitter.SubmitSigned(job.Ctx, signed)
	if err != nil {
		return "", fmt.Errorf("executor: submit: %w", err)
	}
	return sig, nil
}

// encodeInstruction assembles the on-chain instruction bytes: the venue's
// program id header followed by the account refs from SwapCall, per spec
// §4.6. There is no real settlement program in this pack to target, so the
// wire layout is the minimal one a Signer/Submitter fake can round-trip:
// program id (32 bytes), account count, then (key, writable, signer) per
// account.
func encodeInstruction(programID venue.Key, call venue.SwapCall) []byte {
	buf := make([]byte, 0, 32+1+len(call.Accounts)*34)
	buf = append(buf, programID[:]...)
	buf = append(buf, byte(len(call.Accounts)))
	for _, ref := range call.Accounts {
		buf = append(buf, ref.Key[:]...)
		buf = append(buf, boolByte(ref.Writable), boolByte(ref.Signer))
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
