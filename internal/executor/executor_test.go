package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/dexrouter/internal/dispatch"
	"github.com/sawpanic/dexrouter/internal/venue"
)

type fakeSigner struct {
	err error
}

func (f *fakeSigner) Sign(ctx context.Context, authority venue.Key, msg []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return msg, nil
}

type fakeSubmitter struct {
	sig Signature
	err error
	got []byte
}

func (f *fakeSubmitter) SubmitSigned(ctx context.Context, txBytes []byte) (Signature, error) {
	f.got = txBytes
	if f.err != nil {
		return "", f.err
	}
	return f.sig, nil
}

type fakeAuditSink struct {
	records []Receipt
}

func (f *fakeAuditSink) Record(ctx context.Context, rec Receipt) error {
	f.records = append(f.records, rec)
	return nil
}

func keyOf(b byte) venue.Key {
	var k venue.Key
	k[0] = b
	return k
}

// S6 from the scenario table: the executor submits exactly the account refs
// BuildSwap produced, in order, and the one-shot carries the signature.
func TestExecute_SubmitsAndRepliesWithSignature(t *testing.T) {
	submitter := &fakeSubmitter{sig: "sig-abc"}
	audit := &fakeAuditSink{}
	d := dispatch.New(1)
	exec := New(d, &fakeSigner{}, submitter, audit, Metrics{}, zerolog.Nop())

	call := venue.SwapCall{
		Kind: venue.KindConstantProductA,
		Accounts: []venue.AccountRef{
			{Key: keyOf(1), Writable: true},
			{Key: keyOf(2), Signer: true},
		},
	}
	reply := make(chan dispatch.Reply, 1)
	job := dispatch.SwapJob{
		Ctx:        context.Background(),
		Call:       call,
		Route:      dispatch.Route{VenueKey: keyOf(9), Kind: venue.KindConstantProductA, ProgramID: keyOf(42)},
		Authority:  keyOf(50),
		InputMint:  keyOf(1),
		OutputMint: keyOf(2),
		InAmount:   1000,
		OutAmount:  990,
		Reply:      reply,
	}
	exec.execute(job)

	r := (<-reply).(dispatch.SwapReply)
	require.Equal(t, "sig-abc", r.Signature)
	require.NoError(t, r.Err)
	require.Len(t, audit.records, 1)
	require.Equal(t, "sig-abc", audit.records[0].Signature)

	// program id header, then 2 accounts * (32+1+1 bytes)
	require.Equal(t, 32+1+2*34, len(submitter.got))
	require.Equal(t, keyOf(42)[:], submitter.got[:32])
}

func TestExecute_SubmitErrorPropagatesToCallerVerbatim(t *testing.T) {
	submitter := &fakeSubmitter{err: errors.New("settlement rejected")}
	d := dispatch.New(1)
	exec := New(d, &fakeSigner{}, submitter, nil, Metrics{}, zerolog.Nop())

	reply := make(chan dispatch.Reply, 1)
	job := dispatch.SwapJob{
		Ctx:   context.Background(),
		Call:  venue.SwapCall{Kind: venue.KindConstantProductA},
		Route: dispatch.Route{VenueKey: keyOf(9)},
		Reply: reply,
	}
	exec.execute(job)

	r := (<-reply).(dispatch.SwapReply)
	require.Error(t, r.Err)
	require.Empty(t, r.Signature)
}

func TestRun_DrainsExecutorJobsUntilContextCanceled(t *testing.T) {
	d := dispatch.New(1)
	exec := New(d, &fakeSigner{}, &fakeSubmitter{sig: "s"}, nil, Metrics{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec.Run(ctx)
		close(done)
	}()

	reply := make(chan dispatch.Reply, 1)
	require.NoError(t, d.Forward(dispatch.SwapJob{
		Ctx:   ctx,
		Call:  venue.SwapCall{Kind: venue.KindConstantProductA},
		Route: dispatch.Route{VenueKey: keyOf(1)},
		Reply: reply,
	}))

	select {
	case <-reply:
	case <-time.After(time.Second):
		t.Fatal("expected the forwarded job to be executed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after cancellation")
	}
}
