package main

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/sawpanic/dexrouter/internal/executor"
	"github.com/sawpanic/dexrouter/internal/venue"
)

// noopSettlement stands in for the real wallet-custody Signer and
// cluster-submission Submitter (spec §1/§6 names both as external
// collaborators this repo never implements). It signs by hashing the
// authority and message, and "submits" by returning "noop-" plus the hex
// of the first 8 signed bytes as the signature, so the
// pipeline is runnable end to end without a live cluster or keystore.
type noopSettlement struct{}

func (noopSettlement) Sign(ctx context.Context, authority venue.Key, message []byte) ([]byte, error) {
	sum := sha256.Sum256(append(authority[:], message...))
	return sum[:], nil
}

func (noopSettlement) SubmitSigned(ctx context.Context, txBytes []byte) (executor.Signature, error) {
	return executor.Signature(fmt.Sprintf("noop-%x", txBytes[:8])), nil
}
