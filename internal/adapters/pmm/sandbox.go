// Package pmm implements the proprietary/undocumented PMM venue families:
// PMMSimulated, which prices by executing the venue's own settlement logic
// inside a sandbox, and PMMOracle/PMMPriceCurve, which price from a
// published reference instead. Grounded on the original Rust prototype's
// Chroot (crates/magnus/src/adapters/amms.rs: a LiteSVM in-process VM
// pre-loaded with program images and a sacrificial signing identity) and
// obric_v2 (an oracle/curve-driven PMM).
package pmm

import (
	"github.com/sawpanic/dexrouter/internal/venue"
)

// SwapEvent is the parsed result of executing a swap inside the sandbox,
// mirroring the native program's `SwapEvent { ..., amount_out }` log record
// (spec §4.3.3).
type SwapEvent struct {
	AmountOut uint64
}

// Sandbox is the in-process execution environment the simulated PMM family
// uses to compute quotes by executing the same SwapCall BuildSwap would
// return. Go has no in-process Solana VM equivalent in this pack, so the
// production implementation is a subprocess with a framed IPC protocol
// (spec §9 design note a); this interface is the seam between the adapter
// and that transport, and is satisfied in this repo only by MemSandbox, an
// in-memory stand-in that cmd/router wires and the tests use (see DESIGN.md
// — no real subprocess binary ships here).
//
// Execute must never let one call's effects leak into the next: quoting is
// a pure function of the adapter's last-mirrored state (spec §9's fixed
// answer to "does quote mutate state"), so an implementation resets its
// mutable scratch before each Execute rather than accumulating state
// across calls.
type Sandbox interface {
	// MirrorAccounts replaces the sandbox's view of the named accounts with
	// their current live blobs, called once per successful Update.
	MirrorAccounts(accounts map[venue.Key]venue.AccountBlob) error

	// Execute runs the swap call against the mirrored state and parses the
	// resulting SwapEvent log, without persisting any state mutation beyond
	// the call.
	Execute(call venue.SwapCall, amountIn uint64) (SwapEvent, error)

	// AdvanceSlot moves the sandbox's slot counter forward, called from
	// Update whenever the ingestor supplies a slot.
	AdvanceSlot(slot uint64)
}

// Factory builds a fresh Sandbox for one adapter instance, parameterized by
// that instance's own vault keys and fee fraction so a single Factory value
// can be shared across every PMMSimulated descriptor in the registry's
// FactoryTable rather than being curried over one hardcoded vault pair. A
// sandbox is never shared across adapter instances (spec §4.3.3 contract);
// its program images and keypair are created once at adapter construction
// and dropped with the adapter.
type Factory func(vaultA, vaultB venue.Key, feeNum, feeDen uint64) (Sandbox, error)
