package pmm

import (
	"encoding/binary"
	"math/bits"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// sourceVaultIndex/destVaultIndex are the positions of the two venue vaults
// in the account list SimulatedAdapter.buildCall produces (index 0: venue
// state, 1: authority, 2: SrcAccount, 3: source vault, 4: dest vault, 5:
// DstAccount). Execute reads these to tell which reserve is being sold
// into which, the same way cpamm.Quote switches on the input mint.
const (
	sourceVaultIndex = 3
	destVaultIndex   = 4
)

// tokenAccountAmountOffset mirrors cpamm's SPL-token-account layout: 32-byte
// mint, 32-byte owner, then the 8-byte amount.
const tokenAccountAmountOffset = 64

// MemSandbox is an in-memory stand-in for the production subprocess
// sandbox: it mirrors two vault balances and answers Execute with a
// constant-product quote, the same math base_cp.rs (and this repo's cpamm
// adapter) use. It exists only so PMMSimulated has something runnable in
// this repo and in tests — no real program image or VM backs it. A real
// deployment replaces this with the framed-IPC subprocess sandbox the spec
// calls for (see DESIGN.md).
type MemSandbox struct {
	vaultA, vaultB venue.Key
	reserveA       uint64
	reserveB       uint64
	feeNum, feeDen uint64
	slot           uint64
}

// NewMemSandbox is a Factory: it builds a sandbox mirroring the two named
// vaults, pricing with the given fee fraction. Safe to use as the single
// FactoryTable entry for every PMMSimulated descriptor since each call
// builds an independent sandbox bound to the vaults it was actually given.
func NewMemSandbox(vaultA, vaultB venue.Key, feeNum, feeDen uint64) (Sandbox, error) {
	if feeDen == 0 {
		feeDen = 1
	}
	return &MemSandbox{vaultA: vaultA, vaultB: vaultB, feeNum: feeNum, feeDen: feeDen}, nil
}

func (m *MemSandbox) MirrorAccounts(accounts map[venue.Key]venue.AccountBlob) error {
	blobA, ok := accounts[m.vaultA]
	if !ok {
		return venue.ErrAccountMissing
	}
	blobB, ok := accounts[m.vaultB]
	if !ok {
		return venue.ErrAccountMissing
	}
	amtA, err := tokenAccountAmount(blobA.Data)
	if err != nil {
		return err
	}
	amtB, err := tokenAccountAmount(blobB.Data)
	if err != nil {
		return err
	}
	m.reserveA, m.reserveB = amtA, amtB
	return nil
}

// Execute computes a scratch-local quote off the last-mirrored reserves;
// it never writes m.reserveA/m.reserveB, so repeated calls are pure. The
// (x, y) reserve pair is picked from the call's source/dest vault order,
// not a fixed reserveA->reserveB direction, so a mintB->mintA quote prices
// against (reserveB, reserveA) the same way cpamm.Quote does.
func (m *MemSandbox) Execute(call venue.SwapCall, amountIn uint64) (SwapEvent, error) {
	if len(call.Accounts) <= destVaultIndex {
		return SwapEvent{}, venue.ErrSimulation
	}
	sourceVault := call.Accounts[sourceVaultIndex].Key
	destVault := call.Accounts[destVaultIndex].Key

	var x, y uint64
	switch {
	case sourceVault == m.vaultA && destVault == m.vaultB:
		x, y = m.reserveA, m.reserveB
	case sourceVault == m.vaultB && destVault == m.vaultA:
		x, y = m.reserveB, m.reserveA
	default:
		return SwapEvent{}, venue.ErrSimulation
	}
	if x == 0 && y == 0 {
		return SwapEvent{}, venue.ErrSimulation
	}

	fee, err := mulDivFloor(amountIn, m.feeNum, m.feeDen)
	if err != nil {
		return SwapEvent{}, venue.ErrSimulation
	}
	if fee > amountIn {
		return SwapEvent{}, venue.ErrSimulation
	}
	net := amountIn - fee
	den := x + net
	if den < x {
		return SwapEvent{}, venue.ErrSimulation
	}
	if den == 0 {
		return SwapEvent{AmountOut: 0}, nil
	}
	out, err := mulDivFloor(net, y, den)
	if err != nil {
		return SwapEvent{}, venue.ErrSimulation
	}
	return SwapEvent{AmountOut: out}, nil
}

// mulDivFloor computes floor(a*b/den) via a 128-bit intermediate product,
// the same widened-multiply guard cpamm.Quote uses, so amountIn*feeNum and
// net*y never silently wrap a uint64.
func mulDivFloor(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, venue.ErrArithmetic
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, venue.ErrArithmetic
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

func (m *MemSandbox) AdvanceSlot(slot uint64) {
	m.slot = slot
}

func tokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < tokenAccountAmountOffset+8 {
		return 0, venue.ErrAccountMalformed
	}
	return binary.LittleEndian.Uint64(data[tokenAccountAmountOffset : tokenAccountAmountOffset+8]), nil
}
