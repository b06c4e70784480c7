// Package venue defines the data model and adapter contract shared by every
// liquidity venue the router knows how to quote and swap against.
package venue

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Key is an opaque 32-byte identifier: an account, a program, or a venue.
type Key [32]byte

// ZeroKey is the null key; TokenId values must never equal it once primed.
var ZeroKey Key

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

func (k Key) IsZero() bool {
	return k == ZeroKey
}

// Less gives Key a total order, used for strategy tie-breaking (spec S3).
func (k Key) Less(other Key) bool {
	for i := range k {
		if k[i] != other[i] {
			return k[i] < other[i]
		}
	}
	return false
}

// KeyFromHex parses the hex form produced by Key.String.
func KeyFromHex(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("decode key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("decode key: want %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// TokenId identifies a fungible token by its mint/contract key.
type TokenId = Key

// AccountBlob is the raw chain-account payload an adapter reads and the
// ingestor writes, modeled directly on the Geyser account-update shape.
type AccountBlob struct {
	Owner      Key
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// Kind is a closed tagged variant naming a supported DEX family. Each kind
// carries the two static instruction sizes its swap call needs (Specs),
// mirroring the original program's ACCOUNTS_LEN/ARGS_LEN constants. A
// kind does not pin a program id: each venue's program id is the catalog
// entry's program_owner, carried in Descriptor.ProgramID.
type Kind int

const (
	KindUnknown Kind = iota
	KindConstantProductA
	KindConcentratedLiquidityA
	KindPMMOracle
	KindPMMPriceCurve
	KindPMMSimulated
	KindAggregator
)

func (k Kind) String() string {
	switch k {
	case KindConstantProductA:
		return "constant_product_a"
	case KindConcentratedLiquidityA:
		return "concentrated_liquidity_a"
	case KindPMMOracle:
		return "pmm_oracle"
	case KindPMMPriceCurve:
		return "pmm_price_curve"
	case KindPMMSimulated:
		return "pmm_simulated"
	case KindAggregator:
		return "aggregator"
	default:
		return "unknown"
	}
}

// KindFromString parses the config-file spelling of a Kind (the inverse of
// Kind.String), used to build the catalog's program_owner -> Kind table
// from operator-supplied YAML rather than a compiled-in table.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "constant_product_a":
		return KindConstantProductA, nil
	case "concentrated_liquidity_a":
		return KindConcentratedLiquidityA, nil
	case "pmm_oracle":
		return KindPMMOracle, nil
	case "pmm_price_curve":
		return KindPMMPriceCurve, nil
	case "pmm_simulated":
		return KindPMMSimulated, nil
	case "aggregator":
		return KindAggregator, nil
	default:
		return KindUnknown, fmt.Errorf("venue: unknown kind %q", s)
	}
}

// KindSpec is the static, compile-time metadata pinned to a Kind.
type KindSpec struct {
	Kind         Kind
	ProgramID    Key
	AccountsLen  int
	ArgsLen      int
}

// Descriptor is what the catalog loader produces and the registry consumes
// exactly once, at cold boot.
type Descriptor struct {
	Key           Key
	ProgramID     Key
	Kind          Kind
	CatalogParams json.RawMessage
}

// SwapMode selects exact-in or exact-out quoting.
type SwapMode int

const (
	ExactIn SwapMode = iota
	ExactOut
)

func (m SwapMode) String() string {
	if m == ExactOut {
		return "exact_out"
	}
	return "exact_in"
}

// QuoteParams is the input to Venue.Quote.
type QuoteParams struct {
	Mode   SwapMode
	Amount uint64
	Input  TokenId
	Output TokenId
}

// Quote is the result of Venue.Quote. OutAmount == 0 signals "no liquidity
// on this venue" and is distinguished from an error.
type Quote struct {
	InAmount  uint64
	OutAmount uint64
	FeeAmount uint64
	FeeMint   TokenId
	FeeBps    decimal.Decimal
}

// SwapParams extends QuoteParams with the accounts a swap instruction must
// reference.
type SwapParams struct {
	QuoteParams
	SrcAccount Key
	DstAccount Key
	Authority  Key
}

// AccountRef is one element of a swap instruction's account list.
type AccountRef struct {
	Key      Key
	Writable bool
	Signer   bool
}

// SwapCall is the minimal descriptor of an on-chain swap invocation: enough
// for the executor to assemble an instruction without knowing venue
// internals.
type SwapCall struct {
	Kind     Kind
	Accounts []AccountRef
}
