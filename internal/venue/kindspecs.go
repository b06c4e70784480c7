package venue

// Specs is the compile-time table of per-Kind swap-instruction sizing,
// mirroring the settlement program's fixed ACCOUNTS_LEN/ARGS_LEN constants
// for each family. Adapters validate BuildSwap output against their own
// entry before returning it.
var Specs = map[Kind]KindSpec{
	KindConstantProductA: {
		Kind:        KindConstantProductA,
		AccountsLen: 11,
		ArgsLen:     2,
	},
	KindConcentratedLiquidityA: {
		Kind:        KindConcentratedLiquidityA,
		AccountsLen: 16,
		ArgsLen:     3,
	},
	KindPMMOracle: {
		Kind:        KindPMMOracle,
		AccountsLen: 9,
		ArgsLen:     2,
	},
	KindPMMPriceCurve: {
		Kind:        KindPMMPriceCurve,
		AccountsLen: 9,
		ArgsLen:     2,
	},
	KindPMMSimulated: {
		Kind:        KindPMMSimulated,
		AccountsLen: 12,
		ArgsLen:     2,
	},
	KindAggregator: {
		Kind:        KindAggregator,
		AccountsLen: 0,
		ArgsLen:     0,
	},
}

// SpecFor returns the kind spec for k, or a zero KindSpec if unknown.
func SpecFor(k Kind) KindSpec {
	return Specs[k]
}
