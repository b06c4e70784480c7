package clmm

import (
	"math/big"

	"github.com/sawpanic/dexrouter/internal/venue"
)

var q64Shift = uint(64)

func shl64(x *big.Int) *big.Int {
	return new(big.Int).Lsh(x, q64Shift)
}

func shr64(x *big.Int) *big.Int {
	return new(big.Int).Rsh(x, q64Shift)
}

func mulDivFloor(a, b, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, venue.ErrArithmetic
	}
	num := new(big.Int).Mul(a, b)
	return new(big.Int).Div(num, den), nil
}

func mulDivCeil(a, b, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, venue.ErrArithmetic
	}
	num := new(big.Int).Mul(a, b)
	q, r := new(big.Int), new(big.Int)
	q.DivMod(num, den, r)
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// amount0Delta returns the token0 amount needed to move the price between
// sqrtA and sqrtB (sqrtA < sqrtB) at constant liquidity L:
// amount0 = L<<64 * (sqrtB - sqrtA) / (sqrtA * sqrtB)
func amount0Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	num := new(big.Int).Mul(shl64(liquidity), new(big.Int).Sub(sqrtB, sqrtA))
	den := new(big.Int).Mul(sqrtA, sqrtB)
	if den.Sign() == 0 {
		return nil, venue.ErrArithmetic
	}
	q, r := new(big.Int), new(big.Int)
	q.DivMod(num, den, r)
	if roundUp && r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, nil
}

// amount1Delta returns the token1 amount for the same price move:
// amount1 = L * (sqrtB - sqrtA) >> 64
func amount1Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	num := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	if roundUp {
		mod := new(big.Int)
		q, r := new(big.Int), mod
		q.DivMod(num, new(big.Int).Lsh(big.NewInt(1), q64Shift), r)
		if r.Sign() != 0 {
			q.Add(q, big.NewInt(1))
		}
		return q
	}
	return shr64(num)
}

// nextSqrtPriceFromAmount0 advances price downward as token0 (input) is
// added: sqrtNext = L<<64 * sqrtCurrent / (L<<64 + amount*sqrtCurrent).
func nextSqrtPriceFromAmount0(sqrtCurrent, liquidity, amount *big.Int) (*big.Int, error) {
	numerator1 := shl64(liquidity)
	product := new(big.Int).Mul(amount, sqrtCurrent)
	denominator := new(big.Int).Add(numerator1, product)
	return mulDivCeil(numerator1, sqrtCurrent, denominator)
}

// nextSqrtPriceFromAmount1 advances price upward as token1 (input) is
// added: sqrtNext = sqrtCurrent + (amount<<64)/L.
func nextSqrtPriceFromAmount1(sqrtCurrent, liquidity, amount *big.Int) *big.Int {
	quotient := new(big.Int).Div(shl64(amount), liquidity)
	return new(big.Int).Add(sqrtCurrent, quotient)
}

// computeSwapStep mirrors Uniswap-v3-style SwapMath: advance from
// sqrtCurrent towards sqrtTarget consuming at most amountRemaining of
// input (inclusive of fee), returning the price reached, the input and
// output actually applied in this step, and the fee charged on the input.
func computeSwapStep(sqrtCurrent, sqrtTarget, liquidity, amountRemaining *big.Int, feeNum, feeDen uint64) (sqrtNext, amountIn, amountOut, feeAmount *big.Int, err error) {
	zeroForOne := sqrtCurrent.Cmp(sqrtTarget) >= 0

	feeDenB := new(big.Int).SetUint64(feeDen)
	feeNumB := new(big.Int).SetUint64(feeNum)
	remainingLessFee, err := mulDivFloor(amountRemaining, new(big.Int).Sub(feeDenB, feeNumB), feeDenB)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var lo, hi *big.Int
	if zeroForOne {
		lo, hi = sqrtTarget, sqrtCurrent
	} else {
		lo, hi = sqrtCurrent, sqrtTarget
	}

	if zeroForOne {
		amountIn, err = amount0Delta(lo, hi, liquidity, true)
	} else {
		amountIn = amount1Delta(lo, hi, liquidity, true)
	}
	if err != nil {
		return nil, nil, nil, nil, err
	}

	reachedTarget := remainingLessFee.Cmp(amountIn) >= 0
	if reachedTarget {
		sqrtNext = new(big.Int).Set(sqrtTarget)
	} else if zeroForOne {
		sqrtNext, err = nextSqrtPriceFromAmount0(sqrtCurrent, liquidity, remainingLessFee)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	} else {
		sqrtNext = nextSqrtPriceFromAmount1(sqrtCurrent, liquidity, remainingLessFee)
	}

	if !reachedTarget {
		if zeroForOne {
			amountIn, err = amount0Delta(sqrtNext, sqrtCurrent, liquidity, true)
		} else {
			amountIn = amount1Delta(sqrtCurrent, sqrtNext, liquidity, true)
		}
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	if zeroForOne {
		amountOut = amount1Delta(sqrtNext, sqrtCurrent, liquidity, false)
	} else {
		amountOut, err = amount0Delta(sqrtCurrent, sqrtNext, liquidity, false)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	if reachedTarget {
		feeAmount, err = mulDivCeil(amountIn, feeNumB, new(big.Int).Sub(feeDenB, feeNumB))
		if err != nil {
			return nil, nil, nil, nil, err
		}
	} else {
		feeAmount = new(big.Int).Sub(amountRemaining, amountIn)
		if feeAmount.Sign() < 0 {
			feeAmount.SetInt64(0)
		}
	}

	return sqrtNext, amountIn, amountOut, feeAmount, nil
}
