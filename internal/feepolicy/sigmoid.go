package feepolicy

import (
	sdkmath "cosmossdk.io/math"
)

const sigmoidExpCap = 100

// twoRoots[k] = 2^(1/2^(k+1)), used to expand fractional exponents bit by bit.
var twoRoots = func() []sdkmath.LegacyDec {
	roots := make([]sdkmath.LegacyDec, 40)
	c := sdkmath.LegacyNewDec(2)
	for i := range roots {
		r, err := c.ApproxSqrt()
		if err != nil {
			panic(err)
		}
		roots[i] = r
		c = r
	}
	return roots
}()

// TwoPower returns 2^exp for any exp with |exp| <= 100.
func TwoPower(exp sdkmath.LegacyDec) sdkmath.LegacyDec {
	neg := exp.IsNegative()
	e := exp.Abs()

	whole := e.TruncateInt()
	frac := e.Sub(sdkmath.LegacyNewDecFromInt(whole))
	result := sdkmath.LegacyNewDec(2).Power(whole.Uint64())

	step := sdkmath.LegacyNewDecWithPrec(5, 1)
	for _, root := range twoRoots {
		if frac.IsZero() || step.IsZero() {
			break
		}
		if frac.GTE(step) {
			result = result.Mul(root)
			frac = frac.Sub(step)
		}
		step = step.QuoInt64(2)
	}

	if neg {
		return sdkmath.LegacyOneDec().Quo(result)
	}
	return result
}

// Sigmoid evaluates y = (U-L) / (1 - (U/L) / 2^(g*(x-1))) + L.
// y is 0 at x = 1 and tends to L (x -> -inf) and U (x -> +inf). Requires L < 0 < U.
func Sigmoid(x, lower, upper, growth sdkmath.LegacyDec) sdkmath.LegacyDec {
	one := sdkmath.LegacyOneDec()
	exp := growth.Mul(x.Sub(one))
	switch {
	case exp.GT(sdkmath.LegacyNewDec(sigmoidExpCap)):
		return upper
	case exp.LT(sdkmath.LegacyNewDec(-sigmoidExpCap)):
		return lower
	}
	ratio := upper.Quo(lower)
	denominator := one.Sub(ratio.Quo(TwoPower(exp)))
	return upper.Sub(lower).Quo(denominator).Add(lower)
}
