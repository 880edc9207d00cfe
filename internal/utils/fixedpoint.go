package utils

import (
	sdkmath "cosmossdk.io/math"
)

// MulDiv returns floor(a * b / c). A zero denominator yields zero.
func MulDiv(a, b, c sdkmath.Int) sdkmath.Int {
	if c.IsZero() {
		return sdkmath.ZeroInt()
	}
	return a.Mul(b).Quo(c)
}

// MulDivUp returns ceil(a * b / c) for non-negative operands. A zero denominator yields zero.
func MulDivUp(a, b, c sdkmath.Int) sdkmath.Int {
	if c.IsZero() {
		return sdkmath.ZeroInt()
	}
	num := a.Mul(b)
	q := num.Quo(c)
	if !num.Mod(c).IsZero() {
		q = q.AddRaw(1)
	}
	return q
}

// MulDivSigned returns a * b / c truncated toward zero; used with signed fee percentages.
func MulDivSigned(a, b, c sdkmath.Int) sdkmath.Int {
	if c.IsZero() {
		return sdkmath.ZeroInt()
	}
	return a.Mul(b).Quo(c)
}

// ApplyFee reduces amt by feePerc (on the FeeOne scale one). Negative fees act as a rebate.
func ApplyFee(amt, feePerc, one sdkmath.Int) sdkmath.Int {
	return MulDiv(amt, one.Sub(feePerc), one)
}

func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}

func MaxInt(a, b sdkmath.Int) sdkmath.Int {
	if a.GT(b) {
		return a
	}
	return b
}

// SubFloorZero returns max(a - b, 0).
func SubFloorZero(a, b sdkmath.Int) sdkmath.Int {
	if a.LTE(b) {
		return sdkmath.ZeroInt()
	}
	return a.Sub(b)
}

// SumInts adds every element of xs.
func SumInts(xs []sdkmath.Int) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, x := range xs {
		total = total.Add(x)
	}
	return total
}
