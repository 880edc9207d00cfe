package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivRounding(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c int64
		floor   int64
		ceil    int64
	}{
		{"exact", 10, 10, 5, 20, 20},
		{"inexact", 10, 1, 3, 3, 4},
		{"zero numerator", 0, 7, 3, 0, 0},
		{"zero denominator", 5, 5, 0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, b, c := sdkmath.NewInt(tc.a), sdkmath.NewInt(tc.b), sdkmath.NewInt(tc.c)
			assert.Equal(t, tc.floor, MulDiv(a, b, c).Int64())
			assert.Equal(t, tc.ceil, MulDivUp(a, b, c).Int64())
		})
	}
}

func TestApplyFee(t *testing.T) {
	one := sdkmath.NewInt(100_000_000)

	assert.Equal(t, int64(990), ApplyFee(sdkmath.NewInt(1000), sdkmath.NewInt(1_000_000), one).Int64())
	// negative fee is a rebate
	assert.Equal(t, int64(1010), ApplyFee(sdkmath.NewInt(1000), sdkmath.NewInt(-1_000_000), one).Int64())
	assert.True(t, ApplyFee(sdkmath.NewInt(1000), one, one).IsZero())
}

func TestMinMaxSub(t *testing.T) {
	a, b := sdkmath.NewInt(3), sdkmath.NewInt(9)
	assert.Equal(t, a, MinInt(a, b))
	assert.Equal(t, b, MaxInt(a, b))
	assert.True(t, SubFloorZero(a, b).IsZero())
	assert.Equal(t, int64(6), SubFloorZero(b, a).Int64())
	assert.Equal(t, int64(12), SumInts([]sdkmath.Int{a, b}).Int64())
}

func TestScaledConversions(t *testing.T) {
	v, err := ParseScaled("1.33", 8)
	require.NoError(t, err)
	assert.Equal(t, int64(133_000_000), v.Int64())

	v, err = ParseScaled("-0.0025", 8)
	require.NoError(t, err)
	assert.Equal(t, int64(-250_000), v.Int64())

	_, err = ParseScaled("abc", 8)
	assert.ErrorIs(t, err, ErrConversionFailed)

	_, err = ParseScaled("1", 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)

	f, err := ScaledIntToFloat64(sdkmath.NewInt(-250_000), 8)
	require.NoError(t, err)
	assert.InDelta(t, -0.0025, f, 1e-12)

	assert.Equal(t, "1.33", FormatScaled(sdkmath.NewInt(133_000_000), 8))
	assert.Equal(t, "2", FormatScaled(sdkmath.NewInt(200_000_000), 8))
}
