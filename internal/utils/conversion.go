/*
This file contains common utility functions for converting between fixed point integers on a
given decimal scale and their human readable forms (floats for metrics, decimal strings for config).
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// ScaledIntToFloat64 converts a (possibly negative) fixed point Int on the given scale to float64.
func ScaledIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}

	result := sdkmath.LegacyNewDecFromInt(amount).QuoInt(sdkmath.NewIntWithDecimal(1, precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}
	return resultFloat, nil
}

// MustScaledFloat is ScaledIntToFloat64 for display paths; conversion failures read as zero.
func MustScaledFloat(amount sdkmath.Int, precision int) float64 {
	f, err := ScaledIntToFloat64(amount, precision)
	if err != nil {
		return 0
	}
	return f
}

// ParseScaled parses a decimal string such as "1.33" or "-0.0025" into an Int on the given scale.
// Digits beyond the scale are truncated.
func ParseScaled(value string, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: empty value", ErrConversionFailed)
	}
	dec, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	return dec.MulInt(sdkmath.NewIntWithDecimal(1, precision)).TruncateInt(), nil
}

// FormatScaled renders a fixed point Int on the given scale as a decimal string.
func FormatScaled(amount sdkmath.Int, precision int) string {
	if amount.IsNil() {
		return "0"
	}
	dec := sdkmath.LegacyNewDecFromInt(amount).QuoInt(sdkmath.NewIntWithDecimal(1, precision))
	s := dec.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
