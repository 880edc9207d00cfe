/*

This file registers every error the engine can return. Codes are grouped by class so callers
(the keeper loop in particular) can decide whether a failure is retryable.

*/

package types

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

const Codespace = "perpvault"

// Input / precondition errors (2-19): caller-correctable, nothing mutated.
var (
	ErrInvalidAmount          = errorsmod.Register(Codespace, 2, "invalid amount")
	ErrUnexpectedAsset        = errorsmod.Register(Codespace, 3, "unexpected asset")
	ErrSwapBelowMinimum       = errorsmod.Register(Codespace, 4, "swap amount below minimum unit")
	ErrNotReserveMember       = errorsmod.Register(Codespace, 5, "token is not a reserve member")
	ErrInsufficientBalance    = errorsmod.Register(Codespace, 6, "insufficient balance")
	ErrUnauthorizedCall       = errorsmod.Register(Codespace, 7, "unauthorized call")
	ErrPaused                 = errorsmod.Register(Codespace, 8, "paused")
	ErrReentrantCall          = errorsmod.Register(Codespace, 9, "reentrant call")
	ErrUnacceptableDeposit    = errorsmod.Register(Codespace, 10, "unacceptable deposit")
	ErrUnacceptableRedemption = errorsmod.Register(Codespace, 11, "unacceptable redemption")
	ErrUnacceptableRollover   = errorsmod.Register(Codespace, 12, "unacceptable rollover")
	ErrUnknownToken           = errorsmod.Register(Codespace, 13, "unknown token")
	ErrTokenExists            = errorsmod.Register(Codespace, 14, "token already registered")
)

// Policy-threshold errors (20-29): conditions are unfavorable right now, retry later.
var (
	ErrInsufficientDeployment = errorsmod.Register(Codespace, 20, "insufficient deployment")
	ErrNoDeployment           = errorsmod.Register(Codespace, 21, "no deployment")
	ErrTVLDecreased           = errorsmod.Register(Codespace, 22, "vault tvl decreased")
	ErrNoRolloverAvailable    = errorsmod.Register(Codespace, 23, "no rollover available")
	ErrNotUpForMaturity       = errorsmod.Register(Codespace, 24, "bond not up for maturity")
	ErrInsufficientLiquidity  = errorsmod.Register(Codespace, 25, "insufficient liquidity")
	ErrSwapBlocked            = errorsmod.Register(Codespace, 26, "swap blocked by deviation bounds")
)

// Capacity errors (30-39).
var (
	ErrDeployedCountOverLimit = errorsmod.Register(Codespace, 30, "deployed asset count over limit")
)

// Configuration errors (40-49): the change is rejected, previous configuration stays in force.
var (
	ErrInvalidPerc              = errorsmod.Register(Codespace, 40, "invalid percentage")
	ErrInvalidSigmoidAsymptotes = errorsmod.Register(Codespace, 41, "invalid sigmoid asymptotes")
	ErrInvalidRange             = errorsmod.Register(Codespace, 42, "invalid range")
	ErrUnexpectedDecimals       = errorsmod.Register(Codespace, 43, "unexpected decimals")
	ErrInvalidBondParams        = errorsmod.Register(Codespace, 44, "invalid bond parameters")
	ErrInvalidConfig            = errorsmod.Register(Codespace, 45, "invalid configuration")
)

// Invariant violations (50-59): fatal for the call.
var (
	ErrArrayLengthMismatch    = errorsmod.Register(Codespace, 50, "array length mismatch")
	ErrUnexpectedReserveAsset = errorsmod.Register(Codespace, 51, "unexpected reserve asset")
	ErrInvariantViolation     = errorsmod.Register(Codespace, 52, "invariant violation")
)

// ErrorClass groups registered errors by how a caller is expected to react.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassInput
	ClassPolicy
	ClassCapacity
	ClassConfiguration
	ClassInvariant
)

func (c ErrorClass) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassPolicy:
		return "policy"
	case ClassCapacity:
		return "capacity"
	case ClassConfiguration:
		return "configuration"
	case ClassInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// ClassOf returns the class of the first registered engine error found in err's chain.
func ClassOf(err error) ErrorClass {
	var e *errorsmod.Error
	if err == nil || !errors.As(err, &e) || e.Codespace() != Codespace {
		return ClassUnknown
	}
	code := e.ABCICode()
	switch {
	case code >= 2 && code < 20:
		return ClassInput
	case code >= 20 && code < 30:
		return ClassPolicy
	case code >= 30 && code < 40:
		return ClassCapacity
	case code >= 40 && code < 50:
		return ClassConfiguration
	case code >= 50 && code < 60:
		return ClassInvariant
	}
	return ClassUnknown
}

// IsRetryable reports whether err only signals that market conditions are not favorable yet.
func IsRetryable(err error) bool {
	return ClassOf(err) == ClassPolicy
}
