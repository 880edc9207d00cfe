/*

This file contains the rollover/deploy receipts and the per cycle snapshot the keeper persists.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RolloverData is the preview (or result) of a single perp rollover.
type RolloverData struct {
	TrancheInAmt    sdkmath.Int `json:"tranche_in_amt"`
	TokenOutAmt     sdkmath.Int `json:"token_out_amt"`
	PerpRolloverAmt sdkmath.Int `json:"perp_rollover_amt"`
}

// ZeroRolloverData is the no-op rollover.
func ZeroRolloverData() RolloverData {
	return RolloverData{
		TrancheInAmt:    sdkmath.ZeroInt(),
		TokenOutAmt:     sdkmath.ZeroInt(),
		PerpRolloverAmt: sdkmath.ZeroInt(),
	}
}

// RolloverPair records one executed exchange between the vault and perp.
type RolloverPair struct {
	TrancheIn Address `json:"tranche_in"`
	TokenOut  Address `json:"token_out"`
	RolloverData
}

// RolloverReport summarises a run of the rollover loop.
type RolloverReport struct {
	TotalPerpRolledOver sdkmath.Int    `json:"total_perp_rolled_over"`
	Iterations          int            `json:"iterations"`
	Pairs               []RolloverPair `json:"pairs"`
}

// DeployReceipt is returned by a successful vault deploy.
type DeployReceipt struct {
	Bond        Address        `json:"bond"`
	TrancheAmt  sdkmath.Int    `json:"tranche_amt"`
	FeePaid     sdkmath.Int    `json:"fee_paid"`
	Refinements int            `json:"refinements"`
	Rollover    RolloverReport `json:"rollover"`
}

// ActionReceipt captures the outcome of one keeper step within a cycle.
type ActionReceipt struct {
	Step       string `json:"step"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped"`
	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
}

// EventRecord is a flattened ledger event for persistence.
type EventRecord struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// CycleSnapshot is everything the keeper records about one cycle.
type CycleSnapshot struct {
	CycleID     string        `json:"cycle_id"`
	CycleNumber int           `json:"cycle_number"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`

	InitialState SubscriptionState `json:"initial_state"`
	FinalState   SubscriptionState `json:"final_state"`

	InitialDeviationRatio sdkmath.Int `json:"initial_deviation_ratio"`
	FinalDeviationRatio   sdkmath.Int `json:"final_deviation_ratio"`
	RolloverFeePerc       sdkmath.Int `json:"rollover_fee_perc"`
	PerpPrice             sdkmath.Int `json:"perp_price"`

	RecoveredCount int            `json:"recovered_count"`
	Deploy         *DeployReceipt `json:"deploy,omitempty"`

	ActionReceipts []ActionReceipt `json:"action_receipts"`
	Events         []EventRecord   `json:"events"`
	Success        bool            `json:"success"`
}
