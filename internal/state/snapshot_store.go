package state

import (
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq" // PostgreSQL driver for array support

	"github.com/elys-network/perpvault/internal/types"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("not found")

// StoredSnapshot is a cycle snapshot together with its row id.
type StoredSnapshot struct {
	SnapshotID  int64  `json:"snapshot_id"`
	FeeParamsID *int64 `json:"fee_params_id,omitempty"`
	types.CycleSnapshot
}

// Recorder persists keeper cycles through the package-level connection pool.
type Recorder struct {
	// FeeParamsID tags saved snapshots with the fee policy version they ran under.
	FeeParamsID *int64
}

func (r Recorder) IncrementCycleNumber() (int, error) {
	return IncrementCycleNumber()
}

func (r Recorder) SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	return SaveCycleSnapshot(snapshot, r.FeeParamsID)
}

// snapshotRow is the column form of a snapshot.
type snapshotRow struct {
	initialState, finalState, deploy, receipts, events []byte

	finalPerpTVL, finalVaultTVL, initialDR, finalDR, rolloverFee, perpPrice, rolledOver string

	errorMessages []string
}

// numeric renders an Int for a NUMERIC column, treating an unset Int as zero.
func numeric(i sdkmath.Int) string {
	if i.IsNil() {
		return "0"
	}
	return i.String()
}

func parseNumeric(s, column string) (sdkmath.Int, error) {
	i, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid %s value %q", column, s)
	}
	return i, nil
}

func encodeSnapshot(s types.CycleSnapshot) (snapshotRow, error) {
	var (
		row snapshotRow
		err error
	)
	if row.initialState, err = json.Marshal(s.InitialState); err != nil {
		return row, fmt.Errorf("failed to marshal initial_state: %w", err)
	}
	if row.finalState, err = json.Marshal(s.FinalState); err != nil {
		return row, fmt.Errorf("failed to marshal final_state: %w", err)
	}
	if s.Deploy != nil {
		if row.deploy, err = json.Marshal(s.Deploy); err != nil {
			return row, fmt.Errorf("failed to marshal deploy: %w", err)
		}
	}
	if row.receipts, err = json.Marshal(s.ActionReceipts); err != nil {
		return row, fmt.Errorf("failed to marshal action_receipts: %w", err)
	}
	if row.events, err = json.Marshal(s.Events); err != nil {
		return row, fmt.Errorf("failed to marshal events: %w", err)
	}

	row.finalPerpTVL = numeric(s.FinalState.PerpTVL)
	row.finalVaultTVL = numeric(s.FinalState.VaultTVL)
	row.initialDR = numeric(s.InitialDeviationRatio)
	row.finalDR = numeric(s.FinalDeviationRatio)
	row.rolloverFee = numeric(s.RolloverFeePerc)
	row.perpPrice = numeric(s.PerpPrice)
	row.rolledOver = "0"
	if s.Deploy != nil {
		row.rolledOver = numeric(s.Deploy.Rollover.TotalPerpRolledOver)
	}

	row.errorMessages = make([]string, 0)
	for _, r := range s.ActionReceipts {
		if r.Error != "" {
			row.errorMessages = append(row.errorMessages, r.Step+": "+r.Error)
		}
	}
	return row, nil
}

// decodeSnapshot fills the JSON and NUMERIC columns of s from row.
func decodeSnapshot(s *types.CycleSnapshot, row snapshotRow) error {
	if err := json.Unmarshal(row.initialState, &s.InitialState); err != nil {
		return fmt.Errorf("failed to unmarshal initial state: %w", err)
	}
	if err := json.Unmarshal(row.finalState, &s.FinalState); err != nil {
		return fmt.Errorf("failed to unmarshal final state: %w", err)
	}
	if len(row.deploy) > 0 && string(row.deploy) != "null" {
		s.Deploy = &types.DeployReceipt{}
		if err := json.Unmarshal(row.deploy, s.Deploy); err != nil {
			return fmt.Errorf("failed to unmarshal deploy receipt: %w", err)
		}
	}
	if len(row.receipts) > 0 {
		if err := json.Unmarshal(row.receipts, &s.ActionReceipts); err != nil {
			return fmt.Errorf("failed to unmarshal action receipts: %w", err)
		}
	}
	if len(row.events) > 0 {
		if err := json.Unmarshal(row.events, &s.Events); err != nil {
			return fmt.Errorf("failed to unmarshal events: %w", err)
		}
	}

	var err error
	if s.InitialDeviationRatio, err = parseNumeric(row.initialDR, "initial_deviation_ratio"); err != nil {
		return err
	}
	if s.FinalDeviationRatio, err = parseNumeric(row.finalDR, "final_deviation_ratio"); err != nil {
		return err
	}
	if s.RolloverFeePerc, err = parseNumeric(row.rolloverFee, "rollover_fee_perc"); err != nil {
		return err
	}
	if s.PerpPrice, err = parseNumeric(row.perpPrice, "perp_price"); err != nil {
		return err
	}
	return nil
}

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(snapshot types.CycleSnapshot, feeParamsID *int64) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	row, err := encodeSnapshot(snapshot)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_id, cycle_number, snapshot_timestamp, duration_ms, success, fee_params_id,
			initial_state, final_state, final_perp_tvl, final_vault_tvl,
			initial_deviation_ratio, final_deviation_ratio, rollover_fee_perc, perp_price,
			recovered_count, deploy, perp_rolled_over, action_receipts, events, error_messages
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING snapshot_id;
	`

	var deploy any
	if row.deploy != nil {
		deploy = row.deploy
	}

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleID, snapshot.CycleNumber, snapshot.Timestamp, snapshot.Duration.Milliseconds(), snapshot.Success, feeParamsID,
		row.initialState, row.finalState, row.finalPerpTVL, row.finalVaultTVL,
		row.initialDR, row.finalDR, row.rolloverFee, row.perpPrice,
		snapshot.RecoveredCount, deploy, row.rolledOver, row.receipts, row.events, pq.Array(row.errorMessages),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	stateLogger.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("final_vault_tvl", row.finalVaultTVL).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}
