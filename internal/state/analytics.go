package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/elys-network/perpvault/internal/types"
)

// VaultSummary represents the latest recorded subscription state
type VaultSummary struct {
	PerpTVL        string `json:"perp_tvl"`
	VaultTVL       string `json:"vault_tvl"`
	DeviationRatio string `json:"deviation_ratio"`
	PerpPrice      string `json:"perp_price"`
	TotalCycles    int    `json:"total_cycles"`
	LastUpdated    string `json:"last_updated"`
}

// PerformanceMetrics represents aggregated keeper outcomes
type PerformanceMetrics struct {
	TotalCycles         int     `json:"total_cycles"`
	SuccessfulCycles    int     `json:"successful_cycles"`
	Deploys             int     `json:"deploys"`
	TotalRecovered      int     `json:"total_recovered"`
	TotalPerpRolledOver string  `json:"total_perp_rolled_over"`
	AvgCycleDurationMs  float64 `json:"avg_cycle_duration_ms"`
}

const snapshotColumns = `
	snapshot_id, fee_params_id, cycle_id, cycle_number, snapshot_timestamp, duration_ms, success,
	initial_state, final_state, initial_deviation_ratio, final_deviation_ratio, rollover_fee_perc, perp_price,
	recovered_count, deploy, action_receipts, events, error_messages`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(scanner rowScanner) (StoredSnapshot, error) {
	var (
		out        StoredSnapshot
		feeParams  sql.NullInt64
		durationMs int64
		row        snapshotRow
	)
	err := scanner.Scan(
		&out.SnapshotID, &feeParams, &out.CycleID, &out.CycleNumber, &out.Timestamp, &durationMs, &out.Success,
		&row.initialState, &row.finalState, &row.initialDR, &row.finalDR, &row.rolloverFee, &row.perpPrice,
		&out.RecoveredCount, &row.deploy, &row.receipts, &row.events, pq.Array(&row.errorMessages),
	)
	if err != nil {
		return out, err
	}
	if feeParams.Valid {
		out.FeeParamsID = &feeParams.Int64
	}
	out.Duration = time.Duration(durationMs) * time.Millisecond
	if err := decodeSnapshot(&out.CycleSnapshot, row); err != nil {
		return out, err
	}
	return out, nil
}

// GetRecentCycles retrieves recent cycle snapshots, newest first
func GetRecentCycles(limit int) ([]StoredSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `SELECT ` + snapshotColumns + `
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1`

	rows, err := DB.Query(query, limit)
	if err != nil {
		stateLogger.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	cycles := make([]StoredSnapshot, 0, limit)
	for rows.Next() {
		cycle, err := scanSnapshot(rows)
		if err != nil {
			stateLogger.Error().Err(err).Msg("Failed to scan cycle row")
			continue
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	stateLogger.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves a specific cycle by its snapshot ID
func GetCycleByID(snapshotID int64) (*StoredSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT ` + snapshotColumns + ` FROM cycle_snapshots WHERE snapshot_id = $1`
	cycle, err := scanSnapshot(DB.QueryRow(query, snapshotID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cycle with ID %d: %w", snapshotID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query cycle by ID: %w", err)
	}
	return &cycle, nil
}

// GetLatestCycle retrieves the most recent cycle snapshot
func GetLatestCycle() (*StoredSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT ` + snapshotColumns + ` FROM cycle_snapshots ORDER BY snapshot_timestamp DESC LIMIT 1`
	cycle, err := scanSnapshot(DB.QueryRow(query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no cycles recorded: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query latest cycle: %w", err)
	}
	return &cycle, nil
}

// GetVaultSummary reads the final state of the latest cycle and the cycle count
func GetVaultSummary() (*VaultSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	summary := &VaultSummary{PerpTVL: "0", VaultTVL: "0", DeviationRatio: "0", PerpPrice: "0"}

	query := `
		SELECT final_perp_tvl::TEXT, final_vault_tvl::TEXT, final_deviation_ratio::TEXT, perp_price::TEXT, snapshot_timestamp
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1`

	var lastUpdated sql.NullTime
	err := DB.QueryRow(query).Scan(&summary.PerpTVL, &summary.VaultTVL, &summary.DeviationRatio, &summary.PerpPrice, &lastUpdated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get latest subscription state: %w", err)
	}
	if lastUpdated.Valid {
		summary.LastUpdated = lastUpdated.Time.UTC().Format(time.RFC3339)
	}

	if err := DB.QueryRow("SELECT COUNT(*) FROM cycle_snapshots").Scan(&summary.TotalCycles); err != nil {
		stateLogger.Error().Err(err).Msg("Failed to get total cycle count")
	}

	return summary, nil
}

// GetPerformanceMetrics aggregates outcomes over all recorded cycles
func GetPerformanceMetrics() (*PerformanceMetrics, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	m := &PerformanceMetrics{}
	query := `
		SELECT
			COUNT(*) AS total_cycles,
			COUNT(CASE WHEN success THEN 1 END) AS successful_cycles,
			COUNT(deploy) AS deploys,
			COALESCE(SUM(recovered_count), 0) AS total_recovered,
			COALESCE(SUM(perp_rolled_over), 0)::TEXT AS total_perp_rolled_over,
			COALESCE(AVG(duration_ms), 0)::FLOAT8 AS avg_cycle_duration_ms
		FROM cycle_snapshots`

	err := DB.QueryRow(query).Scan(
		&m.TotalCycles,
		&m.SuccessfulCycles,
		&m.Deploys,
		&m.TotalRecovered,
		&m.TotalPerpRolledOver,
		&m.AvgCycleDurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get performance metrics: %w", err)
	}

	stateLogger.Debug().
		Int("totalCycles", m.TotalCycles).
		Int("deploys", m.Deploys).
		Str("totalPerpRolledOver", m.TotalPerpRolledOver).
		Msg("Retrieved performance metrics")
	return m, nil
}

// SubscriptionHistory returns the final subscription state of recent cycles, oldest first.
func SubscriptionHistory(limit int) ([]types.SubscriptionState, error) {
	cycles, err := GetRecentCycles(limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.SubscriptionState, len(cycles))
	for i, c := range cycles {
		out[len(cycles)-1-i] = c.FinalState
	}
	return out, nil
}

// Provider serves the read side of the store to the web API.
type Provider struct {
	FeePolicyConfig string
}

func (p Provider) RecentCycles(limit int) ([]StoredSnapshot, error) { return GetRecentCycles(limit) }
func (p Provider) CycleByID(id int64) (*StoredSnapshot, error)      { return GetCycleByID(id) }
func (p Provider) LatestCycle() (*StoredSnapshot, error)            { return GetLatestCycle() }
func (p Provider) VaultSummary() (*VaultSummary, error)             { return GetVaultSummary() }
func (p Provider) Performance() (*PerformanceMetrics, error)        { return GetPerformanceMetrics() }
func (p Provider) Healthy() error                                   { return PingDB() }

func (p Provider) SubscriptionHistory(limit int) ([]types.SubscriptionState, error) {
	return SubscriptionHistory(limit)
}

func (p Provider) ActiveFeePolicy() (*types.FeePolicyParams, int64, error) {
	return LoadActiveFeePolicyParameters(p.FeePolicyConfig)
}
