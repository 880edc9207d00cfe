package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/perpvault/internal/types"
)

// SaveFeePolicyParameters saves a new version of the fee policy. With makeActive the previous
// active version of configName is deactivated in the same transaction.
func SaveFeePolicyParameters(params types.FeePolicyParams, configName string, version int, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal fee policy parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.Exec(`UPDATE fee_policy_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
		INSERT INTO fee_policy_parameters (version, config_name, is_active, activated_at, created_at, params)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING params_id;`

	currentTime := time.Now()
	err = tx.QueryRow(stmt, version, configName, makeActive, currentTime, currentTime, payload).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fee policy parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	stateLogger.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved fee policy parameters")
	return paramsID, nil
}

// LoadActiveFeePolicyParameters loads the currently active fee policy for configName.
func LoadActiveFeePolicyParameters(configName string) (*types.FeePolicyParams, int64, error) {
	if DB == nil {
		return nil, 0, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT params_id, params
		FROM fee_policy_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		paramsID int64
		payload  []byte
	)
	err := DB.QueryRow(query, configName).Scan(&paramsID, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("no active fee policy parameters found for config '%s': %w", configName, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to scan active fee policy parameters for config '%s': %w", configName, err)
	}

	p := &types.FeePolicyParams{}
	if err := json.Unmarshal(payload, p); err != nil {
		return nil, 0, fmt.Errorf("failed to decode fee policy parameters %d: %w", paramsID, err)
	}
	stateLogger.Info().Str("config", configName).Int64("params_id", paramsID).Msg("Loaded active fee policy parameters")
	return p, paramsID, nil
}

// LatestFeePolicyVersion returns the highest stored version for configName, 0 when none exists.
func LatestFeePolicyVersion(configName string) (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	var version int
	err := DB.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM fee_policy_parameters WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest fee policy version for config '%s': %w", configName, err)
	}
	return version, nil
}
