package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/elys-network/perpvault/internal/logger"
)

// DB is a global database connection pool.
var DB *sql.DB

var stateLogger = logger.GetForComponent("state")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	stateLogger.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		stateLogger.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			stateLogger.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS fee_policy_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		params JSONB NOT NULL,
		CONSTRAINT uq_fee_policy_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_fee_policy_parameters_config_active ON fee_policy_parameters(config_name, is_active, activated_at DESC);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_fee_policy_parameters_single_active ON fee_policy_parameters(config_name) WHERE is_active;

	CREATE TABLE IF NOT EXISTS cycle_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_id UUID NOT NULL,
		cycle_number INTEGER NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		duration_ms BIGINT NOT NULL,
		success BOOLEAN NOT NULL,
		fee_params_id INTEGER REFERENCES fee_policy_parameters(params_id),

		-- Subscription state
		initial_state JSONB NOT NULL,
		final_state JSONB NOT NULL,
		final_perp_tvl NUMERIC(78, 0) NOT NULL,
		final_vault_tvl NUMERIC(78, 0) NOT NULL,
		initial_deviation_ratio NUMERIC(78, 0) NOT NULL,
		final_deviation_ratio NUMERIC(78, 0) NOT NULL,
		rollover_fee_perc NUMERIC(78, 0) NOT NULL,
		perp_price NUMERIC(78, 0) NOT NULL,

		-- Outcome
		recovered_count INTEGER NOT NULL DEFAULT 0,
		deploy JSONB,
		perp_rolled_over NUMERIC(78, 0) NOT NULL DEFAULT 0,
		action_receipts JSONB,
		events JSONB,
		error_messages TEXT[]
	);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	stateLogger.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table EnsureSchema creates.
func DropSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	dropSQL := `
		DROP TABLE IF EXISTS cycle_snapshots CASCADE;
		DROP TABLE IF EXISTS fee_policy_parameters CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	stateLogger.Warn().Msg("Dropped all tables")
	return nil
}

// PingDB checks that the database connection is healthy
func PingDB() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
