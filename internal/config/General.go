package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// CollateralDenom is the rebasing collateral every bond tranches.
	CollateralDenom string
	// PerpDenom is the perpetual tranche token, also the account holding perp's reserve.
	PerpDenom string
	// VaultNoteDenom is the vault note token, also the account holding the vault's assets.
	VaultNoteDenom string
	// FeeCollector receives the vault deployment fee.
	FeeCollector string

	// PricingStrategy selects how perp prices reserve tranches ("unit", "cdr", "cdr_lower_bound").
	PricingStrategy string
	// DiscountStrategy selects how perp weighs reserve tranches ("class_defined", "unit").
	DiscountStrategy string

	// AVMMode gates how the keeper runs. Only "simulate" drives the engine.
	AVMMode string
	// CycleInterval is the time between keeper cycles.
	CycleInterval time.Duration
	// SimulationSeed seeds the scripted market in simulate mode.
	SimulationSeed int64
	// FeePolicyFile optionally points at a TOML file overriding DefaultFeePolicy.
	FeePolicyFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Denoms are required; everything else falls back to a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	CollateralDenom, err = getEnv("COLLATERAL_DENOM")
	if err != nil {
		return err
	}

	PerpDenom, err = getEnv("PERP_DENOM")
	if err != nil {
		return err
	}

	VaultNoteDenom, err = getEnv("VAULT_NOTE_DENOM")
	if err != nil {
		return err
	}

	FeeCollector = getEnvOrDefault("FEE_COLLECTOR", "feecollector")
	PricingStrategy = getEnvOrDefault("PRICING_STRATEGY", "cdr")
	DiscountStrategy = getEnvOrDefault("DISCOUNT_STRATEGY", "class_defined")
	AVMMode = getEnvOrDefault("AVM_MODE", "")
	FeePolicyFile = getEnvOrDefault("FEE_POLICY_FILE", "")

	CycleInterval, err = getEnvAsDuration("CYCLE_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}

	SimulationSeed, err = getEnvAsInt64("SIMULATION_SEED", 42)
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("CollateralDenom", CollateralDenom).
		Str("PerpDenom", PerpDenom).
		Str("VaultNoteDenom", VaultNoteDenom).
		Str("PricingStrategy", PricingStrategy).
		Str("DiscountStrategy", DiscountStrategy).
		Dur("CycleInterval", CycleInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, or def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if set but invalid.
func getEnvAsInt64(key string, def int64) (int64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration. Returns error if set but invalid.
func getEnvAsDuration(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}
