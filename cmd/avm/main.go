package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/perpvault/internal/avm"
	"github.com/elys-network/perpvault/internal/config"
	"github.com/elys-network/perpvault/internal/discount"
	"github.com/elys-network/perpvault/internal/feepolicy"
	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/metrics"
	"github.com/elys-network/perpvault/internal/pricing"
	"github.com/elys-network/perpvault/internal/simulations"
	"github.com/elys-network/perpvault/internal/state"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/web"
)

const feePolicyConfigName = "default"

// main is the entry point for the perp vault keeper.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var extra []io.Writer
	if path := os.Getenv("LOG_FILE"); path != "" {
		w, err := logger.FileWriter(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to open log file")
		}
		extra = append(extra, w)
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"), extra...)
	log.Info().Msg("Perp vault keeper starting...")

	if config.AVMMode != "simulate" {
		log.Fatal().Str("mode", config.AVMMode).Msg("AVM_MODE is not set to 'simulate'. Halting to prevent accidental execution. Set AVM_MODE=simulate to run.")
	}

	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	feePolicy, feeParamsID, err := loadFeePolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load fee policy")
	}
	log.Info().Int64("params_id", feeParamsID).Msg("Fee policy loaded successfully.")

	// --- 2. Engine ---
	pricingKind, err := pricing.ParseKind(config.PricingStrategy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pricing strategy")
	}
	discountKind, err := discount.ParseKind(config.DiscountStrategy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid discount strategy")
	}

	envCfg := simulations.DefaultEnvironmentConfig()
	envCfg.Underlying = types.Address(config.CollateralDenom)
	envCfg.PerpDenom = types.Address(config.PerpDenom)
	envCfg.VaultDenom = types.Address(config.VaultNoteDenom)
	envCfg.FeeCollector = types.Address(config.FeeCollector)
	envCfg.Pricing = pricingKind
	envCfg.Discount = discountKind
	envCfg.FeePolicy = feePolicy

	env, err := simulations.NewEnvironment(envCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}
	market, err := simulations.NewMarket(env, simulations.DefaultMarketParams(), config.SimulationSeed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed simulated market")
	}

	// --- 3. Metrics and keeper ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	keeperMetrics, err := metrics.New(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	keeper, err := avm.NewAVM(avm.Config{
		VaultManager: env.Vault,
		Recorder:     state.Recorder{FeeParamsID: &feeParamsID},
		Metrics:      keeperMetrics,
		BeforeCycle:  market.Step,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AVM instance")
	}

	// --- 4. Run ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	webServer := web.NewWebServer(config.WebPort, state.Provider{FeePolicyConfig: feePolicyConfigName}, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting keeper API")
		return webServer.Start(gctx)
	})
	g.Go(func() error {
		keeper.RunLoop(gctx, config.CycleInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Keeper stopped with error")
		return
	}
	log.Info().Msg("Keeper stopped")
}

// loadFeePolicy returns the active stored fee policy. A configured FEE_POLICY_FILE, or an empty
// store, saves a new active version first.
func loadFeePolicy() (types.FeePolicyParams, int64, error) {
	if config.FeePolicyFile == "" {
		params, id, err := state.LoadActiveFeePolicyParameters(feePolicyConfigName)
		if err == nil {
			return *params, id, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			return types.FeePolicyParams{}, 0, err
		}
		log.Warn().Msg("No active fee policy stored, saving defaults.")
	}

	params := config.DefaultFeePolicy()
	if config.FeePolicyFile != "" {
		var err error
		params, err = config.LoadFeePolicyFile(config.FeePolicyFile, params)
		if err != nil {
			return types.FeePolicyParams{}, 0, err
		}
	}
	if _, err := feepolicy.New(params); err != nil {
		return types.FeePolicyParams{}, 0, err
	}

	version, err := state.LatestFeePolicyVersion(feePolicyConfigName)
	if err != nil {
		return types.FeePolicyParams{}, 0, err
	}
	id, err := state.SaveFeePolicyParameters(params, feePolicyConfigName, version+1, true)
	if err != nil {
		return types.FeePolicyParams{}, 0, err
	}
	return params, id, nil
}
