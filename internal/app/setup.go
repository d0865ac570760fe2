package app

import (
	"context"
	"fmt"

	"github.com/solvex/mev-shield/internal/batching"
	"github.com/solvex/mev-shield/internal/commitment"
	"github.com/solvex/mev-shield/internal/coordinator"
	"github.com/solvex/mev-shield/internal/detection"
	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/execution"
	"github.com/solvex/mev-shield/internal/fairorder"
	"github.com/solvex/mev-shield/internal/storage"
	"github.com/solvex/mev-shield/pkg/cache"
	"github.com/solvex/mev-shield/pkg/config"
	"github.com/solvex/mev-shield/pkg/healthprobe"
	"github.com/solvex/mev-shield/pkg/httpserver"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker()

	appCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	bus := events.NewBus(logger)
	detector := setupDetector(cfg, logger, store, appCache, bus)
	fairOrder := setupFairOrder(cfg, logger, store, bus)
	assembler := setupAssembler(cfg, logger, store, fairOrder)
	commitments := setupCommitments(cfg, logger, store, bus)

	coord, err := setupCoordinator(cfg, logger, store, commitments, assembler, fairOrder, detector, bus, appCache)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup coordinator: %w", err)
	}

	httpServer := setupHTTPServer(cfg, logger, healthChecker, coord, bus)

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		coord:         coord,
		commitments:   commitments,
		assembler:     assembler,
		fairOrder:     fairOrder,
		detector:      detector,
		bus:           bus,
		appCache:      appCache,
		store:         store,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.OrderStore, error) {
	if cfg.StorageMode == "postgres" {
		pgStore, err := storage.NewPostgresStore(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		return pgStore, nil
	}

	return storage.NewMemoryStore(logger), nil
}

func setupDetector(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.OrderStore,
	appCache cache.Cache,
	bus *events.Bus,
) *detection.Detector {
	return detection.New(detection.Config{
		ClusterWindow:        cfg.DetectionClusterWindow,
		PriceTolerance:       cfg.DetectionPriceTolerance,
		SizeTolerance:        cfg.DetectionSizeTolerance,
		ClusterThreshold:     cfg.DetectionClusterThreshold,
		DislocationWindow:    cfg.DetectionDislocationWindow,
		DislocationThreshold: cfg.DetectionDislocationThreshold,
		MinTradeCount:        cfg.DetectionMinTrades,
		MaxConfidence:        cfg.DetectionMaxConfidence,
		Store:                store,
		Cache:                appCache,
		Bus:                  bus,
		Logger:               logger,
	})
}

func setupFairOrder(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.OrderStore,
	bus *events.Bus,
) *fairorder.Engine {
	engine := execution.NewPaperEngine(&execution.PaperConfig{
		ReferencePrice: cfg.PaperReferencePrice,
		Store:          store,
		Logger:         logger,
	})

	return fairorder.New(fairorder.Config{
		Enabled:  cfg.FairOrderingEnabled,
		Executor: engine,
		Store:    store,
		Bus:      bus,
		Logger:   logger,
	})
}

func setupAssembler(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.OrderStore,
	fairOrder *fairorder.Engine,
) *batching.Assembler {
	var seed batching.SeedFunc
	if cfg.RandomizationSeed != "" {
		// Fixed seed makes batch ordering reproducible; never set this in
		// production.
		fixed := cfg.RandomizationSeed
		seed = func() (string, error) { return fixed, nil }
		logger.Warn("batch-seed-override-active")
	}

	return batching.New(batching.Config{
		MaxSize:  cfg.BatchSize,
		Interval: cfg.BatchInterval,
		Seed:     seed,
		Store:    store,
		Executor: fairOrder,
		Logger:   logger,
	})
}

func setupCommitments(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.OrderStore,
	bus *events.Bus,
) *commitment.Store {
	return commitment.New(commitment.Config{
		MinCommitTime: cfg.MinCommitTime,
		MaxCommitTime: cfg.MaxCommitTime,
		Store:         store,
		Bus:           bus,
		Logger:        logger,
	})
}

func setupCoordinator(
	cfg *config.Config,
	logger *zap.Logger,
	store storage.OrderStore,
	commitments *commitment.Store,
	assembler *batching.Assembler,
	fairOrder *fairorder.Engine,
	detector *detection.Detector,
	bus *events.Bus,
	appCache cache.Cache,
) (*coordinator.Coordinator, error) {
	return coordinator.New(coordinator.Config{
		Options: coordinator.Options{
			CommitRevealEnabled: cfg.CommitRevealEnabled,
			BatchingEnabled:     cfg.BatchingEnabled,
			TimeLockEnabled:     cfg.TimeLockEnabled,
			FairOrderingEnabled: cfg.FairOrderingEnabled,
			MinCommitTime:       cfg.MinCommitTime,
			MaxCommitTime:       cfg.MaxCommitTime,
			BatchSize:           cfg.BatchSize,
			BatchInterval:       cfg.BatchInterval,
		},
		MetricsSchedule: cfg.MetricsSchedule,
		MetricsWindow:   cfg.MetricsWindow,
		AutoEscalate:    cfg.DetectionAutoEscalate,
		Store:           store,
		Commitments:     commitments,
		Assembler:       assembler,
		FairOrder:       fairOrder,
		Detector:        detector,
		Bus:             bus,
		Cache:           appCache,
		Logger:          logger,
	})
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	coord *coordinator.Coordinator,
	bus *events.Bus,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Coordinator:   coord,
		Bus:           bus,
	})
}
