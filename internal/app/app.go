package app

import (
	"context"

	"github.com/solvex/mev-shield/internal/batching"
	"github.com/solvex/mev-shield/internal/commitment"
	"github.com/solvex/mev-shield/internal/coordinator"
	"github.com/solvex/mev-shield/internal/detection"
	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/fairorder"
	"github.com/solvex/mev-shield/internal/storage"
	"github.com/solvex/mev-shield/pkg/cache"
	"github.com/solvex/mev-shield/pkg/config"
	"github.com/solvex/mev-shield/pkg/healthprobe"
	"github.com/solvex/mev-shield/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	coord         *coordinator.Coordinator
	commitments   *commitment.Store
	assembler     *batching.Assembler
	fairOrder     *fairorder.Engine
	detector      *detection.Detector
	bus           *events.Bus
	appCache      cache.Cache
	store         storage.OrderStore
	ctx           context.Context
	cancel        context.CancelFunc
}
