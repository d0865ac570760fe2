package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/solvex/mev-shield/internal/batching"
	"github.com/solvex/mev-shield/internal/commitment"
	"github.com/solvex/mev-shield/internal/detection"
	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/fairorder"
	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"github.com/solvex/mev-shield/pkg/cache"
	"go.uber.org/zap"
)

const metricsCacheKey = "mev:metrics"

// Config holds coordinator configuration.
type Config struct {
	Options         Options
	MetricsSchedule string // cron spec, e.g. "@every 1m"
	MetricsWindow   time.Duration
	AutoEscalate    bool // bump protection level on positive detection at commit

	Store       storage.OrderStore
	Commitments *commitment.Store
	Assembler   *batching.Assembler
	FairOrder   *fairorder.Engine
	Detector    *detection.Detector
	Bus         *events.Bus
	Cache       cache.Cache
	Logger      *zap.Logger
}

// Coordinator orchestrates the commit, reveal, batch and execute
// transitions, owns the time-lock timers and the periodic metrics job, and
// is the single mutation path for protection options.
type Coordinator struct {
	mu   sync.RWMutex
	opts Options

	metricsWindow time.Duration
	autoEscalate  bool

	db          storage.OrderStore
	commitments *commitment.Store
	assembler   *batching.Assembler
	fairOrder   *fairorder.Engine
	detector    *detection.Detector
	bus         *events.Bus
	cache       cache.Cache
	logger      *zap.Logger

	cron      *cron.Cron
	timeLocks *timeLockIndex
	wg        sync.WaitGroup
	ctx       context.Context
}

// New creates the coordinator and registers it as the commitment store's
// reveal router.
func New(cfg Config) (*Coordinator, error) {
	c := &Coordinator{
		opts:          cfg.Options,
		metricsWindow: cfg.MetricsWindow,
		autoEscalate:  cfg.AutoEscalate,
		db:            cfg.Store,
		commitments:   cfg.Commitments,
		assembler:     cfg.Assembler,
		fairOrder:     cfg.FairOrder,
		detector:      cfg.Detector,
		bus:           cfg.Bus,
		cache:         cfg.Cache,
		logger:        cfg.Logger,
		cron:          cron.New(),
		timeLocks:     newTimeLockIndex(),
	}

	_, err := c.cron.AddFunc(cfg.MetricsSchedule, c.metricsJob)
	if err != nil {
		return nil, fmt.Errorf("schedule metrics job: %w", err)
	}

	c.commitments.SetRouter(c)
	return c, nil
}

// Start launches the commitment store, the batch assembler, the time-lock
// sweep and the metrics schedule.
func (c *Coordinator) Start(ctx context.Context) error {
	c.ctx = ctx

	err := c.commitments.Start(ctx)
	if err != nil {
		return fmt.Errorf("start commitment store: %w", err)
	}

	err = c.assembler.Start(ctx)
	if err != nil {
		return fmt.Errorf("start batch assembler: %w", err)
	}

	err = c.rebuildTimeLocks(ctx)
	if err != nil {
		return fmt.Errorf("rebuild time locks: %w", err)
	}

	c.startTimeLockSweep(ctx)
	c.cron.Start()

	c.logger.Info("protection-coordinator-started",
		zap.Bool("commit-reveal", c.opts.CommitRevealEnabled),
		zap.Bool("batching", c.opts.BatchingEnabled),
		zap.Bool("time-lock", c.opts.TimeLockEnabled),
		zap.Bool("fair-ordering", c.opts.FairOrderingEnabled))
	return nil
}

// Commit registers a protected order commitment. With commit-reveal
// disabled the order skips the commitment phase entirely and is routed
// onward immediately; the result then carries no commit hash.
func (c *Coordinator) Commit(ctx context.Context, intent *order.Intent, level order.ProtectionLevel) (*commitment.CommitResult, error) {
	if c.autoEscalate && level != order.ProtectionMaximum {
		level = c.maybeEscalate(ctx, intent, level)
	}

	c.mu.RLock()
	commitReveal := c.opts.CommitRevealEnabled
	c.mu.RUnlock()

	if !commitReveal {
		return c.commitUnprotected(ctx, intent, level)
	}

	return c.commitments.Commit(ctx, intent, level)
}

// maybeEscalate runs the detector against the intent and raises the
// protection level when the order flow looks targeted.
func (c *Coordinator) maybeEscalate(ctx context.Context, intent *order.Intent, level order.ProtectionLevel) order.ProtectionLevel {
	res, err := c.detector.Detect(ctx, &detection.Candidate{
		Market:   intent.Market,
		Side:     intent.Side,
		Price:    intent.Price,
		Quantity: intent.Quantity,
	})
	if err != nil || res == nil || !res.Detected {
		return level
	}

	c.logger.Info("protection-level-escalated",
		zap.String("market", intent.Market),
		zap.String("from", string(level)),
		zap.String("reason", res.Reason))
	EscalationsTotal.Inc()
	return order.ProtectionMaximum
}

// commitUnprotected persists an already-active order and routes it onward,
// used when the commit-reveal subsystem is switched off.
func (c *Coordinator) commitUnprotected(ctx context.Context, intent *order.Intent, level order.ProtectionLevel) (*commitment.CommitResult, error) {
	err := intent.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate intent: %w", err)
	}

	o := order.NewProtected(intent, level, "", time.Time{})
	o.Status = order.StatusActive
	o.Revealed = true

	err = c.db.InsertOrder(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	batchID, err := c.RouteRevealed(ctx, o)
	if err != nil {
		return nil, err
	}

	c.logger.Info("order-accepted-unprotected",
		zap.String("order-id", o.ID),
		zap.String("batch-id", batchID))

	return &commitment.CommitResult{OrderID: o.ID}, nil
}

// Reveal verifies a payload against its commitment.
func (c *Coordinator) Reveal(ctx context.Context, commitHash string, payload *commitment.Payload) (*commitment.RevealResult, error) {
	return c.commitments.Reveal(ctx, commitHash, payload)
}

// RouteRevealed implements commitment.Router: revealed orders enter the
// open batch for their market, or execute directly when batching is off.
func (c *Coordinator) RouteRevealed(ctx context.Context, o *order.ProtectedOrder) (string, error) {
	c.mu.RLock()
	batchingEnabled := c.opts.BatchingEnabled
	c.mu.RUnlock()

	if batchingEnabled {
		return c.assembler.Add(ctx, o)
	}

	// Direct path: execution must not block the revealing caller.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.fairOrder.ExecuteDirect(context.Background(), o)
		if err != nil {
			c.logger.Error("direct-execution-failed",
				zap.String("order-id", o.ID),
				zap.Error(err))
		}
	}()
	return "", nil
}

// Detect runs a front-running scan for the candidate order data.
func (c *Coordinator) Detect(ctx context.Context, cand *detection.Candidate) (*detection.Result, error) {
	return c.detector.Detect(ctx, cand)
}

// Options returns a snapshot of the current protection options.
func (c *Coordinator) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts
}

// UpdateOptions applies a partial configuration update, propagates it to
// the subsystems and publishes a config-updated notification.
func (c *Coordinator) UpdateOptions(patch *OptionsPatch) (Options, error) {
	c.mu.Lock()
	next := c.opts.apply(patch)
	if next.BatchSize <= 0 || next.BatchInterval <= 0 {
		c.mu.Unlock()
		return c.opts, fmt.Errorf("batch size and interval must be positive")
	}
	if next.MinCommitTime <= 0 || next.MaxCommitTime < next.MinCommitTime {
		c.mu.Unlock()
		return c.opts, fmt.Errorf("invalid commit windows")
	}
	c.opts = next
	c.mu.Unlock()

	c.commitments.UpdateWindows(next.MinCommitTime, next.MaxCommitTime)
	c.assembler.SetLimits(next.BatchSize, next.BatchInterval)
	c.fairOrder.SetEnabled(next.FairOrderingEnabled)

	c.logger.Info("protection-config-updated",
		zap.Bool("commit-reveal", next.CommitRevealEnabled),
		zap.Bool("batching", next.BatchingEnabled),
		zap.Bool("fair-ordering", next.FairOrderingEnabled),
		zap.Int("batch-size", next.BatchSize),
		zap.Duration("batch-interval", next.BatchInterval))

	c.bus.Publish(events.Event{
		Type:    events.ConfigUpdated,
		Payload: next,
	})
	return next, nil
}

// Close drains and stops everything: the metrics schedule, the time-lock
// sweep, the deadline sweep, and every still-pending batch, so no revealed
// order is silently dropped on exit. The context passed to Start must be
// cancelled before calling Close.
func (c *Coordinator) Close() error {
	cronCtx := c.cron.Stop()
	<-cronCtx.Done()

	c.assembler.Drain()
	c.wg.Wait()

	err := c.commitments.Close()
	if err != nil {
		c.logger.Error("commitment-store-close-error", zap.Error(err))
	}
	err = c.assembler.Close()
	if err != nil {
		c.logger.Error("batch-assembler-close-error", zap.Error(err))
	}

	c.logger.Info("protection-coordinator-closed")
	return nil
}
