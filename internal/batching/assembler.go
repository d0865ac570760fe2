package batching

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/solvex/mev-shield/internal/fairorder"
	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"go.uber.org/zap"
)

// sweepInterval is how often open batches are checked against their
// execution window.
const sweepInterval = time.Second

// SeedFunc produces the random seed fixed on a batch at creation. The
// default draws from crypto/rand; tests may install a deterministic source.
type SeedFunc func() (string, error)

// DefaultSeed returns a hex-encoded 32-byte random seed.
func DefaultSeed() (string, error) {
	buf := make([]byte, 32)
	_, err := rand.Read(buf)
	if err != nil {
		return "", fmt.Errorf("generate batch seed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Config holds assembler configuration.
type Config struct {
	MaxSize  int           // members before forced closure
	Interval time.Duration // max wait before forced closure
	Seed     SeedFunc      // nil means DefaultSeed
	Store    storage.OrderStore
	Executor *fairorder.Engine
	Logger   *zap.Logger
}

// Assembler groups revealed orders into per-market batches bounded by size
// and time, and owns their lifecycle up to handing a closed batch to the
// fair-ordering engine. Membership mutation and closure serialize on the
// assembler lock, so a batch can neither overflow nor close twice under
// concurrent reveals.
type Assembler struct {
	mu       sync.Mutex
	open     map[string]*order.Batch // market -> open batch
	maxSize  int
	interval time.Duration

	seed     SeedFunc
	db       storage.OrderStore
	executor *fairorder.Engine
	logger   *zap.Logger

	sweepWg sync.WaitGroup
	execWg  sync.WaitGroup
}

// New creates a batch assembler.
func New(cfg Config) *Assembler {
	seed := cfg.Seed
	if seed == nil {
		seed = DefaultSeed
	}
	return &Assembler{
		open:     make(map[string]*order.Batch),
		maxSize:  cfg.MaxSize,
		interval: cfg.Interval,
		seed:     seed,
		db:       cfg.Store,
		executor: cfg.Executor,
		logger:   cfg.Logger,
	}
}

// Start launches the sweep loop that closes batches whose execution window
// has elapsed, guaranteeing bounded latency even for thin markets.
func (a *Assembler) Start(ctx context.Context) error {
	a.sweepWg.Add(1)
	go func() {
		defer a.sweepWg.Done()

		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				a.logger.Info("batch-sweep-stopping")
				return
			case now := <-ticker.C:
				a.sweep(now)
			}
		}
	}()

	a.logger.Info("batch-assembler-started",
		zap.Int("max-size", a.maxSize),
		zap.Duration("interval", a.interval))
	return nil
}

// SetLimits updates the size and time bounds for batches created after the
// call. Open batches keep the window they were created with.
func (a *Assembler) SetLimits(maxSize int, interval time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxSize = maxSize
	a.interval = interval
}

// Add places a revealed order into the open batch for its market, creating
// one when needed, and returns the batch id. Reaching the configured
// maximum closes the batch immediately.
func (a *Assembler) Add(ctx context.Context, o *order.ProtectedOrder) (string, error) {
	a.mu.Lock()

	b := a.open[o.Market]
	if b == nil || b.Status != order.BatchPending {
		seed, err := a.seed()
		if err != nil {
			a.mu.Unlock()
			return "", err
		}
		b = order.NewBatch(o.Market, seed, time.Now().Add(a.interval))
		err = a.db.InsertBatch(ctx, b)
		if err != nil {
			a.mu.Unlock()
			return "", fmt.Errorf("persist batch: %w", err)
		}
		a.open[o.Market] = b
		BatchesOpenedTotal.Inc()
		a.logger.Info("batch-opened",
			zap.String("batch-id", b.ID),
			zap.String("market", b.Market),
			zap.Time("execute-at", b.ExecuteAt))
	}

	err := a.db.AssignOrderToBatch(ctx, o.ID, b.ID)
	if err != nil {
		a.mu.Unlock()
		return "", fmt.Errorf("assign order to batch: %w", err)
	}
	o.BatchID = b.ID
	b.Orders = append(b.Orders, o)
	OrdersBatchedTotal.Inc()

	full := len(b.Orders) >= a.maxSize
	if full {
		a.closeLocked(b, "full")
	}
	a.mu.Unlock()

	return b.ID, nil
}

// sweep closes open batches whose execution window has passed, regardless
// of fill level.
func (a *Assembler) sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.open {
		if !b.ExecuteAt.After(now) {
			a.closeLocked(b, "window_elapsed")
		}
	}
}

// closeLocked transitions a pending batch to processing and hands it to the
// fair-ordering engine on its own goroutine, so batches for different
// markets execute concurrently while each batch stays sequential inside.
// Closing a non-pending batch is a no-op. Caller holds a.mu.
func (a *Assembler) closeLocked(b *order.Batch, reason string) {
	if b.Status != order.BatchPending {
		return
	}
	b.Status = order.BatchProcessing
	delete(a.open, b.Market)

	// Priorities were scored at commit time, when the earliness bonus is
	// necessarily zero. Closure fixes the reference instant every member is
	// scored against, so earlier commits rank ahead of later ones.
	closedAt := time.Now()
	for _, o := range b.Orders {
		o.Rescore(closedAt)
	}

	BatchesClosedTotal.WithLabelValues(reason).Inc()
	a.logger.Info("batch-closed",
		zap.String("batch-id", b.ID),
		zap.String("market", b.Market),
		zap.Int("members", len(b.Orders)),
		zap.String("reason", reason))

	a.execWg.Add(1)
	go func() {
		defer a.execWg.Done()

		// Batch execution is never cancelled mid-flight; the shutdown drain
		// waits for it instead.
		ctx := context.Background()
		err := a.db.UpdateBatchStatus(ctx, b.ID, order.BatchProcessing)
		if err != nil {
			a.logger.Error("batch-processing-persist-failed",
				zap.String("batch-id", b.ID),
				zap.Error(err))
		}
		_ = a.executor.ExecuteBatch(ctx, b)
	}()
}

// OpenBatch returns the currently open batch for a market, if any.
func (a *Assembler) OpenBatch(market string) (*order.Batch, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.open[market]
	return b, ok
}

// Drain force-closes every still-pending batch and waits for all in-flight
// executions, so no revealed order is dropped on shutdown.
func (a *Assembler) Drain() {
	a.mu.Lock()
	for _, b := range a.open {
		a.closeLocked(b, "drain")
	}
	a.mu.Unlock()

	a.execWg.Wait()
	a.logger.Info("batch-assembler-drained")
}

// Close waits for the sweep loop to exit after its context is cancelled.
func (a *Assembler) Close() error {
	a.sweepWg.Wait()
	return nil
}
