package fairorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/execution"
	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"go.uber.org/zap"
)

// PriorityThreshold is the minimum priority difference before the priority
// pass may override the fairness-token order. Below it, the token order
// stands, so ordinary orders cannot buy their way ahead.
const PriorityThreshold = 25.0

// Config holds fair-ordering engine configuration.
type Config struct {
	Enabled  bool
	Executor execution.Engine
	Store    storage.OrderStore
	Bus      *events.Bus
	Logger   *zap.Logger
}

// Engine computes the execution order of a closed batch and drives its
// members through the execution venue sequentially.
type Engine struct {
	enabled  atomic.Bool
	executor execution.Engine
	db       storage.OrderStore
	bus      *events.Bus
	logger   *zap.Logger
}

// New creates a fair-ordering engine.
func New(cfg Config) *Engine {
	e := &Engine{
		executor: cfg.Executor,
		db:       cfg.Store,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}
	e.enabled.Store(cfg.Enabled)
	return e
}

// SetEnabled toggles fair ordering at runtime. When disabled, batches
// execute in insertion order.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Enabled reports whether fair ordering is applied.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// fairnessToken derives the per-order sort key. It depends on the order's
// commit hash, the batch seed and the order's creation time, so it is fixed
// the instant the batch closes yet unknowable to any participant before
// then: no one controls the seed, and no one knows the full member set.
func fairnessToken(o *order.ProtectedOrder, seed string) []byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(o.CreatedAt.UnixNano()))
	return crypto.Keccak256([]byte(o.CommitHash), []byte(seed), ts[:])
}

// ComputeOrder returns the batch members in execution order. It is a pure
// function of (batch.Orders, batch.RandomSeed): identical inputs always
// yield an identical sequence, which makes the ordering replayable for
// audit. Members sort lexicographically on their fairness token, then a
// single priority pass swaps adjacent members whose priority differs by
// more than PriorityThreshold.
func (e *Engine) ComputeOrder(b *order.Batch) []*order.ProtectedOrder {
	ordered := make([]*order.ProtectedOrder, len(b.Orders))
	copy(ordered, b.Orders)

	tokens := make(map[string][]byte, len(ordered))
	for _, o := range ordered {
		tokens[o.ID] = fairnessToken(o, b.RandomSeed)
	}

	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(tokens[ordered[i].ID], tokens[ordered[j].ID]) < 0
	})

	for i := 0; i < len(ordered)-1; i++ {
		if ordered[i+1].Priority-ordered[i].Priority > PriorityThreshold {
			ordered[i], ordered[i+1] = ordered[i+1], ordered[i]
			PrioritySwapsTotal.Inc()
		}
	}

	return ordered
}

// ExecuteBatch orders the batch members and executes them sequentially.
// A single member's failure is caught and logged; remaining members still
// execute. An unexpected batch-level error marks the batch failed and
// leaves other batches unaffected.
func (e *Engine) ExecuteBatch(ctx context.Context, b *order.Batch) error {
	start := time.Now()

	err := e.executeBatch(ctx, b)
	if err != nil {
		BatchesFailedTotal.Inc()
		e.logger.Error("batch-failed",
			zap.String("batch-id", b.ID),
			zap.String("market", b.Market),
			zap.Error(err))

		statusErr := e.db.UpdateBatchStatus(ctx, b.ID, order.BatchFailed)
		if statusErr != nil {
			e.logger.Error("batch-failure-persist-failed",
				zap.String("batch-id", b.ID),
				zap.Error(statusErr))
		}
		b.Status = order.BatchFailed

		e.bus.Publish(events.Event{
			Type:    events.BatchFailed,
			BatchID: b.ID,
			Market:  b.Market,
		})
		return err
	}

	BatchesExecutedTotal.Inc()
	BatchSizeOrders.Observe(float64(len(b.Orders)))
	BatchExecutionDurationSeconds.Observe(time.Since(start).Seconds())

	e.bus.Publish(events.Event{
		Type:    events.BatchExecuted,
		BatchID: b.ID,
		Market:  b.Market,
		Payload: len(b.Orders),
	})
	return nil
}

func (e *Engine) executeBatch(ctx context.Context, b *order.Batch) error {
	ordered := b.Orders
	if e.enabled.Load() && len(b.Orders) > 1 {
		ordered = e.ComputeOrder(b)
		b.FairOrderingApplied = true
	}

	e.logger.Info("batch-executing",
		zap.String("batch-id", b.ID),
		zap.String("market", b.Market),
		zap.Int("members", len(ordered)),
		zap.Bool("fair-ordering", b.FairOrderingApplied))

	for _, o := range ordered {
		e.executeMember(ctx, b, o)
	}

	err := e.db.UpdateBatchStatus(ctx, b.ID, order.BatchExecuted)
	if err != nil {
		return fmt.Errorf("mark batch executed: %w", err)
	}
	b.Status = order.BatchExecuted
	return nil
}

// executeMember runs one order; failures stay contained to the member.
func (e *Engine) executeMember(ctx context.Context, b *order.Batch, o *order.ProtectedOrder) {
	res, err := e.executor.Execute(ctx, o)
	if err != nil || res == nil || !res.Success {
		e.logger.Error("order-execution-failed",
			zap.String("order-id", o.ID),
			zap.String("batch-id", b.ID),
			zap.Error(err))

		_, transErr := e.db.TransitionOrder(ctx, o.ID, order.StatusActive, order.StatusFailed)
		if transErr != nil {
			e.logger.Error("order-failure-persist-failed",
				zap.String("order-id", o.ID),
				zap.Error(transErr))
		}
		return
	}

	_, err = e.db.TransitionOrder(ctx, o.ID, order.StatusActive, order.StatusExecuted)
	if err != nil {
		e.logger.Error("order-executed-persist-failed",
			zap.String("order-id", o.ID),
			zap.Error(err))
	}

	e.bus.Publish(events.Event{
		Type:    events.OrderExecuted,
		OrderID: o.ID,
		BatchID: b.ID,
		Market:  o.Market,
	})
}

// ExecuteDirect executes a single revealed order outside any batch, used
// when batching is disabled and for unlocked time-locked orders.
func (e *Engine) ExecuteDirect(ctx context.Context, o *order.ProtectedOrder) error {
	res, err := e.executor.Execute(ctx, o)
	if err != nil || res == nil || !res.Success {
		_, transErr := e.db.TransitionOrder(ctx, o.ID, order.StatusActive, order.StatusFailed)
		if transErr != nil {
			e.logger.Error("order-failure-persist-failed",
				zap.String("order-id", o.ID),
				zap.Error(transErr))
		}
		if err != nil {
			return fmt.Errorf("execute order: %w", err)
		}
		return fmt.Errorf("execution rejected order %s", o.ID)
	}

	_, err = e.db.TransitionOrder(ctx, o.ID, order.StatusActive, order.StatusExecuted)
	if err != nil {
		return fmt.Errorf("mark order executed: %w", err)
	}

	e.bus.Publish(events.Event{
		Type:    events.OrderExecuted,
		OrderID: o.ID,
		Market:  o.Market,
	})
	return nil
}
