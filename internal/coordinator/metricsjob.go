package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/order"
	"go.uber.org/zap"
)

// Metrics returns the current MEV protection snapshot, recomputing it from
// the durable store when the cached copy has expired.
func (c *Coordinator) Metrics(ctx context.Context) (*order.MevMetrics, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(metricsCacheKey); ok {
			if m, ok := v.(*order.MevMetrics); ok {
				return m, nil
			}
		}
	}
	return c.recomputeMetrics(ctx, false)
}

// metricsJob is the cron entry point for the periodic recomputation.
func (c *Coordinator) metricsJob() {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := c.recomputeMetrics(ctx, true)
	if err != nil {
		c.logger.Error("metrics-recompute-failed", zap.Error(err))
	}
}

// recomputeMetrics aggregates the rolling window strictly from the durable
// store, never from in-memory state, so the numbers survive restarts.
func (c *Coordinator) recomputeMetrics(ctx context.Context, publish bool) (*order.MevMetrics, error) {
	start := time.Now()
	since := start.Add(-c.metricsWindow)

	orderStats, err := c.db.OrderStatsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}
	batchStats, err := c.db.BatchStatsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate batches: %w", err)
	}
	detections, err := c.db.CountDetectionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count detections: %w", err)
	}

	successRate := 1.0
	terminal := orderStats.Executed + orderStats.Expired + orderStats.Failed
	if terminal > 0 {
		successRate = float64(orderStats.Executed) / float64(terminal)
	}

	m := &order.MevMetrics{
		TotalProtectedOrders:  orderStats.Total,
		AvgCommitRevealWindow: orderStats.AvgCommitWindow,
		BatchCount:            batchStats.Count,
		FrontRunningDetected:  detections,
		ProtectionSuccessRate: successRate,
		AvgBatchSize:          batchStats.AvgSize,
		WindowStart:           since,
		ComputedAt:            start,
	}

	if c.cache != nil {
		c.cache.Set(metricsCacheKey, m, time.Minute)
	}

	MetricsRecomputeDurationSeconds.Observe(time.Since(start).Seconds())
	ProtectionSuccessRate.Set(successRate)

	if publish {
		c.bus.Publish(events.Event{
			Type:    events.MetricsSnapshot,
			Payload: m,
		})
		c.logger.Debug("metrics-snapshot-published",
			zap.Int("total-protected-orders", m.TotalProtectedOrders),
			zap.Int("batch-count", m.BatchCount),
			zap.Float64("success-rate", m.ProtectionSuccessRate))
	}

	return m, nil
}
