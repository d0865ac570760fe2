package storage

import (
	"context"
	"sync"
	"time"

	"github.com/solvex/mev-shield/internal/order"
	"go.uber.org/zap"
)

// MemoryStore implements OrderStore with in-process maps. It is the default
// storage mode for local runs and the store used by package tests.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[string]*order.ProtectedOrder
	byHash     map[string]string // commit hash -> order id
	batches    map[string]*order.Batch
	trades     []*TradeRecord
	detections []*DetectionRecord
	logger     *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	logger.Info("memory-storage-initialized")
	return &MemoryStore{
		orders:  make(map[string]*order.ProtectedOrder),
		byHash:  make(map[string]string),
		batches: make(map[string]*order.Batch),
		logger:  logger,
	}
}

func cloneOrder(o *order.ProtectedOrder) *order.ProtectedOrder {
	c := *o
	if o.EncryptedPayload != nil {
		c.EncryptedPayload = append([]byte(nil), o.EncryptedPayload...)
	}
	return &c
}

// InsertOrder durably records a new protected order.
func (m *MemoryStore) InsertOrder(ctx context.Context, o *order.ProtectedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	if o.CommitHash != "" {
		m.byHash[o.CommitHash] = o.ID
	}
	return nil
}

// UpdateOrder overwrites the stored record for o.ID.
func (m *MemoryStore) UpdateOrder(ctx context.Context, o *order.ProtectedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return ErrNotFound
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

// TransitionOrder atomically moves an order between statuses.
func (m *MemoryStore) TransitionOrder(ctx context.Context, id string, from, to order.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

// GetOrder returns the order with the given id.
func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*order.ProtectedOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

// GetOrderByCommitHash returns the order with the given commit hash.
func (m *MemoryStore) GetOrderByCommitHash(ctx context.Context, hash string) (*order.ProtectedOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

// ListActiveOrders returns active orders for a market/side created at or
// after since.
func (m *MemoryStore) ListActiveOrders(ctx context.Context, market string, side order.Side, since time.Time) ([]*order.ProtectedOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*order.ProtectedOrder
	for _, o := range m.orders {
		if o.Status != order.StatusActive {
			continue
		}
		if o.Market != market || o.Side != side {
			continue
		}
		if o.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

// ListPendingOrders returns all orders still awaiting reveal.
func (m *MemoryStore) ListPendingOrders(ctx context.Context) ([]*order.ProtectedOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*order.ProtectedOrder
	for _, o := range m.orders {
		if o.Status == order.StatusPending {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

// ListTimeLockedOrders returns all orders still under a time lock.
func (m *MemoryStore) ListTimeLockedOrders(ctx context.Context) ([]*order.ProtectedOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*order.ProtectedOrder
	for _, o := range m.orders {
		if o.Status == order.StatusTimeLocked {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

// InsertBatch durably records a new batch.
func (m *MemoryStore) InsertBatch(ctx context.Context, b *order.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *b
	m.batches[b.ID] = &c
	return nil
}

// UpdateBatchStatus sets a batch's status.
func (m *MemoryStore) UpdateBatchStatus(ctx context.Context, id string, status order.BatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	return nil
}

// AssignOrderToBatch records an order's batch membership.
func (m *MemoryStore) AssignOrderToBatch(ctx context.Context, orderID, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.BatchID = batchID
	if b, ok := m.batches[batchID]; ok {
		b.Orders = append(b.Orders, cloneOrder(o))
	}
	return nil
}

// InsertTrade records an execution.
func (m *MemoryStore) InsertTrade(ctx context.Context, t *TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.trades = append(m.trades, &c)
	return nil
}

// ListTradesSince returns executions for a market at or after since.
func (m *MemoryStore) ListTradesSince(ctx context.Context, market string, since time.Time) ([]*TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*TradeRecord
	for _, t := range m.trades {
		if t.Market != market || t.ExecutedAt.Before(since) {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// InsertDetection records a positive front-running detection.
func (m *MemoryStore) InsertDetection(ctx context.Context, d *DetectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	m.detections = append(m.detections, &c)
	return nil
}

// CountDetectionsSince returns the number of detections at or after since.
func (m *MemoryStore) CountDetectionsSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, d := range m.detections {
		if !d.DetectedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// OrderStatsSince aggregates order counts over [since, now].
func (m *MemoryStore) OrderStatsSince(ctx context.Context, since time.Time) (*OrderStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &OrderStats{}
	var windowSum time.Duration
	windowed := 0
	for _, o := range m.orders {
		if o.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		// Time-locked and unprotected orders carry no reveal deadline;
		// they count toward totals but not the commit-window average.
		if !o.RevealDeadline.IsZero() {
			windowSum += o.RevealDeadline.Sub(o.CreatedAt)
			windowed++
		}
		switch o.Status {
		case order.StatusExecuted:
			stats.Executed++
		case order.StatusExpired:
			stats.Expired++
		case order.StatusFailed:
			stats.Failed++
		}
	}
	if windowed > 0 {
		stats.AvgCommitWindow = windowSum / time.Duration(windowed)
	}
	return stats, nil
}

// BatchStatsSince aggregates batch counts over [since, now].
func (m *MemoryStore) BatchStatsSince(ctx context.Context, since time.Time) (*BatchStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &BatchStats{}
	members := 0
	for _, b := range m.batches {
		if b.CreatedAt.Before(since) {
			continue
		}
		stats.Count++
		members += len(b.Orders)
	}
	if stats.Count > 0 {
		stats.AvgSize = float64(members) / float64(stats.Count)
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	m.logger.Info("closing-memory-storage")
	return nil
}
