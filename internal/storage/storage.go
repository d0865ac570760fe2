package storage

import (
	"context"
	"errors"
	"time"

	"github.com/solvex/mev-shield/internal/order"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// TradeRecord is a single execution against the venue, kept as history for
// the front-running detector and the metrics job.
type TradeRecord struct {
	ID         string
	OrderID    string
	Market     string
	Side       order.Side
	Price      float64
	Quantity   float64
	ExecutedAt time.Time
}

// DetectionRecord is a positive front-running detection, kept for audit and
// metrics aggregation.
type DetectionRecord struct {
	ID         string
	Market     string
	Side       order.Side
	Confidence float64
	Reason     string
	DetectedAt time.Time
}

// OrderStats aggregates order counts over a window for metrics recomputation.
type OrderStats struct {
	Total           int
	Executed        int
	Expired         int
	Failed          int
	AvgCommitWindow time.Duration
}

// BatchStats aggregates batch counts over a window for metrics recomputation.
type BatchStats struct {
	Count   int
	AvgSize float64
}

// OrderStore is the durable source of truth for protected orders, batches,
// executions and detections. Writes here are the authoritative commit point;
// in-memory indexes are caches rebuilt from this store on restart.
type OrderStore interface {
	// InsertOrder durably records a new protected order.
	InsertOrder(ctx context.Context, o *order.ProtectedOrder) error

	// UpdateOrder overwrites the stored record for o.ID.
	UpdateOrder(ctx context.Context, o *order.ProtectedOrder) error

	// TransitionOrder atomically moves an order from one status to another.
	// Returns false (and no error) when the current status does not match.
	TransitionOrder(ctx context.Context, id string, from, to order.Status) (bool, error)

	// GetOrder returns the order with the given id, or ErrNotFound.
	GetOrder(ctx context.Context, id string) (*order.ProtectedOrder, error)

	// GetOrderByCommitHash returns the order with the given commit hash,
	// or ErrNotFound.
	GetOrderByCommitHash(ctx context.Context, hash string) (*order.ProtectedOrder, error)

	// ListActiveOrders returns active orders for a market/side created at or
	// after since.
	ListActiveOrders(ctx context.Context, market string, side order.Side, since time.Time) ([]*order.ProtectedOrder, error)

	// ListPendingOrders returns all orders still awaiting reveal, for
	// rebuilding the in-memory commitment index on restart.
	ListPendingOrders(ctx context.Context) ([]*order.ProtectedOrder, error)

	// ListTimeLockedOrders returns all orders still under a time lock, for
	// rebuilding the in-memory unlock index on restart.
	ListTimeLockedOrders(ctx context.Context) ([]*order.ProtectedOrder, error)

	// InsertBatch durably records a new batch.
	InsertBatch(ctx context.Context, b *order.Batch) error

	// UpdateBatchStatus sets a batch's status.
	UpdateBatchStatus(ctx context.Context, id string, status order.BatchStatus) error

	// AssignOrderToBatch records an order's batch membership.
	AssignOrderToBatch(ctx context.Context, orderID, batchID string) error

	// InsertTrade records an execution.
	InsertTrade(ctx context.Context, t *TradeRecord) error

	// ListTradesSince returns executions for a market at or after since.
	ListTradesSince(ctx context.Context, market string, since time.Time) ([]*TradeRecord, error)

	// InsertDetection records a positive front-running detection.
	InsertDetection(ctx context.Context, d *DetectionRecord) error

	// CountDetectionsSince returns the number of detections at or after since.
	CountDetectionsSince(ctx context.Context, since time.Time) (int, error)

	// OrderStatsSince aggregates order counts over [since, now].
	OrderStatsSince(ctx context.Context, since time.Time) (*OrderStats, error)

	// BatchStatsSince aggregates batch counts over [since, now].
	BatchStatsSince(ctx context.Context, since time.Time) (*BatchStats, error)

	// Close releases the underlying connection.
	Close() error
}
