package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle status of an order batch.
type BatchStatus string

// Batch statuses.
const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchExecuted   BatchStatus = "executed"
	BatchFailed     BatchStatus = "failed"
)

// Batch is a bounded group of revealed orders sharing a market and an
// execution window. Insertion order of Orders is irrelevant; execution order
// is computed separately from the batch seed. The seed is fixed at creation
// and never mutated, which makes the ordering reproducible for audit while
// being unknowable to any party before the batch closes.
type Batch struct {
	ID                  string
	Market              string
	Orders              []*ProtectedOrder
	ExecuteAt           time.Time
	RandomSeed          string // hex-encoded, fixed at creation
	FairOrderingApplied bool
	Status              BatchStatus
	CreatedAt           time.Time
}

// NewBatch creates a pending batch for a market with a fresh id.
func NewBatch(market, seed string, executeAt time.Time) *Batch {
	return &Batch{
		ID:         uuid.New().String(),
		Market:     market,
		Orders:     make([]*ProtectedOrder, 0, 8),
		ExecuteAt:  executeAt,
		RandomSeed: seed,
		Status:     BatchPending,
		CreatedAt:  time.Now(),
	}
}

// Size returns the current member count.
func (b *Batch) Size() int {
	return len(b.Orders)
}

// String returns a human-readable representation of the batch.
func (b *Batch) String() string {
	id := b.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Batch[%s] %s members=%d status=%s execute-at=%s",
		id, b.Market, len(b.Orders), b.Status, b.ExecuteAt.Format(time.RFC3339))
}
