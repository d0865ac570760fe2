package execution

import (
	"context"
	"time"

	"github.com/solvex/mev-shield/internal/order"
)

// Result is the outcome of submitting one order to the execution venue.
type Result struct {
	OrderID    string
	Market     string
	Success    bool
	FillPrice  float64
	FillSize   float64
	ExecutedAt time.Time
	Err        error
}

// Engine accepts a fully revealed order and executes or queues it against
// the matching venue. The protection core invokes it once per order, in
// fairness order within a batch.
type Engine interface {
	Execute(ctx context.Context, o *order.ProtectedOrder) (*Result, error)
}
