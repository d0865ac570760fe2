package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/order"
	"go.uber.org/zap"
)

// timeLockSweepInterval bounds how long past its unlock time an order can
// stay locked.
const timeLockSweepInterval = 100 * time.Millisecond

// timeLockIndex tracks in-flight time locks by order id.
type timeLockIndex struct {
	mu      sync.Mutex
	entries map[string]time.Time // order id -> unlock time
}

func newTimeLockIndex() *timeLockIndex {
	return &timeLockIndex{entries: make(map[string]time.Time)}
}

func (t *timeLockIndex) add(orderID string, unlockAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[orderID] = unlockAt
}

// due removes and returns the ids whose unlock time has passed.
func (t *timeLockIndex) due(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id, unlockAt := range t.entries {
		if !unlockAt.After(now) {
			ids = append(ids, id)
			delete(t.entries, id)
		}
	}
	return ids
}

// CreateTimeLockedOrder persists an order in a time_locked state with an
// absolute unlock time. It bypasses the commit-reveal flow entirely: the
// order is public from creation, and the delay guarantee is the protection.
func (c *Coordinator) CreateTimeLockedOrder(ctx context.Context, intent *order.Intent, lockDuration time.Duration) (string, error) {
	c.mu.RLock()
	enabled := c.opts.TimeLockEnabled
	c.mu.RUnlock()
	if !enabled {
		return "", fmt.Errorf("time-lock protection is disabled")
	}

	err := intent.Validate()
	if err != nil {
		return "", fmt.Errorf("validate intent: %w", err)
	}
	if lockDuration <= 0 {
		return "", fmt.Errorf("lock duration must be positive, got %s", lockDuration)
	}

	o := order.NewProtected(intent, order.ProtectionStandard, "", time.Time{})
	o.Status = order.StatusTimeLocked
	o.Revealed = true
	o.TimeLockUntil = time.Now().Add(lockDuration)

	err = c.db.InsertOrder(ctx, o)
	if err != nil {
		return "", fmt.Errorf("persist time-locked order: %w", err)
	}

	c.timeLocks.add(o.ID, o.TimeLockUntil)
	TimeLockedOrdersTotal.Inc()

	c.logger.Info("time-locked-order-created",
		zap.String("order-id", o.ID),
		zap.String("market", o.Market),
		zap.Time("unlock-at", o.TimeLockUntil))

	return o.ID, nil
}

// rebuildTimeLocks repopulates the unlock index from the durable store on
// restart. Locks whose unlock time passed while the process was down are
// released immediately.
func (c *Coordinator) rebuildTimeLocks(ctx context.Context) error {
	orders, err := c.db.ListTimeLockedOrders(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	restored, released := 0, 0
	for _, o := range orders {
		if !o.TimeLockUntil.After(now) {
			c.unlock(o.ID)
			released++
			continue
		}
		c.timeLocks.add(o.ID, o.TimeLockUntil)
		restored++
	}

	if restored > 0 || released > 0 {
		c.logger.Info("time-locks-rebuilt",
			zap.Int("restored", restored),
			zap.Int("released-on-rebuild", released))
	}
	return nil
}

func (c *Coordinator) startTimeLockSweep(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(timeLockSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, id := range c.timeLocks.due(now) {
					c.unlock(id)
				}
			}
		}
	}()
}

// unlock flips a due time-locked order to active and routes it onward.
func (c *Coordinator) unlock(orderID string) {
	ctx := context.Background()

	ok, err := c.db.TransitionOrder(ctx, orderID, order.StatusTimeLocked, order.StatusActive)
	if err != nil {
		c.logger.Error("time-lock-unlock-persist-failed",
			zap.String("order-id", orderID),
			zap.Error(err))
		return
	}
	if !ok {
		return
	}

	o, err := c.db.GetOrder(ctx, orderID)
	if err != nil {
		c.logger.Error("time-lock-unlock-load-failed",
			zap.String("order-id", orderID),
			zap.Error(err))
		return
	}

	OrdersUnlockedTotal.Inc()
	c.logger.Info("time-locked-order-unlocked",
		zap.String("order-id", o.ID),
		zap.String("market", o.Market))

	c.bus.Publish(events.Event{
		Type:    events.OrderUnlocked,
		OrderID: o.ID,
		Market:  o.Market,
	})

	batchID, err := c.RouteRevealed(ctx, o)
	if err != nil {
		c.logger.Error("time-lock-route-failed",
			zap.String("order-id", o.ID),
			zap.Error(err))
		return
	}
	if batchID != "" {
		c.logger.Debug("unlocked-order-batched",
			zap.String("order-id", o.ID),
			zap.String("batch-id", batchID))
	}
}
