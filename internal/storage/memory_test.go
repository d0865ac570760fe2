package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solvex/mev-shield/internal/order"
	"go.uber.org/zap"
)

func newMemory(t *testing.T) *MemoryStore {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewMemoryStore(logger)
}

func seedOrder(status order.Status) *order.ProtectedOrder {
	o := order.NewProtected(&order.Intent{
		UserID:   "user-1",
		Market:   "SOL-USDC",
		Side:     order.SideBuy,
		Kind:     order.KindLimit,
		Quantity: 10,
		Price:    150,
	}, order.ProtectionStandard, "hash-"+string(status), time.Now().Add(5*time.Second))
	o.Status = status
	return o
}

func TestMemoryInsertAndGet(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	o := seedOrder(order.StatusPending)
	o.EncryptedPayload = []byte("blob")
	if err := m.InsertOrder(ctx, o); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := m.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CommitHash != o.CommitHash {
		t.Errorf("expected hash %s, got %s", o.CommitHash, got.CommitHash)
	}

	// The store hands out copies, not aliases
	got.Status = order.StatusFailed
	got.EncryptedPayload[0] = 'x'
	again, _ := m.GetOrder(ctx, o.ID)
	if again.Status != order.StatusPending {
		t.Error("mutating a returned order leaked into the store")
	}
	if again.EncryptedPayload[0] != 'b' {
		t.Error("mutating a returned payload leaked into the store")
	}

	byHash, err := m.GetOrderByCommitHash(ctx, o.CommitHash)
	if err != nil {
		t.Fatalf("get by hash failed: %v", err)
	}
	if byHash.ID != o.ID {
		t.Errorf("hash lookup returned wrong order %s", byHash.ID)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	if _, err := m.GetOrder(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.GetOrderByCommitHash(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.UpdateOrder(ctx, seedOrder(order.StatusPending)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMemoryTransitionOrder(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	o := seedOrder(order.StatusPending)
	if err := m.InsertOrder(ctx, o); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	ok, err := m.TransitionOrder(ctx, o.ID, order.StatusPending, order.StatusActive)
	if err != nil || !ok {
		t.Fatalf("expected successful transition, got ok=%v err=%v", ok, err)
	}

	// Same precondition again: status already moved
	ok, err = m.TransitionOrder(ctx, o.ID, order.StatusPending, order.StatusExpired)
	if err != nil {
		t.Fatalf("transition errored: %v", err)
	}
	if ok {
		t.Error("expected conditional transition to fail on stale precondition")
	}

	got, _ := m.GetOrder(ctx, o.ID)
	if got.Status != order.StatusActive {
		t.Errorf("expected active, got %s", got.Status)
	}

	if _, err := m.TransitionOrder(ctx, "missing", order.StatusPending, order.StatusActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListActiveOrders(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	match := seedOrder(order.StatusActive)
	wrongStatus := seedOrder(order.StatusPending)
	wrongMarket := seedOrder(order.StatusActive)
	wrongMarket.Market = "BTC-USDC"
	wrongSide := seedOrder(order.StatusActive)
	wrongSide.Side = order.SideSell
	old := seedOrder(order.StatusActive)
	old.CreatedAt = time.Now().Add(-time.Hour)

	for _, o := range []*order.ProtectedOrder{match, wrongStatus, wrongMarket, wrongSide, old} {
		if err := m.InsertOrder(ctx, o); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	got, err := m.ListActiveOrders(ctx, "SOL-USDC", order.SideBuy, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != match.ID {
		t.Errorf("expected only the matching order, got %d", len(got))
	}
}

func TestMemoryBatchLifecycle(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	b := order.NewBatch("SOL-USDC", "seed", time.Now().Add(5*time.Second))
	if err := m.InsertBatch(ctx, b); err != nil {
		t.Fatalf("insert batch failed: %v", err)
	}

	o := seedOrder(order.StatusActive)
	if err := m.InsertOrder(ctx, o); err != nil {
		t.Fatalf("insert order failed: %v", err)
	}
	if err := m.AssignOrderToBatch(ctx, o.ID, b.ID); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	got, _ := m.GetOrder(ctx, o.ID)
	if got.BatchID != b.ID {
		t.Errorf("expected batch id %s, got %s", b.ID, got.BatchID)
	}

	if err := m.UpdateBatchStatus(ctx, b.ID, order.BatchExecuted); err != nil {
		t.Fatalf("update batch status failed: %v", err)
	}
	if err := m.UpdateBatchStatus(ctx, "missing", order.BatchExecuted); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryTradesAndDetections(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	now := time.Now()
	trades := []*TradeRecord{
		{ID: "t1", Market: "SOL-USDC", Side: order.SideBuy, Price: 150, Quantity: 1, ExecutedAt: now},
		{ID: "t2", Market: "SOL-USDC", Side: order.SideSell, Price: 151, Quantity: 2, ExecutedAt: now.Add(-2 * time.Hour)},
		{ID: "t3", Market: "BTC-USDC", Side: order.SideBuy, Price: 65000, Quantity: 1, ExecutedAt: now},
	}
	for _, tr := range trades {
		if err := m.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("insert trade failed: %v", err)
		}
	}

	got, err := m.ListTradesSince(ctx, "SOL-USDC", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list trades failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Errorf("expected only t1 in window, got %d", len(got))
	}

	d := &DetectionRecord{ID: "d1", Market: "SOL-USDC", Side: order.SideBuy, Confidence: 0.8, Reason: "similar_order_cluster", DetectedAt: now}
	if err := m.InsertDetection(ctx, d); err != nil {
		t.Fatalf("insert detection failed: %v", err)
	}

	count, err := m.CountDetectionsSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("count detections failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 detection, got %d", count)
	}
	count, _ = m.CountDetectionsSince(ctx, now.Add(time.Minute))
	if count != 0 {
		t.Errorf("expected 0 detections after window start, got %d", count)
	}
}

func TestMemoryStats(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	for _, status := range []order.Status{
		order.StatusExecuted, order.StatusExecuted, order.StatusExecuted,
		order.StatusExpired, order.StatusFailed, order.StatusActive,
	} {
		if err := m.InsertOrder(ctx, seedOrder(status)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	stats, err := m.OrderStatsSince(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("order stats failed: %v", err)
	}
	if stats.Total != 6 {
		t.Errorf("expected 6 orders, got %d", stats.Total)
	}
	if stats.Executed != 3 || stats.Expired != 1 || stats.Failed != 1 {
		t.Errorf("unexpected status counts: %+v", stats)
	}
	if stats.AvgCommitWindow <= 0 {
		t.Errorf("expected positive average commit window, got %s", stats.AvgCommitWindow)
	}

	b1 := order.NewBatch("SOL-USDC", "s1", time.Now())
	b2 := order.NewBatch("SOL-USDC", "s2", time.Now())
	_ = m.InsertBatch(ctx, b1)
	_ = m.InsertBatch(ctx, b2)

	o := seedOrder(order.StatusActive)
	_ = m.InsertOrder(ctx, o)
	_ = m.AssignOrderToBatch(ctx, o.ID, b1.ID)

	batchStats, err := m.BatchStatsSince(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("batch stats failed: %v", err)
	}
	if batchStats.Count != 2 {
		t.Errorf("expected 2 batches, got %d", batchStats.Count)
	}
	if batchStats.AvgSize != 0.5 {
		t.Errorf("expected avg size 0.5, got %.2f", batchStats.AvgSize)
	}
}

func TestMemoryStatsSkipDeadlineless(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	normal := seedOrder(order.StatusExecuted)
	_ = m.InsertOrder(ctx, normal)

	// Time-locked orders never get a reveal deadline; the average must not
	// treat the zero time as one.
	locked := seedOrder(order.StatusTimeLocked)
	locked.RevealDeadline = time.Time{}
	locked.TimeLockUntil = time.Now().Add(time.Minute)
	_ = m.InsertOrder(ctx, locked)

	stats, err := m.OrderStatsSince(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("order stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("expected 2 orders, got %d", stats.Total)
	}
	want := normal.RevealDeadline.Sub(normal.CreatedAt)
	if stats.AvgCommitWindow != want {
		t.Errorf("expected commit window %s, got %s", want, stats.AvgCommitWindow)
	}

	// Only deadline-less orders in the window: the average stays zero.
	m2 := newMemory(t)
	locked2 := seedOrder(order.StatusTimeLocked)
	locked2.RevealDeadline = time.Time{}
	_ = m2.InsertOrder(ctx, locked2)
	stats2, err := m2.OrderStatsSince(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("order stats failed: %v", err)
	}
	if stats2.AvgCommitWindow != 0 {
		t.Errorf("expected zero commit window, got %s", stats2.AvgCommitWindow)
	}
}

func TestMemoryListPendingOrders(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	_ = m.InsertOrder(ctx, seedOrder(order.StatusPending))
	_ = m.InsertOrder(ctx, seedOrder(order.StatusActive))
	_ = m.InsertOrder(ctx, seedOrder(order.StatusExpired))

	got, err := m.ListPendingOrders(ctx)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 pending order, got %d", len(got))
	}
}

func TestMemoryListTimeLockedOrders(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	locked := seedOrder(order.StatusTimeLocked)
	locked.TimeLockUntil = time.Now().Add(time.Minute)
	_ = m.InsertOrder(ctx, locked)
	_ = m.InsertOrder(ctx, seedOrder(order.StatusActive))
	_ = m.InsertOrder(ctx, seedOrder(order.StatusPending))

	got, err := m.ListTimeLockedOrders(ctx)
	if err != nil {
		t.Fatalf("list time-locked failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != locked.ID {
		t.Errorf("expected only the locked order, got %d", len(got))
	}
	if !got[0].TimeLockUntil.Equal(locked.TimeLockUntil) {
		t.Errorf("unlock time not preserved: %s", got[0].TimeLockUntil)
	}
}
