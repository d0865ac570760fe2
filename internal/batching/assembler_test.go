package batching

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/execution"
	"github.com/solvex/mev-shield/internal/fairorder"
	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"go.uber.org/zap"
)

func newTestAssembler(t *testing.T, maxSize int, interval time.Duration) (*Assembler, *storage.MemoryStore) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	db := storage.NewMemoryStore(logger)

	engine := fairorder.New(fairorder.Config{
		Enabled: true,
		Executor: execution.NewPaperEngine(&execution.PaperConfig{
			Store:  db,
			Logger: logger,
		}),
		Store:  db,
		Bus:    events.NewBus(logger),
		Logger: logger,
	})

	a := New(Config{
		MaxSize:  maxSize,
		Interval: interval,
		Seed:     func() (string, error) { return "fixed-seed", nil },
		Store:    db,
		Executor: engine,
		Logger:   logger,
	})
	return a, db
}

func revealedOrder(t *testing.T, db *storage.MemoryStore, i int) *order.ProtectedOrder {
	t.Helper()
	o := order.NewProtected(&order.Intent{
		UserID:   fmt.Sprintf("user-%d", i),
		Market:   "SOL-USDC",
		Side:     order.SideBuy,
		Kind:     order.KindLimit,
		Quantity: 1,
		Price:    150,
	}, order.ProtectionStandard, fmt.Sprintf("hash-%d", i), time.Now().Add(5*time.Second))
	o.Status = order.StatusActive
	o.Revealed = true
	if err := db.InsertOrder(context.Background(), o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func TestAddOpensBatchPerMarket(t *testing.T) {
	a, db := newTestAssembler(t, 10, 5*time.Second)
	ctx := context.Background()

	o1 := revealedOrder(t, db, 1)
	batchID, err := a.Add(ctx, o1)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if batchID == "" {
		t.Fatal("expected batch id")
	}

	b, ok := a.OpenBatch("SOL-USDC")
	if !ok {
		t.Fatal("expected open batch for market")
	}
	if b.ID != batchID {
		t.Errorf("open batch id mismatch: %s vs %s", b.ID, batchID)
	}
	if b.RandomSeed != "fixed-seed" {
		t.Errorf("expected installed seed, got %s", b.RandomSeed)
	}

	// Second order joins the same batch
	o2 := revealedOrder(t, db, 2)
	batchID2, err := a.Add(ctx, o2)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if batchID2 != batchID {
		t.Errorf("expected same batch, got %s and %s", batchID, batchID2)
	}
	if b.Size() != 2 {
		t.Errorf("expected 2 members, got %d", b.Size())
	}

	got, _ := db.GetOrder(ctx, o1.ID)
	if got.BatchID != batchID {
		t.Errorf("batch membership not persisted: %q", got.BatchID)
	}
}

func TestBatchClosesWhenFull(t *testing.T) {
	a, db := newTestAssembler(t, 3, time.Hour)
	ctx := context.Background()

	var batchID string
	for i := 0; i < 3; i++ {
		o := revealedOrder(t, db, i)
		id, err := a.Add(ctx, o)
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		batchID = id
	}

	// The third member forces closure
	if _, ok := a.OpenBatch("SOL-USDC"); ok {
		t.Error("expected batch closed at size limit")
	}

	// Drain waits for the in-flight execution goroutine
	a.Drain()

	trades, _ := db.ListTradesSince(ctx, "SOL-USDC", time.Now().Add(-time.Minute))
	if len(trades) != 3 {
		t.Errorf("expected 3 executed trades, got %d", len(trades))
	}

	// A new order opens a fresh batch
	o := revealedOrder(t, db, 99)
	newID, err := a.Add(ctx, o)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if newID == batchID {
		t.Error("expected a new batch after closure")
	}
	a.Drain()
}

func TestSweepClosesElapsedBatch(t *testing.T) {
	a, db := newTestAssembler(t, 10, 50*time.Millisecond)
	ctx := context.Background()

	o := revealedOrder(t, db, 1)
	if _, err := a.Add(ctx, o); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, ok := a.OpenBatch("SOL-USDC"); !ok {
		t.Fatal("expected open batch")
	}

	// Not yet due
	a.sweep(time.Now())
	if _, ok := a.OpenBatch("SOL-USDC"); !ok {
		t.Fatal("sweep closed an unexpired batch")
	}

	a.sweep(time.Now().Add(time.Second))
	if _, ok := a.OpenBatch("SOL-USDC"); ok {
		t.Error("expected batch closed after window elapsed")
	}

	a.Drain()
	got, _ := db.GetOrder(ctx, o.ID)
	if got.Status != order.StatusExecuted {
		t.Errorf("expected executed order after sweep, got %s", got.Status)
	}
}

func TestCloseRefreshesEarlinessBonus(t *testing.T) {
	a, db := newTestAssembler(t, 2, time.Hour)
	ctx := context.Background()

	early := revealedOrder(t, db, 1)
	early.CreatedAt = time.Now().Add(-30 * time.Minute)
	if err := db.UpdateOrder(ctx, early); err != nil {
		t.Fatalf("update order: %v", err)
	}
	late := revealedOrder(t, db, 2)

	if early.Priority != late.Priority {
		t.Fatalf("commit-time scores should match: %.4f vs %.4f", early.Priority, late.Priority)
	}

	// The second member fills the batch and closes it
	if _, err := a.Add(ctx, early); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := a.Add(ctx, late); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	a.Drain()

	if early.Priority <= late.Priority {
		t.Errorf("expected earlier commit to outrank later: %.4f vs %.4f", early.Priority, late.Priority)
	}

	// 30 minutes committed is half the one-hour cap window: bonus ~5
	diff := early.Priority - late.Priority
	if diff < 4.9 || diff > 5.2 {
		t.Errorf("expected ~5 point earliness spread, got %.4f", diff)
	}
}

func TestBatchesPerMarketAreIndependent(t *testing.T) {
	a, db := newTestAssembler(t, 10, time.Hour)
	ctx := context.Background()

	sol := revealedOrder(t, db, 1)
	btc := revealedOrder(t, db, 2)
	btc.Market = "BTC-USDC"
	if err := db.UpdateOrder(ctx, btc); err != nil {
		t.Fatalf("update order: %v", err)
	}

	solID, err := a.Add(ctx, sol)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	btcID, err := a.Add(ctx, btc)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if solID == btcID {
		t.Error("orders for different markets share a batch")
	}
	a.Drain()
}

func TestDrainClosesOpenBatches(t *testing.T) {
	a, db := newTestAssembler(t, 10, time.Hour)
	ctx := context.Background()

	o := revealedOrder(t, db, 1)
	if _, err := a.Add(ctx, o); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	a.Drain()

	if _, ok := a.OpenBatch("SOL-USDC"); ok {
		t.Error("expected no open batches after drain")
	}
	got, _ := db.GetOrder(ctx, o.ID)
	if got.Status != order.StatusExecuted {
		t.Errorf("expected drained order executed, got %s", got.Status)
	}
}

func TestSetLimitsAffectsNewBatches(t *testing.T) {
	a, db := newTestAssembler(t, 10, time.Hour)
	ctx := context.Background()

	a.SetLimits(1, time.Hour)

	o := revealedOrder(t, db, 1)
	if _, err := a.Add(ctx, o); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// Size limit 1: the batch closes on its first member
	if _, ok := a.OpenBatch("SOL-USDC"); ok {
		t.Error("expected immediate closure with size limit 1")
	}
	a.Drain()
}

func TestDefaultSeedShape(t *testing.T) {
	s1, err := DefaultSeed()
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	s2, err := DefaultSeed()
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if len(s1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(s1))
	}
	if s1 == s2 {
		t.Error("expected unique seeds")
	}
}
