package execution

import (
	"context"
	"testing"
	"time"

	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"go.uber.org/zap"
)

func newPaper(t *testing.T, refPx float64) (*PaperEngine, *storage.MemoryStore) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	db := storage.NewMemoryStore(logger)
	engine := NewPaperEngine(&PaperConfig{
		ReferencePrice: refPx,
		Store:          db,
		Logger:         logger,
	})
	return engine, db
}

func paperOrder(kind order.Kind, price float64) *order.ProtectedOrder {
	return order.NewProtected(&order.Intent{
		UserID:   "user-1",
		Market:   "SOL-USDC",
		Side:     order.SideBuy,
		Kind:     kind,
		Quantity: 2,
		Price:    price,
	}, order.ProtectionStandard, "hash-1", time.Now().Add(5*time.Second))
}

func TestPaperFillsLimitAtPrice(t *testing.T) {
	engine, db := newPaper(t, 0)
	ctx := context.Background()

	res, err := engine.Execute(ctx, paperOrder(order.KindLimit, 150.25))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.Success {
		t.Fatal("expected successful fill")
	}
	if res.FillPrice != 150.25 {
		t.Errorf("expected fill at limit price, got %.2f", res.FillPrice)
	}
	if res.FillSize != 2 {
		t.Errorf("expected full fill, got %.2f", res.FillSize)
	}

	trades, err := db.ListTradesSince(ctx, "SOL-USDC", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list trades failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 recorded trade, got %d", len(trades))
	}
	if trades[0].Price != 150.25 {
		t.Errorf("trade log price mismatch: %.2f", trades[0].Price)
	}
}

func TestPaperMarketOrderUsesLastTradedPrice(t *testing.T) {
	engine, db := newPaper(t, 0)
	ctx := context.Background()

	err := db.InsertTrade(ctx, &storage.TradeRecord{
		ID: "t0", Market: "SOL-USDC", Side: order.SideSell,
		Price: 149.5, Quantity: 1, ExecutedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed trade failed: %v", err)
	}

	res, err := engine.Execute(ctx, paperOrder(order.KindMarket, 0))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.FillPrice != 149.5 {
		t.Errorf("expected fill at last traded price 149.5, got %.2f", res.FillPrice)
	}
}

func TestPaperMarketOrderFallsBackToReference(t *testing.T) {
	engine, _ := newPaper(t, 151.0)

	res, err := engine.Execute(context.Background(), paperOrder(order.KindMarket, 0))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.FillPrice != 151.0 {
		t.Errorf("expected reference-price fill 151.0, got %.2f", res.FillPrice)
	}
}

func TestPaperDefaultReferencePrice(t *testing.T) {
	engine, _ := newPaper(t, 0)

	res, err := engine.Execute(context.Background(), paperOrder(order.KindMarket, 0))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.FillPrice != 1.0 {
		t.Errorf("expected default reference fill 1.0, got %.2f", res.FillPrice)
	}
}
