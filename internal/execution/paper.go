package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"go.uber.org/zap"
)

// PaperEngine simulates fills instead of reaching a live venue. Fills are
// recorded in the trade log so the front-running detector and the metrics
// job see execution history.
type PaperEngine struct {
	db     storage.OrderStore
	refPx  float64
	logger *zap.Logger
}

// PaperConfig holds paper engine configuration.
type PaperConfig struct {
	// ReferencePrice is the fill price for market orders when the trade log
	// has no prior execution for the market.
	ReferencePrice float64
	Store          storage.OrderStore
	Logger         *zap.Logger
}

// NewPaperEngine creates a simulated execution engine.
func NewPaperEngine(cfg *PaperConfig) *PaperEngine {
	refPx := cfg.ReferencePrice
	if refPx <= 0 {
		refPx = 1.0
	}
	return &PaperEngine{
		db:     cfg.Store,
		refPx:  refPx,
		logger: cfg.Logger,
	}
}

// Execute simulates a full fill at the order's limit price, or at the most
// recent executed price for market orders.
func (e *PaperEngine) Execute(ctx context.Context, o *order.ProtectedOrder) (*Result, error) {
	start := time.Now()

	fillPrice := o.Price
	if fillPrice <= 0 {
		fillPrice = e.lastPrice(ctx, o.Market)
	}

	trade := &storage.TradeRecord{
		ID:         uuid.New().String(),
		OrderID:    o.ID,
		Market:     o.Market,
		Side:       o.Side,
		Price:      fillPrice,
		Quantity:   o.Quantity,
		ExecutedAt: time.Now(),
	}
	err := e.db.InsertTrade(ctx, trade)
	if err != nil {
		ExecutionErrorsTotal.Inc()
		return &Result{OrderID: o.ID, Market: o.Market, Err: err}, err
	}

	TradesExecutedTotal.WithLabelValues(string(o.Side)).Inc()
	ExecutionDurationSeconds.Observe(time.Since(start).Seconds())

	e.logger.Info("paper-fill",
		zap.String("order-id", o.ID),
		zap.String("market", o.Market),
		zap.String("side", string(o.Side)),
		zap.Float64("price", fillPrice),
		zap.Float64("quantity", o.Quantity))

	return &Result{
		OrderID:    o.ID,
		Market:     o.Market,
		Success:    true,
		FillPrice:  fillPrice,
		FillSize:   o.Quantity,
		ExecutedAt: trade.ExecutedAt,
	}, nil
}

func (e *PaperEngine) lastPrice(ctx context.Context, market string) float64 {
	trades, err := e.db.ListTradesSince(ctx, market, time.Now().Add(-24*time.Hour))
	if err != nil || len(trades) == 0 {
		return e.refPx
	}
	return trades[len(trades)-1].Price
}
