package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"github.com/solvex/mev-shield/pkg/cache"
	"go.uber.org/zap"
)

// Detection reasons.
const (
	ReasonSimilarOrders     = "similar_order_cluster"
	ReasonPriceDislocation  = "price_dislocation"
	dislocationConfidence   = 0.7
	clusterBaseConfidence   = 0.5
	clusterPerMatchIncrease = 0.1
)

// Candidate is the order data a detection scan runs against.
type Candidate struct {
	Market   string     `json:"market"`
	Side     order.Side `json:"side"`
	Price    float64    `json:"price"`
	Quantity float64    `json:"quantity"`
}

// Result is the advisory outcome of a detection scan. It feeds metrics and
// alerting; it does not gate order acceptance.
type Result struct {
	Detected   bool                   `json:"detected"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Config holds detector configuration.
type Config struct {
	ClusterWindow        time.Duration // trailing window for similar-order clustering
	PriceTolerance       float64       // relative price tolerance for a cluster match
	SizeTolerance        float64       // relative size tolerance for a cluster match
	ClusterThreshold     int           // matches above this count trigger detection
	DislocationWindow    time.Duration // trailing window for executed-price range
	DislocationThreshold float64       // price range relative to current price
	MinTradeCount        int           // activity floor for the dislocation heuristic
	MaxConfidence        float64
	Store                storage.OrderStore
	Cache                cache.Cache
	Bus                  *events.Bus
	Logger               *zap.Logger
}

// Detector scans recent order and execution history for patterns that look
// like front-running: bursts of near-identical orders, or rapid executed
// price movement under heavy activity.
type Detector struct {
	cfg    Config
	db     storage.OrderStore
	cache  cache.Cache
	bus    *events.Bus
	logger *zap.Logger
}

// New creates a front-running detector.
func New(cfg Config) *Detector {
	return &Detector{
		cfg:    cfg,
		db:     cfg.Store,
		cache:  cfg.Cache,
		bus:    cfg.Bus,
		logger: cfg.Logger,
	}
}

// Detect runs both heuristics against the candidate; either one can
// trigger. Positive results are persisted for audit and published on the
// event bus.
func (d *Detector) Detect(ctx context.Context, c *Candidate) (*Result, error) {
	start := time.Now()
	defer func() {
		DetectionDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if c.Market == "" || c.Quantity <= 0 {
		return nil, fmt.Errorf("invalid detection candidate")
	}

	res, err := d.detectCluster(ctx, c)
	if err != nil {
		return nil, err
	}
	if !res.Detected {
		res, err = d.detectDislocation(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	if res.Detected {
		DetectionsTotal.WithLabelValues(res.Reason).Inc()
		d.logger.Warn("front-running-suspected",
			zap.String("market", c.Market),
			zap.String("side", string(c.Side)),
			zap.String("reason", res.Reason),
			zap.Float64("confidence", res.Confidence))

		record := &storage.DetectionRecord{
			ID:         uuid.New().String(),
			Market:     c.Market,
			Side:       c.Side,
			Confidence: res.Confidence,
			Reason:     res.Reason,
			DetectedAt: time.Now(),
		}
		err = d.db.InsertDetection(ctx, record)
		if err != nil {
			// Advisory path: keep the result, lose the audit row.
			d.logger.Error("detection-persist-failed", zap.Error(err))
		}

		d.bus.Publish(events.Event{
			Type:    events.FrontRunningDetected,
			Market:  c.Market,
			Payload: res,
		})
	}

	return res, nil
}

// detectCluster counts active same-market/side orders in the trailing
// window with near-identical price and size.
func (d *Detector) detectCluster(ctx context.Context, c *Candidate) (*Result, error) {
	since := time.Now().Add(-d.cfg.ClusterWindow)
	active, err := d.db.ListActiveOrders(ctx, c.Market, c.Side, since)
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}

	matches := 0
	for _, o := range active {
		if c.Price > 0 && o.Price > 0 {
			if relDiff(o.Price, c.Price) > d.cfg.PriceTolerance {
				continue
			}
		}
		if relDiff(o.Quantity, c.Quantity) > d.cfg.SizeTolerance {
			continue
		}
		matches++
	}

	if matches <= d.cfg.ClusterThreshold {
		return &Result{}, nil
	}

	confidence := clusterBaseConfidence + clusterPerMatchIncrease*float64(matches)
	if confidence > d.cfg.MaxConfidence {
		confidence = d.cfg.MaxConfidence
	}

	return &Result{
		Detected:   true,
		Confidence: confidence,
		Reason:     ReasonSimilarOrders,
		Details: map[string]interface{}{
			"similar_orders": matches,
			"window_seconds": d.cfg.ClusterWindow.Seconds(),
		},
	}, nil
}

// detectDislocation checks the executed-price range over the trailing
// window against the activity floor.
func (d *Detector) detectDislocation(ctx context.Context, c *Candidate) (*Result, error) {
	since := time.Now().Add(-d.cfg.DislocationWindow)
	trades, err := d.recentTrades(ctx, c.Market, since)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	if len(trades) < d.cfg.MinTradeCount {
		return &Result{}, nil
	}

	low, high := trades[0].Price, trades[0].Price
	for _, t := range trades[1:] {
		if t.Price < low {
			low = t.Price
		}
		if t.Price > high {
			high = t.Price
		}
	}

	current := c.Price
	if current <= 0 {
		current = trades[len(trades)-1].Price
	}
	if current <= 0 {
		return &Result{}, nil
	}

	priceRange := high - low
	if priceRange <= d.cfg.DislocationThreshold*current {
		return &Result{}, nil
	}

	return &Result{
		Detected:   true,
		Confidence: dislocationConfidence,
		Reason:     ReasonPriceDislocation,
		Details: map[string]interface{}{
			"price_range":    priceRange,
			"trade_count":    len(trades),
			"window_seconds": d.cfg.DislocationWindow.Seconds(),
		},
	}, nil
}

// recentTrades serves the dislocation window through a short-TTL cache so a
// burst of detection calls does not hammer the trade log. The key carries
// only the market, not since: a hit can answer for a window that slid by up
// to the 2s TTL, which is well inside the dislocation window it feeds.
func (d *Detector) recentTrades(ctx context.Context, market string, since time.Time) ([]*storage.TradeRecord, error) {
	key := "trades:" + market
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			if trades, ok := v.([]*storage.TradeRecord); ok {
				return trades, nil
			}
		}
	}

	trades, err := d.db.ListTradesSince(ctx, market, since)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.Set(key, trades, 2*time.Second)
	}
	return trades, nil
}

func relDiff(a, b float64) float64 {
	if b == 0 {
		return 1
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / b
}
