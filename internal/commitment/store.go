package commitment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solvex/mev-shield/internal/events"
	"github.com/solvex/mev-shield/internal/order"
	"github.com/solvex/mev-shield/internal/storage"
	"go.uber.org/zap"
)

// Reveal failure reasons.
const (
	ReasonUnknownCommit    = "unknown_commit"
	ReasonHashMismatch     = "hash_mismatch"
	ReasonDeadlineExceeded = "deadline_exceeded"
)

// Router receives a revealed order and sends it onward, either into a batch
// or directly to execution. It returns the assigned batch id, empty when the
// order bypassed batching.
type Router interface {
	RouteRevealed(ctx context.Context, o *order.ProtectedOrder) (string, error)
}

// CommitResult is returned to the caller of Commit. The payload, including
// the server-generated nonce and timestamp, must be presented unchanged at
// reveal time.
type CommitResult struct {
	CommitHash     string
	OrderID        string
	RevealDeadline time.Time
	Payload        *Payload
}

// RevealResult is the non-throwing outcome of a reveal attempt.
type RevealResult struct {
	Success bool
	OrderID string
	BatchID string
	Reason  string // set when Success is false
}

// Config holds commitment store configuration.
type Config struct {
	MinCommitTime time.Duration // reveal window for none/standard protection
	MaxCommitTime time.Duration // reveal window for maximum protection
	Store         storage.OrderStore
	Bus           *events.Bus
	Logger        *zap.Logger
}

// Store is the in-memory index of pending (unrevealed) commitments, keyed by
// commit hash. The durable order store remains the source of truth; this
// index is rebuilt from it on restart. Once a hash is registered, only a
// reveal or the deadline sweep may transition it, and the two serialize on
// the pending index plus a conditional status update in the durable store.
type Store struct {
	mu      sync.Mutex
	pending map[string]*pendingCommit
	minWin  time.Duration
	maxWin  time.Duration

	codec  Codec
	wheel  *timerWheel
	db     storage.OrderStore
	bus    *events.Bus
	router Router
	logger *zap.Logger
	ctx    context.Context
}

type pendingCommit struct {
	orderID  string
	deadline time.Time
}

// New creates a commitment store.
func New(cfg Config) *Store {
	s := &Store{
		pending: make(map[string]*pendingCommit),
		minWin:  cfg.MinCommitTime,
		maxWin:  cfg.MaxCommitTime,
		db:      cfg.Store,
		bus:     cfg.Bus,
		logger:  cfg.Logger,
	}
	s.wheel = newTimerWheel(s.expire)
	return s
}

// SetRouter wires the reveal destination. Must be called before Start.
func (s *Store) SetRouter(r Router) {
	s.router = r
}

// UpdateWindows changes the reveal windows for future commits.
func (s *Store) UpdateWindows(min, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minWin = min
	s.maxWin = max
}

func (s *Store) window(level order.ProtectionLevel) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level == order.ProtectionMaximum {
		return s.maxWin
	}
	return s.minWin
}

// Start launches the deadline sweep and rebuilds the pending index from the
// durable store. Commits whose deadline passed while the process was down
// are expired immediately.
func (s *Store) Start(ctx context.Context) error {
	s.ctx = ctx

	err := s.rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild pending commitments: %w", err)
	}

	s.wheel.start(ctx)
	s.logger.Info("commitment-store-started",
		zap.Duration("min-commit-time", s.minWin),
		zap.Duration("max-commit-time", s.maxWin))
	return nil
}

func (s *Store) rebuild(ctx context.Context) error {
	orders, err := s.db.ListPendingOrders(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	restored, expired := 0, 0
	for _, o := range orders {
		if o.RevealDeadline.Before(now) {
			s.expireOrder(o.ID, o.CommitHash)
			expired++
			continue
		}
		s.mu.Lock()
		s.pending[o.CommitHash] = &pendingCommit{orderID: o.ID, deadline: o.RevealDeadline}
		s.mu.Unlock()
		s.wheel.schedule(o.CommitHash, o.RevealDeadline)
		restored++
	}

	if restored > 0 || expired > 0 {
		s.logger.Info("pending-commitments-rebuilt",
			zap.Int("restored", restored),
			zap.Int("expired-on-rebuild", expired))
	}
	PendingCommits.Set(float64(restored))
	return nil
}

// Commit registers a commitment for the intent: generates nonce and
// timestamp, hashes the payload, persists a pending record and schedules the
// reveal deadline. The durable insert is the commit point; its failure
// propagates and leaves no in-memory state behind.
func (s *Store) Commit(ctx context.Context, intent *order.Intent, level order.ProtectionLevel) (*CommitResult, error) {
	err := intent.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate intent: %w", err)
	}
	if !level.Valid() {
		return nil, fmt.Errorf("invalid protection level %q", level)
	}

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		UserID:    intent.UserID,
		Market:    intent.Market,
		Side:      intent.Side,
		Kind:      intent.Kind,
		Quantity:  intent.Quantity,
		Price:     intent.Price,
		Nonce:     nonce,
		Timestamp: time.Now().UnixMilli(),
	}

	hash, err := s.codec.Hash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}

	blob, err := s.codec.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}

	deadline := time.Now().Add(s.window(level))
	o := order.NewProtected(intent, level, hash, deadline)
	o.EncryptedPayload = blob

	err = s.db.InsertOrder(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("persist commitment: %w", err)
	}

	s.mu.Lock()
	s.pending[hash] = &pendingCommit{orderID: o.ID, deadline: deadline}
	pendingCount := len(s.pending)
	s.mu.Unlock()
	s.wheel.schedule(hash, deadline)

	CommitsTotal.WithLabelValues(string(level)).Inc()
	PendingCommits.Set(float64(pendingCount))

	s.logger.Info("commit-registered",
		zap.String("order-id", o.ID),
		zap.String("market", o.Market),
		zap.String("protection-level", string(level)),
		zap.Time("reveal-deadline", deadline))

	s.bus.Publish(events.Event{
		Type:       events.OrderCommitted,
		OrderID:    o.ID,
		CommitHash: hash,
		Market:     o.Market,
	})

	return &CommitResult{
		CommitHash:     hash,
		OrderID:        o.ID,
		RevealDeadline: deadline,
		Payload:        payload,
	}, nil
}

// Reveal verifies the payload against a previously issued commit hash.
// Unknown hash, recomputed-hash mismatch and missed deadline all produce a
// negative result with no side effects. At most one reveal per hash
// succeeds; concurrent attempts race to claim the pending entry. A failure
// downstream of activation is unwound so the commit stays revealable.
func (s *Store) Reveal(ctx context.Context, commitHash string, payload *Payload) (*RevealResult, error) {
	start := time.Now()

	s.mu.Lock()
	entry, ok := s.pending[commitHash]
	s.mu.Unlock()
	if !ok {
		RevealsTotal.WithLabelValues("unknown").Inc()
		return &RevealResult{Reason: ReasonUnknownCommit}, nil
	}

	recomputed, err := s.codec.Hash(payload)
	if err != nil {
		return nil, fmt.Errorf("recompute hash: %w", err)
	}
	if recomputed != commitHash {
		RevealsTotal.WithLabelValues("mismatch").Inc()
		s.logger.Warn("reveal-hash-mismatch",
			zap.String("order-id", entry.orderID))
		return &RevealResult{Reason: ReasonHashMismatch}, nil
	}

	if time.Now().After(entry.deadline) {
		// The sweep will expire the record; reject without mutating anything.
		RevealsTotal.WithLabelValues("expired").Inc()
		return &RevealResult{Reason: ReasonDeadlineExceeded}, nil
	}

	// Claim the pending entry. Losing the race means another reveal or the
	// sweep got there first.
	s.mu.Lock()
	_, stillPending := s.pending[commitHash]
	if stillPending {
		delete(s.pending, commitHash)
	}
	pendingCount := len(s.pending)
	s.mu.Unlock()
	if !stillPending {
		RevealsTotal.WithLabelValues("unknown").Inc()
		return &RevealResult{Reason: ReasonUnknownCommit}, nil
	}
	PendingCommits.Set(float64(pendingCount))

	ok, err = s.db.TransitionOrder(ctx, entry.orderID, order.StatusPending, order.StatusActive)
	if err != nil {
		// Durable store unavailable: restore the claim so a retry can succeed.
		s.mu.Lock()
		s.pending[commitHash] = entry
		s.mu.Unlock()
		return nil, fmt.Errorf("activate order: %w", err)
	}
	if !ok {
		RevealsTotal.WithLabelValues("unknown").Inc()
		return &RevealResult{Reason: ReasonUnknownCommit}, nil
	}

	o, err := s.db.GetOrder(ctx, entry.orderID)
	if err != nil {
		s.compensateReveal(ctx, commitHash, entry)
		return nil, fmt.Errorf("load revealed order: %w", err)
	}
	o.Revealed = true
	o.Status = order.StatusActive
	o.EncryptedPayload = nil
	err = s.db.UpdateOrder(ctx, o)
	if err != nil {
		s.compensateReveal(ctx, commitHash, entry)
		return nil, fmt.Errorf("mark order revealed: %w", err)
	}

	batchID, err := s.router.RouteRevealed(ctx, o)
	if err != nil {
		s.compensateReveal(ctx, commitHash, entry)
		return nil, fmt.Errorf("route revealed order: %w", err)
	}

	RevealsTotal.WithLabelValues("success").Inc()
	RevealLatencySeconds.Observe(time.Since(start).Seconds())

	s.logger.Info("order-revealed",
		zap.String("order-id", o.ID),
		zap.String("market", o.Market),
		zap.String("batch-id", batchID))

	s.bus.Publish(events.Event{
		Type:       events.OrderRevealed,
		OrderID:    o.ID,
		CommitHash: commitHash,
		BatchID:    batchID,
		Market:     o.Market,
	})

	return &RevealResult{Success: true, OrderID: o.ID, BatchID: batchID}, nil
}

// compensateReveal unwinds a reveal whose order was already activated: the
// durable status goes back to pending and the claim returns to the index, so
// a retry can succeed and the deadline sweep still owns expiry. The timer
// scheduled at commit time is untouched and remains armed.
func (s *Store) compensateReveal(ctx context.Context, commitHash string, entry *pendingCommit) {
	ok, err := s.db.TransitionOrder(ctx, entry.orderID, order.StatusActive, order.StatusPending)
	if err != nil || !ok {
		s.logger.Error("reveal-compensation-failed",
			zap.String("order-id", entry.orderID),
			zap.Bool("reverted", ok),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	s.pending[commitHash] = entry
	pendingCount := len(s.pending)
	s.mu.Unlock()
	PendingCommits.Set(float64(pendingCount))

	s.logger.Warn("reveal-unwound",
		zap.String("order-id", entry.orderID))
}

// expire is the sweep callback for a due commit hash.
func (s *Store) expire(hash string) {
	s.mu.Lock()
	entry, ok := s.pending[hash]
	if ok && time.Now().After(entry.deadline) {
		delete(s.pending, hash)
	} else {
		ok = false
	}
	pendingCount := len(s.pending)
	s.mu.Unlock()
	if !ok {
		// Revealed in the meantime, or not yet due.
		return
	}
	PendingCommits.Set(float64(pendingCount))
	s.expireOrder(entry.orderID, hash)
}

func (s *Store) expireOrder(orderID, hash string) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	ok, err := s.db.TransitionOrder(ctx, orderID, order.StatusPending, order.StatusExpired)
	if err != nil {
		s.logger.Error("commit-expiry-persist-failed",
			zap.String("order-id", orderID),
			zap.Error(err))
		return
	}
	if !ok {
		return
	}

	CommitExpiredTotal.Inc()
	s.logger.Info("commit-expired",
		zap.String("order-id", orderID))

	s.bus.Publish(events.Event{
		Type:       events.CommitExpired,
		OrderID:    orderID,
		CommitHash: hash,
	})
}

// PendingCount returns the number of unrevealed commitments.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close waits for the sweep loop to exit. The caller cancels the context
// passed to Start first.
func (s *Store) Close() error {
	s.wheel.wait()
	s.logger.Info("commitment-store-closed")
	return nil
}
