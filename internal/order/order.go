package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the order side.
type Side string

// Order sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Kind is the order kind.
type Kind string

// Order kinds supported by the venue.
const (
	KindMarket     Kind = "market"
	KindLimit      Kind = "limit"
	KindStopLoss   Kind = "stop_loss"
	KindTakeProfit Kind = "take_profit"
)

// Status is the lifecycle status of a protected order.
type Status string

// Order statuses. Executed, expired and failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusTimeLocked Status = "time_locked"
	StatusExecuted   Status = "executed"
	StatusExpired    Status = "expired"
	StatusFailed     Status = "failed"
)

// ProtectionLevel selects the reveal window and priority bonus.
type ProtectionLevel string

// Protection levels.
const (
	ProtectionNone     ProtectionLevel = "none"
	ProtectionStandard ProtectionLevel = "standard"
	ProtectionMaximum  ProtectionLevel = "maximum"
)

// Valid reports whether l is a recognized protection level.
func (l ProtectionLevel) Valid() bool {
	switch l {
	case ProtectionNone, ProtectionStandard, ProtectionMaximum:
		return true
	}
	return false
}

// Intent is a raw order intent as submitted by a caller, before any
// protection bookkeeping is attached.
type Intent struct {
	UserID   string  `json:"user_id"`
	Market   string  `json:"market"`
	Side     Side    `json:"side"`
	Kind     Kind    `json:"kind"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price,omitempty"` // 0 for market orders
}

// Validate checks that the intent is well formed.
func (i *Intent) Validate() error {
	if i.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if i.Market == "" {
		return fmt.Errorf("market cannot be empty")
	}
	if i.Side != SideBuy && i.Side != SideSell {
		return fmt.Errorf("invalid side %q", i.Side)
	}
	switch i.Kind {
	case KindMarket, KindLimit, KindStopLoss, KindTakeProfit:
	default:
		return fmt.Errorf("invalid order kind %q", i.Kind)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %f", i.Quantity)
	}
	if i.Kind != KindMarket && i.Price <= 0 {
		return fmt.Errorf("%s order requires a positive price", i.Kind)
	}
	return nil
}

// Notional returns the approximate notional value of the intent.
// Market orders have no limit price, so quantity stands in for notional.
func (i *Intent) Notional() float64 {
	if i.Price > 0 {
		return i.Quantity * i.Price
	}
	return i.Quantity
}

// ProtectedOrder is a single order intent under MEV protection.
//
// CommitHash is immutable once set. EncryptedPayload is present only while
// the order is pending (pre-reveal) and is cleared at reveal. BatchID is
// assigned only after reveal.
type ProtectedOrder struct {
	ID               string
	UserID           string
	Market           string
	Side             Side
	Kind             Kind
	Quantity         float64
	Price            float64
	CommitHash       string
	RevealDeadline   time.Time
	Revealed         bool
	ProtectionLevel  ProtectionLevel
	EncryptedPayload []byte
	TimeLockUntil    time.Time
	BatchID          string
	Priority         float64
	Status           Status
	CreatedAt        time.Time
}

// NewProtected builds a pending protected order from an intent.
func NewProtected(intent *Intent, level ProtectionLevel, commitHash string, deadline time.Time) *ProtectedOrder {
	now := time.Now()
	return &ProtectedOrder{
		ID:              uuid.New().String(),
		UserID:          intent.UserID,
		Market:          intent.Market,
		Side:            intent.Side,
		Kind:            intent.Kind,
		Quantity:        intent.Quantity,
		Price:           intent.Price,
		CommitHash:      commitHash,
		RevealDeadline:  deadline,
		ProtectionLevel: level,
		Priority:        PriorityScore(level, intent.Notional(), now, now),
		Status:          StatusPending,
		CreatedAt:       now,
	}
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusExpired || s == StatusFailed
}

// String returns a human-readable representation of the order.
func (o *ProtectedOrder) String() string {
	id := o.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("Order[%s] %s %s %s qty=%.4f status=%s level=%s",
		id, o.Market, o.Side, o.Kind, o.Quantity, o.Status, o.ProtectionLevel)
}

// Notional returns the order's notional value. Market orders carry no price,
// so quantity stands in.
func (o *ProtectedOrder) Notional() float64 {
	if o.Price > 0 {
		return o.Quantity * o.Price
	}
	return o.Quantity
}

// Rescore refreshes the priority against a later reference instant so the
// earliness bonus reflects how long the order sat committed. Called when a
// batch closes, before ordering.
func (o *ProtectedOrder) Rescore(now time.Time) {
	o.Priority = PriorityScore(o.ProtectionLevel, o.Notional(), o.CreatedAt, now)
}

// Priority score shape: a flat base, a protection-level bonus, a capped
// notional bonus and a small earliness bonus. The notional cap keeps large
// orders from dominating ordering outright; only the protection level can
// move an order past the fair-ordering swap threshold on its own.
const (
	priorityBase          = 100.0
	priorityBonusStandard = 25.0
	priorityBonusMaximum  = 50.0
	notionalBonusDivisor  = 1000.0
	notionalBonusCap      = 25.0
	earlinessBonusCap     = 10.0
	earlinessPerMinute    = 1.0 / 6.0 // full bonus after one hour committed
)

// PriorityScore computes an order's priority as of now. The earliness term
// grows with the time elapsed since commit, so the score set at commit time
// carries no earliness; it is refreshed at batch closure. The cap keeps age
// alone from outweighing a protection-level difference.
func PriorityScore(level ProtectionLevel, notional float64, commitTime, now time.Time) float64 {
	score := priorityBase

	switch level {
	case ProtectionMaximum:
		score += priorityBonusMaximum
	case ProtectionStandard:
		score += priorityBonusStandard
	}

	sizeBonus := notional / notionalBonusDivisor
	if sizeBonus > notionalBonusCap {
		sizeBonus = notionalBonusCap
	}
	score += sizeBonus

	age := now.Sub(commitTime)
	if age > 0 {
		earliness := age.Minutes() * earlinessPerMinute
		if earliness > earlinessBonusCap {
			earliness = earlinessBonusCap
		}
		score += earliness
	}

	return score
}
