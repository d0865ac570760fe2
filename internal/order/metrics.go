package order

import "time"

// MevMetrics is a derived snapshot of protection activity over a rolling
// window. It is recomputed whole from the durable store, never partially
// updated in place.
type MevMetrics struct {
	TotalProtectedOrders  int           `json:"total_protected_orders"`
	AvgCommitRevealWindow time.Duration `json:"avg_commit_reveal_window"`
	BatchCount            int           `json:"batch_count"`
	FrontRunningDetected  int           `json:"front_running_detected"`
	ProtectionSuccessRate float64       `json:"protection_success_rate"`
	AvgBatchSize          float64       `json:"avg_batch_size"`
	WindowStart           time.Time     `json:"window_start"`
	ComputedAt            time.Time     `json:"computed_at"`
}
