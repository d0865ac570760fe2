package coordinator

import "time"

// Options are the runtime-mutable protection settings. Each subsystem is
// gated independently; windows and batch bounds apply to work created after
// an update.
type Options struct {
	CommitRevealEnabled bool          `json:"commit_reveal_enabled"`
	BatchingEnabled     bool          `json:"batching_enabled"`
	TimeLockEnabled     bool          `json:"time_lock_enabled"`
	FairOrderingEnabled bool          `json:"fair_ordering_enabled"`
	MinCommitTime       time.Duration `json:"min_commit_time"`
	MaxCommitTime       time.Duration `json:"max_commit_time"`
	BatchSize           int           `json:"batch_size"`
	BatchInterval       time.Duration `json:"batch_interval"`
}

// OptionsPatch is a partial options update; nil fields keep their current
// value.
type OptionsPatch struct {
	CommitRevealEnabled *bool          `json:"commit_reveal_enabled,omitempty"`
	BatchingEnabled     *bool          `json:"batching_enabled,omitempty"`
	TimeLockEnabled     *bool          `json:"time_lock_enabled,omitempty"`
	FairOrderingEnabled *bool          `json:"fair_ordering_enabled,omitempty"`
	MinCommitTime       *time.Duration `json:"min_commit_time,omitempty"`
	MaxCommitTime       *time.Duration `json:"max_commit_time,omitempty"`
	BatchSize           *int           `json:"batch_size,omitempty"`
	BatchInterval       *time.Duration `json:"batch_interval,omitempty"`
}

func (o Options) apply(p *OptionsPatch) Options {
	if p.CommitRevealEnabled != nil {
		o.CommitRevealEnabled = *p.CommitRevealEnabled
	}
	if p.BatchingEnabled != nil {
		o.BatchingEnabled = *p.BatchingEnabled
	}
	if p.TimeLockEnabled != nil {
		o.TimeLockEnabled = *p.TimeLockEnabled
	}
	if p.FairOrderingEnabled != nil {
		o.FairOrderingEnabled = *p.FairOrderingEnabled
	}
	if p.MinCommitTime != nil {
		o.MinCommitTime = *p.MinCommitTime
	}
	if p.MaxCommitTime != nil {
		o.MaxCommitTime = *p.MaxCommitTime
	}
	if p.BatchSize != nil {
		o.BatchSize = *p.BatchSize
	}
	if p.BatchInterval != nil {
		o.BatchInterval = *p.BatchInterval
	}
	return o
}
