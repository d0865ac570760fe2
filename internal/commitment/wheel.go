package commitment

import (
	"context"
	"sync"
	"time"
)

// timerWheel tracks reveal deadlines in one-second buckets swept by a single
// ticker, instead of one runtime timer per commit. Entries are not removed
// on reveal; the fire callback consults the pending index, so a stale entry
// is a cheap no-op and the sweep doubles as the safety net after a rebuild.
type timerWheel struct {
	mu      sync.Mutex
	buckets map[int64][]string // unix second -> commit hashes
	fire    func(hash string)
	wg      sync.WaitGroup
}

func newTimerWheel(fire func(hash string)) *timerWheel {
	return &timerWheel{
		buckets: make(map[int64][]string),
		fire:    fire,
	}
}

// schedule registers a hash to fire once deadline has passed.
func (w *timerWheel) schedule(hash string, deadline time.Time) {
	bucket := deadline.Unix() + 1 // fire on the first tick after the deadline
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets[bucket] = append(w.buckets[bucket], hash)
}

// start runs the sweep loop until ctx is cancelled.
func (w *timerWheel) start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				w.sweep(now)
			}
		}
	}()
}

func (w *timerWheel) sweep(now time.Time) {
	cutoff := now.Unix()

	w.mu.Lock()
	var due []string
	for bucket, hashes := range w.buckets {
		if bucket <= cutoff {
			due = append(due, hashes...)
			delete(w.buckets, bucket)
		}
	}
	w.mu.Unlock()

	for _, hash := range due {
		w.fire(hash)
	}
}

// wait blocks until the sweep loop has exited.
func (w *timerWheel) wait() {
	w.wg.Wait()
}
