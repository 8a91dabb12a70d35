// Package stats tracks run counters shared by all workers.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

// Snapshot is the final state of a run. It is only produced after every
// worker has stopped.
type Snapshot struct {
	Succeeded  int64
	Failed     int64
	Diffs      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Total is the number of entries accounted for.
func (s Snapshot) Total() int64 {
	return s.Succeeded + s.Failed
}

// Elapsed is the wall time between start and finish.
func (s Snapshot) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Tracker holds increment-only counters safe for concurrent use.
type Tracker struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	diffs     atomic.Int64
	startedAt time.Time
	clock     replay.Clock

	finishOnce sync.Once
	snapshot   Snapshot
}

// New starts a Tracker at the clock's current time.
func New(clock replay.Clock) *Tracker {
	return &Tracker{
		startedAt: clock.Now(),
		clock:     clock,
	}
}

// IncSucceeded records an entry whose pair completed.
func (t *Tracker) IncSucceeded() {
	t.succeeded.Add(1)
}

// IncFailed records an entry whose pair failed.
func (t *Tracker) IncFailed() {
	t.failed.Add(1)
}

// IncDiffs records a pair whose bodies differed.
func (t *Tracker) IncDiffs() {
	t.diffs.Add(1)
}

// Succeeded returns the current success count.
func (t *Tracker) Succeeded() int64 {
	return t.succeeded.Load()
}

// Failed returns the current failure count.
func (t *Tracker) Failed() int64 {
	return t.failed.Load()
}

// Diffs returns the current diff count.
func (t *Tracker) Diffs() int64 {
	return t.diffs.Load()
}

// StartedAt returns the run start time.
func (t *Tracker) StartedAt() time.Time {
	return t.startedAt
}

// Finish stamps the finish time on the first call and returns the snapshot.
// Callers must ensure no further increments happen.
func (t *Tracker) Finish() Snapshot {
	t.finishOnce.Do(func() {
		t.snapshot = Snapshot{
			Succeeded:  t.succeeded.Load(),
			Failed:     t.failed.Load(),
			Diffs:      t.diffs.Load(),
			StartedAt:  t.startedAt,
			FinishedAt: t.clock.Now(),
		}
	})
	return t.snapshot
}
