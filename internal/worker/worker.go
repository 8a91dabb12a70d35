// Package worker implements the replay execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/replaydiff/internal/metrics"
	"github.com/JakeFAU/replaydiff/internal/queue/memory"
	"github.com/JakeFAU/replaydiff/internal/replay"
	"github.com/JakeFAU/replaydiff/internal/stats"
)

// Queue is the receiving side of the dispatch queue.
type Queue interface {
	Dequeue(ctx context.Context) (replay.Entry, error)
}

// PairExecutor issues the old/new calls for one entry.
type PairExecutor interface {
	Execute(ctx context.Context, entry replay.Entry) (replay.Pair, error)
}

// Comparer reports whether a pair's bodies differ.
type Comparer interface {
	Compare(pair replay.Pair) bool
}

// Worker consumes entries until the queue is closed and drained.
type Worker struct {
	queue    Queue
	executor PairExecutor
	comparer Comparer
	tracker  *stats.Tracker
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	queue Queue,
	executor PairExecutor,
	comparer Comparer,
	tracker *stats.Tracker,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		executor: executor,
		comparer: comparer,
		tracker:  tracker,
		logger:   logger,
	}
}

// Run blocks, consuming entries until the queue reports closure. ctx bounds
// the outbound calls only: entries already queued are still taken and
// accounted for after ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	dequeueCtx := context.WithoutCancel(ctx)
	for {
		entry, err := w.queue.Dequeue(dequeueCtx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				w.logger.Error("queue dequeue failed", zap.Error(err))
			}
			w.logger.Info("worker exiting", zap.Error(err))
			return
		}
		w.processEntry(ctx, entry)
	}
}

func (w *Worker) processEntry(ctx context.Context, entry replay.Entry) {
	pair, err := w.executor.Execute(ctx, entry)
	if err != nil {
		w.tracker.IncFailed()
		metrics.ObserveEntry(metrics.ResultFailed)
		w.logger.Error("handle replay entry failed", zap.String("payload", entry.Payload), zap.Error(err))
		return
	}

	if w.comparer.Compare(pair) {
		w.tracker.IncDiffs()
		metrics.ObserveDiff()
	}
	w.tracker.IncSucceeded()
	metrics.ObserveEntry(metrics.ResultSucceeded)
}
