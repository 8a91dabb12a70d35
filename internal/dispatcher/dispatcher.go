// Package dispatcher owns the replay worker pool: it feeds the bounded queue,
// fans entries out to a fixed set of workers, and coordinates shutdown.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/replaydiff/internal/clock/system"
	"github.com/JakeFAU/replaydiff/internal/diff"
	"github.com/JakeFAU/replaydiff/internal/executor"
	"github.com/JakeFAU/replaydiff/internal/metrics"
	"github.com/JakeFAU/replaydiff/internal/queue/memory"
	"github.com/JakeFAU/replaydiff/internal/replay"
	"github.com/JakeFAU/replaydiff/internal/stats"
	"github.com/JakeFAU/replaydiff/internal/worker"
)

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the logger used by the pool and its workers.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the clock used for run timestamps.
func WithClock(clock replay.Clock) Option {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithDiffSink overrides where diff records go. The default logs them.
func WithDiffSink(sink replay.DiffSink) Option {
	return func(p *Pool) {
		p.sink = sink
	}
}

// Pool is a fixed-size set of workers draining one bounded queue.
type Pool struct {
	cfg     replay.Config
	queue   *memory.Queue
	tracker *stats.Tracker
	clock   replay.Clock
	sink    replay.DiffSink
	logger  *zap.Logger
	size    int

	wg        sync.WaitGroup
	submitted atomic.Int64

	shutdownOnce sync.Once
	snapshot     stats.Snapshot
}

// New validates cfg and starts cfg.Concurrency workers. ctx bounds the
// outbound calls made by the workers; it does not stop them.
func New(ctx context.Context, cfg replay.Config, client replay.Client, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid replay config: %w", err)
	}

	p := &Pool{
		cfg:    cfg,
		clock:  system.New(),
		logger: zap.NewNop(),
		size:   cfg.Concurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink = diff.NewLogSink(p.logger)
	}

	p.queue = memory.NewQueue(cfg.QueueSize)
	p.tracker = stats.New(p.clock)
	metrics.TrackQueueDepth(p.queue.Len)
	exec := executor.New(cfg, client, p.logger.Named("executor"))
	engine := diff.New(p.sink)

	for i := 0; i < cfg.Concurrency; i++ {
		w := worker.New(p.queue, exec, engine, p.tracker, p.logger.Named("worker").With(zap.Int("index", i)))
		p.wg.Add(1)
		go func(wk *worker.Worker) {
			defer p.wg.Done()
			wk.Run(ctx)
		}(w)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", cfg.Concurrency),
		zap.Int("queue_size", cfg.QueueSize),
		zap.String("method", string(cfg.Method)),
		zap.String("old_url", cfg.OldURL),
		zap.String("new_url", cfg.NewURL),
	)
	return p, nil
}

// Submit enqueues entries in order, blocking while the queue is full. It
// fails only when ctx ends or the pool has been shut down; entries enqueued
// before the failure are still processed.
func (p *Pool) Submit(ctx context.Context, entries []replay.Entry) error {
	for _, entry := range entries {
		if err := p.queue.Enqueue(ctx, entry); err != nil {
			return fmt.Errorf("submit entry: %w", err)
		}
		p.submitted.Add(1)
	}
	return nil
}

// Submitted reports how many entries have been accepted by the queue.
func (p *Pool) Submitted() int64 {
	return p.submitted.Load()
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Shutdown closes the queue, waits for every worker to drain it and exit,
// and only then returns the final counters. Later calls return the same
// snapshot.
func (p *Pool) Shutdown() stats.Snapshot {
	p.shutdownOnce.Do(func() {
		p.queue.Close()
		p.logger.Info("waiting for workers", zap.Int("workers", p.size))
		p.wg.Wait()
		p.snapshot = p.tracker.Finish()
		metrics.TrackQueueDepth(nil)
	})
	return p.snapshot
}
