// Package app drives one replay run: read the log in batches, feed the
// worker pool, shut it down, and report the summary.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/replaydiff/internal/clock/system"
	"github.com/JakeFAU/replaydiff/internal/config"
	"github.com/JakeFAU/replaydiff/internal/dispatcher"
	"github.com/JakeFAU/replaydiff/internal/httpclient"
	"github.com/JakeFAU/replaydiff/internal/id/uuid"
	"github.com/JakeFAU/replaydiff/internal/logging"
	"github.com/JakeFAU/replaydiff/internal/metrics"
	"github.com/JakeFAU/replaydiff/internal/reader"
	"github.com/JakeFAU/replaydiff/internal/replay"
	"github.com/JakeFAU/replaydiff/internal/server"
	"github.com/JakeFAU/replaydiff/internal/stats"
	"github.com/JakeFAU/replaydiff/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Workers int
	Stats   stats.Snapshot
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the base logger; every run line carries the run id.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClient overrides the outbound HTTP client.
func WithClient(client replay.Client) Option {
	return func(r *Runner) {
		if client != nil {
			r.client = client
		}
	}
}

// WithIDGenerator overrides the run id source.
func WithIDGenerator(ids replay.IDGenerator) Option {
	return func(r *Runner) {
		if ids != nil {
			r.ids = ids
		}
	}
}

// WithClock overrides the clock used for run timestamps.
func WithClock(clock replay.Clock) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithDiffSink routes diff records somewhere other than the run logger.
func WithDiffSink(sink replay.DiffSink) Option {
	return func(r *Runner) {
		r.sink = sink
	}
}

// Runner owns the collaborators of a replay run.
type Runner struct {
	cfg    config.Config
	client replay.Client
	ids    replay.IDGenerator
	clock  replay.Clock
	sink   replay.DiffSink
	logger *zap.Logger
}

// New validates cfg and wires the default collaborators.
func New(cfg config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	r := &Runner{
		cfg:    cfg,
		ids:    uuid.New(),
		clock:  system.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = httpclient.New(httpclient.Config{UserAgent: cfg.HTTP.UserAgent})
	}
	return r, nil
}

// Run replays the configured log against both targets. Only configuration
// and input-open errors are returned; per-entry failures and diffs end up
// in the counters and the log.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := logging.ForRun(r.logger, runID)

	replayCfg, err := r.cfg.ReplayConfig()
	if err != nil {
		return Result{}, err
	}

	src, err := reader.Open(r.cfg.Replay.LogPath)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logger.Warn("close replay log failed", zap.Error(cerr))
		}
	}()

	metrics.Init()
	if r.cfg.Metrics.Enabled {
		srv := server.New(fmt.Sprintf(":%d", r.cfg.Metrics.Port), logger.Named("server"))
		if err := srv.Start(); err != nil {
			return Result{}, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("metrics server shutdown failed", zap.Error(serr))
			}
		}()
	}

	flushTraces, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     r.cfg.Tracing.Enabled,
		Endpoint:    r.cfg.Tracing.Endpoint,
		ServiceName: r.cfg.Tracing.ServiceName,
	})
	if err != nil {
		return Result{}, err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if ferr := flushTraces(flushCtx); ferr != nil {
			logger.Warn("flush traces failed", zap.Error(ferr))
		}
	}()

	poolOpts := []dispatcher.Option{
		dispatcher.WithLogger(logger),
		dispatcher.WithClock(r.clock),
	}
	if r.sink != nil {
		poolOpts = append(poolOpts, dispatcher.WithDiffSink(r.sink))
	}
	pool, err := dispatcher.New(ctx, replayCfg, r.client, poolOpts...)
	if err != nil {
		return Result{}, err
	}

	logger.Info("replay started",
		zap.String("log_path", r.cfg.Replay.LogPath),
		zap.Int("batch_size", r.cfg.Replay.BatchSize),
	)
	r.feed(ctx, src, pool, logger)

	snap := pool.Shutdown()
	logger.Info("replay finished",
		zap.Duration("elapsed", snap.Elapsed()),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed),
		zap.Int64("diffs", snap.Diffs),
		zap.Int64("submitted", pool.Submitted()),
		zap.Int("workers", pool.Size()),
	)
	return Result{RunID: runID, Workers: pool.Size(), Stats: snap}, nil
}

// feed submits batches until the log is exhausted. A read or submit error
// stops feeding; whatever was already queued is still processed.
func (r *Runner) feed(ctx context.Context, src *reader.Reader, pool *dispatcher.Pool, logger *zap.Logger) {
	for {
		batch, err := src.ReadBatch(r.cfg.Replay.BatchSize)
		if len(batch) > 0 {
			if serr := pool.Submit(ctx, batch); serr != nil {
				logger.Error("submit batch failed", zap.Error(serr))
				return
			}
			logger.Info("batch submitted",
				zap.Int("entries", len(batch)),
				zap.Int("lines_read", src.Lines()),
				zap.Int64("submitted", pool.Submitted()),
			)
		}
		if err != nil {
			logger.Error("read replay log failed", zap.Int("line", src.Lines()), zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}
	}
}
