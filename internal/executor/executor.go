// Package executor issues the old/new request pair for one replay entry.
package executor

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/replaydiff/internal/metrics"
	"github.com/JakeFAU/replaydiff/internal/policy/ratelimit"
	"github.com/JakeFAU/replaydiff/internal/replay"
)

const tracerName = "github.com/JakeFAU/replaydiff/internal/executor"

// Target labels used in logs and metrics.
const (
	TargetOld = "old"
	TargetNew = "new"
)

// Executor runs the paired calls for one entry.
type Executor struct {
	cfg     replay.Config
	client  replay.Client
	logger  *zap.Logger
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
}

// New constructs an Executor. cfg is read-only from here on.
func New(cfg replay.Config, client replay.Client, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		cfg:    cfg,
		client: client,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
	if cfg.RateLimit > 0 {
		e.limiter = ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit, Burst: cfg.RateBurst})
	}
	return e
}

// TargetURL appends an already-encoded query payload to base.
func TargetURL(base, payload string) string {
	return base + "?" + payload
}

// Execute calls the old target, then the new target, with the same payload.
// Any failure aborts the pair; nothing is retried.
func (e *Executor) Execute(ctx context.Context, entry replay.Entry) (replay.Pair, error) {
	switch e.cfg.Method {
	case replay.MethodGet, replay.MethodPost:
	default:
		return replay.Pair{}, fmt.Errorf("%w: %q", replay.ErrUnsupportedMethod, e.cfg.Method)
	}

	if e.cfg.Method == replay.MethodGet {
		if reason := malformedQuery(entry.Payload); reason != "" {
			e.logger.Warn("payload is not an encoded query string",
				zap.String("payload", entry.Payload),
				zap.String("reason", reason),
			)
		}
	}

	ctx, span := e.tracer.Start(ctx, "replay.pair", trace.WithAttributes(
		attribute.String("replay.method", string(e.cfg.Method)),
		attribute.Int("replay.payload_bytes", len(entry.Payload)),
	))
	defer span.End()

	oldResp, err := e.call(ctx, TargetOld, e.cfg.OldURL, entry)
	if err != nil {
		recordError(span, err)
		return replay.Pair{}, err
	}
	newResp, err := e.call(ctx, TargetNew, e.cfg.NewURL, entry)
	if err != nil {
		recordError(span, err)
		return replay.Pair{}, err
	}
	return replay.Pair{Entry: entry, Old: oldResp, New: newResp}, nil
}

func (e *Executor) call(ctx context.Context, target, base string, entry replay.Entry) (replay.Response, error) {
	ctx, span := e.tracer.Start(ctx, "replay.request", trace.WithAttributes(
		attribute.String("replay.target", target),
		attribute.String("replay.base_url", base),
	))
	defer span.End()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, base); err != nil {
			recordError(span, err)
			return replay.Response{}, fmt.Errorf("%s request: %w", target, err)
		}
	}

	var (
		resp replay.Response
		err  error
	)
	switch e.cfg.Method {
	case replay.MethodGet:
		url := TargetURL(base, entry.Payload)
		e.logger.Info("send request", zap.String("target", target), zap.String("url", url))
		resp, err = e.client.Get(ctx, url, e.cfg.Timeout)
	case replay.MethodPost:
		e.logger.Info("send request",
			zap.String("target", target),
			zap.String("url", base),
			zap.String("payload", entry.Payload),
		)
		resp, err = e.client.PostJSON(ctx, base, entry.Payload, e.cfg.Timeout)
	}
	if err != nil {
		recordError(span, err)
		metrics.ObserveRequestError(target)
		return replay.Response{}, fmt.Errorf("%s request: %w", target, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	metrics.ObserveRequest(target, resp.Duration)
	e.logger.Info("request succeeded",
		zap.String("target", target),
		zap.String("url", resp.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)
	return resp, nil
}

// malformedQuery reports why payload would not reach the targets intact as
// a query string, or "" when it would. Such payloads are still sent.
func malformedQuery(payload string) string {
	if strings.Contains(payload, "#") {
		return "contains '#': the rest is sent as a fragment and dropped"
	}
	for _, r := range payload {
		if r == ' ' {
			return "contains a raw space"
		}
		if unicode.IsControl(r) {
			return "contains a control character"
		}
	}
	return ""
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
