package diff

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/replaydiff/internal/replay"
)

// LogSink writes each diff record as a warn-level structured log entry.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record logs both URLs and both full bodies.
func (s *LogSink) Record(rec replay.DiffRecord) {
	s.logger.Warn("found diff",
		zap.String("payload", rec.Payload),
		zap.String("old_url", rec.OldURL),
		zap.Int("old_status", rec.OldStatus),
		zap.String("old_sha256", rec.OldHash),
		zap.String("old_body", rec.OldBody),
		zap.String("new_url", rec.NewURL),
		zap.Int("new_status", rec.NewStatus),
		zap.String("new_sha256", rec.NewHash),
		zap.String("new_body", rec.NewBody),
	)
}
