package audit

import (
	"context"
	"log/slog"
)

// LogSink writes each event as a structured log line under the "audit" group.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(ctx context.Context, e Event) error {
	attrs := []any{
		"action", e.Action,
		"record_id", e.RecordID,
		"actor", e.Actor,
		"timestamp", e.Timestamp,
	}
	if e.Seq != 0 {
		attrs = append(attrs, "seq", e.Seq, "entry_hash", e.EntryHash)
	}
	if e.AccessRequestID != 0 {
		attrs = append(attrs, "access_request_id", e.AccessRequestID)
	}
	if e.Subject != "" {
		attrs = append(attrs, "subject", e.Subject)
	}
	if e.Decision != "" {
		attrs = append(attrs, "decision", e.Decision)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	s.logger.InfoContext(ctx, "audit event",
		slog.Group("audit", attrs...),
		"request_id", e.RequestID,
	)
	return nil
}
