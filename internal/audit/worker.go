package audit

import (
	"context"
	"log/slog"
	"time"
)

// FailureCounter is told about sink failures.
type FailureCounter interface {
	IncAuditPublishFailure(sink string)
}

// NamedSink labels a sink in logs and metrics.
type NamedSink struct {
	Name string
	Sink Sink
}

// Worker consumes audit events from a channel and hands each to every sink.
// A failing sink is logged and counted; it never stops the worker.
type Worker struct {
	sinks    []NamedSink
	inbox    <-chan Event
	logger   *slog.Logger
	failures FailureCounter
	timeout  time.Duration
}

func NewWorker(inbox <-chan Event, logger *slog.Logger, failures FailureCounter, sinks ...NamedSink) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sinks: sinks, inbox: inbox, logger: logger, failures: failures, timeout: 5 * time.Second}
}

// Run delivers events until the inbox is closed or ctx is done. On ctx done
// it drains whatever is already queued before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.deliver(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) {
	for _, s := range w.sinks {
		sctx, cancel := context.WithTimeout(ctx, w.timeout)
		err := s.Sink.Append(sctx, event)
		cancel()
		if err == nil {
			continue
		}
		if w.failures != nil {
			w.failures.IncAuditPublishFailure(s.Name)
		}
		w.logger.ErrorContext(ctx, "audit sink append failed",
			"sink", s.Name,
			"action", event.Action,
			"seq", event.Seq,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}
