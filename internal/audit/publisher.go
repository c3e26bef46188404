package audit

import (
	"context"
	"log/slog"

	"medledger/pkg/requestcontext"
)

// DropCounter is told about events discarded because the queue was full.
type DropCounter interface {
	IncAuditDropped()
}

// Publisher queues audit events for a Worker. Emit never blocks the caller:
// the ledger is the source of truth and audit delivery is best effort.
type Publisher struct {
	inbox   chan Event
	logger  *slog.Logger
	dropped DropCounter
}

const defaultBuffer = 1024

// NewPublisher creates a publisher with a queue of size buffer (default 1024).
// logger and dropped may be nil.
func NewPublisher(buffer int, logger *slog.Logger, dropped DropCounter) *Publisher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Publisher{inbox: make(chan Event, buffer), logger: logger, dropped: dropped}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	select {
	case p.inbox <- event:
	default:
		if p.dropped != nil {
			p.dropped.IncAuditDropped()
		}
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit queue full, event dropped",
				"action", event.Action,
				"seq", event.Seq,
				"request_id", event.RequestID,
			)
		}
	}
}

// Inbox is the queue a Worker drains.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Close ends the queue; a Worker drains what is queued and returns. Emit
// must not be called after Close.
func (p *Publisher) Close() {
	close(p.inbox)
}
