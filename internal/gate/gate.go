// Package gate answers whether a participant may view a record. It reads the
// ledger projections only and never writes an entry.
package gate

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medledger/internal/access/metrics"
	"medledger/internal/audit"
	"medledger/internal/ledger"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
	"medledger/pkg/requestcontext"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonOwner         Reason = "owner"
	ReasonGranted       Reason = "granted"
	ReasonNoGrant       Reason = "no_grant"
	ReasonUnknownRecord Reason = "unknown_record"
)

// Decision is the outcome of a check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Ledger is the read side the gate needs.
type Ledger interface {
	Read(ctx context.Context, op string, fn func(ctx context.Context, r ledger.Reader) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

type Gate struct {
	ledger  Ledger
	auditor AuditPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Gate)

func WithAuditor(a AuditPublisher) Option { return func(g *Gate) { g.auditor = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(g *Gate) { g.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(g *Gate) { g.logger = l } }

func New(l Ledger, opts ...Option) *Gate {
	g := &Gate{
		ledger: l,
		logger: slog.Default(),
		tracer: otel.Tracer("medledger/gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check decides access from one consistent snapshot. The owner is always
// allowed; anyone else is allowed while any request for the (record,
// participant) pair is approved and not revoked. Unknown records are denied, not
// reported as errors. Errors are substrate failures, translated to domain codes.
func (g *Gate) Check(ctx context.Context, recordID id.RecordID, participant id.ParticipantID) (Decision, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Check", trace.WithAttributes(
		attribute.Int64("record.id", int64(recordID))))
	defer span.End()

	var decision Decision
	err := g.ledger.Read(ctx, "gate.check", func(ctx context.Context, r ledger.Reader) error {
		record, err := r.Record(ctx, recordID)
		if errors.Is(err, sentinel.ErrNotFound) {
			decision = Decision{Reason: ReasonUnknownRecord}
			return nil
		}
		if err != nil {
			return err
		}
		if record.IsOwnedBy(participant) {
			decision = Decision{Allowed: true, Reason: ReasonOwner}
			return nil
		}
		if participant.IsZero() {
			decision = Decision{Reason: ReasonNoGrant}
			return nil
		}

		history, err := r.AccessRequestsForPair(ctx, recordID, participant)
		if err != nil {
			return err
		}
		for _, req := range history {
			if req.IsGranted() {
				decision = Decision{Allowed: true, Reason: ReasonGranted}
				return nil
			}
		}
		decision = Decision{Reason: ReasonNoGrant}
		return nil
	})
	if err != nil {
		err = ledger.TranslateError(err, "record not found")
		span.RecordError(err)
		span.SetStatus(codes.Error, "gate check failed")
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.Bool("gate.allowed", decision.Allowed),
		attribute.String("gate.reason", string(decision.Reason)))
	g.metrics.IncrementGateCheck(string(decision.Reason))
	if g.auditor != nil {
		g.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionAccessChecked,
			RecordID:  recordID,
			Subject:   participant,
			Decision:  allowedLabel(decision.Allowed),
			Reason:    string(decision.Reason),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return decision, nil
}

// CanAccess is Check reduced to a boolean. It fails closed: a substrate
// error denies access and is logged.
func (g *Gate) CanAccess(ctx context.Context, recordID id.RecordID, participant id.ParticipantID) bool {
	decision, err := g.Check(ctx, recordID, participant)
	if err != nil {
		g.logger.ErrorContext(ctx, "gate check failed, denying access",
			"record_id", recordID,
			"participant", participant,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return false
	}
	return decision.Allowed
}

func allowedLabel(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
