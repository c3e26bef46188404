package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medledger/internal/access/metrics"
	"medledger/internal/access/models"
	"medledger/internal/audit"
	"medledger/internal/ledger"
	recordmodels "medledger/internal/records/models"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
	"medledger/pkg/requestcontext"
)

// Ledger is the transactional boundary the service runs on.
type Ledger interface {
	Update(ctx context.Context, op string, fn func(ctx context.Context, w ledger.Writer) error) error
	Read(ctx context.Context, op string, fn func(ctx context.Context, r ledger.Reader) error) error
}

// AuditPublisher receives an event for every committed transition.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service is the access ledger. Each operation checks its preconditions and
// appends its entry inside one transaction, so concurrent callers are
// linearized by the backend.
type Service struct {
	ledger  Ledger
	auditor AuditPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Service)

func WithAuditor(a AuditPublisher) Option { return func(s *Service) { s.auditor = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func New(l Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		logger: slog.Default(),
		tracer: otel.Tracer("medledger/access"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const requestNotFound = "access request not found"

// Request files a pending access request by requester for recordID.
//
// Errors, in check order: CodeNotFound (unknown record), CodeSelfAccessDenied
// (requester owns the record), CodeDuplicateRequest (a pending request for
// the pair already exists). Earlier denied or revoked requests do not block.
func (s *Service) Request(ctx context.Context, recordID id.RecordID, requester id.ParticipantID) (*models.AccessRequest, error) {
	ctx, span := s.startSpan(ctx, "access.Request",
		attribute.Int64("record.id", int64(recordID)))
	defer span.End()

	if requester.IsZero() {
		return nil, s.fail(span, "request", dErrors.New(dErrors.CodeInvalidInput, "requester is required"))
	}

	var (
		req    *models.AccessRequest
		sealed ledger.Entry
		owner  id.ParticipantID
	)
	err := s.ledger.Update(ctx, "access.request", func(ctx context.Context, w ledger.Writer) error {
		record, err := loadRecord(ctx, w, recordID)
		if err != nil {
			return err
		}
		owner = record.Owner
		if record.IsOwnedBy(requester) {
			return dErrors.New(dErrors.CodeSelfAccessDenied, "owners cannot request access to their own records")
		}

		existing, err := w.AccessRequestsForPair(ctx, recordID, requester)
		if err != nil {
			return err
		}
		for _, prior := range existing {
			if prior.Status == models.StatusPending {
				return dErrors.New(dErrors.CodeDuplicateRequest, "a pending request for this record already exists")
			}
		}

		requestID, err := w.NextAccessRequestID(ctx)
		if err != nil {
			return err
		}
		sealed, err = w.Append(ctx, ledger.Entry{
			Kind:      ledger.KindAccessRequested,
			RecordID:  recordID,
			RequestID: requestID,
			Actor:     requester,
			At:        requestcontext.Now(ctx),
		})
		if err != nil {
			return err
		}
		req = &models.AccessRequest{
			ID:          requestID,
			RecordID:    recordID,
			Requester:   requester,
			Status:      models.StatusPending,
			RequestedAt: sealed.At,
			Seq:         sealed.Seq,
		}
		if err := w.InsertAccessRequest(ctx, req); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeDuplicateRequest, "a pending request for this record already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "request", ledger.TranslateError(err, requestNotFound))
	}

	span.SetAttributes(attribute.Int64("access_request.id", int64(req.ID)))
	s.metrics.IncrementRequest("created")
	s.publish(ctx, sealed, req.Requester, string(models.StatusPending))
	s.logger.InfoContext(ctx, "access requested",
		"record_id", recordID,
		"access_request_id", req.ID,
		"requester", requester,
		"owner", owner,
		"request_id", requestcontext.RequestID(ctx),
	)
	return req, nil
}

// Decide approves or denies a pending request. Only the record owner may decide.
//
// Errors, in check order: CodeNotFound, CodeForbidden (decider is not the
// owner), CodeNotPending. Authorization is checked before state so a
// non-owner learns nothing about the request.
func (s *Service) Decide(ctx context.Context, requestID id.AccessRequestID, decider id.ParticipantID, approve bool) (*models.AccessRequest, error) {
	target, kind := models.StatusDenied, ledger.KindAccessDenied
	if approve {
		target, kind = models.StatusApproved, ledger.KindAccessApproved
	}
	return s.transition(ctx, "decide", requestID, decider, target, kind, func(req *models.AccessRequest, e ledger.Entry) {
		at := e.At
		req.DecidedAt = &at
		req.DecidedBy = decider
	})
}

// Revoke withdraws an approved request. Only the record owner may revoke.
//
// Errors, in check order: CodeNotFound, CodeForbidden, CodeNotApproved.
func (s *Service) Revoke(ctx context.Context, requestID id.AccessRequestID, revoker id.ParticipantID) (*models.AccessRequest, error) {
	return s.transition(ctx, "revoke", requestID, revoker, models.StatusRevoked, ledger.KindAccessRevoked, func(req *models.AccessRequest, e ledger.Entry) {
		at := e.At
		req.RevokedAt = &at
	})
}

func (s *Service) transition(
	ctx context.Context,
	op string,
	requestID id.AccessRequestID,
	actor id.ParticipantID,
	target models.Status,
	kind ledger.Kind,
	stamp func(req *models.AccessRequest, e ledger.Entry),
) (*models.AccessRequest, error) {
	ctx, span := s.startSpan(ctx, "access."+op,
		attribute.Int64("access_request.id", int64(requestID)),
		attribute.String("access_request.target_status", string(target)))
	defer span.End()

	if actor.IsZero() {
		return nil, s.fail(span, op, dErrors.New(dErrors.CodeInvalidInput, "participant is required"))
	}

	var (
		updated *models.AccessRequest
		sealed  ledger.Entry
	)
	err := s.ledger.Update(ctx, "access."+op, func(ctx context.Context, w ledger.Writer) error {
		current, err := w.AccessRequest(ctx, requestID)
		if err != nil {
			return err
		}
		record, err := w.Record(ctx, current.RecordID)
		if err != nil {
			// A request always references an existing record.
			return dErrors.Wrap(err, dErrors.CodeInternal, "access request references a missing record")
		}
		if !record.IsOwnedBy(actor) {
			return dErrors.New(dErrors.CodeForbidden, "only the record owner may "+op+" this request")
		}
		if !current.Status.CanTransitionTo(target) {
			return stateError(target)
		}

		sealed, err = w.Append(ctx, ledger.Entry{
			Kind:      kind,
			RecordID:  current.RecordID,
			RequestID: current.ID,
			Actor:     actor,
			At:        requestcontext.Now(ctx),
		})
		if err != nil {
			return err
		}
		updated = current.Clone()
		updated.Status = target
		updated.Seq = sealed.Seq
		stamp(updated, sealed)
		return w.UpdateAccessRequest(ctx, updated)
	})
	if err != nil {
		return nil, s.fail(span, op, ledger.TranslateError(err, requestNotFound))
	}

	s.metrics.IncrementTransition(string(target))
	s.publish(ctx, sealed, updated.Requester, string(target))
	s.logger.InfoContext(ctx, "access request "+string(target),
		"record_id", updated.RecordID,
		"access_request_id", updated.ID,
		"requester", updated.Requester,
		"actor", actor,
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

func stateError(target models.Status) error {
	if target == models.StatusRevoked {
		return dErrors.New(dErrors.CodeNotApproved, "only approved requests can be revoked")
	}
	return dErrors.New(dErrors.CodeNotPending, "request has already been decided")
}

// Get returns a request to its requester or the record owner.
//
// Errors: CodeNotFound, CodeForbidden for anyone else.
func (s *Service) Get(ctx context.Context, requestID id.AccessRequestID, viewer id.ParticipantID) (*models.AccessRequest, error) {
	var req *models.AccessRequest
	err := s.ledger.Read(ctx, "access.get", func(ctx context.Context, r ledger.Reader) error {
		current, err := r.AccessRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if current.Requester != viewer {
			record, err := r.Record(ctx, current.RecordID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "access request references a missing record")
			}
			if !record.IsOwnedBy(viewer) {
				return dErrors.New(dErrors.CodeForbidden, "request is visible to its requester and the record owner only")
			}
		}
		req = current
		return nil
	})
	if err != nil {
		return nil, ledger.TranslateError(err, requestNotFound)
	}
	return req, nil
}

// ListForRecord returns every request for recordID, oldest first. Owner only.
//
// Errors: CodeNotFound (unknown record), CodeForbidden.
func (s *Service) ListForRecord(ctx context.Context, recordID id.RecordID, viewer id.ParticipantID) ([]*models.AccessRequest, error) {
	var out []*models.AccessRequest
	err := s.ledger.Read(ctx, "access.list_for_record", func(ctx context.Context, r ledger.Reader) error {
		record, err := loadRecord(ctx, r, recordID)
		if err != nil {
			return err
		}
		if !record.IsOwnedBy(viewer) {
			return dErrors.New(dErrors.CodeForbidden, "only the record owner may list its requests")
		}
		out, err = r.AccessRequestsByRecord(ctx, recordID)
		return err
	})
	if err != nil {
		return nil, ledger.TranslateError(err, requestNotFound)
	}
	return out, nil
}

// ListByRequester returns requester's own requests, oldest first.
func (s *Service) ListByRequester(ctx context.Context, requester id.ParticipantID) ([]*models.AccessRequest, error) {
	if requester.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "requester is required")
	}
	var out []*models.AccessRequest
	err := s.ledger.Read(ctx, "access.list_by_requester", func(ctx context.Context, r ledger.Reader) error {
		var err error
		out, err = r.AccessRequestsByRequester(ctx, requester)
		return err
	})
	if err != nil {
		return nil, ledger.TranslateError(err, requestNotFound)
	}
	return out, nil
}

func loadRecord(ctx context.Context, r ledger.Reader, recordID id.RecordID) (*recordmodels.Record, error) {
	record, err := r.Record(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	}
	return record, err
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) fail(span trace.Span, op string, err error) error {
	code := string(dErrors.CodeOf(err))
	if op == "request" {
		s.metrics.IncrementRequest(code)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, code)
	return err
}

func (s *Service) publish(ctx context.Context, sealed ledger.Entry, subject id.ParticipantID, decision string) {
	if s.auditor == nil {
		return
	}
	event := audit.FromEntry(sealed, requestcontext.RequestID(ctx))
	event.Subject = subject
	event.Decision = decision
	s.auditor.Emit(ctx, event)
}
