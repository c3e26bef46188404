package service

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medledger/internal/audit"
	"medledger/internal/ledger"
	"medledger/internal/records/metrics"
	"medledger/internal/records/models"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/requestcontext"
)

const (
	// MaxArtifactReferenceBytes bounds the content address.
	MaxArtifactReferenceBytes = 2048
	// MaxMetadataBytes bounds the free-form metadata.
	MaxMetadataBytes = 8192
)

// Ledger is the transactional boundary the service runs on.
type Ledger interface {
	Update(ctx context.Context, op string, fn func(ctx context.Context, w ledger.Writer) error) error
	Read(ctx context.Context, op string, fn func(ctx context.Context, r ledger.Reader) error) error
}

// AuditPublisher receives an event for every committed record.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service is the record store: records are created once and never change.
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
		tracer: otel.Tracer("medledger/records"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a record owned by owner.
//
// Errors: CodeInvalidInput for an unresolved owner, an empty (after trimming)
// or oversized artifact reference, or oversized metadata.
func (s *Service) Create(ctx context.Context, owner id.ParticipantID, artifactReference, metadata string) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "records.Create")
	defer span.End()

	record, err := s.create(ctx, owner, artifactReference, metadata)
	if err != nil {
		s.metrics.IncrementRejected(string(dErrors.CodeOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Int64("record.id", int64(record.ID)))
	s.metrics.IncrementCreated()
	s.logger.InfoContext(ctx, "record created",
		"record_id", record.ID,
		"owner", record.Owner,
		"seq", record.Seq,
		"request_id", requestcontext.RequestID(ctx),
	)
	return record, nil
}

func (s *Service) create(ctx context.Context, owner id.ParticipantID, artifactReference, metadata string) (*models.Record, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	artifactReference = strings.TrimSpace(artifactReference)
	if artifactReference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "artifact_reference is required")
	}
	if len(artifactReference) > MaxArtifactReferenceBytes {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "artifact_reference is too long")
	}
	if len(metadata) > MaxMetadataBytes {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "metadata is too long")
	}

	var (
		record *models.Record
		sealed ledger.Entry
	)
	err := s.ledger.Update(ctx, "records.create", func(ctx context.Context, w ledger.Writer) error {
		recordID, err := w.NextRecordID(ctx)
		if err != nil {
			return err
		}
		sealed, err = w.Append(ctx, ledger.Entry{
			Kind:              ledger.KindRecordCreated,
			RecordID:          recordID,
			Actor:             owner,
			ArtifactReference: artifactReference,
			Metadata:          metadata,
			At:                requestcontext.Now(ctx),
		})
		if err != nil {
			return err
		}
		record = &models.Record{
			ID:                recordID,
			Owner:             owner,
			ArtifactReference: artifactReference,
			Metadata:          metadata,
			CreatedAt:         sealed.At,
			Seq:               sealed.Seq,
		}
		return w.InsertRecord(ctx, record)
	})
	if err != nil {
		return nil, ledger.TranslateError(err, "record not found")
	}

	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.FromEntry(sealed, requestcontext.RequestID(ctx)))
	}
	return record, nil
}

// Get returns the record with recordID.
//
// Errors: CodeNotFound when no such record exists.
func (s *Service) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	var record *models.Record
	err := s.ledger.Read(ctx, "records.get", func(ctx context.Context, r ledger.Reader) error {
		var err error
		record, err = r.Record(ctx, recordID)
		return err
	})
	if err != nil {
		return nil, ledger.TranslateError(err, "record not found")
	}
	return record, nil
}

// ListByOwner returns owner's records in ascending id order.
func (s *Service) ListByOwner(ctx context.Context, owner id.ParticipantID) ([]*models.Record, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	var records []*models.Record
	err := s.ledger.Read(ctx, "records.list_by_owner", func(ctx context.Context, r ledger.Reader) error {
		var err error
		records, err = r.RecordsByOwner(ctx, owner)
		return err
	})
	if err != nil {
		return nil, ledger.TranslateError(err, "record not found")
	}
	return records, nil
}
