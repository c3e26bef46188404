package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Resolver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medledger/internal/records/models"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/httputil"
	"medledger/pkg/requestcontext"
)

// Service defines the record store operations the handler needs.
type Service interface {
	Create(ctx context.Context, owner id.ParticipantID, artifactReference, metadata string) (*models.Record, error)
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	ListByOwner(ctx context.Context, owner id.ParticipantID) ([]*models.Record, error)
}

// Resolver maps the caller's credential to a participant.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (id.ParticipantID, error)
}

// Handler wires record endpoints to the record service.
type Handler struct {
	service  Service
	resolver Resolver
	logger   *slog.Logger
}

func New(service Service, resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		resolver: resolver,
		logger:   logger,
	}
}

// Register mounts record endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/records", h.HandleCreate)
	r.Get("/records", h.HandleListMine)
	r.Get("/records/{id}", h.HandleGet)
}

// HandleCreate handles POST /records. The caller becomes the owner.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	owner, err := h.resolver.Resolve(ctx, requestcontext.Credential(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Create(ctx, owner, req.ArtifactReference, req.Metadata)
	if err != nil {
		h.logger.WarnContext(ctx, "record creation failed",
			"request_id", requestID,
			"owner", owner,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRecord(record))
}

// HandleGet handles GET /records/{id}. Records are visible to any
// authenticated participant; the artifact itself stays encrypted off-ledger.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.resolver.Resolve(ctx, requestcontext.Credential(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Get(ctx, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(record))
}

// HandleListMine handles GET /records.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := h.resolver.Resolve(ctx, requestcontext.Credential(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.ListByOwner(ctx, owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(records))
}
