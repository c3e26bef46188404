package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,Gate,Resolver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medledger/internal/access/models"
	"medledger/internal/gate"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/httputil"
	"medledger/pkg/requestcontext"
)

// Service defines the access ledger operations the handler needs.
type Service interface {
	Request(ctx context.Context, recordID id.RecordID, requester id.ParticipantID) (*models.AccessRequest, error)
	Decide(ctx context.Context, requestID id.AccessRequestID, decider id.ParticipantID, approve bool) (*models.AccessRequest, error)
	Revoke(ctx context.Context, requestID id.AccessRequestID, revoker id.ParticipantID) (*models.AccessRequest, error)
	Get(ctx context.Context, requestID id.AccessRequestID, viewer id.ParticipantID) (*models.AccessRequest, error)
	ListForRecord(ctx context.Context, recordID id.RecordID, viewer id.ParticipantID) ([]*models.AccessRequest, error)
	ListByRequester(ctx context.Context, requester id.ParticipantID) ([]*models.AccessRequest, error)
}

// Gate answers access checks.
type Gate interface {
	Check(ctx context.Context, recordID id.RecordID, participant id.ParticipantID) (gate.Decision, error)
}

// Resolver maps a credential to a participant.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (id.ParticipantID, error)
}

// Handler wires access request endpoints and the access check to their services.
type Handler struct {
	service  Service
	gate     Gate
	resolver Resolver
	logger   *slog.Logger
}

func New(service Service, gate Gate, resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		gate:     gate,
		resolver: resolver,
		logger:   logger,
	}
}

// Register mounts access endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/records/{id}/access-requests", h.HandleRequest)
	r.Get("/records/{id}/access-requests", h.HandleListForRecord)
	r.Get("/records/{id}/access", h.HandleCheck)
	r.Get("/access-requests", h.HandleListMine)
	r.Get("/access-requests/{id}", h.HandleGet)
	r.Post("/access-requests/{id}/decision", h.HandleDecide)
	r.Post("/access-requests/{id}/revoke", h.HandleRevoke)
}

// HandleRequest handles POST /records/{id}/access-requests.
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, recordID, ok := h.callerAndRecord(w, r)
	if !ok {
		return
	}

	req, err := h.service.Request(ctx, recordID, caller)
	if err != nil {
		h.logger.WarnContext(ctx, "access request refused",
			"request_id", requestcontext.RequestID(ctx),
			"record_id", recordID,
			"requester", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromAccessRequest(req))
}

// HandleListForRecord handles GET /records/{id}/access-requests (owner inbox).
func (h *Handler) HandleListForRecord(w http.ResponseWriter, r *http.Request) {
	caller, recordID, ok := h.callerAndRecord(w, r)
	if !ok {
		return
	}
	reqs, err := h.service.ListForRecord(r.Context(), recordID, caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAccessRequests(reqs))
}

// HandleCheck handles GET /records/{id}/access. The participant query
// parameter defaults to the caller.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, recordID, ok := h.callerAndRecord(w, r)
	if !ok {
		return
	}

	participant := caller
	if raw := r.URL.Query().Get("participant"); raw != "" {
		p, err := h.resolver.Resolve(ctx, raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		participant = p
	}

	decision, err := h.gate.Check(ctx, recordID, participant)
	if err != nil {
		h.logger.ErrorContext(ctx, "access check failed",
			"request_id", requestcontext.RequestID(ctx),
			"record_id", recordID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CheckResponse{
		RecordID:    uint64(recordID),
		Participant: participant.String(),
		Allowed:     decision.Allowed,
		Reason:      string(decision.Reason),
	})
}

// HandleListMine handles GET /access-requests.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := h.resolver.Resolve(ctx, requestcontext.Credential(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.service.ListByRequester(ctx, caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAccessRequests(reqs))
}

// HandleGet handles GET /access-requests/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, requestID, ok := h.callerAndRequest(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), requestID, caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAccessRequest(req))
}

// HandleDecide handles POST /access-requests/{id}/decision.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, requestID, ok := h.callerAndRequest(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	req, err := h.service.Decide(ctx, requestID, caller, *body.Approve)
	if err != nil {
		h.logger.WarnContext(ctx, "access decision refused",
			"request_id", requestcontext.RequestID(ctx),
			"access_request_id", requestID,
			"decider", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAccessRequest(req))
}

// HandleRevoke handles POST /access-requests/{id}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, requestID, ok := h.callerAndRequest(w, r)
	if !ok {
		return
	}
	req, err := h.service.Revoke(ctx, requestID, caller)
	if err != nil {
		h.logger.WarnContext(ctx, "access revocation refused",
			"request_id", requestcontext.RequestID(ctx),
			"access_request_id", requestID,
			"revoker", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAccessRequest(req))
}

func (h *Handler) callerAndRecord(w http.ResponseWriter, r *http.Request) (id.ParticipantID, id.RecordID, bool) {
	ctx := r.Context()
	caller, err := h.resolver.Resolve(ctx, requestcontext.Credential(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	return caller, recordID, true
}

func (h *Handler) callerAndRequest(w http.ResponseWriter, r *http.Request) (id.ParticipantID, id.AccessRequestID, bool) {
	ctx := r.Context()
	caller, err := h.resolver.Resolve(ctx, requestcontext.Credential(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	requestID, err := id.ParseAccessRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	return caller, requestID, true
}
