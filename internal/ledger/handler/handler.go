package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medledger/internal/ledger"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/httputil"
	"medledger/pkg/requestcontext"
)

// Inspector exposes the read-only views of the log.
type Inspector interface {
	Entries(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Entry, error)
	Verify(ctx context.Context) (ledger.Report, error)
}

// Handler serves the ledger audit endpoints.
type Handler struct {
	inspector Inspector
	logger    *slog.Logger
}

func New(inspector Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/ledger/entries", h.HandleEntries)
	r.Get("/ledger/verify", h.HandleVerify)
}

type EntriesResponse struct {
	Entries []ledger.Entry `json:"entries"`
	// Next is the cursor for the following page; zero when this page was short.
	Next uint64 `json:"next,omitempty"`
}

// HandleEntries handles GET /ledger/entries?after=&limit=.
func (h *Handler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var after uint64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "after must be a non-negative integer"))
			return
		}
		after = v
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = v
	}

	entries, err := h.inspector.Entries(ctx, after, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := EntriesResponse{Entries: entries}
	if resp.Entries == nil {
		resp.Entries = []ledger.Entry{}
	}
	effective := limit
	if effective == 0 {
		effective = ledger.DefaultPageSize
	}
	if n := len(entries); n > 0 && n >= min(effective, ledger.MaxPageSize) {
		resp.Next = entries[n-1].Seq
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerify handles GET /ledger/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.inspector.Verify(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !report.Valid {
		h.logger.ErrorContext(ctx, "ledger chain verification failed",
			"broken_at", report.BrokenAt,
			"reason", report.Reason,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
