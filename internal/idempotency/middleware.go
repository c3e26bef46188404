package idempotency

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/httputil"
	"medledger/pkg/requestcontext"
)

// maxFingerprintBody bounds the body of a keyed request.
const maxFingerprintBody = 64 << 10

// Recorder counts middleware outcomes: reserved, replayed, conflict, released, error.
type Recorder interface {
	IncIdempotency(outcome string)
}

type config struct {
	ttl      time.Duration
	logger   *slog.Logger
	recorder Recorder
}

type Option func(*config)

func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

func WithRecorder(r Recorder) Option { return func(c *config) { c.recorder = r } }

// Middleware makes POST handlers honour the Idempotency-Key header. Requests
// without the header, and non-POST requests, pass through untouched. It must
// run after authentication so the key is scoped to the caller's credential.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{ttl: DefaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, present := r.Header[http.CanonicalHeaderKey(HeaderKey)]
			if r.Method != http.MethodPost || !present {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			key, err := ValidateKey(raw[0])
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody+1))
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unreadable request body"))
				return
			}
			if len(body) > maxFingerprintBody {
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "request body too large for an idempotent request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := Scope(requestcontext.Credential(ctx), r.Method, r.URL.Path, key)
			fingerprint := Fingerprint(body)

			existing, reserved, err := store.Reserve(ctx, scope, fingerprint, cfg.ttl)
			if err != nil {
				cfg.count("error")
				cfg.logger.ErrorContext(ctx, "idempotency reserve failed",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeSubstrateUnavailable, "idempotency store unavailable"))
				return
			}
			if !reserved {
				cfg.replay(ctx, w, existing, fingerprint, requestID)
				return
			}
			cfg.count("reserved")

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			completed := false
			defer func() {
				if !completed {
					// Handler panicked; let the panic propagate but free the key.
					_ = store.Release(context.WithoutCancel(ctx), scope)
				}
			}()
			next.ServeHTTP(rec, r)
			completed = true

			if rec.status >= http.StatusInternalServerError {
				cfg.count("released")
				if err := store.Release(context.WithoutCancel(ctx), scope); err != nil {
					cfg.logger.WarnContext(ctx, "idempotency release failed",
						"error", err,
						"request_id", requestID,
					)
				}
				return
			}
			err = store.Complete(context.WithoutCancel(ctx), scope, Record{
				Fingerprint: fingerprint,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}, cfg.ttl)
			if err != nil {
				cfg.count("error")
				cfg.logger.WarnContext(ctx, "idempotency completion failed",
					"error", err,
					"request_id", requestID,
				)
			}
		})
	}
}

func (c config) replay(ctx context.Context, w http.ResponseWriter, existing Record, fingerprint, requestID string) {
	switch {
	case existing.Fingerprint != fingerprint:
		c.count("conflict")
		c.logger.WarnContext(ctx, "idempotency key reused with a different body", "request_id", requestID)
		httputil.WriteError(w, dErrors.New(dErrors.CodeIdempotencyConflict, "Idempotency-Key was used with a different request body"))
	case !existing.Completed:
		c.count("conflict")
		httputil.WriteError(w, dErrors.New(dErrors.CodeIdempotencyConflict, "a request with this Idempotency-Key is still in progress"))
	default:
		c.count("replayed")
		if existing.ContentType != "" {
			w.Header().Set("Content-Type", existing.ContentType)
		}
		w.Header().Set(HeaderReplayed, "true")
		w.WriteHeader(existing.Status)
		_, _ = w.Write(existing.Body)
	}
}

func (c config) count(outcome string) {
	if c.recorder != nil {
		c.recorder.IncIdempotency(outcome)
	}
}

// recorder passes the response through while keeping a copy for storage.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
