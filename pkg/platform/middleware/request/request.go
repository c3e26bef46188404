// Package request assigns every HTTP request an id that follows it through
// logs, ledger audit events and the response headers.
package request

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"medledger/pkg/requestcontext"
)

const HeaderRequestID = "X-Request-ID"

var acceptableID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID reuses a well-formed inbound X-Request-ID or generates a UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if !acceptableID.MatchString(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
