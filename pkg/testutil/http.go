// Package testutil provides common test utilities for handler and integration tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"medledger/pkg/requestcontext"
)

// ServeAs sends a JSON request to handler with credential already in the
// context, the way the auth middleware leaves it after verifying a bearer
// token.
func ServeAs(t *testing.T, handler http.Handler, credential, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req = req.WithContext(requestcontext.WithCredential(req.Context(), credential))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
