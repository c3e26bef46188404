// Package idempotency replays the stored response of a POST retried with the
// same Idempotency-Key, so a client retry never appends a second ledger entry.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	dErrors "medledger/pkg/domain-errors"
)

const (
	// HeaderKey carries the client-chosen key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed is set on responses served from a stored record.
	HeaderReplayed = "Idempotent-Replayed"

	MaxKeyLength = 128
	DefaultTTL   = 24 * time.Hour
)

// ErrNotReserved is returned by Complete when the reservation expired or was released.
var ErrNotReserved = errors.New("idempotency key not reserved")

// Record is what a store keeps per scoped key. A record without Completed
// set is an in-progress reservation.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	Completed   bool   `json:"completed"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store persists reservations and completed responses.
type Store interface {
	// Reserve atomically claims scope if it is free and reports true. If the
	// scope is taken it returns the existing record and false.
	Reserve(ctx context.Context, scope string, fingerprint string, ttl time.Duration) (Record, bool, error)
	// Complete replaces the reservation with the final response.
	Complete(ctx context.Context, scope string, rec Record, ttl time.Duration) error
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, scope string) error
}

// Scope namespaces a key by participant and route so two callers can never
// observe each other's responses.
func Scope(participant, method, route, key string) string {
	return strings.ToLower(participant) + "|" + method + " " + route + "|" + key
}

// Fingerprint is the SHA-256 of the raw request body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ValidateKey trims key and rejects empty or oversized values.
func ValidateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "Idempotency-Key must not be empty")
	}
	if len(key) > MaxKeyLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "Idempotency-Key must be at most 128 characters")
	}
	return key, nil
}
