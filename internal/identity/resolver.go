// Package identity maps external wallet credentials to stable participants.
//
// The resolver trusts the identity provider's authentication and performs no
// signature checks of its own: it normalizes the asserted address into the
// participant identifier used throughout the ledger. Credential verification
// for HTTP callers lives in TokenVerifier and runs in middleware, before the
// resolver is consulted.
package identity

import (
	"context"
	"encoding/hex"
	"strings"

	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
)

const addressHexLength = 40

// Resolver derives participant identifiers from wallet addresses. It holds
// no per-caller state; the credential travels with each call.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve maps an external credential (a 0x-prefixed wallet address) to a
// participant. The mapping is deterministic: every spelling of the same
// address resolves to the same lowercase identifier.
//
// Errors: CodeUnresolvedIdentity when the credential is empty (provider not
// connected), malformed, or mixed-case with a bad EIP-55 checksum.
func (r *Resolver) Resolve(_ context.Context, credential string) (id.ParticipantID, error) {
	addr := strings.TrimSpace(credential)
	if addr == "" {
		return "", dErrors.New(dErrors.CodeUnresolvedIdentity, "no credential supplied")
	}
	body, ok := strings.CutPrefix(addr, "0x")
	if !ok {
		body, ok = strings.CutPrefix(addr, "0X")
	}
	if !ok || len(body) != addressHexLength {
		return "", dErrors.New(dErrors.CodeUnresolvedIdentity, "credential is not a wallet address")
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", dErrors.New(dErrors.CodeUnresolvedIdentity, "credential is not a wallet address")
	}

	lower := strings.ToLower(body)
	if isMixedCase(body) && checksumHex(lower) != body {
		return "", dErrors.New(dErrors.CodeUnresolvedIdentity, "wallet address checksum mismatch")
	}
	return id.ParticipantID("0x" + lower), nil
}

func isMixedCase(s string) bool {
	return s != strings.ToLower(s) && s != strings.ToUpper(s)
}
