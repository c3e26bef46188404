// Package domain holds the identifier types shared across modules.
//
// Typed IDs keep record ids, request ids and participants from being mixed up
// at call sites. Construct them from external input with the Parse functions;
// direct conversion bypasses validation.
package domain

import (
	"strconv"
	"strings"

	dErrors "medledger/pkg/domain-errors"
)

// ParticipantID is a stable participant identifier: a wallet address
// normalized to lowercase 0x-prefixed hex. Normalization happens in the
// identity resolver; this type only carries the result.
type ParticipantID string

// IsZero reports whether the participant is unresolved.
func (p ParticipantID) IsZero() bool { return p == "" }

func (p ParticipantID) String() string { return string(p) }

// RecordID identifies a record. Assigned by the ledger starting at 1.
type RecordID uint64

// IsZero reports whether the id is unassigned.
func (id RecordID) IsZero() bool { return id == 0 }

func (id RecordID) String() string { return strconv.FormatUint(uint64(id), 10) }

// AccessRequestID identifies an access request. Assigned by the ledger
// starting at 1, independently of record ids.
type AccessRequestID uint64

// IsZero reports whether the id is unassigned.
func (id AccessRequestID) IsZero() bool { return id == 0 }

func (id AccessRequestID) String() string { return strconv.FormatUint(uint64(id), 10) }

// maxIDLength bounds decimal ids before parsing; uint64 needs at most 20 digits.
const maxIDLength = 20

// ParseRecordID parses a decimal record id from external input.
//
// Errors: CodeInvalidInput when the value is empty, not a positive decimal
// integer, or out of range.
func ParseRecordID(s string) (RecordID, error) {
	v, err := parsePositive(s, "record id")
	if err != nil {
		return 0, err
	}
	return RecordID(v), nil
}

// ParseAccessRequestID parses a decimal access request id from external input.
//
// Errors: CodeInvalidInput when the value is empty, not a positive decimal
// integer, or out of range.
func ParseAccessRequestID(s string) (AccessRequestID, error) {
	v, err := parsePositive(s, "access request id")
	if err != nil {
		return 0, err
	}
	return AccessRequestID(v), nil
}

func parsePositive(s, name string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, name+" is required")
	}
	if len(s) > maxIDLength {
		return 0, dErrors.New(dErrors.CodeInvalidInput, name+" is too long")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+name)
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+name)
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+name)
	}
	return v, nil
}
