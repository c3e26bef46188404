// Package ledger is the shared append-only log behind the record store and
// the access ledger.
//
// Every state change is one Entry, sealed with the hash of its predecessor so
// that any edit to history is detectable. Alongside the log, backends keep the
// record and access-request projections the services query; both are written
// in the same transaction, so a projection is never ahead of or behind the log.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	id "medledger/pkg/domain"
)

// Kind names the state change an entry records.
type Kind string

const (
	KindRecordCreated   Kind = "record_created"
	KindAccessRequested Kind = "access_requested"
	KindAccessApproved  Kind = "access_approved"
	KindAccessDenied    Kind = "access_denied"
	KindAccessRevoked   Kind = "access_revoked"
)

// GenesisHash is the predecessor hash of the first entry.
var GenesisHash = strings.Repeat("0", 64)

const hashPrefix = "sha256:"

// Entry is one immutable log position.
type Entry struct {
	Seq               uint64             `json:"seq"`
	Kind              Kind               `json:"kind"`
	RecordID          id.RecordID        `json:"record_id"`
	RequestID         id.AccessRequestID `json:"request_id,omitempty"`
	Actor             id.ParticipantID   `json:"actor"`
	ArtifactReference string             `json:"artifact_reference,omitempty"`
	Metadata          string             `json:"metadata,omitempty"`
	At                time.Time          `json:"at"`
	PrevHash          string             `json:"prev_hash"`
	Hash              string             `json:"hash"`
}

// sealedFields fixes the field order hashed for an entry. Hash itself is
// excluded; At is hashed as unix microseconds so every backend reproduces it.
type sealedFields struct {
	Seq               uint64             `json:"seq"`
	Kind              Kind               `json:"kind"`
	RecordID          id.RecordID        `json:"record_id"`
	RequestID         id.AccessRequestID `json:"request_id"`
	Actor             id.ParticipantID   `json:"actor"`
	ArtifactReference string             `json:"artifact_reference"`
	Metadata          string             `json:"metadata"`
	AtMicros          int64              `json:"at_us"`
	PrevHash          string             `json:"prev_hash"`
}

// ComputeHash returns the seal of e over every field except Hash.
func ComputeHash(e Entry) string {
	b, err := json.Marshal(sealedFields{
		Seq:               e.Seq,
		Kind:              e.Kind,
		RecordID:          e.RecordID,
		RequestID:         e.RequestID,
		Actor:             e.Actor,
		ArtifactReference: e.ArtifactReference,
		Metadata:          e.Metadata,
		AtMicros:          e.At.UnixMicro(),
		PrevHash:          e.PrevHash,
	})
	if err != nil {
		// Only plain strings and integers are marshalled.
		panic("ledger: marshal sealed fields: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// Link seals e as the successor of head (the zero Entry for an empty log).
// It assigns Seq and PrevHash, clamps At so time never runs backwards along
// the log, and computes Hash.
func Link(head Entry, e Entry) Entry {
	e.Seq = head.Seq + 1
	e.PrevHash = head.Hash
	if head.Seq == 0 {
		e.PrevHash = GenesisHash
	}
	e.At = NormalizeTime(e.At)
	if e.At.Before(head.At) {
		e.At = head.At
	}
	e.Hash = ComputeHash(e)
	return e
}

// NormalizeTime truncates t to the microsecond precision every backend can
// store exactly, in UTC.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
