package models

import (
	"time"

	id "medledger/pkg/domain"
)

// Record is an immutable ledger entry pointing at an encrypted artifact held
// by external storage. Amendments create a new Record; nothing here is ever
// updated or deleted.
type Record struct {
	ID                id.RecordID
	Owner             id.ParticipantID
	ArtifactReference string
	Metadata          string
	CreatedAt         time.Time
	// Seq is the ledger position of the record_created entry.
	Seq uint64
}

// IsOwnedBy reports whether p owns the record.
func (r *Record) IsOwnedBy(p id.ParticipantID) bool {
	return r != nil && !p.IsZero() && r.Owner == p
}
