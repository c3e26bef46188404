package audit

import (
	"time"

	"medledger/internal/ledger"
	id "medledger/pkg/domain"
)

// Event is emitted after a ledger transaction commits. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp       time.Time          `json:"timestamp"`
	Action          string             `json:"action"`
	Seq             uint64             `json:"seq,omitempty"`
	EntryHash       string             `json:"entry_hash,omitempty"`
	RecordID        id.RecordID        `json:"record_id"`
	AccessRequestID id.AccessRequestID `json:"access_request_id,omitempty"`
	Actor           id.ParticipantID   `json:"actor"`
	// Subject is the participant the action is about when it differs from
	// Actor, e.g. the requester whose access was approved.
	Subject   id.ParticipantID `json:"subject,omitempty"`
	Decision  string           `json:"decision,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// ActionAccessChecked is emitted for gate checks, which write nothing to the ledger.
const ActionAccessChecked = "access_checked"

// FromEntry builds the event for a sealed ledger entry.
func FromEntry(e ledger.Entry, requestID string) Event {
	return Event{
		Timestamp:       e.At,
		Action:          string(e.Kind),
		Seq:             e.Seq,
		EntryHash:       e.Hash,
		RecordID:        e.RecordID,
		AccessRequestID: e.RequestID,
		Actor:           e.Actor,
		RequestID:       requestID,
	}
}
