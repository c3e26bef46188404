package models

import (
	"time"

	id "medledger/pkg/domain"
)

// Status is the lifecycle state of an access request.
//
//	pending --approve--> approved --revoke--> revoked
//	pending --deny-----> denied
//
// denied and revoked are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusRevoked  Status = "revoked"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusDenied},
	StatusApproved: {StatusRevoked},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusRevoked:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// AccessRequest tracks one participant's bid to view one record.
// The stored value is a projection of the ledger entries that reference it;
// every status change is also appended to the ledger as its own entry.
type AccessRequest struct {
	ID          id.AccessRequestID
	RecordID    id.RecordID
	Requester   id.ParticipantID
	Status      Status
	RequestedAt time.Time
	DecidedAt   *time.Time
	DecidedBy   id.ParticipantID
	RevokedAt   *time.Time
	// Seq is the ledger position of the most recent entry for this request.
	Seq uint64
}

// IsGranted reports whether the request currently confers access.
func (r *AccessRequest) IsGranted() bool {
	return r != nil && r.Status == StatusApproved
}

// Clone returns a deep copy so callers cannot mutate stored projections.
func (r *AccessRequest) Clone() *AccessRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		out.DecidedAt = &t
	}
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		out.RevokedAt = &t
	}
	return &out
}
