package handler

import (
	"time"

	"medledger/internal/access/models"
)

type AccessRequestResponse struct {
	ID          uint64     `json:"id"`
	RecordID    uint64     `json:"record_id"`
	Requester   string     `json:"requester"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   string     `json:"decided_by,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	Seq         uint64     `json:"seq"`
}

type AccessRequestListResponse struct {
	Requests []AccessRequestResponse `json:"requests"`
}

type CheckResponse struct {
	RecordID    uint64 `json:"record_id"`
	Participant string `json:"participant"`
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason"`
}

func FromAccessRequest(r *models.AccessRequest) AccessRequestResponse {
	return AccessRequestResponse{
		ID:          uint64(r.ID),
		RecordID:    uint64(r.RecordID),
		Requester:   r.Requester.String(),
		Status:      r.Status.String(),
		RequestedAt: r.RequestedAt,
		DecidedAt:   r.DecidedAt,
		DecidedBy:   r.DecidedBy.String(),
		RevokedAt:   r.RevokedAt,
		Seq:         r.Seq,
	}
}

func FromAccessRequests(reqs []*models.AccessRequest) AccessRequestListResponse {
	out := AccessRequestListResponse{Requests: make([]AccessRequestResponse, 0, len(reqs))}
	for _, r := range reqs {
		out.Requests = append(out.Requests, FromAccessRequest(r))
	}
	return out
}
