package handler

import (
	"time"

	"medledger/internal/records/models"
)

type RecordResponse struct {
	ID                uint64    `json:"id"`
	Owner             string    `json:"owner"`
	ArtifactReference string    `json:"artifact_reference"`
	Metadata          string    `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	Seq               uint64    `json:"seq"`
}

type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
}

func FromRecord(r *models.Record) RecordResponse {
	return RecordResponse{
		ID:                uint64(r.ID),
		Owner:             r.Owner.String(),
		ArtifactReference: r.ArtifactReference,
		Metadata:          r.Metadata,
		CreatedAt:         r.CreatedAt,
		Seq:               r.Seq,
	}
}

func FromRecords(records []*models.Record) RecordListResponse {
	out := RecordListResponse{Records: make([]RecordResponse, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, FromRecord(r))
	}
	return out
}
