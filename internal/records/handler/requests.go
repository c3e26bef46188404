package handler

import (
	"strings"

	dErrors "medledger/pkg/domain-errors"
)

// CreateRecordRequest is the HTTP request body for POST /records.
type CreateRecordRequest struct {
	ArtifactReference string `json:"artifact_reference"`
	Metadata          string `json:"metadata"`
}

// Validate implements httputil.Validatable. Size limits are enforced by the
// service so every caller gets them.
func (r *CreateRecordRequest) Validate() error {
	r.ArtifactReference = strings.TrimSpace(r.ArtifactReference)
	if r.ArtifactReference == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "artifact_reference is required")
	}
	return nil
}
