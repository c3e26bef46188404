package handler

import dErrors "medledger/pkg/domain-errors"

// DecisionRequest is the HTTP request body for POST /access-requests/{id}/decision.
type DecisionRequest struct {
	Approve *bool `json:"approve"`
}

// Validate implements httputil.Validatable. approve must be explicit so an
// empty body is never read as a denial.
func (r *DecisionRequest) Validate() error {
	if r.Approve == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "approve is required")
	}
	return nil
}
