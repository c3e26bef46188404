package ledger

import (
	"context"
	"errors"

	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
)

// TranslateError maps backend errors to domain errors. Errors that already
// carry a domain code pass through, so domain failures raised inside RunInTx
// reach the caller unchanged.
func TranslateError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeSubstrateUnavailable, "ledger substrate unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger transaction aborted: context done")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
	}
}
