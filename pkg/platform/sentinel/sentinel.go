package sentinel

import "errors"

// Sentinel errors for storage facts. Ledger backends return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in the ledger
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrUnavailable: the backing substrate cannot be reached right now
//
// For validation failures, use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
