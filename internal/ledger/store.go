package ledger

import (
	"context"

	accessmodels "medledger/internal/access/models"
	recordmodels "medledger/internal/records/models"
	id "medledger/pkg/domain"
)

// Reader is a consistent view of ledger state. Missing entities are reported
// as sentinel.ErrNotFound. Returned values are copies; mutating them does not
// change stored state.
type Reader interface {
	// Head returns the latest entry, or the zero Entry for an empty log.
	Head(ctx context.Context) (Entry, error)
	// Entries returns up to limit entries with Seq > afterSeq in log order.
	Entries(ctx context.Context, afterSeq uint64, limit int) ([]Entry, error)

	Record(ctx context.Context, recordID id.RecordID) (*recordmodels.Record, error)
	RecordsByOwner(ctx context.Context, owner id.ParticipantID) ([]*recordmodels.Record, error)

	AccessRequest(ctx context.Context, requestID id.AccessRequestID) (*accessmodels.AccessRequest, error)
	// AccessRequestsForPair returns every request by requester for recordID, oldest first.
	AccessRequestsForPair(ctx context.Context, recordID id.RecordID, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error)
	AccessRequestsByRecord(ctx context.Context, recordID id.RecordID) ([]*accessmodels.AccessRequest, error)
	AccessRequestsByRequester(ctx context.Context, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error)
}

// Writer extends Reader with the mutations available inside a transaction.
// Reads through a Writer observe the transaction's own writes.
type Writer interface {
	Reader

	// Append links e to the current head and stores it, returning the sealed entry.
	Append(ctx context.Context, e Entry) (Entry, error)

	// NextRecordID returns the id the next inserted record must use.
	NextRecordID(ctx context.Context) (id.RecordID, error)
	// InsertRecord stores a new record. sentinel.ErrConflict if the id exists.
	InsertRecord(ctx context.Context, record *recordmodels.Record) error

	// NextAccessRequestID returns the id the next inserted request must use.
	NextAccessRequestID(ctx context.Context) (id.AccessRequestID, error)
	// InsertAccessRequest stores a new request. sentinel.ErrConflict if the id
	// exists or the backend rejects a second pending request for the pair.
	InsertAccessRequest(ctx context.Context, req *accessmodels.AccessRequest) error
	// UpdateAccessRequest replaces the projection of an existing request.
	UpdateAccessRequest(ctx context.Context, req *accessmodels.AccessRequest) error
}

// Store is a ledger backend.
//
// RunInTx executes fn as one atomic, linearizable transaction: either every
// write fn performed becomes visible at once, or none does. Errors returned by
// fn roll the transaction back and are returned unchanged. View executes fn
// against a consistent snapshot that never includes a partial transaction.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
	Close() error
}
