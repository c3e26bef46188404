// Package memory is the in-process ledger backend.
//
// Committed state is an immutable snapshot behind an atomic pointer. View
// reads whichever snapshot is current and takes no lock, so readers never
// wait for writers. Writers are serialized by a mutex; each RunInTx works on
// a fork of the current snapshot and publishes it only on success, so a
// failed or panicking transaction leaves nothing behind.
//
// Forks share the append-only backing arrays of their parent; an append only
// writes past the parent's length, which no reader of the parent can see.
// Slots below that length are never written in place: an update copies the
// requests slice first.
package memory

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	accessmodels "medledger/internal/access/models"
	"medledger/internal/ledger"
	recordmodels "medledger/internal/records/models"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

type pairKey struct {
	record    id.RecordID
	requester id.ParticipantID
}

type state struct {
	entries  []ledger.Entry
	records  []recordmodels.Record        // index = id-1
	requests []*accessmodels.AccessRequest // index = id-1

	byOwner     map[id.ParticipantID][]id.RecordID
	byPair      map[pairKey][]id.AccessRequestID
	byRecord    map[id.RecordID][]id.AccessRequestID
	byRequester map[id.ParticipantID][]id.AccessRequestID
}

// fork returns a working copy whose maps can be written without disturbing s.
func (s *state) fork() *state {
	return &state{
		entries:     s.entries,
		records:     s.records,
		requests:    s.requests,
		byOwner:     maps.Clone(s.byOwner),
		byPair:      maps.Clone(s.byPair),
		byRecord:    maps.Clone(s.byRecord),
		byRequester: maps.Clone(s.byRequester),
	}
}

// Store is an in-memory ledger.Store.
type Store struct {
	writeMu sync.Mutex
	cur     atomic.Pointer[state]
}

// New returns an empty in-memory ledger.
func New() *Store {
	st := &Store{}
	st.cur.Store(&state{
		byOwner:     make(map[id.ParticipantID][]id.RecordID),
		byPair:      make(map[pairKey][]id.AccessRequestID),
		byRecord:    make(map[id.RecordID][]id.AccessRequestID),
		byRequester: make(map[id.ParticipantID][]id.AccessRequestID),
	})
	return st
}

// RunInTx implements ledger.Store.
func (st *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, w ledger.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	w := &writer{reader: reader{s: st.cur.Load().fork()}}
	if err := fn(ctx, w); err != nil {
		return err
	}
	st.cur.Store(w.s)
	return nil
}

// View implements ledger.Store.
func (st *Store) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, reader{s: st.cur.Load()})
}

// Close implements ledger.Store.
func (st *Store) Close() error { return nil }

type reader struct {
	s *state
}

func (r reader) Head(_ context.Context) (ledger.Entry, error) {
	if len(r.s.entries) == 0 {
		return ledger.Entry{}, nil
	}
	return r.s.entries[len(r.s.entries)-1], nil
}

func (r reader) Entries(_ context.Context, afterSeq uint64, limit int) ([]ledger.Entry, error) {
	if afterSeq >= uint64(len(r.s.entries)) || limit <= 0 {
		return []ledger.Entry{}, nil
	}
	end := afterSeq + uint64(limit)
	if end > uint64(len(r.s.entries)) {
		end = uint64(len(r.s.entries))
	}
	return append([]ledger.Entry{}, r.s.entries[afterSeq:end]...), nil
}

func (r reader) Record(_ context.Context, recordID id.RecordID) (*recordmodels.Record, error) {
	if recordID.IsZero() || uint64(recordID) > uint64(len(r.s.records)) {
		return nil, sentinel.ErrNotFound
	}
	rec := r.s.records[recordID-1]
	return &rec, nil
}

func (r reader) RecordsByOwner(_ context.Context, owner id.ParticipantID) ([]*recordmodels.Record, error) {
	ids := r.s.byOwner[owner]
	out := make([]*recordmodels.Record, 0, len(ids))
	for _, rid := range ids {
		rec := r.s.records[rid-1]
		out = append(out, &rec)
	}
	return out, nil
}

func (r reader) AccessRequest(_ context.Context, requestID id.AccessRequestID) (*accessmodels.AccessRequest, error) {
	if requestID.IsZero() || uint64(requestID) > uint64(len(r.s.requests)) {
		return nil, sentinel.ErrNotFound
	}
	return r.s.requests[requestID-1].Clone(), nil
}

func (r reader) AccessRequestsForPair(_ context.Context, recordID id.RecordID, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.collect(r.s.byPair[pairKey{record: recordID, requester: requester}]), nil
}

func (r reader) AccessRequestsByRecord(_ context.Context, recordID id.RecordID) ([]*accessmodels.AccessRequest, error) {
	return r.collect(r.s.byRecord[recordID]), nil
}

func (r reader) AccessRequestsByRequester(_ context.Context, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.collect(r.s.byRequester[requester]), nil
}

func (r reader) collect(ids []id.AccessRequestID) []*accessmodels.AccessRequest {
	out := make([]*accessmodels.AccessRequest, 0, len(ids))
	for _, rid := range ids {
		out = append(out, r.s.requests[rid-1].Clone())
	}
	return out
}

type writer struct {
	reader
	ownRequests bool
}

func (w *writer) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	head, _ := w.Head(ctx)
	sealed := ledger.Link(head, e)
	w.s.entries = append(w.s.entries, sealed)
	return sealed, nil
}

func (w *writer) NextRecordID(_ context.Context) (id.RecordID, error) {
	return id.RecordID(len(w.s.records) + 1), nil
}

func (w *writer) InsertRecord(_ context.Context, record *recordmodels.Record) error {
	if uint64(record.ID) != uint64(len(w.s.records)+1) {
		return sentinel.ErrConflict
	}
	w.s.records = append(w.s.records, *record)
	w.s.byOwner[record.Owner] = append(w.s.byOwner[record.Owner], record.ID)
	return nil
}

func (w *writer) NextAccessRequestID(_ context.Context) (id.AccessRequestID, error) {
	return id.AccessRequestID(len(w.s.requests) + 1), nil
}

func (w *writer) InsertAccessRequest(_ context.Context, req *accessmodels.AccessRequest) error {
	if uint64(req.ID) != uint64(len(w.s.requests)+1) {
		return sentinel.ErrConflict
	}
	key := pairKey{record: req.RecordID, requester: req.Requester}
	if req.Status == accessmodels.StatusPending {
		for _, rid := range w.s.byPair[key] {
			if w.s.requests[rid-1].Status == accessmodels.StatusPending {
				return sentinel.ErrConflict
			}
		}
	}

	w.s.requests = append(w.s.requests, req.Clone())
	w.s.byPair[key] = append(w.s.byPair[key], req.ID)
	w.s.byRecord[req.RecordID] = append(w.s.byRecord[req.RecordID], req.ID)
	w.s.byRequester[req.Requester] = append(w.s.byRequester[req.Requester], req.ID)
	return nil
}

func (w *writer) UpdateAccessRequest(_ context.Context, req *accessmodels.AccessRequest) error {
	if req.ID.IsZero() || uint64(req.ID) > uint64(len(w.s.requests)) {
		return sentinel.ErrNotFound
	}
	if !w.ownRequests {
		w.s.requests = append([]*accessmodels.AccessRequest(nil), w.s.requests...)
		w.ownRequests = true
	}
	w.s.requests[req.ID-1] = req.Clone()
	return nil
}

var _ ledger.Store = (*Store)(nil)
