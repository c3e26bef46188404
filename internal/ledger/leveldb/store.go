// Package leveldb is the embedded key-value ledger backend.
//
// Key layout (all numbers zero padded to 20 digits so byte order is numeric order):
//
//	entry/<seq>                         ledger.Entry JSON
//	rec/<record>                        record JSON
//	req/<request>                       access request JSON
//	idx/owner/<owner>/<record>          empty
//	idx/pair/<record>/<requester>/<req> empty
//	idx/record/<record>/<req>           empty
//	idx/requester/<requester>/<req>     empty
//	pending/<record>/<requester>        request id of the open request
//
// Writes run inside a leveldb.Transaction, which the library admits one at a
// time and commits atomically. Reads run against a snapshot.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	accessmodels "medledger/internal/access/models"
	"medledger/internal/ledger"
	recordmodels "medledger/internal/records/models"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// Store is a ledger.Store on goleveldb.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if needed) the database directory at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Strict: opt.DefaultStrict})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a store backed by process memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

var syncWrites = &opt.WriteOptions{Sync: true}

// RunInTx implements ledger.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, w ledger.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return unavailable(err)
	}
	committed := false
	defer func() {
		if !committed {
			tr.Discard()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, &writer{reader: reader{kv: tr}, tr: tr}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tr.Commit(); err != nil {
		return unavailable(err)
	}
	committed = true
	return nil
}

// View implements ledger.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return unavailable(err)
	}
	defer snap.Release()
	return fn(ctx, reader{kv: snap})
}

// Close implements ledger.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
}

// kv is what both *leveldb.Snapshot and *leveldb.Transaction offer for reads.
type kv interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

func pad(n uint64) string { return fmt.Sprintf("%020d", n) }

func entryKey(seq uint64) []byte { return []byte("entry/" + pad(seq)) }

func recordKey(r id.RecordID) []byte { return []byte("rec/" + pad(uint64(r))) }

func requestKey(r id.AccessRequestID) []byte { return []byte("req/" + pad(uint64(r))) }

func pendingKey(r id.RecordID, p id.ParticipantID) []byte {
	return []byte("pending/" + pad(uint64(r)) + "/" + string(p))
}

func ownerPrefix(owner id.ParticipantID) string { return "idx/owner/" + string(owner) + "/" }

func pairPrefix(r id.RecordID, p id.ParticipantID) string {
	return "idx/pair/" + pad(uint64(r)) + "/" + string(p) + "/"
}

func recordIdxPrefix(r id.RecordID) string { return "idx/record/" + pad(uint64(r)) + "/" }

func requesterPrefix(p id.ParticipantID) string { return "idx/requester/" + string(p) + "/" }

type reader struct {
	kv kv
}

func (r reader) getJSON(key []byte, dst any) error {
	b, err := r.kv.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// lastKey returns the greatest key under prefix, or nil when there is none.
func (r reader) lastKey(prefix string) ([]byte, error) {
	it := r.kv.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	var last []byte
	if it.Last() {
		last = append([]byte{}, it.Key()...)
	}
	return last, it.Error()
}

// suffixIDs lists the trailing numeric segment of every key under prefix.
func (r reader) suffixIDs(prefix string) ([]uint64, error) {
	it := r.kv.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	var out []uint64
	for it.Next() {
		n, err := strconv.ParseUint(string(it.Key()[len(prefix):]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt index key %q: %w", it.Key(), err)
		}
		out = append(out, n)
	}
	return out, it.Error()
}

func (r reader) Head(_ context.Context) (ledger.Entry, error) {
	key, err := r.lastKey("entry/")
	if err != nil {
		return ledger.Entry{}, unavailable(err)
	}
	if key == nil {
		return ledger.Entry{}, nil
	}
	var e ledger.Entry
	if err := r.getJSON(key, &e); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (r reader) Entries(_ context.Context, afterSeq uint64, limit int) ([]ledger.Entry, error) {
	out := []ledger.Entry{}
	if limit <= 0 {
		return out, nil
	}
	it := r.kv.NewIterator(&util.Range{Start: entryKey(afterSeq + 1), Limit: []byte("entry0")}, nil)
	defer it.Release()
	for it.Next() && len(out) < limit {
		var e ledger.Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", it.Key(), err)
		}
		out = append(out, e)
	}
	if err := it.Error(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (r reader) Record(_ context.Context, recordID id.RecordID) (*recordmodels.Record, error) {
	var rec recordmodels.Record
	if err := r.getJSON(recordKey(recordID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r reader) RecordsByOwner(ctx context.Context, owner id.ParticipantID) ([]*recordmodels.Record, error) {
	ids, err := r.suffixIDs(ownerPrefix(owner))
	if err != nil {
		return nil, err
	}
	out := make([]*recordmodels.Record, 0, len(ids))
	for _, n := range ids {
		rec, err := r.Record(ctx, id.RecordID(n))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r reader) AccessRequest(_ context.Context, requestID id.AccessRequestID) (*accessmodels.AccessRequest, error) {
	var req accessmodels.AccessRequest
	if err := r.getJSON(requestKey(requestID), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r reader) AccessRequestsForPair(ctx context.Context, recordID id.RecordID, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.requestsUnder(ctx, pairPrefix(recordID, requester))
}

func (r reader) AccessRequestsByRecord(ctx context.Context, recordID id.RecordID) ([]*accessmodels.AccessRequest, error) {
	return r.requestsUnder(ctx, recordIdxPrefix(recordID))
}

func (r reader) AccessRequestsByRequester(ctx context.Context, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.requestsUnder(ctx, requesterPrefix(requester))
}

func (r reader) requestsUnder(ctx context.Context, prefix string) ([]*accessmodels.AccessRequest, error) {
	ids, err := r.suffixIDs(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]*accessmodels.AccessRequest, 0, len(ids))
	for _, n := range ids {
		req, err := r.AccessRequest(ctx, id.AccessRequestID(n))
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

type writer struct {
	reader
	tr *leveldb.Transaction
}

func (w *writer) put(key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := w.tr.Put(key, b, syncWrites); err != nil {
		return unavailable(err)
	}
	return nil
}

func (w *writer) mark(key string) error {
	if err := w.tr.Put([]byte(key), nil, syncWrites); err != nil {
		return unavailable(err)
	}
	return nil
}

func (w *writer) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	head, err := w.Head(ctx)
	if err != nil {
		return ledger.Entry{}, err
	}
	sealed := ledger.Link(head, e)
	if err := w.put(entryKey(sealed.Seq), sealed); err != nil {
		return ledger.Entry{}, err
	}
	return sealed, nil
}

func (w *writer) nextID(prefix string) (uint64, error) {
	key, err := w.lastKey(prefix)
	if err != nil {
		return 0, unavailable(err)
	}
	if key == nil {
		return 1, nil
	}
	n, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt key %q: %w", key, err)
	}
	return n + 1, nil
}

func (w *writer) NextRecordID(_ context.Context) (id.RecordID, error) {
	n, err := w.nextID("rec/")
	return id.RecordID(n), err
}

func (w *writer) InsertRecord(_ context.Context, rec *recordmodels.Record) error {
	exists, err := w.kv.Has(recordKey(rec.ID), nil)
	if err != nil {
		return unavailable(err)
	}
	if exists {
		return sentinel.ErrConflict
	}
	if err := w.put(recordKey(rec.ID), rec); err != nil {
		return err
	}
	return w.mark(ownerPrefix(rec.Owner) + pad(uint64(rec.ID)))
}

func (w *writer) NextAccessRequestID(_ context.Context) (id.AccessRequestID, error) {
	n, err := w.nextID("req/")
	return id.AccessRequestID(n), err
}

func (w *writer) InsertAccessRequest(_ context.Context, req *accessmodels.AccessRequest) error {
	exists, err := w.kv.Has(requestKey(req.ID), nil)
	if err != nil {
		return unavailable(err)
	}
	if exists {
		return sentinel.ErrConflict
	}
	if req.Status == accessmodels.StatusPending {
		open, err := w.kv.Has(pendingKey(req.RecordID, req.Requester), nil)
		if err != nil {
			return unavailable(err)
		}
		if open {
			return sentinel.ErrConflict
		}
		if err := w.tr.Put(pendingKey(req.RecordID, req.Requester), []byte(pad(uint64(req.ID))), syncWrites); err != nil {
			return unavailable(err)
		}
	}

	if err := w.put(requestKey(req.ID), req); err != nil {
		return err
	}
	suffix := pad(uint64(req.ID))
	for _, prefix := range []string{
		pairPrefix(req.RecordID, req.Requester),
		recordIdxPrefix(req.RecordID),
		requesterPrefix(req.Requester),
	} {
		if err := w.mark(prefix + suffix); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) UpdateAccessRequest(ctx context.Context, req *accessmodels.AccessRequest) error {
	prev, err := w.AccessRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	if prev.Status == accessmodels.StatusPending && req.Status != accessmodels.StatusPending {
		if err := w.tr.Delete(pendingKey(prev.RecordID, prev.Requester), syncWrites); err != nil {
			return unavailable(err)
		}
	}
	return w.put(requestKey(req.ID), req)
}

var _ ledger.Store = (*Store)(nil)
