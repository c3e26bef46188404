package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	accessmodels "medledger/internal/access/models"
	"medledger/internal/ledger"
	recordmodels "medledger/internal/records/models"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// Store is a ledger.Store persisted in SQLite.
type Store struct {
	db     *sql.DB
	writer *Worker
}

// New wraps an already migrated database. The Store owns db from here on.
func New(db *sql.DB) *Store {
	return &Store{db: db, writer: NewWorker(db)}
}

// OpenStore opens the database at cfg.Path and wraps it.
func OpenStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// RunInTx implements ledger.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, w ledger.Writer) error) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &writer{reader: reader{tx: tx}})
	})
}

// View implements ledger.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(ctx, reader{tx: tx})
}

// Close stops the writer and closes the database.
func (s *Store) Close() error {
	s.writer.Close()
	return s.db.Close()
}

const (
	entryColumns   = "seq, kind, record_id, request_id, actor, artifact_reference, metadata, at_us, prev_hash, hash"
	recordColumns  = "record_id, owner, artifact_reference, metadata, created_at_us, seq"
	requestColumns = "request_id, record_id, requester, status, requested_at_us, decided_at_us, decided_by, revoked_at_us, seq"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type reader struct {
	tx *sql.Tx
}

func (r reader) Head(ctx context.Context) (ledger.Entry, error) {
	row := r.tx.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM ledger_entries ORDER BY seq DESC LIMIT 1;")
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, nil
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("Head: %w", err)
	}
	return e, nil
}

func (r reader) Entries(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		return []ledger.Entry{}, nil
	}
	rows, err := r.tx.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE seq > ? ORDER BY seq LIMIT ?;",
		int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("Entries: %w", err)
	}
	defer rows.Close()

	out := []ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("Entries scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r reader) Record(ctx context.Context, recordID id.RecordID) (*recordmodels.Record, error) {
	row := r.tx.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE record_id = ?;", int64(recordID))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Record: %w", err)
	}
	return rec, nil
}

func (r reader) RecordsByOwner(ctx context.Context, owner id.ParticipantID) ([]*recordmodels.Record, error) {
	rows, err := r.tx.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE owner = ? ORDER BY record_id;", string(owner))
	if err != nil {
		return nil, fmt.Errorf("RecordsByOwner: %w", err)
	}
	defer rows.Close()

	out := []*recordmodels.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("RecordsByOwner scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r reader) AccessRequest(ctx context.Context, requestID id.AccessRequestID) (*accessmodels.AccessRequest, error) {
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE request_id = ?;", int64(requestID))
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("AccessRequest: %w", err)
	}
	return req, nil
}

func (r reader) AccessRequestsForPair(ctx context.Context, recordID id.RecordID, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE record_id = ? AND requester = ? ORDER BY request_id;",
		int64(recordID), string(requester))
}

func (r reader) AccessRequestsByRecord(ctx context.Context, recordID id.RecordID) ([]*accessmodels.AccessRequest, error) {
	return r.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE record_id = ? ORDER BY request_id;",
		int64(recordID))
}

func (r reader) AccessRequestsByRequester(ctx context.Context, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE requester = ? ORDER BY request_id;",
		string(requester))
}

func (r reader) queryRequests(ctx context.Context, query string, args ...any) ([]*accessmodels.AccessRequest, error) {
	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access requests: %w", err)
	}
	defer rows.Close()

	out := []*accessmodels.AccessRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type writer struct {
	reader
}

func (w *writer) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	head, err := w.Head(ctx)
	if err != nil {
		return ledger.Entry{}, err
	}
	sealed := ledger.Link(head, e)
	if _, err := w.tx.ExecContext(ctx, `
INSERT INTO ledger_entries(`+entryColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		int64(sealed.Seq), string(sealed.Kind), int64(sealed.RecordID), int64(sealed.RequestID),
		string(sealed.Actor), sealed.ArtifactReference, sealed.Metadata,
		sealed.At.UnixMicro(), sealed.PrevHash, sealed.Hash,
	); err != nil {
		return ledger.Entry{}, translateWriteError("Append", err)
	}
	return sealed, nil
}

func (w *writer) NextRecordID(ctx context.Context) (id.RecordID, error) {
	var next int64
	if err := w.tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(record_id), 0) + 1 FROM records;").Scan(&next); err != nil {
		return 0, fmt.Errorf("NextRecordID: %w", err)
	}
	return id.RecordID(next), nil
}

func (w *writer) InsertRecord(ctx context.Context, rec *recordmodels.Record) error {
	if _, err := w.tx.ExecContext(ctx, `
INSERT INTO records(`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?);
`,
		int64(rec.ID), string(rec.Owner), rec.ArtifactReference, rec.Metadata,
		rec.CreatedAt.UnixMicro(), int64(rec.Seq),
	); err != nil {
		return translateWriteError("InsertRecord", err)
	}
	return nil
}

func (w *writer) NextAccessRequestID(ctx context.Context) (id.AccessRequestID, error) {
	var next int64
	if err := w.tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(request_id), 0) + 1 FROM access_requests;").Scan(&next); err != nil {
		return 0, fmt.Errorf("NextAccessRequestID: %w", err)
	}
	return id.AccessRequestID(next), nil
}

func (w *writer) InsertAccessRequest(ctx context.Context, req *accessmodels.AccessRequest) error {
	if _, err := w.tx.ExecContext(ctx, `
INSERT INTO access_requests(`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		int64(req.ID), int64(req.RecordID), string(req.Requester), string(req.Status),
		req.RequestedAt.UnixMicro(), nullMicros(req.DecidedAt), string(req.DecidedBy),
		nullMicros(req.RevokedAt), int64(req.Seq),
	); err != nil {
		return translateWriteError("InsertAccessRequest", err)
	}
	return nil
}

func (w *writer) UpdateAccessRequest(ctx context.Context, req *accessmodels.AccessRequest) error {
	res, err := w.tx.ExecContext(ctx, `
UPDATE access_requests
SET status = ?, decided_at_us = ?, decided_by = ?, revoked_at_us = ?, seq = ?
WHERE request_id = ?;
`,
		string(req.Status), nullMicros(req.DecidedAt), string(req.DecidedBy),
		nullMicros(req.RevokedAt), int64(req.Seq), int64(req.ID),
	)
	if err != nil {
		return translateWriteError("UpdateAccessRequest", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateAccessRequest rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func translateWriteError(op string, err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL:
			return fmt.Errorf("%s: %w: %v", op, sentinel.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var (
		e                          ledger.Entry
		seq, recordID, reqID, atUS int64
		kind, actor                string
	)
	if err := row.Scan(&seq, &kind, &recordID, &reqID, &actor,
		&e.ArtifactReference, &e.Metadata, &atUS, &e.PrevHash, &e.Hash); err != nil {
		return ledger.Entry{}, err
	}
	e.Seq = uint64(seq)
	e.Kind = ledger.Kind(kind)
	e.RecordID = id.RecordID(recordID)
	e.RequestID = id.AccessRequestID(reqID)
	e.Actor = id.ParticipantID(actor)
	e.At = fromMicros(atUS)
	return e, nil
}

func scanRecord(row rowScanner) (*recordmodels.Record, error) {
	var (
		rec                      recordmodels.Record
		recordID, seq, createdUS int64
		owner                    string
	)
	if err := row.Scan(&recordID, &owner, &rec.ArtifactReference, &rec.Metadata, &createdUS, &seq); err != nil {
		return nil, err
	}
	rec.ID = id.RecordID(recordID)
	rec.Owner = id.ParticipantID(owner)
	rec.CreatedAt = fromMicros(createdUS)
	rec.Seq = uint64(seq)
	return &rec, nil
}

func scanRequest(row rowScanner) (*accessmodels.AccessRequest, error) {
	var (
		req                                   accessmodels.AccessRequest
		requestID, recordID, seq, requestedUS int64
		requester, status, by                 string
		decidedAt, revokedAt                  sql.NullInt64
	)
	if err := row.Scan(&requestID, &recordID, &requester, &status, &requestedUS,
		&decidedAt, &by, &revokedAt, &seq); err != nil {
		return nil, err
	}
	req.ID = id.AccessRequestID(requestID)
	req.RecordID = id.RecordID(recordID)
	req.Requester = id.ParticipantID(requester)
	req.Status = accessmodels.Status(status)
	req.RequestedAt = fromMicros(requestedUS)
	req.DecidedBy = id.ParticipantID(by)
	req.DecidedAt = fromNullMicros(decidedAt)
	req.RevokedAt = fromNullMicros(revokedAt)
	req.Seq = uint64(seq)
	return &req, nil
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func fromNullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullMicros(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMicro()
}

var _ ledger.Store = (*Store)(nil)
