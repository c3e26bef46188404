// Package postgres is the shared-database ledger backend on pgx.
//
// Writers take a row lock on ledger_writer_lock before touching the log, so
// write transactions are linearized across every process sharing the
// database. Reads run in REPEATABLE READ, read-only transactions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	accessmodels "medledger/internal/access/models"
	"medledger/internal/ledger"
	recordmodels "medledger/internal/records/models"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// Store is a ledger.Store in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and applies migrations.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// New wraps a pool whose schema is already migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RunInTx implements ledger.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, w ledger.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(ctx, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT id FROM ledger_writer_lock WHERE id = 1 FOR UPDATE"); err != nil {
		return classify(ctx, err)
	}
	if err := fn(ctx, &writer{reader: reader{tx: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// View implements ledger.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r ledger.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return classify(ctx, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return fn(ctx, reader{tx: tx})
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
}

const (
	entryColumns   = "seq, kind, record_id, request_id, actor, artifact_reference, metadata, at, prev_hash, hash"
	recordColumns  = "record_id, owner, artifact_reference, metadata, created_at, seq"
	requestColumns = "request_id, record_id, requester, status, requested_at, decided_at, decided_by, revoked_at, seq"
)

type reader struct {
	tx pgx.Tx
}

func (r reader) Head(ctx context.Context) (ledger.Entry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, "SELECT "+entryColumns+" FROM ledger_entries ORDER BY seq DESC LIMIT 1"))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, nil
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("Head: %w", err)
	}
	return e, nil
}

func (r reader) Entries(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Entry, error) {
	out := []ledger.Entry{}
	if limit <= 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE seq > $1 ORDER BY seq LIMIT $2",
		int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("Entries: %w", err)
	}
	defer rows.Close()
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
	rec, err := scanRecord(r.tx.QueryRow(ctx,
		"SELECT "+recordColumns+" FROM records WHERE record_id = $1", int64(recordID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Record: %w", err)
	}
	return rec, nil
}

func (r reader) RecordsByOwner(ctx context.Context, owner id.ParticipantID) ([]*recordmodels.Record, error) {
	rows, err := r.tx.Query(ctx,
		"SELECT "+recordColumns+" FROM records WHERE owner = $1 ORDER BY record_id", string(owner))
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
	req, err := scanRequest(r.tx.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE request_id = $1", int64(requestID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("AccessRequest: %w", err)
	}
	return req, nil
}

func (r reader) AccessRequestsForPair(ctx context.Context, recordID id.RecordID, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE record_id = $1 AND requester = $2 ORDER BY request_id",
		int64(recordID), string(requester))
}

func (r reader) AccessRequestsByRecord(ctx context.Context, recordID id.RecordID) ([]*accessmodels.AccessRequest, error) {
	return r.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE record_id = $1 ORDER BY request_id",
		int64(recordID))
}

func (r reader) AccessRequestsByRequester(ctx context.Context, requester id.ParticipantID) ([]*accessmodels.AccessRequest, error) {
	return r.queryRequests(ctx,
		"SELECT "+requestColumns+" FROM access_requests WHERE requester = $1 ORDER BY request_id",
		string(requester))
}

func (r reader) queryRequests(ctx context.Context, query string, args ...any) ([]*accessmodels.AccessRequest, error) {
	rows, err := r.tx.Query(ctx, query, args...)
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
	_, err = w.tx.Exec(ctx, `
INSERT INTO ledger_entries(`+entryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		int64(sealed.Seq), string(sealed.Kind), int64(sealed.RecordID), int64(sealed.RequestID),
		string(sealed.Actor), sealed.ArtifactReference, sealed.Metadata,
		sealed.At, sealed.PrevHash, sealed.Hash,
	)
	if err != nil {
		return ledger.Entry{}, translateWriteError("Append", err)
	}
	return sealed, nil
}

func (w *writer) NextRecordID(ctx context.Context) (id.RecordID, error) {
	var next int64
	if err := w.tx.QueryRow(ctx, "SELECT COALESCE(MAX(record_id), 0) + 1 FROM records").Scan(&next); err != nil {
		return 0, fmt.Errorf("NextRecordID: %w", err)
	}
	return id.RecordID(next), nil
}

func (w *writer) InsertRecord(ctx context.Context, rec *recordmodels.Record) error {
	_, err := w.tx.Exec(ctx, `
INSERT INTO records(`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(rec.ID), string(rec.Owner), rec.ArtifactReference, rec.Metadata, rec.CreatedAt, int64(rec.Seq),
	)
	if err != nil {
		return translateWriteError("InsertRecord", err)
	}
	return nil
}

func (w *writer) NextAccessRequestID(ctx context.Context) (id.AccessRequestID, error) {
	var next int64
	if err := w.tx.QueryRow(ctx, "SELECT COALESCE(MAX(request_id), 0) + 1 FROM access_requests").Scan(&next); err != nil {
		return 0, fmt.Errorf("NextAccessRequestID: %w", err)
	}
	return id.AccessRequestID(next), nil
}

// InsertAccessRequest relies on access_requests_one_pending to reject a second
// open request for the pair. A rejected insert aborts the transaction.
func (w *writer) InsertAccessRequest(ctx context.Context, req *accessmodels.AccessRequest) error {
	_, err := w.tx.Exec(ctx, `
INSERT INTO access_requests(`+requestColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		int64(req.ID), int64(req.RecordID), string(req.Requester), string(req.Status),
		req.RequestedAt, req.DecidedAt, string(req.DecidedBy), req.RevokedAt, int64(req.Seq),
	)
	if err != nil {
		return translateWriteError("InsertAccessRequest", err)
	}
	return nil
}

func (w *writer) UpdateAccessRequest(ctx context.Context, req *accessmodels.AccessRequest) error {
	tag, err := w.tx.Exec(ctx, `
UPDATE access_requests
SET status = $1, decided_at = $2, decided_by = $3, revoked_at = $4, seq = $5
WHERE request_id = $6`,
		string(req.Status), req.DecidedAt, string(req.DecidedBy), req.RevokedAt, int64(req.Seq), int64(req.ID),
	)
	if err != nil {
		return translateWriteError("UpdateAccessRequest", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const uniqueViolation = "23505"

func translateWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		e                    ledger.Entry
		seq, recordID, reqID int64
		kind, actor          string
	)
	if err := row.Scan(&seq, &kind, &recordID, &reqID, &actor,
		&e.ArtifactReference, &e.Metadata, &e.At, &e.PrevHash, &e.Hash); err != nil {
		return ledger.Entry{}, err
	}
	e.Seq = uint64(seq)
	e.Kind = ledger.Kind(kind)
	e.RecordID = id.RecordID(recordID)
	e.RequestID = id.AccessRequestID(reqID)
	e.Actor = id.ParticipantID(actor)
	e.At = e.At.UTC()
	return e, nil
}

func scanRecord(row pgx.Row) (*recordmodels.Record, error) {
	var (
		rec           recordmodels.Record
		recordID, seq int64
		owner         string
	)
	if err := row.Scan(&recordID, &owner, &rec.ArtifactReference, &rec.Metadata, &rec.CreatedAt, &seq); err != nil {
		return nil, err
	}
	rec.ID = id.RecordID(recordID)
	rec.Owner = id.ParticipantID(owner)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Seq = uint64(seq)
	return &rec, nil
}

func scanRequest(row pgx.Row) (*accessmodels.AccessRequest, error) {
	var (
		req                      accessmodels.AccessRequest
		requestID, recordID, seq int64
		requester, status, by    string
	)
	if err := row.Scan(&requestID, &recordID, &requester, &status, &req.RequestedAt,
		&req.DecidedAt, &by, &req.RevokedAt, &seq); err != nil {
		return nil, err
	}
	req.ID = id.AccessRequestID(requestID)
	req.RecordID = id.RecordID(recordID)
	req.Requester = id.ParticipantID(requester)
	req.Status = accessmodels.Status(status)
	req.RequestedAt = req.RequestedAt.UTC()
	req.DecidedAt = utcPtr(req.DecidedAt)
	req.RevokedAt = utcPtr(req.RevokedAt)
	req.DecidedBy = id.ParticipantID(by)
	req.Seq = uint64(seq)
	return &req, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ ledger.Store = (*Store)(nil)
