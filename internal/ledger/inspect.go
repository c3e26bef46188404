package ledger

import (
	"context"

	dErrors "medledger/pkg/domain-errors"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// Entries returns a page of the log after afterSeq. limit is clamped to
// [1, MaxPageSize]; zero means DefaultPageSize.
func (t *Transactor) Entries(ctx context.Context, afterSeq uint64, limit int) ([]Entry, error) {
	switch {
	case limit < 0:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "limit must not be negative")
	case limit == 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	var out []Entry
	err := t.Read(ctx, "ledger.entries", func(ctx context.Context, r Reader) error {
		var err error
		out, err = r.Entries(ctx, afterSeq, limit)
		return err
	})
	if err != nil {
		return nil, TranslateError(err, "ledger entry not found")
	}
	return out, nil
}

// Verify checks the whole chain from one snapshot.
func (t *Transactor) Verify(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, TranslateError(err, "")
	}
	report, err := VerifyStore(ctx, t.store)
	if err != nil {
		return Report{}, TranslateError(err, "")
	}
	return report, nil
}

// Ping reports whether the substrate answers a read.
func (t *Transactor) Ping(ctx context.Context) error {
	err := t.Read(ctx, "ledger.ping", func(ctx context.Context, r Reader) error {
		_, err := r.Head(ctx)
		return err
	})
	return TranslateError(err, "")
}
