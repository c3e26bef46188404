package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"medledger/pkg/platform/sentinel"
)

// TxFn is the body of a write transaction.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker runs write transactions one at a time in submission order.
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}
}

// NewWorker starts the write loop. Close stops it after draining queued jobs.
func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) Close() {
	close(w.jobs)
	<-w.done
}

// Do queues fn and waits for its outcome. A caller whose context ends while
// the job is still queued gets ctx.Err(). Once the job has started, Do waits
// for it: the transaction is bound to ctx, so cancellation rolls it back and
// the returned error always matches what was committed.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	select {
	case w.jobs <- job{ctx: ctx, fn: fn, ch: ch}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-ch
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		j.ch <- w.run(j)
	}
}

func (w *Worker) run(j job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return classify(j.ctx, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("sqlite transaction panicked: %v", p)
		}
	}()

	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(j.ctx, err)
	}
	return nil
}

// classify turns driver failures outside fn into the errors callers map.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
}
