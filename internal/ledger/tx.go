package ledger

import (
	"context"
	"time"
)

// DefaultTxTimeout bounds a transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// TxObserver receives the outcome of every transaction run through a Transactor.
type TxObserver interface {
	ObserveTx(op string, mode string, d time.Duration, err error)
}

// Transactor is the services' entry point to a Store. It applies a default
// deadline, reports latency, and otherwise passes errors through untranslated
// so each caller can attach its own not-found message.
type Transactor struct {
	store    Store
	timeout  time.Duration
	observer TxObserver
}

// NewTransactor wraps store. A zero timeout means DefaultTxTimeout; observer may be nil.
func NewTransactor(store Store, timeout time.Duration, observer TxObserver) *Transactor {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &Transactor{store: store, timeout: timeout, observer: observer}
}

// Update runs fn as one atomic write transaction. An already cancelled
// context fails before anything is attempted.
func (t *Transactor) Update(ctx context.Context, op string, fn func(ctx context.Context, w Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := t.bound(ctx)
	defer cancel()

	start := time.Now()
	err := t.store.RunInTx(ctx, fn)
	t.observe(op, "update", start, err)
	return err
}

// Read runs fn against a consistent snapshot.
func (t *Transactor) Read(ctx context.Context, op string, fn func(ctx context.Context, r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := t.bound(ctx)
	defer cancel()

	start := time.Now()
	err := t.store.View(ctx, fn)
	t.observe(op, "read", start, err)
	return err
}

// Store exposes the wrapped backend for verification and health checks.
func (t *Transactor) Store() Store { return t.store }

func (t *Transactor) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.timeout)
}

func (t *Transactor) observe(op, mode string, start time.Time, err error) {
	if t.observer != nil {
		t.observer.ObserveTx(op, mode, time.Since(start), err)
	}
}
