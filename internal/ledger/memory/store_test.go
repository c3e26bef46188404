package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medledger/internal/ledger"
	"medledger/internal/ledger/ledgertest"
	"medledger/internal/ledger/memory"
	recordmodels "medledger/internal/records/models"
	"medledger/pkg/platform/sentinel"
)

func TestConformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return memory.New() })
}

func TestPanicInsideTransactionRollsBack(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = store.RunInTx(ctx, func(ctx context.Context, w ledger.Writer) error {
			_, err := w.Append(ctx, ledger.Entry{Kind: ledger.KindRecordCreated, RecordID: 1, Actor: "0xabc"})
			require.NoError(t, err)
			panic("boom")
		})
	})

	err := store.View(ctx, func(ctx context.Context, r ledger.Reader) error {
		head, err := r.Head(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), head.Seq)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertRecordOutOfOrderConflicts(t *testing.T) {
	store := memory.New()
	err := store.RunInTx(context.Background(), func(ctx context.Context, w ledger.Writer) error {
		return w.InsertRecord(ctx, &recordmodels.Record{ID: 5, Owner: "0xabc"})
	})
	assert.True(t, errors.Is(err, sentinel.ErrConflict))
}

func TestViewDoesNotBlockWriters(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	inView := make(chan struct{})
	release := make(chan struct{})
	viewSeq := make(chan uint64, 1)
	go func() {
		_ = store.View(ctx, func(ctx context.Context, r ledger.Reader) error {
			close(inView)
			<-release
			head, _ := r.Head(ctx)
			viewSeq <- head.Seq
			return nil
		})
	}()
	<-inView

	committed := make(chan error, 1)
	go func() {
		committed <- store.RunInTx(ctx, func(ctx context.Context, w ledger.Writer) error {
			_, err := w.Append(ctx, ledger.Entry{Kind: ledger.KindRecordCreated, RecordID: 1, Actor: "0xabc"})
			return err
		})
	}()

	select {
	case err := <-committed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("write waited for an open view")
	}

	close(release)
	assert.Equal(t, uint64(0), <-viewSeq, "open view keeps its snapshot")

	err := store.View(ctx, func(ctx context.Context, r ledger.Reader) error {
		head, err := r.Head(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), head.Seq)
		return nil
	})
	require.NoError(t, err)
}

func TestFailedTransactionLeavesNoIndexes(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context, w ledger.Writer) error {
		require.NoError(t, w.InsertRecord(ctx, &recordmodels.Record{ID: 1, Owner: "0xabc"}))
		return errors.New("abort")
	})
	require.Error(t, err)

	err = store.View(ctx, func(ctx context.Context, r ledger.Reader) error {
		recs, err := r.RecordsByOwner(ctx, "0xabc")
		require.NoError(t, err)
		assert.Empty(t, recs)
		_, err = r.Record(ctx, 1)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}
