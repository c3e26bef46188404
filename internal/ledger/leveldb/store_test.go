package leveldb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medledger/internal/ledger"
	"medledger/internal/ledger/ledgertest"
	"medledger/internal/ledger/leveldb"
)

func TestConformance(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		store, err := leveldb.OpenMemory()
		require.NoError(t, err)
		return store
	})
}

func TestChainSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ledger")

	store, err := leveldb.Open(dir)
	require.NoError(t, err)
	var last ledger.Entry
	for i := 0; i < 3; i++ {
		err := store.RunInTx(ctx, func(ctx context.Context, w ledger.Writer) error {
			var err error
			last, err = w.Append(ctx, ledger.Entry{Kind: ledger.KindRecordCreated, RecordID: 1, Actor: "0xabc"})
			return err
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := leveldb.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	report, err := ledger.VerifyStore(ctx, reopened)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, uint64(3), report.Height)
	assert.Equal(t, last.Hash, report.HeadHash)
}
