//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"medledger/internal/ledger"
	"medledger/internal/ledger/ledgertest"
	"medledger/internal/ledger/postgres"
	"medledger/pkg/testutil/containers"
)

func TestConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pg.Pool))

	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		require.NoError(t, pg.TruncateTables(ctx, "access_requests", "records", "ledger_entries"))
		return &unclosable{Store: postgres.New(pg.Pool)}
	})
}

// unclosable keeps the shared pool open across tests.
type unclosable struct {
	*postgres.Store
}

func (unclosable) Close() error { return nil }
