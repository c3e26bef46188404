package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medledger/internal/ledger"
	"medledger/internal/ledger/memory"
)

func newRouter(t *testing.T, entries int) (chi.Router, *ledger.Transactor) {
	t.Helper()
	tx := ledger.NewTransactor(memory.New(), 0, nil)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range entries {
		err := tx.Update(context.Background(), "test.append", func(ctx context.Context, w ledger.Writer) error {
			_, err := w.Append(ctx, ledger.Entry{
				Kind:     ledger.KindRecordCreated,
				RecordID: 1,
				Actor:    "0x00000000000000000000000000000000000000a1",
				At:       base.Add(time.Duration(i) * time.Second),
			})
			return err
		})
		require.NoError(t, err)
	}
	r := chi.NewRouter()
	New(tx, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, tx
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHandleEntries(t *testing.T) {
	r, _ := newRouter(t, 3)

	t.Run("pages with a cursor", func(t *testing.T) {
		rr := get(r, "/ledger/entries?limit=2")
		require.Equal(t, http.StatusOK, rr.Code)
		var resp EntriesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, uint64(2), resp.Next)

		rr = get(r, "/ledger/entries?limit=2&after=2")
		require.Equal(t, http.StatusOK, rr.Code)
		var last EntriesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &last))
		require.Len(t, last.Entries, 1)
		assert.Equal(t, uint64(3), last.Entries[0].Seq)
		assert.Zero(t, last.Next)
	})

	t.Run("past the head is empty", func(t *testing.T) {
		rr := get(r, "/ledger/entries?after=10")
		assert.JSONEq(t, `{"entries":[]}`, rr.Body.String())
	})

	t.Run("bad parameters", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(r, "/ledger/entries?after=-1").Code)
		assert.Equal(t, http.StatusBadRequest, get(r, "/ledger/entries?limit=0").Code)
		assert.Equal(t, http.StatusBadRequest, get(r, "/ledger/entries?limit=ten").Code)
	})
}

func TestHandleVerify(t *testing.T) {
	r, _ := newRouter(t, 2)

	rr := get(r, "/ledger/verify")

	require.Equal(t, http.StatusOK, rr.Code)
	var report ledger.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, uint64(2), report.Height)
	assert.NotEmpty(t, report.HeadHash)
}
