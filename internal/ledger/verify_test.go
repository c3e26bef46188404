package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
)

func buildChain(t *testing.T, n int) []Entry {
	t.Helper()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var head Entry
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		e := Link(head, Entry{
			Kind:     KindAccessRequested,
			RecordID: id.RecordID(1),
			Actor:    id.ParticipantID("0x00000000000000000000000000000000000000d0"),
			At:       base.Add(time.Duration(i) * time.Second),
		})
		out = append(out, e)
		head = e
	}
	return out
}

func TestLink(t *testing.T) {
	t.Run("first entry points at genesis", func(t *testing.T) {
		e := Link(Entry{}, Entry{Kind: KindRecordCreated, RecordID: 1, At: time.Now()})
		assert.Equal(t, uint64(1), e.Seq)
		assert.Equal(t, GenesisHash, e.PrevHash)
		assert.Equal(t, ComputeHash(e), e.Hash)
	})

	t.Run("time never runs backwards", func(t *testing.T) {
		at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
		first := Link(Entry{}, Entry{Kind: KindRecordCreated, RecordID: 1, At: at})
		second := Link(first, Entry{Kind: KindRecordCreated, RecordID: 2, At: at.Add(-time.Hour)})
		assert.Equal(t, first.At, second.At)
		assert.Equal(t, first.Hash, second.PrevHash)
	})

	t.Run("time is truncated to microseconds in UTC", func(t *testing.T) {
		loc := time.FixedZone("X", 3600)
		at := time.Date(2024, 5, 1, 9, 0, 0, 123456789, loc)
		e := Link(Entry{}, Entry{Kind: KindRecordCreated, RecordID: 1, At: at})
		assert.Equal(t, time.UTC, e.At.Location())
		assert.Equal(t, 123456000, e.At.Nanosecond())
	})
}

func TestVerify_DetectsTampering(t *testing.T) {
	chain := buildChain(t, 5)
	require.NoError(t, Verify(Entry{}, chain))

	tamper := []struct {
		name   string
		mutate func(e *Entry)
	}{
		{"actor", func(e *Entry) { e.Actor = "0x00000000000000000000000000000000000000ff" }},
		{"kind", func(e *Entry) { e.Kind = KindAccessApproved }},
		{"record", func(e *Entry) { e.RecordID = 2 }},
		{"metadata", func(e *Entry) { e.Metadata = "edited" }},
		{"time", func(e *Entry) { e.At = e.At.Add(time.Microsecond) }},
		{"prev hash", func(e *Entry) { e.PrevHash = GenesisHash }},
	}
	for _, tt := range tamper {
		t.Run(tt.name, func(t *testing.T) {
			edited := append([]Entry(nil), chain...)
			tt.mutate(&edited[2])

			err := Verify(Entry{}, edited)
			require.Error(t, err)
			var ce *ChainError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, uint64(3), ce.Seq)
		})
	}

	t.Run("dropped entry", func(t *testing.T) {
		edited := append(append([]Entry(nil), chain[:2]...), chain[3:]...)
		require.Error(t, Verify(Entry{}, edited))
	})
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, TranslateError(nil, "x"))
	assert.True(t, dErrors.HasCode(TranslateError(sentinel.ErrNotFound, "record not found"), dErrors.CodeNotFound))
	assert.True(t, dErrors.HasCode(TranslateError(sentinel.ErrUnavailable, "x"), dErrors.CodeSubstrateUnavailable))
	assert.True(t, dErrors.HasCode(TranslateError(context.Canceled, "x"), dErrors.CodeTimeout))
	assert.True(t, dErrors.HasCode(TranslateError(errors.New("disk"), "x"), dErrors.CodeInternal))

	domain := dErrors.New(dErrors.CodeDuplicateRequest, "pending request exists")
	assert.Same(t, domain, TranslateError(domain, "x"))
}
