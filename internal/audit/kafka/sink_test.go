package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"medledger/internal/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Close() { f.closed = true }

func TestAppendKeysByRecord(t *testing.T) {
	producer := &fakeProducer{}
	sink := New(producer, "medledger.audit")

	event := audit.Event{Action: "access_approved", RecordID: 7, AccessRequestID: 3, Actor: "0xabc", Seq: 12}
	require.NoError(t, sink.Append(context.Background(), event))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "medledger.audit", rec.Topic)
	assert.Equal(t, "7", string(rec.Key))
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "access_approved", string(rec.Headers[0].Value))

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, event.AccessRequestID, decoded.AccessRequestID)
	assert.Equal(t, event.Seq, decoded.Seq)

	sink.Close()
	assert.True(t, producer.closed)
}

func TestAppendSurfacesProduceError(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	sink := New(producer, "medledger.audit")

	err := sink.Append(context.Background(), audit.Event{Action: "record_created", RecordID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
