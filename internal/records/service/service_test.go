package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"medledger/internal/audit"
	"medledger/internal/ledger"
	"medledger/internal/ledger/memory"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/requestcontext"
)

const (
	patient id.ParticipantID = "0x00000000000000000000000000000000000000a1"
	other   id.ParticipantID = "0x00000000000000000000000000000000000000b2"
)

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Emit(_ context.Context, e audit.Event) { r.events = append(r.events, e) }

type ServiceSuite struct {
	suite.Suite
	store   *memory.Store
	auditor *recordingAuditor
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.auditor = &recordingAuditor{}
	s.service = New(ledger.NewTransactor(s.store, 0, nil), WithAuditor(s.auditor))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) TestCreate() {
	s.Run("assigns ids from 1 and trims the reference", func() {
		rec, err := s.service.Create(s.ctx, patient, "  cid:bafy123  ", `{"type":"lab"}`)
		s.Require().NoError(err)
		s.Equal(id.RecordID(1), rec.ID)
		s.Equal(patient, rec.Owner)
		s.Equal("cid:bafy123", rec.ArtifactReference)
		s.Equal(`{"type":"lab"}`, rec.Metadata)
		s.Equal(uint64(1), rec.Seq)
		s.True(rec.CreatedAt.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))

		second, err := s.service.Create(s.ctx, patient, "cid:two", "")
		s.Require().NoError(err)
		s.Equal(id.RecordID(2), second.ID)
	})

	s.Run("emits one audit event per record", func() {
		s.Require().Len(s.auditor.events, 2)
		s.Equal(string(ledger.KindRecordCreated), s.auditor.events[0].Action)
		s.Equal(id.RecordID(1), s.auditor.events[0].RecordID)
		s.NotEmpty(s.auditor.events[0].EntryHash)
	})

	s.Run("stored record matches the returned one", func() {
		got, err := s.service.Get(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal("cid:bafy123", got.ArtifactReference)
	})
}

func (s *ServiceSuite) TestCreateValidation() {
	cases := []struct {
		name     string
		owner    id.ParticipantID
		ref      string
		metadata string
	}{
		{name: "unresolved owner", owner: "", ref: "cid:x"},
		{name: "empty reference", owner: patient, ref: ""},
		{name: "whitespace reference", owner: patient, ref: " \t\n"},
		{name: "oversized reference", owner: patient, ref: strings.Repeat("a", MaxArtifactReferenceBytes+1)},
		{name: "oversized metadata", owner: patient, ref: "cid:x", metadata: strings.Repeat("m", MaxMetadataBytes+1)},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Create(s.ctx, tc.owner, tc.ref, tc.metadata)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}

	report, err := ledger.VerifyStore(s.ctx, s.store)
	s.Require().NoError(err)
	s.Equal(uint64(0), report.Height, "rejected creations append nothing")
	s.Empty(s.auditor.events)
}

func (s *ServiceSuite) TestGetUnknown() {
	_, err := s.service.Get(s.ctx, 99)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListByOwner() {
	_, err := s.service.Create(s.ctx, patient, "cid:a", "")
	s.Require().NoError(err)
	_, err = s.service.Create(s.ctx, other, "cid:b", "")
	s.Require().NoError(err)
	_, err = s.service.Create(s.ctx, patient, "cid:c", "")
	s.Require().NoError(err)

	mine, err := s.service.ListByOwner(s.ctx, patient)
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(id.RecordID(1), mine[0].ID)
	s.Equal(id.RecordID(3), mine[1].ID)

	none, err := s.service.ListByOwner(s.ctx, "0x00000000000000000000000000000000000000c3")
	s.Require().NoError(err)
	s.Empty(none)
}

func TestCreateWithCancelledContext(t *testing.T) {
	store := memory.New()
	svc := New(ledger.NewTransactor(store, 0, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Create(ctx, patient, "cid:x", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))

	report, err := ledger.VerifyStore(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), report.Height)
}
