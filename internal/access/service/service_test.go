package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"medledger/internal/access/models"
	"medledger/internal/audit"
	"medledger/internal/ledger"
	"medledger/internal/ledger/memory"
	recordservice "medledger/internal/records/service"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/requestcontext"
)

const (
	patient  id.ParticipantID = "0x00000000000000000000000000000000000000a1"
	doctor   id.ParticipantID = "0x00000000000000000000000000000000000000d1"
	stranger id.ParticipantID = "0x00000000000000000000000000000000000000e1"
)

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Emit(_ context.Context, e audit.Event) { r.events = append(r.events, e) }

type ServiceSuite struct {
	suite.Suite
	store   *memory.Store
	records *recordservice.Service
	access  *Service
	auditor *recordingAuditor
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	tx := ledger.NewTransactor(s.store, 0, nil)
	s.auditor = &recordingAuditor{}
	s.records = recordservice.New(tx)
	s.access = New(tx, WithAuditor(s.auditor))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) newRecord() id.RecordID {
	rec, err := s.records.Create(s.ctx, patient, "cid:bafyrecord", "")
	s.Require().NoError(err)
	return rec.ID
}

func (s *ServiceSuite) height() uint64 {
	report, err := ledger.VerifyStore(s.ctx, s.store)
	s.Require().NoError(err)
	s.Require().True(report.Valid)
	return report.Height
}

func (s *ServiceSuite) TestRequest() {
	recordID := s.newRecord()

	s.Run("files a pending request", func() {
		req, err := s.access.Request(s.ctx, recordID, doctor)
		s.Require().NoError(err)
		s.Equal(id.AccessRequestID(1), req.ID)
		s.Equal(models.StatusPending, req.Status)
		s.Equal(doctor, req.Requester)
		s.Nil(req.DecidedAt)
		s.Equal(uint64(2), req.Seq)
	})

	s.Run("second pending request for the pair is a duplicate", func() {
		_, err := s.access.Request(s.ctx, recordID, doctor)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateRequest))
	})

	s.Run("unknown record is not found", func() {
		_, err := s.access.Request(s.ctx, 404, doctor)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("owner cannot request their own record", func() {
		_, err := s.access.Request(s.ctx, recordID, patient)
		s.True(dErrors.HasCode(err, dErrors.CodeSelfAccessDenied))
	})

	s.Run("failed requests append nothing", func() {
		s.Equal(uint64(2), s.height())
	})
}

func (s *ServiceSuite) TestDecide() {
	recordID := s.newRecord()

	s.Run("non-owner is forbidden and the request stays pending", func() {
		req, err := s.access.Request(s.ctx, recordID, doctor)
		s.Require().NoError(err)

		_, err = s.access.Decide(s.ctx, req.ID, stranger, true)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.access.Decide(s.ctx, req.ID, doctor, true)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "the requester cannot approve their own request")

		got, err := s.access.Get(s.ctx, req.ID, patient)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("owner approves", func() {
		approved, err := s.access.Decide(s.ctx, 1, patient, true)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
		s.Equal(patient, approved.DecidedBy)
		s.Require().NotNil(approved.DecidedAt)
	})

	s.Run("a decided request is no longer pending", func() {
		_, err := s.access.Decide(s.ctx, 1, patient, false)
		s.True(dErrors.HasCode(err, dErrors.CodeNotPending))
	})

	s.Run("non-owner learns nothing about state", func() {
		_, err := s.access.Decide(s.ctx, 1, stranger, false)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "forbidden wins over not_pending")
	})

	s.Run("unknown request is not found", func() {
		_, err := s.access.Decide(s.ctx, 77, patient, true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDenyIsTerminal() {
	recordID := s.newRecord()
	req, err := s.access.Request(s.ctx, recordID, doctor)
	s.Require().NoError(err)

	denied, err := s.access.Decide(s.ctx, req.ID, patient, false)
	s.Require().NoError(err)
	s.Equal(models.StatusDenied, denied.Status)

	_, err = s.access.Decide(s.ctx, req.ID, patient, true)
	s.True(dErrors.HasCode(err, dErrors.CodeNotPending))
	_, err = s.access.Revoke(s.ctx, req.ID, patient)
	s.True(dErrors.HasCode(err, dErrors.CodeNotApproved))

	s.Run("a new request may follow a denial", func() {
		again, err := s.access.Request(s.ctx, recordID, doctor)
		s.Require().NoError(err)
		s.Equal(id.AccessRequestID(2), again.ID)
	})
}

func (s *ServiceSuite) TestRevoke() {
	recordID := s.newRecord()
	req, err := s.access.Request(s.ctx, recordID, doctor)
	s.Require().NoError(err)

	s.Run("pending requests cannot be revoked", func() {
		_, err := s.access.Revoke(s.ctx, req.ID, patient)
		s.True(dErrors.HasCode(err, dErrors.CodeNotApproved))
	})

	_, err = s.access.Decide(s.ctx, req.ID, patient, true)
	s.Require().NoError(err)

	s.Run("non-owner cannot revoke", func() {
		_, err := s.access.Revoke(s.ctx, req.ID, doctor)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("owner revokes", func() {
		revoked, err := s.access.Revoke(s.ctx, req.ID, patient)
		s.Require().NoError(err)
		s.Equal(models.StatusRevoked, revoked.Status)
		s.Require().NotNil(revoked.RevokedAt)
		s.Require().NotNil(revoked.DecidedAt)
	})

	s.Run("revoked is terminal", func() {
		_, err := s.access.Revoke(s.ctx, req.ID, patient)
		s.True(dErrors.HasCode(err, dErrors.CodeNotApproved))
		_, err = s.access.Decide(s.ctx, req.ID, patient, true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotPending))
	})

	s.Run("every transition is one audited ledger entry", func() {
		s.Equal(uint64(4), s.height())
		s.Require().Len(s.auditor.events, 3)
		s.Equal(string(ledger.KindAccessRequested), s.auditor.events[0].Action)
		s.Equal(string(ledger.KindAccessApproved), s.auditor.events[1].Action)
		s.Equal(string(ledger.KindAccessRevoked), s.auditor.events[2].Action)
		s.Equal(doctor, s.auditor.events[2].Subject)
		s.Equal(patient, s.auditor.events[2].Actor)
	})
}

func (s *ServiceSuite) TestVisibility() {
	recordID := s.newRecord()
	req, err := s.access.Request(s.ctx, recordID, doctor)
	s.Require().NoError(err)

	_, err = s.access.Get(s.ctx, req.ID, doctor)
	s.NoError(err)
	_, err = s.access.Get(s.ctx, req.ID, patient)
	s.NoError(err)
	_, err = s.access.Get(s.ctx, req.ID, stranger)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	inbox, err := s.access.ListForRecord(s.ctx, recordID, patient)
	s.Require().NoError(err)
	s.Len(inbox, 1)
	_, err = s.access.ListForRecord(s.ctx, recordID, doctor)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.access.ListForRecord(s.ctx, 404, patient)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	mine, err := s.access.ListByRequester(s.ctx, doctor)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(req.ID, mine[0].ID)
	theirs, err := s.access.ListByRequester(s.ctx, stranger)
	s.Require().NoError(err)
	s.Empty(theirs)
}

func (s *ServiceSuite) TestConcurrentDuplicateRequests() {
	recordID := s.newRecord()
	const callers = 32

	var created, duplicates atomic.Int32
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := s.access.Request(s.ctx, recordID, doctor)
			switch {
			case err == nil:
				created.Add(1)
			case dErrors.HasCode(err, dErrors.CodeDuplicateRequest):
				duplicates.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), created.Load())
	s.Equal(int32(callers-1), duplicates.Load())
	s.Equal(uint64(2), s.height())
}

func (s *ServiceSuite) TestConcurrentDecisions() {
	recordID := s.newRecord()
	req, err := s.access.Request(s.ctx, recordID, doctor)
	s.Require().NoError(err)

	var decided, notPending atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		approve := i%2 == 0
		g.Go(func() error {
			_, err := s.access.Decide(s.ctx, req.ID, patient, approve)
			switch {
			case err == nil:
				decided.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotPending):
				notPending.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(int32(1), decided.Load())
	s.Equal(int32(7), notPending.Load())
}

func TestRequestWithCancelledContext(t *testing.T) {
	store := memory.New()
	tx := ledger.NewTransactor(store, 0, nil)
	rec, err := recordservice.New(tx).Create(context.Background(), patient, "cid:x", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(tx).Request(ctx, rec.ID, doctor)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
