package gate

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	accessmetrics "medledger/internal/access/metrics"
	accessservice "medledger/internal/access/service"
	"medledger/internal/audit"
	"medledger/internal/ledger"
	"medledger/internal/ledger/memory"
	recordservice "medledger/internal/records/service"
	id "medledger/pkg/domain"
	dErrors "medledger/pkg/domain-errors"
	"medledger/pkg/platform/sentinel"
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

type GateSuite struct {
	suite.Suite
	store   *memory.Store
	records *recordservice.Service
	access  *accessservice.Service
	gate    *Gate
	metrics *accessmetrics.Metrics
	auditor *recordingAuditor
	ctx     context.Context
	record  id.RecordID
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.store = memory.New()
	tx := ledger.NewTransactor(s.store, 0, nil)
	s.metrics = accessmetrics.New(prometheus.NewRegistry())
	s.auditor = &recordingAuditor{}
	s.records = recordservice.New(tx)
	s.access = accessservice.New(tx)
	s.gate = New(tx, WithMetrics(s.metrics), WithAuditor(s.auditor))
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))

	rec, err := s.records.Create(s.ctx, patient, "cid:bafyrecord", "")
	s.Require().NoError(err)
	s.record = rec.ID
}

func (s *GateSuite) check(participant id.ParticipantID) Decision {
	d, err := s.gate.Check(s.ctx, s.record, participant)
	s.Require().NoError(err)
	return d
}

func (s *GateSuite) TestOwnerAlwaysAllowed() {
	s.Equal(Decision{Allowed: true, Reason: ReasonOwner}, s.check(patient))

	// Owner access does not depend on any grant history.
	req, err := s.access.Request(s.ctx, s.record, doctor)
	s.Require().NoError(err)
	_, err = s.access.Decide(s.ctx, req.ID, patient, false)
	s.Require().NoError(err)
	s.True(s.gate.CanAccess(s.ctx, s.record, patient))
}

func (s *GateSuite) TestGrantLifecycle() {
	s.Equal(Decision{Reason: ReasonNoGrant}, s.check(doctor))

	req, err := s.access.Request(s.ctx, s.record, doctor)
	s.Require().NoError(err)
	s.False(s.gate.CanAccess(s.ctx, s.record, doctor), "pending confers nothing")

	_, err = s.access.Decide(s.ctx, req.ID, patient, true)
	s.Require().NoError(err)
	s.Equal(Decision{Allowed: true, Reason: ReasonGranted}, s.check(doctor))
	s.False(s.gate.CanAccess(s.ctx, s.record, stranger), "grants are per participant")

	_, err = s.access.Revoke(s.ctx, req.ID, patient)
	s.Require().NoError(err)
	s.Equal(Decision{Reason: ReasonNoGrant}, s.check(doctor))
}

func (s *GateSuite) TestReRequestKeepsExistingGrant() {
	first, err := s.access.Request(s.ctx, s.record, doctor)
	s.Require().NoError(err)
	_, err = s.access.Decide(s.ctx, first.ID, patient, true)
	s.Require().NoError(err)

	second, err := s.access.Request(s.ctx, s.record, doctor)
	s.Require().NoError(err)
	s.Equal(Decision{Allowed: true, Reason: ReasonGranted}, s.check(doctor))

	_, err = s.access.Decide(s.ctx, second.ID, patient, false)
	s.Require().NoError(err)
	s.Equal(Decision{Allowed: true, Reason: ReasonGranted}, s.check(doctor), "denying the new request leaves the old grant")

	_, err = s.access.Revoke(s.ctx, first.ID, patient)
	s.Require().NoError(err)
	s.Equal(Decision{Reason: ReasonNoGrant}, s.check(doctor))
}

func (s *GateSuite) TestGrantAfterRevokeNeedsNewApproval() {
	first, err := s.access.Request(s.ctx, s.record, doctor)
	s.Require().NoError(err)
	_, err = s.access.Decide(s.ctx, first.ID, patient, true)
	s.Require().NoError(err)
	_, err = s.access.Revoke(s.ctx, first.ID, patient)
	s.Require().NoError(err)

	second, err := s.access.Request(s.ctx, s.record, doctor)
	s.Require().NoError(err)
	s.False(s.gate.CanAccess(s.ctx, s.record, doctor))

	_, err = s.access.Decide(s.ctx, second.ID, patient, true)
	s.Require().NoError(err)
	s.True(s.gate.CanAccess(s.ctx, s.record, doctor))
}

func (s *GateSuite) TestUnknownRecord() {
	d, err := s.gate.Check(s.ctx, 404, patient)
	s.Require().NoError(err)
	s.Equal(Decision{Reason: ReasonUnknownRecord}, d)
}

func (s *GateSuite) TestZeroParticipantDenied() {
	s.Equal(Decision{Reason: ReasonNoGrant}, s.check(""))
}

func (s *GateSuite) TestChecksWriteNothing() {
	before, err := ledger.VerifyStore(s.ctx, s.store)
	s.Require().NoError(err)
	s.check(patient)
	s.check(doctor)
	after, err := ledger.VerifyStore(s.ctx, s.store)
	s.Require().NoError(err)
	s.Equal(before.Height, after.Height)
}

func (s *GateSuite) TestMetricsAndAudit() {
	s.check(patient)
	s.check(doctor)
	s.check(doctor)

	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.GateChecks.WithLabelValues(string(ReasonOwner))))
	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.GateChecks.WithLabelValues(string(ReasonNoGrant))))

	s.Require().Len(s.auditor.events, 3)
	last := s.auditor.events[2]
	s.Equal(audit.ActionAccessChecked, last.Action)
	s.Equal(doctor, last.Subject)
	s.Equal("deny", last.Decision)
	s.Equal(string(ReasonNoGrant), last.Reason)
}

type failingLedger struct{ err error }

func (f failingLedger) Read(context.Context, string, func(ctx context.Context, r ledger.Reader) error) error {
	return f.err
}

func TestCanAccessFailsClosed(t *testing.T) {
	g := New(failingLedger{err: sentinel.ErrUnavailable})

	_, err := g.Check(context.Background(), 1, patient)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSubstrateUnavailable))
	assert.False(t, g.CanAccess(context.Background(), 1, patient))
}

func TestCheckWithCancelledContext(t *testing.T) {
	g := New(ledger.NewTransactor(memory.New(), 0, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Check(ctx, 1, patient)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
