// Package ledgertest holds the behaviour every ledger.Store backend must share.
// Backend packages run it from their own tests:
//
//	func TestConformance(t *testing.T) {
//		ledgertest.Run(t, func(t *testing.T) ledger.Store { return memory.New() })
//	}
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	accessmodels "medledger/internal/access/models"
	"medledger/internal/ledger"
	recordmodels "medledger/internal/records/models"
	id "medledger/pkg/domain"
	"medledger/pkg/platform/sentinel"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) ledger.Store

// Run executes the conformance suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	suite.Run(t, &Suite{factory: factory})
}

// Suite is exported so backends can embed it and add their own cases.
type Suite struct {
	suite.Suite
	factory Factory
	store   ledger.Store
}

const (
	alice id.ParticipantID = "0x00000000000000000000000000000000000000a1"
	bob   id.ParticipantID = "0x00000000000000000000000000000000000000b0"
	carol id.ParticipantID = "0x00000000000000000000000000000000000000c0"
)

var baseTime = time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)

var errAbort = errors.New("abort")

func (s *Suite) SetupTest() {
	s.store = s.factory(s.T())
}

func (s *Suite) TearDownTest() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
}

// createRecord runs the same write sequence the record service uses.
func (s *Suite) createRecord(owner id.ParticipantID, ref string, at time.Time) *recordmodels.Record {
	var out *recordmodels.Record
	err := s.store.RunInTx(context.Background(), func(ctx context.Context, w ledger.Writer) error {
		rid, err := w.NextRecordID(ctx)
		if err != nil {
			return err
		}
		sealed, err := w.Append(ctx, ledger.Entry{
			Kind:              ledger.KindRecordCreated,
			RecordID:          rid,
			Actor:             owner,
			ArtifactReference: ref,
			At:                at,
		})
		if err != nil {
			return err
		}
		out = &recordmodels.Record{
			ID:                rid,
			Owner:             owner,
			ArtifactReference: ref,
			CreatedAt:         sealed.At,
			Seq:               sealed.Seq,
		}
		return w.InsertRecord(ctx, out)
	})
	s.Require().NoError(err)
	return out
}

func (s *Suite) requestAccess(recordID id.RecordID, requester id.ParticipantID, at time.Time) (*accessmodels.AccessRequest, error) {
	var out *accessmodels.AccessRequest
	err := s.store.RunInTx(context.Background(), func(ctx context.Context, w ledger.Writer) error {
		reqID, err := w.NextAccessRequestID(ctx)
		if err != nil {
			return err
		}
		sealed, err := w.Append(ctx, ledger.Entry{
			Kind:      ledger.KindAccessRequested,
			RecordID:  recordID,
			RequestID: reqID,
			Actor:     requester,
			At:        at,
		})
		if err != nil {
			return err
		}
		out = &accessmodels.AccessRequest{
			ID:          reqID,
			RecordID:    recordID,
			Requester:   requester,
			Status:      accessmodels.StatusPending,
			RequestedAt: sealed.At,
			Seq:         sealed.Seq,
		}
		return w.InsertAccessRequest(ctx, out)
	})
	return out, err
}

func (s *Suite) decide(req *accessmodels.AccessRequest, status accessmodels.Status, by id.ParticipantID, at time.Time) *accessmodels.AccessRequest {
	next := req.Clone()
	err := s.store.RunInTx(context.Background(), func(ctx context.Context, w ledger.Writer) error {
		kind := ledger.KindAccessApproved
		switch status {
		case accessmodels.StatusDenied:
			kind = ledger.KindAccessDenied
		case accessmodels.StatusRevoked:
			kind = ledger.KindAccessRevoked
		}
		sealed, err := w.Append(ctx, ledger.Entry{
			Kind:      kind,
			RecordID:  req.RecordID,
			RequestID: req.ID,
			Actor:     by,
			At:        at,
		})
		if err != nil {
			return err
		}
		next.Status = status
		next.Seq = sealed.Seq
		if status == accessmodels.StatusRevoked {
			next.RevokedAt = &sealed.At
		} else {
			next.DecidedAt = &sealed.At
			next.DecidedBy = by
		}
		return w.UpdateAccessRequest(ctx, next)
	})
	s.Require().NoError(err)
	return next
}

func (s *Suite) head() ledger.Entry {
	var head ledger.Entry
	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		var err error
		head, err = r.Head(ctx)
		return err
	}))
	return head
}

func (s *Suite) TestEmptyLedger() {
	head := s.head()
	s.Equal(uint64(0), head.Seq)

	err := s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		entries, err := r.Entries(ctx, 0, 10)
		s.Require().NoError(err)
		s.Empty(entries)

		_, err = r.Record(ctx, 1)
		s.ErrorIs(err, sentinel.ErrNotFound)

		_, err = r.AccessRequest(ctx, 1)
		s.ErrorIs(err, sentinel.ErrNotFound)

		recs, err := r.RecordsByOwner(ctx, alice)
		s.Require().NoError(err)
		s.Empty(recs)
		return nil
	})
	s.Require().NoError(err)

	report, err := ledger.VerifyStore(context.Background(), s.store)
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(uint64(0), report.Height)
}

func (s *Suite) TestAppendChainsEntries() {
	first := s.createRecord(alice, "ipfs://one", baseTime)
	second := s.createRecord(bob, "ipfs://two", baseTime.Add(time.Second))

	s.Equal(id.RecordID(1), first.ID)
	s.Equal(id.RecordID(2), second.ID)

	var entries []ledger.Entry
	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		var err error
		entries, err = r.Entries(ctx, 0, 10)
		return err
	}))
	s.Require().Len(entries, 2)
	s.Equal(uint64(1), entries[0].Seq)
	s.Equal(ledger.GenesisHash, entries[0].PrevHash)
	s.Equal(entries[0].Hash, entries[1].PrevHash)
	s.Equal(ledger.KindRecordCreated, entries[1].Kind)
	s.Equal(bob, entries[1].Actor)
	s.Equal("ipfs://two", entries[1].ArtifactReference)
	s.True(entries[0].At.Equal(ledger.NormalizeTime(baseTime)), "time must round trip at microsecond precision")
	s.NoError(ledger.Verify(ledger.Entry{}, entries))

	s.Equal(entries[1], s.head())

	report, err := ledger.VerifyStore(context.Background(), s.store)
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(uint64(2), report.Height)
	s.Equal(entries[1].Hash, report.HeadHash)
}

func (s *Suite) TestEntriesPaging() {
	for i := 0; i < 5; i++ {
		s.createRecord(alice, fmt.Sprintf("ipfs://%d", i), baseTime)
	}
	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		page, err := r.Entries(ctx, 2, 2)
		s.Require().NoError(err)
		s.Require().Len(page, 2)
		s.Equal(uint64(3), page[0].Seq)
		s.Equal(uint64(4), page[1].Seq)

		tail, err := r.Entries(ctx, 4, 10)
		s.Require().NoError(err)
		s.Require().Len(tail, 1)
		s.Equal(uint64(5), tail[0].Seq)

		past, err := r.Entries(ctx, 5, 10)
		s.Require().NoError(err)
		s.Empty(past)
		return nil
	}))
}

func (s *Suite) TestRecordProjection() {
	s.createRecord(alice, "ipfs://a1", baseTime)
	s.createRecord(bob, "ipfs://b1", baseTime)
	s.createRecord(alice, "ipfs://a2", baseTime)

	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		rec, err := r.Record(ctx, 2)
		s.Require().NoError(err)
		s.Equal(bob, rec.Owner)
		s.Equal("ipfs://b1", rec.ArtifactReference)
		s.Equal(uint64(2), rec.Seq)

		owned, err := r.RecordsByOwner(ctx, alice)
		s.Require().NoError(err)
		s.Require().Len(owned, 2)
		s.Equal(id.RecordID(1), owned[0].ID)
		s.Equal(id.RecordID(3), owned[1].ID)

		none, err := r.RecordsByOwner(ctx, carol)
		s.Require().NoError(err)
		s.Empty(none)
		return nil
	}))
}

func (s *Suite) TestRollbackDiscardsEverything() {
	s.createRecord(alice, "ipfs://kept", baseTime)
	before := s.head()

	err := s.store.RunInTx(context.Background(), func(ctx context.Context, w ledger.Writer) error {
		rid, err := w.NextRecordID(ctx)
		s.Require().NoError(err)
		sealed, err := w.Append(ctx, ledger.Entry{Kind: ledger.KindRecordCreated, RecordID: rid, Actor: bob, At: baseTime})
		s.Require().NoError(err)
		s.Require().NoError(w.InsertRecord(ctx, &recordmodels.Record{
			ID: rid, Owner: bob, ArtifactReference: "ipfs://lost", CreatedAt: sealed.At, Seq: sealed.Seq,
		}))

		// the transaction sees its own writes
		rec, err := w.Record(ctx, rid)
		s.Require().NoError(err)
		s.Equal("ipfs://lost", rec.ArtifactReference)
		head, err := w.Head(ctx)
		s.Require().NoError(err)
		s.Equal(sealed.Seq, head.Seq)
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	s.Equal(before, s.head())
	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		_, err := r.Record(ctx, 2)
		s.ErrorIs(err, sentinel.ErrNotFound)
		owned, err := r.RecordsByOwner(ctx, bob)
		s.Require().NoError(err)
		s.Empty(owned)
		return nil
	}))

	next := s.createRecord(bob, "ipfs://retry", baseTime)
	s.Equal(id.RecordID(2), next.ID, "a rolled back transaction must not consume ids")
	s.Equal(before.Seq+1, next.Seq)
}

func (s *Suite) TestAccessRequestProjection() {
	rec := s.createRecord(alice, "ipfs://a", baseTime)

	req, err := s.requestAccess(rec.ID, bob, baseTime.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(id.AccessRequestID(1), req.ID)

	approved := s.decide(req, accessmodels.StatusApproved, alice, baseTime.Add(2*time.Minute))

	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		got, err := r.AccessRequest(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(accessmodels.StatusApproved, got.Status)
		s.Equal(alice, got.DecidedBy)
		s.Require().NotNil(got.DecidedAt)
		s.True(got.DecidedAt.Equal(*approved.DecidedAt))
		s.Nil(got.RevokedAt)
		s.Equal(uint64(3), got.Seq)
		s.True(got.RequestedAt.Equal(req.RequestedAt))

		pair, err := r.AccessRequestsForPair(ctx, rec.ID, bob)
		s.Require().NoError(err)
		s.Require().Len(pair, 1)

		byRecord, err := r.AccessRequestsByRecord(ctx, rec.ID)
		s.Require().NoError(err)
		s.Len(byRecord, 1)

		byRequester, err := r.AccessRequestsByRequester(ctx, bob)
		s.Require().NoError(err)
		s.Len(byRequester, 1)

		none, err := r.AccessRequestsForPair(ctx, rec.ID, carol)
		s.Require().NoError(err)
		s.Empty(none)
		return nil
	}))

	revoked := s.decide(approved, accessmodels.StatusRevoked, alice, baseTime.Add(3*time.Minute))
	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		got, err := r.AccessRequest(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(accessmodels.StatusRevoked, got.Status)
		s.Require().NotNil(got.RevokedAt)
		s.True(got.RevokedAt.Equal(*revoked.RevokedAt))
		s.Require().NotNil(got.DecidedAt, "revocation keeps the approval time")
		return nil
	}))
}

func (s *Suite) TestSecondPendingRequestConflicts() {
	rec := s.createRecord(alice, "ipfs://a", baseTime)
	first, err := s.requestAccess(rec.ID, bob, baseTime)
	s.Require().NoError(err)
	headBefore := s.head()

	_, err = s.requestAccess(rec.ID, bob, baseTime)
	s.ErrorIs(err, sentinel.ErrConflict)
	s.Equal(headBefore, s.head(), "rejected insert must not leave its entry behind")

	// a different requester is unaffected
	_, err = s.requestAccess(rec.ID, carol, baseTime)
	s.Require().NoError(err)

	// once the pending request is decided a new one may be filed
	s.decide(first, accessmodels.StatusDenied, alice, baseTime)
	again, err := s.requestAccess(rec.ID, bob, baseTime)
	s.Require().NoError(err)
	s.Equal(id.AccessRequestID(3), again.ID)

	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		pair, err := r.AccessRequestsForPair(ctx, rec.ID, bob)
		s.Require().NoError(err)
		s.Require().Len(pair, 2)
		s.Equal(first.ID, pair[0].ID)
		s.Equal(accessmodels.StatusDenied, pair[0].Status)
		s.Equal(again.ID, pair[1].ID)
		return nil
	}))
}

func (s *Suite) TestUpdateUnknownRequest() {
	err := s.store.RunInTx(context.Background(), func(ctx context.Context, w ledger.Writer) error {
		return w.UpdateAccessRequest(ctx, &accessmodels.AccessRequest{ID: 42, Status: accessmodels.StatusApproved})
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestReturnedValuesAreCopies() {
	rec := s.createRecord(alice, "ipfs://a", baseTime)
	req, err := s.requestAccess(rec.ID, bob, baseTime)
	s.Require().NoError(err)

	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		got, err := r.AccessRequest(ctx, req.ID)
		s.Require().NoError(err)
		got.Status = accessmodels.StatusApproved

		again, err := r.AccessRequest(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(accessmodels.StatusPending, again.Status)
		return nil
	}))
}

func (s *Suite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.store.RunInTx(ctx, func(ctx context.Context, w ledger.Writer) error {
		called = true
		return nil
	})
	s.ErrorIs(err, context.Canceled)
	s.False(called)
	s.Equal(uint64(0), s.head().Seq)
}

func (s *Suite) TestConcurrentWritersAreSerialized() {
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.store.RunInTx(context.Background(), func(ctx context.Context, w ledger.Writer) error {
				rid, err := w.NextRecordID(ctx)
				if err != nil {
					return err
				}
				sealed, err := w.Append(ctx, ledger.Entry{Kind: ledger.KindRecordCreated, RecordID: rid, Actor: alice, At: baseTime})
				if err != nil {
					return err
				}
				return w.InsertRecord(ctx, &recordmodels.Record{
					ID: rid, Owner: alice, ArtifactReference: fmt.Sprintf("ipfs://%d", i), CreatedAt: sealed.At, Seq: sealed.Seq,
				})
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		owned, err := r.RecordsByOwner(ctx, alice)
		s.Require().NoError(err)
		s.Require().Len(owned, writers)
		for i, rec := range owned {
			s.Equal(id.RecordID(i+1), rec.ID)
			s.Equal(uint64(i+1), rec.Seq)
		}
		return nil
	}))

	report, err := ledger.VerifyStore(context.Background(), s.store)
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(uint64(writers), report.Height)
}

func (s *Suite) TestTimestampsNeverRunBackwards() {
	s.createRecord(alice, "ipfs://late", baseTime.Add(time.Hour))
	s.createRecord(alice, "ipfs://early", baseTime)

	report, err := ledger.VerifyStore(context.Background(), s.store)
	s.Require().NoError(err)
	s.True(report.Valid)

	s.Require().NoError(s.store.View(context.Background(), func(ctx context.Context, r ledger.Reader) error {
		rec, err := r.Record(ctx, 2)
		s.Require().NoError(err)
		s.True(rec.CreatedAt.Equal(ledger.NormalizeTime(baseTime.Add(time.Hour))))
		return nil
	}))
}
